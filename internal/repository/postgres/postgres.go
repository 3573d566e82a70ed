// Package postgres implements the repository contract on pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/silverstone/ledger/internal/models"
	"github.com/silverstone/ledger/internal/repository"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same query
// methods serve transactional and non-transactional access.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a Postgres-backed repository.Store.
type Store struct {
	pool *pgxpool.Pool
	q    querier
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

func (s *Store) Accounts() repository.AccountRepository         { return &accountRepo{q: s.q} }
func (s *Store) Credentials() repository.CredentialRepository   { return &credentialRepo{q: s.q} }
func (s *Store) Transactions() repository.TransactionRepository { return &transactionRepo{q: s.q} }

// RunInTx executes fn inside a database transaction. A store that is already
// transaction-scoped reuses its transaction instead of nesting.
func (s *Store) RunInTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if _, alreadyTx := s.q.(pgx.Tx); alreadyTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Store{pool: s.pool, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Migrate creates the schema when it does not exist. Accounts and their
// credentials are two separately keyed tables joined by account id so either
// can be rotated or deleted independently.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id BIGSERIAL PRIMARY KEY,
			holder_name TEXT NOT NULL,
			holder_address TEXT NOT NULL,
			holder_email TEXT NOT NULL,
			balance TEXT NOT NULL,
			role TEXT NOT NULL,
			verification_status TEXT NOT NULL,
			status TEXT NOT NULL,
			wrapped_data_key TEXT NOT NULL,
			public_key TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS accounts_credentials (
			account_id BIGINT PRIMARY KEY,
			hashed_password TEXT NOT NULL,
			private_key TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transaction_history (
			id BIGSERIAL PRIMARY KEY,
			sender_id BIGINT NOT NULL,
			receiver_id BIGINT NOT NULL,
			amount TEXT NOT NULL,
			status TEXT NOT NULL,
			sender_wrapped_key TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_history_sender ON transaction_history (sender_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_history_receiver ON transaction_history (receiver_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_history_status ON transaction_history (status)`,
	}
	for _, stmt := range ddl {
		if _, err := s.q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

type accountRepo struct {
	q querier
}

const accountColumns = `id, holder_name, holder_address, holder_email, balance, role, verification_status, status, wrapped_data_key, public_key, created_at`

func scanAccount(row pgx.Row) (*models.AccountRecord, error) {
	rec := &models.AccountRecord{}
	err := row.Scan(&rec.ID, &rec.HolderName, &rec.HolderAddress, &rec.HolderEmail, &rec.Balance,
		&rec.Role, &rec.VerificationStatus, &rec.Status, &rec.WrappedDataKey, &rec.PublicKey, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return rec, nil
}

func (r *accountRepo) Get(ctx context.Context, id int64) (*models.AccountRecord, error) {
	row := r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (r *accountRepo) Save(ctx context.Context, rec *models.AccountRecord) (*models.AccountRecord, error) {
	stored := *rec
	if stored.ID == 0 {
		err := r.q.QueryRow(ctx, `
			INSERT INTO accounts (holder_name, holder_address, holder_email, balance, role, verification_status, status, wrapped_data_key, public_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
			RETURNING id, created_at`,
			stored.HolderName, stored.HolderAddress, stored.HolderEmail, stored.Balance,
			stored.Role, stored.VerificationStatus, stored.Status, stored.WrappedDataKey, stored.PublicKey,
		).Scan(&stored.ID, &stored.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert account: %w", err)
		}
		return &stored, nil
	}

	tag, err := r.q.Exec(ctx, `
		UPDATE accounts
		SET holder_name = $2, holder_address = $3, holder_email = $4, balance = $5,
			role = $6, verification_status = $7, status = $8, wrapped_data_key = $9, public_key = $10
		WHERE id = $1`,
		stored.ID, stored.HolderName, stored.HolderAddress, stored.HolderEmail, stored.Balance,
		stored.Role, stored.VerificationStatus, stored.Status, stored.WrappedDataKey, stored.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, models.ErrNotFound
	}
	return &stored, nil
}

func (r *accountRepo) All(ctx context.Context) ([]*models.AccountRecord, error) {
	rows, err := r.q.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []*models.AccountRecord
	for rows.Next() {
		rec, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type credentialRepo struct {
	q querier
}

func (r *credentialRepo) Get(ctx context.Context, accountID int64) (*models.Credential, error) {
	cred := &models.Credential{}
	err := r.q.QueryRow(ctx, `SELECT account_id, hashed_password, private_key FROM accounts_credentials WHERE account_id = $1`, accountID).
		Scan(&cred.AccountID, &cred.PasswordHash, &cred.PrivateKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	return cred, nil
}

func (r *credentialRepo) Save(ctx context.Context, cred *models.Credential) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO accounts_credentials (account_id, hashed_password, private_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE SET hashed_password = $2, private_key = $3`,
		cred.AccountID, cred.PasswordHash, cred.PrivateKey)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (r *credentialRepo) Delete(ctx context.Context, accountID int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM accounts_credentials WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

type transactionRepo struct {
	q querier
}

const transactionColumns = `id, sender_id, receiver_id, amount, status, sender_wrapped_key, created_at`

func scanTransaction(row pgx.Row) (*models.TransactionRecord, error) {
	rec := &models.TransactionRecord{}
	err := row.Scan(&rec.ID, &rec.SenderID, &rec.ReceiverID, &rec.Amount, &rec.Status, &rec.SenderWrappedKey, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return rec, nil
}

func (r *transactionRepo) Get(ctx context.Context, id int64) (*models.TransactionRecord, error) {
	row := r.q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transaction_history WHERE id = $1`, id)
	return scanTransaction(row)
}

func (r *transactionRepo) Save(ctx context.Context, rec *models.TransactionRecord) (*models.TransactionRecord, error) {
	stored := *rec
	if stored.ID == 0 {
		err := r.q.QueryRow(ctx, `
			INSERT INTO transaction_history (sender_id, receiver_id, amount, status, sender_wrapped_key, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			RETURNING id, created_at`,
			stored.SenderID, stored.ReceiverID, stored.Amount, stored.Status, stored.SenderWrappedKey,
		).Scan(&stored.ID, &stored.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert transaction: %w", err)
		}
		return &stored, nil
	}

	tag, err := r.q.Exec(ctx, `
		UPDATE transaction_history
		SET sender_id = $2, receiver_id = $3, amount = $4, status = $5, sender_wrapped_key = $6
		WHERE id = $1`,
		stored.ID, stored.SenderID, stored.ReceiverID, stored.Amount, stored.Status, stored.SenderWrappedKey)
	if err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, models.ErrNotFound
	}
	return &stored, nil
}

func (r *transactionRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM transaction_history WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *transactionRepo) All(ctx context.Context) ([]*models.TransactionRecord, error) {
	return r.query(ctx, `SELECT `+transactionColumns+` FROM transaction_history ORDER BY id`)
}

func (r *transactionRepo) ByAccount(ctx context.Context, accountID int64) ([]*models.TransactionRecord, error) {
	return r.query(ctx, `SELECT `+transactionColumns+` FROM transaction_history WHERE sender_id = $1 OR receiver_id = $1 ORDER BY id`, accountID)
}

func (r *transactionRepo) SentBy(ctx context.Context, accountID int64) ([]*models.TransactionRecord, error) {
	return r.query(ctx, `SELECT `+transactionColumns+` FROM transaction_history WHERE sender_id = $1 ORDER BY id`, accountID)
}

func (r *transactionRepo) ReceivedBy(ctx context.Context, accountID int64) ([]*models.TransactionRecord, error) {
	return r.query(ctx, `SELECT `+transactionColumns+` FROM transaction_history WHERE receiver_id = $1 ORDER BY id`, accountID)
}

func (r *transactionRepo) Pending(ctx context.Context) ([]*models.TransactionRecord, error) {
	return r.query(ctx, `SELECT `+transactionColumns+` FROM transaction_history WHERE status = 'pending' ORDER BY id`)
}

func (r *transactionRepo) PendingByAccount(ctx context.Context, accountID int64) ([]*models.TransactionRecord, error) {
	return r.query(ctx, `SELECT `+transactionColumns+` FROM transaction_history WHERE status = 'pending' AND (sender_id = $1 OR receiver_id = $1) ORDER BY id`, accountID)
}

func (r *transactionRepo) PendingSentBy(ctx context.Context, accountID int64) ([]*models.TransactionRecord, error) {
	return r.query(ctx, `SELECT `+transactionColumns+` FROM transaction_history WHERE status = 'pending' AND sender_id = $1 ORDER BY id`, accountID)
}

func (r *transactionRepo) PendingReceivedBy(ctx context.Context, accountID int64) ([]*models.TransactionRecord, error) {
	return r.query(ctx, `SELECT `+transactionColumns+` FROM transaction_history WHERE status = 'pending' AND receiver_id = $1 ORDER BY id`, accountID)
}

func (r *transactionRepo) query(ctx context.Context, sql string, args ...any) ([]*models.TransactionRecord, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.TransactionRecord
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
