package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account statuses. Closure is a status transition, never a row delete:
// transaction history keeps referencing the id.
const (
	AccountStatusActive = "active"
	AccountStatusClosed = "closed"
)

// VerificationDone is stored once the holder has confirmed their email.
// Before that the field holds the outstanding verification token.
const VerificationDone = "verified"

// Roles recognised by the engine's capability checks.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Transaction statuses. Pending is the only non-terminal state.
const (
	TxStatusPending  = "pending"
	TxStatusSuccess  = "success"
	TxStatusFailed   = "failed"
	TxStatusDeclined = "declined"
)

// Account is the plaintext, in-memory view of one account. It exists only
// transiently: the durable form is AccountRecord.
type Account struct {
	ID                 int64           `json:"id"`
	HolderName         string          `json:"holder_name"`
	HolderAddress      string          `json:"holder_address"`
	HolderEmail        string          `json:"holder_email"`
	Balance            decimal.Decimal `json:"balance"`
	Role               string          `json:"role"`
	VerificationStatus string          `json:"-"`
	Status             string          `json:"status"`
	WrappedDataKey     string          `json:"-"`
	PublicKey          string          `json:"-"`
	CreatedAt          time.Time       `json:"created_at"`
}

// AccountRecord is the enveloped form persisted by the repository. Sensitive
// fields hold base64 ciphertext; identifiers and key material stay plaintext
// (the wrapped key is already ciphertext under the account's public key).
type AccountRecord struct {
	ID                 int64
	HolderName         string
	HolderAddress      string
	HolderEmail        string
	Balance            string
	Role               string
	VerificationStatus string
	Status             string
	WrappedDataKey     string
	PublicKey          string
	CreatedAt          time.Time
}

// Credential holds the secrets associated 1:1 with an account, stored as a
// separate keyed record so the account table alone never exposes private keys.
type Credential struct {
	AccountID    int64
	PasswordHash string
	PrivateKey   string
}

// Transaction is one decrypted ledger entry.
type Transaction struct {
	ID         int64           `json:"id"`
	SenderID   int64           `json:"sender_id"`
	ReceiverID int64           `json:"receiver_id"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TransactionRecord is the enveloped ledger entry. Amount is encrypted with
// the sender's data key; the record carries its own copy of the sender's
// wrapped key so entries stay readable independently of the account row.
type TransactionRecord struct {
	ID               int64
	SenderID         int64
	ReceiverID       int64
	Amount           string
	Status           string
	SenderWrappedKey string
	CreatedAt        time.Time
}

// Actor is the verified caller identity handed in by the auth collaborator.
// The engine trusts it as given and performs no token parsing itself.
type Actor struct {
	AccountID int64
	Role      string
}

// IsAdmin reports whether the actor carries the admin capability.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Terminal reports whether a transaction status can no longer be resolved.
func Terminal(status string) bool {
	switch status {
	case TxStatusSuccess, TxStatusFailed, TxStatusDeclined:
		return true
	}
	return false
}
