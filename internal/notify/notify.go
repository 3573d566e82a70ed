// Package notify delivers verification and temporary-password messages.
// Delivery is fire and forget: a failed send never fails the operation that
// triggered it, it only surfaces a warning.
package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"
)

// Notifier sends one message to one recipient.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPNotifier sends mail through a plain SMTP relay.
type SMTPNotifier struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSMTPNotifier configures a notifier for host:port. Username may be empty
// for unauthenticated relays.
func NewSMTPNotifier(host string, port int, from, username, password string) *SMTPNotifier {
	n := &SMTPNotifier{
		addr: fmt.Sprintf("%s:%d", host, port),
		from: from,
	}
	if username != "" {
		n.auth = smtp.PlainAuth("", username, password, host)
	}
	return n
}

func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", n.from, to, subject, body)
	if err := smtp.SendMail(n.addr, n.auth, n.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// LogNotifier writes messages to the log instead of sending them. Used in
// dev mode and tests.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, to, subject, body string) error {
	zap.L().Info("notification", zap.String("to", to), zap.String("subject", subject))
	return nil
}
