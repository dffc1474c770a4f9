// Package alert implements design component E: a periodic loop that
// scans devices for missed verification windows and emits/clears
// alerts per account policy.
package alert

import (
	"fmt"
	"net/smtp"
)

// Mailer is the external mail collaborator named in spec.md §6. No mail
// library appears anywhere in the retrieved example pack, so the
// idiomatic stdlib net/smtp is used directly rather than introducing an
// unfamiliar third-party client for a single send-one-message call.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer sends mail through a configured relay using PLAIN auth.
type SMTPMailer struct {
	Addr string
	From string
	Auth smtp.Auth
}

func NewSMTPMailer(addr, from, username, password, host string) *SMTPMailer {
	return &SMTPMailer{Addr: addr, From: from, Auth: smtp.PlainAuth("", username, password, host)}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", m.From, to, subject, body)
	if err := smtp.SendMail(m.Addr, m.Auth, m.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}
	return nil
}
