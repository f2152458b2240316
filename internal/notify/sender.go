package notify

import (
	"context"
	"fmt"
	"time"

	mail "gopkg.in/mail.v2"
)

// Config carries the SMTP transport and the operator mailbox.
type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	Recipient string
	StartTLS  bool
	Timeout   time.Duration
}

// Message is a plain-text mail with optional file attachments.
type Message struct {
	From        string
	To          []string
	Subject     string
	Body        string
	Attachments []string
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	dialer *mail.Dialer
}

// NewSMTPSender builds a sender for cfg.
func NewSMTPSender(cfg Config) *SMTPSender {
	dialer := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.StartTLS {
		dialer.StartTLSPolicy = mail.MandatoryStartTLS
	} else {
		dialer.StartTLSPolicy = mail.OpportunisticStartTLS
	}
	if cfg.Timeout > 0 {
		dialer.Timeout = cfg.Timeout
	}
	return &SMTPSender{dialer: dialer}
}

// Send dials the relay and transmits msg. The context is only checked
// before dialing; the dialer timeout bounds the transmission.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(buildMessage(msg)); err != nil {
		return fmt.Errorf("smtp send %q: %w", msg.Subject, err)
	}
	return nil
}

func buildMessage(msg Message) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	for _, path := range msg.Attachments {
		m.Attach(path)
	}
	return m
}
