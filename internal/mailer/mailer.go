package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"

	"github.com/SIMPLYBOYS/sage_mining/pkg/logger"
)

// Mailer delivers a plain-text message to a single recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes outgoing mail to the log instead of sending it.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, to, subject, body string) error {
	logger.Info("[EMAIL SENT] To: %s | Subject: %s | %s", to, subject, body)
	return nil
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPMailer struct {
	Host   string
	Port   int
	Sender string
	Auth   smtp.Auth

	send sendFunc
}

func NewSMTPMailer(host string, port int, user, password, sender string) *SMTPMailer {
	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, password, host)
	}
	return &SMTPMailer{Host: host, Port: port, Sender: sender, Auth: auth, send: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := m.Host + ":" + strconv.Itoa(m.Port)
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		m.Sender,
		to,
		subject,
		body,
	)
	if err := m.send(addr, m.Auth, m.Sender, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	logger.Info("[EMAIL SENT] To: %s | Subject: %s", to, subject)
	return nil
}
