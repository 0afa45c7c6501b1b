package utils

import (
	"fmt"

	"formloft/config"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// Mailer is the delivery provider boundary. Send returns the provider
// message id used to correlate later webhook callbacks.
type Mailer interface {
	Send(to, subject, body string, tags map[string]string) (string, error)
}

// SMTPMailer delivers through the configured SMTP relay
type SMTPMailer struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

func NewSMTPMailer(cfg config.Config) *SMTPMailer {
	return &SMTPMailer{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUsername,
		Password:  cfg.SMTPPassword,
		FromEmail: cfg.FromEmail,
		FromName:  cfg.FromName,
	}
}

func (m *SMTPMailer) Send(to, subject, body string, tags map[string]string) (string, error) {
	if err := checkmail.ValidateFormat(to); err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", to, err)
	}

	messageID := uuid.New().String()

	msg := gomail.NewMessage()
	msg.SetHeader("From", fmt.Sprintf("%s <%s>", m.FromName, m.FromEmail))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetHeader("Message-ID", fmt.Sprintf("<%s@formloft.io>", messageID))
	for k, v := range tags {
		msg.SetHeader("X-Formloft-"+k, v)
	}
	msg.SetBody("text/html", body)

	d := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	if err := d.DialAndSend(msg); err != nil {
		return "", fmt.Errorf("error sending email: %w", err)
	}

	return messageID, nil
}
