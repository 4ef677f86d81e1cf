package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/Dan9191/contract-service/internal/config"
	"github.com/Dan9191/contract-service/internal/models"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg     *config.Config
	logger  *logrus.Logger
	catalog *Catalog
	send    func(e *email.Email) error
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, catalog *Catalog, logger *logrus.Logger) *Sender {
	s := &Sender{
		cfg:     cfg,
		logger:  logger,
		catalog: catalog,
	}
	s.send = s.sendSMTP
	return s
}

// Send renders the named template with props and sends it to a single recipient
func (s *Sender) Send(ctx context.Context, msg *models.EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To == "" {
		return fmt.Errorf("email recipient is empty")
	}

	subject, body, err := s.catalog.Render(msg.Template, msg.Properties)
	if err != nil {
		return err
	}

	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{msg.To}
	e.Subject = subject
	e.HTML = []byte(body)

	if err := s.send(e); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", msg.To, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", msg.To, e.Subject)
	return nil
}

func (s *Sender) sendSMTP(e *email.Email) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	return e.Send(addr, auth)
}
