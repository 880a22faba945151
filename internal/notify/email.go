package notify

import (
	"context"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/clinicdesk/booking-service/pkg/logging"
)

// EmailNotifier sends booking notifications through SendGrid. Errors are
// logged and dropped, matching the fire-and-forget contract.
type EmailNotifier struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	toEmail   string
	toName    string
	logger    *logging.Logger
}

type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewEmailNotifier returns nil when no API key is configured, which
// callers treat as email disabled.
func NewEmailNotifier(cfg EmailConfig, toEmail, toName string, logger *logging.Logger) *EmailNotifier {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EmailNotifier{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		toEmail:   toEmail,
		toName:    toName,
		logger:    logger,
	}
}

func (n *EmailNotifier) Notify(ctx context.Context, title, body string) {
	from := mail.NewEmail(n.fromName, n.fromEmail)
	to := mail.NewEmail(n.toName, n.toEmail)
	message := mail.NewSingleEmail(from, title, to, body, body)

	response, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		n.logger.Error("sendgrid send failed", "error", err, "to", n.toEmail)
		return
	}
	if response.StatusCode >= 400 {
		n.logger.Error("sendgrid returned error status", "status", response.StatusCode, "to", n.toEmail)
		return
	}
	n.logger.Info("booking email sent", "to", n.toEmail, "subject", title)
}
