// Package notify delivers booking notifications. Delivery is best-effort:
// a failed notification is logged and swallowed, never failing the booking
// it announces.
package notify

import (
	"context"

	"github.com/clinicdesk/booking-service/pkg/logging"
)

type Notifier interface {
	Notify(ctx context.Context, title, body string)
}

// LogNotifier writes the notification to the structured log. Always wired
// so every booking leaves at least one delivery record.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, title, body string) {
	n.logger.Info("notification", "title", title, "body", body)
}

// Multi fans one notification out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, title, body string) {
	for _, n := range m {
		n.Notify(ctx, title, body)
	}
}
