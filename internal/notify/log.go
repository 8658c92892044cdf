package notify

import (
	"context"
	"log/slog"

	"github.com/tsudo/taskrelay/pkg/api"
)

// LogNotifier writes messages to a logger instead of an external channel.
// It is the fallback when no channel access token is configured, and is
// handy in development.
type LogNotifier struct {
	logger *slog.Logger
}

var _ api.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a LogNotifier. If logger is nil, slog.Default()
// is used.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Deliver(ctx context.Context, recipient string, msg api.Message) error {
	n.logger.InfoContext(ctx, "notification",
		slog.String("recipient", recipient),
		slog.String("text", msg.Text),
		slog.Bool("failed", msg.Failed),
	)
	return nil
}
