package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes events to the structured log. It is the default backend.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.L()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, evt Event) error {
	n.logger.Info("event",
		zap.String("event_id", evt.ID.String()),
		zap.String("type", evt.Type),
		zap.String("key", evt.Key),
		zap.ByteString("payload", evt.Payload),
	)
	return nil
}

func (n *LogNotifier) Close() error {
	return nil
}
