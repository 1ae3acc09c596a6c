package service

import (
	"github.com/ayo6706/partner-settlement/internal/notify"
	"go.uber.org/zap"
)

// EventPublisher accepts post-commit events without blocking. Implemented by *notify.Dispatcher.
type EventPublisher interface {
	Publish(evt notify.Event) bool
}

// publish builds and enqueues an event. It is only called after the unit committed.
func publish(p EventPublisher, eventType, key string, payload any) {
	if p == nil {
		return
	}
	evt, err := notify.NewEvent(eventType, key, payload)
	if err != nil {
		zap.L().Warn("build event failed", zap.String("type", eventType), zap.Error(err))
		return
	}
	p.Publish(evt)
}
