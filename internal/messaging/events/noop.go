// Package events содержит публикатор событий корзин для режима без брокера.
package events

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

// NoopPublisher пишет события в debug-лог и никуда их не отправляет.
type NoopPublisher struct {
	logger *log.Entry
}

// NewNoopPublisher создаёт публикатор без брокера.
func NewNoopPublisher(logger *log.Entry) *NoopPublisher {
	if logger == nil {
		logger = log.WithField("component", "events-noop")
	}
	return &NoopPublisher{logger: logger}
}

func (p *NoopPublisher) Publish(ctx context.Context, event domain.CartEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.logger.WithFields(log.Fields{
		"event_type": event.Type,
		"cart_id":    event.CartID,
	}).Debug("cart event dropped: broker disabled")
	return nil
}

func (p *NoopPublisher) Close() error { return nil }

var _ domain.EventPublisher = (*NoopPublisher)(nil)
