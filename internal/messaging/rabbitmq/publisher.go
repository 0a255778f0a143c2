// Package rabbitmq публикует события корзин в topic exchange RabbitMQ.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

// DefaultExchange — exchange по умолчанию для событий корзин.
const DefaultExchange = "shopcart.events"

// channel — подмножество *amqp.Channel, нужное публикатору.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher публикует события корзин; routing key равен типу события.
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	logger   *log.Entry
}

// NewPublisher подключается к брокеру и объявляет durable topic exchange.
func NewPublisher(url, exchange string, logger *log.Entry) (*Publisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if strings.TrimSpace(exchange) == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}

	publisher := newPublisher(ch, exchange, logger)
	publisher.conn = conn
	return publisher, nil
}

func newPublisher(ch channel, exchange string, logger *log.Entry) *Publisher {
	if logger == nil {
		logger = log.WithField("component", "rabbitmq-publisher")
	}
	return &Publisher{
		ch:       ch,
		exchange: exchange,
		logger:   logger,
	}
}

// Publish отправляет событие с persistent delivery mode.
func (p *Publisher) Publish(ctx context.Context, event domain.CartEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", domain.ErrEventPublish, err)
	}

	routingKey := string(event.Type)
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.CartID + ":" + routingKey + ":" + event.OccurredAt.Format("20060102T150405.000000000"),
		Timestamp:    event.OccurredAt,
		Type:         routingKey,
		Body:         body,
	})
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"exchange":    p.exchange,
			"routing_key": routingKey,
			"cart_id":     event.CartID,
		}).Error("failed to publish cart event to rabbitmq")
		return fmt.Errorf("%w: %v", domain.ErrEventPublish, err)
	}

	p.logger.WithFields(log.Fields{
		"exchange":    p.exchange,
		"routing_key": routingKey,
		"cart_id":     event.CartID,
	}).Debug("cart event published to rabbitmq")

	return nil
}

// Close закрывает канал и соединение.
func (p *Publisher) Close() error {
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

var _ domain.EventPublisher = (*Publisher)(nil)
