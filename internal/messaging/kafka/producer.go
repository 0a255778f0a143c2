package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

// sendTimeout ограничивает сетевые операции и ожидание acks одной попытки отправки.
const sendTimeout = 5 * time.Second

// Producer публикует события корзин в Kafka.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *log.Entry
}

// NewProducer создает Kafka producer для событий корзин.
func NewProducer(brokers []string, topic string, logger *log.Entry) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, newProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return newProducer(producer, topic, logger), nil
}

func newProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Retry.Backoff = 100 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Producer.Timeout = sendTimeout
	config.Net.MaxOpenRequests = 1 // требование idempotent producer
	config.Net.DialTimeout = sendTimeout
	config.Net.ReadTimeout = sendTimeout
	config.Net.WriteTimeout = sendTimeout
	return config
}

type sendResult struct {
	partition int32
	offset    int64
	err       error
}

func newProducer(producer sarama.SyncProducer, topic string, logger *log.Entry) *Producer {
	if strings.TrimSpace(topic) == "" {
		topic = TopicCartEvents
	}
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// Publish отправляет событие корзины и ждёт подтверждения брокера, но не дольше дедлайна ctx.
// После дедлайна sarama может ещё доставить сообщение в пределах своих ретраев.
func (p *Producer) Publish(ctx context.Context, event domain.CartEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := newCartMessage(p.topic, event)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEventPublish, err)
	}

	fields := log.Fields{
		"topic":      p.topic,
		"cart_id":    event.CartID,
		"event_type": event.Type,
	}

	done := make(chan sendResult, 1)
	go func() {
		partition, offset, err := p.producer.SendMessage(msg)
		done <- sendResult{partition: partition, offset: offset, err: err}
	}()

	var res sendResult
	select {
	case <-ctx.Done():
		p.logger.WithError(ctx.Err()).WithFields(fields).Warn("kafka did not acknowledge cart event in time")
		return fmt.Errorf("%w: %w", domain.ErrEventPublish, ctx.Err())
	case res = <-done:
	}

	if res.err != nil {
		p.logger.WithError(res.err).WithFields(fields).Error("failed to send cart event to kafka")
		return fmt.Errorf("%w: %v", domain.ErrEventPublish, res.err)
	}

	p.logger.WithFields(fields).WithFields(log.Fields{
		"partition": res.partition,
		"offset":    res.offset,
	}).Debug("cart event sent to kafka")

	return nil
}

// Close закрывает producer
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}

var _ domain.EventPublisher = (*Producer)(nil)
