package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

// TopicCartEvents — топик по умолчанию для событий корзин.
const TopicCartEvents = "shopcart.cart.events"

// Kafka headers
const (
	HeaderEventType = "x-event-type"
	HeaderSource    = "x-source"
)

const sourceName = "shopcart"

// newCartMessage сериализует событие; ключом сообщения служит ID корзины, чтобы события одной корзины шли в одну партицию.
func newCartMessage(topic string, event domain.CartEvent) (*sarama.ProducerMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cart event: %w", err)
	}

	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.CartID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(event.Type)},
			{Key: []byte(HeaderSource), Value: []byte(sourceName)},
		},
		Timestamp: event.OccurredAt,
	}, nil
}
