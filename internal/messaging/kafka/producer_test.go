package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

func testEvent() domain.CartEvent {
	return domain.CartEvent{
		Type:       domain.CartEventItemAdded,
		CartID:     "cart-123",
		ItemID:     "item-1",
		ItemsCount: 2,
		Total:      decimal.RequireFromString("180.00"),
		OccurredAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestProducer_Publish(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer, "", log.WithField("component", "kafka-producer-test"))

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicCartEvents {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "cart-123" {
			return errors.New("message key must be cart id")
		}
		return nil
	})

	if err := producer.Publish(context.Background(), testEvent()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_Publish_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer, "custom.topic", log.WithField("component", "kafka-producer-test"))

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.Publish(context.Background(), testEvent())
	if !errors.Is(err, domain.ErrEventPublish) {
		t.Fatalf("expected ErrEventPublish, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_Publish_CanceledContext(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := producer.Publish(ctx, testEvent()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

// stalledSyncProducer не отвечает, пока тест не закроет release.
type stalledSyncProducer struct {
	sarama.SyncProducer
	release chan struct{}
}

func (p *stalledSyncProducer) SendMessage(*sarama.ProducerMessage) (int32, int64, error) {
	<-p.release
	return 0, 0, nil
}

func TestProducer_Publish_RespectsDeadline(t *testing.T) {
	stalled := &stalledSyncProducer{release: make(chan struct{})}
	defer close(stalled.release)
	producer := newProducer(stalled, "", log.WithField("component", "kafka-producer-test"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := producer.Publish(ctx, testEvent())
	elapsed := time.Since(start)

	if !errors.Is(err, domain.ErrEventPublish) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected ErrEventPublish wrapping DeadlineExceeded, got %v", err)
	}
	if elapsed > time.Second {
		t.Fatalf("publish must return at the context deadline, took %s", elapsed)
	}
}

func TestNewProducerConfig_BoundsSendTime(t *testing.T) {
	config := newProducerConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("config must be valid: %v", err)
	}
	for name, got := range map[string]time.Duration{
		"Producer.Timeout": config.Producer.Timeout,
		"Net.DialTimeout":  config.Net.DialTimeout,
		"Net.ReadTimeout":  config.Net.ReadTimeout,
		"Net.WriteTimeout": config.Net.WriteTimeout,
	} {
		if got != sendTimeout {
			t.Errorf("%s = %s, want %s", name, got, sendTimeout)
		}
	}
	if !config.Producer.Idempotent || config.Net.MaxOpenRequests != 1 {
		t.Fatal("producer must stay idempotent")
	}
}

func TestNewCartMessage(t *testing.T) {
	msg, err := newCartMessage(TopicCartEvents, testEvent())
	if err != nil {
		t.Fatalf("newCartMessage failed: %v", err)
	}

	if len(msg.Headers) != 2 || string(msg.Headers[0].Key) != HeaderEventType {
		t.Fatalf("unexpected headers: %+v", msg.Headers)
	}
	if string(msg.Headers[0].Value) != string(domain.CartEventItemAdded) {
		t.Fatalf("unexpected event type header %q", msg.Headers[0].Value)
	}

	raw, err := msg.Value.Encode()
	if err != nil {
		t.Fatalf("encode value: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if decoded["event_type"] != "cart.item_added" {
		t.Fatalf("unexpected event_type %v", decoded["event_type"])
	}
	if decoded["cart_id"] != "cart-123" {
		t.Fatalf("unexpected cart_id %v", decoded["cart_id"])
	}
	if decoded["total"] != "180" {
		t.Fatalf("unexpected total %v", decoded["total"])
	}
}
