package domain

import (
	"context"
	"time"
)

// CartRepository описывает требования к хранилищу корзин.
// Каждая мутация одной корзины атомарна; возвращаются копии.
type CartRepository interface {
	// Create присваивает корзине и её позициям новые идентификаторы и сохраняет её.
	Create(ctx context.Context, cart Cart) (Cart, error)
	// Get возвращает корзину или ErrCartNotFound.
	Get(ctx context.Context, cartID string) (Cart, error)
	// AddItem добавляет позицию в конец корзины.
	AddItem(ctx context.Context, cartID string, item Item) (Cart, error)
	// RemoveItem удаляет позицию; при ошибке корзина не меняется.
	RemoveItem(ctx context.Context, cartID, itemID string) (Cart, error)
	// UpdateQuantity меняет количество; quantity == 0 удаляет позицию.
	UpdateQuantity(ctx context.Context, cartID, itemID string, quantity int) (Cart, error)
	// ClearItems удаляет все позиции корзины.
	ClearItems(ctx context.Context, cartID string) (Cart, error)
	// Delete удаляет корзину целиком.
	Delete(ctx context.Context, cartID string) error
	// List возвращает идентификаторы корзин в порядке создания.
	List(ctx context.Context) ([]string, error)
	// Count возвращает количество корзин.
	Count(ctx context.Context) (int, error)
}

// EventPublisher отправляет события корзины во внешний брокер.
type EventPublisher interface {
	Publish(ctx context.Context, event CartEvent) error
	Close() error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	Delete(key string) error
	DeleteExpired(before time.Time, limit int) (int, error)
}
