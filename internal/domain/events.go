package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartEventType определяет тип события корзины.
type CartEventType string

const (
	CartEventCreated         CartEventType = "cart.created"
	CartEventItemAdded       CartEventType = "cart.item_added"
	CartEventItemRemoved     CartEventType = "cart.item_removed"
	CartEventQuantityUpdated CartEventType = "cart.item_quantity_updated"
	CartEventCleared         CartEventType = "cart.cleared"
	CartEventDeleted         CartEventType = "cart.deleted"
)

// CartEvent описывает изменение корзины для внешних потребителей.
type CartEvent struct {
	Type       CartEventType   `json:"event_type"`
	CartID     string          `json:"cart_id"`
	ItemID     string          `json:"item_id,omitempty"`
	ItemsCount int             `json:"items_count"`
	Total      decimal.Decimal `json:"total"`
	OccurredAt time.Time       `json:"timestamp"`
}
