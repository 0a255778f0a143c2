// Package cart реализует операции жизненного цикла корзины поверх хранилища и правил скидок.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
	"github.com/vladislavdragonenkov/shopcart/internal/pricing"
)

const publishTimeout = 5 * time.Second

// Имена операций в метриках.
const (
	opCreate         = "create"
	opGet            = "get"
	opAddItem        = "add_item"
	opRemoveItem     = "remove_item"
	opUpdateQuantity = "update_quantity"
	opClear          = "clear"
	opDelete         = "delete"
	opList           = "list"
)

// Metrics — метрики, которые пишет сервис.
type Metrics interface {
	RecordCartCreated()
	RecordOperation(operation string, err error)
	RecordDiscount(discountType string)
	RecordEventPublished(err error)
	ObserveCartTotal(total float64)
	SetActiveCarts(count int)
}

// ItemInput — непроверенные данные позиции с границы API.
type ItemInput struct {
	Name     string
	Category string
	Price    decimal.Decimal
	Quantity int
}

// CreateCartRequest — запрос на создание корзины.
type CreateCartRequest struct {
	Items       []ItemInput
	LoyaltyTier string
}

// Service — сервис корзин.
type Service struct {
	repo       domain.CartRepository
	calculator *pricing.Calculator
	publisher  domain.EventPublisher
	metrics    Metrics
	logger     *log.Entry
	now        func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithPublisher задаёт публикатор событий корзин.
func WithPublisher(publisher domain.EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithMetrics задаёт получателя метрик.
func WithMetrics(metrics Metrics) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService конструирует сервис с зависимостями.
func NewService(repo domain.CartRepository, calculator *pricing.Calculator, options ...Option) *Service {
	s := &Service{
		repo:       repo,
		calculator: calculator,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}

	if s.calculator == nil {
		s.calculator = pricing.NewCalculator(pricing.StackingAdditive)
	}
	if s.publisher == nil {
		s.publisher = noopPublisher{}
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "cart-service")
	}

	return s
}

// CreateCart проверяет позиции и уровень лояльности, сохраняет корзину и возвращает её итоги.
func (s *Service) CreateCart(ctx context.Context, req CreateCartRequest) (summary pricing.Summary, err error) {
	defer func() { s.metrics.RecordOperation(opCreate, err) }()

	tier, err := domain.ParseLoyaltyTier(req.LoyaltyTier)
	if err != nil {
		return pricing.Summary{}, err
	}

	items := make([]domain.Item, 0, len(req.Items))
	for idx, input := range req.Items {
		item, err := toItem(input)
		if err != nil {
			return pricing.Summary{}, fmt.Errorf("items[%d]: %w", idx, err)
		}
		items = append(items, item)
	}

	created, err := s.repo.Create(ctx, domain.Cart{Items: items, LoyaltyTier: tier})
	if err != nil {
		return pricing.Summary{}, fmt.Errorf("create cart: %w", err)
	}

	s.metrics.RecordCartCreated()
	s.refreshActiveCarts(ctx)

	s.logger.WithFields(log.Fields{
		"cart_id":      created.ID,
		"items":        len(created.Items),
		"loyalty_tier": created.LoyaltyTier,
	}).Info("cart created")

	summary = s.summarize(created)
	s.publish(ctx, domain.CartEventCreated, summary, "")
	return summary, nil
}

// GetCartSummary пересчитывает итоги текущего состояния корзины.
func (s *Service) GetCartSummary(ctx context.Context, cartID string) (summary pricing.Summary, err error) {
	defer func() { s.metrics.RecordOperation(opGet, err) }()

	cart, err := s.repo.Get(ctx, cartID)
	if err != nil {
		return pricing.Summary{}, err
	}
	return s.summarize(cart), nil
}

// AddItem проверяет позицию и добавляет её в конец корзины.
func (s *Service) AddItem(ctx context.Context, cartID string, input ItemInput) (summary pricing.Summary, err error) {
	defer func() { s.metrics.RecordOperation(opAddItem, err) }()

	item, err := toItem(input)
	if err != nil {
		return pricing.Summary{}, err
	}

	cart, err := s.repo.AddItem(ctx, cartID, item)
	if err != nil {
		return pricing.Summary{}, err
	}

	var addedID string
	if n := len(cart.Items); n > 0 {
		addedID = cart.Items[n-1].ID
	}

	summary = s.summarize(cart)
	s.publish(ctx, domain.CartEventItemAdded, summary, addedID)
	return summary, nil
}

// RemoveItem удаляет позицию из корзины.
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID string) (summary pricing.Summary, err error) {
	defer func() { s.metrics.RecordOperation(opRemoveItem, err) }()

	if strings.TrimSpace(itemID) == "" {
		return pricing.Summary{}, domain.ErrItemIDRequired
	}

	cart, err := s.repo.RemoveItem(ctx, cartID, itemID)
	if err != nil {
		return pricing.Summary{}, err
	}

	summary = s.summarize(cart)
	s.publish(ctx, domain.CartEventItemRemoved, summary, itemID)
	return summary, nil
}

// UpdateItemQuantity меняет количество позиции; 0 удаляет позицию, отрицательное значение отклоняется.
func (s *Service) UpdateItemQuantity(ctx context.Context, cartID, itemID string, quantity int) (summary pricing.Summary, err error) {
	defer func() { s.metrics.RecordOperation(opUpdateQuantity, err) }()

	if strings.TrimSpace(itemID) == "" {
		return pricing.Summary{}, domain.ErrItemIDRequired
	}
	if quantity < 0 {
		return pricing.Summary{}, domain.ErrQuantityNegative
	}
	if quantity > domain.MaxItemQuantity {
		return pricing.Summary{}, domain.ErrItemQtyTooLarge
	}

	cart, err := s.repo.UpdateQuantity(ctx, cartID, itemID, quantity)
	if err != nil {
		return pricing.Summary{}, err
	}

	eventType := domain.CartEventQuantityUpdated
	if quantity == 0 {
		eventType = domain.CartEventItemRemoved
	}

	summary = s.summarize(cart)
	s.publish(ctx, eventType, summary, itemID)
	return summary, nil
}

// ClearCart удаляет все позиции, сохраняя корзину и уровень лояльности.
func (s *Service) ClearCart(ctx context.Context, cartID string) (summary pricing.Summary, err error) {
	defer func() { s.metrics.RecordOperation(opClear, err) }()

	cart, err := s.repo.ClearItems(ctx, cartID)
	if err != nil {
		return pricing.Summary{}, err
	}

	summary = s.summarize(cart)
	s.publish(ctx, domain.CartEventCleared, summary, "")
	return summary, nil
}

// DeleteCart удаляет корзину целиком.
func (s *Service) DeleteCart(ctx context.Context, cartID string) (err error) {
	defer func() { s.metrics.RecordOperation(opDelete, err) }()

	if err := s.repo.Delete(ctx, cartID); err != nil {
		return err
	}

	s.refreshActiveCarts(ctx)
	s.logger.WithField("cart_id", cartID).Info("cart deleted")
	s.publish(ctx, domain.CartEventDeleted, pricing.Summary{CartID: cartID, Total: decimal.Zero}, "")
	return nil
}

// ListCarts возвращает идентификаторы корзин в порядке создания.
func (s *Service) ListCarts(ctx context.Context) (ids []string, err error) {
	defer func() { s.metrics.RecordOperation(opList, err) }()

	ids, err = s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Stacking возвращает действующую политику совмещения скидок.
func (s *Service) Stacking() pricing.Stacking {
	return s.calculator.Stacking()
}

func (s *Service) summarize(cart domain.Cart) pricing.Summary {
	summary := s.calculator.Summarize(cart)

	for _, discount := range summary.Discounts {
		s.metrics.RecordDiscount(string(discount.Type))
	}
	total, _ := summary.Total.Float64()
	s.metrics.ObserveCartTotal(total)

	return summary
}

func (s *Service) publish(ctx context.Context, eventType domain.CartEventType, summary pricing.Summary, itemID string) {
	event := domain.CartEvent{
		Type:       eventType,
		CartID:     summary.CartID,
		ItemID:     itemID,
		ItemsCount: len(summary.Items),
		Total:      summary.Total,
		OccurredAt: s.now(),
	}

	// Событие отправляется даже если клиент уже отключился.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := s.publisher.Publish(pubCtx, event)
	s.metrics.RecordEventPublished(err)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"cart_id":    event.CartID,
			"event_type": event.Type,
		}).Warn("failed to publish cart event")
	}
}

func (s *Service) refreshActiveCarts(ctx context.Context) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		s.logger.WithError(err).Debug("failed to count carts")
		return
	}
	s.metrics.SetActiveCarts(count)
}

func toItem(input ItemInput) (domain.Item, error) {
	item := domain.Item{
		Name:      strings.TrimSpace(input.Name),
		UnitPrice: input.Price,
		Quantity:  input.Quantity,
	}

	var errs []error
	category, err := domain.ParseCategory(input.Category)
	if err != nil {
		errs = append(errs, err)
	} else {
		item.Category = category
	}

	for _, verr := range item.Validate() {
		// категорию уже проверили выше
		if errors.Is(verr, domain.ErrUnknownCategory) {
			continue
		}
		errs = append(errs, verr)
	}
	if len(errs) > 0 {
		return domain.Item{}, errors.Join(errs...)
	}

	item.UnitPrice = pricing.RoundCents(item.UnitPrice)
	return item, nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.CartEvent) error { return nil }
func (noopPublisher) Close() error                                    { return nil }

type noopMetrics struct{}

func (noopMetrics) RecordCartCreated()            {}
func (noopMetrics) RecordOperation(string, error) {}
func (noopMetrics) RecordDiscount(string)         {}
func (noopMetrics) RecordEventPublished(error)    {}
func (noopMetrics) ObserveCartTotal(float64)      {}
func (noopMetrics) SetActiveCarts(int)            {}
