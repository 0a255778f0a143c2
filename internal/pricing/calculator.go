package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

// Stacking задаёт политику совмещения скидок.
type Stacking string

const (
	// StackingAdditive: каждая скидка считается от подытога, суммы складываются.
	StackingAdditive Stacking = "additive"
	// StackingSequential: электроника, затем опт от остатка, затем лояльность от остатка.
	StackingSequential Stacking = "sequential"
)

// ParseStacking разбирает политику; пустая строка означает additive.
func ParseStacking(raw string) (Stacking, error) {
	switch Stacking(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StackingAdditive:
		return StackingAdditive, nil
	case StackingSequential:
		return StackingSequential, nil
	default:
		return "", fmt.Errorf("unsupported discount stacking %q (use additive|sequential)", raw)
	}
}

// Discount — одна применённая скидка.
type Discount struct {
	Type DiscountType
	// Percentage в процентах (15 означает 15%).
	Percentage decimal.Decimal
	Amount     decimal.Decimal
}

// ItemBreakdown — расчёт по одной позиции.
type ItemBreakdown struct {
	Item       domain.Item
	LineTotal  decimal.Decimal
	Discount   decimal.Decimal
	FinalTotal decimal.Decimal
}

// Summary — итоги корзины, пересчитываемые на каждый запрос.
type Summary struct {
	CartID      string
	LoyaltyTier domain.LoyaltyTier
	Items       []ItemBreakdown
	Subtotal    decimal.Decimal
	Discounts   []Discount
	Total       decimal.Decimal
}

// DiscountTotal возвращает сумму всех скидок.
func (s Summary) DiscountTotal() decimal.Decimal {
	total := decimal.Zero
	for _, d := range s.Discounts {
		total = total.Add(d.Amount)
	}
	return total
}

// Calculator применяет правила скидок согласно политике совмещения.
type Calculator struct {
	stacking Stacking
}

// NewCalculator создаёт калькулятор; неизвестная политика трактуется как additive.
func NewCalculator(stacking Stacking) *Calculator {
	if stacking != StackingSequential {
		stacking = StackingAdditive
	}
	return &Calculator{stacking: stacking}
}

// Stacking возвращает действующую политику.
func (c *Calculator) Stacking() Stacking {
	return c.stacking
}

// Summarize считает подытог, скидки и итог для снимка корзины.
func (c *Calculator) Summarize(cart domain.Cart) Summary {
	summary := Summary{
		CartID:      cart.ID,
		LoyaltyTier: cart.LoyaltyTier,
		Items:       make([]ItemBreakdown, 0, len(cart.Items)),
		Subtotal:    decimal.Zero,
		Discounts:   make([]Discount, 0, 3),
	}

	electronics := decimal.Zero
	for _, item := range cart.Items {
		line := item.LineTotal()
		discount := ElectronicsDiscount(item)
		summary.Items = append(summary.Items, ItemBreakdown{
			Item:       item,
			LineTotal:  line,
			Discount:   discount,
			FinalTotal: line.Sub(discount),
		})
		summary.Subtotal = summary.Subtotal.Add(line)
		electronics = electronics.Add(discount)
	}

	// База для опта и лояльности зависит от политики.
	bulkBase := summary.Subtotal
	if c.stacking == StackingSequential {
		bulkBase = summary.Subtotal.Sub(electronics)
	}
	bulk := BulkDiscount(bulkBase)

	loyaltyBase := summary.Subtotal
	if c.stacking == StackingSequential {
		loyaltyBase = bulkBase.Sub(bulk)
	}
	loyalty := LoyaltyDiscount(loyaltyBase, cart.LoyaltyTier)

	summary.Discounts = appendPositive(summary.Discounts, DiscountElectronics, electronicsPercent, electronics)
	summary.Discounts = appendPositive(summary.Discounts, DiscountBulk, bulkPercent, bulk)
	summary.Discounts = appendPositive(summary.Discounts, DiscountLoyalty, LoyaltyPercent(cart.LoyaltyTier), loyalty)

	total := summary.Subtotal.Sub(summary.DiscountTotal())
	if total.IsNegative() {
		total = decimal.Zero
	}
	summary.Total = total

	return summary
}

func appendPositive(dst []Discount, kind DiscountType, pct, amount decimal.Decimal) []Discount {
	if !amount.IsPositive() {
		return dst
	}
	return append(dst, Discount{Type: kind, Percentage: pct, Amount: amount})
}
