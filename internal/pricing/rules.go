// Package pricing содержит правила скидок и расчёт итогов корзины.
// Все функции чистые: результат зависит только от переданного снимка корзины.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

// DiscountType — тип скидки в разбивке итогов.
type DiscountType string

const (
	DiscountElectronics DiscountType = "electronics"
	DiscountBulk        DiscountType = "bulk"
	DiscountLoyalty     DiscountType = "loyalty"
)

// Электроника: скидка на позицию, если количество строго больше порога.
const electronicsQtyThreshold = 2

var (
	hundred = decimal.NewFromInt(100)

	electronicsPercent = decimal.NewFromInt(15)
	bulkPercent        = decimal.NewFromInt(10)
	// bulkThreshold сравнивается строго: ровно 200.00 скидку не даёт.
	bulkThreshold = decimal.NewFromInt(200)

	loyaltyPercents = map[domain.LoyaltyTier]decimal.Decimal{
		domain.LoyaltyNone:   decimal.Zero,
		domain.LoyaltyBronze: decimal.NewFromInt(5),
		domain.LoyaltySilver: decimal.NewFromInt(10),
		domain.LoyaltyGold:   decimal.NewFromInt(15),
	}
)

// RoundCents округляет сумму до центов (half-up для неотрицательных сумм).
func RoundCents(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// percentOf возвращает percent% от amount, округлённые до центов.
func percentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return RoundCents(amount.Mul(percent).Div(hundred))
}

// Subtotal суммирует price * quantity по всем позициям без округлений.
func Subtotal(items []domain.Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// ElectronicsEligible сообщает, попадает ли позиция под скидку на электронику.
func ElectronicsEligible(item domain.Item) bool {
	return item.Category == domain.CategoryElectronics && item.Quantity > electronicsQtyThreshold
}

// ElectronicsDiscount считает скидку на электронику от суммы позиции.
func ElectronicsDiscount(item domain.Item) decimal.Decimal {
	if !ElectronicsEligible(item) {
		return decimal.Zero
	}
	return percentOf(item.LineTotal(), electronicsPercent)
}

// BulkEligible сообщает, превышает ли сумма порог оптовой скидки.
func BulkEligible(amount decimal.Decimal) bool {
	return amount.GreaterThan(bulkThreshold)
}

// BulkDiscount считает оптовую скидку от amount.
func BulkDiscount(amount decimal.Decimal) decimal.Decimal {
	if !BulkEligible(amount) {
		return decimal.Zero
	}
	return percentOf(amount, bulkPercent)
}

// LoyaltyPercent возвращает процент скидки уровня лояльности; неизвестный уровень даёт 0.
func LoyaltyPercent(tier domain.LoyaltyTier) decimal.Decimal {
	if pct, ok := loyaltyPercents[tier]; ok {
		return pct
	}
	return decimal.Zero
}

// LoyaltyDiscount считает скидку лояльности от amount.
func LoyaltyDiscount(amount decimal.Decimal, tier domain.LoyaltyTier) decimal.Decimal {
	pct := LoyaltyPercent(tier)
	if pct.IsZero() {
		return decimal.Zero
	}
	return percentOf(amount, pct)
}
