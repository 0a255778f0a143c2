package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
	"github.com/vladislavdragonenkov/shopcart/internal/pricing"
)

func item(name string, category domain.Category, price string, qty int) domain.Item {
	return domain.Item{
		ID:        name,
		Name:      name,
		Category:  category,
		UnitPrice: decimal.RequireFromString(price),
		Quantity:  qty,
	}
}

func cartOf(tier domain.LoyaltyTier, items ...domain.Item) domain.Cart {
	return domain.Cart{ID: "cart-1", LoyaltyTier: tier, Items: items}
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "expected %s, got %s", want, got)
}

func discountByType(summary pricing.Summary, kind pricing.DiscountType) (pricing.Discount, bool) {
	for _, d := range summary.Discounts {
		if d.Type == kind {
			return d, true
		}
	}
	return pricing.Discount{}, false
}

func TestSubtotal_IsExactSum(t *testing.T) {
	items := []domain.Item{
		item("a", domain.CategoryBooks, "19.99", 3),
		item("b", domain.CategoryOther, "0.01", 1),
		item("c", domain.CategoryClothing, "5", 7),
	}

	requireAmount(t, "94.98", pricing.Subtotal(items))
}

func TestElectronicsDiscount_Threshold(t *testing.T) {
	tests := []struct {
		name string
		item domain.Item
		want string
	}{
		{name: "quantity 2 does not qualify", item: item("tv", domain.CategoryElectronics, "10", 2), want: "0"},
		{name: "quantity 3 qualifies", item: item("tv", domain.CategoryElectronics, "10", 3), want: "4.50"},
		{name: "other category never qualifies", item: item("book", domain.CategoryBooks, "10", 10), want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireAmount(t, tt.want, pricing.ElectronicsDiscount(tt.item))
		})
	}
}

func TestBulkDiscount_Threshold(t *testing.T) {
	requireAmount(t, "0", pricing.BulkDiscount(decimal.RequireFromString("200.00")))
	requireAmount(t, "20.00", pricing.BulkDiscount(decimal.RequireFromString("200.01")))
	requireAmount(t, "30", pricing.BulkDiscount(decimal.NewFromInt(300)))
}

func TestLoyaltyPercent_Table(t *testing.T) {
	cases := map[domain.LoyaltyTier]string{
		domain.LoyaltyNone:            "0",
		domain.LoyaltyBronze:          "5",
		domain.LoyaltySilver:          "10",
		domain.LoyaltyGold:            "15",
		domain.LoyaltyTier("Diamond"): "0",
		domain.LoyaltyTier(""):        "0",
	}
	for tier, want := range cases {
		requireAmount(t, want, pricing.LoyaltyPercent(tier))
	}
}

func TestLoyaltyDiscount_RoundsHalfUp(t *testing.T) {
	// 5% от 10.10 = 0.505 -> 0.51
	requireAmount(t, "0.51", pricing.LoyaltyDiscount(decimal.RequireFromString("10.10"), domain.LoyaltyBronze))
}

func TestSummarize_EmptyCart(t *testing.T) {
	summary := pricing.NewCalculator(pricing.StackingAdditive).Summarize(cartOf(domain.LoyaltyGold))

	requireAmount(t, "0", summary.Subtotal)
	requireAmount(t, "0", summary.Total)
	assert.Empty(t, summary.Discounts)
	assert.Empty(t, summary.Items)
}

func TestSummarize_WorkedExample_Additive(t *testing.T) {
	cart := cartOf(domain.LoyaltyGold, item("laptop", domain.CategoryElectronics, "100", 3))
	summary := pricing.NewCalculator(pricing.StackingAdditive).Summarize(cart)

	requireAmount(t, "300", summary.Subtotal)
	require.Len(t, summary.Discounts, 3)
	assert.Equal(t, pricing.DiscountElectronics, summary.Discounts[0].Type)
	assert.Equal(t, pricing.DiscountBulk, summary.Discounts[1].Type)
	assert.Equal(t, pricing.DiscountLoyalty, summary.Discounts[2].Type)
	requireAmount(t, "45", summary.Discounts[0].Amount)
	requireAmount(t, "30", summary.Discounts[1].Amount)
	requireAmount(t, "45", summary.Discounts[2].Amount)
	requireAmount(t, "15", summary.Discounts[0].Percentage)
	requireAmount(t, "10", summary.Discounts[1].Percentage)
	requireAmount(t, "15", summary.Discounts[2].Percentage)
	requireAmount(t, "180", summary.Total)

	require.Len(t, summary.Items, 1)
	requireAmount(t, "300", summary.Items[0].LineTotal)
	requireAmount(t, "45", summary.Items[0].Discount)
	requireAmount(t, "255", summary.Items[0].FinalTotal)
}

func TestSummarize_WorkedExample_Sequential(t *testing.T) {
	cart := cartOf(domain.LoyaltyGold, item("laptop", domain.CategoryElectronics, "100", 3))
	summary := pricing.NewCalculator(pricing.StackingSequential).Summarize(cart)

	requireAmount(t, "300", summary.Subtotal)
	elec, ok := discountByType(summary, pricing.DiscountElectronics)
	require.True(t, ok)
	requireAmount(t, "45", elec.Amount)

	// 300 - 45 = 255 -> опт 25.50 -> 229.50 -> лояльность 34.425 ~ 34.43
	bulk, ok := discountByType(summary, pricing.DiscountBulk)
	require.True(t, ok)
	requireAmount(t, "25.50", bulk.Amount)

	loyalty, ok := discountByType(summary, pricing.DiscountLoyalty)
	require.True(t, ok)
	requireAmount(t, "34.43", loyalty.Amount)

	requireAmount(t, "195.07", summary.Total)
}

func TestSummarize_BulkBaseDependsOnStacking(t *testing.T) {
	// 70 * 3 = 210; электроника 31.50 -> остаток 178.50 не превышает 200.
	cart := cartOf(domain.LoyaltyNone, item("console", domain.CategoryElectronics, "70", 3))

	additive := pricing.NewCalculator(pricing.StackingAdditive).Summarize(cart)
	bulk, ok := discountByType(additive, pricing.DiscountBulk)
	require.True(t, ok, "additive policy evaluates bulk on the pre-discount subtotal")
	requireAmount(t, "21", bulk.Amount)
	requireAmount(t, "157.50", additive.Total)

	sequential := pricing.NewCalculator(pricing.StackingSequential).Summarize(cart)
	_, ok = discountByType(sequential, pricing.DiscountBulk)
	require.False(t, ok, "sequential policy evaluates bulk after item discounts")
	requireAmount(t, "178.50", sequential.Total)
}

func TestSummarize_BulkBoundary(t *testing.T) {
	calc := pricing.NewCalculator(pricing.StackingAdditive)

	exact := calc.Summarize(cartOf(domain.LoyaltyNone, item("book", domain.CategoryBooks, "100", 2)))
	_, ok := discountByType(exact, pricing.DiscountBulk)
	assert.False(t, ok, "subtotal == 200.00 must not trigger bulk discount")
	requireAmount(t, "200", exact.Total)

	above := calc.Summarize(cartOf(domain.LoyaltyNone, item("book", domain.CategoryBooks, "200.01", 1)))
	bulk, ok := discountByType(above, pricing.DiscountBulk)
	require.True(t, ok)
	requireAmount(t, "20.00", bulk.Amount)
	requireAmount(t, "180.01", above.Total)
}

func TestSummarize_ElectronicsPerLine(t *testing.T) {
	cart := cartOf(domain.LoyaltyNone,
		item("cable", domain.CategoryElectronics, "10", 3),
		item("mouse", domain.CategoryElectronics, "10", 2),
		item("shirt", domain.CategoryClothing, "10", 5),
	)
	summary := pricing.NewCalculator(pricing.StackingAdditive).Summarize(cart)

	elec, ok := discountByType(summary, pricing.DiscountElectronics)
	require.True(t, ok)
	requireAmount(t, "4.50", elec.Amount)
	requireAmount(t, "4.50", summary.Items[0].Discount)
	requireAmount(t, "0", summary.Items[1].Discount)
	requireAmount(t, "0", summary.Items[2].Discount)
	requireAmount(t, "95.50", summary.Total)
}

func TestSummarize_LoyaltyNoneHasNoLine(t *testing.T) {
	summary := pricing.NewCalculator(pricing.StackingAdditive).Summarize(
		cartOf(domain.LoyaltyNone, item("book", domain.CategoryBooks, "20", 1)),
	)

	assert.Empty(t, summary.Discounts)
	requireAmount(t, "20", summary.Total)
	requireAmount(t, "0", summary.DiscountTotal())
}

func TestSummarize_LoyaltyTiers(t *testing.T) {
	cases := map[domain.LoyaltyTier]string{
		domain.LoyaltyBronze: "95",
		domain.LoyaltySilver: "90",
		domain.LoyaltyGold:   "85",
	}
	calc := pricing.NewCalculator(pricing.StackingAdditive)
	for tier, wantTotal := range cases {
		summary := calc.Summarize(cartOf(tier, item("book", domain.CategoryBooks, "100", 1)))
		requireAmount(t, wantTotal, summary.Total)
	}
}

func TestParseStacking(t *testing.T) {
	got, err := pricing.ParseStacking("")
	require.NoError(t, err)
	assert.Equal(t, pricing.StackingAdditive, got)

	got, err = pricing.ParseStacking(" Sequential ")
	require.NoError(t, err)
	assert.Equal(t, pricing.StackingSequential, got)

	_, err = pricing.ParseStacking("exclusive")
	require.Error(t, err)
}

func TestNewCalculator_UnknownStackingFallsBackToAdditive(t *testing.T) {
	calc := pricing.NewCalculator(pricing.Stacking("weird"))
	assert.Equal(t, pricing.StackingAdditive, calc.Stacking())
}
