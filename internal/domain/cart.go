package domain

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category описывает товарную категорию позиции корзины.
type Category string

const (
	// CategoryElectronics — электроника, участвует в скидке за количество.
	CategoryElectronics Category = "Electronics"
	// CategoryBooks — книги.
	CategoryBooks Category = "Books"
	// CategoryClothing — одежда.
	CategoryClothing Category = "Clothing"
	// CategoryOther — всё остальное.
	CategoryOther Category = "Other"
)

var knownCategories = []Category{CategoryElectronics, CategoryBooks, CategoryClothing, CategoryOther}

// Valid проверяет, что категория относится к поддерживаемым значениям.
func (c Category) Valid() bool {
	for _, known := range knownCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory приводит строку к каноничному виду категории без учёта регистра.
func ParseCategory(raw string) (Category, error) {
	raw = strings.TrimSpace(raw)
	for _, known := range knownCategories {
		if strings.EqualFold(raw, string(known)) {
			return known, nil
		}
	}
	return "", ErrUnknownCategory
}

// LoyaltyTier — уровень программы лояльности покупателя.
type LoyaltyTier string

const (
	LoyaltyNone   LoyaltyTier = "None"
	LoyaltyBronze LoyaltyTier = "Bronze"
	LoyaltySilver LoyaltyTier = "Silver"
	LoyaltyGold   LoyaltyTier = "Gold"
)

var knownTiers = []LoyaltyTier{LoyaltyNone, LoyaltyBronze, LoyaltySilver, LoyaltyGold}

// Valid проверяет, что уровень лояльности известен.
func (t LoyaltyTier) Valid() bool {
	for _, known := range knownTiers {
		if t == known {
			return true
		}
	}
	return false
}

// ParseLoyaltyTier разбирает уровень лояльности; пустая строка означает None.
func ParseLoyaltyTier(raw string) (LoyaltyTier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return LoyaltyNone, nil
	}
	for _, known := range knownTiers {
		if strings.EqualFold(raw, string(known)) {
			return known, nil
		}
	}
	return "", ErrUnknownLoyaltyTier
}

// Границы значений позиции; совпадают с колонками NUMERIC(14,2) и INTEGER в PostgreSQL.
const (
	MaxItemQuantity = math.MaxInt32

	maxPriceIntegerDigits = 12

	// maxPriceScale ограничивает число знаков после запятой во входной цене.
	maxPriceScale = 8
)

// MaxUnitPrice — наибольшая допустимая цена за единицу.
var MaxUnitPrice = decimal.RequireFromString("999999999999.99")

// Item представляет одну позицию корзины.
type Item struct {
	// ID генерируется хранилищем при добавлении позиции в корзину.
	ID       string
	Name     string
	Category Category
	// UnitPrice — цена за единицу, округлённая до центов.
	UnitPrice decimal.Decimal
	Quantity  int
	AddedAt   time.Time
}

// LineTotal возвращает стоимость позиции без скидок: price * quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Validate проверяет поля позиции и возвращает список нарушений.
func (i *Item) Validate() []error {
	var errs []error

	if strings.TrimSpace(i.Name) == "" {
		errs = append(errs, ErrItemNameRequired)
	}
	if !i.Category.Valid() {
		errs = append(errs, ErrUnknownCategory)
	}
	if i.UnitPrice.IsNegative() {
		errs = append(errs, ErrItemPriceNegative)
	} else if err := validatePriceBounds(i.UnitPrice); err != nil {
		errs = append(errs, err)
	}
	if i.Quantity < 1 {
		errs = append(errs, ErrItemQtyInvalid)
	} else if i.Quantity > MaxItemQuantity {
		errs = append(errs, ErrItemQtyTooLarge)
	}

	return errs
}

// validatePriceBounds отсекает огромные и сверхточные цены по экспоненте и числу цифр,
// не раскрывая decimal в полное big.Int.
func validatePriceBounds(price decimal.Decimal) error {
	if price.Exponent() < -maxPriceScale {
		return ErrItemPriceTooPrecise
	}
	if int64(price.NumDigits())+int64(price.Exponent()) > maxPriceIntegerDigits {
		return ErrItemPriceTooLarge
	}
	// 999999999999.995 после округления до центов уже не помещается.
	if price.Round(2).GreaterThan(MaxUnitPrice) {
		return ErrItemPriceTooLarge
	}
	return nil
}

// Cart агрегирует позиции и уровень лояльности покупателя.
type Cart struct {
	ID          string
	Items       []Item
	LoyaltyTier LoyaltyTier
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValidateInvariants проверяет инварианты корзины целиком.
func (c *Cart) ValidateInvariants() []error {
	var errs []error

	if !c.LoyaltyTier.Valid() {
		errs = append(errs, ErrUnknownLoyaltyTier)
	}
	seen := make(map[string]struct{}, len(c.Items))
	for idx := range c.Items {
		errs = append(errs, c.Items[idx].Validate()...)
		if id := c.Items[idx].ID; id != "" {
			if _, dup := seen[id]; dup {
				errs = append(errs, ErrItemIDDuplicate)
			}
			seen[id] = struct{}{}
		}
	}

	return errs
}

// FindItem возвращает индекс позиции с указанным ID.
func (c *Cart) FindItem(itemID string) (int, bool) {
	for idx := range c.Items {
		if c.Items[idx].ID == itemID {
			return idx, true
		}
	}
	return -1, false
}

// Clone возвращает глубокую копию корзины, чтобы хранилище не делило срез позиций с вызывающим.
func (c Cart) Clone() Cart {
	dst := c
	if c.Items != nil {
		dst.Items = make([]Item, len(c.Items))
		copy(dst.Items, c.Items)
	}
	return dst
}
