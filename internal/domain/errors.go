package domain

import "errors"

var (
	// ErrCartNotFound возвращается, если корзина не найдена в хранилище.
	ErrCartNotFound = errors.New("cart not found")
	// ErrItemNotFound возвращается, если позиции нет в корзине.
	ErrItemNotFound = errors.New("item not found in cart")
	// ErrCartAlreadyExists сигнализирует о коллизии идентификатора корзины.
	ErrCartAlreadyExists = errors.New("cart already exists")
	// ErrCartIDRequired — не передан идентификатор корзины.
	ErrCartIDRequired = errors.New("cart_id is required")
	// ErrItemIDRequired — не передан идентификатор позиции.
	ErrItemIDRequired = errors.New("item_id is required")
	// Ошибка пустого названия товара.
	ErrItemNameRequired = errors.New("item name is required")
	// Ошибка отрицательной цены позиции.
	ErrItemPriceNegative = errors.New("item price must be non-negative")
	// Ошибка слишком большой цены позиции.
	ErrItemPriceTooLarge = errors.New("item price must not exceed 999999999999.99")
	// Ошибка цены с лишними знаками после запятой.
	ErrItemPriceTooPrecise = errors.New("item price must have at most 8 decimal places")
	// ErrItemQtyTooLarge — количество не помещается в 32-битное целое.
	ErrItemQtyTooLarge = errors.New("item quantity must not exceed 2147483647")
	// Ошибка при некорректном количестве товара (< 1).
	ErrItemQtyInvalid = errors.New("item quantity must be at least 1")
	// ErrQuantityNegative — попытка установить отрицательное количество.
	ErrQuantityNegative = errors.New("quantity must be non-negative")
	// ErrItemIDDuplicate — два товара в корзине с одним ID.
	ErrItemIDDuplicate = errors.New("duplicate item id in cart")
	// ErrUnknownCategory — категория не из списка поддерживаемых.
	ErrUnknownCategory = errors.New("unknown product category")
	// ErrUnknownLoyaltyTier — неизвестный уровень лояльности.
	ErrUnknownLoyaltyTier = errors.New("unknown loyalty tier")
	// ErrMalformedPayload — тело запроса не удалось разобрать.
	ErrMalformedPayload = errors.New("malformed request payload")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound — запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использован тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ уже использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different payload")
	// ErrIdempotencyInProgress — запрос с этим ключом ещё обрабатывается.
	ErrIdempotencyInProgress = errors.New("request with the same idempotency key is still processing")

	// ErrEventPublish — ошибка публикации события корзины.
	ErrEventPublish = errors.New("cart event publish failed")
)

var invalidInputErrors = []error{
	ErrCartIDRequired,
	ErrItemIDRequired,
	ErrItemNameRequired,
	ErrItemPriceNegative,
	ErrItemPriceTooLarge,
	ErrItemPriceTooPrecise,
	ErrItemQtyInvalid,
	ErrItemQtyTooLarge,
	ErrQuantityNegative,
	ErrItemIDDuplicate,
	ErrUnknownCategory,
	ErrUnknownLoyaltyTier,
	ErrMalformedPayload,
	ErrIdempotencyKeyRequired,
}

// IsNotFound проверяет, относится ли ошибка к отсутствующей корзине или позиции.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCartNotFound) || errors.Is(err, ErrItemNotFound)
}

// IsInvalidInput проверяет, вызвана ли ошибка некорректными входными данными.
func IsInvalidInput(err error) bool {
	for _, target := range invalidInputErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict проверяет, является ли ошибка конфликтом состояния.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCartAlreadyExists) || IsIdempotencyConflict(err)
}

// IsIdempotencyConflict проверяет, является ли ошибка конфликтом idempotency-key.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) ||
		errors.Is(err, ErrIdempotencyHashMismatch) ||
		errors.Is(err, ErrIdempotencyInProgress)
}
