package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

// cartEntry хранит корзину и собственный мьютекс, чтобы мутации разных корзин не блокировали друг друга.
type cartEntry struct {
	mu      sync.Mutex
	cart    domain.Cart
	removed bool
}

type cartRepositoryInMemory struct {
	mu    sync.RWMutex
	carts map[string]*cartEntry
	// order хранит идентификаторы в порядке создания.
	order []string

	newID func() string
	now   func() time.Time
}

// NewCartRepository создаёт in-memory реализацию CartRepository.
func NewCartRepository() domain.CartRepository {
	return newCartRepository()
}

func newCartRepository() *cartRepositoryInMemory {
	return &cartRepositoryInMemory{
		carts: make(map[string]*cartEntry),
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *cartRepositoryInMemory) Create(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return domain.Cart{}, err
	}

	now := r.now()
	stored := cart.Clone()
	stored.Version = 0
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.Items == nil {
		stored.Items = []domain.Item{}
	}
	if stored.LoyaltyTier == "" {
		stored.LoyaltyTier = domain.LoyaltyNone
	}
	for i := range stored.Items {
		stored.Items[i].ID = r.newID()
		stored.Items[i].AddedAt = now
	}
	if errs := stored.ValidateInvariants(); len(errs) > 0 {
		return domain.Cart{}, errors.Join(errs...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored.ID = r.newID()
	if _, exists := r.carts[stored.ID]; exists {
		return domain.Cart{}, domain.ErrCartAlreadyExists
	}

	r.carts[stored.ID] = &cartEntry{cart: stored}
	r.order = append(r.order, stored.ID)

	return stored.Clone(), nil
}

func (r *cartRepositoryInMemory) Get(ctx context.Context, cartID string) (domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return domain.Cart{}, err
	}

	entry, err := r.entry(cartID)
	if err != nil {
		return domain.Cart{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.removed {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return entry.cart.Clone(), nil
}

func (r *cartRepositoryInMemory) AddItem(ctx context.Context, cartID string, item domain.Item) (domain.Cart, error) {
	return r.mutate(ctx, cartID, func(cart *domain.Cart, now time.Time) error {
		added := item
		added.ID = r.newID()
		added.AddedAt = now
		cart.Items = append(cart.Items, added)
		return nil
	})
}

func (r *cartRepositoryInMemory) RemoveItem(ctx context.Context, cartID, itemID string) (domain.Cart, error) {
	return r.mutate(ctx, cartID, func(cart *domain.Cart, _ time.Time) error {
		idx, ok := cart.FindItem(itemID)
		if !ok {
			return domain.ErrItemNotFound
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		return nil
	})
}

func (r *cartRepositoryInMemory) UpdateQuantity(ctx context.Context, cartID, itemID string, quantity int) (domain.Cart, error) {
	if quantity < 0 {
		return domain.Cart{}, domain.ErrQuantityNegative
	}
	if quantity > domain.MaxItemQuantity {
		return domain.Cart{}, domain.ErrItemQtyTooLarge
	}

	return r.mutate(ctx, cartID, func(cart *domain.Cart, _ time.Time) error {
		idx, ok := cart.FindItem(itemID)
		if !ok {
			return domain.ErrItemNotFound
		}
		if quantity == 0 {
			cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
			return nil
		}
		cart.Items[idx].Quantity = quantity
		return nil
	})
}

func (r *cartRepositoryInMemory) ClearItems(ctx context.Context, cartID string) (domain.Cart, error) {
	return r.mutate(ctx, cartID, func(cart *domain.Cart, _ time.Time) error {
		cart.Items = []domain.Item{}
		return nil
	})
}

func (r *cartRepositoryInMemory) Delete(ctx context.Context, cartID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return domain.ErrCartIDRequired
	}

	r.mu.Lock()
	entry, ok := r.carts[cartID]
	if !ok {
		r.mu.Unlock()
		return domain.ErrCartNotFound
	}
	delete(r.carts, cartID)
	for i, id := range r.order {
		if id == cartID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	// Мутация, уже получившая entry, увидит флаг и вернёт ErrCartNotFound.
	entry.mu.Lock()
	entry.removed = true
	entry.mu.Unlock()

	return nil
}

func (r *cartRepositoryInMemory) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids, nil
}

func (r *cartRepositoryInMemory) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.carts), nil
}

func (r *cartRepositoryInMemory) entry(cartID string) (*cartEntry, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return nil, domain.ErrCartIDRequired
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.carts[cartID]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	return entry, nil
}

// mutate применяет fn к копии корзины под мьютексом корзины.
// Если fn вернула ошибку или результат нарушает инварианты корзины, сохранённое состояние не меняется.
func (r *cartRepositoryInMemory) mutate(ctx context.Context, cartID string, fn func(cart *domain.Cart, now time.Time) error) (domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return domain.Cart{}, err
	}

	entry, err := r.entry(cartID)
	if err != nil {
		return domain.Cart{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.removed {
		return domain.Cart{}, domain.ErrCartNotFound
	}

	now := r.now()
	next := entry.cart.Clone()
	if err := fn(&next, now); err != nil {
		return domain.Cart{}, err
	}
	if errs := next.ValidateInvariants(); len(errs) > 0 {
		return domain.Cart{}, errors.Join(errs...)
	}
	next.Version++
	next.UpdatedAt = now
	entry.cart = next

	return next.Clone(), nil
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
