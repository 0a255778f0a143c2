package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

// querier — общее подмножество *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type cartRepository struct {
	db    *sql.DB
	newID func() string
	now   func() time.Time
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
// Мутации одной корзины сериализуются блокировкой строки carts (SELECT ... FOR UPDATE).
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{
		db:    store.DB(),
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *cartRepository) Create(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	now := r.now()
	stored := cart.Clone()
	stored.ID = r.newID()
	stored.Version = 0
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.Items == nil {
		stored.Items = []domain.Item{}
	}
	if stored.LoyaltyTier == "" {
		stored.LoyaltyTier = domain.LoyaltyNone
	}
	for idx := range stored.Items {
		stored.Items[idx].ID = r.newID()
		stored.Items[idx].AddedAt = now
	}
	if errs := stored.ValidateInvariants(); len(errs) > 0 {
		return domain.Cart{}, errors.Join(errs...)
	}

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO carts (id, loyalty_tier, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`, stored.ID, string(stored.LoyaltyTier), stored.Version, stored.CreatedAt, stored.UpdatedAt); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrCartAlreadyExists
			}
			return fmt.Errorf("insert cart: %w", err)
		}

		for idx := range stored.Items {
			if err := insertItem(ctx, tx, stored.ID, int64(idx+1), stored.Items[idx]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}

	return stored, nil
}

func (r *cartRepository) Get(ctx context.Context, cartID string) (domain.Cart, error) {
	if strings.TrimSpace(cartID) == "" {
		return domain.Cart{}, domain.ErrCartIDRequired
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	return loadCart(ctx, r.db, cartID, false)
}

func (r *cartRepository) AddItem(ctx context.Context, cartID string, item domain.Item) (domain.Cart, error) {
	if errs := item.Validate(); len(errs) > 0 {
		return domain.Cart{}, errors.Join(errs...)
	}

	return r.mutate(ctx, cartID, func(ctx context.Context, tx *sql.Tx, cart *domain.Cart, now time.Time) error {
		var position int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), 0) + 1 FROM cart_items WHERE cart_id = $1`, cartID,
		).Scan(&position); err != nil {
			return fmt.Errorf("next item position: %w", err)
		}

		added := item
		added.ID = r.newID()
		added.AddedAt = now
		if err := insertItem(ctx, tx, cartID, position, added); err != nil {
			return err
		}
		cart.Items = append(cart.Items, added)
		return nil
	})
}

func (r *cartRepository) RemoveItem(ctx context.Context, cartID, itemID string) (domain.Cart, error) {
	return r.mutate(ctx, cartID, func(ctx context.Context, tx *sql.Tx, cart *domain.Cart, _ time.Time) error {
		idx, ok := cart.FindItem(itemID)
		if !ok {
			return domain.ErrItemNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, cartID); err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		return nil
	})
}

func (r *cartRepository) UpdateQuantity(ctx context.Context, cartID, itemID string, quantity int) (domain.Cart, error) {
	if quantity < 0 {
		return domain.Cart{}, domain.ErrQuantityNegative
	}
	if quantity > domain.MaxItemQuantity {
		return domain.Cart{}, domain.ErrItemQtyTooLarge
	}
	if quantity == 0 {
		return r.RemoveItem(ctx, cartID, itemID)
	}

	return r.mutate(ctx, cartID, func(ctx context.Context, tx *sql.Tx, cart *domain.Cart, _ time.Time) error {
		idx, ok := cart.FindItem(itemID)
		if !ok {
			return domain.ErrItemNotFound
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE cart_items SET quantity = $1 WHERE id = $2 AND cart_id = $3`, quantity, itemID, cartID,
		); err != nil {
			return fmt.Errorf("update item quantity: %w", err)
		}
		cart.Items[idx].Quantity = quantity
		return nil
	})
}

func (r *cartRepository) ClearItems(ctx context.Context, cartID string) (domain.Cart, error) {
	return r.mutate(ctx, cartID, func(ctx context.Context, tx *sql.Tx, cart *domain.Cart, _ time.Time) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return fmt.Errorf("clear cart items: %w", err)
		}
		cart.Items = []domain.Item{}
		return nil
	})
}

func (r *cartRepository) Delete(ctx context.Context, cartID string) error {
	if strings.TrimSpace(cartID) == "" {
		return domain.ErrCartIDRequired
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cart rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCartNotFound
	}
	return nil
}

func (r *cartRepository) List(ctx context.Context) ([]string, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT id FROM carts ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list carts: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cart id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate carts: %w", err)
	}
	return ids, nil
}

func (r *cartRepository) Count(ctx context.Context) (int, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM carts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count carts: %w", err)
	}
	return count, nil
}

// mutate блокирует строку корзины, применяет fn и увеличивает версию в одной транзакции.
func (r *cartRepository) mutate(
	ctx context.Context,
	cartID string,
	fn func(ctx context.Context, tx *sql.Tx, cart *domain.Cart, now time.Time) error,
) (domain.Cart, error) {
	if strings.TrimSpace(cartID) == "" {
		return domain.Cart{}, domain.ErrCartIDRequired
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var result domain.Cart
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		cart, err := loadCart(ctx, tx, cartID, true)
		if err != nil {
			return err
		}

		now := r.now()
		if err := fn(ctx, tx, &cart, now); err != nil {
			return err
		}

		cart.Version++
		cart.UpdatedAt = now
		if _, err := tx.ExecContext(ctx,
			`UPDATE carts SET version = $1, updated_at = $2 WHERE id = $3`, cart.Version, cart.UpdatedAt, cartID,
		); err != nil {
			return fmt.Errorf("bump cart version: %w", err)
		}

		result = cart
		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return result, nil
}

func (r *cartRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertItem(ctx context.Context, q querier, cartID string, position int64, item domain.Item) error {
	if _, err := q.ExecContext(ctx, `
		INSERT INTO cart_items (id, cart_id, position, name, category, unit_price, quantity, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, cartID, position, item.Name, string(item.Category), item.UnitPrice, item.Quantity, item.AddedAt); err != nil {
		return fmt.Errorf("insert cart item: %w", err)
	}
	return nil
}

func loadCart(ctx context.Context, q querier, cartID string, forUpdate bool) (domain.Cart, error) {
	query := `SELECT id, loyalty_tier, version, created_at, updated_at FROM carts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		cart    domain.Cart
		tierRaw string
	)
	if err := q.QueryRowContext(ctx, query, cartID).Scan(
		&cart.ID, &tierRaw, &cart.Version, &cart.CreatedAt, &cart.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}
	cart.LoyaltyTier = domain.LoyaltyTier(tierRaw)
	cart.CreatedAt = cart.CreatedAt.UTC()
	cart.UpdatedAt = cart.UpdatedAt.UTC()

	rows, err := q.QueryContext(ctx, `
		SELECT id, name, category, unit_price, quantity, added_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY position
	`, cartID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	cart.Items = make([]domain.Item, 0)
	for rows.Next() {
		var (
			item        domain.Item
			categoryRaw string
		)
		if err := rows.Scan(&item.ID, &item.Name, &categoryRaw, &item.UnitPrice, &item.Quantity, &item.AddedAt); err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart item: %w", err)
		}
		item.Category = domain.Category(categoryRaw)
		item.AddedAt = item.AddedAt.UTC()
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("iterate cart items: %w", err)
	}

	return cart, nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
