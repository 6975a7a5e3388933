package cart

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MirrorRepository persists a signed-in user's cart so it can be recovered on
// another device. It is written best-effort alongside the session cart.
type MirrorRepository interface {
	Upsert(ctx context.Context, userID uuid.UUID, productID int64, quantity int) error
	Delete(ctx context.Context, userID uuid.UUID, productID int64) error
	DeleteAll(ctx context.Context, userID uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID) (Cart, error)
}

type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type postgresMirror struct {
	db DB
}

func NewMirrorRepository(db DB) MirrorRepository {
	return &postgresMirror{db: db}
}

func (r *postgresMirror) Upsert(ctx context.Context, userID uuid.UUID, productID int64, quantity int) error {
	query := `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()
	`

	_, err := r.db.Exec(ctx, query, userID, productID, clamp(quantity, MinQuantity, MaxQuantity))
	if err != nil {
		return fmt.Errorf("repository: failed to upsert cart item %d for user %s: %w", productID, userID, err)
	}

	return nil
}

func (r *postgresMirror) Delete(ctx context.Context, userID uuid.UUID, productID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete cart item %d for user %s: %w", productID, userID, err)
	}

	return nil
}

func (r *postgresMirror) DeleteAll(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("repository: failed to clear cart items for user %s: %w", userID, err)
	}

	return nil
}

func (r *postgresMirror) List(ctx context.Context, userID uuid.UUID) (Cart, error) {
	rows, err := r.db.Query(ctx, `SELECT product_id, quantity FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart items for user %s: %w", userID, err)
	}
	defer rows.Close()

	items := Cart{}
	for rows.Next() {
		var (
			productID int64
			quantity  int
		)
		if err := rows.Scan(&productID, &quantity); err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart item for user %s: %w", userID, err)
		}
		items[productID] = quantity
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating cart items for user %s: %w", userID, err)
	}

	return items, nil
}
