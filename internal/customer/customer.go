package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/order"
)

var ErrCustomerNotFound = errors.New("customer not found")

// Profile is the part of a user account the marketplace reads. Accounts are
// managed by the identity gateway; this service only records the ids it sees.
type Profile struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	FullName  string    `json:"full_name" db:"full_name"`
	Phone     string    `json:"phone" db:"phone"`
	City      string    `json:"city" db:"city"`
	State     string    `json:"state" db:"state"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ShippingDefaults pre-fills the checkout form.
func (p *Profile) ShippingDefaults() order.ShippingDetails {
	name := p.FullName
	if strings.TrimSpace(name) == "" {
		name = p.Username
	}
	return order.ShippingDetails{
		Name:  name,
		City:  p.City,
		State: p.State,
		Phone: p.Phone,
	}
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	// Ensure records a gateway-authenticated user so orders can reference it.
	// Existing profiles keep their details; only the role is refreshed.
	Ensure(ctx context.Context, id uuid.UUID, role string) error
}

type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresRepository struct {
	db DB
}

func NewRepository(db DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	query := `
		SELECT id, username, full_name, phone, city, state, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var p Profile
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Username,
		&p.FullName,
		&p.Phone,
		&p.City,
		&p.State,
		&p.Role,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("repository: failed to select user by id %s: %w", id, err)
	}

	return &p, nil
}

func (r *postgresRepository) Ensure(ctx context.Context, id uuid.UUID, role string) error {
	query := `
		INSERT INTO users (id, username, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, updated_at = now()
		WHERE users.role <> EXCLUDED.role
	`

	if _, err := r.db.Exec(ctx, query, id, id.String(), role); err != nil {
		return fmt.Errorf("repository: failed to ensure user %s: %w", id, err)
	}

	return nil
}
