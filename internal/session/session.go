package session

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/cart"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	FlashSuccess = "success"
	FlashInfo    = "info"
	FlashWarning = "warning"
	FlashDanger  = "danger"

	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Session is the server-side state of one browsing session.
type Session struct {
	ID        string    `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role,omitempty"`
	Cart      cart.Cart `json:"cart"`
	Flashes   []Flash   `json:"flashes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

func New() (*Session, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Session{
		ID:        id.String(),
		Cart:      cart.Cart{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CartContext exposes the session cart to cart and checkout operations.
// Mutations made through the returned context are visible on the session.
func (s *Session) CartContext() *cart.Context {
	if s.Cart == nil {
		s.Cart = cart.Cart{}
	}
	return cart.NewContext(s.UserID, s.Cart)
}

func (s *Session) Authenticated() bool {
	return s.UserID != uuid.Nil
}

func (s *Session) IsAdmin() bool {
	return s.Authenticated() && s.Role == RoleAdmin
}

func (s *Session) AddFlash(category, message string) {
	s.Flashes = append(s.Flashes, Flash{Category: category, Message: message})
}

// PopFlashes returns pending flashes and forgets them.
func (s *Session) PopFlashes() []Flash {
	flashes := s.Flashes
	s.Flashes = nil
	if flashes == nil {
		return []Flash{}
	}
	return flashes
}

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session placed by Middleware, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}
