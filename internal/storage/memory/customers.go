package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/customer"
)

type userRecord struct {
	ID      string
	Profile customer.Profile
}

type customerRepository struct {
	db *memdb.MemDB
}

func getProfile(txn *memdb.Txn, id uuid.UUID) (*customer.Profile, error) {
	raw, err := txn.First(tableUsers, indexID, id.String())
	if err != nil {
		return nil, fmt.Errorf("memory: failed to look up user %s: %w", id, err)
	}
	if raw == nil {
		return nil, customer.ErrCustomerNotFound
	}
	p := raw.(*userRecord).Profile
	return &p, nil
}

func (r *customerRepository) GetByID(_ context.Context, id uuid.UUID) (*customer.Profile, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()
	return getProfile(txn, id)
}

func (r *customerRepository) Ensure(_ context.Context, id uuid.UUID, role string) error {
	txn := r.db.Txn(true)
	defer txn.Abort()

	now := time.Now().UTC()
	p, err := getProfile(txn, id)
	switch {
	case err == nil:
		if p.Role == role {
			return nil
		}
		p.Role = role
		p.UpdatedAt = now
	case errors.Is(err, customer.ErrCustomerNotFound):
		p = &customer.Profile{ID: id, Username: id.String(), Role: role, CreatedAt: now, UpdatedAt: now}
	default:
		return err
	}

	if err := txn.Insert(tableUsers, &userRecord{ID: id.String(), Profile: *p}); err != nil {
		return fmt.Errorf("memory: failed to ensure user %s: %w", id, err)
	}
	txn.Commit()

	return nil
}

// PutProfile stores a full profile, replacing any existing one.
func (s *Store) PutProfile(p customer.Profile) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	if err := txn.Insert(tableUsers, &userRecord{ID: p.ID.String(), Profile: p}); err != nil {
		return fmt.Errorf("memory: failed to store user %s: %w", p.ID, err)
	}
	txn.Commit()

	return nil
}
