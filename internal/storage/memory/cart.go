package memory

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/cart"
)

type mirrorRecord struct {
	Key       string
	UserID    string
	ProductID int64
	Quantity  int
}

func mirrorKey(userID uuid.UUID, productID int64) string {
	return fmt.Sprintf("%s:%d", userID, productID)
}

type mirrorRepository struct {
	db *memdb.MemDB
}

func (r *mirrorRepository) Upsert(_ context.Context, userID uuid.UUID, productID int64, quantity int) error {
	txn := r.db.Txn(true)
	defer txn.Abort()

	record := &mirrorRecord{
		Key:       mirrorKey(userID, productID),
		UserID:    userID.String(),
		ProductID: productID,
		Quantity:  max(cart.MinQuantity, min(quantity, cart.MaxQuantity)),
	}
	if err := txn.Insert(tableCartItems, record); err != nil {
		return fmt.Errorf("memory: failed to upsert cart item %d for user %s: %w", productID, userID, err)
	}
	txn.Commit()

	return nil
}

func (r *mirrorRepository) Delete(_ context.Context, userID uuid.UUID, productID int64) error {
	txn := r.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(tableCartItems, indexID, mirrorKey(userID, productID)); err != nil {
		return fmt.Errorf("memory: failed to delete cart item %d for user %s: %w", productID, userID, err)
	}
	txn.Commit()

	return nil
}

func (r *mirrorRepository) DeleteAll(_ context.Context, userID uuid.UUID) error {
	txn := r.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(tableCartItems, indexUser, userID.String()); err != nil {
		return fmt.Errorf("memory: failed to clear cart items for user %s: %w", userID, err)
	}
	txn.Commit()

	return nil
}

func (r *mirrorRepository) List(_ context.Context, userID uuid.UUID) (cart.Cart, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableCartItems, indexUser, userID.String())
	if err != nil {
		return nil, fmt.Errorf("memory: failed to query cart items for user %s: %w", userID, err)
	}

	items := cart.Cart{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		record := raw.(*mirrorRecord)
		items[record.ProductID] = record.Quantity
	}

	return items, nil
}
