// Package memory keeps every marketplace table in a go-memdb database. It is
// used for local runs without Postgres and as the backend of service tests;
// write transactions are serialized, so checkout gets the same all-or-nothing
// behavior as the Postgres repositories.
package memory

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/cart"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/customer"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/order"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/report"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/session"
)

const (
	tableProducts  = "products"
	tableCartItems = "cart_items"
	tableOrders    = "orders"
	tableUsers     = "users"
	tableSessions  = "sessions"

	indexID       = "id"
	indexUser     = "user"
	indexNumber   = "number"
	indexCustomer = "customer"
	indexSlug     = "slug"
)

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableProducts: {
				Name: tableProducts,
				Indexes: map[string]*memdb.IndexSchema{
					indexID:   {Name: indexID, Unique: true, Indexer: &memdb.IntFieldIndex{Field: "ID"}},
					indexSlug: {Name: indexSlug, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Slug"}},
				},
			},
			tableCartItems: {
				Name: tableCartItems,
				Indexes: map[string]*memdb.IndexSchema{
					indexID:   {Name: indexID, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Key"}},
					indexUser: {Name: indexUser, Indexer: &memdb.StringFieldIndex{Field: "UserID"}},
				},
			},
			tableOrders: {
				Name: tableOrders,
				Indexes: map[string]*memdb.IndexSchema{
					indexID:       {Name: indexID, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					indexNumber:   {Name: indexNumber, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Number"}},
					indexCustomer: {Name: indexCustomer, Indexer: &memdb.StringFieldIndex{Field: "CustomerID"}},
				},
			},
			tableUsers: {
				Name: tableUsers,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {Name: indexID, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
				},
			},
			tableSessions: {
				Name: tableSessions,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {Name: indexID, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
				},
			},
		},
	}
}

type Store struct {
	db            *memdb.MemDB
	nextProductID atomic.Int64
}

func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("memory: failed to create database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Products() catalog.Repository {
	return &productRepository{store: s}
}

func (s *Store) CartMirror() cart.MirrorRepository {
	return &mirrorRepository{db: s.db}
}

func (s *Store) Orders() order.Repository {
	return &orderRepository{db: s.db}
}

func (s *Store) Customers() customer.Repository {
	return &customerRepository{db: s.db}
}

func (s *Store) Reports() report.Repository {
	return &reportRepository{db: s.db}
}

// Sessions returns a session store whose entries expire ttl after the last
// save. A zero ttl keeps sessions forever.
func (s *Store) Sessions(ttl time.Duration) session.Store {
	return &sessionStore{db: s.db, ttl: ttl}
}
