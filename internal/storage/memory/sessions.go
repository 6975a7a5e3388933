package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/vasiliy-maslov/agrifarma-marketplace/internal/session"
)

// sessionRecord holds the encoded session so readers never share the cart
// map with the stored copy.
type sessionRecord struct {
	ID        string
	Data      []byte
	ExpiresAt time.Time
}

type sessionStore struct {
	db  *memdb.MemDB
	ttl time.Duration
}

func (s *sessionStore) Get(_ context.Context, id string) (*session.Session, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableSessions, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("memory: failed to look up session %s: %w", id, err)
	}
	if raw == nil {
		return nil, session.ErrSessionNotFound
	}

	record := raw.(*sessionRecord)
	if !record.ExpiresAt.IsZero() && time.Now().After(record.ExpiresAt) {
		return nil, session.ErrSessionNotFound
	}

	var sess session.Session
	if err := json.Unmarshal(record.Data, &sess); err != nil {
		return nil, fmt.Errorf("memory: failed to decode session %s: %w", id, err)
	}

	return &sess, nil
}

func (s *sessionStore) Save(_ context.Context, sess *session.Session) error {
	sess.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("memory: failed to encode session %s: %w", sess.ID, err)
	}

	record := &sessionRecord{ID: sess.ID, Data: data}
	if s.ttl > 0 {
		record.ExpiresAt = sess.UpdatedAt.Add(s.ttl)
	}

	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tableSessions, record); err != nil {
		return fmt.Errorf("memory: failed to save session %s: %w", sess.ID, err)
	}
	txn.Commit()

	return nil
}

func (s *sessionStore) Delete(_ context.Context, id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(tableSessions, indexID, id); err != nil {
		return fmt.Errorf("memory: failed to delete session %s: %w", id, err)
	}
	txn.Commit()

	return nil
}
