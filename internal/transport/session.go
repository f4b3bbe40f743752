package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/store"
)

// SessionStore holds the credential pair between runs.
type SessionStore interface {
	Load(ctx context.Context) (model.Session, error)
	Save(ctx context.Context, s model.Session) error
	Clear(ctx context.Context) error
}

// Documents is the slice of *store.Store the session store needs.
type Documents interface {
	ReadDocument(ctx context.Context, key string, v any) (bool, error)
	WriteDocument(ctx context.Context, key string, v any) error
	DeleteDocument(ctx context.Context, key string) error
}

// DocumentSessionStore keeps the session as the "session" document and
// caches it in memory.
type DocumentSessionStore struct {
	mu     sync.Mutex
	docs   Documents
	cached *model.Session
}

// NewDocumentSessionStore creates a session store over docs.
func NewDocumentSessionStore(docs Documents) *DocumentSessionStore {
	return &DocumentSessionStore{docs: docs}
}

// Load returns the stored session, or an empty one if nobody is logged in.
func (s *DocumentSessionStore) Load(ctx context.Context) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return *s.cached, nil
	}
	var sess model.Session
	if _, err := s.docs.ReadDocument(ctx, store.KeySession, &sess); err != nil {
		return model.Session{}, fmt.Errorf("load session: %w", err)
	}
	s.cached = &sess
	return sess, nil
}

// Save replaces the stored session.
func (s *DocumentSessionStore) Save(ctx context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.docs.WriteDocument(ctx, store.KeySession, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.cached = &sess
	return nil
}

// Clear removes the stored session.
func (s *DocumentSessionStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.docs.DeleteDocument(ctx, store.KeySession); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.cached = &model.Session{}
	return nil
}
