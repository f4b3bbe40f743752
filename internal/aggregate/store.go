// Package aggregate holds the single in-memory copy of the domain aggregate
// and persists it whole on every change.
package aggregate

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/store"
)

// Persister reads and writes whole JSON documents. *store.Store implements it.
type Persister interface {
	ReadDocument(ctx context.Context, key string, v any) (bool, error)
	WriteDocument(ctx context.Context, key string, v any) error
}

// Store is the AggregateStore: a mutex-guarded aggregate backed by a Persister.
//
// Thread-safety: all methods are safe for concurrent use. Update holds the
// lock across the whole read-modify-write so overlapping callers serialise.
// Changes that also touch the journal run inside Exclusive.
type Store struct {
	tx      sync.Mutex // held by Exclusive
	mu      sync.Mutex
	p       Persister
	current model.Aggregate
	loaded  bool
}

// New creates a store over p. Call Load before first use.
func New(p Persister) *Store {
	return &Store{p: p, current: model.NewAggregate()}
}

// Load reads the persisted aggregate, or initialises an empty one if nothing
// has been stored yet.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg := model.NewAggregate()
	if _, err := s.p.ReadDocument(ctx, store.KeyAggregate, &agg); err != nil {
		return fmt.Errorf("load aggregate: %w", err)
	}
	normalise(&agg)
	s.current = agg
	s.loaded = true
	return nil
}

// Loaded reports whether Load has completed.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Exclusive runs fn while holding the change lock. Work that spans the
// aggregate and the journal (a mutation and the records it appends, or a
// confirmation and the pending check it depends on) runs inside Exclusive so
// two such changes never interleave. fn may call Get, Set and Update but
// must not call Exclusive.
func (s *Store) Exclusive(fn func() error) error {
	s.tx.Lock()
	defer s.tx.Unlock()
	return fn()
}

// Get returns a deep copy of the current aggregate.
func (s *Store) Get() model.Aggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Set replaces the aggregate and persists it. On a persistence error the
// in-memory value is left unchanged.
func (s *Store) Set(ctx context.Context, agg model.Aggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(ctx, agg)
}

// Update runs fn against a copy of the aggregate and persists the result.
// If fn returns an error nothing is written and the error is returned as is.
func (s *Store) Update(ctx context.Context, fn func(*model.Aggregate) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	return s.setLocked(ctx, next)
}

func (s *Store) setLocked(ctx context.Context, agg model.Aggregate) error {
	next := agg.Clone()
	normalise(&next)
	if err := s.p.WriteDocument(ctx, store.KeyAggregate, next); err != nil {
		return fmt.Errorf("persist aggregate: %w", err)
	}
	s.current = next
	return nil
}

// normalise replaces nil slices so the persisted JSON always has arrays.
func normalise(agg *model.Aggregate) {
	if agg.WorkOrders == nil {
		agg.WorkOrders = []model.WorkOrder{}
	}
	if agg.Movements == nil {
		agg.Movements = []model.Movement{}
	}
	if agg.LineItems == nil {
		agg.LineItems = []model.LineItem{}
	}
}
