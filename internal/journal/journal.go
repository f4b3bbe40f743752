// Package journal is the durable FIFO of pending mutations. Records are
// appended by the domain services and removed by the sync engine once the
// remote service has confirmed them.
package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/fieldsync/internal/metrics"
	"github.com/roach88/fieldsync/internal/model"
)

var (
	// ErrRecordNotFound is returned by Remove for an unknown correlation id.
	ErrRecordNotFound = errors.New("journal record not found")

	// ErrNotInitialized is returned when the journal is used before Init.
	ErrNotInitialized = errors.New("journal not initialized")
)

// Storage is the persistence the journal needs. *store.Store implements it.
type Storage interface {
	AppendRecord(ctx context.Context, rec model.RequestRecord) error
	ListRecords(ctx context.Context) ([]model.RequestRecord, error)
	DeleteRecord(ctx context.Context, id string) (bool, error)
	ClearRecords(ctx context.Context) error
	CountRecords(ctx context.Context) (int, error)
	MaxSeq(ctx context.Context) (int64, error)
}

// Journal is the ordered queue of RequestRecords.
//
// INVARIANTS:
//   - Seq strictly increases in append order.
//   - Timestamp never decreases in append order. A device clock that steps
//     back is clamped to the previous record's timestamp, so ordering by
//     Timestamp (ties by Seq) is append order.
//
// Thread-safety: all methods are safe for concurrent use. Appends are
// serialised so seq order matches persisted order.
type Journal struct {
	mu    sync.Mutex
	st    Storage
	clock *Clock
	last  time.Time // latest appended timestamp
	ids   model.IDGenerator
	now   func() time.Time
	rec   metrics.Recorder
	log   zerolog.Logger
}

// Option configures a Journal.
type Option func(*Journal)

// WithIDGenerator sets the generator for record correlation ids.
// Default: model.UUIDGenerator.
func WithIDGenerator(g model.IDGenerator) Option {
	return func(j *Journal) { j.ids = g }
}

// WithNow sets the time source for record timestamps. Default: time.Now.
func WithNow(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// WithRecorder reports journal depth to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(j *Journal) { j.rec = r }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(j *Journal) { j.log = l }
}

// New creates a journal over st. Call Init before use.
func New(st Storage, opts ...Option) *Journal {
	j := &Journal{
		st:  st,
		ids: model.UUIDGenerator{},
		now: time.Now,
		rec: metrics.NewNoOpCollector(),
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Init prepares the journal, resuming the seq clock after the highest
// persisted record. A fresh store yields an empty queue.
func (j *Journal) Init(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	seq, err := j.st.MaxSeq(ctx)
	if err != nil {
		return fmt.Errorf("init journal: %w", err)
	}
	j.clock = NewClockAt(seq)

	records, err := j.st.ListRecords(ctx)
	if err != nil {
		return fmt.Errorf("init journal: %w", err)
	}
	j.last = time.Time{}
	for _, r := range records {
		if r.Timestamp.After(j.last) {
			j.last = r.Timestamp
		}
	}
	n := len(records)
	j.rec.RecordJournalDepth(n)
	j.log.Debug().Int("pending", n).Int64("seq", seq).Msg("journal initialized")
	return nil
}

// Append adds rec to the tail and persists it. Id and Timestamp are filled
// in when empty. Returns the record as stored.
func (j *Journal) Append(ctx context.Context, rec model.RequestRecord) (model.RequestRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.clock == nil {
		return model.RequestRecord{}, ErrNotInitialized
	}
	if !rec.Operation.Valid() {
		return model.RequestRecord{}, fmt.Errorf("append: invalid operation %q", rec.Operation)
	}
	if rec.ID == "" {
		rec.ID = j.ids.Generate()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = j.now().UTC()
	}
	if rec.Timestamp.Before(j.last) {
		j.log.Warn().
			Time("timestamp", rec.Timestamp).
			Time("previous", j.last).
			Msg("clock went backwards, clamping record timestamp")
		rec.Timestamp = j.last
	}
	rec.Seq = j.clock.Next()

	if err := j.st.AppendRecord(ctx, rec); err != nil {
		return model.RequestRecord{}, fmt.Errorf("append: %w", err)
	}
	j.last = rec.Timestamp

	j.log.Debug().
		Str("id", rec.ID).
		Str("object_kind", string(rec.ObjectKind)).
		Str("operation", string(rec.Operation)).
		Int64("seq", rec.Seq).
		Msg("journal append")
	j.reportDepth(ctx)
	return rec, nil
}

// List returns every pending record in insertion order.
func (j *Journal) List(ctx context.Context) ([]model.RequestRecord, error) {
	records, err := j.st.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	return records, nil
}

// HasPending reports whether any queued record targets the entity kind/id.
func (j *Journal) HasPending(ctx context.Context, kind model.ObjectKind, id string) (bool, error) {
	records, err := j.st.ListRecords(ctx)
	if err != nil {
		return false, fmt.Errorf("scan journal: %w", err)
	}
	for _, r := range records {
		if r.ObjectKind == kind && r.PayloadID() == id {
			return true, nil
		}
	}
	return false, nil
}

// Remove deletes the record with correlation id.
func (j *Journal) Remove(ctx context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	deleted, err := j.st.DeleteRecord(ctx, id)
	if err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	if !deleted {
		return fmt.Errorf("remove %s: %w", id, ErrRecordNotFound)
	}
	j.reportDepth(ctx)
	return nil
}

// Clear drops every pending record. Only logout with an explicit discard
// should call this.
func (j *Journal) Clear(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.st.ClearRecords(ctx); err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}
	j.log.Warn().Msg("journal cleared")
	j.rec.RecordJournalDepth(0)
	return nil
}

// Len returns the number of pending records.
func (j *Journal) Len(ctx context.Context) (int, error) {
	n, err := j.st.CountRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("journal length: %w", err)
	}
	return n, nil
}

func (j *Journal) reportDepth(ctx context.Context) {
	n, err := j.st.CountRecords(ctx)
	if err != nil {
		j.log.Warn().Err(err).Msg("journal depth unavailable")
		return
	}
	j.rec.RecordJournalDepth(n)
}
