package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/roach88/fieldsync/internal/metrics"
	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/transport"
)

// Transport is the slice of *transport.Client the engine uses.
type Transport interface {
	Post(ctx context.Context, path string, body any) (*transport.Response, error)
	Put(ctx context.Context, path string, body any) (*transport.Response, error)
}

// Journal is the slice of *journal.Journal the engine uses.
type Journal interface {
	List(ctx context.Context) ([]model.RequestRecord, error)
	Remove(ctx context.Context, id string) error
	HasPending(ctx context.Context, kind model.ObjectKind, id string) (bool, error)
}

// Aggregates is the slice of *aggregate.Store the engine uses.
type Aggregates interface {
	Get() model.Aggregate
	Update(ctx context.Context, fn func(*model.Aggregate) error) error
	Exclusive(fn func() error) error
}

// Result summarises one replay pass.
type Result struct {
	Sent      int // records confirmed and removed
	Remaining int // records still journaled
	Duration  time.Duration
}

// Engine is the SyncEngine: it replays the journal against the remote
// service in FIFO order and stops at the first failure.
//
// Thread-safety model:
//   - UploadData(): safe from any goroutine; overlapping calls get ErrSyncInProgress
//   - Trigger(): safe from any goroutine, never blocks
//   - Run(): must be called from exactly one goroutine
//
// INVARIANTS:
//   - Records are sent strictly one at a time, in journal order
//   - A record leaves the journal only after the server confirmed it
//   - After a failure no later record is sent in the same pass
type Engine struct {
	transport  Transport
	journal    Journal
	aggregates Aggregates
	rec        metrics.Recorder
	log        zerolog.Logger
	running    atomic.Bool
	wake       *signal
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) EngineOption {
	return func(e *Engine) { e.rec = r }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// New creates an Engine over the given collaborators.
func New(t Transport, j Journal, a Aggregates, opts ...EngineOption) *Engine {
	e := &Engine{
		transport:  t,
		journal:    j,
		aggregates: a,
		rec:        metrics.NewNoOpCollector(),
		log:        zerolog.Nop(),
		wake:       newSignal(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UploadData runs one replay pass. It returns nil only if every journaled
// record was confirmed; otherwise a *SyncError names the record that failed.
func (e *Engine) UploadData(ctx context.Context) (Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Result{}, ErrSyncInProgress
	}
	defer e.running.Store(false)

	start := time.Now()
	res, err := e.upload(ctx)
	res.Duration = time.Since(start)
	e.rec.RecordSyncPass(res.Sent, res.Duration, err)
	return res, err
}

func (e *Engine) upload(ctx context.Context) (Result, error) {
	records, err := e.journal.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("upload: %w", err)
	}
	// The journal never lets timestamps go backwards, so this matches seq
	// order; ties keep seq order.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	if len(records) == 0 {
		return Result{}, nil
	}
	e.log.Info().Int("pending", len(records)).Msg("sync pass starting")

	var res Result
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			res.Remaining = len(records) - i
			return res, newSyncError(rec, err)
		}

		if err := e.replay(ctx, rec); err != nil {
			res.Remaining = len(records) - i
			e.log.Warn().
				Err(err).
				Str("record", rec.ID).
				Str("object_kind", string(rec.ObjectKind)).
				Str("operation", string(rec.Operation)).
				Int("remaining", res.Remaining).
				Msg("sync pass stopped")
			return res, newSyncError(rec, err)
		}
		res.Sent++
		e.rec.RecordRecordSynced(string(rec.ObjectKind))
	}

	e.log.Info().Int("sent", res.Sent).Msg("sync pass complete")
	return res, nil
}

// replay sends one record, removes it from the journal and marks the entity
// confirmed.
func (e *Engine) replay(ctx context.Context, rec model.RequestRecord) error {
	localID := rec.PayloadID()
	resp, err := e.dispatch(ctx, rec, e.remoteID(rec.ObjectKind, localID))
	if err != nil {
		return err
	}

	if err := e.journal.Remove(ctx, rec.ID); err != nil {
		return fmt.Errorf("confirmed but not removed: %w", err)
	}

	e.log.Debug().
		Str("record", rec.ID).
		Str("object_kind", string(rec.ObjectKind)).
		Str("operation", string(rec.Operation)).
		Int("status", resp.Status).
		Msg("record confirmed")

	if localID == "" {
		return nil
	}
	remoteID := ""
	if rec.Operation == model.OpCreate {
		remoteID = resp.ID()
	}
	// Synced is decided against the live journal under the change lock: a
	// mutation made while this record was in flight has either fully landed
	// (and is seen as pending) or not started.
	if err := e.aggregates.Exclusive(func() error {
		pending, err := e.journal.HasPending(ctx, rec.ObjectKind, localID)
		if err != nil {
			return err
		}
		return e.aggregates.Update(ctx, func(agg *model.Aggregate) error {
			markConfirmed(agg, rec.ObjectKind, localID, remoteID, !pending)
			return nil
		})
	}); err != nil {
		// The record is gone from the journal; the bookkeeping flags are
		// advisory, so the pass continues.
		e.log.Error().Err(err).Str("record", rec.ID).Msg("mark confirmed")
	}
	return nil
}

// remoteID returns the server id of a stored entity, or "".
func (e *Engine) remoteID(kind model.ObjectKind, id string) string {
	if id == "" {
		return ""
	}
	agg := e.aggregates.Get()
	switch kind {
	case model.ObjectWorkOrder:
		if i := agg.WorkOrderIndex(id); i >= 0 {
			return agg.WorkOrders[i].RemoteID
		}
	case model.ObjectMovement:
		if i := agg.MovementIndex(id); i >= 0 {
			return agg.Movements[i].RemoteID
		}
	case model.ObjectLineItem:
		if i := agg.LineItemIndex(id); i >= 0 {
			return agg.LineItems[i].RemoteID
		}
	}
	return ""
}

// markConfirmed records the server id and sync state on the entity.
// Master data is not stored in the aggregate and is ignored.
func markConfirmed(agg *model.Aggregate, kind model.ObjectKind, id, remoteID string, synced bool) {
	switch kind {
	case model.ObjectWorkOrder:
		if i := agg.WorkOrderIndex(id); i >= 0 {
			wo := &agg.WorkOrders[i]
			if remoteID != "" {
				wo.RemoteID = remoteID
			}
			wo.Synced = synced
		}
	case model.ObjectMovement:
		if i := agg.MovementIndex(id); i >= 0 {
			m := &agg.Movements[i]
			if remoteID != "" {
				m.RemoteID = remoteID
			}
			m.Synced = synced
		}
	case model.ObjectLineItem:
		if i := agg.LineItemIndex(id); i >= 0 {
			li := &agg.LineItems[i]
			if remoteID != "" {
				li.RemoteID = remoteID
			}
			li.Synced = synced
		}
	}
}

// Trigger requests a replay pass from the Run loop. It never blocks and
// never reports failure; a burst of triggers yields one pass.
func (e *Engine) Trigger() {
	e.wake.Notify()
}

// Run is the background loop: one UploadData per trigger. Failures are
// logged, not returned. Blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info().Msg("sync loop starting")
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("sync loop stopping: context cancelled")
			return ctx.Err()
		case <-e.wake.Wait():
			e.runPass(ctx)
		}
	}
}

func (e *Engine) runPass(ctx context.Context) {
	res, err := e.UploadData(ctx)
	switch {
	case err == nil:
		return
	case errors.Is(err, ErrSyncInProgress):
		e.log.Debug().Msg("sync pass skipped: already running")
	case errors.Is(err, context.Canceled):
		e.log.Debug().Msg("sync pass cancelled")
	default:
		e.log.Error().Err(err).Int("sent", res.Sent).Int("remaining", res.Remaining).Msg("sync pass failed")
	}
}

// Schedule triggers a pass on the cron spec (standard five fields or a
// descriptor such as "@every 5m") until ctx is cancelled.
func (e *Engine) Schedule(ctx context.Context, spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, e.Trigger); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	c.Start()
	e.log.Info().Str("schedule", spec).Msg("periodic sync scheduled")

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
