// Package service holds the domain managers. Each mutation validates its
// input, updates the aggregate, persists it, journals the change and then
// nudges the sync engine.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/fieldsync/internal/model"
)

// Aggregates is the slice of *aggregate.Store the services use.
type Aggregates interface {
	Get() model.Aggregate
	Set(ctx context.Context, agg model.Aggregate) error
	Update(ctx context.Context, fn func(*model.Aggregate) error) error
	Exclusive(fn func() error) error
}

// Journal is the slice of *journal.Journal the services use.
type Journal interface {
	Append(ctx context.Context, rec model.RequestRecord) (model.RequestRecord, error)
}

// Trigger starts a background sync pass. *engine.Engine implements it.
type Trigger interface {
	Trigger()
}

// Services bundles the managers over shared stores.
type Services struct {
	WorkOrders *WorkOrders
	Movements  *Movements
	LineItems  *LineItems
	MasterData *MasterData
}

// Option configures the services.
type Option func(*core)

// WithIDGenerator sets the entity id generator. Default: model.UUIDGenerator.
func WithIDGenerator(g model.IDGenerator) Option {
	return func(c *core) { c.ids = g }
}

// WithNow sets the clock for start/end timestamps. Default: time.Now.
func WithNow(now func() time.Time) Option {
	return func(c *core) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *core) { c.log = l }
}

// New wires the managers. trigger may be nil (no background sync).
func New(agg Aggregates, j Journal, trigger Trigger, opts ...Option) *Services {
	c := &core{
		agg:     agg,
		journal: j,
		trigger: trigger,
		ids:     model.UUIDGenerator{},
		now:     time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return &Services{
		WorkOrders: &WorkOrders{c},
		Movements:  &Movements{c},
		LineItems:  &LineItems{c},
		MasterData: &MasterData{c},
	}
}

// core is the state every manager shares.
//
// Whole mutations (aggregate write plus journal append) run under
// agg.Exclusive, so the journal order always matches the order the aggregate
// changed in and the sync engine never sees one half of a mutation.
type core struct {
	agg     Aggregates
	journal Journal
	trigger Trigger
	ids     model.IDGenerator
	now     func() time.Time
	log     zerolog.Logger
}

// change is one journal entry a mutation produces.
type change struct {
	kind    model.ObjectKind
	op      model.Operation
	payload any
}

// mutate runs fn on a copy of the aggregate. If fn succeeds the aggregate
// is persisted and the changes it returns are journaled in order, then a
// sync pass is requested.
func (c *core) mutate(ctx context.Context, fn func(agg *model.Aggregate) ([]change, error)) error {
	var changes []change
	err := c.agg.Exclusive(func() error {
		prev := c.agg.Get()
		if err := c.agg.Update(ctx, func(agg *model.Aggregate) error {
			var err error
			changes, err = fn(agg)
			return err
		}); err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		return c.enqueue(ctx, changes, &prev)
	})
	if err != nil {
		return err
	}
	if len(changes) > 0 {
		c.kick()
	}
	return nil
}

// enqueue journals changes. If the very first append fails nothing reached
// the journal, so the aggregate is restored to prev (when given).
func (c *core) enqueue(ctx context.Context, changes []change, prev *model.Aggregate) error {
	for i, ch := range changes {
		rec, err := model.NewRequestRecord(ch.kind, ch.op, ch.payload)
		if err == nil {
			_, err = c.journal.Append(ctx, rec)
		}
		if err != nil {
			if i == 0 && prev != nil {
				if rerr := c.agg.Set(ctx, *prev); rerr != nil {
					c.log.Error().Err(rerr).Msg("restore aggregate after journal failure")
				}
			}
			return fmt.Errorf("journal %s %s: %w", ch.op, ch.kind, err)
		}
	}
	return nil
}

// journalOnly appends changes without touching the aggregate.
func (c *core) journalOnly(ctx context.Context, changes ...change) error {
	if err := c.agg.Exclusive(func() error {
		return c.enqueue(ctx, changes, nil)
	}); err != nil {
		return err
	}
	c.kick()
	return nil
}

func (c *core) kick() {
	if c.trigger != nil {
		c.trigger.Trigger()
	}
}

func (c *core) newID(id string) string {
	if id != "" {
		return id
	}
	return c.ids.Generate()
}

// cascadeChanges turns the ids CascadeReject returned into Update changes,
// movements first, each in aggregate order.
func cascadeChanges(agg *model.Aggregate, movements, lineItems []string) []change {
	var out []change
	for _, id := range movements {
		if i := agg.MovementIndex(id); i >= 0 {
			out = append(out, change{model.ObjectMovement, model.OpUpdate, agg.Movements[i]})
		}
	}
	for _, id := range lineItems {
		if i := agg.LineItemIndex(id); i >= 0 {
			out = append(out, change{model.ObjectLineItem, model.OpUpdate, agg.LineItems[i]})
		}
	}
	return out
}

func transition(from, to model.Status) error {
	if !to.Valid() {
		return invalidf("status", "unknown status %q", to)
	}
	if _, err := model.Transition(from, to); err != nil {
		return &ValidationError{Field: "status", Reason: err.Error(), Err: err}
	}
	return nil
}
