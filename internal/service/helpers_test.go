package service

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/aggregate"
	"github.com/roach88/fieldsync/internal/journal"
	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/store"
	"github.com/roach88/fieldsync/internal/testutil"
)

type countingTrigger struct {
	n atomic.Int32
}

func (c *countingTrigger) Trigger() { c.n.Add(1) }

type env struct {
	svc     *Services
	agg     *aggregate.Store
	journal *journal.Journal
	trigger *countingTrigger
}

var epoch = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	agg := aggregate.New(st)
	require.NoError(t, agg.Load(ctx))

	clock := testutil.NewStepClock(epoch, time.Second)
	j := journal.New(st,
		journal.WithIDGenerator(testutil.NewSequenceGenerator("rec")),
		journal.WithNow(clock.Now),
	)
	require.NoError(t, j.Init(ctx))

	trig := &countingTrigger{}
	svc := New(agg, j, trig,
		WithIDGenerator(testutil.NewSequenceGenerator("id")),
		WithNow(func() time.Time { return epoch }),
	)
	return &env{svc: svc, agg: agg, journal: j, trigger: trig}
}

func (e *env) records(t *testing.T) []model.RequestRecord {
	t.Helper()
	recs, err := e.journal.List(context.Background())
	require.NoError(t, err)
	return recs
}

func (e *env) workOrder(t *testing.T) model.WorkOrder {
	t.Helper()
	wo, err := e.svc.WorkOrders.Create(context.Background(), model.WorkOrder{
		ServiceType: model.ServiceCollection,
		ResourceID:  "truck-7",
		Title:       "Route 7",
	})
	require.NoError(t, err)
	return wo
}

// pendingItem creates a line item awaiting explicit approval.
func (e *env) pendingItem(t *testing.T, workOrderID, movementID string, qty string) model.LineItem {
	t.Helper()
	li, err := e.svc.LineItems.Create(context.Background(), model.LineItem{
		WorkOrderID: workOrderID,
		MovementID:  movementID,
		MaterialID:  "mat-plastic",
		Quantity:    decimal.RequireFromString(qty),
		Direction:   model.DirectionInput,
		Status:      model.StatusPending,
	})
	require.NoError(t, err)
	return li
}
