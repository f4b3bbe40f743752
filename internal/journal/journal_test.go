package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/metrics"
	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/store"
	"github.com/roach88/fieldsync/internal/testutil"
)

func openStore(t *testing.T, path string) *store.Store {
	t.Helper()
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newJournal(t *testing.T, st *store.Store, opts ...Option) *Journal {
	t.Helper()
	clock := testutil.NewStepClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), time.Second)
	base := []Option{
		WithIDGenerator(testutil.NewSequenceGenerator("rec")),
		WithNow(clock.Now),
	}
	j := New(st, append(base, opts...)...)
	require.NoError(t, j.Init(context.Background()))
	return j
}

func workOrderRecord(t *testing.T, id string) model.RequestRecord {
	t.Helper()
	rec, err := model.NewRequestRecord(model.ObjectWorkOrder, model.OpCreate, model.WorkOrder{ID: id})
	require.NoError(t, err)
	return rec
}

func TestInit_EmptyStore(t *testing.T) {
	j := newJournal(t, openStore(t, filepath.Join(t.TempDir(), "j.db")))

	n, err := j.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	records, err := j.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAppend_BeforeInit(t *testing.T) {
	j := New(openStore(t, filepath.Join(t.TempDir(), "j.db")))
	_, err := j.Append(context.Background(), workOrderRecord(t, "wo-1"))
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestAppend_AssignsIDTimestampSeq(t *testing.T) {
	j := newJournal(t, openStore(t, filepath.Join(t.TempDir(), "j.db")))

	rec, err := j.Append(context.Background(), workOrderRecord(t, "wo-1"))
	require.NoError(t, err)
	assert.Equal(t, "rec-1", rec.ID)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), rec.Timestamp)
	assert.Equal(t, int64(1), rec.Seq)
}

func TestAppend_KeepsCallerID(t *testing.T) {
	j := newJournal(t, openStore(t, filepath.Join(t.TempDir(), "j.db")))

	in := workOrderRecord(t, "wo-1")
	in.ID = "mine"
	rec, err := j.Append(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "mine", rec.ID)
}

func TestAppend_RejectsInvalidOperation(t *testing.T) {
	j := newJournal(t, openStore(t, filepath.Join(t.TempDir(), "j.db")))

	in := workOrderRecord(t, "wo-1")
	in.Operation = "Delete"
	_, err := j.Append(context.Background(), in)
	require.Error(t, err)

	n, err := j.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestList_FIFOOrder(t *testing.T) {
	j := newJournal(t, openStore(t, filepath.Join(t.TempDir(), "j.db")))
	ctx := context.Background()

	for _, id := range []string{"wo-c", "wo-a", "wo-b"} {
		_, err := j.Append(ctx, workOrderRecord(t, id))
		require.NoError(t, err)
	}

	records, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "wo-c", records[0].PayloadID())
	assert.Equal(t, "wo-a", records[1].PayloadID())
	assert.Equal(t, "wo-b", records[2].PayloadID())
}

func TestInit_ResumesSeqAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.db")
	ctx := context.Background()

	st := openStore(t, path)
	j := newJournal(t, st)
	_, err := j.Append(ctx, workOrderRecord(t, "wo-1"))
	require.NoError(t, err)
	_, err = j.Append(ctx, workOrderRecord(t, "wo-2"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	reopened := New(openStore(t, path), WithIDGenerator(testutil.NewSequenceGenerator("next")))
	require.NoError(t, reopened.Init(ctx))
	rec, err := reopened.Append(ctx, workOrderRecord(t, "wo-3"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.Seq)

	records, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "wo-3", records[2].PayloadID())
}

func TestRemove_ByCorrelationID(t *testing.T) {
	j := newJournal(t, openStore(t, filepath.Join(t.TempDir(), "j.db")))
	ctx := context.Background()

	first, err := j.Append(ctx, workOrderRecord(t, "wo-1"))
	require.NoError(t, err)
	// Identical payload, different correlation id.
	_, err = j.Append(ctx, workOrderRecord(t, "wo-1"))
	require.NoError(t, err)

	require.NoError(t, j.Remove(ctx, first.ID))

	records, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "rec-2", records[0].ID)

	err = j.Remove(ctx, first.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestClear(t *testing.T) {
	collector := metrics.NewCollector("")
	j := newJournal(t, openStore(t, filepath.Join(t.TempDir(), "j.db")), WithRecorder(collector))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := j.Append(ctx, workOrderRecord(t, "wo"))
		require.NoError(t, err)
	}
	require.NoError(t, j.Clear(ctx))

	n, err := j.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAppend_ClampsBackwardClock(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(-time.Hour), base.Add(time.Minute)}
	next := 0
	j := newJournal(t, openStore(t, filepath.Join(t.TempDir(), "j.db")), WithNow(func() time.Time {
		now := times[next]
		next++
		return now
	}))
	ctx := context.Background()

	for _, id := range []string{"wo-1", "wo-2", "wo-3"} {
		_, err := j.Append(ctx, workOrderRecord(t, id))
		require.NoError(t, err)
	}

	records, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.True(t, base.Equal(records[1].Timestamp), "clamped to the previous record, got %s", records[1].Timestamp)
	assert.True(t, base.Add(time.Minute).Equal(records[2].Timestamp))
	for i := 1; i < len(records); i++ {
		assert.False(t, records[i].Timestamp.Before(records[i-1].Timestamp))
	}
}

func TestInit_ResumesLatestTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.db")
	ctx := context.Background()
	st := openStore(t, path)
	j := newJournal(t, st)
	first, err := j.Append(ctx, workOrderRecord(t, "wo-1"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	earlier := first.Timestamp.Add(-24 * time.Hour)
	reopened := New(openStore(t, path), WithNow(func() time.Time { return earlier }))
	require.NoError(t, reopened.Init(ctx))
	rec, err := reopened.Append(ctx, workOrderRecord(t, "wo-2"))
	require.NoError(t, err)
	assert.True(t, first.Timestamp.Equal(rec.Timestamp), "got %s", rec.Timestamp)
}

func TestHasPending(t *testing.T) {
	j := newJournal(t, openStore(t, filepath.Join(t.TempDir(), "j.db")))
	ctx := context.Background()
	rec, err := j.Append(ctx, workOrderRecord(t, "wo-1"))
	require.NoError(t, err)

	pending, err := j.HasPending(ctx, model.ObjectWorkOrder, "wo-1")
	require.NoError(t, err)
	assert.True(t, pending)

	pending, err = j.HasPending(ctx, model.ObjectLineItem, "wo-1")
	require.NoError(t, err)
	assert.False(t, pending, "kind must match")

	require.NoError(t, j.Remove(ctx, rec.ID))
	pending, err = j.HasPending(ctx, model.ObjectWorkOrder, "wo-1")
	require.NoError(t, err)
	assert.False(t, pending)
}
