package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/fieldsync/internal/model"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a journal record with minimal required fields.
func createTestRecord(id string, seq int64) model.RequestRecord {
	return model.RequestRecord{
		ObjectKind: model.ObjectWorkOrder,
		Operation:  model.OpCreate,
		Payload:    json.RawMessage(`{"id":"` + id + `"}`),
		Timestamp:  time.Date(2024, 5, 1, 10, 0, int(seq), 0, time.UTC),
		ID:         id,
		Seq:        seq,
	}
}
