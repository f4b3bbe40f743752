package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Fixed storage identifiers for whole-value documents.
const (
	KeyAggregate = "aggregate"
	KeySession   = "session"
)

// ReadDocument loads the JSON document stored under key into v.
// Returns found=false (and leaves v untouched) if no document exists.
func (s *Store) ReadDocument(ctx context.Context, key string, v any) (found bool, err error) {
	var raw string
	err = s.db.GetContext(ctx, &raw, `SELECT value FROM documents WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read document %q: %w", key, err)
	}

	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("read document %q: unmarshal: %w", key, err)
	}
	return true, nil
}

// WriteDocument replaces the document stored under key with v.
func (s *Store) WriteDocument(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("write document %q: marshal: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("write document %q: %w", key, err)
	}
	return nil
}

// DeleteDocument removes the document stored under key. Missing keys are not an error.
func (s *Store) DeleteDocument(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete document %q: %w", key, err)
	}
	return nil
}
