package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/fieldsync/internal/model"
)

// ErrDuplicateRecord is returned when a record with the same id is already journaled.
var ErrDuplicateRecord = errors.New("duplicate journal record")

// journalRow is the SQL shape of a RequestRecord.
type journalRow struct {
	Seq        int64  `db:"seq"`
	ID         string `db:"id"`
	ObjectKind string `db:"object_kind"`
	Operation  string `db:"operation"`
	Payload    string `db:"payload"`
	Timestamp  string `db:"timestamp"`
}

func (r journalRow) record() (model.RequestRecord, error) {
	ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return model.RequestRecord{}, fmt.Errorf("parse timestamp of %s: %w", r.ID, err)
	}
	return model.RequestRecord{
		ObjectKind: model.ObjectKind(r.ObjectKind),
		Operation:  model.Operation(r.Operation),
		Payload:    json.RawMessage(r.Payload),
		Timestamp:  ts,
		ID:         r.ID,
		Seq:        r.Seq,
	}, nil
}

// AppendRecord inserts a journal record. The caller assigns Seq, ID and Timestamp.
// Returns ErrDuplicateRecord if a record with the same ID or Seq exists.
func (s *Store) AppendRecord(ctx context.Context, rec model.RequestRecord) error {
	result, err := s.db.NamedExecContext(ctx, `
		INSERT INTO journal (seq, id, object_kind, operation, payload, timestamp)
		VALUES (:seq, :id, :object_kind, :operation, :payload, :timestamp)
		ON CONFLICT DO NOTHING
	`, journalRow{
		Seq:        rec.Seq,
		ID:         rec.ID,
		ObjectKind: string(rec.ObjectKind),
		Operation:  string(rec.Operation),
		Payload:    string(rec.Payload),
		Timestamp:  rec.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("append record: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("append record %s: %w", rec.ID, ErrDuplicateRecord)
	}
	return nil
}

// ListRecords returns every journal record in insertion order (seq ASC).
// Returns an empty slice (not nil) when the journal is empty.
func (s *Store) ListRecords(ctx context.Context) ([]model.RequestRecord, error) {
	var rows []journalRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT seq, id, object_kind, operation, payload, timestamp
		FROM journal
		ORDER BY seq ASC
	`); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	records := make([]model.RequestRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// DeleteRecord removes the record with the given correlation id.
// Returns deleted=false if no such record exists.
func (s *Store) DeleteRecord(ctx context.Context, id string) (deleted bool, err error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM journal WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete record %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete record %s: rows affected: %w", id, err)
	}
	return n > 0, nil
}

// ClearRecords removes every journal record.
func (s *Store) ClearRecords(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM journal`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}

// CountRecords returns the number of pending records.
func (s *Store) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM journal`); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// MaxSeq returns the highest seq in the journal, or 0 if it is empty.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.GetContext(ctx, &seq, `SELECT COALESCE(MAX(seq), 0) FROM journal`); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq, nil
}
