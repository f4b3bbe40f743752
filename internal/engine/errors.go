package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/fieldsync/internal/model"
)

var (
	// ErrSyncInProgress is returned when UploadData is called while another
	// pass is running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrUnknownObjectKind is returned for a record no endpoint accepts.
	ErrUnknownObjectKind = errors.New("unknown object kind")
)

// SyncError reports the record that stopped a replay pass. The failing
// record and everything after it remain in the journal.
type SyncError struct {
	RecordID   string
	ObjectKind model.ObjectKind
	Operation  model.Operation
	Err        error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s %s (record=%s): %v", e.Operation, e.ObjectKind, e.RecordID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsSyncError returns true if err is or wraps a *SyncError.
func IsSyncError(err error) bool {
	var se *SyncError
	return errors.As(err, &se)
}

func newSyncError(rec model.RequestRecord, err error) *SyncError {
	return &SyncError{
		RecordID:   rec.ID,
		ObjectKind: rec.ObjectKind,
		Operation:  rec.Operation,
		Err:        err,
	}
}
