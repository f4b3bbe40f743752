package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ObjectKind names the entity a RequestRecord carries.
type ObjectKind string

const (
	ObjectWorkOrder ObjectKind = "WorkOrder"
	ObjectMovement  ObjectKind = "Movement"
	ObjectLineItem  ObjectKind = "LineItem"
)

// ObjectKindFor maps a master-data kind to its journal object kind.
func ObjectKindFor(kind MasterDataKind) ObjectKind {
	return ObjectKind(kind)
}

// Operation is the mutation a RequestRecord replays.
type Operation string

const (
	OpCreate Operation = "Create"
	OpUpdate Operation = "Update"
)

// Valid reports whether op is Create or Update.
func (op Operation) Valid() bool {
	return op == OpCreate || op == OpUpdate
}

// RequestRecord is one pending mutation in the journal.
//
// The JSON shape is the on-device wire format and keeps PascalCase keys.
// Seq is the store-assigned insertion order and never leaves the device.
type RequestRecord struct {
	ObjectKind ObjectKind      `json:"ObjectKind"`
	Operation  Operation       `json:"Operation"`
	Payload    json.RawMessage `json:"Payload"`
	Timestamp  time.Time       `json:"Timestamp"`
	ID         string          `json:"Id"`

	Seq int64 `json:"-"`
}

// NewRequestRecord marshals payload into a record. Id and Timestamp are left
// for the journal to fill in.
func NewRequestRecord(kind ObjectKind, op Operation, payload any) (RequestRecord, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return RequestRecord{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return RequestRecord{
		ObjectKind: kind,
		Operation:  op,
		Payload:    data,
	}, nil
}

// PayloadID extracts the "id" field of the payload, or "" if there is none.
func (r RequestRecord) PayloadID() string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(r.Payload, &probe); err != nil {
		return ""
	}
	return probe.ID
}
