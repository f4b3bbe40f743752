package model

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state shared by WorkOrder, Movement and LineItem.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
	// StatusActive marks a LineItem that materialised an inventory record.
	StatusActive Status = "Active"
	// StatusInactive marks inventory that was consumed and relocated.
	StatusInactive Status = "Inactive"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusActive, StatusInactive:
		return true
	}
	return false
}

// Direction tells which way material flows in a Movement or LineItem.
type Direction string

const (
	DirectionInput    Direction = "input"
	DirectionOutput   Direction = "output"
	DirectionTransfer Direction = "transfer"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionInput, DirectionOutput, DirectionTransfer:
		return true
	}
	return false
}

// Known service types. ServiceType is an open string: the server may add
// new ones, so these are not enforced.
const (
	ServiceCollection = "Collection"
	ServiceTransport  = "Transport"
	ServiceReception  = "Reception"
	ServiceTreatment  = "Treatment"
	ServiceDisposal   = "Disposal"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// transitions lists the allowed non-identity status changes.
var transitions = map[Status][]Status{
	StatusPending: {StatusApproved, StatusRejected},
	StatusActive:  {StatusInactive},
}

// CanTransition reports whether from → to is allowed.
// Identity transitions (X → X) are always allowed so that plain field
// updates go through the same check.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition returns to if from → to is allowed, or an error wrapping
// ErrInvalidTransition.
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}
