package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusActive, StatusInactive, true},
		{StatusApproved, StatusApproved, true},
		{StatusApproved, StatusPending, false},
		{StatusRejected, StatusApproved, false},
		{StatusInactive, StatusActive, false},
		{StatusPending, StatusActive, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransition_InvalidWrapsSentinel(t *testing.T) {
	got, err := Transition(StatusRejected, StatusApproved)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, StatusRejected, got, "state must not change on a rejected transition")
	assert.Contains(t, err.Error(), "Rejected -> Approved")
}

func TestStatusAndDirectionValid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.False(t, Status("Closed").Valid())
	assert.True(t, DirectionTransfer.Valid())
	assert.False(t, Direction("sideways").Valid())
}
