package service

import (
	"context"
	"fmt"

	"github.com/roach88/fieldsync/internal/model"
)

// Movements manages transfer events within a work order.
type Movements struct {
	*core
}

// List returns every movement.
func (s *Movements) List() []model.Movement {
	return s.agg.Get().Movements
}

// Get returns the movement with id.
func (s *Movements) Get(id string) (model.Movement, error) {
	agg := s.agg.Get()
	i := agg.MovementIndex(id)
	if i < 0 {
		return model.Movement{}, fmt.Errorf("movement %s: %w", id, ErrNotFound)
	}
	return agg.Movements[i], nil
}

// ListByWorkOrder returns the movements of a work order in aggregate order.
func (s *Movements) ListByWorkOrder(workOrderID string) []model.Movement {
	var out []model.Movement
	for _, m := range s.agg.Get().Movements {
		if m.WorkOrderID == workOrderID {
			out = append(out, m)
		}
	}
	return out
}

// Create adds a movement to an existing work order.
func (s *Movements) Create(ctx context.Context, m model.Movement) (model.Movement, error) {
	var out model.Movement
	err := s.mutate(ctx, func(agg *model.Aggregate) ([]change, error) {
		if agg.WorkOrderIndex(m.WorkOrderID) < 0 {
			return nil, invalidf("workOrderId", "work order %q does not exist", m.WorkOrderID)
		}
		if err := validateMovement(m); err != nil {
			return nil, err
		}
		if m.Status == "" {
			m.Status = model.StatusPending
		}
		if m.Status != model.StatusPending {
			return nil, invalidf("status", "new movements must be %s, got %q", model.StatusPending, m.Status)
		}
		if m.ID != "" && agg.MovementIndex(m.ID) >= 0 {
			return nil, invalidf("id", "movement %s already exists", m.ID)
		}

		m.ID = s.newID(m.ID)
		m.RemoteID, m.Synced = "", false
		agg.Movements = append(agg.Movements, m)
		agg.Recount(m.WorkOrderID)

		out = agg.Movements[agg.MovementIndex(m.ID)]
		s.log.Info().Str("movement", out.ID).Str("work_order", out.WorkOrderID).Msg("movement created")
		return []change{{model.ObjectMovement, model.OpCreate, out}}, nil
	})
	return out, err
}

// Update replaces the editable fields of a stored movement. The owning
// work order cannot change.
func (s *Movements) Update(ctx context.Context, m model.Movement) (model.Movement, error) {
	return s.update(ctx, m.ID, func(cur *model.Movement) error {
		if m.WorkOrderID != "" && m.WorkOrderID != cur.WorkOrderID {
			return invalid("workOrderId", "cannot move a movement to another work order")
		}
		if err := validateMovement(m); err != nil {
			return err
		}
		if err := transition(cur.Status, m.Status); err != nil {
			return err
		}
		cur.Status = m.Status
		cur.Counterpart = m.Counterpart
		cur.Direction = m.Direction
		return nil
	})
}

// Approve accepts a pending movement.
func (s *Movements) Approve(ctx context.Context, id string) (model.Movement, error) {
	return s.setStatus(ctx, id, model.StatusApproved)
}

// Reject refuses a pending movement.
func (s *Movements) Reject(ctx context.Context, id string) (model.Movement, error) {
	return s.setStatus(ctx, id, model.StatusRejected)
}

func (s *Movements) setStatus(ctx context.Context, id string, to model.Status) (model.Movement, error) {
	return s.update(ctx, id, func(cur *model.Movement) error {
		if err := transition(cur.Status, to); err != nil {
			return err
		}
		cur.Status = to
		return nil
	})
}

func (s *Movements) update(ctx context.Context, id string, edit func(*model.Movement) error) (model.Movement, error) {
	var out model.Movement
	err := s.mutate(ctx, func(agg *model.Aggregate) ([]change, error) {
		i := agg.MovementIndex(id)
		if i < 0 {
			return nil, invalidf("id", "movement %s does not exist", id)
		}
		if err := edit(&agg.Movements[i]); err != nil {
			return nil, err
		}
		agg.Movements[i].Synced = false
		agg.Recount(agg.Movements[i].WorkOrderID)

		out = agg.Movements[agg.MovementIndex(id)]
		s.log.Info().Str("movement", id).Str("status", string(out.Status)).Msg("movement updated")
		return []change{{model.ObjectMovement, model.OpUpdate, out}}, nil
	})
	return out, err
}

func validateMovement(m model.Movement) error {
	switch m.Counterpart.Kind {
	case model.CounterpartPoint, model.CounterpartThirdParty:
	default:
		return invalidf("counterpart.kind", "must be %q or %q, got %q", model.CounterpartPoint, model.CounterpartThirdParty, m.Counterpart.Kind)
	}
	if m.Counterpart.ID == "" {
		return invalid("counterpart.id", "is required")
	}
	if !m.Direction.Valid() {
		return invalidf("direction", "unknown direction %q", m.Direction)
	}
	return nil
}
