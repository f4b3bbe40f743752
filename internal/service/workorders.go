package service

import (
	"context"
	"fmt"

	"github.com/roach88/fieldsync/internal/model"
)

// WorkOrders manages the aggregate roots.
type WorkOrders struct {
	*core
}

// List returns every work order.
func (s *WorkOrders) List() []model.WorkOrder {
	return s.agg.Get().WorkOrders
}

// Get returns the work order with id.
func (s *WorkOrders) Get(id string) (model.WorkOrder, error) {
	agg := s.agg.Get()
	i := agg.WorkOrderIndex(id)
	if i < 0 {
		return model.WorkOrder{}, fmt.Errorf("work order %s: %w", id, ErrNotFound)
	}
	return agg.WorkOrders[i], nil
}

// FindByServiceResource returns the work orders for a service type and
// resource. Matching ignores case and Unicode normalisation form.
func (s *WorkOrders) FindByServiceResource(serviceType, resourceID string) []model.WorkOrder {
	return findByServiceResource(s.agg.Get(), serviceType, resourceID)
}

func findByServiceResource(agg model.Aggregate, serviceType, resourceID string) []model.WorkOrder {
	st, rid := lookupKey(serviceType), lookupKey(resourceID)
	var out []model.WorkOrder
	for _, wo := range agg.WorkOrders {
		if lookupKey(wo.ServiceType) == st && lookupKey(wo.ResourceID) == rid {
			out = append(out, wo)
		}
	}
	return out
}

// FindOrCreate returns the open (Pending) work order for wo's service type
// and resource, creating wo if there is none. created reports which happened.
func (s *WorkOrders) FindOrCreate(ctx context.Context, wo model.WorkOrder) (result model.WorkOrder, created bool, err error) {
	err = s.mutate(ctx, func(agg *model.Aggregate) ([]change, error) {
		for _, existing := range findByServiceResource(*agg, wo.ServiceType, wo.ResourceID) {
			if existing.Status == model.StatusPending {
				result = existing
				return nil, nil
			}
		}
		out, err := s.create(agg, wo)
		if err != nil {
			return nil, err
		}
		result, created = out, true
		return []change{{model.ObjectWorkOrder, model.OpCreate, out}}, nil
	})
	return result, created, err
}

// Create adds a work order. An empty id is generated, an empty status
// becomes Pending and a zero start time becomes now.
func (s *WorkOrders) Create(ctx context.Context, wo model.WorkOrder) (model.WorkOrder, error) {
	var out model.WorkOrder
	err := s.mutate(ctx, func(agg *model.Aggregate) ([]change, error) {
		var err error
		out, err = s.create(agg, wo)
		if err != nil {
			return nil, err
		}
		return []change{{model.ObjectWorkOrder, model.OpCreate, out}}, nil
	})
	return out, err
}

func (s *WorkOrders) create(agg *model.Aggregate, wo model.WorkOrder) (model.WorkOrder, error) {
	if wo.ServiceType == "" {
		return model.WorkOrder{}, invalid("serviceType", "is required")
	}
	if wo.ResourceID == "" {
		return model.WorkOrder{}, invalid("resourceId", "is required")
	}
	if wo.Status == "" {
		wo.Status = model.StatusPending
	}
	if wo.Status != model.StatusPending {
		return model.WorkOrder{}, invalidf("status", "new work orders must be %s, got %q", model.StatusPending, wo.Status)
	}
	if wo.ID != "" && agg.WorkOrderIndex(wo.ID) >= 0 {
		return model.WorkOrder{}, invalidf("id", "work order %s already exists", wo.ID)
	}

	wo.ID = s.newID(wo.ID)
	if wo.StartedAt.IsZero() {
		wo.StartedAt = s.now().UTC()
	}
	wo.RemoteID, wo.Synced = "", false
	agg.WorkOrders = append(agg.WorkOrders, wo)
	agg.Recount(wo.ID)

	stored := agg.WorkOrders[agg.WorkOrderIndex(wo.ID)]
	s.log.Info().Str("work_order", stored.ID).Str("service_type", stored.ServiceType).Msg("work order created")
	return stored, nil
}

// Update replaces the editable fields of a stored work order. Counters are
// always recomputed. Any child still Pending is rejected.
func (s *WorkOrders) Update(ctx context.Context, wo model.WorkOrder) (model.WorkOrder, error) {
	return s.update(ctx, wo.ID, func(cur *model.WorkOrder) error {
		if wo.ServiceType == "" {
			return invalid("serviceType", "is required")
		}
		if wo.ResourceID == "" {
			return invalid("resourceId", "is required")
		}
		if err := transition(cur.Status, wo.Status); err != nil {
			return err
		}
		cur.ServiceType = wo.ServiceType
		cur.ResourceID = wo.ResourceID
		cur.Status = wo.Status
		cur.Title = wo.Title
		if !wo.StartedAt.IsZero() {
			cur.StartedAt = wo.StartedAt
		}
		cur.EndedAt = wo.EndedAt
		cur.Closing = wo.Closing
		return nil
	})
}

// Approve closes a work order with the optional closing details.
func (s *WorkOrders) Approve(ctx context.Context, id string, closing *model.Closing) (model.WorkOrder, error) {
	return s.update(ctx, id, func(cur *model.WorkOrder) error {
		if err := transition(cur.Status, model.StatusApproved); err != nil {
			return err
		}
		cur.Status = model.StatusApproved
		if closing != nil {
			c := *closing
			cur.Closing = &c
		}
		if cur.EndedAt == nil {
			now := s.now().UTC()
			cur.EndedAt = &now
		}
		return nil
	})
}

// Reject cancels a pending work order.
func (s *WorkOrders) Reject(ctx context.Context, id string) (model.WorkOrder, error) {
	return s.update(ctx, id, func(cur *model.WorkOrder) error {
		if err := transition(cur.Status, model.StatusRejected); err != nil {
			return err
		}
		cur.Status = model.StatusRejected
		if cur.EndedAt == nil {
			now := s.now().UTC()
			cur.EndedAt = &now
		}
		return nil
	})
}

// update applies edit to the stored work order, cascades rejection to
// pending children and journals the work order first, then each child.
func (s *WorkOrders) update(ctx context.Context, id string, edit func(*model.WorkOrder) error) (model.WorkOrder, error) {
	var out model.WorkOrder
	err := s.mutate(ctx, func(agg *model.Aggregate) ([]change, error) {
		i := agg.WorkOrderIndex(id)
		if i < 0 {
			return nil, invalidf("id", "work order %s does not exist", id)
		}
		if err := edit(&agg.WorkOrders[i]); err != nil {
			return nil, err
		}
		agg.WorkOrders[i].Synced = false

		movements, lineItems := agg.CascadeReject(id)
		out = agg.WorkOrders[agg.WorkOrderIndex(id)]

		changes := []change{{model.ObjectWorkOrder, model.OpUpdate, out}}
		changes = append(changes, cascadeChanges(agg, movements, lineItems)...)

		s.log.Info().
			Str("work_order", id).
			Str("status", string(out.Status)).
			Int("cascaded_movements", len(movements)).
			Int("cascaded_line_items", len(lineItems)).
			Msg("work order updated")
		return changes, nil
	})
	return out, err
}
