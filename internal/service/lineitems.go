package service

import (
	"context"
	"fmt"

	"github.com/roach88/fieldsync/internal/model"
)

// LineItems manages material quantity records.
type LineItems struct {
	*core
}

// List returns every line item.
func (s *LineItems) List() []model.LineItem {
	return s.agg.Get().LineItems
}

// Get returns the line item with id.
func (s *LineItems) Get(id string) (model.LineItem, error) {
	agg := s.agg.Get()
	i := agg.LineItemIndex(id)
	if i < 0 {
		return model.LineItem{}, fmt.Errorf("line item %s: %w", id, ErrNotFound)
	}
	return agg.LineItems[i], nil
}

// ListByWorkOrder returns the line items of a work order.
func (s *LineItems) ListByWorkOrder(workOrderID string) []model.LineItem {
	return s.filter(func(li model.LineItem) bool { return li.WorkOrderID == workOrderID })
}

// ListByMovement returns the line items of a movement.
func (s *LineItems) ListByMovement(movementID string) []model.LineItem {
	return s.filter(func(li model.LineItem) bool { return li.MovementID == movementID })
}

func (s *LineItems) filter(keep func(model.LineItem) bool) []model.LineItem {
	var out []model.LineItem
	for _, li := range s.agg.Get().LineItems {
		if keep(li) {
			out = append(out, li)
		}
	}
	return out
}

// Create adds a line item. Its work order must exist and, when a movement
// is given, the movement must belong to that work order. A field-recorded
// quantity counts as approved unless the caller asks for Pending; items that
// open an inventory record may be created Active.
func (s *LineItems) Create(ctx context.Context, li model.LineItem) (model.LineItem, error) {
	var out model.LineItem
	err := s.mutate(ctx, func(agg *model.Aggregate) ([]change, error) {
		if err := validateParents(agg, li); err != nil {
			return nil, err
		}
		if err := validateLineItem(li); err != nil {
			return nil, err
		}
		if li.Status == "" {
			li.Status = model.StatusApproved
		}
		switch {
		case li.Status == model.StatusApproved, li.Status == model.StatusPending:
		case li.Status == model.StatusActive && li.Inventory != nil && li.Inventory.Action == model.InventoryCreate:
		default:
			return nil, invalidf("status", "new line items must be %s or %s (or %s with an inventory create), got %q",
				model.StatusApproved, model.StatusPending, model.StatusActive, li.Status)
		}
		if li.ID != "" && agg.LineItemIndex(li.ID) >= 0 {
			return nil, invalidf("id", "line item %s already exists", li.ID)
		}

		li.ID = s.newID(li.ID)
		li.RemoteID, li.Synced = "", false
		agg.LineItems = append(agg.LineItems, li)
		agg.Recount(li.WorkOrderID)

		out = agg.LineItems[agg.LineItemIndex(li.ID)]
		s.log.Info().
			Str("line_item", out.ID).
			Str("work_order", out.WorkOrderID).
			Str("material", out.MaterialID).
			Str("quantity", out.Quantity.String()).
			Msg("line item created")
		return []change{{model.ObjectLineItem, model.OpCreate, out}}, nil
	})
	return out, err
}

// Update replaces the editable fields of a stored line item. The owning
// work order and movement cannot change.
func (s *LineItems) Update(ctx context.Context, li model.LineItem) (model.LineItem, error) {
	return s.update(ctx, li.ID, func(cur *model.LineItem) error {
		if li.WorkOrderID != "" && li.WorkOrderID != cur.WorkOrderID {
			return invalid("workOrderId", "cannot move a line item to another work order")
		}
		if li.MovementID != cur.MovementID {
			return invalid("movementId", "cannot move a line item to another movement")
		}
		if err := validateLineItem(li); err != nil {
			return err
		}
		if err := transition(cur.Status, li.Status); err != nil {
			return err
		}
		cur.MaterialID = li.MaterialID
		cur.PackageID = li.PackageID
		cur.Quantity = li.Quantity
		cur.Weight = li.Weight
		cur.Volume = li.Volume
		cur.Direction = li.Direction
		cur.Status = li.Status
		cur.Photos = append([]string(nil), li.Photos...)
		cur.Inventory = li.Inventory
		return nil
	})
}

// Approve accepts a pending line item.
func (s *LineItems) Approve(ctx context.Context, id string) (model.LineItem, error) {
	return s.setStatus(ctx, id, model.StatusApproved)
}

// Reject refuses a pending line item.
func (s *LineItems) Reject(ctx context.Context, id string) (model.LineItem, error) {
	return s.setStatus(ctx, id, model.StatusRejected)
}

// Relocate marks the inventory an Active line item created as consumed.
func (s *LineItems) Relocate(ctx context.Context, id string) (model.LineItem, error) {
	return s.update(ctx, id, func(cur *model.LineItem) error {
		if cur.Status != model.StatusActive {
			return invalidf("status", "only %s line items can be relocated, got %s", model.StatusActive, cur.Status)
		}
		if err := transition(cur.Status, model.StatusInactive); err != nil {
			return err
		}
		cur.Status = model.StatusInactive
		if cur.Inventory != nil {
			inv := *cur.Inventory
			inv.Action = model.InventoryClose
			cur.Inventory = &inv
		}
		return nil
	})
}

func (s *LineItems) setStatus(ctx context.Context, id string, to model.Status) (model.LineItem, error) {
	return s.update(ctx, id, func(cur *model.LineItem) error {
		if err := transition(cur.Status, to); err != nil {
			return err
		}
		cur.Status = to
		return nil
	})
}

func (s *LineItems) update(ctx context.Context, id string, edit func(*model.LineItem) error) (model.LineItem, error) {
	var out model.LineItem
	err := s.mutate(ctx, func(agg *model.Aggregate) ([]change, error) {
		i := agg.LineItemIndex(id)
		if i < 0 {
			return nil, invalidf("id", "line item %s does not exist", id)
		}
		if err := edit(&agg.LineItems[i]); err != nil {
			return nil, err
		}
		agg.LineItems[i].Synced = false
		agg.Recount(agg.LineItems[i].WorkOrderID)

		out = agg.LineItems[agg.LineItemIndex(id)]
		s.log.Info().Str("line_item", id).Str("status", string(out.Status)).Msg("line item updated")
		return []change{{model.ObjectLineItem, model.OpUpdate, out}}, nil
	})
	return out, err
}

func validateParents(agg *model.Aggregate, li model.LineItem) error {
	if agg.WorkOrderIndex(li.WorkOrderID) < 0 {
		return invalidf("workOrderId", "work order %q does not exist", li.WorkOrderID)
	}
	if li.MovementID == "" {
		return nil
	}
	i := agg.MovementIndex(li.MovementID)
	if i < 0 {
		return invalidf("movementId", "movement %q does not exist", li.MovementID)
	}
	if agg.Movements[i].WorkOrderID != li.WorkOrderID {
		return invalidf("movementId", "movement %q belongs to work order %q", li.MovementID, agg.Movements[i].WorkOrderID)
	}
	return nil
}

func validateLineItem(li model.LineItem) error {
	if li.MaterialID == "" {
		return invalid("materialId", "is required")
	}
	if li.Quantity.IsNegative() {
		return invalid("quantity", "must not be negative")
	}
	if li.Weight.IsNegative() {
		return invalid("weight", "must not be negative")
	}
	if li.Volume.IsNegative() {
		return invalid("volume", "must not be negative")
	}
	if li.Quantity.IsZero() && li.Weight.IsZero() && li.Volume.IsZero() {
		return invalid("quantity", "one of quantity, weight or volume is required")
	}
	if !li.Direction.Valid() {
		return invalidf("direction", "unknown direction %q", li.Direction)
	}
	if li.Inventory != nil {
		if li.Inventory.InventoryID == "" {
			return invalid("inventory.inventoryId", "is required")
		}
		switch li.Inventory.Action {
		case model.InventoryCreate, model.InventoryClose:
		default:
			return invalidf("inventory.action", "unknown action %q", li.Inventory.Action)
		}
	}
	return nil
}
