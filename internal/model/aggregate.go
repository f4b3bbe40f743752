package model

import "github.com/shopspring/decimal"

// Aggregate is the whole local domain state, persisted as one unit.
type Aggregate struct {
	WorkOrders []WorkOrder `json:"WorkOrders"`
	Movements  []Movement  `json:"Movements"`
	LineItems  []LineItem  `json:"LineItems"`
}

// NewAggregate returns an empty aggregate with non-nil slices.
func NewAggregate() Aggregate {
	return Aggregate{
		WorkOrders: []WorkOrder{},
		Movements:  []Movement{},
		LineItems:  []LineItem{},
	}
}

// Clone returns a deep copy. Callers mutate clones, never the stored value.
func (a Aggregate) Clone() Aggregate {
	out := Aggregate{
		WorkOrders: make([]WorkOrder, len(a.WorkOrders)),
		Movements:  make([]Movement, len(a.Movements)),
		LineItems:  make([]LineItem, len(a.LineItems)),
	}
	for i, wo := range a.WorkOrders {
		if wo.EndedAt != nil {
			t := *wo.EndedAt
			wo.EndedAt = &t
		}
		if wo.Closing != nil {
			c := *wo.Closing
			wo.Closing = &c
		}
		out.WorkOrders[i] = wo
	}
	copy(out.Movements, a.Movements)
	for i, li := range a.LineItems {
		if li.Photos != nil {
			li.Photos = append([]string(nil), li.Photos...)
		}
		if li.Inventory != nil {
			inv := *li.Inventory
			li.Inventory = &inv
		}
		out.LineItems[i] = li
	}
	return out
}

// WorkOrderIndex returns the position of the work order with id, or -1.
func (a Aggregate) WorkOrderIndex(id string) int {
	for i := range a.WorkOrders {
		if a.WorkOrders[i].ID == id {
			return i
		}
	}
	return -1
}

// MovementIndex returns the position of the movement with id, or -1.
func (a Aggregate) MovementIndex(id string) int {
	for i := range a.Movements {
		if a.Movements[i].ID == id {
			return i
		}
	}
	return -1
}

// LineItemIndex returns the position of the line item with id, or -1.
func (a Aggregate) LineItemIndex(id string) int {
	for i := range a.LineItems {
		if a.LineItems[i].ID == id {
			return i
		}
	}
	return -1
}

// resolved reports whether a status counts toward the approved bucket.
// Active and Inactive items materialised inventory, so they were accepted.
func resolved(s Status) bool {
	return s == StatusApproved || s == StatusActive || s == StatusInactive
}

func tally(items []LineItem, match func(LineItem) bool) Counters {
	c := Counters{
		Quantity: decimal.Zero,
		Weight:   decimal.Zero,
		Volume:   decimal.Zero,
	}
	for _, li := range items {
		if !match(li) {
			continue
		}
		switch {
		case li.Status == StatusPending:
			c.PendingCount++
		case li.Status == StatusRejected:
			c.RejectedCount++
		case resolved(li.Status):
			c.ApprovedCount++
			c.Quantity = c.Quantity.Add(li.Quantity)
			c.Weight = c.Weight.Add(li.Weight)
			c.Volume = c.Volume.Add(li.Volume)
		}
	}
	return c
}

// Recount recomputes the counters of the work order with id and of every
// movement it owns from their line items. Unknown ids are ignored.
func (a *Aggregate) Recount(workOrderID string) {
	for i := range a.Movements {
		m := &a.Movements[i]
		if m.WorkOrderID != workOrderID {
			continue
		}
		id := m.ID
		m.Counters = tally(a.LineItems, func(li LineItem) bool { return li.MovementID == id })
	}
	if i := a.WorkOrderIndex(workOrderID); i >= 0 {
		a.WorkOrders[i].Counters = tally(a.LineItems, func(li LineItem) bool { return li.WorkOrderID == workOrderID })
	}
}

// CascadeReject moves every Pending movement and line item of the work order
// to Rejected and recounts. It returns the ids of the changed movements and
// line items, in aggregate order.
func (a *Aggregate) CascadeReject(workOrderID string) (movements, lineItems []string) {
	for i := range a.Movements {
		m := &a.Movements[i]
		if m.WorkOrderID == workOrderID && m.Status == StatusPending {
			m.Status = StatusRejected
			m.Synced = false
			movements = append(movements, m.ID)
		}
	}
	for i := range a.LineItems {
		li := &a.LineItems[i]
		if li.WorkOrderID == workOrderID && li.Status == StatusPending {
			li.Status = StatusRejected
			li.Synced = false
			lineItems = append(lineItems, li.ID)
		}
	}
	a.Recount(workOrderID)
	return movements, lineItems
}
