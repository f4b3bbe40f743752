package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/model"
)

func TestLineItems_ParentValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	woA := e.workOrder(t)
	woB, err := e.svc.WorkOrders.Create(ctx, model.WorkOrder{ServiceType: "Transport", ResourceID: "truck-2"})
	require.NoError(t, err)
	mvB, err := e.svc.Movements.Create(ctx, model.Movement{
		WorkOrderID: woB.ID,
		Counterpart: model.Counterpart{Kind: model.CounterpartThirdParty, ID: "tp-1"},
		Direction:   model.DirectionOutput,
	})
	require.NoError(t, err)
	journaled := len(e.records(t))

	base := model.LineItem{MaterialID: "m", Quantity: decimal.NewFromInt(1), Direction: model.DirectionInput}

	missingWO := base
	missingWO.WorkOrderID = "ghost"
	_, err = e.svc.LineItems.Create(ctx, missingWO)
	assert.True(t, IsValidationError(err))

	foreignMovement := base
	foreignMovement.WorkOrderID = woA.ID
	foreignMovement.MovementID = mvB.ID
	_, err = e.svc.LineItems.Create(ctx, foreignMovement)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "movementId", ve.Field)

	negative := base
	negative.WorkOrderID = woA.ID
	negative.Quantity = decimal.NewFromInt(-1)
	_, err = e.svc.LineItems.Create(ctx, negative)
	assert.True(t, IsValidationError(err))

	assert.Len(t, e.records(t), journaled)
	assert.Empty(t, e.svc.LineItems.List())
}

func TestLineItems_CreateDefaultsToApproved(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	wo, err := e.svc.WorkOrders.Create(ctx, model.WorkOrder{ServiceType: model.ServiceTransport, ResourceID: "V1"})
	require.NoError(t, err)

	li, err := e.svc.LineItems.Create(ctx, model.LineItem{
		WorkOrderID: wo.ID,
		MaterialID:  "m",
		Quantity:    decimal.NewFromInt(10),
		Direction:   model.DirectionInput,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, li.Status)

	got, err := e.svc.WorkOrders.Get(wo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ApprovedCount)
	assert.Equal(t, 0, got.PendingCount)
	assert.True(t, got.Quantity.Equal(decimal.NewFromInt(10)), got.Quantity.String())

	_, err = e.svc.LineItems.Create(ctx, model.LineItem{
		WorkOrderID: wo.ID,
		MaterialID:  "m",
		Direction:   model.DirectionInput,
		Status:      model.StatusRejected,
	})
	assert.True(t, IsValidationError(err))

	_, err = e.svc.LineItems.Create(ctx, model.LineItem{
		WorkOrderID: wo.ID,
		MaterialID:  "m",
		Direction:   model.DirectionInput,
		Status:      model.StatusActive,
	})
	assert.True(t, IsValidationError(err), "active items need an inventory create")
}

func TestLineItems_CountersFollowStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	wo := e.workOrder(t)

	a := e.pendingItem(t, wo.ID, "", "2.5")
	b := e.pendingItem(t, wo.ID, "", "1.25")

	got, err := e.svc.WorkOrders.Get(wo.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.PendingCount)
	assert.True(t, got.Quantity.IsZero(), "pending items do not add quantity")

	_, err = e.svc.LineItems.Approve(ctx, a.ID)
	require.NoError(t, err)
	_, err = e.svc.LineItems.Approve(ctx, b.ID)
	require.NoError(t, err)

	got, err = e.svc.WorkOrders.Get(wo.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ApprovedCount)
	assert.Equal(t, 0, got.PendingCount)
	assert.True(t, got.Quantity.Equal(decimal.RequireFromString("3.75")), got.Quantity.String())
	assert.Equal(t, got.Total(), len(e.svc.LineItems.ListByWorkOrder(wo.ID)))
}

func TestLineItems_ListByMovement(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	wo := e.workOrder(t)
	mv, err := e.svc.Movements.Create(ctx, model.Movement{
		WorkOrderID: wo.ID,
		Counterpart: model.Counterpart{Kind: model.CounterpartPoint, ID: "pt"},
		Direction:   model.DirectionTransfer,
	})
	require.NoError(t, err)

	inMv := e.pendingItem(t, wo.ID, mv.ID, "1")
	e.pendingItem(t, wo.ID, "", "1")

	byMv := e.svc.LineItems.ListByMovement(mv.ID)
	require.Len(t, byMv, 1)
	assert.Equal(t, inMv.ID, byMv[0].ID)
	assert.Len(t, e.svc.LineItems.ListByWorkOrder(wo.ID), 2)
	assert.Len(t, e.svc.Movements.ListByWorkOrder(wo.ID), 1)
}

func TestLineItems_Relocate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	wo := e.workOrder(t)

	active, err := e.svc.LineItems.Create(ctx, model.LineItem{
		WorkOrderID: wo.ID,
		MaterialID:  "m",
		Weight:      decimal.NewFromInt(40),
		Direction:   model.DirectionInput,
		Status:      model.StatusActive,
		Inventory:   &model.InventoryLink{InventoryID: "inv-1", Action: model.InventoryCreate},
	})
	require.NoError(t, err)

	moved, err := e.svc.LineItems.Relocate(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInactive, moved.Status)
	assert.Equal(t, model.InventoryClose, moved.Inventory.Action)

	_, err = e.svc.LineItems.Relocate(ctx, active.ID)
	assert.True(t, IsValidationError(err), "inactive items cannot be relocated again")

	pending := e.pendingItem(t, wo.ID, "", "1")
	_, err = e.svc.LineItems.Relocate(ctx, pending.ID)
	assert.True(t, IsValidationError(err))

	// Active/Inactive items count as resolved.
	got, err := e.svc.WorkOrders.Get(wo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ApprovedCount)
	assert.True(t, got.Weight.Equal(decimal.NewFromInt(40)))
}

func TestLineItems_UpdateKeepsParents(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	wo := e.workOrder(t)
	li := e.pendingItem(t, wo.ID, "", "1")

	li.Quantity = decimal.NewFromInt(5)
	li.Photos = []string{"file:///photos/1.jpg"}
	updated, err := e.svc.LineItems.Update(ctx, li)
	require.NoError(t, err)
	assert.True(t, updated.Quantity.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, []string{"file:///photos/1.jpg"}, updated.Photos)

	li.WorkOrderID = "other"
	_, err = e.svc.LineItems.Update(ctx, li)
	assert.True(t, IsValidationError(err))
}
