package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Counters are the running totals a WorkOrder or Movement carries.
// They are derived from child LineItems by Recount and never edited directly.
type Counters struct {
	ApprovedCount int             `json:"approvedCount"`
	PendingCount  int             `json:"pendingCount"`
	RejectedCount int             `json:"rejectedCount"`
	Quantity      decimal.Decimal `json:"quantity"`
	Weight        decimal.Decimal `json:"weight"`
	Volume        decimal.Decimal `json:"volume"`
}

// Total returns approved + pending + rejected.
func (c Counters) Total() int {
	return c.ApprovedCount + c.PendingCount + c.RejectedCount
}

// Closing holds the optional fields captured when a WorkOrder is closed.
type Closing struct {
	Signature           string `json:"signature,omitempty"`
	ResponsibleName     string `json:"responsibleName,omitempty"`
	ResponsibleDocument string `json:"responsibleDocument,omitempty"`
	ResponsibleRole     string `json:"responsibleRole,omitempty"`
	Observations        string `json:"observations,omitempty"`
}

// WorkOrder is the aggregate root: one unit of field work tied to a
// service type and a resource (vehicle, point, ...).
type WorkOrder struct {
	ID          string     `json:"id"`
	ServiceType string     `json:"serviceType"`
	ResourceID  string     `json:"resourceId"`
	Status      Status     `json:"status"`
	Title       string     `json:"title"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	Counters
	Closing *Closing `json:"closing,omitempty"`

	// Set once the server has confirmed the record.
	RemoteID string `json:"remoteId,omitempty"`
	Synced   bool   `json:"synced"`
}

// CounterpartKind distinguishes the two things a Movement can exchange with.
type CounterpartKind string

const (
	CounterpartPoint      CounterpartKind = "point"
	CounterpartThirdParty CounterpartKind = "thirdParty"
)

// Counterpart references the point or third party on the other side of a Movement.
type Counterpart struct {
	Kind CounterpartKind `json:"kind"`
	ID   string          `json:"id"`
}

// Movement is a transfer/exchange event within a WorkOrder.
type Movement struct {
	ID          string      `json:"id"`
	WorkOrderID string      `json:"workOrderId"`
	Status      Status      `json:"status"`
	Counterpart Counterpart `json:"counterpart"`
	Direction   Direction   `json:"direction"`
	Counters

	RemoteID string `json:"remoteId,omitempty"`
	Synced   bool   `json:"synced"`
}

// InventoryAction says whether a LineItem opens or closes an inventory record.
type InventoryAction string

const (
	InventoryCreate InventoryAction = "create"
	InventoryClose  InventoryAction = "close"
)

// InventoryLink ties a LineItem to the inventory record it creates or closes.
type InventoryLink struct {
	InventoryID string          `json:"inventoryId"`
	Action      InventoryAction `json:"action"`
}

// LineItem is an atomic quantity record of a material handled within a
// WorkOrder, optionally inside a Movement.
type LineItem struct {
	ID          string          `json:"id"`
	WorkOrderID string          `json:"workOrderId"`
	MovementID  string          `json:"movementId,omitempty"`
	MaterialID  string          `json:"materialId"`
	PackageID   string          `json:"packageId,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Weight      decimal.Decimal `json:"weight"`
	Volume      decimal.Decimal `json:"volume"`
	Direction   Direction       `json:"direction"`
	Status      Status          `json:"status"`
	Photos      []string        `json:"photos,omitempty"`
	Inventory   *InventoryLink  `json:"inventory,omitempty"`

	RemoteID string `json:"remoteId,omitempty"`
	Synced   bool   `json:"synced"`
}

// MasterDataKind names the reference catalogues an operator may edit offline.
type MasterDataKind string

const (
	KindMaterial   MasterDataKind = "Material"
	KindPackage    MasterDataKind = "Package"
	KindPoint      MasterDataKind = "Point"
	KindThirdParty MasterDataKind = "ThirdParty"
	KindTreatment  MasterDataKind = "Treatment"
	KindVehicle    MasterDataKind = "Vehicle"
)

// MasterData is a catalogue entry. It is not part of the Aggregate; it only
// travels through the journal.
type MasterData struct {
	Kind       MasterDataKind    `json:"kind"`
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Session is the locally stored credential pair.
type Session struct {
	Username     string `json:"username"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Empty reports whether no user is logged in.
func (s Session) Empty() bool {
	return s.AccessToken == "" && s.RefreshToken == ""
}
