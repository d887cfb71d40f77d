package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type TrackingAction string

const (
	ActionCreated        TrackingAction = "CREATED"
	ActionCitiesAssigned TrackingAction = "CITIES_ASSIGNED"
	ActionConfirmed      TrackingAction = "CONFIRMED"
	ActionAssigned       TrackingAction = "ASSIGNED"
	ActionDeposited      TrackingAction = "DEPOSITED"
	ActionArrived        TrackingAction = "ARRIVED"
	ActionDeparted       TrackingAction = "DEPARTED"
	ActionTransferred    TrackingAction = "TRANSFERRED"
	ActionDispatched     TrackingAction = "DISPATCHED"
	ActionOutForDelivery TrackingAction = "OUT_FOR_DELIVERY"
	ActionDelivered      TrackingAction = "DELIVERED"
	ActionReturned       TrackingAction = "RETURNED"
	ActionCancelled      TrackingAction = "CANCELLED"
	ActionResent         TrackingAction = "RESENT"
	ActionLockerDeposit  TrackingAction = "LOCKER_DEPOSITED"
	ActionLockerPickup   TrackingAction = "LOCKER_PICKED_UP"
	ActionLockerExpired  TrackingAction = "LOCKER_EXPIRED"
	ActionPaid           TrackingAction = "PAID"
)

// IsTransitEvent reports the intermediate events that hub staff record by hand.
func (a TrackingAction) IsTransitEvent() bool {
	return a == ActionArrived || a == ActionDeparted || a == ActionTransferred
}

type LocationType string

const (
	LocationVendor      LocationType = "vendor"
	LocationDeliveryman LocationType = "deliveryman"
	LocationHub         LocationType = "hub"
	LocationPickupPoint LocationType = "pickup_point"
	LocationLocker      LocationType = "locker"
	LocationCustomer    LocationType = "customer"
)

func (l LocationType) Valid() bool {
	switch l {
	case LocationVendor, LocationDeliveryman, LocationHub, LocationPickupPoint, LocationLocker, LocationCustomer:
		return true
	}
	return false
}

// Metadata is a free-form JSON object stored next to a tracking entry.
type Metadata map[string]string

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.Errorf("unsupported metadata type %T", src)
	}
}

// OrderTracking is one immutable entry of an order's history.
type OrderTracking struct {
	ID            string         `json:"id" db:"id"`
	OrderID       int64          `json:"order_id" db:"order_id"`
	Status        OrderStatus    `json:"status" db:"status"`
	Action        TrackingAction `json:"action" db:"action"`
	LocationType  LocationType   `json:"location_type" db:"location_type"`
	CityID        *int64         `json:"city_id,omitempty" db:"city_id"`
	HubID         *int64         `json:"hub_id,omitempty" db:"hub_id"`
	PickupPointID *int64         `json:"pickup_point_id,omitempty" db:"pickup_point_id"`
	LockerID      *int64         `json:"locker_id,omitempty" db:"locker_id"`
	ActorID       *int64         `json:"actor_id,omitempty" db:"actor_id"`
	Note          string         `json:"note" db:"note"`
	Metadata      Metadata       `json:"metadata,omitempty" db:"metadata"`
	CreatedAt     time.Time      `json:"timestamp" db:"created_at"`
}

// TrackingView is the public projection returned for a tracking code lookup.
type TrackingView struct {
	OrderCode  string          `json:"order_id"`
	Status     OrderStatus     `json:"status"`
	FromCityID *int64          `json:"from_city_id,omitempty"`
	ToCityID   *int64          `json:"to_city_id,omitempty"`
	IsStopDesk bool            `json:"is_stop_desk"`
	UpdatedAt  time.Time       `json:"updated_at"`
	History    []OrderTracking `json:"history"`
}

type HubScanRequest struct {
	TrackingCode string `json:"tracking_code" validate:"required"`
}

type HubScanResult struct {
	Success   bool        `json:"success"`
	OrderID   int64       `json:"order_id,omitempty"`
	OrderCode string      `json:"tracking_code"`
	Status    OrderStatus `json:"status,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

type BulkDepositRequest struct {
	HubID    int64   `json:"hub_id" validate:"required"`
	OrderIDs []int64 `json:"order_ids" validate:"required,min=1"`
	Note     string  `json:"note"`
}

type BulkDepositResult struct {
	SuccessCount int             `json:"success_count"`
	FailedCount  int             `json:"failed_count"`
	Results      []HubScanResult `json:"results"`
}

type RecordEventRequest struct {
	OrderID       int64          `json:"order_id" validate:"required"`
	Action        TrackingAction `json:"action" validate:"required"`
	LocationType  LocationType   `json:"location_type" validate:"required"`
	CityID        *int64         `json:"city_id"`
	HubID         *int64         `json:"hub_id"`
	PickupPointID *int64         `json:"pickup_point_id"`
	Note          string         `json:"note"`
	Metadata      Metadata       `json:"metadata"`
}
