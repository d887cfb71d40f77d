package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusInPreparation  OrderStatus = "IN_PREPARATION"
	StatusConfirmed      OrderStatus = "CONFIRMED"
	StatusDispatched     OrderStatus = "DISPATCHED"
	StatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	StatusDelivered      OrderStatus = "DELIVERED"
	StatusReturned       OrderStatus = "RETURNED"
	StatusCancelled      OrderStatus = "CANCELLED"
	StatusPaid           OrderStatus = "PAID"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusInPreparation, StatusConfirmed, StatusDispatched, StatusOutForDelivery,
		StatusDelivered, StatusReturned, StatusCancelled, StatusPaid:
		return true
	}
	return false
}

type PaymentType string

const (
	PaymentCashOnDelivery PaymentType = "cash_on_delivery"
	PaymentPrepaid        PaymentType = "prepaid"
)

type Order struct {
	ID                  int64               `json:"id" db:"id"`
	OrderCode           string              `json:"order_id" db:"order_code"`
	SenderID            int64               `json:"sender_id" db:"sender_id"`
	DeliverymanID       *int64              `json:"deliveryman_id,omitempty" db:"deliveryman_id"`
	HubID               *int64              `json:"hub_id,omitempty" db:"hub_id"`
	FirstName           string              `json:"firstname" db:"first_name"`
	LastName            string              `json:"last_name" db:"last_name"`
	ContactPhone        string              `json:"contact_phone" db:"contact_phone"`
	ContactPhone2       string              `json:"contact_phone2,omitempty" db:"contact_phone2"`
	Address             string              `json:"address" db:"address"`
	FromCityID          *int64              `json:"from_city_id,omitempty" db:"from_city_id"`
	ToCityID            *int64              `json:"to_city_id,omitempty" db:"to_city_id"`
	Price               decimal.Decimal     `json:"price" db:"price"`
	ShippingFee         decimal.NullDecimal `json:"shipping_fee" db:"shipping_fee"`
	Weight              *float64            `json:"weight,omitempty" db:"weight"`
	Height              *float64            `json:"height,omitempty" db:"height"`
	Width               *float64            `json:"width,omitempty" db:"width"`
	Length              *float64            `json:"length,omitempty" db:"length"`
	IsStopDesk          bool                `json:"is_stop_desk" db:"is_stop_desk"`
	FreeShipping        bool                `json:"free_shipping" db:"free_shipping"`
	HasExchange         bool                `json:"has_exchange" db:"has_exchange"`
	PaymentType         PaymentType         `json:"payment_type" db:"payment_type"`
	Status              OrderStatus         `json:"status" db:"status"`
	WithdrawalRequestID *int64              `json:"withdrawal_request_id,omitempty" db:"withdrawal_request_id"`
	CreatedAt           time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at" db:"updated_at"`
	DeliveredAt         *time.Time          `json:"delivered_at,omitempty" db:"delivered_at"`
	CancelledAt         *time.Time          `json:"cancelled_at,omitempty" db:"cancelled_at"`
	Items               []OrderItem         `json:"items" db:"-"`
}

// CitiesAssigned reports whether both ends of the shipment are known.
func (o *Order) CitiesAssigned() bool {
	return o.FromCityID != nil && o.ToCityID != nil
}

func (o *Order) DeliveryType() DeliveryType {
	if o.IsStopDesk {
		return DeliveryDesktop
	}
	return DeliveryHome
}

type OrderItem struct {
	ID         int64           `json:"id" db:"id"`
	OrderID    int64           `json:"order_id" db:"order_id"`
	ProductID  int64           `json:"product_id" db:"product_id"`
	Quantity   int             `json:"quantity" db:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price" db:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price" db:"total_price"`
}

type Product struct {
	ID       int64           `json:"id" db:"id"`
	VendorID int64           `json:"vendor_id" db:"vendor_id"`
	Name     string          `json:"name" db:"name"`
	Price    decimal.Decimal `json:"price" db:"price"`
}

type OrderFilter struct {
	SenderID      *int64
	DeliverymanID *int64
	Status        OrderStatus
	Limit         int
	Offset        int
}

// Request/Response models
type CreateOrderRequest struct {
	FirstName     string           `json:"firstname" validate:"required"`
	LastName      string           `json:"last_name" validate:"required"`
	ContactPhone  string           `json:"contact_phone" validate:"required"`
	ContactPhone2 string           `json:"contact_phone2"`
	Address       string           `json:"address" validate:"required"`
	FromCityID    *int64           `json:"from_city_id"`
	ToCityID      *int64           `json:"to_city_id"`
	Price         *decimal.Decimal `json:"price"`
	Weight        *float64         `json:"weight" validate:"omitempty,gt=0"`
	Height        *float64         `json:"height" validate:"omitempty,gt=0"`
	Width         *float64         `json:"width" validate:"omitempty,gt=0"`
	Length        *float64         `json:"length" validate:"omitempty,gt=0"`
	IsStopDesk    bool             `json:"is_stop_desk"`
	FreeShipping  bool             `json:"free_shipping"`
	HasExchange   bool             `json:"has_exchange"`
	PaymentType   PaymentType      `json:"payment_type" validate:"omitempty,oneof=cash_on_delivery prepaid"`
	Items         []OrderItemInput `json:"items" validate:"omitempty,dive"`
}

type OrderItemInput struct {
	ProductID  int64            `json:"product_id" validate:"required"`
	Quantity   int              `json:"quantity" validate:"required,min=1"`
	UnitPrice  decimal.Decimal  `json:"unit_price"`
	TotalPrice *decimal.Decimal `json:"total_price"`
}

type UpdateStatusRequest struct {
	Status OrderStatus `json:"status" validate:"required"`
	Note   string      `json:"note"`
}

type AssignDeliverymanRequest struct {
	DeliverymanID int64 `json:"deliveryman_id" validate:"required"`
}

type AssignCitiesRequest struct {
	FromCityID int64 `json:"from_city_id" validate:"required"`
	ToCityID   int64 `json:"to_city_id" validate:"required"`
}

// BulkUpdateRequest applies the same partial update to every listed order.
type BulkUpdateRequest struct {
	OrderIDs      []int64      `json:"order_ids" validate:"required,min=1"`
	Status        *OrderStatus `json:"status"`
	DeliverymanID *int64       `json:"deliveryman_id"`
	FromCityID    *int64       `json:"from_city_id"`
	ToCityID      *int64       `json:"to_city_id"`
	Note          string       `json:"note"`
}

type BulkUpdateResult struct {
	Updated int             `json:"updated"`
	Failed  int             `json:"failed"`
	Errors  []BulkItemError `json:"errors"`
}

type SettleOrdersRequest struct {
	OrderIDs []int64 `json:"order_ids" validate:"required,min=1"`
}
