package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

type WithdrawalCondition string

const (
	ConditionWaiting   WithdrawalCondition = "waiting"
	ConditionComplete  WithdrawalCondition = "complete"
	ConditionCancelled WithdrawalCondition = "cancelled"
)

// WithdrawalRequest batches a vendor's settled orders into one payout.
type WithdrawalRequest struct {
	ID                   int64               `json:"id" db:"id"`
	TrackingCode         string              `json:"tracking_code" db:"tracking_code"`
	VendorID             int64               `json:"vendor_id" db:"vendor_id"`
	TotalAmount          decimal.Decimal     `json:"total_amount" db:"total_amount"`
	PaidOrdersAmount     decimal.Decimal     `json:"paid_orders_amount" db:"paid_orders_amount"`
	ReturnedOrdersAmount decimal.Decimal     `json:"returned_orders_amount" db:"returned_orders_amount"`
	PaidOrdersCount      int                 `json:"paid_orders_count" db:"paid_orders_count"`
	ReturnedOrdersCount  int                 `json:"returned_orders_count" db:"returned_orders_count"`
	Status               WithdrawalStatus    `json:"status" db:"status"`
	Condition            WithdrawalCondition `json:"condition" db:"condition"`
	PaymentDate          *time.Time          `json:"payment_date,omitempty" db:"payment_date"`
	Notes                string              `json:"notes" db:"notes"`
	CreatedAt            time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at" db:"updated_at"`
	OrderIDs             []int64             `json:"order_ids" db:"-"`
}

type WithdrawalFilter struct {
	VendorID *int64
	Status   WithdrawalStatus
	Limit    int
	Offset   int
}

// VendorBalance summarises the amounts a vendor can still claim.
type VendorBalance struct {
	VendorID             int64           `json:"vendor_id"`
	AvailableAmount      decimal.Decimal `json:"available_amount"`
	PaidOrdersAmount     decimal.Decimal `json:"paid_orders_amount"`
	ReturnedOrdersAmount decimal.Decimal `json:"returned_orders_amount"`
	PaidOrdersCount      int             `json:"paid_orders_count"`
	ReturnedOrdersCount  int             `json:"returned_orders_count"`
}

type CreateWithdrawalRequest struct {
	VendorID int64  `json:"vendor_id"`
	Notes    string `json:"notes"`
}

type UpdateWithdrawalRequest struct {
	Status      *WithdrawalStatus    `json:"status" validate:"omitempty,oneof=pending approved rejected"`
	Condition   *WithdrawalCondition `json:"condition" validate:"omitempty,oneof=waiting complete cancelled"`
	PaymentDate *time.Time           `json:"payment_date"`
	Notes       *string              `json:"notes"`
}

type Notification struct {
	UserID  int64             `json:"user_id"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data,omitempty"`
}
