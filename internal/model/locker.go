package model

import (
	"fmt"
	"time"
)

type ClosetStatus string

const (
	ClosetAvailable   ClosetStatus = "available"
	ClosetReserved    ClosetStatus = "reserved"
	ClosetOccupied    ClosetStatus = "occupied"
	ClosetMaintenance ClosetStatus = "maintenance"
)

type Locker struct {
	ID             int64     `json:"id" db:"id"`
	ReferenceID    string    `json:"reference_id" db:"reference_id"`
	Name           string    `json:"name" db:"name"`
	Address        string    `json:"address" db:"address"`
	CityID         int64     `json:"city_id" db:"city_id"`
	WilayaCode     string    `json:"wilaya_code" db:"wilaya_code"`
	Capacity       int       `json:"capacity" db:"capacity"`
	OperatingHours string    `json:"operating_hours" db:"operating_hours"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
	Closets        []Closet  `json:"closets" db:"-"`
}

// LockerReference builds the stable kiosk reference of a locker.
func LockerReference(wilayaCode string, lockerID int64) string {
	return fmt.Sprintf("LOCK-%s-%d", wilayaCode, lockerID)
}

// Closet is one numbered compartment of a locker. The password fields are
// only set while the closet is occupied through the kiosk protocol.
type Closet struct {
	LockerID          int64        `json:"locker_id" db:"locker_id"`
	Number            int          `json:"id" db:"closet_number"`
	Status            ClosetStatus `json:"status" db:"status"`
	CurrentOrderID    *int64       `json:"current_order_id" db:"current_order_id"`
	PasswordHash      *string      `json:"-" db:"password_hash"`
	PasswordExpiresAt *time.Time   `json:"password_expires_at,omitempty" db:"password_expires_at"`
	DepositedAt       *time.Time   `json:"deposited_at,omitempty" db:"deposited_at"`
	UpdatedAt         time.Time    `json:"updated_at" db:"updated_at"`
}

// Expired reports whether the closet's access code is no longer usable at now.
func (c *Closet) Expired(now time.Time) bool {
	return c.PasswordExpiresAt == nil || !now.Before(*c.PasswordExpiresAt)
}

// ClosetTransition is a compare-and-set on one closet: it applies only while
// the closet is in one of From. Every nullable field is written as given, so
// a transition to available clears the order link and the password fields.
type ClosetTransition struct {
	LockerID          int64
	Number            int
	From              []ClosetStatus
	To                ClosetStatus
	CurrentOrderID    *int64
	PasswordHash      *string
	PasswordExpiresAt *time.Time
	DepositedAt       *time.Time
	// ExpiredBefore further restricts the update to closets whose password
	// expired before this instant.
	ExpiredBefore *time.Time
}

// Request/Response models
type CreateLockerRequest struct {
	Name           string `json:"name" validate:"required"`
	Address        string `json:"address"`
	CityID         int64  `json:"city_id" validate:"required"`
	Capacity       int    `json:"capacity" validate:"required,min=1,max=500"`
	OperatingHours string `json:"operating_hours"`
}

type UpdateLockerRequest struct {
	Name           *string `json:"name"`
	Address        *string `json:"address"`
	CityID         *int64  `json:"city_id"`
	Capacity       *int    `json:"capacity" validate:"omitempty,min=1,max=500"`
	OperatingHours *string `json:"operating_hours"`
	IsActive       *bool   `json:"is_active"`
}

type OpenDepositRequest struct {
	LockerID     int64  `json:"locker_id" validate:"required"`
	TrackingCode string `json:"tracking_code" validate:"required"`
}

type OpenDepositResult struct {
	LockerID int64 `json:"locker_id"`
	ClosetID int   `json:"closet_id"`
}

type CloseDepositRequest struct {
	LockerID     int64  `json:"locker_id" validate:"required"`
	ClosetID     int    `json:"closet_id" validate:"required"`
	TrackingCode string `json:"tracking_code" validate:"required"`
}

// CloseDepositResult carries the plaintext access code. It is never stored
// and cannot be retrieved again.
type CloseDepositResult struct {
	LockerID  int64     `json:"locker_id"`
	ClosetID  int       `json:"closet_id"`
	OrderID   int64     `json:"order_id"`
	OrderCode string    `json:"tracking_code"`
	Password  string    `json:"password"`
	ExpiresAt time.Time `json:"expires_at"`
}

type OpenWithdrawRequest struct {
	LockerID int64  `json:"locker_id" validate:"required"`
	Password string `json:"password" validate:"required,len=6,numeric"`
}

type OpenWithdrawResult struct {
	LockerID int64 `json:"locker_id"`
	ClosetID int   `json:"closet_id"`
	OrderID  int64 `json:"order_id"`
}

type CloseWithdrawRequest struct {
	LockerID int64 `json:"locker_id" validate:"required"`
	ClosetID int   `json:"closet_id" validate:"required"`
}

type AssignClosetRequest struct {
	OrderID int64 `json:"order_id" validate:"required"`
}

type CleanupResult struct {
	Scanned  int             `json:"scanned"`
	Released int             `json:"released"`
	Errors   []BulkItemError `json:"errors,omitempty"`
}
