package service

import (
	"context"
	"time"

	"github.com/bharathbbg/parcel-hub/internal/model"
)

// Transactor runs fn inside one database transaction carried by ctx. Store
// calls made with that ctx join the transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type GeographyStore interface {
	GetWilaya(ctx context.Context, code string) (*model.Wilaya, error)
	ListWilayas(ctx context.Context) ([]model.Wilaya, error)
	GetCity(ctx context.Context, id int64) (*model.City, error)
	ListCitiesByWilaya(ctx context.Context, code string) ([]model.City, error)
	FindCities(ctx context.Context, ids []int64) ([]model.City, error)
}

type ShippingStore interface {
	CreateRoute(ctx context.Context, fee *model.ShippingFee) error
	GetRoute(ctx context.Context, id int64) (*model.ShippingFee, error)
	// LockRoute loads the route with its zones and holds a row lock on it
	// until the surrounding transaction ends.
	LockRoute(ctx context.Context, id int64) (*model.ShippingFee, error)
	FindRoute(ctx context.Context, fromCode, toCode string) (*model.ShippingFee, error)
	ListRoutes(ctx context.Context, filter model.RouteFilter) ([]model.ShippingFee, error)
	UpdateRoute(ctx context.Context, fee *model.ShippingFee) error
	UpsertRoute(ctx context.Context, fee *model.ShippingFee) (created bool, err error)
	GetZone(ctx context.Context, id int64) (*model.ShippingZone, error)
	CreateZone(ctx context.Context, zone *model.ShippingZone) error
	UpdateZone(ctx context.Context, zone *model.ShippingZone) error
	DeleteZone(ctx context.Context, id int64) error
	DeleteZonesByRoute(ctx context.Context, routeID int64) (int64, error)
}

type OrderStore interface {
	NextOrderSequence(ctx context.Context, year int) (int64, error)
	CreateOrder(ctx context.Context, order *model.Order) error
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	// LockOrder loads the order and holds a row lock on it until the
	// surrounding transaction ends.
	LockOrder(ctx context.Context, id int64) (*model.Order, error)
	GetOrderByCode(ctx context.Context, code string) (*model.Order, error)
	ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, int, error)
	UpdateOrder(ctx context.Context, order *model.Order) error
}

type ProductCatalog interface {
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
}

type TrackingStore interface {
	AppendTracking(ctx context.Context, entry *model.OrderTracking) error
	ListTracking(ctx context.Context, orderID int64) ([]model.OrderTracking, error)
}

type LockerStore interface {
	CreateLocker(ctx context.Context, locker *model.Locker) error
	// GetLocker loads the locker with its closets ordered by number.
	GetLocker(ctx context.Context, id int64) (*model.Locker, error)
	ListLockers(ctx context.Context) ([]model.Locker, error)
	UpdateLocker(ctx context.Context, locker *model.Locker) error
	AddClosets(ctx context.Context, lockerID int64, from, to int) error
	// RemoveClosetsAbove deletes the available closets numbered above
	// capacity and returns how many were deleted.
	RemoveClosetsAbove(ctx context.Context, lockerID int64, capacity int) (int64, error)
	GetCloset(ctx context.Context, lockerID int64, number int) (*model.Closet, error)
	// ReserveAvailableCloset flips the lowest numbered available closet to
	// reserved. ok is false when none is available.
	ReserveAvailableCloset(ctx context.Context, lockerID int64) (number int, ok bool, err error)
	// TransitionCloset applies t as a compare-and-set and reports whether a
	// closet matched.
	TransitionCloset(ctx context.Context, t model.ClosetTransition) (bool, error)
	ListClosetsByStatus(ctx context.Context, lockerID int64, status model.ClosetStatus) ([]model.Closet, error)
	ListExpiredClosets(ctx context.Context, now time.Time) ([]model.Closet, error)
}

type FinanceStore interface {
	// ListUnclaimedOrders returns the vendor's PAID and RETURNED orders not
	// linked to any withdrawal request. Inside a transaction the rows are locked.
	ListUnclaimedOrders(ctx context.Context, vendorID int64) ([]model.Order, error)
	CreateWithdrawalRequest(ctx context.Context, req *model.WithdrawalRequest) error
	LinkOrders(ctx context.Context, requestID int64, orderIDs []int64) (int64, error)
	UnlinkOrders(ctx context.Context, requestID int64) (int64, error)
	GetWithdrawalRequest(ctx context.Context, id int64) (*model.WithdrawalRequest, error)
	ListWithdrawalRequests(ctx context.Context, filter model.WithdrawalFilter) ([]model.WithdrawalRequest, error)
	UpdateWithdrawalRequest(ctx context.Context, req *model.WithdrawalRequest) error
	DeleteWithdrawalRequest(ctx context.Context, id int64) error
}

// Cache is a best effort read-through cache. A miss returns nil, nil.
type Cache interface {
	GetTracking(ctx context.Context, code string) (*model.TrackingView, error)
	SetTracking(ctx context.Context, view *model.TrackingView) error
	InvalidateTracking(ctx context.Context, code string) error
	GetRoute(ctx context.Context, fromCode, toCode string) (*model.ShippingFee, error)
	SetRoute(ctx context.Context, fee *model.ShippingFee) error
	InvalidateRoute(ctx context.Context, fromCode, toCode string) error
}

// Notifier dispatches a message to a user. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

type nopCache struct{}

func (nopCache) GetTracking(context.Context, string) (*model.TrackingView, error) { return nil, nil }
func (nopCache) SetTracking(context.Context, *model.TrackingView) error { return nil }
func (nopCache) InvalidateTracking(context.Context, string) error { return nil }
func (nopCache) GetRoute(context.Context, string, string) (*model.ShippingFee, error) {
	return nil, nil
}
func (nopCache) SetRoute(context.Context, *model.ShippingFee) error { return nil }
func (nopCache) InvalidateRoute(context.Context, string, string) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.Notification) error { return nil }
