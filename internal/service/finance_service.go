package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bharathbbg/parcel-hub/internal/apperr"
	"github.com/bharathbbg/parcel-hub/internal/metrics"
	"github.com/bharathbbg/parcel-hub/internal/model"
)

type FinanceService struct {
	tx       Transactor
	finance  FinanceStore
	orders   OrderStore
	tracking TrackingStore
	cache    Cache
	notifier Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewFinanceService(tx Transactor, finance FinanceStore, orders OrderStore, tracking TrackingStore,
	cache Cache, notifier Notifier, m *metrics.Metrics, log *zap.Logger) *FinanceService {
	if cache == nil {
		cache = nopCache{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &FinanceService{
		tx:       tx,
		finance:  finance,
		orders:   orders,
		tracking: tracking,
		cache:    cache,
		notifier: notifier,
		metrics:  m,
		log:      log.Named("finance"),
		now:      time.Now,
	}
}

// vendorFor resolves whose money p is asking about. Vendors only ever act
// for themselves.
func vendorFor(p model.Principal, requested int64) (int64, error) {
	switch {
	case p.Role == model.RoleVendor:
		if requested != 0 && requested != p.UserID {
			return 0, apperr.Forbidden("vendor %d may not act for vendor %d", p.UserID, requested)
		}
		return p.UserID, nil
	case p.IsAdmin():
		if requested <= 0 {
			return 0, apperr.BadRequest("vendor id is required")
		}
		return requested, nil
	}
	return 0, apperr.Forbidden("role %s may not access withdrawals", p.Role)
}

type orderTotals struct {
	paid, returned           decimal.Decimal
	paidCount, returnedCount int
}

func sumOrders(orders []model.Order) orderTotals {
	t := orderTotals{paid: decimal.Zero, returned: decimal.Zero}
	for _, o := range orders {
		switch o.Status {
		case model.StatusPaid:
			t.paid = t.paid.Add(o.Price)
			t.paidCount++
		case model.StatusReturned:
			t.returned = t.returned.Add(o.Price)
			t.returnedCount++
		}
	}
	return t
}

// CreateWithdrawalRequest batches every unclaimed PAID and RETURNED order of
// the vendor into a new request and links them to it.
func (s *FinanceService) CreateWithdrawalRequest(ctx context.Context, p model.Principal, req *model.CreateWithdrawalRequest) (*model.WithdrawalRequest, error) {
	vendorID, err := vendorFor(p, req.VendorID)
	if err != nil {
		return nil, err
	}

	var wr *model.WithdrawalRequest
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		orders, err := s.finance.ListUnclaimedOrders(ctx, vendorID)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			return apperr.BadRequest("no eligible orders for vendor %d", vendorID)
		}
		totals := sumOrders(orders)
		total := totals.paid.Sub(totals.returned)
		if !total.IsPositive() {
			return apperr.BadRequest("nothing payable for vendor %d: balance is %s", vendorID, total.StringFixed(2))
		}

		ids := make([]int64, len(orders))
		for i, o := range orders {
			ids[i] = o.ID
		}
		now := s.now()
		wr = &model.WithdrawalRequest{
			TrackingCode:         "WR-" + strings.ToUpper(xid.New().String()),
			VendorID:             vendorID,
			TotalAmount:          total,
			PaidOrdersAmount:     totals.paid,
			ReturnedOrdersAmount: totals.returned,
			PaidOrdersCount:      totals.paidCount,
			ReturnedOrdersCount:  totals.returnedCount,
			Status:               model.WithdrawalPending,
			Condition:            model.ConditionWaiting,
			Notes:                req.Notes,
			CreatedAt:            now,
			UpdatedAt:            now,
			OrderIDs:             ids,
		}
		if err := s.finance.CreateWithdrawalRequest(ctx, wr); err != nil {
			return err
		}
		linked, err := s.finance.LinkOrders(ctx, wr.ID, ids)
		if err != nil {
			return err
		}
		if linked != int64(len(ids)) {
			return apperr.Conflict("%d of %d orders are already part of another withdrawal request",
				int64(len(ids))-linked, len(ids))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Withdrawal("created")
	s.log.Info("withdrawal request created", zap.String("tracking_code", wr.TrackingCode),
		zap.Int64("vendor_id", vendorID), zap.String("total", wr.TotalAmount.StringFixed(2)))
	return wr, nil
}

func (s *FinanceService) GetWithdrawalRequest(ctx context.Context, p model.Principal, id int64) (*model.WithdrawalRequest, error) {
	wr, err := s.finance.GetWithdrawalRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := vendorFor(p, wr.VendorID); err != nil {
		return nil, err
	}
	return wr, nil
}

func (s *FinanceService) ListWithdrawalRequests(ctx context.Context, p model.Principal, filter model.WithdrawalFilter) ([]model.WithdrawalRequest, error) {
	switch {
	case p.Role == model.RoleVendor:
		filter.VendorID = &p.UserID
	case !p.IsAdmin():
		return nil, apperr.Forbidden("role %s may not access withdrawals", p.Role)
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}
	return s.finance.ListWithdrawalRequests(ctx, filter)
}

// UpdateWithdrawalRequest lets an admin decide on a pending request.
// Approval completes it, rejection cancels it and frees its orders.
func (s *FinanceService) UpdateWithdrawalRequest(ctx context.Context, p model.Principal, id int64, req *model.UpdateWithdrawalRequest) (*model.WithdrawalRequest, error) {
	if !p.IsAdmin() {
		return nil, apperr.Forbidden("only admins may update withdrawal requests")
	}

	var wr *model.WithdrawalRequest
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		wr, err = s.finance.GetWithdrawalRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != nil && *req.Status != wr.Status {
			if wr.Status != model.WithdrawalPending {
				return apperr.BadRequest("withdrawal request %s is already %s", wr.TrackingCode, wr.Status)
			}
			wr.Status = *req.Status
			switch wr.Status {
			case model.WithdrawalApproved:
				wr.Condition = model.ConditionComplete
				if wr.PaymentDate == nil {
					now := s.now()
					wr.PaymentDate = &now
				}
			case model.WithdrawalRejected:
				wr.Condition = model.ConditionCancelled
				if _, err := s.finance.UnlinkOrders(ctx, wr.ID); err != nil {
					return err
				}
				wr.OrderIDs = nil
			}
		}
		if req.Condition != nil {
			wr.Condition = *req.Condition
		}
		if req.PaymentDate != nil {
			wr.PaymentDate = req.PaymentDate
		}
		if req.Notes != nil {
			wr.Notes = *req.Notes
		}
		wr.UpdatedAt = s.now()
		return s.finance.UpdateWithdrawalRequest(ctx, wr)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Withdrawal(string(wr.Status))
	if req.Status != nil {
		if err := s.notifier.Notify(ctx, model.Notification{
			UserID:  wr.VendorID,
			Title:   "Withdrawal request update",
			Message: fmt.Sprintf("Withdrawal request %s is %s", wr.TrackingCode, wr.Status),
			Data:    map[string]string{"tracking_code": wr.TrackingCode, "status": string(wr.Status)},
		}); err != nil {
			s.log.Warn("notification failed", zap.Int64("user_id", wr.VendorID), zap.Error(err))
		}
	}
	return wr, nil
}

// DeleteWithdrawalRequest unlinks the request's orders before removing it.
// Orders are never deleted.
func (s *FinanceService) DeleteWithdrawalRequest(ctx context.Context, p model.Principal, id int64) error {
	if !p.IsAdmin() {
		return apperr.Forbidden("only admins may delete withdrawal requests")
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.finance.GetWithdrawalRequest(ctx, id); err != nil {
			return err
		}
		if _, err := s.finance.UnlinkOrders(ctx, id); err != nil {
			return err
		}
		return s.finance.DeleteWithdrawalRequest(ctx, id)
	})
	if err != nil {
		return err
	}
	s.metrics.Withdrawal("deleted")
	s.log.Info("withdrawal request deleted", zap.Int64("id", id))
	return nil
}

// VendorBalance reports what a new withdrawal request would contain.
func (s *FinanceService) VendorBalance(ctx context.Context, p model.Principal, vendorID int64) (*model.VendorBalance, error) {
	vendorID, err := vendorFor(p, vendorID)
	if err != nil {
		return nil, err
	}
	orders, err := s.finance.ListUnclaimedOrders(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	t := sumOrders(orders)
	return &model.VendorBalance{
		VendorID:             vendorID,
		AvailableAmount:      t.paid.Sub(t.returned),
		PaidOrdersAmount:     t.paid,
		ReturnedOrdersAmount: t.returned,
		PaidOrdersCount:      t.paidCount,
		ReturnedOrdersCount:  t.returnedCount,
	}, nil
}

// SettleOrders marks delivered orders whose cash has been collected as PAID.
// Each order is settled on its own.
func (s *FinanceService) SettleOrders(ctx context.Context, p model.Principal, req *model.SettleOrdersRequest) (*model.BulkUpdateResult, error) {
	if !p.IsAdmin() {
		return nil, apperr.Forbidden("only admins may settle orders")
	}

	res := &model.BulkUpdateResult{Errors: []model.BulkItemError{}}
	for _, id := range req.OrderIDs {
		code, err := s.settleOne(ctx, p, id)
		s.metrics.BulkItem("settle_orders", err)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, model.BulkItemError{ID: strconv.FormatInt(id, 10), Error: bulkMessage(err)})
			continue
		}
		res.Updated++
		if err := s.cache.InvalidateTracking(ctx, code); err != nil {
			s.log.Warn("tracking cache invalidation failed", zap.String("order_code", code), zap.Error(err))
		}
	}
	return res, nil
}

func (s *FinanceService) settleOne(ctx context.Context, p model.Principal, id int64) (string, error) {
	var code string
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		code = order.OrderCode
		if order.Status != model.StatusDelivered {
			return apperr.BadRequest("order %s is %s, only %s orders can be settled",
				order.OrderCode, order.Status, model.StatusDelivered)
		}
		now := s.now()
		order.Status = model.StatusPaid
		order.UpdatedAt = now
		if err := s.orders.UpdateOrder(ctx, order); err != nil {
			return err
		}
		return s.tracking.AppendTracking(ctx, &model.OrderTracking{
			OrderID:      order.ID,
			Status:       model.StatusPaid,
			Action:       model.ActionPaid,
			LocationType: model.LocationHub,
			CityID:       order.ToCityID,
			ActorID:      &p.UserID,
			Note:         fmt.Sprintf("Status changed from %s to %s", model.StatusDelivered, model.StatusPaid),
			CreatedAt:    now,
		})
	})
	if err == nil {
		s.metrics.StatusTransition(string(model.StatusPaid))
	}
	return code, err
}
