package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bharathbbg/parcel-hub/internal/apperr"
	"github.com/bharathbbg/parcel-hub/internal/metrics"
	"github.com/bharathbbg/parcel-hub/internal/model"
)

// TrackingService handles hub intake and the manual transit events hub
// staff record between status changes.
type TrackingService struct {
	tx       Transactor
	orders   OrderStore
	tracking TrackingStore
	cache    Cache
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewTrackingService(tx Transactor, orders OrderStore, tracking TrackingStore, cache Cache,
	m *metrics.Metrics, log *zap.Logger) *TrackingService {
	if cache == nil {
		cache = nopCache{}
	}
	return &TrackingService{
		tx:       tx,
		orders:   orders,
		tracking: tracking,
		cache:    cache,
		metrics:  m,
		log:      log.Named("tracking"),
		now:      time.Now,
	}
}

func depositable(s model.OrderStatus) bool {
	return s == model.StatusInPreparation || s == model.StatusConfirmed
}

// Scan checks whether the order behind a tracking code may be deposited at
// a hub. Ineligible orders produce an unsuccessful result, not an error.
func (s *TrackingService) Scan(ctx context.Context, p model.Principal, code string) (*model.HubScanResult, error) {
	if !p.IsHubStaff() {
		return nil, apperr.Forbidden("role %s may not scan orders", p.Role)
	}
	code = strings.TrimSpace(code)
	res := &model.HubScanResult{OrderCode: code}

	order, err := s.orders.GetOrderByCode(ctx, code)
	if apperr.Is(err, apperr.KindNotFound) {
		res.Reason = fmt.Sprintf("order %s not found", code)
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	res.OrderID = order.ID
	res.Status = order.Status
	if !depositable(order.Status) {
		res.Reason = fmt.Sprintf("order is %s, only %s or %s orders can be deposited",
			order.Status, model.StatusInPreparation, model.StatusConfirmed)
		return res, nil
	}
	res.Success = true
	return res, nil
}

// BulkDeposit registers every listed order at the hub. Each order is
// validated and written on its own.
func (s *TrackingService) BulkDeposit(ctx context.Context, p model.Principal, req *model.BulkDepositRequest) (*model.BulkDepositResult, error) {
	if !p.IsHubStaff() {
		return nil, apperr.Forbidden("role %s may not deposit orders", p.Role)
	}

	res := &model.BulkDepositResult{Results: make([]model.HubScanResult, 0, len(req.OrderIDs))}
	for _, id := range req.OrderIDs {
		item, err := s.depositOne(ctx, p, req.HubID, id, req.Note)
		s.metrics.BulkItem("bulk_deposit", err)
		if err == nil {
			res.SuccessCount++
		} else {
			res.FailedCount++
		}
		res.Results = append(res.Results, item)
	}
	s.log.Info("bulk deposit finished", zap.Int64("hub_id", req.HubID),
		zap.Int("success", res.SuccessCount), zap.Int("failed", res.FailedCount))
	return res, nil
}

func (s *TrackingService) depositOne(ctx context.Context, p model.Principal, hubID, orderID int64, note string) (model.HubScanResult, error) {
	item := model.HubScanResult{OrderID: orderID}
	var order *model.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.orders.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		item.OrderCode = order.OrderCode
		item.Status = order.Status
		if !depositable(order.Status) {
			return apperr.BadRequest("order is %s, only %s or %s orders can be deposited",
				order.Status, model.StatusInPreparation, model.StatusConfirmed)
		}

		now := s.now()
		from := order.Status
		order.HubID = &hubID
		order.Status = model.StatusDispatched
		order.UpdatedAt = now
		if err := s.orders.UpdateOrder(ctx, order); err != nil {
			return err
		}
		text := fmt.Sprintf("Deposited at hub %d (%s to %s)", hubID, from, model.StatusDispatched)
		if note != "" {
			text += ": " + note
		}
		return s.tracking.AppendTracking(ctx, &model.OrderTracking{
			OrderID:      order.ID,
			Status:       order.Status,
			Action:       model.ActionDeposited,
			LocationType: model.LocationHub,
			CityID:       order.FromCityID,
			HubID:        &hubID,
			ActorID:      &p.UserID,
			Note:         text,
			CreatedAt:    now,
		})
	})
	if err != nil {
		item.Reason = bulkMessage(err)
		if !apperr.Is(err, apperr.KindBadRequest) && !apperr.Is(err, apperr.KindNotFound) {
			s.log.Error("hub deposit failed", zap.Int64("order_id", orderID), zap.Error(err))
		}
		return item, err
	}

	item.Success = true
	item.Status = order.Status
	s.metrics.StatusTransition(string(model.StatusDispatched))
	if err := s.cache.InvalidateTracking(ctx, order.OrderCode); err != nil {
		s.log.Warn("tracking cache invalidation failed", zap.String("order_code", order.OrderCode), zap.Error(err))
	}
	return item, nil
}

// RecordEvent appends a transit event without touching the order status.
func (s *TrackingService) RecordEvent(ctx context.Context, p model.Principal, req *model.RecordEventRequest) (*model.OrderTracking, error) {
	if !p.IsHubStaff() && p.Role != model.RolePickupPointAdmin {
		return nil, apperr.Forbidden("role %s may not record tracking events", p.Role)
	}
	if !req.Action.IsTransitEvent() {
		return nil, apperr.BadRequest("action %s cannot be recorded manually", req.Action)
	}
	if !req.LocationType.Valid() {
		return nil, apperr.BadRequest("invalid location type %q", req.LocationType)
	}

	order, err := s.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if IsTerminal(order.Status) {
		return nil, apperr.BadRequest("order %s is %s", order.OrderCode, order.Status)
	}

	entry := &model.OrderTracking{
		OrderID:       order.ID,
		Status:        order.Status,
		Action:        req.Action,
		LocationType:  req.LocationType,
		CityID:        req.CityID,
		HubID:         req.HubID,
		PickupPointID: req.PickupPointID,
		ActorID:       &p.UserID,
		Note:          req.Note,
		Metadata:      req.Metadata,
		CreatedAt:     s.now(),
	}
	if err := s.tracking.AppendTracking(ctx, entry); err != nil {
		return nil, err
	}
	if err := s.cache.InvalidateTracking(ctx, order.OrderCode); err != nil {
		s.log.Warn("tracking cache invalidation failed", zap.String("order_code", order.OrderCode), zap.Error(err))
	}
	s.log.Debug("tracking event recorded", zap.String("order_code", order.OrderCode),
		zap.String("action", string(req.Action)), zap.String("actor", strconv.FormatInt(p.UserID, 10)))
	return entry, nil
}
