package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bharathbbg/parcel-hub/internal/apperr"
	"github.com/bharathbbg/parcel-hub/internal/metrics"
	"github.com/bharathbbg/parcel-hub/internal/model"
)

type OrderService struct {
	tx       Transactor
	orders   OrderStore
	products ProductCatalog
	tracking TrackingStore
	geo      GeographyStore
	shipping *ShippingService
	cache    Cache
	notifier Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewOrderService(tx Transactor, orders OrderStore, products ProductCatalog, tracking TrackingStore,
	geo GeographyStore, shipping *ShippingService, cache Cache, notifier Notifier,
	m *metrics.Metrics, log *zap.Logger) *OrderService {
	if cache == nil {
		cache = nopCache{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &OrderService{
		tx:       tx,
		orders:   orders,
		products: products,
		tracking: tracking,
		geo:      geo,
		shipping: shipping,
		cache:    cache,
		notifier: notifier,
		metrics:  m,
		log:      log.Named("orders"),
		now:      time.Now,
	}
}

func mayCreateOrders(p model.Principal) bool {
	return p.Role == model.RoleVendor || p.IsHubStaff()
}

// canView reports whether p may read order: staff see everything, vendors
// their own orders and deliverymen the orders assigned to them.
func canView(p model.Principal, order *model.Order) bool {
	switch p.Role {
	case model.RoleAdmin, model.RoleModerator, model.RoleHubAdmin, model.RoleHubEmployee, model.RolePickupPointAdmin:
		return true
	case model.RoleVendor:
		return order.SenderID == p.UserID
	case model.RoleDeliveryman:
		return order.DeliverymanID != nil && *order.DeliverymanID == p.UserID
	}
	return false
}

// CreateOrder validates and prices a new order, then persists it together
// with its first tracking entry.
func (s *OrderService) CreateOrder(ctx context.Context, p model.Principal, req *model.CreateOrderRequest) (*model.Order, error) {
	if !mayCreateOrders(p) {
		return nil, apperr.Forbidden("role %s may not create orders", p.Role)
	}

	items, calculated, err := s.priceItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	var price decimal.Decimal
	switch {
	case req.Price != nil && len(items) > 0:
		if !model.WithinTolerance(*req.Price, calculated) {
			return nil, apperr.BadRequest("order price %s does not match items total %s",
				req.Price.StringFixed(2), calculated.StringFixed(2))
		}
		price = *req.Price
	case req.Price != nil:
		price = *req.Price
	case len(items) > 0:
		price = calculated
	default:
		return nil, apperr.BadRequest("price is required when no items are given")
	}
	if price.IsNegative() {
		return nil, apperr.BadRequest("price must not be negative")
	}

	order := &model.Order{
		SenderID:      p.UserID,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		ContactPhone:  req.ContactPhone,
		ContactPhone2: req.ContactPhone2,
		Address:       req.Address,
		FromCityID:    req.FromCityID,
		ToCityID:      req.ToCityID,
		Price:         price,
		Weight:        req.Weight,
		Height:        req.Height,
		Width:         req.Width,
		Length:        req.Length,
		IsStopDesk:    req.IsStopDesk,
		FreeShipping:  req.FreeShipping,
		HasExchange:   req.HasExchange,
		PaymentType:   req.PaymentType,
		Status:        model.StatusInPreparation,
		Items:         items,
	}
	if order.PaymentType == "" {
		order.PaymentType = model.PaymentCashOnDelivery
	}

	weight := s.shipping.Policy().EffectiveWeight(req.Weight, totalQuantity(items))

	for _, cityID := range []*int64{req.FromCityID, req.ToCityID} {
		if cityID == nil {
			continue
		}
		if _, err := s.geo.GetCity(ctx, *cityID); err != nil {
			return nil, err
		}
	}
	if order.CitiesAssigned() {
		fee, err := s.shipping.ShipmentFee(ctx, *order.FromCityID, *order.ToCityID, order.DeliveryType(), weight)
		if err != nil {
			return nil, err
		}
		order.ShippingFee = decimal.NewNullDecimal(fee)
	}

	note := "Order created, waiting for city assignment"
	if order.CitiesAssigned() {
		note = "Order created"
	}

	now := s.now()
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		seq, err := s.orders.NextOrderSequence(ctx, now.Year())
		if err != nil {
			return err
		}
		order.OrderCode = fmt.Sprintf("ORD-%d-%06d", now.Year(), seq)
		order.CreatedAt = now
		order.UpdatedAt = now
		if err := s.orders.CreateOrder(ctx, order); err != nil {
			return err
		}
		return s.tracking.AppendTracking(ctx, &model.OrderTracking{
			OrderID:      order.ID,
			Status:       order.Status,
			Action:       model.ActionCreated,
			LocationType: model.LocationVendor,
			CityID:       order.FromCityID,
			ActorID:      &p.UserID,
			Note:         note,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderCreated()
	s.log.Info("order created", zap.String("order_code", order.OrderCode), zap.Int64("sender_id", p.UserID))
	return order, nil
}

// priceItems resolves every item's product and returns the items with their
// totals along with the order total.
func (s *OrderService) priceItems(ctx context.Context, inputs []model.OrderItemInput) ([]model.OrderItem, decimal.Decimal, error) {
	total := decimal.Zero
	items := make([]model.OrderItem, 0, len(inputs))
	for _, in := range inputs {
		if in.Quantity < 1 {
			return nil, decimal.Zero, apperr.BadRequest("quantity of product %d must be at least 1", in.ProductID)
		}
		if in.UnitPrice.IsNegative() {
			return nil, decimal.Zero, apperr.BadRequest("unit price of product %d must not be negative", in.ProductID)
		}
		if _, err := s.products.GetProduct(ctx, in.ProductID); err != nil {
			return nil, decimal.Zero, err
		}

		line := in.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity)))
		if in.TotalPrice != nil && !model.WithinTolerance(*in.TotalPrice, line) {
			return nil, decimal.Zero, apperr.BadRequest("total price %s of product %d does not match %d x %s",
				in.TotalPrice.StringFixed(2), in.ProductID, in.Quantity, in.UnitPrice.StringFixed(2))
		}
		items = append(items, model.OrderItem{
			ProductID:  in.ProductID,
			Quantity:   in.Quantity,
			UnitPrice:  in.UnitPrice,
			TotalPrice: line,
		})
		total = total.Add(line)
	}
	return items, total, nil
}

func totalQuantity(items []model.OrderItem) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

func (s *OrderService) GetOrder(ctx context.Context, p model.Principal, id int64) (*model.Order, error) {
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(p, order) {
		return nil, apperr.Forbidden("order %d is not visible to user %d", id, p.UserID)
	}
	return order, nil
}

// ListOrders scopes the filter to what p may see.
func (s *OrderService) ListOrders(ctx context.Context, p model.Principal, filter model.OrderFilter) ([]model.Order, int, error) {
	switch p.Role {
	case model.RoleVendor:
		filter.SenderID = &p.UserID
	case model.RoleDeliveryman:
		filter.DeliverymanID = &p.UserID
	case model.RoleClient:
		return nil, 0, apperr.Forbidden("role %s may not list orders", p.Role)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, apperr.BadRequest("invalid status %q", filter.Status)
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.orders.ListOrders(ctx, filter)
}

// UpdateStatus moves an order along the status graph. The role gate is
// checked before the transition table.
func (s *OrderService) UpdateStatus(ctx context.Context, p model.Principal, id int64, req *model.UpdateStatusRequest) (*model.Order, error) {
	var order *model.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.orders.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := checkStatusChange(p, order, req.Status); err != nil {
			return err
		}
		return s.applyStatus(ctx, p, order, req.Status, req.Note)
	})
	if err != nil {
		return nil, err
	}

	s.afterChange(ctx, order)
	s.notify(ctx, order.SenderID, "Order update",
		fmt.Sprintf("Order %s is now %s", order.OrderCode, order.Status), order)
	return order, nil
}

// applyStatus writes the new status and its tracking entry. The caller owns
// the transaction and the validation.
func (s *OrderService) applyStatus(ctx context.Context, p model.Principal, order *model.Order, to model.OrderStatus, note string) error {
	now := s.now()
	from := order.Status
	order.Status = to
	order.UpdatedAt = now
	switch to {
	case model.StatusDelivered:
		order.DeliveredAt = &now
	case model.StatusCancelled:
		order.CancelledAt = &now
	}
	if err := s.orders.UpdateOrder(ctx, order); err != nil {
		return err
	}

	text := fmt.Sprintf("Status changed from %s to %s", from, to)
	if note != "" {
		text += ": " + note
	}
	loc, cityID := locationFor(order, to)
	if err := s.tracking.AppendTracking(ctx, &model.OrderTracking{
		OrderID:      order.ID,
		Status:       to,
		Action:       actionFor(to, from),
		LocationType: loc,
		CityID:       cityID,
		ActorID:      &p.UserID,
		Note:         text,
		CreatedAt:    now,
	}); err != nil {
		return err
	}
	s.metrics.StatusTransition(string(to))
	return nil
}

// AssignDeliveryman attaches a deliveryman to an order. A newly attached
// deliveryman confirms an order still in preparation.
func (s *OrderService) AssignDeliveryman(ctx context.Context, p model.Principal, id int64, deliverymanID int64) (*model.Order, error) {
	if !p.IsHubStaff() {
		return nil, apperr.Forbidden("role %s may not assign deliverymen", p.Role)
	}
	if deliverymanID <= 0 {
		return nil, apperr.BadRequest("deliveryman id is required")
	}

	var order *model.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.orders.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		return s.applyDeliveryman(ctx, p, order, deliverymanID)
	})
	if err != nil {
		return nil, err
	}

	s.afterChange(ctx, order)
	s.notify(ctx, deliverymanID, "New delivery",
		fmt.Sprintf("Order %s has been assigned to you", order.OrderCode), order)
	return order, nil
}

func (s *OrderService) applyDeliveryman(ctx context.Context, p model.Principal, order *model.Order, deliverymanID int64) error {
	if IsTerminal(order.Status) {
		return apperr.BadRequest("order %s is %s and cannot be assigned", order.OrderCode, order.Status)
	}

	now := s.now()
	newlyAttached := order.DeliverymanID == nil
	order.DeliverymanID = &deliverymanID
	order.UpdatedAt = now
	note := fmt.Sprintf("Assigned to deliveryman %d", deliverymanID)
	// Attaching a deliveryman confirms a new order and dispatches a confirmed
	// one. Reassignment leaves the status alone.
	if newlyAttached {
		switch order.Status {
		case model.StatusInPreparation:
			order.Status = model.StatusConfirmed
			note += ", order confirmed"
			s.metrics.StatusTransition(string(model.StatusConfirmed))
		case model.StatusConfirmed:
			order.Status = model.StatusDispatched
			note += ", order dispatched"
			s.metrics.StatusTransition(string(model.StatusDispatched))
		}
	}
	if err := s.orders.UpdateOrder(ctx, order); err != nil {
		return err
	}
	return s.tracking.AppendTracking(ctx, &model.OrderTracking{
		OrderID:      order.ID,
		Status:       order.Status,
		Action:       model.ActionAssigned,
		LocationType: model.LocationDeliveryman,
		CityID:       order.FromCityID,
		ActorID:      &p.UserID,
		Note:         note,
		Metadata:     model.Metadata{"deliveryman_id": strconv.FormatInt(deliverymanID, 10)},
		CreatedAt:    now,
	})
}

// AssignCities sets the origin and destination of an order created without
// them and prices its shipment.
func (s *OrderService) AssignCities(ctx context.Context, p model.Principal, id int64, req *model.AssignCitiesRequest) (*model.Order, error) {
	if !p.IsHubStaff() {
		return nil, apperr.Forbidden("role %s may not assign cities", p.Role)
	}

	var order *model.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.orders.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		return s.applyCities(ctx, p, order, req.FromCityID, req.ToCityID)
	})
	if err != nil {
		return nil, err
	}

	s.afterChange(ctx, order)
	return order, nil
}

func (s *OrderService) applyCities(ctx context.Context, p model.Principal, order *model.Order, fromCityID, toCityID int64) error {
	if IsTerminal(order.Status) {
		return apperr.BadRequest("order %s is %s and cannot be rerouted", order.OrderCode, order.Status)
	}

	weight := s.shipping.Policy().EffectiveWeight(order.Weight, totalQuantity(order.Items))
	fee, err := s.shipping.ShipmentFee(ctx, fromCityID, toCityID, order.DeliveryType(), weight)
	if err != nil {
		return err
	}

	now := s.now()
	order.FromCityID = &fromCityID
	order.ToCityID = &toCityID
	order.ShippingFee = decimal.NewNullDecimal(fee)
	order.UpdatedAt = now
	if err := s.orders.UpdateOrder(ctx, order); err != nil {
		return err
	}
	return s.tracking.AppendTracking(ctx, &model.OrderTracking{
		OrderID:      order.ID,
		Status:       order.Status,
		Action:       model.ActionCitiesAssigned,
		LocationType: model.LocationHub,
		CityID:       order.FromCityID,
		ActorID:      &p.UserID,
		Note:         fmt.Sprintf("Cities assigned, shipping fee %s", fee.StringFixed(2)),
		CreatedAt:    now,
	})
}

// BulkUpdate applies req to each order on its own. A failing order is
// reported and does not stop the others.
func (s *OrderService) BulkUpdate(ctx context.Context, p model.Principal, req *model.BulkUpdateRequest) *model.BulkUpdateResult {
	res := &model.BulkUpdateResult{Errors: []model.BulkItemError{}}
	for _, id := range req.OrderIDs {
		order, err := s.updateOne(ctx, p, id, req)
		s.metrics.BulkItem("bulk_update_orders", err)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, model.BulkItemError{ID: strconv.FormatInt(id, 10), Error: bulkMessage(err)})
			continue
		}
		res.Updated++
		s.afterChange(ctx, order)
	}
	s.log.Info("bulk order update finished", zap.Int("updated", res.Updated), zap.Int("failed", res.Failed))
	return res
}

func (s *OrderService) updateOne(ctx context.Context, p model.Principal, id int64, req *model.BulkUpdateRequest) (*model.Order, error) {
	if req.Status == nil && req.DeliverymanID == nil && req.FromCityID == nil && req.ToCityID == nil {
		return nil, apperr.BadRequest("nothing to update")
	}
	if (req.FromCityID == nil) != (req.ToCityID == nil) {
		return nil, apperr.BadRequest("from and to cities must be given together")
	}

	var order *model.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.orders.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if req.FromCityID != nil {
			if !p.IsHubStaff() {
				return apperr.Forbidden("role %s may not assign cities", p.Role)
			}
			if err := s.applyCities(ctx, p, order, *req.FromCityID, *req.ToCityID); err != nil {
				return err
			}
		}
		if req.DeliverymanID != nil {
			if !p.IsHubStaff() {
				return apperr.Forbidden("role %s may not assign deliverymen", p.Role)
			}
			if err := s.applyDeliveryman(ctx, p, order, *req.DeliverymanID); err != nil {
				return err
			}
		}
		if req.Status != nil && *req.Status != order.Status {
			if err := checkStatusChange(p, order, *req.Status); err != nil {
				return err
			}
			return s.applyStatus(ctx, p, order, *req.Status, req.Note)
		}
		return nil
	})
	return order, err
}

// TrackOrder is the public lookup by tracking code.
func (s *OrderService) TrackOrder(ctx context.Context, code string) (*model.TrackingView, error) {
	if cached, err := s.cache.GetTracking(ctx, code); err == nil && cached != nil {
		return cached, nil
	} else if err != nil {
		s.log.Warn("tracking cache read failed", zap.String("order_code", code), zap.Error(err))
	}

	order, err := s.orders.GetOrderByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	history, err := s.tracking.ListTracking(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	view := &model.TrackingView{
		OrderCode:  order.OrderCode,
		Status:     order.Status,
		FromCityID: order.FromCityID,
		ToCityID:   order.ToCityID,
		IsStopDesk: order.IsStopDesk,
		UpdatedAt:  order.UpdatedAt,
		History:    history,
	}
	if err := s.cache.SetTracking(ctx, view); err != nil {
		s.log.Warn("tracking cache write failed", zap.String("order_code", code), zap.Error(err))
	}
	return view, nil
}

func (s *OrderService) History(ctx context.Context, p model.Principal, id int64) ([]model.OrderTracking, error) {
	if _, err := s.GetOrder(ctx, p, id); err != nil {
		return nil, err
	}
	return s.tracking.ListTracking(ctx, id)
}

func (s *OrderService) afterChange(ctx context.Context, order *model.Order) {
	if err := s.cache.InvalidateTracking(ctx, order.OrderCode); err != nil {
		s.log.Warn("tracking cache invalidation failed", zap.String("order_code", order.OrderCode), zap.Error(err))
	}
}

func (s *OrderService) notify(ctx context.Context, userID int64, title, message string, order *model.Order) {
	err := s.notifier.Notify(ctx, model.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Data:    map[string]string{"order_id": order.OrderCode, "status": string(order.Status)},
	})
	if err != nil {
		s.log.Warn("notification failed", zap.Int64("user_id", userID), zap.String("order_code", order.OrderCode), zap.Error(err))
	}
}

// bulkMessage hides unclassified failures behind a generic message.
func bulkMessage(err error) string {
	if msg := apperr.Message(err); msg != "" {
		return msg
	}
	return "internal error"
}
