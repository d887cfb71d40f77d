package service

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bharathbbg/parcel-hub/internal/apperr"
	"github.com/bharathbbg/parcel-hub/internal/model"
)

func TestCreateOrder_PriceReconciliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.route(t, "16", "31", "400", "600", "500")
	phone := f.store.AddProduct(model.Product{VendorID: vendor.UserID, Name: "Phone case", Price: dec("1200")})
	cable := f.store.AddProduct(model.Product{VendorID: vendor.UserID, Name: "Cable", Price: dec("99.99")})

	items := []model.OrderItemInput{
		{ProductID: phone.ID, Quantity: 2, UnitPrice: dec("1200")},
		{ProductID: cable.ID, Quantity: 1, UnitPrice: dec("99.99")},
	}

	tests := []struct {
		name    string
		price   *string
		wantErr bool
		want    string
	}{
		{name: "exact total", price: strp("2499.99"), want: "2499.99"},
		{name: "one cent off is tolerated", price: strp("2500.00"), want: "2500.00"},
		{name: "two cents off is rejected", price: strp("2500.01"), wantErr: true},
		{name: "price derived from items", want: "2499.99"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := orderRequest("0")
			req.Price = nil
			if tt.price != nil {
				req.Price = decp(*tt.price)
			}
			req.Items = items
			req.FromCityID = int64p(1601)
			req.ToCityID = int64p(3102)

			order, err := f.orders.CreateOrder(ctx, vendor, req)
			if tt.wantErr {
				assert.True(t, apperr.Is(err, apperr.KindBadRequest), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.True(t, order.Price.Equal(dec(tt.want)), "price %s", order.Price)
			require.Len(t, order.Items, 2)
			assert.True(t, order.Items[0].TotalPrice.Equal(dec("2400")))
			assert.Nil(t, order.Weight, "no weight was declared")
			require.True(t, order.ShippingFee.Valid)
			assert.True(t, order.ShippingFee.Decimal.Equal(dec("600")))
		})
	}
}

func TestCreateOrder_DeclaredWeightKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.route(t, "16", "31", "400", "600", "500")
	bulb := f.store.AddProduct(model.Product{VendorID: vendor.UserID, Name: "Bulb", Price: dec("50")})

	newReq := func(weight float64, quantity int) *model.CreateOrderRequest {
		req := orderRequest("0")
		req.Price = nil
		req.Weight = &weight
		req.Items = []model.OrderItemInput{{ProductID: bulb.ID, Quantity: quantity, UnitPrice: dec("50")}}
		return req
	}

	tests := []struct {
		name     string
		weight   float64
		quantity int
		fee      string
	}{
		{name: "light parcel", weight: 0.3, quantity: 2, fee: "600"},
		{name: "items outweigh the declaration", weight: 0.3, quantity: 12, fee: "650"},
		{name: "declaration outweighs the items", weight: 7.2, quantity: 2, fee: "750"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newReq(tt.weight, tt.quantity)
			req.FromCityID = int64p(1601)
			req.ToCityID = int64p(3102)
			order, err := f.orders.CreateOrder(ctx, vendor, req)
			require.NoError(t, err)
			require.NotNil(t, order.Weight)
			assert.Equal(t, tt.weight, *order.Weight)
			assert.True(t, order.ShippingFee.Decimal.Equal(dec(tt.fee)), "fee %s", order.ShippingFee.Decimal)

			stored, err := f.orders.GetOrder(ctx, vendor, order.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.weight, *stored.Weight)
		})
	}

	t.Run("city assignment prices without touching the weight", func(t *testing.T) {
		order, err := f.orders.CreateOrder(ctx, vendor, newReq(0.3, 12))
		require.NoError(t, err)
		assert.False(t, order.ShippingFee.Valid)

		assigned, err := f.orders.AssignCities(ctx, hubEmployee, order.ID, &model.AssignCitiesRequest{FromCityID: 1601, ToCityID: 3102})
		require.NoError(t, err)
		assert.Equal(t, 0.3, *assigned.Weight)
		assert.True(t, assigned.ShippingFee.Decimal.Equal(dec("650")), "fee %s", assigned.ShippingFee.Decimal)
	})
}

func TestCreateOrder_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.route(t, "16", "31", "400", "600", "500")
	product := f.store.AddProduct(model.Product{VendorID: vendor.UserID, Name: "Lamp", Price: dec("10")})

	_, err := f.orders.CreateOrder(ctx, client, orderRequest("100"))
	assert.True(t, apperr.Is(err, apperr.KindForbidden), "clients do not ship parcels")

	req := orderRequest("100")
	req.Price = nil
	_, err = f.orders.CreateOrder(ctx, vendor, req)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "no price and no items")

	_, err = f.orders.CreateOrder(ctx, vendor, orderRequest("-5"))
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "negative price")

	req = orderRequest("10")
	req.Items = []model.OrderItemInput{{ProductID: 4242, Quantity: 1, UnitPrice: dec("10")}}
	_, err = f.orders.CreateOrder(ctx, vendor, req)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "unknown product")

	req = orderRequest("20")
	req.Items = []model.OrderItemInput{{ProductID: product.ID, Quantity: 2, UnitPrice: dec("10"), TotalPrice: decp("25")}}
	_, err = f.orders.CreateOrder(ctx, vendor, req)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "line total mismatch")

	req = orderRequest("10")
	req.FromCityID = int64p(1601)
	req.ToCityID = int64p(777777)
	_, err = f.orders.CreateOrder(ctx, vendor, req)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "unknown city")

	orders, total, err := f.orders.ListOrders(ctx, admin, model.OrderFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, orders)
}

func TestCreateOrder_CodeAndInitialTracking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.order(t, vendor)
	second := f.order(t, vendor)
	assert.Equal(t, "ORD-2024-000001", first.OrderCode)
	assert.Equal(t, "ORD-2024-000002", second.OrderCode)
	assert.Equal(t, model.StatusInPreparation, first.Status)
	assert.Equal(t, model.PaymentCashOnDelivery, first.PaymentType)
	assert.Equal(t, vendor.UserID, first.SenderID)

	history, err := f.orders.History(ctx, vendor, first.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.ActionCreated, history[0].Action)
	assert.Equal(t, model.StatusInPreparation, history[0].Status)
	assert.Equal(t, model.LocationVendor, history[0].LocationType)
	assert.Equal(t, "Order created", history[0].Note)
}

func TestCreateOrder_WithoutCitiesThenAssign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fee := f.route(t, "16", "31", "400", "600", "500")
	_, err := f.shipping.CreateZone(ctx, &model.CreateZoneRequest{
		ShippingFeeID: fee.ID, Name: "Centre", Price: dec("550"), CityIDs: []int64{101},
	})
	require.NoError(t, err)

	order, err := f.orders.CreateOrder(ctx, vendor, orderRequest("900"))
	require.NoError(t, err)
	assert.False(t, order.ShippingFee.Valid)

	_, err = f.orders.AssignCities(ctx, vendor, order.ID, &model.AssignCitiesRequest{FromCityID: 1601, ToCityID: 101})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	order, err = f.orders.AssignCities(ctx, hubEmployee, order.ID, &model.AssignCitiesRequest{FromCityID: 1601, ToCityID: 101})
	require.NoError(t, err)
	require.True(t, order.ShippingFee.Valid)
	assert.True(t, order.ShippingFee.Decimal.Equal(dec("550")))
	assert.EqualValues(t, 101, *order.ToCityID)

	history, err := f.orders.History(ctx, admin, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Order created, waiting for city assignment", history[0].Note)
	assert.Equal(t, model.ActionCitiesAssigned, history[1].Action)
}

func TestStatusTable(t *testing.T) {
	tests := []struct {
		from, to model.OrderStatus
		ok       bool
	}{
		{model.StatusInPreparation, model.StatusConfirmed, true},
		{model.StatusInPreparation, model.StatusDispatched, false},
		{model.StatusConfirmed, model.StatusCancelled, true},
		{model.StatusConfirmed, model.StatusDelivered, true},
		{model.StatusConfirmed, model.StatusDispatched, false},
		{model.StatusConfirmed, model.StatusOutForDelivery, false},
		{model.StatusDispatched, model.StatusOutForDelivery, true},
		{model.StatusDispatched, model.StatusDelivered, false},
		{model.StatusOutForDelivery, model.StatusReturned, true},
		{model.StatusReturned, model.StatusInPreparation, true},
		{model.StatusDelivered, model.StatusReturned, false},
		{model.StatusCancelled, model.StatusInPreparation, false},
		{model.StatusPaid, model.StatusDelivered, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to))
		})
	}

	for _, s := range []model.OrderStatus{model.StatusDelivered, model.StatusCancelled, model.StatusPaid} {
		assert.True(t, IsTerminal(s), s)
	}
	assert.True(t, RoleMaySet(model.RoleAdmin, model.StatusReturned))
	assert.True(t, RoleMaySet(model.RoleVendor, model.StatusCancelled))
	assert.False(t, RoleMaySet(model.RoleVendor, model.StatusConfirmed))
	assert.False(t, RoleMaySet(model.RoleDeliveryman, model.StatusCancelled))
	assert.False(t, RoleMaySet(model.RoleHubEmployee, model.StatusConfirmed))
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("delivered is terminal", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, vendor)
		f.setStatus(t, order, model.StatusDelivered)
		for _, to := range []model.OrderStatus{
			model.StatusInPreparation, model.StatusConfirmed, model.StatusDispatched, model.StatusOutForDelivery,
			model.StatusReturned, model.StatusCancelled, model.StatusPaid,
		} {
			_, err := f.orders.UpdateStatus(ctx, admin, order.ID, &model.UpdateStatusRequest{Status: to})
			assert.True(t, apperr.Is(err, apperr.KindBadRequest), "DELIVERED -> %s", to)
		}
	})

	t.Run("confirmation cannot be skipped", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, vendor)
		_, err := f.orders.UpdateStatus(ctx, admin, order.ID, &model.UpdateStatusRequest{Status: model.StatusDispatched})
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	})

	t.Run("confirmed order cannot jump to out for delivery", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, vendor)
		f.setStatus(t, order, model.StatusConfirmed)
		for _, to := range []model.OrderStatus{model.StatusOutForDelivery, model.StatusDispatched} {
			_, err := f.orders.UpdateStatus(ctx, admin, order.ID, &model.UpdateStatusRequest{Status: to})
			assert.True(t, apperr.Is(err, apperr.KindBadRequest), "CONFIRMED -> %s", to)
		}
	})

	t.Run("vendor cancels a confirmed order", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, vendor)
		f.setStatus(t, order, model.StatusConfirmed)

		updated, err := f.orders.UpdateStatus(ctx, vendor, order.ID, &model.UpdateStatusRequest{Status: model.StatusCancelled, Note: "customer changed mind"})
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, updated.Status)
		require.NotNil(t, updated.CancelledAt)
		assert.Equal(t, f.clock, *updated.CancelledAt)

		history, err := f.orders.History(ctx, vendor, order.ID)
		require.NoError(t, err)
		last := history[len(history)-1]
		assert.Equal(t, model.ActionCancelled, last.Action)
		assert.Equal(t, "Status changed from CONFIRMED to CANCELLED: customer changed mind", last.Note)
		assert.Len(t, f.notifier.to(vendor.UserID), 1)
	})

	t.Run("deliveryman may not cancel", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, vendor)
		_, err := f.orders.AssignDeliveryman(ctx, hubEmployee, order.ID, deliveryman.UserID)
		require.NoError(t, err)

		_, err = f.orders.UpdateStatus(ctx, deliveryman, order.ID, &model.UpdateStatusRequest{Status: model.StatusCancelled})
		assert.True(t, apperr.Is(err, apperr.KindForbidden))
	})

	t.Run("ownership", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, vendor)
		f.setStatus(t, order, model.StatusConfirmed)

		_, err := f.orders.UpdateStatus(ctx, otherVendor, order.ID, &model.UpdateStatusRequest{Status: model.StatusCancelled})
		assert.True(t, apperr.Is(err, apperr.KindForbidden))

		f.setStatus(t, order, model.StatusDispatched)
		_, err = f.orders.UpdateStatus(ctx, deliveryman, order.ID, &model.UpdateStatusRequest{Status: model.StatusOutForDelivery})
		assert.True(t, apperr.Is(err, apperr.KindForbidden), "not assigned")

		_, err = f.orders.UpdateStatus(ctx, hubEmployee, order.ID, &model.UpdateStatusRequest{Status: model.StatusOutForDelivery})
		assert.True(t, apperr.Is(err, apperr.KindForbidden))
	})

	t.Run("deliveryman completes the delivery", func(t *testing.T) {
		f := newFixture(t)
		order := f.order(t, vendor)
		f.setStatus(t, order, model.StatusConfirmed)
		assigned, err := f.orders.AssignDeliveryman(ctx, hubEmployee, order.ID, deliveryman.UserID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusDispatched, assigned.Status)
		_, err = f.orders.UpdateStatus(ctx, deliveryman, order.ID, &model.UpdateStatusRequest{Status: model.StatusOutForDelivery})
		require.NoError(t, err)
		done, err := f.orders.UpdateStatus(ctx, deliveryman, order.ID, &model.UpdateStatusRequest{Status: model.StatusDelivered})
		require.NoError(t, err)
		require.NotNil(t, done.DeliveredAt)

		history, err := f.orders.History(ctx, deliveryman, order.ID)
		require.NoError(t, err)
		last := history[len(history)-1]
		assert.Equal(t, model.LocationCustomer, last.LocationType)
		assert.EqualValues(t, 3102, *last.CityID)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.orders.UpdateStatus(ctx, admin, 999, &model.UpdateStatusRequest{Status: model.StatusConfirmed})
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}

func TestAssignDeliveryman(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, vendor)

	_, err := f.orders.AssignDeliveryman(ctx, vendor, order.ID, deliveryman.UserID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	updated, err := f.orders.AssignDeliveryman(ctx, hubEmployee, order.ID, deliveryman.UserID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, updated.Status)
	assert.Equal(t, deliveryman.UserID, *updated.DeliverymanID)

	history, err := f.orders.History(ctx, deliveryman, order.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, model.ActionAssigned, last.Action)
	assert.Equal(t, strconv.FormatInt(deliveryman.UserID, 10), last.Metadata["deliveryman_id"])
	assert.Len(t, f.notifier.to(deliveryman.UserID), 1)

	reassigned, err := f.orders.AssignDeliveryman(ctx, hubEmployee, order.ID, 21)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, reassigned.Status)
	assert.EqualValues(t, 21, *reassigned.DeliverymanID)
}

func TestBulkUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fresh := f.order(t, vendor)
	f.setStatus(t, fresh, model.StatusConfirmed)
	delivered := f.order(t, vendor)
	f.setStatus(t, delivered, model.StatusDelivered)

	status := model.StatusOutForDelivery
	res := f.orders.BulkUpdate(ctx, admin, &model.BulkUpdateRequest{
		OrderIDs:      []int64{fresh.ID, delivered.ID, 9999},
		DeliverymanID: int64p(deliveryman.UserID),
		Status:        &status,
	})
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, strconv.FormatInt(delivered.ID, 10), res.Errors[0].ID)
	assert.Equal(t, "9999", res.Errors[1].ID)
	assert.Contains(t, res.Errors[1].Error, "not found")

	got, err := f.orders.GetOrder(ctx, admin, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOutForDelivery, got.Status)
	assert.Equal(t, deliveryman.UserID, *got.DeliverymanID)
}

func TestBulkUpdate_FailedItemRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, vendor)

	returned := model.StatusReturned
	res := f.orders.BulkUpdate(ctx, admin, &model.BulkUpdateRequest{
		OrderIDs:      []int64{order.ID},
		DeliverymanID: int64p(deliveryman.UserID),
		Status:        &returned,
	})
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 1, res.Failed)

	got, err := f.orders.GetOrder(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInPreparation, got.Status)
	assert.Nil(t, got.DeliverymanID)

	history, err := f.orders.History(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	res = f.orders.BulkUpdate(ctx, admin, &model.BulkUpdateRequest{OrderIDs: []int64{order.ID}})
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "nothing to update", res.Errors[0].Error)

	res = f.orders.BulkUpdate(ctx, admin, &model.BulkUpdateRequest{OrderIDs: []int64{order.ID}, FromCityID: int64p(1601)})
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "from and to cities must be given together", res.Errors[0].Error)
}

func TestListOrders_Scoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.order(t, vendor)
	f.order(t, vendor)
	f.order(t, otherVendor)
	_, err := f.orders.AssignDeliveryman(ctx, hubEmployee, mine.ID, deliveryman.UserID)
	require.NoError(t, err)

	_, total, err := f.orders.ListOrders(ctx, vendor, model.OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	orders, total, err := f.orders.ListOrders(ctx, deliveryman, model.OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, mine.ID, orders[0].ID)

	orders, total, err = f.orders.ListOrders(ctx, admin, model.OrderFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, orders, 2)

	_, total, err = f.orders.ListOrders(ctx, admin, model.OrderFilter{Status: model.StatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, _, err = f.orders.ListOrders(ctx, admin, model.OrderFilter{Status: "LOST"})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	_, _, err = f.orders.ListOrders(ctx, client, model.OrderFilter{})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = f.orders.GetOrder(ctx, otherVendor, mine.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = f.orders.History(ctx, otherVendor, mine.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestTrackOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, vendor)
	_, err := f.orders.AssignDeliveryman(ctx, hubEmployee, order.ID, deliveryman.UserID)
	require.NoError(t, err)

	view, err := f.orders.TrackOrder(ctx, order.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, order.OrderCode, view.OrderCode)
	assert.Equal(t, model.StatusConfirmed, view.Status)
	require.Len(t, view.History, 2)
	assert.Equal(t, model.ActionCreated, view.History[0].Action)
	assert.Equal(t, model.ActionAssigned, view.History[1].Action)

	_, err = f.orders.TrackOrder(ctx, "ORD-2024-999999")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func strp(s string) *string {
	return &s
}
