package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bharathbbg/parcel-hub/internal/apperr"
	"github.com/bharathbbg/parcel-hub/internal/model"
)

func TestScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ready := f.order(t, vendor)
	shipped := f.order(t, vendor)
	f.setStatus(t, shipped, model.StatusOutForDelivery)

	res, err := f.tracking.Scan(ctx, hubEmployee, "  "+ready.OrderCode+" ")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, ready.ID, res.OrderID)
	assert.Equal(t, ready.OrderCode, res.OrderCode)

	res, err = f.tracking.Scan(ctx, hubEmployee, shipped.OrderCode)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, model.StatusOutForDelivery, res.Status)
	assert.Contains(t, res.Reason, "only IN_PREPARATION or CONFIRMED")

	res, err = f.tracking.Scan(ctx, hubEmployee, "ORD-1999-000001")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "order ORD-1999-000001 not found", res.Reason)

	_, err = f.tracking.Scan(ctx, vendor, ready.OrderCode)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestBulkDeposit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fresh := f.order(t, vendor)
	confirmed := f.order(t, vendor)
	f.setStatus(t, confirmed, model.StatusConfirmed)
	cancelled := f.order(t, vendor)
	f.setStatus(t, cancelled, model.StatusCancelled)

	res, err := f.tracking.BulkDeposit(ctx, hubEmployee, &model.BulkDepositRequest{
		HubID:    7,
		OrderIDs: []int64{fresh.ID, confirmed.ID, cancelled.ID, 4040},
		Note:     "morning intake",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 2, res.FailedCount)
	require.Len(t, res.Results, 4)
	assert.True(t, res.Results[0].Success)
	assert.True(t, res.Results[1].Success)
	assert.False(t, res.Results[2].Success)
	assert.Equal(t, model.StatusCancelled, res.Results[2].Status)
	assert.Equal(t, "order 4040 not found", res.Results[3].Reason)

	for _, id := range []int64{fresh.ID, confirmed.ID} {
		got, err := f.orders.GetOrder(ctx, admin, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusDispatched, got.Status)
		assert.EqualValues(t, 7, *got.HubID)
	}
	got, err := f.orders.GetOrder(ctx, admin, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Nil(t, got.HubID)

	history, err := f.orders.History(ctx, admin, fresh.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, model.ActionDeposited, last.Action)
	assert.Equal(t, "Deposited at hub 7 (IN_PREPARATION to DISPATCHED): morning intake", last.Note)

	_, err = f.tracking.BulkDeposit(ctx, deliveryman, &model.BulkDepositRequest{HubID: 7, OrderIDs: []int64{fresh.ID}})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestRecordEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, vendor)

	entry, err := f.tracking.RecordEvent(ctx, hubEmployee, &model.RecordEventRequest{
		OrderID:      order.ID,
		Action:       model.ActionArrived,
		LocationType: model.LocationHub,
		HubID:        int64p(3),
		Metadata:     model.Metadata{"dock": "B"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusInPreparation, entry.Status)
	assert.Equal(t, f.clock, entry.CreatedAt)

	got, err := f.orders.GetOrder(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInPreparation, got.Status, "events do not move the status")

	history, err := f.orders.History(ctx, admin, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "B", history[1].Metadata["dock"])

	tests := []struct {
		name string
		p    model.Principal
		req  model.RecordEventRequest
		kind apperr.Kind
	}{
		{"status actions are not manual", hubEmployee, model.RecordEventRequest{OrderID: order.ID, Action: model.ActionDelivered, LocationType: model.LocationHub}, apperr.KindBadRequest},
		{"unknown location", hubEmployee, model.RecordEventRequest{OrderID: order.ID, Action: model.ActionDeparted, LocationType: "moon"}, apperr.KindBadRequest},
		{"unknown order", hubEmployee, model.RecordEventRequest{OrderID: 555, Action: model.ActionDeparted, LocationType: model.LocationHub}, apperr.KindNotFound},
		{"vendor", vendor, model.RecordEventRequest{OrderID: order.ID, Action: model.ActionDeparted, LocationType: model.LocationHub}, apperr.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tracking.RecordEvent(ctx, tt.p, &tt.req)
			assert.True(t, apperr.Is(err, tt.kind), "got %v", err)
		})
	}

	f.setStatus(t, order, model.StatusDelivered)
	_, err = f.tracking.RecordEvent(ctx, hubEmployee, &model.RecordEventRequest{OrderID: order.ID, Action: model.ActionTransferred, LocationType: model.LocationHub})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}
