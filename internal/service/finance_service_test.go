package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bharathbbg/parcel-hub/internal/apperr"
	"github.com/bharathbbg/parcel-hub/internal/model"
)

// settled creates paid and returned orders for p.
func (f *fixture) settled(t *testing.T, p model.Principal, paid, returned int) []int64 {
	t.Helper()
	var ids []int64
	for i := 0; i < paid+returned; i++ {
		o := f.order(t, p)
		status := model.StatusPaid
		if i >= paid {
			status = model.StatusReturned
		}
		f.setStatus(t, o, status)
		ids = append(ids, o.ID)
	}
	return ids
}

func TestCreateWithdrawalRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.settled(t, vendor, 2, 1)
	f.order(t, vendor)
	f.settled(t, otherVendor, 1, 0)

	wr, err := f.finance.CreateWithdrawalRequest(ctx, vendor, &model.CreateWithdrawalRequest{Notes: "march"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(wr.TrackingCode, "WR-"))
	assert.Equal(t, vendor.UserID, wr.VendorID)
	assert.True(t, wr.PaidOrdersAmount.Equal(dec("5000")))
	assert.True(t, wr.ReturnedOrdersAmount.Equal(dec("2500")))
	assert.True(t, wr.TotalAmount.Equal(dec("2500")))
	assert.Equal(t, 2, wr.PaidOrdersCount)
	assert.Equal(t, 1, wr.ReturnedOrdersCount)
	assert.Equal(t, model.WithdrawalPending, wr.Status)
	assert.Equal(t, model.ConditionWaiting, wr.Condition)
	assert.ElementsMatch(t, ids, wr.OrderIDs)

	_, err = f.finance.CreateWithdrawalRequest(ctx, vendor, &model.CreateWithdrawalRequest{})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "every order is already claimed")

	got, err := f.finance.GetWithdrawalRequest(ctx, vendor, wr.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, got.OrderIDs)

	_, err = f.finance.GetWithdrawalRequest(ctx, otherVendor, wr.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestCreateWithdrawalRequest_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.finance.CreateWithdrawalRequest(ctx, vendor, &model.CreateWithdrawalRequest{})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "no orders")

	f.settled(t, vendor, 1, 1)
	_, err = f.finance.CreateWithdrawalRequest(ctx, vendor, &model.CreateWithdrawalRequest{})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "balance is zero")

	_, err = f.finance.CreateWithdrawalRequest(ctx, vendor, &model.CreateWithdrawalRequest{VendorID: otherVendor.UserID})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = f.finance.CreateWithdrawalRequest(ctx, admin, &model.CreateWithdrawalRequest{})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "admins name the vendor")
	_, err = f.finance.CreateWithdrawalRequest(ctx, deliveryman, &model.CreateWithdrawalRequest{VendorID: vendor.UserID})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestVendorBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.settled(t, vendor, 3, 1)

	bal, err := f.finance.VendorBalance(ctx, vendor, 0)
	require.NoError(t, err)
	assert.True(t, bal.AvailableAmount.Equal(dec("5000")))
	assert.Equal(t, 3, bal.PaidOrdersCount)
	assert.Equal(t, 1, bal.ReturnedOrdersCount)

	bal, err = f.finance.VendorBalance(ctx, admin, vendor.UserID)
	require.NoError(t, err)
	assert.True(t, bal.AvailableAmount.Equal(dec("5000")))

	_, err = f.finance.CreateWithdrawalRequest(ctx, admin, &model.CreateWithdrawalRequest{VendorID: vendor.UserID})
	require.NoError(t, err)
	bal, err = f.finance.VendorBalance(ctx, vendor, vendor.UserID)
	require.NoError(t, err)
	assert.True(t, bal.AvailableAmount.IsZero())
}

func TestUpdateWithdrawalRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("approve", func(t *testing.T) {
		f := newFixture(t)
		f.settled(t, vendor, 1, 0)
		wr, err := f.finance.CreateWithdrawalRequest(ctx, vendor, &model.CreateWithdrawalRequest{})
		require.NoError(t, err)

		approved := model.WithdrawalApproved
		_, err = f.finance.UpdateWithdrawalRequest(ctx, vendor, wr.ID, &model.UpdateWithdrawalRequest{Status: &approved})
		assert.True(t, apperr.Is(err, apperr.KindForbidden))

		updated, err := f.finance.UpdateWithdrawalRequest(ctx, admin, wr.ID, &model.UpdateWithdrawalRequest{Status: &approved})
		require.NoError(t, err)
		assert.Equal(t, model.ConditionComplete, updated.Condition)
		require.NotNil(t, updated.PaymentDate)
		assert.Equal(t, f.clock, *updated.PaymentDate)
		assert.Len(t, f.notifier.to(vendor.UserID), 1)

		rejected := model.WithdrawalRejected
		_, err = f.finance.UpdateWithdrawalRequest(ctx, admin, wr.ID, &model.UpdateWithdrawalRequest{Status: &rejected})
		assert.True(t, apperr.Is(err, apperr.KindBadRequest), "decisions are final")
	})

	t.Run("reject frees the orders", func(t *testing.T) {
		f := newFixture(t)
		ids := f.settled(t, vendor, 2, 0)
		wr, err := f.finance.CreateWithdrawalRequest(ctx, vendor, &model.CreateWithdrawalRequest{})
		require.NoError(t, err)

		rejected := model.WithdrawalRejected
		updated, err := f.finance.UpdateWithdrawalRequest(ctx, admin, wr.ID, &model.UpdateWithdrawalRequest{Status: &rejected})
		require.NoError(t, err)
		assert.Equal(t, model.ConditionCancelled, updated.Condition)

		again, err := f.finance.CreateWithdrawalRequest(ctx, vendor, &model.CreateWithdrawalRequest{})
		require.NoError(t, err)
		assert.ElementsMatch(t, ids, again.OrderIDs)
		assert.NotEqual(t, wr.TrackingCode, again.TrackingCode)
	})
}

func TestDeleteWithdrawalRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.settled(t, vendor, 1, 0)
	wr, err := f.finance.CreateWithdrawalRequest(ctx, vendor, &model.CreateWithdrawalRequest{})
	require.NoError(t, err)

	assert.True(t, apperr.Is(f.finance.DeleteWithdrawalRequest(ctx, vendor, wr.ID), apperr.KindForbidden))
	require.NoError(t, f.finance.DeleteWithdrawalRequest(ctx, admin, wr.ID))

	_, err = f.finance.GetWithdrawalRequest(ctx, admin, wr.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	order, err := f.orders.GetOrder(ctx, admin, ids[0])
	require.NoError(t, err)
	assert.Nil(t, order.WithdrawalRequestID)
	assert.Equal(t, model.StatusPaid, order.Status)

	list, err := f.finance.ListWithdrawalRequests(ctx, vendor, model.WithdrawalFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListWithdrawalRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.settled(t, vendor, 1, 0)
	f.settled(t, otherVendor, 1, 0)
	_, err := f.finance.CreateWithdrawalRequest(ctx, vendor, &model.CreateWithdrawalRequest{})
	require.NoError(t, err)
	_, err = f.finance.CreateWithdrawalRequest(ctx, otherVendor, &model.CreateWithdrawalRequest{})
	require.NoError(t, err)

	mine, err := f.finance.ListWithdrawalRequests(ctx, vendor, model.WithdrawalFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, vendor.UserID, mine[0].VendorID)

	all, err := f.finance.ListWithdrawalRequests(ctx, admin, model.WithdrawalFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.finance.ListWithdrawalRequests(ctx, hubEmployee, model.WithdrawalFilter{})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestSettleOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	delivered := f.order(t, vendor)
	f.setStatus(t, delivered, model.StatusDelivered)
	pending := f.order(t, vendor)

	res, err := f.finance.SettleOrders(ctx, admin, &model.SettleOrdersRequest{OrderIDs: []int64{delivered.ID, pending.ID}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Failed)

	got, err := f.orders.GetOrder(ctx, admin, delivered.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, got.Status)

	bal, err := f.finance.VendorBalance(ctx, vendor, 0)
	require.NoError(t, err)
	assert.True(t, bal.AvailableAmount.Equal(dec("2500")))

	_, err = f.finance.SettleOrders(ctx, vendor, &model.SettleOrdersRequest{OrderIDs: []int64{pending.ID}})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}
