package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bharathbbg/parcel-hub/internal/apperr"
	"github.com/bharathbbg/parcel-hub/internal/model"
)

// openTestDB connects to the database named by PARCELHUB_TEST_DATABASE_URL
// and applies the schema. Tests are skipped when it is unset.
func openTestDB(t *testing.T) *Postgres {
	t.Helper()
	url := os.Getenv("PARCELHUB_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PARCELHUB_TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pg := NewPostgresFromDB(db, zaptest.NewLogger(t))
	ctx := context.Background()
	require.NoError(t, pg.Migrate(ctx))
	require.NoError(t, pg.Migrate(ctx), "schema is idempotent")

	_, _, err = NewGeographyStore(pg).Seed(ctx, []model.Wilaya{
		{Code: "16", Name: "Alger", Cities: []model.City{{ID: 1601, Name: "Alger Centre"}}},
	})
	require.NoError(t, err)
	return pg
}

func testOrder() *model.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.Order{
		OrderCode:    "ORD-TEST-" + xid.New().String(),
		SenderID:     10,
		FirstName:    "Amina",
		LastName:     "Benali",
		ContactPhone: "0550000000",
		Address:      "12 rue Didouche Mourad",
		Price:        decimal.RequireFromString("1800.50"),
		PaymentType:  model.PaymentCashOnDelivery,
		Status:       model.StatusInPreparation,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPostgres_OrderSequenceRollsBack(t *testing.T) {
	pg := openTestDB(t)
	orders := NewOrderStore(pg)
	ctx := context.Background()
	year := 1900 + int(time.Now().UnixNano()%100)

	first, err := orders.NextOrderSequence(ctx, year)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = pg.WithinTx(ctx, func(ctx context.Context) error {
		_, err := orders.NextOrderSequence(ctx, year)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	next, err := orders.NextOrderSequence(ctx, year)
	require.NoError(t, err)
	assert.Equal(t, first+1, next)
}

func TestPostgres_OrderRoundTrip(t *testing.T) {
	pg := openTestDB(t)
	orders := NewOrderStore(pg)
	ctx := context.Background()

	order := testOrder()
	order.FromCityID = new(int64)
	*order.FromCityID = 1601
	require.NoError(t, orders.CreateOrder(ctx, order))
	require.NotZero(t, order.ID)

	got, err := orders.GetOrderByCode(ctx, order.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.True(t, got.Price.Equal(order.Price))
	assert.False(t, got.ShippingFee.Valid)

	dup := testOrder()
	dup.OrderCode = order.OrderCode
	err = orders.CreateOrder(ctx, dup)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)

	_, err = orders.GetOrder(ctx, -1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestPostgres_ClosetCompareAndSet(t *testing.T) {
	pg := openTestDB(t)
	lockers := NewLockerStore(pg)
	ctx := context.Background()

	locker := &model.Locker{Name: "Gare " + xid.New().String(), CityID: 1601, WilayaCode: "16", Capacity: 2, IsActive: true}
	require.NoError(t, lockers.CreateLocker(ctx, locker))
	require.NoError(t, lockers.AddClosets(ctx, locker.ID, 1, 2))

	n, ok, err := lockers.ReserveAvailableCloset(ctx, locker.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, n)

	ok, err = lockers.TransitionCloset(ctx, model.ClosetTransition{
		LockerID: locker.ID, Number: 1,
		From: []model.ClosetStatus{model.ClosetAvailable}, To: model.ClosetOccupied,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = lockers.TransitionCloset(ctx, model.ClosetTransition{
		LockerID: locker.ID, Number: 1,
		From: []model.ClosetStatus{model.ClosetReserved}, To: model.ClosetAvailable,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err := lockers.RemoveClosetsAbove(ctx, locker.ID, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	got, err := lockers.GetLocker(ctx, locker.ID)
	require.NoError(t, err)
	assert.Len(t, got.Closets, 1)
}
