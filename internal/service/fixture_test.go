package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/bharathbbg/parcel-hub/internal/metrics"
	"github.com/bharathbbg/parcel-hub/internal/model"
	"github.com/bharathbbg/parcel-hub/internal/repository/memory"
)

var (
	admin       = model.Principal{UserID: 1, Role: model.RoleAdmin}
	vendor      = model.Principal{UserID: 10, Role: model.RoleVendor}
	otherVendor = model.Principal{UserID: 11, Role: model.RoleVendor}
	deliveryman = model.Principal{UserID: 20, Role: model.RoleDeliveryman}
	hubEmployee = model.Principal{UserID: 30, Role: model.RoleHubEmployee}
	client      = model.Principal{UserID: 40, Role: model.RoleClient}
)

var testWilayas = []model.Wilaya{
	{Code: "09", Name: "Blida", Cities: []model.City{{ID: 901, Name: "Blida"}}},
	{Code: "16", Name: "Alger", Cities: []model.City{{ID: 1601, Name: "Alger Centre"}, {ID: 1602, Name: "Bab El Oued"}}},
	{Code: "31", Name: "Oran", Cities: []model.City{
		{ID: 101, Name: "Oran"}, {ID: 3102, Name: "Bir El Djir"}, {ID: 3103, Name: "Es Senia"},
		{ID: 3104, Name: "Arzew"}, {ID: 3105, Name: "Ain El Turck"},
	}},
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) to(userID int64) []model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []model.Notification
	for _, m := range n.sent {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	store    *memory.Store
	notifier *recordingNotifier
	shipping *ShippingService
	orders   *OrderService
	tracking *TrackingService
	lockers  *LockerService
	finance  *FinanceService
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zaptest.NewLogger(t)
	m := metrics.New(prometheus.NewRegistry())

	store := memory.New()
	_, _, err := store.Seed(ctx, testWilayas)
	require.NoError(t, err)

	f := &fixture{
		store:    store,
		notifier: &recordingNotifier{},
		clock:    time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return f.clock }

	policy := FeePolicy{FreeWeightKg: 5, ExtraKgPrice: decimal.NewFromInt(50), DefaultItemWeightKg: 0.5}
	f.shipping = NewShippingService(store, store, store, nil, policy, m, log)
	f.orders = NewOrderService(store, store, store, store, store, f.shipping, nil, f.notifier, m, log)
	f.orders.now = now
	f.tracking = NewTrackingService(store, store, store, nil, m, log)
	f.tracking.now = now
	f.lockers = NewLockerService(store, store, store, store, store, nil, f.notifier, time.Hour, m, log)
	f.lockers.now = now
	f.lockers.hashCost = bcrypt.MinCost
	f.finance = NewFinanceService(store, store, store, store, nil, f.notifier, m, log)
	f.finance.now = now
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func int64p(v int64) *int64 {
	return &v
}

func (f *fixture) route(t *testing.T, from, to string, desktop, home, ret string) *model.ShippingFee {
	t.Helper()
	fee, err := f.shipping.CreateRoute(context.Background(), &model.CreateShippingFeeRequest{
		FromWilayaCode: from,
		ToWilayaCode:   to,
		RoutePrices:    model.RoutePrices{DesktopPrice: dec(desktop), HomePrice: dec(home), ReturnPrice: dec(ret)},
	})
	require.NoError(t, err)
	return fee
}

func orderRequest(price string) *model.CreateOrderRequest {
	return &model.CreateOrderRequest{
		FirstName:    gofakeit.FirstName(),
		LastName:     gofakeit.LastName(),
		ContactPhone: gofakeit.Phone(),
		Address:      gofakeit.Street(),
		Price:        decp(price),
	}
}

// order creates an order from 1601 to 3102 for p, creating the 16->31 route
// when it does not exist yet.
func (f *fixture) order(t *testing.T, p model.Principal) *model.Order {
	t.Helper()
	if _, err := f.store.FindRoute(context.Background(), "16", "31"); err != nil {
		f.route(t, "16", "31", "400", "600", "500")
	}
	req := orderRequest("2500")
	req.FromCityID = int64p(1601)
	req.ToCityID = int64p(3102)
	order, err := f.orders.CreateOrder(context.Background(), p, req)
	require.NoError(t, err)
	return order
}

// setStatus forces an order into status for tests that start mid-lifecycle.
func (f *fixture) setStatus(t *testing.T, order *model.Order, status model.OrderStatus) {
	t.Helper()
	f.store.SetOrderStatus(order.ID, status)
	order.Status = status
}

func boolp(v bool) *bool {
	return &v
}
