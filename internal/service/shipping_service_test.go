package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bharathbbg/parcel-hub/internal/apperr"
	"github.com/bharathbbg/parcel-hub/internal/model"
)

func TestZonePricingEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fee := f.route(t, "16", "31", "400", "600", "500")
	zone, err := f.shipping.CreateZone(ctx, &model.CreateZoneRequest{
		ShippingFeeID: fee.ID,
		Name:          "Centre",
		Price:         dec("550"),
		CityIDs:       []int64{101},
	})
	require.NoError(t, err)

	q, err := f.shipping.GetPrice(ctx, "16", "31", model.DeliveryHome, int64p(101))
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(dec("550")), "zone price, got %s", q.Price)
	require.NotNil(t, q.ZoneID)
	assert.Equal(t, zone.ID, *q.ZoneID)
	assert.Equal(t, "Centre", q.ZoneName)

	q, err = f.shipping.GetPrice(ctx, "16", "31", model.DeliveryHome, int64p(999))
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(dec("600")), "home price, got %s", q.Price)
	assert.Nil(t, q.ZoneID)

	for _, cityID := range []*int64{nil, int64p(101), int64p(999)} {
		q, err = f.shipping.GetPrice(ctx, "16", "31", model.DeliveryDesktop, cityID)
		require.NoError(t, err)
		assert.True(t, q.Price.Equal(dec("400")), "desktop price, got %s", q.Price)
	}

	q, err = f.shipping.GetPrice(ctx, "16", "31", model.DeliveryReturn, nil)
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(dec("500")))
}

func TestGetPrice_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fee := f.route(t, "16", "31", "400", "600", "500")

	_, err := f.shipping.GetPrice(ctx, "16", "31", model.DeliveryType("drone"), nil)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, err = f.shipping.GetPrice(ctx, "31", "16", model.DeliveryHome, nil)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.shipping.UpdateRoute(ctx, fee.ID, &model.UpdateShippingFeeRequest{IsActive: boolp(false)})
	require.NoError(t, err)
	_, err = f.shipping.GetPrice(ctx, "16", "31", model.DeliveryHome, nil)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "inactive routes are not quoted")
}

func TestCreateRoute_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.route(t, "16", "31", "400", "600", "500")

	_, err := f.shipping.CreateRoute(ctx, &model.CreateShippingFeeRequest{
		FromWilayaCode: "16", ToWilayaCode: "31",
		RoutePrices: model.RoutePrices{DesktopPrice: dec("1"), HomePrice: dec("1"), ReturnPrice: dec("1")},
	})
	assert.True(t, apperr.Is(err, apperr.KindConflict), "duplicate route")

	_, err = f.shipping.CreateRoute(ctx, &model.CreateShippingFeeRequest{
		FromWilayaCode: "16", ToWilayaCode: "99",
		RoutePrices: model.RoutePrices{DesktopPrice: dec("1"), HomePrice: dec("1"), ReturnPrice: dec("1")},
	})
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "unknown wilaya")

	_, err = f.shipping.CreateRoute(ctx, &model.CreateShippingFeeRequest{
		FromWilayaCode: "16", ToWilayaCode: "09",
		RoutePrices: model.RoutePrices{DesktopPrice: dec("-1"), HomePrice: dec("1"), ReturnPrice: dec("1")},
	})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "negative price")
}

func TestCreateZone_OverlapLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fee := f.route(t, "16", "31", "400", "600", "500")

	_, err := f.shipping.CreateZone(ctx, &model.CreateZoneRequest{
		ShippingFeeID: fee.ID, Name: "A", Price: dec("550"), CityIDs: []int64{101, 3102},
	})
	require.NoError(t, err)

	_, err = f.shipping.CreateZone(ctx, &model.CreateZoneRequest{
		ShippingFeeID: fee.ID, Name: "B", Price: dec("700"), CityIDs: []int64{3103, 3102},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)

	zones, err := f.shipping.ListZones(ctx, fee.ID)
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, "A", zones[0].Name)
	assert.ElementsMatch(t, []int64{101, 3102}, zones[0].CityIDs)
}

func TestCreateZone_InactiveZonesDoNotClaimCities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fee := f.route(t, "16", "31", "400", "600", "500")

	_, err := f.shipping.CreateZone(ctx, &model.CreateZoneRequest{
		ShippingFeeID: fee.ID, Name: "Old", Price: dec("550"), CityIDs: []int64{101}, IsActive: boolp(false),
	})
	require.NoError(t, err)
	_, err = f.shipping.CreateZone(ctx, &model.CreateZoneRequest{
		ShippingFeeID: fee.ID, Name: "New", Price: dec("580"), CityIDs: []int64{101},
	})
	require.NoError(t, err)

	q, err := f.shipping.GetPrice(ctx, "16", "31", model.DeliveryHome, int64p(101))
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(dec("580")))

	_, err = f.shipping.CreateZone(ctx, &model.CreateZoneRequest{
		ShippingFeeID: fee.ID, Name: "Ghost", Price: dec("1"), CityIDs: []int64{424242},
	})
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "unknown city")
}

func TestUpdateZone_Disjointness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fee := f.route(t, "16", "31", "400", "600", "500")

	a, err := f.shipping.CreateZone(ctx, &model.CreateZoneRequest{
		ShippingFeeID: fee.ID, Name: "A", Price: dec("550"), CityIDs: []int64{101},
	})
	require.NoError(t, err)
	b, err := f.shipping.CreateZone(ctx, &model.CreateZoneRequest{
		ShippingFeeID: fee.ID, Name: "B", Price: dec("650"), CityIDs: []int64{3102},
	})
	require.NoError(t, err)

	_, err = f.shipping.UpdateZone(ctx, b.ID, &model.UpdateZoneRequest{CityIDs: []int64{3102, 101}})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = f.shipping.UpdateZone(ctx, a.ID, &model.UpdateZoneRequest{IsActive: boolp(false)})
	require.NoError(t, err)
	updated, err := f.shipping.UpdateZone(ctx, b.ID, &model.UpdateZoneRequest{CityIDs: []int64{3102, 101}, Price: decp("640")})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{101, 3102}, updated.CityIDs)
	assert.True(t, updated.Price.Equal(dec("640")))
}

func TestUpdateRoute_ReplacesZones(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fee := f.route(t, "16", "31", "400", "600", "500")

	old, err := f.shipping.CreateZone(ctx, &model.CreateZoneRequest{
		ShippingFeeID: fee.ID, Name: "Old", Price: dec("550"), CityIDs: []int64{101},
	})
	require.NoError(t, err)

	updated, err := f.shipping.UpdateRoute(ctx, fee.ID, &model.UpdateShippingFeeRequest{
		HomePrice: decp("650"),
		Zones: []model.ZoneInput{
			{ID: &old.ID, Name: "Renamed", Price: dec("560"), CityIDs: []int64{3102}},
			{Name: "Fresh", Price: dec("700"), CityIDs: []int64{101, 3103}},
		},
	})
	require.NoError(t, err)
	assert.True(t, updated.HomePrice.Equal(dec("650")))
	require.Len(t, updated.Zones, 2)

	q, err := f.shipping.GetPrice(ctx, "16", "31", model.DeliveryHome, int64p(101))
	require.NoError(t, err)
	assert.Equal(t, "Fresh", q.ZoneName)

	t.Run("duplicate city inside the submitted set", func(t *testing.T) {
		_, err := f.shipping.UpdateRoute(ctx, fee.ID, &model.UpdateShippingFeeRequest{
			Zones: []model.ZoneInput{
				{Name: "X", Price: dec("1"), CityIDs: []int64{101}},
				{Name: "Y", Price: dec("1"), CityIDs: []int64{101}},
			},
		})
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))

		zones, err := f.shipping.ListZones(ctx, fee.ID)
		require.NoError(t, err)
		assert.Len(t, zones, 2, "failed update keeps the previous zones")
	})
}

func TestGenerateRandomZones(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.route(t, "16", "31", "400", "600", "500")

	zones, err := f.shipping.GenerateRandomZones(ctx, "16", "31")
	require.NoError(t, err)
	require.Len(t, zones, 3)

	var all []int64
	for _, z := range zones {
		all = append(all, z.CityIDs...)
	}
	assert.ElementsMatch(t, []int64{101, 3102, 3103, 3104, 3105}, all, "every commune lands in exactly one zone")
	assert.True(t, zones[0].Price.Equal(dec("600")))
	assert.True(t, zones[1].Price.Equal(dec("702")))
	assert.True(t, zones[2].Price.Equal(dec("798")))

	_, err = f.shipping.GenerateRandomZones(ctx, "16", "31")
	assert.True(t, apperr.Is(err, apperr.KindConflict), "zones must be cleared first")

	fee, err := f.shipping.FindRoute(ctx, "16", "31")
	require.NoError(t, err)
	n, err := f.shipping.ClearZones(ctx, fee.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	_, err = f.shipping.GenerateRandomZones(ctx, "16", "31")
	assert.NoError(t, err)
}

func TestBulkPrices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.route(t, "16", "31", "1", "1", "1")

	defaults := model.RoutePrices{DesktopPrice: dec("400"), HomePrice: dec("600"), ReturnPrice: dec("250")}
	local := model.RoutePrices{DesktopPrice: dec("250"), HomePrice: dec("400"), ReturnPrice: dec("250")}
	res, err := f.shipping.InitializeAll(ctx, defaults, local)
	require.NoError(t, err)
	assert.Equal(t, 9, res.Total)
	assert.Equal(t, 8, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.Zero(t, res.Failed)

	q, err := f.shipping.GetPrice(ctx, "16", "16", model.DeliveryHome, nil)
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(dec("400")), "local routes use local prices")
	q, err = f.shipping.GetPrice(ctx, "16", "31", model.DeliveryHome, nil)
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(dec("600")))

	res, err = f.shipping.SetWilayaPrices(ctx, "09", model.RoutePrices{DesktopPrice: dec("300"), HomePrice: dec("500"), ReturnPrice: dec("200")})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Updated)

	_, err = f.shipping.SetWilayaPrices(ctx, "77", defaults)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = f.shipping.SetAllPrices(ctx, model.RoutePrices{DesktopPrice: dec("-1")})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

func TestShipmentFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fee := f.route(t, "16", "31", "400", "600", "500")
	_, err := f.shipping.CreateZone(ctx, &model.CreateZoneRequest{
		ShippingFeeID: fee.ID, Name: "Centre", Price: dec("550"), CityIDs: []int64{101},
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		toCity int64
		typ    model.DeliveryType
		weight float64
		want   string
	}{
		{"home under free weight", 3102, model.DeliveryHome, 2, "600"},
		{"home exactly free weight", 3102, model.DeliveryHome, 5, "600"},
		{"home in zone", 101, model.DeliveryHome, 1, "550"},
		{"desktop with started kilograms", 3102, model.DeliveryDesktop, 7.2, "550"},
		{"home one gram over", 101, model.DeliveryHome, 5.001, "600"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.shipping.ShipmentFee(ctx, 1601, tt.toCity, tt.typ, tt.weight)
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tt.want)), "want %s, got %s", tt.want, got)
		})
	}
}

func TestFeePolicy_EffectiveWeight(t *testing.T) {
	p := FeePolicy{FreeWeightKg: 5, DefaultItemWeightKg: 0.5}
	w := 3.0
	heavy := 0.2

	assert.Equal(t, 0.5, p.EffectiveWeight(nil, 0))
	assert.Equal(t, 2.0, p.EffectiveWeight(nil, 4))
	assert.Equal(t, 3.0, p.EffectiveWeight(&w, 4))
	assert.Equal(t, 2.0, p.EffectiveWeight(&heavy, 4), "declared weight below the per item default is ignored")
}
