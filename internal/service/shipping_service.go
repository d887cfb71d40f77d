package service

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bharathbbg/parcel-hub/internal/apperr"
	"github.com/bharathbbg/parcel-hub/internal/metrics"
	"github.com/bharathbbg/parcel-hub/internal/model"
)

// Zone names and surcharges used when bootstrapping zones for a route.
var generatedZones = []struct {
	name   string
	factor decimal.Decimal
}{
	{"Centre", decimal.NewFromInt(1)},
	{"Périphérie", decimal.RequireFromString("1.17")},
	{"Éloignée", decimal.RequireFromString("1.33")},
}

// FeePolicy turns a route price into a shipment fee for a parcel.
type FeePolicy struct {
	FreeWeightKg        float64
	ExtraKgPrice        decimal.Decimal
	DefaultItemWeightKg float64
}

// EffectiveWeight is the heavier of the declared weight and the default
// weight of itemCount items.
func (p FeePolicy) EffectiveWeight(declared *float64, itemCount int) float64 {
	if itemCount < 1 {
		itemCount = 1
	}
	w := p.DefaultItemWeightKg * float64(itemCount)
	if declared != nil && *declared > w {
		w = *declared
	}
	return w
}

// Surcharge is the extra price for each started kilogram above the free weight.
func (p FeePolicy) Surcharge(weightKg float64) decimal.Decimal {
	over := math.Ceil(weightKg - p.FreeWeightKg)
	if over <= 0 {
		return decimal.Zero
	}
	return p.ExtraKgPrice.Mul(decimal.NewFromFloat(over))
}

type ShippingService struct {
	tx      Transactor
	geo     GeographyStore
	store   ShippingStore
	cache   Cache
	policy  FeePolicy
	metrics *metrics.Metrics
	log     *zap.Logger
	shuffle func(n int, swap func(i, j int))
}

func NewShippingService(tx Transactor, geo GeographyStore, store ShippingStore, cache Cache,
	policy FeePolicy, m *metrics.Metrics, log *zap.Logger) *ShippingService {
	if cache == nil {
		cache = nopCache{}
	}
	return &ShippingService{
		tx:      tx,
		geo:     geo,
		store:   store,
		cache:   cache,
		policy:  policy,
		metrics: m,
		log:     log.Named("shipping"),
		shuffle: rand.Shuffle,
	}
}

func (s *ShippingService) CreateRoute(ctx context.Context, req *model.CreateShippingFeeRequest) (*model.ShippingFee, error) {
	if req.FromWilayaCode == "" || req.ToWilayaCode == "" {
		return nil, apperr.BadRequest("from and to wilaya codes are required")
	}
	if !req.RoutePrices.NonNegative() {
		return nil, apperr.BadRequest("prices must not be negative")
	}
	if _, err := s.geo.GetWilaya(ctx, req.FromWilayaCode); err != nil {
		return nil, err
	}
	if _, err := s.geo.GetWilaya(ctx, req.ToWilayaCode); err != nil {
		return nil, err
	}

	fee := &model.ShippingFee{
		FromWilayaCode: req.FromWilayaCode,
		ToWilayaCode:   req.ToWilayaCode,
		DesktopPrice:   req.DesktopPrice,
		HomePrice:      req.HomePrice,
		ReturnPrice:    req.ReturnPrice,
		IsActive:       true,
	}
	if req.IsActive != nil {
		fee.IsActive = *req.IsActive
	}
	if err := s.store.CreateRoute(ctx, fee); err != nil {
		return nil, err
	}
	s.invalidateRoute(ctx, fee)
	s.log.Info("shipping route created", zap.String("route", routeKey(fee)), zap.Int64("id", fee.ID))
	return fee, nil
}

func (s *ShippingService) GetRoute(ctx context.Context, id int64) (*model.ShippingFee, error) {
	return s.store.GetRoute(ctx, id)
}

func (s *ShippingService) ListRoutes(ctx context.Context, filter model.RouteFilter) ([]model.ShippingFee, error) {
	return s.store.ListRoutes(ctx, filter)
}

// FindRoute returns the route between two wilayas, active or not.
func (s *ShippingService) FindRoute(ctx context.Context, fromCode, toCode string) (*model.ShippingFee, error) {
	if cached, err := s.cache.GetRoute(ctx, fromCode, toCode); err == nil && cached != nil {
		return cached, nil
	} else if err != nil {
		s.log.Warn("route cache read failed", zap.Error(err))
	}

	fee, err := s.store.FindRoute(ctx, fromCode, toCode)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetRoute(ctx, fee); err != nil {
		s.log.Warn("route cache write failed", zap.Error(err))
	}
	return fee, nil
}

// GetPrice resolves the price of a delivery between two wilayas. For home
// delivery the destination city selects a zone price when one applies.
func (s *ShippingService) GetPrice(ctx context.Context, fromCode, toCode string, t model.DeliveryType, cityID *int64) (*model.PriceQuote, error) {
	if !t.Valid() {
		return nil, apperr.BadRequest("unknown delivery type %q", t)
	}
	fee, err := s.FindRoute(ctx, fromCode, toCode)
	if err != nil {
		return nil, err
	}
	if !fee.IsActive {
		return nil, apperr.NotFound("no active shipping route from %s to %s", fromCode, toCode)
	}

	q := fee.Quote(t, cityID)
	s.metrics.PriceLookup(string(t), q.ZoneID != nil)
	return &q, nil
}

// ShipmentFee prices a parcel between two cities: the route price for the
// delivery type plus the overweight surcharge.
func (s *ShippingService) ShipmentFee(ctx context.Context, fromCityID, toCityID int64, t model.DeliveryType, weightKg float64) (decimal.Decimal, error) {
	from, err := s.geo.GetCity(ctx, fromCityID)
	if err != nil {
		return decimal.Zero, err
	}
	to, err := s.geo.GetCity(ctx, toCityID)
	if err != nil {
		return decimal.Zero, err
	}

	q, err := s.GetPrice(ctx, from.WilayaCode, to.WilayaCode, t, &to.ID)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Price.Add(s.policy.Surcharge(weightKg)), nil
}

func (s *ShippingService) Policy() FeePolicy {
	return s.policy
}

// UpdateRoute updates the route prices and, when zones are given, reconciles
// the route's zones with the submitted list in the same transaction.
func (s *ShippingService) UpdateRoute(ctx context.Context, id int64, req *model.UpdateShippingFeeRequest) (*model.ShippingFee, error) {
	for _, p := range []*decimal.Decimal{req.DesktopPrice, req.HomePrice, req.ReturnPrice} {
		if p != nil && p.IsNegative() {
			return nil, apperr.BadRequest("prices must not be negative")
		}
	}

	var updated *model.ShippingFee
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		fee, err := s.store.LockRoute(ctx, id)
		if err != nil {
			return err
		}
		if req.Zones != nil {
			if err := s.validateZoneSet(ctx, req.Zones); err != nil {
				return err
			}
		}

		if req.DesktopPrice != nil {
			fee.DesktopPrice = *req.DesktopPrice
		}
		if req.HomePrice != nil {
			fee.HomePrice = *req.HomePrice
		}
		if req.ReturnPrice != nil {
			fee.ReturnPrice = *req.ReturnPrice
		}
		if req.IsActive != nil {
			fee.IsActive = *req.IsActive
		}
		if err := s.store.UpdateRoute(ctx, fee); err != nil {
			return err
		}

		if req.Zones != nil {
			if err := s.reconcileZones(ctx, fee, req.Zones); err != nil {
				return err
			}
		}

		updated, err = s.store.GetRoute(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateRoute(ctx, updated)
	return updated, nil
}

// validateZoneSet checks a full replacement zone list: prices, disjoint city
// sets and that every city exists.
func (s *ShippingService) validateZoneSet(ctx context.Context, zones []model.ZoneInput) error {
	seen := make(map[int64]string)
	var all []int64
	for _, z := range zones {
		if z.Name == "" {
			return apperr.BadRequest("zone name is required")
		}
		if z.Price.IsNegative() {
			return apperr.BadRequest("zone %q price must not be negative", z.Name)
		}
		if len(z.CityIDs) == 0 {
			return apperr.BadRequest("zone %q has no cities", z.Name)
		}
		for _, cityID := range z.CityIDs {
			if other, ok := seen[cityID]; ok {
				return apperr.BadRequest("city %d appears in zones %q and %q", cityID, other, z.Name)
			}
			seen[cityID] = z.Name
			all = append(all, cityID)
		}
	}
	return s.requireCities(ctx, all)
}

func (s *ShippingService) reconcileZones(ctx context.Context, fee *model.ShippingFee, inputs []model.ZoneInput) error {
	existing := make(map[int64]model.ShippingZone, len(fee.Zones))
	for _, z := range fee.Zones {
		existing[z.ID] = z
	}

	keep := make(map[int64]bool)
	for _, in := range inputs {
		if in.ID == nil {
			continue
		}
		if _, ok := existing[*in.ID]; !ok {
			return apperr.NotFound("zone %d not found on shipping route %d", *in.ID, fee.ID)
		}
		keep[*in.ID] = true
	}

	// Removals go first so their cities are free for the zones that follow.
	for id := range existing {
		if !keep[id] {
			if err := s.store.DeleteZone(ctx, id); err != nil {
				return err
			}
		}
	}

	for _, in := range inputs {
		zone := model.ShippingZone{
			ShippingFeeID: fee.ID,
			Name:          in.Name,
			Price:         in.Price,
			IsActive:      true,
			CityIDs:       in.CityIDs,
		}
		if in.IsActive != nil {
			zone.IsActive = *in.IsActive
		}
		if in.ID != nil {
			zone.ID = *in.ID
			if err := s.store.UpdateZone(ctx, &zone); err != nil {
				return err
			}
			continue
		}
		if err := s.store.CreateZone(ctx, &zone); err != nil {
			return err
		}
	}
	return nil
}

func (s *ShippingService) ListZones(ctx context.Context, routeID int64) ([]model.ShippingZone, error) {
	fee, err := s.store.GetRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}
	return fee.Zones, nil
}

func (s *ShippingService) GetZone(ctx context.Context, id int64) (*model.ShippingZone, error) {
	return s.store.GetZone(ctx, id)
}

// CreateZone adds a zone to a route. A city already claimed by another active
// zone of the same route is a conflict.
func (s *ShippingService) CreateZone(ctx context.Context, req *model.CreateZoneRequest) (*model.ShippingZone, error) {
	if req.Name == "" {
		return nil, apperr.BadRequest("zone name is required")
	}
	if req.Price.IsNegative() {
		return nil, apperr.BadRequest("zone price must not be negative")
	}
	cityIDs, err := uniqueCities(req.CityIDs)
	if err != nil {
		return nil, err
	}

	zone := &model.ShippingZone{
		ShippingFeeID: req.ShippingFeeID,
		Name:          req.Name,
		Price:         req.Price,
		IsActive:      true,
		CityIDs:       cityIDs,
	}
	if req.IsActive != nil {
		zone.IsActive = *req.IsActive
	}

	var fee *model.ShippingFee
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		fee, err = s.store.LockRoute(ctx, req.ShippingFeeID)
		if err != nil {
			return err
		}
		if err := s.requireCities(ctx, cityIDs); err != nil {
			return err
		}
		if zone.IsActive {
			if err := checkDisjoint(fee, zone); err != nil {
				return err
			}
		}
		return s.store.CreateZone(ctx, zone)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateRoute(ctx, fee)
	return zone, nil
}

func (s *ShippingService) UpdateZone(ctx context.Context, id int64, req *model.UpdateZoneRequest) (*model.ShippingZone, error) {
	if req.Price != nil && req.Price.IsNegative() {
		return nil, apperr.BadRequest("zone price must not be negative")
	}
	if req.Name != nil && *req.Name == "" {
		return nil, apperr.BadRequest("zone name is required")
	}

	current, err := s.store.GetZone(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		fee  *model.ShippingFee
		zone model.ShippingZone
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		fee, err = s.store.LockRoute(ctx, current.ShippingFeeID)
		if err != nil {
			return err
		}
		found := false
		for _, z := range fee.Zones {
			if z.ID == id {
				zone, found = z, true
				break
			}
		}
		if !found {
			return apperr.NotFound("zone %d not found", id)
		}

		if req.Name != nil {
			zone.Name = *req.Name
		}
		if req.Price != nil {
			zone.Price = *req.Price
		}
		if req.IsActive != nil {
			zone.IsActive = *req.IsActive
		}
		if req.CityIDs != nil {
			cityIDs, err := uniqueCities(req.CityIDs)
			if err != nil {
				return err
			}
			if err := s.requireCities(ctx, cityIDs); err != nil {
				return err
			}
			zone.CityIDs = cityIDs
		}
		if zone.IsActive {
			if err := checkDisjoint(fee, &zone); err != nil {
				return err
			}
		}
		return s.store.UpdateZone(ctx, &zone)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateRoute(ctx, fee)
	return &zone, nil
}

func (s *ShippingService) DeleteZone(ctx context.Context, id int64) error {
	zone, err := s.store.GetZone(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteZone(ctx, id); err != nil {
		return err
	}
	if fee, err := s.store.GetRoute(ctx, zone.ShippingFeeID); err == nil {
		s.invalidateRoute(ctx, fee)
	}
	return nil
}

// ClearZones removes every zone of a route.
func (s *ShippingService) ClearZones(ctx context.Context, routeID int64) (int64, error) {
	fee, err := s.store.GetRoute(ctx, routeID)
	if err != nil {
		return 0, err
	}
	n, err := s.store.DeleteZonesByRoute(ctx, routeID)
	if err != nil {
		return 0, err
	}
	s.invalidateRoute(ctx, fee)
	return n, nil
}

// GenerateRandomZones splits the destination wilaya's communes at random into
// three zones priced at the home price, +17% and +33%.
func (s *ShippingService) GenerateRandomZones(ctx context.Context, fromCode, toCode string) ([]model.ShippingZone, error) {
	route, err := s.store.FindRoute(ctx, fromCode, toCode)
	if err != nil {
		return nil, err
	}
	cities, err := s.geo.ListCitiesByWilaya(ctx, toCode)
	if err != nil {
		return nil, err
	}
	if len(cities) == 0 {
		return nil, apperr.BadRequest("wilaya %s has no communes", toCode)
	}

	ids := make([]int64, len(cities))
	for i, c := range cities {
		ids[i] = c.ID
	}
	s.shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	var zones []model.ShippingZone
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		fee, err := s.store.LockRoute(ctx, route.ID)
		if err != nil {
			return err
		}
		if len(fee.Zones) > 0 {
			return apperr.Conflict("shipping route %s already has zones, clear them first", routeKey(fee))
		}

		chunk := (len(ids) + len(generatedZones) - 1) / len(generatedZones)
		for i, g := range generatedZones {
			lo := i * chunk
			if lo >= len(ids) {
				break
			}
			hi := lo + chunk
			if hi > len(ids) {
				hi = len(ids)
			}
			zone := model.ShippingZone{
				ShippingFeeID: fee.ID,
				Name:          g.name,
				Price:         fee.HomePrice.Mul(g.factor).Round(2),
				IsActive:      true,
				CityIDs:       append([]int64(nil), ids[lo:hi]...),
			}
			if err := s.store.CreateZone(ctx, &zone); err != nil {
				return err
			}
			zones = append(zones, zone)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateRoute(ctx, route)
	s.log.Info("zones generated", zap.String("route", routeKey(route)), zap.Int("zones", len(zones)))
	return zones, nil
}

// SetAllPrices upserts every route of the wilaya cross product with prices.
func (s *ShippingService) SetAllPrices(ctx context.Context, prices model.RoutePrices) (*model.BulkPriceResult, error) {
	if !prices.NonNegative() {
		return nil, apperr.BadRequest("prices must not be negative")
	}
	wilayas, err := s.geo.ListWilayas(ctx)
	if err != nil {
		return nil, err
	}
	return s.upsertRoutes(ctx, "set_all_prices", wilayas, wilayas, func(_, _ string) model.RoutePrices {
		return prices
	}), nil
}

// SetWilayaPrices upserts every route leaving fromCode with prices.
func (s *ShippingService) SetWilayaPrices(ctx context.Context, fromCode string, prices model.RoutePrices) (*model.BulkPriceResult, error) {
	if !prices.NonNegative() {
		return nil, apperr.BadRequest("prices must not be negative")
	}
	from, err := s.geo.GetWilaya(ctx, fromCode)
	if err != nil {
		return nil, err
	}
	wilayas, err := s.geo.ListWilayas(ctx)
	if err != nil {
		return nil, err
	}
	return s.upsertRoutes(ctx, "set_wilaya_prices", []model.Wilaya{*from}, wilayas, func(_, _ string) model.RoutePrices {
		return prices
	}), nil
}

// InitializeAll upserts the full cross product, using local prices for routes
// that stay inside one wilaya.
func (s *ShippingService) InitializeAll(ctx context.Context, defaults, local model.RoutePrices) (*model.BulkPriceResult, error) {
	if !defaults.NonNegative() || !local.NonNegative() {
		return nil, apperr.BadRequest("prices must not be negative")
	}
	wilayas, err := s.geo.ListWilayas(ctx)
	if err != nil {
		return nil, err
	}
	return s.upsertRoutes(ctx, "initialize_all", wilayas, wilayas, func(from, to string) model.RoutePrices {
		if from == to {
			return local
		}
		return defaults
	}), nil
}

func (s *ShippingService) upsertRoutes(ctx context.Context, op string, froms, tos []model.Wilaya,
	pricesFor func(from, to string) model.RoutePrices) *model.BulkPriceResult {
	res := &model.BulkPriceResult{Errors: []model.BulkItemError{}}
	for _, from := range froms {
		for _, to := range tos {
			res.Total++
			p := pricesFor(from.Code, to.Code)
			fee := &model.ShippingFee{
				FromWilayaCode: from.Code,
				ToWilayaCode:   to.Code,
				DesktopPrice:   p.DesktopPrice,
				HomePrice:      p.HomePrice,
				ReturnPrice:    p.ReturnPrice,
				IsActive:       true,
			}
			created, err := s.store.UpsertRoute(ctx, fee)
			s.metrics.BulkItem(op, err)
			if err != nil {
				res.Failed++
				res.Errors = append(res.Errors, model.BulkItemError{ID: routeKey(fee), Error: err.Error()})
				continue
			}
			if created {
				res.Created++
			} else {
				res.Updated++
			}
			s.invalidateRoute(ctx, fee)
		}
	}
	s.log.Info("bulk route upsert finished", zap.String("op", op),
		zap.Int("created", res.Created), zap.Int("updated", res.Updated), zap.Int("failed", res.Failed))
	return res
}

func (s *ShippingService) requireCities(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.geo.FindCities(ctx, ids)
	if err != nil {
		return err
	}
	known := make(map[int64]bool, len(found))
	for _, c := range found {
		known[c.ID] = true
	}
	for _, id := range ids {
		if !known[id] {
			return apperr.NotFound("city %d not found", id)
		}
	}
	return nil
}

func (s *ShippingService) invalidateRoute(ctx context.Context, fee *model.ShippingFee) {
	if fee == nil {
		return
	}
	if err := s.cache.InvalidateRoute(ctx, fee.FromWilayaCode, fee.ToWilayaCode); err != nil {
		s.log.Warn("route cache invalidation failed", zap.String("route", routeKey(fee)), zap.Error(err))
	}
}

// checkDisjoint rejects zone when one of its cities already belongs to another
// active zone of fee.
func checkDisjoint(fee *model.ShippingFee, zone *model.ShippingZone) error {
	for i := range fee.Zones {
		other := &fee.Zones[i]
		if other.ID == zone.ID || !other.IsActive {
			continue
		}
		for _, cityID := range zone.CityIDs {
			if other.HasCity(cityID) {
				return apperr.Conflict("city %d already belongs to zone %q of shipping route %s",
					cityID, other.Name, routeKey(fee))
			}
		}
	}
	return nil
}

func uniqueCities(ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, apperr.BadRequest("a zone needs at least one city")
	}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, apperr.BadRequest("city %d is listed twice", id)
		}
		seen[id] = true
	}
	return ids, nil
}

func routeKey(fee *model.ShippingFee) string {
	return fmt.Sprintf("%s->%s", fee.FromWilayaCode, fee.ToWilayaCode)
}
