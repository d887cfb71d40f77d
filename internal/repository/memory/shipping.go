package memory

import (
	"context"
	"sort"

	"github.com/bharathbbg/parcel-hub/internal/apperr"
	"github.com/bharathbbg/parcel-hub/internal/model"
)

func copyZone(z model.ShippingZone) model.ShippingZone {
	z.CityIDs = append([]int64(nil), z.CityIDs...)
	return z
}

// withZones returns fee with its zones attached in id order.
func (s *state) withZones(fee model.ShippingFee) model.ShippingFee {
	fee.Zones = []model.ShippingZone{}
	for _, z := range s.zones {
		if z.ShippingFeeID == fee.ID {
			fee.Zones = append(fee.Zones, copyZone(z))
		}
	}
	sort.Slice(fee.Zones, func(i, j int) bool { return fee.Zones[i].ID < fee.Zones[j].ID })
	return fee
}

func (s *state) findRoute(fromCode, toCode string) (model.ShippingFee, bool) {
	for _, r := range s.routes {
		if r.FromWilayaCode == fromCode && r.ToWilayaCode == toCode {
			return r, true
		}
	}
	return model.ShippingFee{}, false
}

func (m *Store) CreateRoute(ctx context.Context, fee *model.ShippingFee) error {
	defer m.write(ctx)()
	if _, ok := m.s.findRoute(fee.FromWilayaCode, fee.ToWilayaCode); ok {
		return apperr.Conflict("shipping route %s->%s already exists", fee.FromWilayaCode, fee.ToWilayaCode)
	}
	now := m.now()
	fee.ID = m.s.id()
	fee.CreatedAt, fee.UpdatedAt = now, now
	fee.Zones = []model.ShippingZone{}
	stored := *fee
	stored.Zones = nil
	m.s.routes[fee.ID] = stored
	return nil
}

func (m *Store) GetRoute(_ context.Context, id int64) (*model.ShippingFee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.s.routes[id]
	if !ok {
		return nil, apperr.NotFound("shipping route %d not found", id)
	}
	fee := m.s.withZones(r)
	return &fee, nil
}

func (m *Store) LockRoute(ctx context.Context, id int64) (*model.ShippingFee, error) {
	return m.GetRoute(ctx, id)
}

func (m *Store) FindRoute(_ context.Context, fromCode, toCode string) (*model.ShippingFee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.s.findRoute(fromCode, toCode)
	if !ok {
		return nil, apperr.NotFound("shipping route %s->%s not found", fromCode, toCode)
	}
	fee := m.s.withZones(r)
	return &fee, nil
}

func (m *Store) ListRoutes(_ context.Context, filter model.RouteFilter) ([]model.ShippingFee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.ShippingFee{}
	for _, r := range m.s.routes {
		if filter.FromWilayaCode != "" && r.FromWilayaCode != filter.FromWilayaCode {
			continue
		}
		if filter.ToWilayaCode != "" && r.ToWilayaCode != filter.ToWilayaCode {
			continue
		}
		if filter.ActiveOnly && !r.IsActive {
			continue
		}
		out = append(out, m.s.withZones(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FromWilayaCode != out[j].FromWilayaCode {
			return out[i].FromWilayaCode < out[j].FromWilayaCode
		}
		return out[i].ToWilayaCode < out[j].ToWilayaCode
	})
	return out, nil
}

func (m *Store) UpdateRoute(ctx context.Context, fee *model.ShippingFee) error {
	defer m.write(ctx)()
	r, ok := m.s.routes[fee.ID]
	if !ok {
		return apperr.NotFound("shipping route %d not found", fee.ID)
	}
	r.DesktopPrice, r.HomePrice, r.ReturnPrice = fee.DesktopPrice, fee.HomePrice, fee.ReturnPrice
	r.IsActive = fee.IsActive
	r.UpdatedAt = m.now()
	fee.UpdatedAt = r.UpdatedAt
	m.s.routes[r.ID] = r
	return nil
}

func (m *Store) UpsertRoute(ctx context.Context, fee *model.ShippingFee) (bool, error) {
	defer m.write(ctx)()
	now := m.now()
	if r, ok := m.s.findRoute(fee.FromWilayaCode, fee.ToWilayaCode); ok {
		r.DesktopPrice, r.HomePrice, r.ReturnPrice = fee.DesktopPrice, fee.HomePrice, fee.ReturnPrice
		r.UpdatedAt = now
		m.s.routes[r.ID] = r
		fee.ID, fee.CreatedAt, fee.UpdatedAt = r.ID, r.CreatedAt, r.UpdatedAt
		return false, nil
	}
	fee.ID = m.s.id()
	fee.CreatedAt, fee.UpdatedAt = now, now
	stored := *fee
	stored.Zones = nil
	m.s.routes[fee.ID] = stored
	return true, nil
}

func (m *Store) GetZone(_ context.Context, id int64) (*model.ShippingZone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.s.zones[id]
	if !ok {
		return nil, apperr.NotFound("shipping zone %d not found", id)
	}
	z = copyZone(z)
	return &z, nil
}

func (m *Store) CreateZone(ctx context.Context, zone *model.ShippingZone) error {
	defer m.write(ctx)()
	if _, ok := m.s.routes[zone.ShippingFeeID]; !ok {
		return apperr.NotFound("shipping route %d not found", zone.ShippingFeeID)
	}
	now := m.now()
	zone.ID = m.s.id()
	zone.CreatedAt, zone.UpdatedAt = now, now
	m.s.zones[zone.ID] = copyZone(*zone)
	return nil
}

func (m *Store) UpdateZone(ctx context.Context, zone *model.ShippingZone) error {
	defer m.write(ctx)()
	z, ok := m.s.zones[zone.ID]
	if !ok {
		return apperr.NotFound("shipping zone %d not found", zone.ID)
	}
	zone.ShippingFeeID = z.ShippingFeeID
	zone.CreatedAt = z.CreatedAt
	zone.UpdatedAt = m.now()
	m.s.zones[zone.ID] = copyZone(*zone)
	return nil
}

func (m *Store) DeleteZone(ctx context.Context, id int64) error {
	defer m.write(ctx)()
	if _, ok := m.s.zones[id]; !ok {
		return apperr.NotFound("shipping zone %d not found", id)
	}
	delete(m.s.zones, id)
	return nil
}

func (m *Store) DeleteZonesByRoute(ctx context.Context, routeID int64) (int64, error) {
	defer m.write(ctx)()
	var n int64
	for id, z := range m.s.zones {
		if z.ShippingFeeID == routeID {
			delete(m.s.zones, id)
			n++
		}
	}
	return n, nil
}
