package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/bharathbbg/parcel-hub/internal/model"
)

const feeColumns = `id, from_wilaya_code, to_wilaya_code, desktop_price, home_price, return_price,
	is_active, created_at, updated_at`

type zoneRow struct {
	model.ShippingZone
	CityIDs pq.Int64Array `db:"city_ids"`
}

type ShippingStore struct {
	*Postgres
}

func NewShippingStore(pg *Postgres) *ShippingStore {
	return &ShippingStore{Postgres: pg}
}

func (s *ShippingStore) CreateRoute(ctx context.Context, fee *model.ShippingFee) error {
	query := `
		INSERT INTO shipping_fees (
			from_wilaya_code, to_wilaya_code, desktop_price, home_price, return_price, is_active
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := s.conn(ctx).QueryRowxContext(ctx, query,
		fee.FromWilayaCode, fee.ToWilayaCode, fee.DesktopPrice, fee.HomePrice, fee.ReturnPrice, fee.IsActive,
	).Scan(&fee.ID, &fee.CreatedAt, &fee.UpdatedAt)
	if err != nil {
		return translate(err, "shipping route %s->%s", fee.FromWilayaCode, fee.ToWilayaCode)
	}
	fee.Zones = []model.ShippingZone{}
	return nil
}

func (s *ShippingStore) GetRoute(ctx context.Context, id int64) (*model.ShippingFee, error) {
	return s.loadRoute(ctx, fmt.Sprintf("shipping route %d", id),
		`SELECT `+feeColumns+` FROM shipping_fees WHERE id = $1`, id)
}

func (s *ShippingStore) LockRoute(ctx context.Context, id int64) (*model.ShippingFee, error) {
	return s.loadRoute(ctx, fmt.Sprintf("shipping route %d", id),
		`SELECT `+feeColumns+` FROM shipping_fees WHERE id = $1 FOR UPDATE`, id)
}

func (s *ShippingStore) FindRoute(ctx context.Context, fromCode, toCode string) (*model.ShippingFee, error) {
	return s.loadRoute(ctx, fmt.Sprintf("shipping route %s->%s", fromCode, toCode),
		`SELECT `+feeColumns+` FROM shipping_fees WHERE from_wilaya_code = $1 AND to_wilaya_code = $2`,
		fromCode, toCode)
}

func (s *ShippingStore) loadRoute(ctx context.Context, label, query string, args ...interface{}) (*model.ShippingFee, error) {
	var fee model.ShippingFee
	if err := sqlx.GetContext(ctx, s.conn(ctx), &fee, query, args...); err != nil {
		return nil, translate(err, "%s", label)
	}
	zones, err := s.zonesOf(ctx, []int64{fee.ID})
	if err != nil {
		return nil, err
	}
	fee.Zones = zones[fee.ID]
	if fee.Zones == nil {
		fee.Zones = []model.ShippingZone{}
	}
	return &fee, nil
}

func (s *ShippingStore) ListRoutes(ctx context.Context, filter model.RouteFilter) ([]model.ShippingFee, error) {
	var where []string
	var args []interface{}
	if filter.FromWilayaCode != "" {
		args = append(args, filter.FromWilayaCode)
		where = append(where, "from_wilaya_code = $1")
	}
	if filter.ToWilayaCode != "" {
		args = append(args, filter.ToWilayaCode)
		where = append(where, "to_wilaya_code = $"+itoa(len(args)))
	}
	if filter.ActiveOnly {
		where = append(where, "is_active")
	}
	query := `SELECT ` + feeColumns + ` FROM shipping_fees`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY from_wilaya_code, to_wilaya_code"

	fees := []model.ShippingFee{}
	if err := sqlx.SelectContext(ctx, s.conn(ctx), &fees, query, args...); err != nil {
		return nil, translate(err, "shipping routes")
	}
	if len(fees) == 0 {
		return fees, nil
	}

	ids := make([]int64, len(fees))
	for i := range fees {
		ids[i] = fees[i].ID
	}
	zones, err := s.zonesOf(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range fees {
		fees[i].Zones = zones[fees[i].ID]
		if fees[i].Zones == nil {
			fees[i].Zones = []model.ShippingZone{}
		}
	}
	return fees, nil
}

func (s *ShippingStore) UpdateRoute(ctx context.Context, fee *model.ShippingFee) error {
	query := `
		UPDATE shipping_fees
		SET desktop_price = $2, home_price = $3, return_price = $4, is_active = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := s.conn(ctx).QueryRowxContext(ctx, query,
		fee.ID, fee.DesktopPrice, fee.HomePrice, fee.ReturnPrice, fee.IsActive,
	).Scan(&fee.UpdatedAt)
	return translate(err, "shipping route %d", fee.ID)
}

// UpsertRoute writes the prices of the (from, to) route, creating it when it
// does not exist yet.
func (s *ShippingStore) UpsertRoute(ctx context.Context, fee *model.ShippingFee) (bool, error) {
	query := `
		INSERT INTO shipping_fees (
			from_wilaya_code, to_wilaya_code, desktop_price, home_price, return_price, is_active
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (from_wilaya_code, to_wilaya_code) DO UPDATE
		SET desktop_price = EXCLUDED.desktop_price,
			home_price = EXCLUDED.home_price,
			return_price = EXCLUDED.return_price,
			updated_at = now()
		RETURNING id, created_at, updated_at, (xmax = 0) AS inserted`

	var inserted bool
	err := s.conn(ctx).QueryRowxContext(ctx, query,
		fee.FromWilayaCode, fee.ToWilayaCode, fee.DesktopPrice, fee.HomePrice, fee.ReturnPrice, fee.IsActive,
	).Scan(&fee.ID, &fee.CreatedAt, &fee.UpdatedAt, &inserted)
	if err != nil {
		return false, translate(err, "shipping route %s->%s", fee.FromWilayaCode, fee.ToWilayaCode)
	}
	return inserted, nil
}

const zoneSelect = `
	SELECT z.id, z.shipping_fee_id, z.name, z.price, z.is_active, z.created_at, z.updated_at,
		COALESCE(array_agg(c.city_id ORDER BY c.city_id) FILTER (WHERE c.city_id IS NOT NULL), '{}') AS city_ids
	FROM shipping_zones z
	LEFT JOIN shipping_zone_cities c ON c.zone_id = z.id`

func (s *ShippingStore) zonesOf(ctx context.Context, feeIDs []int64) (map[int64][]model.ShippingZone, error) {
	var rows []zoneRow
	query := zoneSelect + ` WHERE z.shipping_fee_id = ANY($1) GROUP BY z.id ORDER BY z.id`
	if err := sqlx.SelectContext(ctx, s.conn(ctx), &rows, query, pq.Int64Array(feeIDs)); err != nil {
		return nil, translate(err, "shipping zones")
	}
	out := make(map[int64][]model.ShippingZone)
	for _, r := range rows {
		z := r.ShippingZone
		z.CityIDs = []int64(r.CityIDs)
		out[z.ShippingFeeID] = append(out[z.ShippingFeeID], z)
	}
	return out, nil
}

func (s *ShippingStore) GetZone(ctx context.Context, id int64) (*model.ShippingZone, error) {
	var r zoneRow
	err := sqlx.GetContext(ctx, s.conn(ctx), &r, zoneSelect+` WHERE z.id = $1 GROUP BY z.id`, id)
	if err != nil {
		return nil, translate(err, "shipping zone %d", id)
	}
	z := r.ShippingZone
	z.CityIDs = []int64(r.CityIDs)
	return &z, nil
}

func (s *ShippingStore) CreateZone(ctx context.Context, zone *model.ShippingZone) error {
	query := `
		INSERT INTO shipping_zones (shipping_fee_id, name, price, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := s.conn(ctx).QueryRowxContext(ctx, query,
		zone.ShippingFeeID, zone.Name, zone.Price, zone.IsActive,
	).Scan(&zone.ID, &zone.CreatedAt, &zone.UpdatedAt)
	if err != nil {
		return translate(err, "shipping zone %q", zone.Name)
	}
	return s.setZoneCities(ctx, zone)
}

func (s *ShippingStore) UpdateZone(ctx context.Context, zone *model.ShippingZone) error {
	query := `
		UPDATE shipping_zones SET name = $2, price = $3, is_active = $4, updated_at = now()
		WHERE id = $1
		RETURNING shipping_fee_id, created_at, updated_at`

	err := s.conn(ctx).QueryRowxContext(ctx, query, zone.ID, zone.Name, zone.Price, zone.IsActive).
		Scan(&zone.ShippingFeeID, &zone.CreatedAt, &zone.UpdatedAt)
	if err != nil {
		return translate(err, "shipping zone %d", zone.ID)
	}
	if _, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM shipping_zone_cities WHERE zone_id = $1`, zone.ID); err != nil {
		return translate(err, "cities of shipping zone %d", zone.ID)
	}
	return s.setZoneCities(ctx, zone)
}

func (s *ShippingStore) setZoneCities(ctx context.Context, zone *model.ShippingZone) error {
	if len(zone.CityIDs) == 0 {
		return nil
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO shipping_zone_cities (zone_id, city_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING`, zone.ID, pq.Int64Array(zone.CityIDs))
	return translate(err, "cities of shipping zone %d", zone.ID)
}

func (s *ShippingStore) DeleteZone(ctx context.Context, id int64) error {
	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM shipping_zones WHERE id = $1`, id)
	if err != nil {
		return translate(err, "shipping zone %d", id)
	}
	return requireAffected(res, "shipping zone %d", id)
}

func (s *ShippingStore) DeleteZonesByRoute(ctx context.Context, routeID int64) (int64, error) {
	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM shipping_zones WHERE shipping_fee_id = $1`, routeID)
	if err != nil {
		return 0, translate(err, "shipping zones of route %d", routeID)
	}
	return res.RowsAffected()
}
