package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type DeliveryType string

const (
	DeliveryDesktop DeliveryType = "desktop"
	DeliveryHome    DeliveryType = "home"
	DeliveryReturn  DeliveryType = "return"
)

func (t DeliveryType) Valid() bool {
	return t == DeliveryDesktop || t == DeliveryHome || t == DeliveryReturn
}

// ShippingFee is the price record of one directional route.
type ShippingFee struct {
	ID             int64           `json:"id" db:"id"`
	FromWilayaCode string          `json:"from_wilaya_code" db:"from_wilaya_code"`
	ToWilayaCode   string          `json:"to_wilaya_code" db:"to_wilaya_code"`
	DesktopPrice   decimal.Decimal `json:"desktop_price" db:"desktop_price"`
	HomePrice      decimal.Decimal `json:"home_price" db:"home_price"`
	ReturnPrice    decimal.Decimal `json:"return_price" db:"return_price"`
	IsActive       bool            `json:"is_active" db:"is_active"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
	Zones          []ShippingZone  `json:"zones" db:"-"`
}

// ShippingZone overrides the home price of a route for a set of destination cities.
type ShippingZone struct {
	ID            int64           `json:"id" db:"id"`
	ShippingFeeID int64           `json:"shipping_fee_id" db:"shipping_fee_id"`
	Name          string          `json:"name" db:"name"`
	Price         decimal.Decimal `json:"price" db:"price"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	CityIDs       []int64         `json:"city_ids" db:"-"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

func (z *ShippingZone) HasCity(cityID int64) bool {
	for _, id := range z.CityIDs {
		if id == cityID {
			return true
		}
	}
	return false
}

// ZoneFor returns the first active zone containing cityID, in stored order.
func (f *ShippingFee) ZoneFor(cityID int64) *ShippingZone {
	for i := range f.Zones {
		if f.Zones[i].IsActive && f.Zones[i].HasCity(cityID) {
			return &f.Zones[i]
		}
	}
	return nil
}

// Quote resolves the price of the route for a delivery type. Zones only
// apply to home delivery.
func (f *ShippingFee) Quote(t DeliveryType, cityID *int64) PriceQuote {
	q := PriceQuote{
		RouteID:        f.ID,
		FromWilayaCode: f.FromWilayaCode,
		ToWilayaCode:   f.ToWilayaCode,
		Type:           t,
		CityID:         cityID,
	}
	switch t {
	case DeliveryDesktop:
		q.Price = f.DesktopPrice
	case DeliveryReturn:
		q.Price = f.ReturnPrice
	default:
		q.Price = f.HomePrice
		if cityID != nil {
			if z := f.ZoneFor(*cityID); z != nil {
				q.Price = z.Price
				q.ZoneID = &z.ID
				q.ZoneName = z.Name
			}
		}
	}
	return q
}

type PriceQuote struct {
	RouteID        int64           `json:"route_id"`
	FromWilayaCode string          `json:"from_wilaya_code"`
	ToWilayaCode   string          `json:"to_wilaya_code"`
	Type           DeliveryType    `json:"type"`
	CityID         *int64          `json:"city_id,omitempty"`
	Price          decimal.Decimal `json:"price"`
	ZoneID         *int64          `json:"zone_id,omitempty"`
	ZoneName       string          `json:"zone_name,omitempty"`
}

type RoutePrices struct {
	DesktopPrice decimal.Decimal `json:"desktop_price"`
	HomePrice    decimal.Decimal `json:"home_price"`
	ReturnPrice  decimal.Decimal `json:"return_price"`
}

func (p RoutePrices) NonNegative() bool {
	return !p.DesktopPrice.IsNegative() && !p.HomePrice.IsNegative() && !p.ReturnPrice.IsNegative()
}

type RouteFilter struct {
	FromWilayaCode string
	ToWilayaCode   string
	ActiveOnly     bool
}

// Request/Response models
type CreateShippingFeeRequest struct {
	FromWilayaCode string `json:"from_wilaya_code" validate:"required"`
	ToWilayaCode   string `json:"to_wilaya_code" validate:"required"`
	RoutePrices
	IsActive *bool `json:"is_active"`
}

type ZoneInput struct {
	ID       *int64          `json:"id"`
	Name     string          `json:"name" validate:"required"`
	Price    decimal.Decimal `json:"price"`
	IsActive *bool           `json:"is_active"`
	CityIDs  []int64         `json:"city_ids" validate:"required,min=1"`
}

// UpdateShippingFeeRequest leaves zones untouched when Zones is nil; an empty
// list removes every zone of the route.
type UpdateShippingFeeRequest struct {
	DesktopPrice *decimal.Decimal `json:"desktop_price"`
	HomePrice    *decimal.Decimal `json:"home_price"`
	ReturnPrice  *decimal.Decimal `json:"return_price"`
	IsActive     *bool            `json:"is_active"`
	Zones        []ZoneInput      `json:"zones" validate:"omitempty,dive"`
}

type CreateZoneRequest struct {
	ShippingFeeID int64           `json:"shipping_fee_id" validate:"required"`
	Name          string          `json:"name" validate:"required"`
	Price         decimal.Decimal `json:"price"`
	IsActive      *bool           `json:"is_active"`
	CityIDs       []int64         `json:"city_ids" validate:"required,min=1"`
}

type UpdateZoneRequest struct {
	Name     *string          `json:"name"`
	Price    *decimal.Decimal `json:"price"`
	IsActive *bool            `json:"is_active"`
	CityIDs  []int64          `json:"city_ids"`
}

type SetPricesRequest struct {
	RoutePrices
}

type BulkPriceResult struct {
	Total   int             `json:"total"`
	Created int             `json:"created"`
	Updated int             `json:"updated"`
	Failed  int             `json:"failed"`
	Errors  []BulkItemError `json:"errors,omitempty"`
}
