package memory

import (
	"context"
	"sort"

	"github.com/bharathbbg/parcel-hub/internal/apperr"
	"github.com/bharathbbg/parcel-hub/internal/model"
)

func copyOrder(o model.Order) model.Order {
	o.Items = append([]model.OrderItem{}, o.Items...)
	return o
}

func (m *Store) NextOrderSequence(ctx context.Context, year int) (int64, error) {
	defer m.write(ctx)()
	m.s.sequences[year]++
	return m.s.sequences[year], nil
}

func (m *Store) CreateOrder(ctx context.Context, order *model.Order) error {
	defer m.write(ctx)()
	for _, o := range m.s.orders {
		if o.OrderCode == order.OrderCode {
			return apperr.Conflict("order %s already exists", order.OrderCode)
		}
	}
	order.ID = m.s.id()
	for i := range order.Items {
		order.Items[i].ID = m.s.id()
		order.Items[i].OrderID = order.ID
	}
	m.s.orders[order.ID] = copyOrder(*order)
	return nil
}

func (m *Store) GetOrder(_ context.Context, id int64) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order %d not found", id)
	}
	o = copyOrder(o)
	return &o, nil
}

func (m *Store) LockOrder(ctx context.Context, id int64) (*model.Order, error) {
	return m.GetOrder(ctx, id)
}

func (m *Store) GetOrderByCode(_ context.Context, code string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.s.orders {
		if o.OrderCode == code {
			o = copyOrder(o)
			return &o, nil
		}
	}
	return nil, apperr.NotFound("order %s not found", code)
}

func (m *Store) ListOrders(_ context.Context, filter model.OrderFilter) ([]model.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := []model.Order{}
	for _, o := range m.s.orders {
		if filter.SenderID != nil && o.SenderID != *filter.SenderID {
			continue
		}
		if filter.DeliverymanID != nil && (o.DeliverymanID == nil || *o.DeliverymanID != *filter.DeliverymanID) {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		matched = append(matched, copyOrder(o))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	if filter.Offset >= total {
		return []model.Order{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

func (m *Store) UpdateOrder(ctx context.Context, order *model.Order) error {
	defer m.write(ctx)()
	o, ok := m.s.orders[order.ID]
	if !ok {
		return apperr.NotFound("order %d not found", order.ID)
	}
	o.DeliverymanID = order.DeliverymanID
	o.HubID = order.HubID
	o.FromCityID = order.FromCityID
	o.ToCityID = order.ToCityID
	o.ShippingFee = order.ShippingFee
	o.Weight = order.Weight
	o.Status = order.Status
	o.UpdatedAt = order.UpdatedAt
	o.DeliveredAt = order.DeliveredAt
	o.CancelledAt = order.CancelledAt
	m.s.orders[o.ID] = o
	return nil
}
