package memory

import (
	"context"
	"sort"

	"github.com/bharathbbg/parcel-hub/internal/apperr"
	"github.com/bharathbbg/parcel-hub/internal/model"
)

func (m *Store) ListUnclaimedOrders(_ context.Context, vendorID int64) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Order{}
	for _, o := range m.s.orders {
		if o.SenderID != vendorID || o.WithdrawalRequestID != nil {
			continue
		}
		if o.Status == model.StatusPaid || o.Status == model.StatusReturned {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) CreateWithdrawalRequest(ctx context.Context, req *model.WithdrawalRequest) error {
	defer m.write(ctx)()
	for _, w := range m.s.withdrawals {
		if w.TrackingCode == req.TrackingCode {
			return apperr.Conflict("withdrawal request %s already exists", req.TrackingCode)
		}
	}
	req.ID = m.s.id()
	stored := *req
	stored.OrderIDs = nil
	m.s.withdrawals[req.ID] = stored
	return nil
}

func (m *Store) LinkOrders(ctx context.Context, requestID int64, orderIDs []int64) (int64, error) {
	defer m.write(ctx)()
	var n int64
	for _, id := range orderIDs {
		o, ok := m.s.orders[id]
		if !ok || o.WithdrawalRequestID != nil {
			continue
		}
		rid := requestID
		o.WithdrawalRequestID = &rid
		m.s.orders[id] = o
		n++
	}
	return n, nil
}

func (m *Store) UnlinkOrders(ctx context.Context, requestID int64) (int64, error) {
	defer m.write(ctx)()
	var n int64
	for id, o := range m.s.orders {
		if o.WithdrawalRequestID != nil && *o.WithdrawalRequestID == requestID {
			o.WithdrawalRequestID = nil
			m.s.orders[id] = o
			n++
		}
	}
	return n, nil
}

func (m *Store) GetWithdrawalRequest(_ context.Context, id int64) (*model.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.s.withdrawals[id]
	if !ok {
		return nil, apperr.NotFound("withdrawal request %d not found", id)
	}
	w.OrderIDs = []int64{}
	for _, o := range m.s.orders {
		if o.WithdrawalRequestID != nil && *o.WithdrawalRequestID == id {
			w.OrderIDs = append(w.OrderIDs, o.ID)
		}
	}
	sort.Slice(w.OrderIDs, func(i, j int) bool { return w.OrderIDs[i] < w.OrderIDs[j] })
	return &w, nil
}

func (m *Store) ListWithdrawalRequests(_ context.Context, filter model.WithdrawalFilter) ([]model.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.WithdrawalRequest{}
	for _, w := range m.s.withdrawals {
		if filter.VendorID != nil && w.VendorID != *filter.VendorID {
			continue
		}
		if filter.Status != "" && w.Status != filter.Status {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Offset >= len(out) {
		return []model.WithdrawalRequest{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Store) UpdateWithdrawalRequest(ctx context.Context, req *model.WithdrawalRequest) error {
	defer m.write(ctx)()
	w, ok := m.s.withdrawals[req.ID]
	if !ok {
		return apperr.NotFound("withdrawal request %d not found", req.ID)
	}
	w.Status, w.Condition, w.PaymentDate, w.Notes, w.UpdatedAt = req.Status, req.Condition, req.PaymentDate, req.Notes, req.UpdatedAt
	m.s.withdrawals[req.ID] = w
	return nil
}

func (m *Store) DeleteWithdrawalRequest(ctx context.Context, id int64) error {
	defer m.write(ctx)()
	if _, ok := m.s.withdrawals[id]; !ok {
		return apperr.NotFound("withdrawal request %d not found", id)
	}
	delete(m.s.withdrawals, id)
	return nil
}

// SetOrderStatus overwrites an order's status directly. It exists to stage
// states in local runs and tests.
func (m *Store) SetOrderStatus(id int64, status model.OrderStatus) {
	defer m.write(context.Background())()
	if o, ok := m.s.orders[id]; ok {
		o.Status = status
		m.s.orders[id] = o
	}
}
