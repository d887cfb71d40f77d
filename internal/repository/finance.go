package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/bharathbbg/parcel-hub/internal/model"
)

const withdrawalColumns = `id, tracking_code, vendor_id, total_amount, paid_orders_amount,
	returned_orders_amount, paid_orders_count, returned_orders_count, status, condition,
	payment_date, notes, created_at, updated_at`

type FinanceStore struct {
	*Postgres
}

func NewFinanceStore(pg *Postgres) *FinanceStore {
	return &FinanceStore{Postgres: pg}
}

func (s *FinanceStore) ListUnclaimedOrders(ctx context.Context, vendorID int64) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE sender_id = $1 AND status IN ('PAID', 'RETURNED') AND withdrawal_request_id IS NULL
		ORDER BY id`
	if inTx(ctx) {
		query += ` FOR UPDATE`
	}

	orders := []model.Order{}
	if err := sqlx.SelectContext(ctx, s.conn(ctx), &orders, query, vendorID); err != nil {
		return nil, translate(err, "orders of vendor %d", vendorID)
	}
	return orders, nil
}

func (s *FinanceStore) CreateWithdrawalRequest(ctx context.Context, req *model.WithdrawalRequest) error {
	query := `
		INSERT INTO withdrawal_requests (
			tracking_code, vendor_id, total_amount, paid_orders_amount, returned_orders_amount,
			paid_orders_count, returned_orders_count, status, condition, payment_date, notes,
			created_at, updated_at
		) VALUES (
			:tracking_code, :vendor_id, :total_amount, :paid_orders_amount, :returned_orders_amount,
			:paid_orders_count, :returned_orders_count, :status, :condition, :payment_date, :notes,
			:created_at, :updated_at
		) RETURNING id`

	rows, err := sqlx.NamedQueryContext(ctx, s.conn(ctx), query, req)
	if err != nil {
		return translate(err, "withdrawal request %s", req.TrackingCode)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&req.ID); err != nil {
			return translate(err, "withdrawal request %s", req.TrackingCode)
		}
	}
	return translate(rows.Err(), "withdrawal request %s", req.TrackingCode)
}

// LinkOrders claims the given orders for a request. Orders already claimed by
// another request are left alone and not counted.
func (s *FinanceStore) LinkOrders(ctx context.Context, requestID int64, orderIDs []int64) (int64, error) {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE orders SET withdrawal_request_id = $1, updated_at = now()
		WHERE id = ANY($2) AND withdrawal_request_id IS NULL`,
		requestID, pq.Int64Array(orderIDs))
	if err != nil {
		return 0, translate(err, "orders of withdrawal request %d", requestID)
	}
	return res.RowsAffected()
}

func (s *FinanceStore) UnlinkOrders(ctx context.Context, requestID int64) (int64, error) {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE orders SET withdrawal_request_id = NULL, updated_at = now()
		WHERE withdrawal_request_id = $1`, requestID)
	if err != nil {
		return 0, translate(err, "orders of withdrawal request %d", requestID)
	}
	return res.RowsAffected()
}

func (s *FinanceStore) GetWithdrawalRequest(ctx context.Context, id int64) (*model.WithdrawalRequest, error) {
	var wr model.WithdrawalRequest
	err := sqlx.GetContext(ctx, s.conn(ctx), &wr, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id)
	if err != nil {
		return nil, translate(err, "withdrawal request %d", id)
	}
	wr.OrderIDs = []int64{}
	err = sqlx.SelectContext(ctx, s.conn(ctx), &wr.OrderIDs,
		`SELECT id FROM orders WHERE withdrawal_request_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, translate(err, "orders of withdrawal request %d", id)
	}
	return &wr, nil
}

func (s *FinanceStore) ListWithdrawalRequests(ctx context.Context, filter model.WithdrawalFilter) ([]model.WithdrawalRequest, error) {
	var where []string
	var args []interface{}
	if filter.VendorID != nil {
		args = append(args, *filter.VendorID)
		where = append(where, "vendor_id = $"+itoa(len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, "status = $"+itoa(len(args)))
	}
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += ` ORDER BY created_at DESC, id DESC LIMIT $` + itoa(len(args)-1) + ` OFFSET $` + itoa(len(args))

	requests := []model.WithdrawalRequest{}
	if err := sqlx.SelectContext(ctx, s.conn(ctx), &requests, query, args...); err != nil {
		return nil, translate(err, "withdrawal requests")
	}
	return requests, nil
}

func (s *FinanceStore) UpdateWithdrawalRequest(ctx context.Context, req *model.WithdrawalRequest) error {
	query := `
		UPDATE withdrawal_requests SET
			status = :status, condition = :condition, payment_date = :payment_date,
			notes = :notes, updated_at = :updated_at
		WHERE id = :id`

	res, err := sqlx.NamedExecContext(ctx, s.conn(ctx), query, req)
	if err != nil {
		return translate(err, "withdrawal request %d", req.ID)
	}
	return requireAffected(res, "withdrawal request %d", req.ID)
}

func (s *FinanceStore) DeleteWithdrawalRequest(ctx context.Context, id int64) error {
	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM withdrawal_requests WHERE id = $1`, id)
	if err != nil {
		return translate(err, "withdrawal request %d", id)
	}
	return requireAffected(res, "withdrawal request %d", id)
}
