package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/bharathbbg/parcel-hub/internal/model"
)

const orderColumns = `id, order_code, sender_id, deliveryman_id, hub_id, first_name, last_name,
	contact_phone, contact_phone2, address, from_city_id, to_city_id, price, shipping_fee,
	weight, height, width, length, is_stop_desk, free_shipping, has_exchange, payment_type, status,
	withdrawal_request_id, created_at, updated_at, delivered_at, cancelled_at`

type OrderStore struct {
	*Postgres
}

func NewOrderStore(pg *Postgres) *OrderStore {
	return &OrderStore{Postgres: pg}
}

// NextOrderSequence atomically increments and returns the order counter of
// the year.
func (s *OrderStore) NextOrderSequence(ctx context.Context, year int) (int64, error) {
	query := `
		INSERT INTO order_sequences (year, value) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET value = order_sequences.value + 1
		RETURNING value`

	var next int64
	if err := s.conn(ctx).QueryRowxContext(ctx, query, year).Scan(&next); err != nil {
		return 0, translate(err, "order sequence %d", year)
	}
	return next, nil
}

func (s *OrderStore) CreateOrder(ctx context.Context, order *model.Order) error {
	query := `
		INSERT INTO orders (
			order_code, sender_id, deliveryman_id, hub_id, first_name, last_name,
			contact_phone, contact_phone2, address, from_city_id, to_city_id, price, shipping_fee,
			weight, height, width, length, is_stop_desk, free_shipping, has_exchange, payment_type,
			status, created_at, updated_at
		) VALUES (
			:order_code, :sender_id, :deliveryman_id, :hub_id, :first_name, :last_name,
			:contact_phone, :contact_phone2, :address, :from_city_id, :to_city_id, :price, :shipping_fee,
			:weight, :height, :width, :length, :is_stop_desk, :free_shipping, :has_exchange, :payment_type,
			:status, :created_at, :updated_at
		) RETURNING id`

	rows, err := sqlx.NamedQueryContext(ctx, s.conn(ctx), query, order)
	if err != nil {
		return translate(err, "order %s", order.OrderCode)
	}
	if rows.Next() {
		err = rows.Scan(&order.ID)
	}
	rows.Close()
	if err != nil {
		return translate(err, "order %s", order.OrderCode)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := s.conn(ctx).QueryRowxContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price, total_price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.TotalPrice,
		).Scan(&item.ID)
		if err != nil {
			return translate(err, "item of order %s", order.OrderCode)
		}
	}
	return nil
}

func (s *OrderStore) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return s.loadOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (s *OrderStore) LockOrder(ctx context.Context, id int64) (*model.Order, error) {
	return s.loadOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (s *OrderStore) GetOrderByCode(ctx context.Context, code string) (*model.Order, error) {
	return s.loadOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_code = $1`, code)
}

func (s *OrderStore) loadOrder(ctx context.Context, query string, key interface{}) (*model.Order, error) {
	var order model.Order
	if err := sqlx.GetContext(ctx, s.conn(ctx), &order, query, key); err != nil {
		return nil, translate(err, "order %v", key)
	}
	items, err := s.itemsOf(ctx, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	if order.Items == nil {
		order.Items = []model.OrderItem{}
	}
	return &order, nil
}

func (s *OrderStore) itemsOf(ctx context.Context, orderIDs []int64) (map[int64][]model.OrderItem, error) {
	var items []model.OrderItem
	err := sqlx.SelectContext(ctx, s.conn(ctx), &items, `
		SELECT id, order_id, product_id, quantity, unit_price, total_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`, pq.Int64Array(orderIDs))
	if err != nil {
		return nil, translate(err, "order items")
	}
	out := make(map[int64][]model.OrderItem)
	for _, it := range items {
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, nil
}

func (s *OrderStore) ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, int, error) {
	var where []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+itoa(len(args))))
	}
	if filter.SenderID != nil {
		add("sender_id = ?", *filter.SenderID)
	}
	if filter.DeliverymanID != nil {
		add("deliveryman_id = ?", *filter.DeliverymanID)
	}
	if filter.Status != "" {
		add("status = ?", filter.Status)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, s.conn(ctx), &total, `SELECT COUNT(*) FROM orders`+cond, args...); err != nil {
		return nil, 0, translate(err, "orders")
	}
	if total == 0 {
		return []model.Order{}, 0, nil
	}

	args = append(args, filter.Limit, filter.Offset)
	query := `SELECT ` + orderColumns + ` FROM orders` + cond +
		` ORDER BY created_at DESC, id DESC LIMIT $` + itoa(len(args)-1) + ` OFFSET $` + itoa(len(args))
	orders := []model.Order{}
	if err := sqlx.SelectContext(ctx, s.conn(ctx), &orders, query, args...); err != nil {
		return nil, 0, translate(err, "orders")
	}

	ids := make([]int64, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	items, err := s.itemsOf(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []model.OrderItem{}
		}
	}
	return orders, total, nil
}

// UpdateOrder writes the mutable columns of an order. Items are immutable.
func (s *OrderStore) UpdateOrder(ctx context.Context, order *model.Order) error {
	query := `
		UPDATE orders SET
			deliveryman_id = :deliveryman_id, hub_id = :hub_id, from_city_id = :from_city_id,
			to_city_id = :to_city_id, shipping_fee = :shipping_fee, weight = :weight, status = :status,
			updated_at = :updated_at, delivered_at = :delivered_at, cancelled_at = :cancelled_at
		WHERE id = :id`

	res, err := sqlx.NamedExecContext(ctx, s.conn(ctx), query, order)
	if err != nil {
		return translate(err, "order %d", order.ID)
	}
	return requireAffected(res, "order %d", order.ID)
}
