package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/bharathbbg/parcel-hub/internal/model"
)

// ProductStore is the read side of the product catalog.
type ProductStore struct {
	*Postgres
}

func NewProductStore(pg *Postgres) *ProductStore {
	return &ProductStore{Postgres: pg}
}

func (s *ProductStore) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	err := sqlx.GetContext(ctx, s.conn(ctx), &p, `SELECT id, vendor_id, name, price FROM products WHERE id = $1`, id)
	if err != nil {
		return nil, translate(err, "product %d", id)
	}
	return &p, nil
}
