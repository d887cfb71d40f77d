package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/bharathbbg/parcel-hub/internal/model"
)

type GeographyStore struct {
	*Postgres
}

func NewGeographyStore(pg *Postgres) *GeographyStore {
	return &GeographyStore{Postgres: pg}
}

func (s *GeographyStore) GetWilaya(ctx context.Context, code string) (*model.Wilaya, error) {
	var w model.Wilaya
	err := sqlx.GetContext(ctx, s.conn(ctx), &w, `SELECT code, name, ar_name FROM wilayas WHERE code = $1`, code)
	if err != nil {
		return nil, translate(err, "wilaya %s", code)
	}
	return &w, nil
}

func (s *GeographyStore) ListWilayas(ctx context.Context) ([]model.Wilaya, error) {
	wilayas := []model.Wilaya{}
	err := sqlx.SelectContext(ctx, s.conn(ctx), &wilayas, `SELECT code, name, ar_name FROM wilayas ORDER BY code`)
	if err != nil {
		return nil, translate(err, "wilayas")
	}
	return wilayas, nil
}

func (s *GeographyStore) GetCity(ctx context.Context, id int64) (*model.City, error) {
	var c model.City
	err := sqlx.GetContext(ctx, s.conn(ctx), &c,
		`SELECT id, name, ar_name, wilaya_code FROM cities WHERE id = $1`, id)
	if err != nil {
		return nil, translate(err, "city %d", id)
	}
	return &c, nil
}

func (s *GeographyStore) ListCitiesByWilaya(ctx context.Context, code string) ([]model.City, error) {
	cities := []model.City{}
	err := sqlx.SelectContext(ctx, s.conn(ctx), &cities,
		`SELECT id, name, ar_name, wilaya_code FROM cities WHERE wilaya_code = $1 ORDER BY id`, code)
	if err != nil {
		return nil, translate(err, "cities of wilaya %s", code)
	}
	return cities, nil
}

// FindCities returns the cities among ids that exist.
func (s *GeographyStore) FindCities(ctx context.Context, ids []int64) ([]model.City, error) {
	cities := []model.City{}
	err := sqlx.SelectContext(ctx, s.conn(ctx), &cities,
		`SELECT id, name, ar_name, wilaya_code FROM cities WHERE id = ANY($1) ORDER BY id`, pq.Int64Array(ids))
	if err != nil {
		return nil, translate(err, "cities")
	}
	return cities, nil
}

// Seed upserts the reference geography. It returns the number of wilayas and
// cities written.
func (s *GeographyStore) Seed(ctx context.Context, wilayas []model.Wilaya) (int, int, error) {
	var nw, nc int
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		for _, w := range wilayas {
			_, err := s.conn(ctx).ExecContext(ctx, `
				INSERT INTO wilayas (code, name, ar_name) VALUES ($1, $2, $3)
				ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, ar_name = EXCLUDED.ar_name`,
				w.Code, w.Name, w.ArName)
			if err != nil {
				return errors.Wrapf(err, "error seeding wilaya %s", w.Code)
			}
			nw++
			for _, c := range w.Cities {
				_, err := s.conn(ctx).ExecContext(ctx, `
					INSERT INTO cities (id, wilaya_code, name, ar_name) VALUES ($1, $2, $3, $4)
					ON CONFLICT (id) DO UPDATE SET wilaya_code = EXCLUDED.wilaya_code,
						name = EXCLUDED.name, ar_name = EXCLUDED.ar_name`,
					c.ID, w.Code, c.Name, c.ArName)
				if err != nil {
					return errors.Wrapf(err, "error seeding city %d", c.ID)
				}
				nc++
			}
		}
		return nil
	})
	return nw, nc, err
}
