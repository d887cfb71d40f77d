package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/bharathbbg/parcel-hub/internal/model"
)

const (
	lockerColumns = `id, reference_id, name, address, city_id, wilaya_code, capacity, operating_hours,
	is_active, created_at, updated_at`
	closetColumns = `locker_id, closet_number, status, current_order_id, password_hash,
	password_expires_at, deposited_at, updated_at`
)

type LockerStore struct {
	*Postgres
}

func NewLockerStore(pg *Postgres) *LockerStore {
	return &LockerStore{Postgres: pg}
}

func (s *LockerStore) CreateLocker(ctx context.Context, locker *model.Locker) error {
	query := `
		INSERT INTO lockers (reference_id, name, address, city_id, wilaya_code, capacity, operating_hours, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err := s.conn(ctx).QueryRowxContext(ctx, query,
		locker.ReferenceID, locker.Name, locker.Address, locker.CityID, locker.WilayaCode,
		locker.Capacity, locker.OperatingHours, locker.IsActive,
	).Scan(&locker.ID, &locker.CreatedAt, &locker.UpdatedAt)
	return translate(err, "locker %q", locker.Name)
}

func (s *LockerStore) GetLocker(ctx context.Context, id int64) (*model.Locker, error) {
	var locker model.Locker
	err := sqlx.GetContext(ctx, s.conn(ctx), &locker, `SELECT `+lockerColumns+` FROM lockers WHERE id = $1`, id)
	if err != nil {
		return nil, translate(err, "locker %d", id)
	}
	locker.Closets = []model.Closet{}
	err = sqlx.SelectContext(ctx, s.conn(ctx), &locker.Closets,
		`SELECT `+closetColumns+` FROM locker_closets WHERE locker_id = $1 ORDER BY closet_number`, id)
	if err != nil {
		return nil, translate(err, "closets of locker %d", id)
	}
	return &locker, nil
}

func (s *LockerStore) ListLockers(ctx context.Context) ([]model.Locker, error) {
	lockers := []model.Locker{}
	if err := sqlx.SelectContext(ctx, s.conn(ctx), &lockers, `SELECT `+lockerColumns+` FROM lockers ORDER BY id`); err != nil {
		return nil, translate(err, "lockers")
	}
	return lockers, nil
}

func (s *LockerStore) UpdateLocker(ctx context.Context, locker *model.Locker) error {
	query := `
		UPDATE lockers SET
			reference_id = $2, name = $3, address = $4, city_id = $5, wilaya_code = $6,
			capacity = $7, operating_hours = $8, is_active = $9, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := s.conn(ctx).QueryRowxContext(ctx, query,
		locker.ID, locker.ReferenceID, locker.Name, locker.Address, locker.CityID, locker.WilayaCode,
		locker.Capacity, locker.OperatingHours, locker.IsActive,
	).Scan(&locker.UpdatedAt)
	return translate(err, "locker %d", locker.ID)
}

// AddClosets creates available closets numbered from..to inclusive.
func (s *LockerStore) AddClosets(ctx context.Context, lockerID int64, from, to int) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO locker_closets (locker_id, closet_number, status)
		SELECT $1, n, 'available' FROM generate_series($2::int, $3::int) AS n`,
		lockerID, from, to)
	return translate(err, "closets of locker %d", lockerID)
}

func (s *LockerStore) RemoveClosetsAbove(ctx context.Context, lockerID int64, capacity int) (int64, error) {
	res, err := s.conn(ctx).ExecContext(ctx, `
		DELETE FROM locker_closets
		WHERE locker_id = $1 AND closet_number > $2 AND status = 'available'`,
		lockerID, capacity)
	if err != nil {
		return 0, translate(err, "closets of locker %d", lockerID)
	}
	return res.RowsAffected()
}

func (s *LockerStore) GetCloset(ctx context.Context, lockerID int64, number int) (*model.Closet, error) {
	var c model.Closet
	err := sqlx.GetContext(ctx, s.conn(ctx), &c,
		`SELECT `+closetColumns+` FROM locker_closets WHERE locker_id = $1 AND closet_number = $2`,
		lockerID, number)
	if err != nil {
		return nil, translate(err, "closet %d of locker %d", number, lockerID)
	}
	return &c, nil
}

// ReserveAvailableCloset picks the lowest available closet and reserves it in
// one statement. Concurrent callers skip rows another caller is claiming.
func (s *LockerStore) ReserveAvailableCloset(ctx context.Context, lockerID int64) (int, bool, error) {
	query := `
		UPDATE locker_closets SET status = 'reserved', updated_at = now()
		WHERE (locker_id, closet_number) = (
			SELECT locker_id, closet_number FROM locker_closets
			WHERE locker_id = $1 AND status = 'available'
			ORDER BY closet_number
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING closet_number`

	var number int
	err := s.conn(ctx).QueryRowxContext(ctx, query, lockerID).Scan(&number)
	if err != nil {
		if isNoRows(err) {
			return 0, false, nil
		}
		return 0, false, translate(err, "closets of locker %d", lockerID)
	}
	return number, true, nil
}

func (s *LockerStore) TransitionCloset(ctx context.Context, t model.ClosetTransition) (bool, error) {
	from := make([]string, len(t.From))
	for i, st := range t.From {
		from[i] = string(st)
	}
	query := `
		UPDATE locker_closets SET
			status = $3, current_order_id = $4, password_hash = $5,
			password_expires_at = $6, deposited_at = $7, updated_at = now()
		WHERE locker_id = $1 AND closet_number = $2 AND status = ANY($8)
			AND ($9::timestamptz IS NULL OR password_expires_at < $9)`

	res, err := s.conn(ctx).ExecContext(ctx, query,
		t.LockerID, t.Number, t.To, t.CurrentOrderID, t.PasswordHash,
		t.PasswordExpiresAt, t.DepositedAt, pq.StringArray(from), t.ExpiredBefore)
	if err != nil {
		return false, translate(err, "closet %d of locker %d", t.Number, t.LockerID)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *LockerStore) ListClosetsByStatus(ctx context.Context, lockerID int64, status model.ClosetStatus) ([]model.Closet, error) {
	closets := []model.Closet{}
	err := sqlx.SelectContext(ctx, s.conn(ctx), &closets, `
		SELECT `+closetColumns+` FROM locker_closets
		WHERE locker_id = $1 AND status = $2
		ORDER BY closet_number`, lockerID, status)
	if err != nil {
		return nil, translate(err, "closets of locker %d", lockerID)
	}
	return closets, nil
}

// ListExpiredClosets returns occupied closets across all lockers whose access
// code expired before now.
func (s *LockerStore) ListExpiredClosets(ctx context.Context, now time.Time) ([]model.Closet, error) {
	closets := []model.Closet{}
	err := sqlx.SelectContext(ctx, s.conn(ctx), &closets, `
		SELECT `+closetColumns+` FROM locker_closets
		WHERE status = 'occupied' AND password_expires_at < $1
		ORDER BY locker_id, closet_number`, now)
	if err != nil {
		return nil, translate(err, "expired closets")
	}
	return closets, nil
}
