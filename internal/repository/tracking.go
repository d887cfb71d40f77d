package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bharathbbg/parcel-hub/internal/model"
)

type TrackingStore struct {
	*Postgres
}

func NewTrackingStore(pg *Postgres) *TrackingStore {
	return &TrackingStore{Postgres: pg}
}

// AppendTracking inserts an entry. Entries are never updated or deleted.
func (s *TrackingStore) AppendTracking(ctx context.Context, entry *model.OrderTracking) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO order_tracking (
			id, order_id, status, action, location_type, city_id, hub_id,
			pickup_point_id, locker_id, actor_id, note, metadata, created_at
		) VALUES (
			:id, :order_id, :status, :action, :location_type, :city_id, :hub_id,
			:pickup_point_id, :locker_id, :actor_id, :note, :metadata, :created_at
		)`

	if _, err := sqlx.NamedExecContext(ctx, s.conn(ctx), query, entry); err != nil {
		return translate(err, "tracking entry of order %d", entry.OrderID)
	}
	return nil
}

func (s *TrackingStore) ListTracking(ctx context.Context, orderID int64) ([]model.OrderTracking, error) {
	entries := []model.OrderTracking{}
	err := sqlx.SelectContext(ctx, s.conn(ctx), &entries, `
		SELECT id, order_id, status, action, location_type, city_id, hub_id,
			pickup_point_id, locker_id, actor_id, note, metadata, created_at
		FROM order_tracking
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC`, orderID)
	if err != nil {
		return nil, translate(err, "tracking of order %d", orderID)
	}
	return entries, nil
}
