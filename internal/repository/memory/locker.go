package memory

import (
	"context"
	"sort"
	"time"

	"github.com/bharathbbg/parcel-hub/internal/apperr"
	"github.com/bharathbbg/parcel-hub/internal/model"
)

func (s *state) closetsOf(lockerID int64) []model.Closet {
	out := []model.Closet{}
	for k, c := range s.closets {
		if k.lockerID == lockerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (m *Store) CreateLocker(ctx context.Context, locker *model.Locker) error {
	defer m.write(ctx)()
	now := m.now()
	locker.ID = m.s.id()
	locker.CreatedAt, locker.UpdatedAt = now, now
	stored := *locker
	stored.Closets = nil
	m.s.lockers[locker.ID] = stored
	return nil
}

func (m *Store) GetLocker(_ context.Context, id int64) (*model.Locker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.s.lockers[id]
	if !ok {
		return nil, apperr.NotFound("locker %d not found", id)
	}
	l.Closets = m.s.closetsOf(id)
	return &l, nil
}

func (m *Store) ListLockers(context.Context) ([]model.Locker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Locker{}
	for _, l := range m.s.lockers {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) UpdateLocker(ctx context.Context, locker *model.Locker) error {
	defer m.write(ctx)()
	l, ok := m.s.lockers[locker.ID]
	if !ok {
		return apperr.NotFound("locker %d not found", locker.ID)
	}
	locker.CreatedAt = l.CreatedAt
	locker.UpdatedAt = m.now()
	stored := *locker
	stored.Closets = nil
	m.s.lockers[locker.ID] = stored
	return nil
}

func (m *Store) AddClosets(ctx context.Context, lockerID int64, from, to int) error {
	defer m.write(ctx)()
	for n := from; n <= to; n++ {
		k := closetKey{lockerID, n}
		if _, ok := m.s.closets[k]; ok {
			return apperr.Conflict("closet %d of locker %d already exists", n, lockerID)
		}
		m.s.closets[k] = model.Closet{LockerID: lockerID, Number: n, Status: model.ClosetAvailable, UpdatedAt: m.now()}
	}
	return nil
}

func (m *Store) RemoveClosetsAbove(ctx context.Context, lockerID int64, capacity int) (int64, error) {
	defer m.write(ctx)()
	var n int64
	for k, c := range m.s.closets {
		if k.lockerID == lockerID && k.number > capacity && c.Status == model.ClosetAvailable {
			delete(m.s.closets, k)
			n++
		}
	}
	return n, nil
}

func (m *Store) GetCloset(_ context.Context, lockerID int64, number int) (*model.Closet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.s.closets[closetKey{lockerID, number}]
	if !ok {
		return nil, apperr.NotFound("closet %d of locker %d not found", number, lockerID)
	}
	return &c, nil
}

func (m *Store) ReserveAvailableCloset(ctx context.Context, lockerID int64) (int, bool, error) {
	defer m.write(ctx)()
	for _, c := range m.s.closetsOf(lockerID) {
		if c.Status == model.ClosetAvailable {
			c.Status = model.ClosetReserved
			c.UpdatedAt = m.now()
			m.s.closets[closetKey{lockerID, c.Number}] = c
			return c.Number, true, nil
		}
	}
	return 0, false, nil
}

func (m *Store) TransitionCloset(ctx context.Context, t model.ClosetTransition) (bool, error) {
	defer m.write(ctx)()
	k := closetKey{t.LockerID, t.Number}
	c, ok := m.s.closets[k]
	if !ok {
		return false, nil
	}
	matched := false
	for _, st := range t.From {
		if c.Status == st {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	if t.ExpiredBefore != nil && (c.PasswordExpiresAt == nil || !c.PasswordExpiresAt.Before(*t.ExpiredBefore)) {
		return false, nil
	}
	c.Status = t.To
	c.CurrentOrderID = t.CurrentOrderID
	c.PasswordHash = t.PasswordHash
	c.PasswordExpiresAt = t.PasswordExpiresAt
	c.DepositedAt = t.DepositedAt
	c.UpdatedAt = m.now()
	m.s.closets[k] = c
	return true, nil
}

func (m *Store) ListClosetsByStatus(_ context.Context, lockerID int64, status model.ClosetStatus) ([]model.Closet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Closet{}
	for _, c := range m.s.closetsOf(lockerID) {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Store) ListExpiredClosets(_ context.Context, now time.Time) ([]model.Closet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Closet{}
	for _, c := range m.s.closets {
		if c.Status == model.ClosetOccupied && c.PasswordExpiresAt != nil && c.PasswordExpiresAt.Before(now) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LockerID != out[j].LockerID {
			return out[i].LockerID < out[j].LockerID
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}
