// Package memory is an in-process implementation of the store ports, used
// for local runs without Postgres and by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bharathbbg/parcel-hub/internal/apperr"
	"github.com/bharathbbg/parcel-hub/internal/model"
)

type closetKey struct {
	lockerID int64
	number   int
}

type state struct {
	nextID      int64
	wilayas     map[string]model.Wilaya
	cities      map[int64]model.City
	routes      map[int64]model.ShippingFee
	zones       map[int64]model.ShippingZone
	products    map[int64]model.Product
	sequences   map[int]int64
	orders      map[int64]model.Order
	tracking    []model.OrderTracking
	lockers     map[int64]model.Locker
	closets     map[closetKey]model.Closet
	withdrawals map[int64]model.WithdrawalRequest
}

func newState() *state {
	return &state{
		wilayas:     map[string]model.Wilaya{},
		cities:      map[int64]model.City{},
		routes:      map[int64]model.ShippingFee{},
		zones:       map[int64]model.ShippingZone{},
		products:    map[int64]model.Product{},
		sequences:   map[int]int64{},
		orders:      map[int64]model.Order{},
		lockers:     map[int64]model.Locker{},
		closets:     map[closetKey]model.Closet{},
		withdrawals: map[int64]model.WithdrawalRequest{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies the maps. Stored values never share mutable slices with the
// caller, so a shallow copy of each map is a full snapshot.
func (s *state) clone() *state {
	return &state{
		nextID:      s.nextID,
		wilayas:     cloneMap(s.wilayas),
		cities:      cloneMap(s.cities),
		routes:      cloneMap(s.routes),
		zones:       cloneMap(s.zones),
		products:    cloneMap(s.products),
		sequences:   cloneMap(s.sequences),
		orders:      cloneMap(s.orders),
		tracking:    append([]model.OrderTracking(nil), s.tracking...),
		lockers:     cloneMap(s.lockers),
		closets:     cloneMap(s.closets),
		withdrawals: cloneMap(s.withdrawals),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store implements every store port on maps guarded by a mutex.
// Transactions are serialized and a failed transaction restores the snapshot
// taken when it began. Writes outside a transaction wait for the running
// transaction to finish so a rollback cannot discard them.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	s    *state
	now  func() time.Time
}

func New() *Store {
	return &Store{s: newState(), now: time.Now}
}

type txKey struct{}

func (m *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.s.clone()
	m.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.mu.Lock()
		m.s = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// write locks the store for a mutation. Outside a transaction it also holds
// txMu for the duration of the write.
func (m *Store) write(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		m.mu.Lock()
		return m.mu.Unlock
	}
	m.txMu.Lock()
	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		m.txMu.Unlock()
	}
}

// Seed loads reference geography.
func (m *Store) Seed(ctx context.Context, wilayas []model.Wilaya) (int, int, error) {
	defer m.write(ctx)()
	var nc int
	for _, w := range wilayas {
		for _, c := range w.Cities {
			c.WilayaCode = w.Code
			m.s.cities[c.ID] = c
			nc++
		}
		w.Cities = nil
		m.s.wilayas[w.Code] = w
	}
	return len(wilayas), nc, nil
}

func (m *Store) AddProduct(p model.Product) model.Product {
	defer m.write(context.Background())()
	if p.ID == 0 {
		p.ID = m.s.id()
	}
	m.s.products[p.ID] = p
	return p
}

func (m *Store) GetWilaya(_ context.Context, code string) (*model.Wilaya, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.s.wilayas[code]
	if !ok {
		return nil, apperr.NotFound("wilaya %s not found", code)
	}
	return &w, nil
}

func (m *Store) ListWilayas(context.Context) ([]model.Wilaya, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Wilaya, 0, len(m.s.wilayas))
	for _, w := range m.s.wilayas {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Store) GetCity(_ context.Context, id int64) (*model.City, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.s.cities[id]
	if !ok {
		return nil, apperr.NotFound("city %d not found", id)
	}
	return &c, nil
}

func (m *Store) ListCitiesByWilaya(_ context.Context, code string) ([]model.City, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.City{}
	for _, c := range m.s.cities {
		if c.WilayaCode == code {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) FindCities(_ context.Context, ids []int64) ([]model.City, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.City{}
	seen := map[int64]bool{}
	for _, id := range ids {
		if c, ok := m.s.cities[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) GetProduct(_ context.Context, id int64) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.s.products[id]
	if !ok {
		return nil, apperr.NotFound("product %d not found", id)
	}
	return &p, nil
}

func (m *Store) AppendTracking(ctx context.Context, entry *model.OrderTracking) error {
	defer m.write(ctx)()
	if _, ok := m.s.orders[entry.OrderID]; !ok {
		return apperr.NotFound("order %d not found", entry.OrderID)
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	m.s.tracking = append(m.s.tracking, *entry)
	return nil
}

func (m *Store) ListTracking(_ context.Context, orderID int64) ([]model.OrderTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.OrderTracking{}
	for _, e := range m.s.tracking {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
