package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the domain collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	ordersCreated     prometheus.Counter
	statusTransitions *prometheus.CounterVec
	priceLookups      *prometheus.CounterVec
	lockerEvents      *prometheus.CounterVec
	closetsReleased   prometheus.Counter
	bulkItems         *prometheus.CounterVec
	withdrawals       *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parcelhub",
			Name:      "orders_created_total",
			Help:      "Orders persisted.",
		}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parcelhub",
			Name:      "order_status_transitions_total",
			Help:      "Accepted order status changes by target status.",
		}, []string{"to"}),
		priceLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parcelhub",
			Name:      "shipping_price_lookups_total",
			Help:      "Shipping price resolutions by delivery type and whether a zone matched.",
		}, []string{"type", "zone"}),
		lockerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parcelhub",
			Name:      "locker_events_total",
			Help:      "Locker protocol steps by step and outcome.",
		}, []string{"step", "outcome"}),
		closetsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parcelhub",
			Name:      "locker_expired_closets_released_total",
			Help:      "Occupied closets released by the expiry sweep.",
		}),
		bulkItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parcelhub",
			Name:      "bulk_items_total",
			Help:      "Items processed by bulk operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parcelhub",
			Name:      "withdrawal_requests_total",
			Help:      "Withdrawal request lifecycle events.",
		}, []string{"event"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parcelhub",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "parcelhub",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	reg.MustRegister(
		m.ordersCreated, m.statusTransitions, m.priceLookups, m.lockerEvents,
		m.closetsReleased, m.bulkItems, m.withdrawals, m.httpRequests, m.httpDuration,
	)
	return m
}

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *Metrics) StatusTransition(to string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) PriceLookup(deliveryType string, zoneMatched bool) {
	if m == nil {
		return
	}
	m.priceLookups.WithLabelValues(deliveryType, strconv.FormatBool(zoneMatched)).Inc()
}

func (m *Metrics) LockerEvent(step string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.lockerEvents.WithLabelValues(step, outcome).Inc()
}

func (m *Metrics) ClosetsReleased(n int) {
	if m == nil {
		return
	}
	m.closetsReleased.Add(float64(n))
}

func (m *Metrics) BulkItem(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.bulkItems.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) Withdrawal(event string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveHTTP(route, method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if code == 0 {
		code = http.StatusOK
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
