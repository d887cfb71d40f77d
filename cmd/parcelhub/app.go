package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bharathbbg/parcel-hub/internal/api"
	"github.com/bharathbbg/parcel-hub/internal/config"
	"github.com/bharathbbg/parcel-hub/internal/geo"
	"github.com/bharathbbg/parcel-hub/internal/logger"
	"github.com/bharathbbg/parcel-hub/internal/metrics"
	"github.com/bharathbbg/parcel-hub/internal/model"
	"github.com/bharathbbg/parcel-hub/internal/notify"
	"github.com/bharathbbg/parcel-hub/internal/repository"
	"github.com/bharathbbg/parcel-hub/internal/repository/memory"
	"github.com/bharathbbg/parcel-hub/internal/service"
)

const (
	storePostgres = "postgres"
	storeMemory   = "memory"
)

type geoSeeder interface {
	Seed(ctx context.Context, wilayas []model.Wilaya) (int, int, error)
}

type stores struct {
	tx       service.Transactor
	geo      service.GeographyStore
	seeder   geoSeeder
	shipping service.ShippingStore
	orders   service.OrderStore
	products service.ProductCatalog
	tracking service.TrackingStore
	lockers  service.LockerStore
	finance  service.FinanceStore
	ping     func(ctx context.Context) error
	pg       *repository.Postgres
}

// app holds the wired process. close releases everything in reverse order.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	stores   stores
	services api.Services
	closers  []func() error
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, errors.Wrap(err, "error building logger")
	}
	return log, nil
}

func openStores(ctx context.Context, kind string, cfg *config.Config, log *zap.Logger) (stores, func() error, error) {
	switch kind {
	case storeMemory:
		m := memory.New()
		wilayas, err := geo.Load()
		if err != nil {
			return stores{}, nil, err
		}
		if _, _, err := m.Seed(ctx, wilayas); err != nil {
			return stores{}, nil, err
		}
		log.Warn("using in-memory store, data is lost on exit")
		return stores{
			tx: m, geo: m, seeder: m, shipping: m, orders: m, products: m,
			tracking: m, lockers: m, finance: m,
			ping: func(context.Context) error { return nil },
		}, func() error { return nil }, nil
	case storePostgres:
		pg, err := repository.NewPostgres(cfg.Database, log)
		if err != nil {
			return stores{}, nil, errors.Wrap(err, "error connecting to postgres")
		}
		geoStore := repository.NewGeographyStore(pg)
		return stores{
			tx:       pg,
			geo:      geoStore,
			seeder:   geoStore,
			shipping: repository.NewShippingStore(pg),
			orders:   repository.NewOrderStore(pg),
			products: repository.NewProductStore(pg),
			tracking: repository.NewTrackingStore(pg),
			lockers:  repository.NewLockerStore(pg),
			finance:  repository.NewFinanceStore(pg),
			ping:     pg.Ping,
			pg:       pg,
		}, pg.Close, nil
	}
	return stores{}, nil, errors.Errorf("unknown store %q, want %s or %s", kind, storePostgres, storeMemory)
}

func feePolicy(cfg config.ShippingConfig) (service.FeePolicy, error) {
	extra, err := decimal.NewFromString(cfg.ExtraKgPrice)
	if err != nil {
		return service.FeePolicy{}, errors.Wrap(err, "invalid SHIPPING_EXTRA_KG_PRICE")
	}
	return service.FeePolicy{
		FreeWeightKg:        cfg.FreeWeightKg,
		ExtraKgPrice:        extra,
		DefaultItemWeightKg: cfg.DefaultItemWeightKg,
	}, nil
}

func routePrices(desktop, home, ret string) (model.RoutePrices, error) {
	var p model.RoutePrices
	var err error
	if p.DesktopPrice, err = decimal.NewFromString(desktop); err != nil {
		return p, errors.Wrapf(err, "invalid desktop price %q", desktop)
	}
	if p.HomePrice, err = decimal.NewFromString(home); err != nil {
		return p, errors.Wrapf(err, "invalid home price %q", home)
	}
	if p.ReturnPrice, err = decimal.NewFromString(ret); err != nil {
		return p, errors.Wrapf(err, "invalid return price %q", ret)
	}
	return p, nil
}

// newApp wires stores, cache, notifier and services. withSideEffects turns on
// Redis and Kafka; one-shot tasks run without them.
func newApp(ctx context.Context, storeKind string, withSideEffects bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	st, closeStores, err := openStores(ctx, storeKind, cfg, log)
	if err != nil {
		return nil, err
	}
	a.stores = st
	a.closers = append(a.closers, closeStores)

	var cache service.Cache
	var notifier service.Notifier = notify.NewLogNotifier(log)
	if withSideEffects {
		if cfg.Redis.Enabled {
			rc, err := repository.NewRedisCache(cfg.Redis)
			if err != nil {
				log.Warn("redis unavailable, running without cache", zap.Error(err))
			} else {
				cache = rc
				a.closers = append(a.closers, rc.Close)
			}
		}
		if len(cfg.Kafka.Brokers) > 0 {
			kn := notify.NewKafkaNotifier(cfg.Kafka, log)
			notifier = kn
			a.closers = append(a.closers, kn.Close)
		}
	}

	policy, err := feePolicy(cfg.Shipping)
	if err != nil {
		a.close()
		return nil, err
	}

	shipping := service.NewShippingService(st.tx, st.geo, st.shipping, cache, policy, a.metrics, log)
	a.services = api.Services{
		Geography: st.geo,
		Shipping:  shipping,
		Orders: service.NewOrderService(st.tx, st.orders, st.products, st.tracking, st.geo, shipping,
			cache, notifier, a.metrics, log),
		Tracking: service.NewTrackingService(st.tx, st.orders, st.tracking, cache, a.metrics, log),
		Lockers: service.NewLockerService(st.tx, st.lockers, st.orders, st.tracking, st.geo, cache, notifier,
			cfg.Locker.PasswordTTL, a.metrics, log),
		Finance: service.NewFinanceService(st.tx, st.finance, st.orders, st.tracking, cache, notifier, a.metrics, log),
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("error closing resource", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
