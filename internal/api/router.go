// Package api is the HTTP surface of the service.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bharathbbg/parcel-hub/internal/metrics"
	"github.com/bharathbbg/parcel-hub/internal/model"
	"github.com/bharathbbg/parcel-hub/internal/service"
)

// Services bundles what the handlers call into.
type Services struct {
	Geography service.GeographyStore
	Shipping  *service.ShippingService
	Orders    *service.OrderService
	Tracking  *service.TrackingService
	Lockers   *service.LockerService
	Finance   *service.FinanceService
}

type Options struct {
	// KioskKey authenticates locker firmware. Empty disables the hardware endpoints.
	KioskKey string
	// Health reports readiness for /healthz. Nil means always ready.
	Health  func(ctx context.Context) error
	Metrics *metrics.Metrics
}

type Handler struct {
	svc      Services
	validate *validator.Validate
	kioskKey string
	health   func(ctx context.Context) error
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewHandler(svc Services, opts Options, log *zap.Logger) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
		kioskKey: opts.KioskKey,
		health:   opts.Health,
		metrics:  opts.Metrics,
		log:      log.Named("http"),
	}
}

var shippingAdmins = []model.Role{model.RoleAdmin, model.RoleModerator}

func NewRouter(h *Handler, gatherer prometheus.Gatherer) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// public
		r.Get("/wilayas", h.ListWilayas)
		r.Get("/wilayas/{code}", h.GetWilaya)
		r.Get("/wilayas/{code}/cities", h.ListCities)
		r.Get("/cities/{id}", h.GetCity)
		r.Get("/shipping-fees/price/{from}/{to}", h.GetPrice)
		r.Get("/orders/{id}/tracking", h.TrackOrder)

		r.Route("/locker-hardware", func(r chi.Router) {
			r.Use(h.kioskAuth)
			r.Post("/open-deposit", h.OpenDeposit)
			r.Post("/close-deposit", h.CloseDeposit)
			r.Post("/open-withdraw", h.OpenWithdraw)
			r.Post("/close-withdraw", h.CloseWithdraw)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Get("/shipping-fees", h.ListRoutes)
			r.Get("/shipping-fees/{id}", h.GetRoute)
			r.Get("/shipping-fees/{id}/zones", h.ListZones)
			r.Get("/shipping-fees/route/{from}/{to}", h.FindRoute)
			r.Get("/shipping-fees/zones/{zoneID}", h.GetZone)
			r.Group(func(r chi.Router) {
				r.Use(requireRoles(shippingAdmins...))
				r.Post("/shipping-fees", h.CreateRoute)
				r.Patch("/shipping-fees/{id}", h.UpdateRoute)
				r.Delete("/shipping-fees/{id}/zones", h.ClearZones)
				r.Post("/shipping-fees/zones", h.CreateZone)
				r.Patch("/shipping-fees/zones/{zoneID}", h.UpdateZone)
				r.Delete("/shipping-fees/zones/{zoneID}", h.DeleteZone)
				r.Post("/shipping-fees/route/{from}/{to}/generate-zones", h.GenerateZones)
				r.Post("/shipping-fees/bulk/all", h.SetAllPrices)
				r.Post("/shipping-fees/bulk/wilaya/{from}", h.SetWilayaPrices)
				r.Post("/shipping-fees/bulk/initialize", h.InitializePrices)
			})

			r.Post("/orders", h.CreateOrder)
			r.Get("/orders", h.ListOrders)
			r.Post("/orders/bulk-update", h.BulkUpdateOrders)
			r.Get("/orders/{id}", h.GetOrder)
			r.Get("/orders/{id}/history", h.OrderHistory)
			r.Patch("/orders/{id}/status", h.UpdateOrderStatus)
			r.Patch("/orders/{id}/assign-deliveryman", h.AssignDeliveryman)
			r.Patch("/orders/{id}/assign-cities", h.AssignCities)

			r.Post("/tracking/hub/scan", h.HubScan)
			r.Post("/tracking/hub/bulk-deposit", h.BulkDeposit)
			r.Post("/tracking/events", h.RecordEvent)

			r.Get("/lockers", h.ListLockers)
			r.Get("/lockers/{id}", h.GetLocker)
			r.Post("/lockers", h.CreateLocker)
			r.Patch("/lockers/{id}", h.UpdateLocker)
			r.Post("/lockers/{id}/closets/{number}/assign", h.AssignCloset)
			r.Post("/lockers/{id}/closets/{number}/release", h.ReleaseCloset)
			r.Put("/lockers/{id}/closets/{number}/maintenance", h.StartMaintenance)
			r.Delete("/lockers/{id}/closets/{number}/maintenance", h.EndMaintenance)
			r.With(requireRoles(model.RoleAdmin)).Post("/lockers/cleanup", h.CleanupLockers)

			r.Post("/finance/withdrawal-requests", h.CreateWithdrawal)
			r.Get("/finance/withdrawal-requests", h.ListWithdrawals)
			r.Get("/finance/withdrawal-requests/{id}", h.GetWithdrawal)
			r.Patch("/finance/withdrawal-requests/{id}", h.UpdateWithdrawal)
			r.Delete("/finance/withdrawal-requests/{id}", h.DeleteWithdrawal)
			r.Get("/finance/vendors/{id}/balance", h.VendorBalance)
			r.Post("/finance/settle", h.SettleOrders)
		})
	})

	return r
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
