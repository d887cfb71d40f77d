package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bharathbbg/parcel-hub/internal/model"
)

type initializePricesRequest struct {
	Defaults model.RoutePrices `json:"defaults"`
	Local    model.RoutePrices `json:"local"`
}

func (h *Handler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	var req model.CreateShippingFeeRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	fee, err := h.svc.Shipping.CreateRoute(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fee)
}

func (h *Handler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.RouteFilter{
		FromWilayaCode: q.Get("from"),
		ToWilayaCode:   q.Get("to"),
		ActiveOnly:     q.Get("active") == "true",
	}
	fees, err := h.svc.Shipping.ListRoutes(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fees)
}

func (h *Handler) GetRoute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	fee, err := h.svc.Shipping.GetRoute(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fee)
}

func (h *Handler) FindRoute(w http.ResponseWriter, r *http.Request) {
	fee, err := h.svc.Shipping.FindRoute(r.Context(), chi.URLParam(r, "from"), chi.URLParam(r, "to"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fee)
}

// GetPrice answers ?type=desktop|home|return&cityId=N for a route.
func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	cityID, err := queryID(r, "cityId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	t := model.DeliveryType(r.URL.Query().Get("type"))
	quote, err := h.svc.Shipping.GetPrice(r.Context(), chi.URLParam(r, "from"), chi.URLParam(r, "to"), t, cityID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (h *Handler) UpdateRoute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req model.UpdateShippingFeeRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	fee, err := h.svc.Shipping.UpdateRoute(r.Context(), id, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fee)
}

func (h *Handler) ListZones(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	zones, err := h.svc.Shipping.ListZones(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, zones)
}

func (h *Handler) ClearZones(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	n, err := h.svc.Shipping.ClearZones(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (h *Handler) GetZone(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "zoneID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	zone, err := h.svc.Shipping.GetZone(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

func (h *Handler) CreateZone(w http.ResponseWriter, r *http.Request) {
	var req model.CreateZoneRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	zone, err := h.svc.Shipping.CreateZone(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, zone)
}

func (h *Handler) UpdateZone(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "zoneID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req model.UpdateZoneRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	zone, err := h.svc.Shipping.UpdateZone(r.Context(), id, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

func (h *Handler) DeleteZone(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "zoneID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.Shipping.DeleteZone(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GenerateZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.svc.Shipping.GenerateRandomZones(r.Context(), chi.URLParam(r, "from"), chi.URLParam(r, "to"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, zones)
}

func (h *Handler) SetAllPrices(w http.ResponseWriter, r *http.Request) {
	var req model.SetPricesRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Shipping.SetAllPrices(r.Context(), req.RoutePrices)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) SetWilayaPrices(w http.ResponseWriter, r *http.Request) {
	var req model.SetPricesRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Shipping.SetWilayaPrices(r.Context(), chi.URLParam(r, "from"), req.RoutePrices)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) InitializePrices(w http.ResponseWriter, r *http.Request) {
	var req initializePricesRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Shipping.InitializeAll(r.Context(), req.Defaults, req.Local)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
