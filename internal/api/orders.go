package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bharathbbg/parcel-hub/internal/model"
)

type orderPage struct {
	Orders []model.Order `json:"orders"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req model.CreateOrderRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.svc.Orders.CreateOrder(r.Context(), principalFrom(r.Context()), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter := model.OrderFilter{
		Status: model.OrderStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	}
	orders, total, err := h.svc.Orders.ListOrders(r.Context(), principalFrom(r.Context()), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	writeJSON(w, http.StatusOK, orderPage{Orders: orders, Total: total, Limit: limit, Offset: offset})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.svc.Orders.GetOrder(r.Context(), principalFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	history, err := h.svc.Orders.History(r.Context(), principalFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// TrackOrder is the public lookup by order code, e.g. ORD-2024-000001.
func (h *Handler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Orders.TrackOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req model.UpdateStatusRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.svc.Orders.UpdateStatus(r.Context(), principalFrom(r.Context()), id, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) AssignDeliveryman(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req model.AssignDeliverymanRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.svc.Orders.AssignDeliveryman(r.Context(), principalFrom(r.Context()), id, req.DeliverymanID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) AssignCities(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req model.AssignCitiesRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.svc.Orders.AssignCities(r.Context(), principalFrom(r.Context()), id, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// BulkUpdateOrders reports per-order failures in the body and still answers 200.
func (h *Handler) BulkUpdateOrders(w http.ResponseWriter, r *http.Request) {
	var req model.BulkUpdateRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Orders.BulkUpdate(r.Context(), principalFrom(r.Context()), &req))
}
