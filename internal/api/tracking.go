package api

import (
	"net/http"

	"github.com/bharathbbg/parcel-hub/internal/model"
)

func (h *Handler) HubScan(w http.ResponseWriter, r *http.Request) {
	var req model.HubScanRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Tracking.Scan(r.Context(), principalFrom(r.Context()), req.TrackingCode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) BulkDeposit(w http.ResponseWriter, r *http.Request) {
	var req model.BulkDepositRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Tracking.BulkDeposit(r.Context(), principalFrom(r.Context()), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req model.RecordEventRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	entry, err := h.svc.Tracking.RecordEvent(r.Context(), principalFrom(r.Context()), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
