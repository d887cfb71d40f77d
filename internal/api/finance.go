package api

import (
	"net/http"

	"github.com/bharathbbg/parcel-hub/internal/model"
)

func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req model.CreateWithdrawalRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	wr, err := h.svc.Finance.CreateWithdrawalRequest(r.Context(), principalFrom(r.Context()), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wr)
}

func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	vendorID, err := queryID(r, "vendor_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
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
	filter := model.WithdrawalFilter{
		VendorID: vendorID,
		Status:   model.WithdrawalStatus(r.URL.Query().Get("status")),
		Limit:    limit,
		Offset:   offset,
	}
	requests, err := h.svc.Finance.ListWithdrawalRequests(r.Context(), principalFrom(r.Context()), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *Handler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	wr, err := h.svc.Finance.GetWithdrawalRequest(r.Context(), principalFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

func (h *Handler) UpdateWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req model.UpdateWithdrawalRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	wr, err := h.svc.Finance.UpdateWithdrawalRequest(r.Context(), principalFrom(r.Context()), id, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

func (h *Handler) DeleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.Finance.DeleteWithdrawalRequest(r.Context(), principalFrom(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) VendorBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	balance, err := h.svc.Finance.VendorBalance(r.Context(), principalFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (h *Handler) SettleOrders(w http.ResponseWriter, r *http.Request) {
	var req model.SettleOrdersRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Finance.SettleOrders(r.Context(), principalFrom(r.Context()), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
