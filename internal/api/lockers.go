package api

import (
	"net/http"

	"github.com/bharathbbg/parcel-hub/internal/model"
)

func (h *Handler) OpenDeposit(w http.ResponseWriter, r *http.Request) {
	var req model.OpenDepositRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Lockers.OpenDeposit(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CloseDeposit(w http.ResponseWriter, r *http.Request) {
	var req model.CloseDepositRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Lockers.CloseDeposit(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) OpenWithdraw(w http.ResponseWriter, r *http.Request) {
	var req model.OpenWithdrawRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Lockers.OpenWithdraw(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CloseWithdraw(w http.ResponseWriter, r *http.Request) {
	var req model.CloseWithdrawRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.Lockers.CloseWithdraw(r.Context(), &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) ListLockers(w http.ResponseWriter, r *http.Request) {
	lockers, err := h.svc.Lockers.ListLockers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lockers)
}

func (h *Handler) GetLocker(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	locker, err := h.svc.Lockers.GetLocker(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, locker)
}

func (h *Handler) CreateLocker(w http.ResponseWriter, r *http.Request) {
	var req model.CreateLockerRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	locker, err := h.svc.Lockers.CreateLocker(r.Context(), principalFrom(r.Context()), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, locker)
}

func (h *Handler) UpdateLocker(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req model.UpdateLockerRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	locker, err := h.svc.Lockers.UpdateLocker(r.Context(), principalFrom(r.Context()), id, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, locker)
}

// closetPath parses the {id}/{number} pair of the closet routes.
func closetPath(r *http.Request) (int64, int, error) {
	lockerID, err := pathID(r, "id")
	if err != nil {
		return 0, 0, err
	}
	number, err := pathInt(r, "number")
	if err != nil {
		return 0, 0, err
	}
	return lockerID, number, nil
}

func (h *Handler) AssignCloset(w http.ResponseWriter, r *http.Request) {
	lockerID, number, err := closetPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req model.AssignClosetRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	closet, err := h.svc.Lockers.AssignCloset(r.Context(), principalFrom(r.Context()), lockerID, number, req.OrderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, closet)
}

func (h *Handler) ReleaseCloset(w http.ResponseWriter, r *http.Request) {
	lockerID, number, err := closetPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	closet, err := h.svc.Lockers.ReleaseCloset(r.Context(), principalFrom(r.Context()), lockerID, number)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, closet)
}

func (h *Handler) StartMaintenance(w http.ResponseWriter, r *http.Request) {
	h.setMaintenance(w, r, true)
}

func (h *Handler) EndMaintenance(w http.ResponseWriter, r *http.Request) {
	h.setMaintenance(w, r, false)
}

func (h *Handler) setMaintenance(w http.ResponseWriter, r *http.Request, on bool) {
	lockerID, number, err := closetPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	closet, err := h.svc.Lockers.SetMaintenance(r.Context(), principalFrom(r.Context()), lockerID, number, on)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, closet)
}

func (h *Handler) CleanupLockers(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Lockers.CleanupExpired(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
