package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListWilayas(w http.ResponseWriter, r *http.Request) {
	wilayas, err := h.svc.Geography.ListWilayas(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wilayas)
}

func (h *Handler) GetWilaya(w http.ResponseWriter, r *http.Request) {
	wilaya, err := h.svc.Geography.GetWilaya(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wilaya)
}

func (h *Handler) ListCities(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if _, err := h.svc.Geography.GetWilaya(r.Context(), code); err != nil {
		h.writeError(w, r, err)
		return
	}
	cities, err := h.svc.Geography.ListCitiesByWilaya(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cities)
}

func (h *Handler) GetCity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	city, err := h.svc.Geography.GetCity(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, city)
}
