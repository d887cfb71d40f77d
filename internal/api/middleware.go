package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bharathbbg/parcel-hub/internal/model"
)

const (
	headerUserID    = "X-User-Id"
	headerUserRole  = "X-User-Role"
	headerLockerKey = "X-Locker-Key"
)

type principalKey struct{}

func principalFrom(ctx context.Context) model.Principal {
	p, _ := ctx.Value(principalKey{}).(model.Principal)
	return p
}

// requestLogger logs one line per request with the matched route pattern.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		route := routePattern(r)
		h.metrics.ObserveHTTP(route, r.Method, ww.Status(), elapsed)
		h.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// authenticate trusts the identity headers set by the upstream gateway.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(headerUserID), 10, 64)
		role := model.Role(r.Header.Get(headerUserRole))
		if err != nil || id <= 0 || !role.Valid() {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "missing or invalid identity headers"})
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, model.Principal{UserID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireRoles(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := principalFrom(r.Context())
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Message: "role " + string(p.Role) + " may not perform this operation"})
		})
	}
}

// kioskAuth guards the locker hardware endpoints. An empty key disables them.
func (h *Handler) kioskAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(headerLockerKey)
		if h.kioskKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.kioskKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "invalid locker key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
