// Package admin serves a REST API for inspecting and operating pools.
package admin

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/internal/container"
	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/logger"
	"github.com/ajitpratap0/connpool/pkg/poolerrors"
)

const redacted = "********"

// Handler serves the admin API of a container.
type Handler struct {
	c      *container.Container
	logger *zap.Logger
}

// NewHandler creates the admin API handler.
func NewHandler(c *container.Container) *Handler {
	return &Handler{c: c, logger: logger.With(zap.String("component", "admin_api"))}
}

// Router returns a router with the admin routes mounted.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogging)
	r.Use(middleware.Recoverer)
	h.RegisterRoutes(r)
	return r
}

// requestLogging carries the chi request ID into the logging context.
func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(logger.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RegisterRoutes mounts the admin routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Route("/pools", func(r chi.Router) {
		r.Get("/", h.ListPools)
		r.Route("/{pool}", func(r chi.Router) {
			r.Get("/", h.GetPool)
			r.Delete("/", h.DeletePool)
			r.Post("/ping", h.PingPool)
			r.Post("/flush", h.FlushPool)
			r.Post("/reconfigure", h.ReconfigurePool)
		})
	})
}

// PoolSummary describes one pool.
type PoolSummary struct {
	Pool           core.PoolIdentity     `json:"pool"`
	Classification core.Classification   `json:"classification,omitempty"`
	Stats          *core.PoolStats       `json:"stats,omitempty"`
	Health         *container.PoolHealth `json:"health,omitempty"`
	Descriptor     *core.PoolDescriptor  `json:"descriptor,omitempty"`
}

// ReconfigureRequest carries the proposed pool configuration. The pool name
// is taken from the path; omitted fields take the configuration defaults.
type ReconfigureRequest struct {
	Pool     config.PoolConfig `json:"pool"`
	Excluded []string          `json:"excluded,omitempty"`
	// NoRecreate reports the decision without recreating the pool
	NoRecreate bool `json:"no_recreate,omitempty"`
}

// ReconfigureResponse reports what reconfiguration did.
type ReconfigureResponse struct {
	Action    string `json:"action"`
	Recreated bool   `json:"recreated"`
}

// ErrorResponse is the body of failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	resp := struct {
		Status    string   `json:"status"`
		Pools     int      `json:"pools"`
		Unhealthy []string `json:"unhealthy,omitempty"`
	}{Status: "ok", Pools: h.c.Registry.Len()}

	for _, s := range h.c.Health.Statuses() {
		if s.Status == container.StatusUnhealthy {
			resp.Unhealthy = append(resp.Unhealthy, s.Pool.String())
		}
	}
	status := http.StatusOK
	if len(resp.Unhealthy) > 0 {
		sort.Strings(resp.Unhealthy)
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *Handler) ListPools(w http.ResponseWriter, r *http.Request) {
	ids := h.c.Lifecycle.Pools()
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	out := make([]PoolSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, h.summary(r.Context(), id))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	id := poolID(r)
	desc, err := h.c.Lifecycle.Descriptor(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s := h.summary(r.Context(), id)
	s.Descriptor = redact(desc)
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) DeletePool(w http.ResponseWriter, r *http.Request) {
	cascade := r.URL.Query().Get("cascade") != "false"
	if err := h.c.Lifecycle.Delete(r.Context(), poolID(r), cascade); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PingPool(w http.ResponseWriter, r *http.Request) {
	id := poolID(r)
	if err := h.c.Unpooled.TestPool(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) FlushPool(w http.ResponseWriter, r *http.Request) {
	flushed, err := h.c.Lifecycle.Flush(r.Context(), poolID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !flushed {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "pool not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"flushed": true})
}

// maxRequestBody bounds reconfigure request bodies.
const maxRequestBody = 1 << 20

func (h *Handler) ReconfigurePool(w http.ResponseWriter, r *http.Request) {
	req := ReconfigureRequest{Pool: *config.NewPoolConfig("", "")}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	id := poolID(r)
	req.Pool.Name, req.Pool.Application, req.Pool.Module = id.Name, id.Application, id.Module
	proposed, err := req.Pool.Descriptor()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Type: string(poolerrors.ErrorTypeInvalidRequest)})
		return
	}

	action, err := h.c.Lifecycle.Reconfigure(r.Context(), proposed, req.Excluded)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := ReconfigureResponse{Action: action.String()}
	if action == core.Recreate && !req.NoRecreate {
		if err := h.c.Lifecycle.Recreate(r.Context(), proposed, nil); err != nil {
			h.writeError(w, r, err)
			return
		}
		resp.Recreated = true
	}
	logger.WithContext(r.Context(), h.logger).Info("pool reconfigured",
		zap.Stringer("pool", id),
		zap.String("action", resp.Action),
		zap.Bool("recreated", resp.Recreated))
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) summary(ctx context.Context, id core.PoolIdentity) PoolSummary {
	s := PoolSummary{Pool: id}
	if class, err := h.c.Lifecycle.Classification(ctx, id); err == nil {
		s.Classification = class
	}
	if stats, ok := h.c.Lifecycle.Stats(id); ok {
		s.Stats = &stats
	}
	if health, ok := h.c.Health.Status(id); ok {
		s.Health = &health
	}
	return s
}

// poolID builds the identity from the path and the application and module
// query parameters.
func poolID(r *http.Request) core.PoolIdentity {
	q := r.URL.Query()
	return core.PoolIdentity{
		Name:        chi.URLParam(r, "pool"),
		Application: q.Get("application"),
		Module:      q.Get("module"),
	}
}

func redact(desc *core.PoolDescriptor) *core.PoolDescriptor {
	out := desc.Clone()
	for i := range out.Properties {
		if strings.Contains(strings.ToLower(out.Properties[i].Name), "password") {
			out.Properties[i].Value = redacted
		}
	}
	for i := range out.SecurityMaps {
		if out.SecurityMaps[i].BackendPrincipal.Password != "" {
			out.SecurityMaps[i].BackendPrincipal.Password = redacted
		}
	}
	return out
}

func statusFor(err error) int {
	typ, _ := poolerrors.TypeOf(err)
	switch {
	case poolerrors.IsNotBound(err):
		return http.StatusNotFound
	case typ == poolerrors.ErrorTypeInvalidRequest, typ == poolerrors.ErrorTypeTransactionSupportMismatch:
		return http.StatusBadRequest
	case typ == poolerrors.ErrorTypeTestConnectionFailed:
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.WithContext(r.Context(), h.logger).Error("admin request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	typ, _ := poolerrors.TypeOf(err)
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Type: string(typ)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
