package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-tendlc/core"
)

const (
	SurfacePrimary  = "primary"
	SurfaceFailover = "failover"

	DefaultBasePath     = "/webhooks/10dlc"
	DefaultMaxBodyBytes = 1 << 20
)

// Acceptor takes a raw webhook delivery and reports the HTTP outcome.
type Acceptor interface {
	Accept(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

type routerConfig struct {
	basePath     string
	maxBodyBytes int64
	logger       core.Logger
	gatherer     prometheus.Gatherer
}

type RouterOption func(*routerConfig)

func WithBasePath(path string) RouterOption {
	return func(cfg *routerConfig) {
		if path = strings.TrimRight(strings.TrimSpace(path), "/"); path != "" {
			cfg.basePath = path
		}
	}
}

func WithMaxBodyBytes(limit int64) RouterOption {
	return func(cfg *routerConfig) {
		if limit > 0 {
			cfg.maxBodyBytes = limit
		}
	}
}

func WithLogger(logger core.Logger) RouterOption {
	return func(cfg *routerConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithMetrics exposes GET /metrics for the given gatherer.
func WithMetrics(gatherer prometheus.Gatherer) RouterOption {
	return func(cfg *routerConfig) {
		cfg.gatherer = gatherer
	}
}

// NewRouter mounts the primary and failover webhook endpoints plus an
// unauthenticated health check.
func NewRouter(acceptor Acceptor, opts ...RouterOption) http.Handler {
	cfg := routerConfig{
		basePath:     DefaultBasePath,
		maxBodyBytes: DefaultMaxBodyBytes,
		logger:       glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route(cfg.basePath, func(r chi.Router) {
		r.Post("/", webhookHandler(acceptor, SurfacePrimary, cfg))
		r.Post("/failover", webhookHandler(acceptor, SurfaceFailover, cfg))
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		})
	})
	if cfg.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func webhookHandler(acceptor Acceptor, surface string, cfg routerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if acceptor == nil {
			writeError(w, inboundInternal("inbound: webhook acceptor is not configured", nil))
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, cfg.maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, inboundError(
					"inbound: request body too large",
					goerrors.CategoryBadInput,
					http.StatusRequestEntityTooLarge,
					core.ServiceErrorBadInput,
					map[string]any{"limit": cfg.maxBodyBytes},
				))
				return
			}
			writeError(w, inboundWrapError(err, goerrors.CategoryBadInput, "inbound: request body unreadable", http.StatusBadRequest, core.ServiceErrorBadInput, nil))
			return
		}

		result, err := acceptor.Accept(req.Context(), core.InboundRequest{
			Surface: surface,
			Headers: flattenHeaders(req.Header),
			Body:    body,
			Metadata: map[string]any{
				"request_id":  middleware.GetReqID(req.Context()),
				"remote_addr": req.RemoteAddr,
			},
		})
		status := statusFor(result, err)
		if err != nil {
			fields := []any{"surface", surface, "status", status, "error", err.Error()}
			if status >= http.StatusInternalServerError {
				cfg.logger.Error("webhook delivery failed", fields...)
			} else {
				cfg.logger.Warn("webhook delivery rejected", fields...)
			}
			writeError(w, withStatus(err, status))
			return
		}
		payload := map[string]any{"status": "accepted"}
		if eventID, ok := result.Metadata["event_id"]; ok {
			payload["event_id"] = eventID
		}
		writeJSON(w, status, payload)
	}
}

// statusFor maps an acceptance outcome to its HTTP status. An explicit status
// on the result wins; otherwise the error category decides.
func statusFor(result core.InboundResult, err error) int {
	if result.StatusCode > 0 {
		return result.StatusCode
	}
	if err == nil {
		return http.StatusAccepted
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryAuth:
			return http.StatusUnauthorized
		case goerrors.CategoryBadInput, goerrors.CategoryValidation:
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func withStatus(err error, status int) *goerrors.Error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code == status {
		return richErr
	}
	category := goerrors.CategoryInternal
	textCode := core.ServiceErrorInternal
	switch status {
	case http.StatusUnauthorized:
		category, textCode = goerrors.CategoryAuth, core.ServiceErrorUnauthorized
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		category, textCode = goerrors.CategoryBadInput, core.ServiceErrorBadInput
	}
	return goerrors.Wrap(err, category, err.Error()).WithCode(status).WithTextCode(textCode)
}

func writeError(w http.ResponseWriter, err error) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, err.Error()).
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.ServiceErrorInternal)
	}
	status := richErr.Code
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	message := richErr.Message
	if status >= http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"text_code": richErr.TextCode,
			"message":   message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}
