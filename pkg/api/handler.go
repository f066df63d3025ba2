package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/daniela2708/ganaderia/pkg/dataset"
	"github.com/daniela2708/ganaderia/pkg/kit"
)

var httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ganaderia_http_requests_total",
	Help: "HTTP requests by route pattern, method and status code",
}, []string{"route", "method", "code"})

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Endpoints *Endpoints
	// MCP is mounted at /mcp when non-nil.
	MCP http.Handler
	// RateLimit is the sustained request rate per second; 0 disables limiting.
	RateLimit float64
	Burst     int
}

// NewRouter returns an http.Handler with all dashboard API routes.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	h := &handler{eps: cfg.Endpoints}

	mux.HandleFunc("GET /v1/health", h.serve(h.eps.Health, noQuery))
	mux.HandleFunc("GET /v1/years", h.serve(h.eps.Years, noQuery))
	mux.HandleFunc("GET /v1/departments", h.serve(h.eps.Departments, noQuery))
	mux.HandleFunc("GET /v1/departments/{department}/municipalities", h.serve(h.eps.Municipalities, parseQuery))
	mux.HandleFunc("GET /v1/kpis", h.serve(h.eps.KPIs, parseQuery))
	mux.HandleFunc("GET /v1/ranking/departments", h.serve(h.eps.DepartmentRanking, parseQuery))
	mux.HandleFunc("GET /v1/ranking/municipalities", h.serve(h.eps.MunicipalityRanking, parseQuery))
	mux.HandleFunc("GET /v1/annual", h.serve(h.eps.Annual, parseQuery))
	mux.HandleFunc("GET /v1/breakdown", h.serve(h.eps.Breakdown, parseQuery))
	mux.HandleFunc("GET /v1/overview", h.serve(h.eps.Overview, parseQuery))
	mux.HandleFunc("POST /v1/reload", h.serve(h.eps.Reload, noQuery))
	mux.HandleFunc("GET /v1/reload", methodNotAllowed)
	mux.Handle("GET /metrics", promhttp.Handler())
	if cfg.MCP != nil {
		mux.Handle("/mcp", cfg.MCP)
	}

	var next http.Handler = mux
	if cfg.RateLimit > 0 {
		next = rateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1)), next)
	}
	return cors(requestID(metrics(mux, next)))
}

type handler struct {
	eps *Endpoints
}

// decodeFunc turns an HTTP request into an endpoint request.
type decodeFunc func(r *http.Request) (any, error)

func (h *handler) serve(ep kit.Endpoint, decode decodeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp, err := ep(r.Context(), req)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func noQuery(*http.Request) (any, error) { return nil, nil }

// parseQuery reads year, department, municipality and top from the query
// string; the {department} path value wins over the query parameter.
func parseQuery(r *http.Request) (any, error) {
	v := r.URL.Query()
	q := &Query{
		Department:   strings.TrimSpace(v.Get("department")),
		Municipality: strings.TrimSpace(v.Get("municipality")),
	}
	if d := strings.TrimSpace(r.PathValue("department")); d != "" {
		q.Department = d
	}
	var err error
	if q.Year, err = intParam(v.Get("year"), "year"); err != nil {
		return nil, err
	}
	if q.Top, err = intParam(v.Get("top"), "top"); err != nil {
		return nil, err
	}
	return q, nil
}

func intParam(s, name string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidQuery, name)
	}
	return n, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, dataset.ErrNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// requestID propagates X-Request-ID, generating one when absent, and tags
// the context with the HTTP transport.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" || len(id) > 128 {
			id = kit.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := kit.WithTransport(kit.WithRequestID(r.Context(), id), kit.TransportHTTP)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimit rejects requests beyond the limiter's budget with 429.
func rateLimit(l *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// metrics counts requests per matched route pattern. mux resolves the
// pattern so unknown paths collapse into a single label.
func metrics(mux *http.ServeMux, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		_, pattern := mux.Handler(r)
		if pattern == "" {
			pattern = "unmatched"
		}
		httpRequests.WithLabelValues(pattern, r.Method, strconv.Itoa(rec.code)).Inc()
	})
}

// cors is a simple CORS middleware for browser-based clients.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
