package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"terminbuch/internal/availability"
	"terminbuch/internal/booking"
	"terminbuch/internal/config"
	"terminbuch/internal/database"
	"terminbuch/internal/domain"
	"terminbuch/internal/export"

	"github.com/rs/zerolog"
)

// HTTPServer exposes the booking engine over a lightweight HTTP API.
type HTTPServer struct {
	cfg      config.APIConfig
	db       *database.DB
	calc     *availability.Calculator
	manager  *booking.Manager
	exporter *export.LedgerExporter
	server   *http.Server
	auth     *HTTPAuth
	logger   zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, db *database.DB, calc *availability.Calculator,
	manager *booking.Manager, exporter *export.LedgerExporter,
	limiter domain.RateLimiter, logger *zerolog.Logger) *HTTPServer {

	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:      cfg,
		db:       db,
		calc:     calc,
		manager:  manager,
		exporter: exporter,
		logger:   logger.With().Str("component", "api").Logger(),
	}
	srv.auth = NewHTTPAuth(cfg, limiter)

	mux.HandleFunc("GET /api/v1/availability", srv.handleAvailability)
	mux.HandleFunc("POST /api/v1/holds", srv.handleCreateHold)
	mux.HandleFunc("POST /api/v1/holds/{id}/confirm", srv.handleConfirmHold)
	mux.HandleFunc("GET /api/v1/appointments/{id}", srv.handleGetAppointment)
	mux.HandleFunc("GET /api/v1/appointments/{id}/history", srv.handleAppointmentHistory)
	mux.HandleFunc("POST /api/v1/appointments/{id}/approve", srv.handleApprove)
	mux.HandleFunc("POST /api/v1/appointments/{id}/cancel", srv.handleCancel)
	mux.HandleFunc("POST /api/v1/appointments/{id}/no-show", srv.handleNoShow)
	mux.HandleFunc("POST /api/v1/appointments/{id}/complete", srv.handleComplete)
	mux.HandleFunc("POST /api/v1/exports/ledger", srv.handleLedgerExport)

	handler := loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	log.Printf("HTTP API listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the assembled handler chain, for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg     config.APIConfig
	clients []config.APIClientKey
	limiter domain.RateLimiter
}

func NewHTTPAuth(cfg config.APIConfig, limiter domain.RateLimiter) *HTTPAuth {
	return &HTTPAuth{cfg: cfg, clients: cfg.Auth.APIKeys, limiter: limiter}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if err == errPermissionDenied {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, "unauthorized", err.Error())
				return
			}
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

var errPermissionDenied = fmt.Errorf("permission denied")

func (a *HTTPAuth) apiKeyHeader() string {
	h := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if h == "" {
		h = "x-api-key"
	}
	return h
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKey := strings.TrimSpace(r.Header.Get(a.apiKeyHeader()))
	if apiKey == "" {
		return fmt.Errorf("missing api key header")
	}

	// Compare against every configured key so response timing does not leak
	// which keys exist.
	var client *config.APIClientKey
	for i := range a.clients {
		if subtle.ConstantTimeCompare([]byte(a.clients[i].Key), []byte(apiKey)) == 1 {
			client = &a.clients[i]
		}
	}
	if client == nil {
		return fmt.Errorf("invalid api key")
	}

	return a.checkPermissions(*client, r)
}

func (a *HTTPAuth) checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermissionHTTP(r)
	if required == "" {
		return nil
	}
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermissionHTTP(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/availability"):
		return "read:availability"
	case strings.HasPrefix(path, "/api/v1/exports"):
		return "read:exports"
	case r.Method == http.MethodGet:
		return "read:appointments"
	default:
		return "write:appointments"
	}
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 || a.limiter == nil {
		return nil
	}

	window := time.Duration(a.cfg.RateLimit.Window) * time.Second
	limit := int(a.cfg.RateLimit.RPS * float64(a.cfg.RateLimit.Window))
	if limit < a.cfg.RateLimit.Burst {
		limit = a.cfg.RateLimit.Burst
	}

	allowed, err := a.limiter.Allow(r.Context(), a.clientKey(r), limit, window)
	if err != nil {
		return fmt.Errorf("rate limit check failed: %w", err)
	}
	if !allowed {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.apiKeyHeader())); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)
		log.Printf("http method=%s path=%s status=%d dur=%s", r.Method, r.URL.Path, recorder.status, dur)
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message, "code": code})
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
