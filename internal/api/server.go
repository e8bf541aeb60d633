package api

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
	"github.com/JakeFAU/campaign-crawler/internal/ingest"
	"github.com/JakeFAU/campaign-crawler/internal/metrics"
	"github.com/JakeFAU/campaign-crawler/internal/policy/window"
)

// Runner executes a crawl mode.
type Runner interface {
	Run(ctx context.Context, mode string) (ingest.RunSummary, error)
}

// Pinger reports downstream readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config controls auth and timeouts for the HTTP surface.
type Config struct {
	AuthRequired   bool
	CronSecret     string
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the orchestrator.
type Server struct {
	router  chi.Router
	runner  Runner
	store   Pinger
	limiter *window.Limiter
	clock   campaign.Clock
	cfg     Config
	logger  *zap.Logger
	started time.Time
}

// NewServer constructs a Server with middleware and routes. store and
// limiter may be nil.
func NewServer(
	runner Runner,
	store Pinger,
	limiter *window.Limiter,
	clock campaign.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 9 * time.Minute
	}
	s := &Server{
		runner:  runner,
		store:   store,
		limiter: limiter,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.Named("api"),
		started: clock.Now(),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(s.rateLimitMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.cronAuthMiddleware)
		r.Use(timeoutMiddleware(cfg.RequestTimeout))
		r.Get("/crawl", s.crawl)
		r.Post("/crawl", s.crawl)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type healthResponse struct {
	Status        string       `json:"status"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Memory        memoryReport `json:"memory"`
	Timestamp     time.Time    `json:"timestamp"`
}

type memoryReport struct {
	AllocBytes uint64 `json:"alloc_bytes"`
	SysBytes   uint64 `json:"sys_bytes"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	now := s.clock.Now()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(now.Sub(s.started).Seconds()),
		Memory:        memoryReport{AllocBytes: mem.Alloc, SysBytes: mem.Sys},
		Timestamp:     now,
	})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// crawl always answers 200 once the run starts; partial failure is reported
// in the body.
func (s *Server) crawl(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	summary, err := s.runner.Run(r.Context(), mode)
	switch {
	case errors.Is(err, ingest.ErrUnsupportedMode):
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	case err != nil:
		s.logger.Error("crawl run failed", zap.String("mode", mode), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	s.logger.Info("crawl run completed",
		zap.String("mode", summary.Mode),
		zap.Bool("success", summary.Success),
		zap.Int("successful", summary.Summary.Successful),
		zap.Int("failed", summary.Summary.Failed),
		zap.Int("saved", summary.Summary.TotalSaved),
	)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) cronAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.AuthRequired {
			next.ServeHTTP(w, r)
			return
		}
		expected := "Bearer " + s.cfg.CronSecret
		got := r.Header.Get("Authorization")
		if s.cfg.CronSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			s.logger.Warn("unauthorized crawl trigger",
				zap.String("ip", callerID(r)),
				zap.String("user_agent", r.UserAgent()),
			)
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error":   "Unauthorized",
				"message": "crawl trigger requires the cron secret",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := s.limiter.Allow(callerID(r), r.URL.Path, s.clock.Now())
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("X-RateLimit-Reset", d.Reset.UTC().Format(time.RFC3339))
		if !d.Allowed {
			retryAfter := int(math.Ceil(d.RetryAfter.Seconds()))
			h.Set("Retry-After", strconv.Itoa(retryAfter))
			metrics.ObserveThrottled(r.URL.Path)
			s.logger.Warn("rate limit exceeded", zap.String("caller", callerID(r)), zap.String("path", r.URL.Path))
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error": map[string]any{
					"code":       "RATE_LIMIT_EXCEEDED",
					"message":    "too many requests, retry later",
					"retryAfter": retryAfter,
				},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callerID is the first X-Forwarded-For hop, then X-Real-IP, then the peer address.
func callerID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Info("request completed",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"success":false,"error":"request timed out"}`)
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
