// Package admin exposes BACstack's operational HTTP surface: liveness
// and readiness probes, Prometheus metrics, and pprof. It serves no
// BACnet traffic; the data link adapters own that.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/bactalk/bacstack/internal/logger"
	"github.com/bactalk/bacstack/internal/station"
	"github.com/bactalk/bacstack/pkg/config"
)

// Server is the admin HTTP server. Zero value is not usable; build one
// with New.
type Server struct {
	cfg     config.MetricsConfig
	station *station.Station
	httpSrv *http.Server
}

// New builds the admin server for cfg.Metrics, exporting gatherer's
// metric families on /metrics. st may be nil (readiness then only
// reflects process liveness).
func New(cfg config.MetricsConfig, st *station.Station, gatherer prometheus.Gatherer) *Server {
	s := &Server{cfg: cfg, station: st}
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router(gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// router assembles the chi middleware stack and routes.
func (s *Server) router(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	if s.cfg.AuthUsername != "" {
		r.Use(s.basicAuth)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/", s.liveness)
		r.Get("/ready", s.readiness)
	})
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/health", http.StatusTemporaryRedirect)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/debug/pprof", func(r chi.Router) {
		r.Get("/", pprof.Index)
		r.Get("/cmdline", pprof.Cmdline)
		r.Get("/profile", pprof.Profile)
		r.Get("/symbol", pprof.Symbol)
		r.Get("/trace", pprof.Trace)
		r.Get("/{name}", func(w http.ResponseWriter, req *http.Request) {
			pprof.Handler(chi.URLParam(req, "name")).ServeHTTP(w, req)
		})
	})

	return r
}

// basicAuth checks every request against the configured username and
// bcrypt password hash. Comparison of the username is constant-time;
// bcrypt's own comparison covers the password.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		user, pass, ok := req.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.AuthUsername)) != 1 ||
			bcrypt.CompareHashAndPassword([]byte(s.cfg.AuthPasswordHash), []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="bacstack"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, req)
	})
}

type healthResponse struct {
	Status         string `json:"status"`
	DeviceInstance uint32 `json:"device_instance,omitempty"`
	ForeignDevice  string `json:"foreign_device,omitempty"`
}

func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// readiness reports whether the station is serving. A station configured
// as a foreign device is still "ready" while its registration retries —
// the re-registration loop is designed to ride through transient
// failures — but the registration state is surfaced for operators.
func (s *Server) readiness(w http.ResponseWriter, _ *http.Request) {
	if s.station == nil {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	resp := healthResponse{
		Status:         "ok",
		DeviceInstance: s.station.DeviceID().Instance,
	}
	if s.station.ForeignDeviceRegistered() {
		resp.ForeignDevice = "registered"
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Start begins serving in a background goroutine. It returns immediately;
// listen errors after startup are logged, not returned.
func (s *Server) Start() {
	go func() {
		logger.Info("admin server listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server failed", logger.Err(err))
		}
	}()
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// HashPassword bcrypt-hashes a plaintext admin password for storage in
// the auth_password_hash config field.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("admin: hash password: %w", err)
	}
	return string(hash), nil
}

// requestLogger logs each admin request with the internal logger, the
// same shape the rest of the stack logs with.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)
		logger.Debug("admin request",
			logger.Source("admin"),
			logger.ClientIP(req.RemoteAddr),
			logger.DurationMs(float64(time.Since(start).Milliseconds())),
			"method", req.Method,
			"path", req.URL.Path,
			"status", ww.Status(),
		)
	})
}
