// Package api serves signals over HTTP and websocket.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/models"
	"ict-signals/internal/performance"
	"ict-signals/internal/resilience"
	"ict-signals/internal/signal"
	"ict-signals/internal/store"
	"ict-signals/internal/stream"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DefaultServerConfig listens on localhost only.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           "127.0.0.1:8080",
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		RequestTimeout: 20 * time.Second,
	}
}

// Generator produces the current signal on demand.
type Generator interface {
	Generate(ctx context.Context) models.TradeSignal
}

// Deps are the collaborators behind the routes. Only Generator is required.
type Deps struct {
	Generator Generator
	Store     store.SignalStore
	Queue     *signal.Queue
	Hub       *stream.Hub
	Metrics   *performance.Metrics
	Health    *resilience.HealthMonitor
	Logger    zerolog.Logger
}

// Server is the signal HTTP server.
type Server struct {
	router *mux.Router
	server *http.Server
	config ServerConfig
	deps   Deps
	logger zerolog.Logger
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

// NewServer builds the router.
func NewServer(config ServerConfig, deps Deps) *Server {
	if config.Addr == "" {
		config.Addr = DefaultServerConfig().Addr
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultServerConfig().RequestTimeout
	}
	if deps.Metrics == nil {
		deps.Metrics = performance.NewMetrics(deps.Logger)
	}

	s := &Server{
		router: mux.NewRouter(),
		config: config,
		deps:   deps,
		logger: deps.Logger.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Metrics.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(s.authMiddleware)
	v1.HandleFunc("/signal", s.handleSignal).Methods(http.MethodGet)
	v1.HandleFunc("/signals", s.handleSignals).Methods(http.MethodGet)
	v1.HandleFunc("/signals/{id}", s.handleSignalByID).Methods(http.MethodGet)
	v1.HandleFunc("/queue", s.handleQueue).Methods(http.MethodGet)
	v1.HandleFunc("/queue", s.handleQueueDrain).Methods(http.MethodDelete)
	v1.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.Addr).Bool("auth", s.config.JWTSecret != "").Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving %s: %w", s.config.Addr, err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		duration := time.Since(start)

		route := r.URL.Path
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.deps.Metrics.RecordHTTP(route, wrapper.statusCode, duration)

		requestID, _ := r.Context().Value(requestIDKey).(string)
		s.logger.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("route", route).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": string(resilience.HealthStatusHealthy)})
		return
	}
	h := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if h.Status == resilience.HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	sig := s.deps.Generator.Generate(ctx)
	s.deps.Metrics.RecordSignal(sig)
	writeJSON(w, http.StatusOK, sig)
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "signal history is not configured")
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	signals, err := s.deps.Store.GetSignals(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("listing signals")
		writeError(w, http.StatusInternalServerError, "failed to load signals")
		return
	}
	if signals == nil {
		signals = []models.TradeSignal{}
	}
	writeJSON(w, http.StatusOK, SignalsResponse{Signals: signals, Count: len(signals)})
}

func (s *Server) handleSignalByID(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "signal history is not configured")
		return
	}

	sig, err := s.deps.Store.GetSignal(r.Context(), mux.Vars(r)["id"])
	switch {
	case apperrors.Is(err, apperrors.ErrDataNotFound):
		writeError(w, http.StatusNotFound, "signal not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to load signal")
	default:
		writeJSON(w, http.StatusOK, sig)
	}
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		writeJSON(w, http.StatusOK, SignalsResponse{Signals: []models.TradeSignal{}})
		return
	}
	limit, err := parseLimit(r, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	queued := s.deps.Queue.Peek(limit)
	writeJSON(w, http.StatusOK, SignalsResponse{Signals: queued, Count: len(queued)})
}

func (s *Server) handleQueueDrain(w http.ResponseWriter, r *http.Request) {
	drained := []models.TradeSignal{}
	if s.deps.Queue != nil {
		drained = append(drained, s.deps.Queue.Drain()...)
		s.deps.Metrics.QueueDepth.Set(0)
	}
	writeJSON(w, http.StatusOK, SignalsResponse{Signals: drained, Count: len(drained)})
}

// SignalsResponse wraps signal lists.
type SignalsResponse struct {
	Signals []models.TradeSignal `json:"signals"`
	Count   int                  `json:"count"`
}

const maxLimit = 500

func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return min(n, maxLimit), nil
}

func parseFilter(r *http.Request) (store.SignalFilter, error) {
	q := r.URL.Query()
	limit, err := parseLimit(r, 50)
	if err != nil {
		return store.SignalFilter{}, err
	}

	filter := store.SignalFilter{
		Symbol:      q.Get("symbol"),
		Direction:   models.Direction(q.Get("direction")),
		DataQuality: models.DataQuality(q.Get("data_quality")),
		Limit:       limit,
	}
	if raw := q.Get("quality"); raw != "" {
		quality, ok := models.ParseSignalQuality(raw)
		if !ok {
			return store.SignalFilter{}, fmt.Errorf("invalid quality %q", raw)
		}
		filter.Quality = quality
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return store.SignalFilter{}, fmt.Errorf("invalid since %q: want RFC3339", raw)
		}
		filter.Since = since
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// responseWrapper captures the status code and keeps hijacking available
// for websocket upgrades.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}
