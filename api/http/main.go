package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rexbrahh/ix-decoder/api/http/cache"
	apitypes "github.com/rexbrahh/ix-decoder/api/http/types"
	"github.com/rexbrahh/ix-decoder/decoder/common"
	"github.com/rexbrahh/ix-decoder/decoder/normalize"
	"github.com/rexbrahh/ix-decoder/decoder/registry"
	"github.com/rexbrahh/ix-decoder/observability"
)

const (
	defaultListenURL = "127.0.0.1:3000"
	batchWorkers     = 8
	maxBodyBytes     = 1 << 20
)

// Server bundles dependencies for the HTTP API.
type Server struct {
	router   *chi.Mux
	registry *registry.Registry
	cache    *cache.Cache
	logger   *zap.Logger
	metrics  *observability.DecodeMetrics
	started  time.Time
}

// Option customises a Server.
type Option func(*Server)

// WithMetrics registers decode metrics on reg and serves gatherer on /metrics.
func WithMetrics(reg prometheus.Registerer, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = observability.NewDecodeMetrics(reg)
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

// NewServer constructs a Server with registered routes.
func NewServer(reg *registry.Registry, cacheClient *cache.Cache, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = registry.NewDefault()
	}

	s := &Server{
		router:   chi.NewRouter(),
		registry: reg,
		cache:    cacheClient,
		logger:   logger,
		started:  time.Now(),
	}

	s.router.Get("/healthz", s.healthzHandler)
	s.router.Post("/decode", s.decodeHandler)
	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/decode", s.decodeHandler)
		r.Post("/decode/batch", s.batchDecodeHandler)
		r.Get("/programs", s.programsHandler)
	})

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Handler exposes the underlying router for integration tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	resp := apitypes.HealthResponse{
		Status:   "ok",
		Uptime:   time.Since(s.started).Round(time.Millisecond).String(),
		Programs: s.programNames(),
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) programsHandler(w http.ResponseWriter, r *http.Request) {
	programs := s.registry.Programs()
	resp := apitypes.ProgramsResponse{Programs: make([]apitypes.ProgramInfo, 0, len(programs))}
	for _, p := range programs {
		resp.Programs = append(resp.Programs, apitypes.ProgramInfo{Name: p.String(), ID: p.ID().String()})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) decodeHandler(w http.ResponseWriter, r *http.Request) {
	var req apitypes.DecodeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apitypes.ErrorResponse{Msg: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	decoded, err := s.decode(r.Context(), req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apitypes.ErrorResponse{Msg: decodeFailure(err)})
		return
	}

	writeJSON(w, http.StatusOK, decoded)
}

func (s *Server) batchDecodeHandler(w http.ResponseWriter, r *http.Request) {
	var req apitypes.BatchDecodeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apitypes.ErrorResponse{Msg: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if err := apitypes.ValidateBatch(req); err != nil {
		writeJSON(w, http.StatusBadRequest, apitypes.ErrorResponse{Msg: err.Error()})
		return
	}

	results := make([]apitypes.BatchDecodeResult, len(req.Instructions))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(batchWorkers)
	for i, raw := range req.Instructions {
		g.Go(func() error {
			decoded, err := s.decode(ctx, raw)
			if err != nil {
				results[i] = apitypes.BatchDecodeResult{Error: decodeFailure(err)}
				return nil
			}
			results[i] = apitypes.BatchDecodeResult{Decoded: decoded}
			return nil
		})
	}
	_ = g.Wait()

	writeJSON(w, http.StatusOK, apitypes.BatchDecodeResponse{Results: results})
}

// decode runs normalize, resolve and render, consulting the cache when one
// is configured.
func (s *Server) decode(ctx context.Context, raw apitypes.DecodeRequest) (*common.DecodedInstruction, error) {
	ix, err := normalize.Normalize(raw)
	if err != nil {
		s.metrics.ObserveError("", err)
		return nil, err
	}

	d, err := s.registry.Resolve(ix)
	if err != nil {
		s.metrics.ObserveError("", err)
		return nil, err
	}
	program := d.Program().String()
	key := cache.Key(program, ix)

	if s.cache.Enabled() {
		cached, err := s.cache.GetDecoded(ctx, key)
		switch {
		case err == nil:
			s.metrics.ObserveCacheHit()
			return cached, nil
		case errors.Is(err, apitypes.ErrNotFound), errors.Is(err, cache.ErrDisabled):
		default:
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
	}

	start := time.Now()
	decoded, err := d.Decode()
	if err != nil {
		s.metrics.ObserveError(program, err)
		return nil, err
	}
	s.metrics.ObserveDecoded(program, decoded.Name, time.Since(start).Seconds())

	if s.cache.Enabled() {
		go func() {
			if err := s.cache.SetDecoded(context.Background(), key, decoded); err != nil && !errors.Is(err, cache.ErrDisabled) {
				s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
			}
		}()
	}

	return decoded, nil
}

func (s *Server) programNames() []string {
	programs := s.registry.Programs()
	names := make([]string, 0, len(programs))
	for _, p := range programs {
		names = append(names, p.String())
	}
	return names
}

func decodeFailure(err error) string {
	return fmt.Sprintf("failed to decode instruction: %v", err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// listenAddr resolves the address for `start`: the flag wins, then
// API_HTTP_ADDR, then the default.
func listenAddr(args []string) (string, error) {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	listenURL := fs.String("listen-url", "", "address to listen on")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if *listenURL != "" {
		return *listenURL, nil
	}
	if addr := os.Getenv("API_HTTP_ADDR"); addr != "" {
		return addr, nil
	}
	return defaultListenURL, nil
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if len(os.Args) < 2 || os.Args[1] != "start" {
		fmt.Fprintln(os.Stderr, "usage: api start [--listen-url host:port]")
		os.Exit(2)
	}
	addr, err := listenAddr(os.Args[2:])
	if err != nil {
		logger.Fatal("parse flags", zap.Error(err))
	}

	regCfg, err := registry.FromEnv()
	if err != nil {
		logger.Fatal("load decoder config", zap.Error(err))
	}
	reg, err := regCfg.Build()
	if err != nil {
		logger.Fatal("build decoder registry", zap.Error(err))
	}

	cacheCfg, err := cache.LoadConfigFromEnv()
	if err != nil {
		logger.Fatal("load redis config", zap.Error(err))
	}
	cacheClient, err := cache.New(cacheCfg)
	if err != nil {
		logger.Fatal("init redis cache", zap.Error(err))
	}
	defer func() { _ = cacheClient.Close() }()
	if !cacheCfg.Enabled {
		logger.Info("redis cache disabled: API_REDIS_ADDR not set")
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	server := NewServer(reg, cacheClient, logger, WithMetrics(promRegistry, promRegistry))

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", addr), zap.Strings("programs", server.programNames()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
