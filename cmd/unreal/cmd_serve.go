package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/config"
	"github.com/ajharshal45/UnReal-Extension-sub001/internal/handler"
	"github.com/ajharshal45/UnReal-Extension-sub001/internal/middleware"
	"github.com/ajharshal45/UnReal-Extension-sub001/internal/repository"
	"github.com/ajharshal45/UnReal-Extension-sub001/internal/service"
	"github.com/ajharshal45/UnReal-Extension-sub001/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP analysis API",
	Long: `Starts the HTTP API used by the browser extension.

Configuration comes from environment variables (PORT, CACHE_BACKEND,
OPENAI_API_KEY, LOCAL_MODEL_URL, ...) and the optional PIPELINE_CONFIG
YAML file.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(cfg.LogLevel)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := initTracer(cfg.TraceExporter, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts, feats, err := pipelineOptions(cfg, log, false)
	if err != nil {
		return err
	}
	opts = append(opts, service.WithMetrics(service.NewMetrics(reg)))

	var cache handler.Pinger
	store, err := repository.Open(cfg, log)
	switch {
	case errors.Is(err, repository.ErrNoBackend):
	case err != nil:
		return fmt.Errorf("open cache: %w", err)
	default:
		defer store.Close()
		if err := store.Ping(ctx); err != nil {
			log.Warn("cache unreachable, results will not be shared until it recovers", "backend", cfg.CacheBackend, "error", err)
		}
		opts = append(opts, service.WithCache(store))
		cache = store
	}

	pipeline := service.NewPipeline(cfg.Pipeline, opts...)

	var limiter *middleware.RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimitPerMinute)
		go limiter.Run(ctx)
	}

	h := handler.New(handler.Config{
		Analyzer:         pipeline,
		Cache:            cache,
		Logger:           log,
		MaxUploadSize:    cfg.MaxUploadSize,
		MaxImagePixels:   cfg.MaxImagePixels,
		Version:          version,
		ValidatorEnabled: feats.validator,
		ModelEnabled:     feats.model,
	})
	router := handler.NewRouter(h, handler.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimiter:    limiter,
		Gatherer:       reg,
		ServiceName:    "unreal",
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.Pipeline.ValidatorTimeout + 60*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			"port", cfg.Port,
			"env", cfg.Environment,
			"version", version,
			"cache", cfg.CacheBackend,
			"validator", feats.validator,
			"local_ml", feats.model,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
