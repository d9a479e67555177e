package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/helmline/simdex/internal/cache"
	cacheRedis "github.com/helmline/simdex/internal/cache/redis"
	"github.com/helmline/simdex/internal/config"
	"github.com/helmline/simdex/internal/domain"
	"github.com/helmline/simdex/internal/embedding"
	logpkg "github.com/helmline/simdex/internal/logger"
	"github.com/helmline/simdex/internal/metrics"
	chiTransport "github.com/helmline/simdex/internal/transport/chi"
	openaiEmb "github.com/helmline/simdex/internal/transport/openai"
	cataloguc "github.com/helmline/simdex/internal/usecase/catalog"
	chunksuc "github.com/helmline/simdex/internal/usecase/chunks"
	"github.com/helmline/simdex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting simdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("model", cfg.Embedding.Model),
		zap.String("index_dir", cfg.Index.Dir),
	)

	// Register embedding and index metrics explicitly (no init())
	metrics.RegisterCoreMetrics()

	ctx := context.Background()

	// Optional embedding cache: the service runs fine without one.
	var store cache.Store
	if len(cfg.Cache.Addrs) > 0 {
		store, err = cacheRedis.NewStore(cacheRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer store.Close()

		timeout := time.Duration(cfg.Cache.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, timeout); err != nil {
			logger.Fatal("Cache not ready", zap.Error(err))
		}
		logger.Info("Connected to embedding cache", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	provider := openaiEmb.NewProvider(&openaiEmb.Config{
		APIKey:  cfg.Embedding.APIKey,
		BaseURL: cfg.Embedding.BaseURL,
		Logger:  logger,
	})

	// Startup probe only: a dead provider is worth a loud warning, but
	// the server still starts and serves the loaded artifact.
	probeCtx, probeCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := provider.HealthCheck(probeCtx); err != nil {
		logger.Warn("Embedding provider health check failed", zap.Error(err))
	}
	probeCancel()

	embedClient := buildEmbedClient(provider, store, logger)

	catalogSvc := cataloguc.New(embedClient, cfg.Index.Dir, cfg.Embedding.Model, logger)
	catalogSvc.LoadArtifact()

	chunkSvc := chunksuc.New(embedClient, cfg.Embedding.Model, logger)

	server := chiTransport.NewServer(catalogSvc, chunkSvc, cfg.Embedding.BatchSize, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedClient assembles the embedder chain: provider -> Cached -> batching Client.
func buildEmbedClient(provider domain.BatchEmbedder, store cache.Store, logger *zap.Logger) *embedding.Client {
	if store != nil {
		provider = embedding.NewCachedProvider(provider, store, metrics.EmbeddingCacheTotal, logger)
	}
	return embedding.NewClient(provider, logger)
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
