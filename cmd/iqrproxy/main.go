package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/imagespace/iqrproxy/internal/config"
	"github.com/imagespace/iqrproxy/internal/db"
	dbBleve "github.com/imagespace/iqrproxy/internal/db/bleve"
	dbMemory "github.com/imagespace/iqrproxy/internal/db/memory"
	dbRedis "github.com/imagespace/iqrproxy/internal/db/redis"
	logpkg "github.com/imagespace/iqrproxy/internal/logger"
	"github.com/imagespace/iqrproxy/internal/metrics"
	sessionrepo "github.com/imagespace/iqrproxy/internal/repository/session"
	chiTransport "github.com/imagespace/iqrproxy/internal/transport/chi"
	"github.com/imagespace/iqrproxy/internal/transport/iqr"
	"github.com/imagespace/iqrproxy/internal/transport/meili"
	"github.com/imagespace/iqrproxy/internal/transport/solr"
	healthuc "github.com/imagespace/iqrproxy/internal/usecase/health"
	resultsuc "github.com/imagespace/iqrproxy/internal/usecase/results"
	sessionuc "github.com/imagespace/iqrproxy/internal/usecase/session"
	"github.com/imagespace/iqrproxy/internal/version"
)

// seedIDField keys seeded documents. Documents sharing a checksum stay distinct.
const seedIDField = "id"

// documentIndex is what the results use case and the health report need from an index driver.
type documentIndex interface {
	resultsuc.DocumentIndex
	healthuc.Pinger
}

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting iqrproxy API server",
		zap.String("build_date", version.Date),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("iqr_url", cfg.IQR.BaseURL),
		zap.String("index_driver", cfg.Index.Driver),
		zap.String("sessions_driver", cfg.Sessions.Driver),
	)

	// Register upstream metrics explicitly (no init())
	metrics.RegisterUpstreamMetrics(prometheus.DefaultRegisterer)

	iqrClient, err := iqr.New(iqr.Config{
		BaseURL:       cfg.IQR.BaseURL,
		Timeout:       time.Duration(cfg.IQR.TimeoutSec) * time.Second,
		RetryAttempts: cfg.IQR.RetryAttempts,
		RetryDelay:    time.Duration(cfg.IQR.RetryDelayMs) * time.Millisecond,
		RateLimit:     cfg.IQR.RateLimitRPS,
		RateBurst:     cfg.IQR.RateLimitBurst,
	})
	if err != nil {
		logger.Fatal("Failed to create IQR client", zap.Error(err))
	}

	index, closeIndex, err := buildIndex(cfg.Index, logger)
	if err != nil {
		logger.Fatal("Failed to create document index", zap.Error(err))
	}
	defer closeIndex()

	// Create session record store based on driver
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store db.Store
	switch cfg.Sessions.Driver {
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:      cfg.Sessions.Addrs,
			Password:   cfg.Sessions.Password,
			Standalone: cfg.Sessions.Standalone,
		})
	case "memory":
		store = dbMemory.NewStore()
	default:
		logger.Fatal("Unknown sessions driver", zap.String("driver", cfg.Sessions.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create session store", zap.Error(err))
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Sessions.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Session store not ready", zap.Error(err))
	}
	logger.Info("Connected to session store")

	// Create use case services
	resultsSvc := resultsuc.New(iqrClient, index, cfg.Index.ChecksumField).
		WithPagination(cfg.Results.DefaultLimit, cfg.Results.MaxLimit)
	sessionSvc := sessionuc.New(iqrClient, sessionrepo.New(store, cfg.Sessions.KeyPrefix), cfg.Sessions.Folder)
	healthSvc := healthuc.New(
		healthuc.Component{Name: "iqr", Pinger: iqrClient},
		healthuc.Component{Name: "index", Pinger: index},
		healthuc.Component{Name: "sessions", Pinger: store},
	)

	// Create chi server
	server := chiTransport.NewServer(resultsSvc, sessionSvc, healthSvc, cfg.Results.ConfidenceField, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	if len(cfg.HTTP.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.HTTP.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
			MaxAge:         300,
		}))
	}
	r.Use(chiTransport.BearerAuthMiddleware(cfg.APIKeys()))
	if cfg.HTTP.RateLimitRPS > 0 {
		r.Use(chiTransport.NewRateLimiter(ctx, cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst).Middleware())
	}
	r.Use(metrics.Middleware())
	server.RegisterRoutes(r)

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
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildIndex creates the document index driver selected by cfg.Driver.
func buildIndex(cfg config.IndexConfig, logger *zap.Logger) (documentIndex, func(), error) {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second

	switch cfg.Driver {
	case "solr":
		c, err := solr.New(solr.Config{
			URL:        cfg.URL,
			Collection: cfg.Collection,
			MaxRows:    cfg.MaxRows,
			Timeout:    timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("solr: %w", err)
		}
		return c, func() {}, nil
	case "meilisearch":
		c, err := meili.New(meili.Config{
			Host:    cfg.URL,
			APIKey:  cfg.APIKey,
			Index:   cfg.Collection,
			MaxRows: cfg.MaxRows,
			Timeout: timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("meilisearch: %w", err)
		}
		return c, func() {}, nil
	case "bleve":
		idx, err := dbBleve.Open(cfg.Path, cfg.ChecksumField, cfg.MaxRows)
		if err != nil {
			return nil, nil, fmt.Errorf("bleve: %w", err)
		}
		closeFn := func() {
			if err := idx.Close(); err != nil {
				logger.Warn("Failed to close bleve index", zap.Error(err))
			}
		}
		if cfg.SeedFile != "" {
			n, err := seedIndex(idx, cfg.SeedFile, seedIDField)
			if err != nil {
				closeFn()
				return nil, nil, fmt.Errorf("bleve seed: %w", err)
			}
			logger.Info("Seeded bleve index", zap.String("file", cfg.SeedFile), zap.Int("documents", n))
		}
		return idx, closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unknown index driver %q", cfg.Driver)
	}
}

func seedIndex(idx *dbBleve.Index, path, idField string) (int, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	n, err := idx.LoadJSONL(f, idField)
	if err != nil {
		return n, fmt.Errorf("load %s: %w", path, err)
	}
	return n, nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("path", r.URL.Path),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.ErrorResponseCodeInternalError,
						Message: "internal error",
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

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("sid", r.URL.Query().Get("sid")),
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
