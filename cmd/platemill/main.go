package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platemill/platemill/pkg/accounts"
	"github.com/platemill/platemill/pkg/audit"
	"github.com/platemill/platemill/pkg/auth"
	"github.com/platemill/platemill/pkg/authz"
	"github.com/platemill/platemill/pkg/catalog"
	"github.com/platemill/platemill/pkg/config"
	"github.com/platemill/platemill/pkg/httputil"
	"github.com/platemill/platemill/pkg/middleware"
	"github.com/platemill/platemill/pkg/observability"
	"github.com/platemill/platemill/pkg/orgs"
	"github.com/platemill/platemill/pkg/uploads"
)

const serviceVersion = "0.9.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})

	ctx := context.Background()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	logger.Info("database connected")

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Fatal("failed to connect to redis")
		}
		defer redisClient.Close()
		logger.WithField("addr", cfg.Redis.Addr).Info("redis connected")
	}

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize tracing")
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	metrics.StartDBStatsCollector(ctx, db, 15*time.Second)

	auditor := buildAuditLogger(cfg, db, logger)

	// Authorization core.
	dev := authz.NewDevPolicy()
	resolver := orgs.NewResolver(db)
	evaluator := authz.NewEvaluator(resolver, authz.DefaultTable(), dev)

	var gateEval middleware.Evaluator = evaluator
	var invalidator orgs.Invalidator
	if cfg.Authz.CacheEnabled {
		cache := buildDecisionCache(cfg, redisClient)
		cached := authz.NewCachedEvaluator(evaluator, cache, cfg.Authz.CacheTTL.Std())
		gateEval = cached
		invalidator = cached
	}

	gate := middleware.NewGate(gateEval, logger)
	gate.OnDecision(func(r *http.Request, check authz.Check, decision authz.Decision) {
		metrics.ObserveDecision(string(check.Action), string(check.Resource),
			decision.Allowed, decision.Reason)
		if !decision.Allowed {
			if err := audit.RecordDenied(r.Context(), auditor, r, check, decision); err != nil {
				logger.WithError(err).Warn("failed to record denial audit event")
			}
		}
	})

	// Stores and handlers.
	tokens := auth.NewTokenManager(db)
	users := auth.NewUserStore(db, dev)
	orgService := orgs.NewPostgresService(db)
	catalogStore := catalog.NewPostgresStore(db)

	images, err := buildUploadStorage(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize upload storage")
	}

	router := mux.NewRouter()
	orgs.NewHandler(orgService, invalidator, logger).RegisterRoutes(router, gate)
	catalog.NewHandler(catalogStore, images, logger).RegisterRoutes(router, gate)
	accounts.NewHandler(users, tokens, orgService, dev, auditor, logger).RegisterRoutes(router, gate)

	authMW := middleware.NewAuthMiddleware(tokens, users, false)
	chain := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.AccessLog(logger),
		middleware.Recover(logger),
	}
	if cfg.Observability.MetricsEnabled {
		chain = append(chain, observability.HTTPMetricsMiddleware(metrics))
	}
	if cfg.RateLimit.Enabled && redisClient != nil {
		chain = append(chain, middleware.NewRateLimitMiddlewareWithLimits(redisClient,
			&middleware.RateLimitConfig{
				RequestsPerWindow: cfg.RateLimit.AnonymousPerWindow,
				WindowDuration:    cfg.RateLimit.Window.Std(),
			},
			&middleware.RateLimitConfig{
				RequestsPerWindow: cfg.RateLimit.UserPerWindow,
				WindowDuration:    cfg.RateLimit.Window.Std(),
			}).Handler)
	}
	chain = append(chain, httputil.ContentTypeMiddleware, authMW.Handler)

	var handler http.Handler = httputil.Chain(chain...)(router)
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "platemill")
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}

	// Health and metrics stay off the public listener.
	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter,
		observability.NewHealthChecker(db, redisClient, serviceVersion))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthRouter, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthRouter,
	}

	sm := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout.Std())
	sm.Register("health server", func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	if providers != nil {
		sm.Register("otel", func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}
	sm.Register("audit logger", func(context.Context) error {
		return auditor.Close()
	})

	g := new(errgroup.Group)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sm.WaitForShutdown()
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server exited")
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime.Std())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func buildDecisionCache(cfg *config.Config, redisClient *redis.Client) authz.DecisionCache {
	local := authz.NewMemoryDecisionCache(cfg.Authz.CacheSize, cfg.Authz.CacheTTL.Std())
	if redisClient == nil {
		return local
	}
	return authz.NewTieredDecisionCache(local, authz.NewRedisDecisionCache(redisClient, "platemill"))
}

func buildAuditLogger(cfg *config.Config, db *sql.DB, logger *logrus.Logger) audit.Logger {
	var loggers []audit.Logger
	if cfg.Audit.DBEnabled {
		dbLogger, err := audit.NewDBLogger(db)
		if err != nil {
			logger.WithError(err).Fatal("failed to initialize audit table")
		}
		loggers = append(loggers, dbLogger)
	}
	if cfg.Audit.FilePath != "" {
		fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{
			Path:    cfg.Audit.FilePath,
			MaxSize: cfg.Audit.FileMaxSize,
		})
		if err != nil {
			logger.WithError(err).Fatal("failed to open audit log file")
		}
		loggers = append(loggers, fileLogger)
	}

	switch len(loggers) {
	case 0:
		return audit.NopLogger{}
	case 1:
		return loggers[0]
	default:
		return audit.NewMultiLogger(loggers...)
	}
}

func buildUploadStorage(ctx context.Context, cfg *config.Config) (uploads.Storage, error) {
	switch cfg.Uploads.Backend {
	case "s3":
		return uploads.NewS3Storage(ctx, uploads.S3Config{
			Endpoint:     cfg.Uploads.S3Endpoint,
			Region:       cfg.Uploads.S3Region,
			Bucket:       cfg.Uploads.S3Bucket,
			AccessKey:    cfg.Uploads.S3AccessKey,
			SecretKey:    cfg.Uploads.S3SecretKey,
			UsePathStyle: cfg.Uploads.S3UsePathStyle,
		})
	default:
		return uploads.NewFilesystemStorage(cfg.Uploads.FilesystemRoot)
	}
}
