package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/realmate/conversations/internal/api"
	"github.com/realmate/conversations/internal/audit"
	"github.com/realmate/conversations/internal/auth"
	"github.com/realmate/conversations/internal/db"
	"github.com/realmate/conversations/internal/metrics"
	"github.com/realmate/conversations/internal/notify"
	"github.com/realmate/conversations/internal/store"
	"github.com/realmate/conversations/internal/utils"
	"github.com/realmate/conversations/internal/webhook"
)

func main() {
	if err := utils.LoadEnvFiles(); err != nil {
		log.Printf("config: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	baseLogger, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: failed to build: %v", err)
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)
	logger := baseLogger.Sugar()

	ctx := context.Background()

	var (
		writeStore store.Store
		reader     store.Reader
		sink       audit.Sink
	)

	switch cfg.StoreDriver {
	case utils.StoreDriverMemory:
		mem := store.NewMemory()
		writeStore, reader = mem, mem
		logger.Warnw("using in-memory store; data is lost on restart")
	default:
		if err := db.WaitForPostgres(ctx, cfg.Postgres, logger); err != nil {
			logger.Fatalw("postgres: not reachable", "error", err)
		}

		postgres, err := db.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			logger.Fatalw("postgres: failed to connect", "error", err)
		}
		defer postgres.Close()

		if err := postgres.EnsureSchema(ctx); err != nil {
			logger.Fatalw("postgres: ensure schema", "error", err)
		}

		gormDB, err := db.NewGORM(cfg.Postgres)
		if err != nil {
			logger.Fatalw("gorm: failed to connect", "error", err)
		}

		writeStore = store.NewPostgres(postgres.Pool)
		reader = store.NewGormReader(gormDB)
		if cfg.AuditSink == utils.AuditSinkPostgres {
			sink = audit.NewPostgresSink(postgres.Pool)
		}
	}

	switch cfg.AuditSink {
	case utils.AuditSinkMongo:
		mongoStore, err := db.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			logger.Fatalw("mongo: failed to connect", "error", err)
		}
		defer func() {
			if err := mongoStore.Close(context.Background()); err != nil {
				logger.Warnw("mongo: close error", "error", err)
			}
		}()
		if err := mongoStore.EnsureCollections(ctx); err != nil {
			logger.Fatalw("mongo: ensure collections", "error", err)
		}
		sink = audit.NewMongoSink(mongoStore.WebhookLogs)
	case utils.AuditSinkMemory:
		sink = audit.NewMemorySink()
	}

	auditLog := audit.NewLogger(sink, logger)

	hub := notify.NewHub(logger)
	defer hub.Close()

	var publisher notify.Publisher
	if cfg.Redis.Enabled() {
		redisClient, err := db.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatalw("redis: failed to connect", "error", err)
		}
		defer redisClient.Close()
		publisher = notify.NewRedisPublisher(redisClient, cfg.Redis.Channel)
		logger.Infow("publishing webhook outcomes to redis", "channel", cfg.Redis.Channel)
	}

	var authService *auth.Service
	if cfg.Admin.JWTSecret != "" {
		authService, err = auth.NewService(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
		if err != nil {
			logger.Fatalw("failed to initialise auth service", "error", err)
		}
	} else {
		logger.Warnw("ADMIN_JWT_SECRET not set; admin routes are unauthenticated")
	}

	dispatcher := webhook.NewDispatcher(writeStore, auditLog,
		webhook.WithLogger(logger.Named("webhook")),
		webhook.WithObserver(metrics.NewRecorder(prometheus.DefaultRegisterer)),
		webhook.WithObserver(notify.NewNotifier(hub, publisher, logger)),
	)

	router := setupRouter(cfg, logger, api.NewHandler(api.Dependencies{
		Processor: dispatcher,
		Reader:    reader,
		Logs:      auditLog,
		Hub:       hub,
		Auth:      authService,
		Logger:    logger.Named("api"),
	}))

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infow("server listening", "addr", server.Addr, "store", cfg.StoreDriver, "audit_sink", cfg.AuditSink)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server crashed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// websocket streams are hijacked and not covered by Shutdown
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("graceful shutdown failed", "error", err)
	}

	logger.Info("server stopped cleanly")
}

func setupRouter(cfg *utils.Config, logger *zap.SugaredLogger, handler *api.Handler) *gin.Engine {
	router := gin.New()
	router.Use(api.RequestLogger(logger), gin.Recovery(), api.CORS(cfg.CORSAllowedOrigins))

	router.GET("/metrics", gin.WrapH(metrics.Handler(prometheus.DefaultGatherer)))
	handler.RegisterRoutes(router)

	return router
}
