package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/instapod/platform/pkg/common/config"
	"github.com/instapod/platform/pkg/common/database"
	"github.com/instapod/platform/pkg/common/kafka"
	"github.com/instapod/platform/pkg/common/logger"
	"github.com/instapod/platform/pkg/expiry"
	"github.com/instapod/platform/pkg/gateway/middleware"
	"github.com/instapod/platform/pkg/identity"
	"github.com/instapod/platform/pkg/observability/metrics"
	"github.com/instapod/platform/pkg/posts"
	"github.com/instapod/platform/pkg/quota"
	"gorm.io/gorm"
)

type stores struct {
	records posts.Store
	windows quota.WindowStore
	runs    expiry.RunLog
	db      *gorm.DB
}

func openStores(cfg *config.Config) (*stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Log.Warn("Using in-memory stores; data is lost on restart")
		return &stores{
			records: posts.NewMemoryStore(),
			windows: quota.NewMemoryStore(),
			runs:    expiry.NewMemoryRunLog(),
		}, nil
	}

	db, err := database.NewPostgres(cfg)
	if err != nil {
		return nil, err
	}

	recordRepo := posts.NewRepository(db)
	windowRepo := quota.NewRepository(db)
	runRepo := expiry.NewRepository(db)
	for name, migrate := range map[string]func() error{
		"submission_records": recordRepo.AutoMigrate,
		"usage_windows":      windowRepo.AutoMigrate,
		"sweep_runs":         runRepo.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			return nil, fmt.Errorf("migrating %s: %w", name, err)
		}
	}

	return &stores{records: recordRepo, windows: windowRepo, runs: runRepo, db: db}, nil
}

func main() {
	logger.Init("pod-service")
	cfg, err := config.LoadWithFile()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to open stores")
	}
	defer database.ClosePostgres(st.db)

	var resolver identity.Resolver = identity.NewHTTPResolver(identity.HTTPResolverOptions{
		BaseURL:     cfg.IdentityBaseURL,
		Timeout:     cfg.IdentityTimeout,
		Retries:     cfg.IdentityRetries,
		AccessToken: cfg.IdentityAccessToken,
	})
	redisClient := database.NewRedis(ctx, cfg)
	if redisClient != nil {
		defer database.CloseRedis(redisClient)
		resolver = identity.NewCachedResolver(resolver, identity.NewRedisCache(redisClient, cfg.IdentityCachePrefix), cfg.IdentityCacheTTL)
	}

	tracker := quota.NewTracker(st.windows,
		quota.WithLimit(cfg.DailyPostLimit),
		quota.WithWindow(cfg.QuotaWindow),
	)

	serviceOpts := []posts.ServiceOption{posts.WithResolveTimeout(cfg.IdentityTimeout)}
	sweeperOpts := []expiry.Option{
		expiry.WithRetention(cfg.RetentionPeriod),
		expiry.WithRunLog(st.runs),
	}
	if cfg.KafkaEventsEnabled {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
		defer producer.Close()
		serviceOpts = append(serviceOpts, posts.WithEvents(producer))
		sweeperOpts = append(sweeperOpts, expiry.WithEvents(producer))
	}

	svc := posts.NewService(st.records, resolver, tracker, serviceOpts...)
	sweeper := expiry.NewSweeper(st.records, sweeperOpts...)

	limiters := middleware.NewLimiterStore(cfg.RateLimitRPS, cfg.RateLimitBurst, 15*time.Minute)
	limiters.StartJanitor(ctx, time.Minute)

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging, middleware.CORS)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := ping(r.Context(), st.db); err != nil {
			logger.Log.WithError(err).Warn("readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RateLimit(limiters), middleware.BodyLimit(cfg.MaxRequestBody))
	posts.NewHTTPHandler(svc, cfg.RedirectBaseURL).Register(api)
	expiry.NewHTTPHandler(sweeper).Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":         cfg.ServerHost,
			"port":         cfg.ServerPort,
			"store_driver": cfg.StoreDriver,
			"daily_limit":  tracker.Limit(),
		}).Info("Pod Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	go expiry.NewWorker(sweeper, cfg.SweepInterval).Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Pod Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Pod Service stopped")
}

func ping(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
