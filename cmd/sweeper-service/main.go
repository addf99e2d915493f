package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/instapod/platform/pkg/common/config"
	"github.com/instapod/platform/pkg/common/database"
	"github.com/instapod/platform/pkg/common/kafka"
	"github.com/instapod/platform/pkg/common/logger"
	"github.com/instapod/platform/pkg/expiry"
	"github.com/instapod/platform/pkg/posts"
)

func main() {
	logger.Init("sweeper-service")
	cfg, err := config.LoadWithFile()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load configuration")
	}
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Log.Fatal("sweeper service requires a shared store; STORE_DRIVER=memory is not supported")
	}

	db, err := database.NewPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres(db)

	records := posts.NewRepository(db)
	runs := expiry.NewRepository(db)
	if err := records.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate submission tables")
	}
	if err := runs.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate sweep tables")
	}

	opts := []expiry.Option{
		expiry.WithRetention(cfg.RetentionPeriod),
		expiry.WithRunLog(runs),
	}
	if cfg.KafkaEventsEnabled {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
		defer producer.Close()
		opts = append(opts, expiry.WithEvents(producer))
	}
	worker := expiry.NewWorker(expiry.NewSweeper(records, opts...), cfg.SweepInterval)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaSweepTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx)
	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"topic":    cfg.KafkaSweepTopic,
			"group_id": cfg.KafkaGroupID,
		}).Info("Sweeper Service consuming sweep requests")

		if err := consumer.Consume(ctx, worker.HandleEvent); err != nil && ctx.Err() == nil {
			logger.Log.WithError(err).Error("sweep request consumer stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Sweeper Service...")
	cancel()
	logger.Log.Info("Sweeper Service stopped")
}
