package service

import (
	"context"
	"fmt"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/cache"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/collector"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/common/database"
	mqttcommon "github.com/Demiurgo9404/monitor-impresoras-sub002/internal/common/mqtt"
	rediscommon "github.com/Demiurgo9404/monitor-impresoras-sub002/internal/common/redis"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/config"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/notify"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/outcome"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/repository"
	"go.uber.org/zap"
)

// NewFromConfig 连接 PostgreSQL、Redis 与可选的 MQTT，组装完整服务
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*MaintenanceService, error) {
	db, err := database.NewPostgresDB(ctx, database.Options{
		DSN:      cfg.Database.GetDSN(),
		MaxConns: cfg.Database.MaxConns,
		MaxIdle:  cfg.Database.MaxIdle,
	})
	if err != nil {
		return nil, err
	}
	closers := []func(){func() { _ = database.Close(db) }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if err := repository.EnsureSchema(ctx, db); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	redisClient := rediscommon.NewRedisClient(rediscommon.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	closers = append(closers, func() { _ = rediscommon.Close(redisClient) })
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	tracker := outcome.NewPostgresTracker(db, logger)
	sinks := []notify.Sink{notify.NewStreamSink(redisClient, cfg.Notify.Stream, cfg.Notify.StreamMax)}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Collector.Timeout))
	}

	if cfg.MQTT.Broker != "" {
		mqttClient, err := mqttcommon.NewClient(mqttcommon.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, logger)
		if err != nil {
			cleanup()
			return nil, err
		}
		closers = append(closers, mqttClient.Disconnect)
		sinks = append(sinks, notify.NewMQTTSink(mqttClient, cfg.Notify.MQTTTopic, cfg.MQTT.QoS))

		if cfg.MQTT.EventsTopic != "" {
			if err := mqttClient.Subscribe(cfg.MQTT.EventsTopic, cfg.MQTT.QoS, tracker.HandleMessage); err != nil {
				cleanup()
				return nil, fmt.Errorf("failed to subscribe to maintenance events: %w", err)
			}
			logger.Info("Subscribed to maintenance events", zap.String("topic", cfg.MQTT.EventsTopic))
		}
	}

	svc, err := NewMaintenanceService(cfg, Dependencies{
		Devices:     repository.NewPostgresDevicesRepository(db, logger),
		Telemetry:   repository.NewPostgresTelemetryRepository(db, logger),
		Predictions: repository.NewPostgresPredictionsRepository(db, logger),
		Feedback:    repository.NewPostgresFeedbackRepository(db, logger),
		Training:    repository.NewPostgresTrainingRepository(db, logger),
		Retraining:  repository.NewPostgresRetrainingRepository(db, logger),
		Source:      collector.NewHTTPSource(cfg.Collector.SourceURL, cfg.Collector.Timeout, logger),
		Tracker:     tracker,
		Cache:       cache.NewPredictionCache(cache.NewRedisKVStore(redisClient), cfg.Predictor.CacheTTL, logger),
		Lock:        cache.NewRetrainLock(redisClient, cfg.Retrainer.LockTTL),
		Sinks:       sinks,
	}, logger)
	if err != nil {
		cleanup()
		return nil, err
	}
	for _, c := range closers {
		svc.OnClose(c)
	}

	if err := svc.LoadModel(ctx); err != nil {
		svc.Stop()
		return nil, fmt.Errorf("failed to load model parameters: %w", err)
	}
	return svc, nil
}
