package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"bwupload/alert"
	"bwupload/config"
	"bwupload/logger"
	"bwupload/pipeline"
	"bwupload/service"
	"bwupload/storage"
)

// app holds everything a long-running command needs. Built once per process.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	store  storage.Store
	alerts *alert.Dispatcher
	svc    *service.UploadService
}

func loadConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log, nil
}

func newProcessor(cfg *config.Config, log *zap.Logger) *pipeline.Processor {
	return pipeline.New(pipeline.Options{
		Policy:       cfg.Image.ExtractPolicy,
		MaxDimension: cfg.Image.MaxDimension,
		Quality:      cfg.Image.JPEGQuality,
		MaxPixels:    cfg.Image.MaxPixels,
	}, log)
}

func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return nil, err
	}

	store, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	notifier, err := newNotifier(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	alerts := alert.NewDispatcher(notifier, log)

	svc := service.NewUploadService(newProcessor(cfg, log), store, alerts, cfg.Server.ProcessTimeout, log)

	return &app{cfg: cfg, log: log, store: store, alerts: alerts, svc: svc}, nil
}

func newNotifier(ctx context.Context, cfg *config.Config, log *zap.Logger) (alert.Notifier, error) {
	if cfg.Alert.SNSTopicARN == "" {
		log.Info("SNS_TOPIC_ARN not set, alerts go to the log")
		return alert.NewLogNotifier(log), nil
	}
	awsCfg, err := storage.LoadAWSConfig(ctx, cfg.Alert.Region, cfg.Storage.S3.AccessKeyID, cfg.Storage.S3.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("init sns: %w", err)
	}
	return alert.NewSNSNotifier(awsCfg, cfg.Alert.SNSTopicARN), nil
}

// close drains pending alerts and flushes the logger.
func (a *app) close() {
	a.alerts.Wait()
	_ = a.log.Sync()
}
