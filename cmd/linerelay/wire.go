package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"linerelay/internal/blob"
	"linerelay/internal/classify"
	"linerelay/internal/config"
	"linerelay/internal/domain"
	"linerelay/internal/line"
	"linerelay/internal/metrics"
	"linerelay/internal/record"
	"linerelay/internal/relay"
	"linerelay/internal/server"
)

// app holds the service handles built once per process.
type app struct {
	records domain.RecordStore
	server  *server.Server
	metrics *metrics.Collector
}

func (a *app) Close() error {
	if a.records != nil {
		return a.records.Close()
	}
	return nil
}

// needsAWS reports whether any configured backend talks to AWS.
func needsAWS(cfg *config.Config) bool {
	return cfg.Records.Backend == "dynamodb" || cfg.Objects.Backend == "s3" || cfg.Classifier.Active()
}

func loadAWS(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWS.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWS.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func openRecords(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) (domain.RecordStore, error) {
	switch cfg.Records.Backend {
	case "dynamodb":
		return record.NewDynamoStore(awsCfg, cfg.Records.TableName, cfg.Records.Endpoint, logger), nil
	case "sqlite":
		store, err := record.NewSQLiteStore(cfg.Records.DBPath, cfg.Records.TableName, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown records backend %q", cfg.Records.Backend)
}

func openObjects(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) (domain.ObjectStore, error) {
	switch cfg.Objects.Backend {
	case "s3":
		return blob.NewS3Store(awsCfg, blob.S3Config{
			Bucket:        cfg.Objects.BucketName,
			Endpoint:      cfg.Objects.Endpoint,
			PublicBaseURL: cfg.Objects.PublicBaseURL,
			Logger:        logger,
		}), nil
	case "filesystem":
		return blob.NewFSStore(cfg.Objects.RootDir, cfg.Objects.BucketName, cfg.Objects.PublicBaseURL, logger), nil
	}
	return nil, fmt.Errorf("unknown objects backend %q", cfg.Objects.Backend)
}

// buildApp wires the dispatcher and the host from cfg. The caller closes
// the returned app.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.CheckClassifier(); err != nil {
		return nil, err
	}
	var awsCfg aws.Config
	if needsAWS(cfg) {
		var err error
		if awsCfg, err = loadAWS(ctx, cfg); err != nil {
			return nil, err
		}
	}

	loc, err := cfg.General.Location()
	if err != nil {
		return nil, err
	}
	mode, err := relay.ParseBatchMode(cfg.General.BatchMode)
	if err != nil {
		return nil, err
	}

	records, err := openRecords(cfg, awsCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("record store: %w", err)
	}
	objects, err := openObjects(cfg, awsCfg, logger)
	if err != nil {
		records.Close()
		return nil, fmt.Errorf("object store: %w", err)
	}

	var classifier domain.Classifier
	if cfg.Classifier.Active() {
		classifier = classify.NewRekognition(awsCfg, classify.Config{
			ModelID:       cfg.Classifier.ModelID,
			MinConfidence: cfg.Classifier.MinConfidence,
			MaxLabels:     cfg.Classifier.MaxLabels,
			Logger:        logger,
		})
		logger.Info("classifier enabled", "custom_model", cfg.Classifier.ModelID != "")
	}

	client, err := line.NewClient(line.Config{
		ChannelAccessToken: cfg.LINE.ChannelAccessToken,
		APIBase:            cfg.LINE.APIBase,
		DataAPIBase:        cfg.LINE.DataAPIBase,
		Timeout:            time.Duration(cfg.LINE.TimeoutSeconds) * time.Second,
		MaxContentBytes:    cfg.LINE.MaxContentBytes,
		Logger:             logger,
	})
	if err != nil {
		records.Close()
		return nil, err
	}

	var collector *metrics.Collector
	metricsPath := ""
	if cfg.Metrics.Enabled {
		collector = metrics.New()
		metricsPath = cfg.Metrics.Path
	}

	dispatcher := relay.New(relay.Config{
		Records:    records,
		Objects:    objects,
		Classifier: classifier,
		Profiles:   client,
		Content:    client,
		Notifier:   client,
		Location:   loc,
		BatchMode:  mode,
		Metrics:    collector,
		Logger:     logger,
	})

	srv := server.New(server.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Path:           cfg.Server.Path,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
		ChannelSecret:  cfg.LINE.ChannelSecret,
		MetricsPath:    metricsPath,
		Metrics:        collector,
		Logger:         logger,
	}, dispatcher)

	return &app{records: records, server: srv, metrics: collector}, nil
}
