package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/reelfx/reelfx-processing-service/internal/domain/port"
	"github.com/reelfx/reelfx-processing-service/internal/effect/pipeline"
	"github.com/reelfx/reelfx-processing-service/internal/effect/registry"
	"github.com/reelfx/reelfx-processing-service/internal/infra/config"
	"github.com/reelfx/reelfx-processing-service/internal/infra/email"
	"github.com/reelfx/reelfx-processing-service/internal/infra/ffmpeg"
	"github.com/reelfx/reelfx-processing-service/internal/infra/metrics"
	miniostorage "github.com/reelfx/reelfx-processing-service/internal/infra/minio"
	"github.com/reelfx/reelfx-processing-service/internal/infra/onnx"
	"github.com/reelfx/reelfx-processing-service/internal/infra/postgres"
	"github.com/reelfx/reelfx-processing-service/internal/infra/sqs"
	"github.com/reelfx/reelfx-processing-service/internal/infra/tracing"
	"github.com/reelfx/reelfx-processing-service/internal/usecase"
	"github.com/reelfx/reelfx-processing-service/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting reelfx-processing-service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.OTLPEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	// Migrations
	err = postgres.RunMigrations(cfg.DatabaseURL, "migrations")
	if err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// Object storage
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		UseSSL:    cfg.MinIOUseSSL,
		Retries:   cfg.StorageRetries,
		RetryBase: time.Duration(cfg.StorageRetryBase) * time.Millisecond,
	}, log)
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx, cfg.SourceBucket, cfg.OutputBucket), "ensure minio buckets")

	// Effect registry
	reg, err := registry.Load(cfg.ManifestPath)
	fatalOnErr(err, "load effect manifest")

	// Edge model, only required when the manifest declares frame-pipeline
	// effects
	var estimator port.EdgeEstimator
	if reg.HasFramePipeline() {
		est, err := onnx.NewEdgeEstimator(onnx.EstimatorConfig{
			ModelPath:     cfg.ModelPath,
			UseGPU:        cfg.UseGPU,
			InferenceSize: cfg.InferenceSize,
		}, log)
		fatalOnErr(err, "load edge model")
		defer est.Close()
		estimator = est
	}

	// SQS client
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
	fatalOnErr(err, "load aws config")
	sqsClient := awssqs.NewFromConfig(awsCfg, func(o *awssqs.Options) {
		if cfg.AWSEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpoint)
			o.Credentials = credentials.NewStaticCredentialsProvider("test", "test", "")
		}
	})
	dlqPub := sqs.NewDLQPublisher(sqsClient, cfg.DLQURL)

	// Infra adapters
	repo := postgres.NewAttemptRepository(pool)
	media := ffmpeg.NewMedia(log)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)
	pipe := pipeline.New(estimator, log)

	// Use case
	uc := usecase.NewProcessRequestUseCase(
		reg, storage, media, pipe,
		repo, dlqPub, notifier,
		log,
		usecase.ProcessRequestConfig{
			ScratchDir:   cfg.ScratchDir,
			OutputBucket: cfg.OutputBucket,
			DeleteSource: cfg.DeleteSourceOnOK,
		},
	)

	// Metrics server; readiness flips once the consumer is wired
	health := metrics.NewHealth()
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, health, log)

	consumer := sqs.NewConsumer(sqsClient, dlqPub, sqs.ConsumerConfig{
		QueueURL:        cfg.QueueURL,
		WaitSeconds:     cfg.PollWaitSeconds,
		VisibilitySecs:  cfg.VisibilitySecs,
		Heartbeat:       time.Duration(cfg.HeartbeatSecs) * time.Second,
		MaxJobDuration:  time.Duration(cfg.MaxJobDuration) * time.Second,
		MaxReceiveCount: cfg.MaxReceiveCount,
	}, uc.Execute, log)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	health.SetReady()
	log.Info("reelfx-processing-service started, consuming messages")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	log.Info("reelfx-processing-service stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
