package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/reelfx/reelfx-processing-service/internal/domain/entity"
	"github.com/reelfx/reelfx-processing-service/internal/domain/port"
	"github.com/reelfx/reelfx-processing-service/internal/effect/pipeline"
	"github.com/reelfx/reelfx-processing-service/internal/effect/registry"
	"github.com/reelfx/reelfx-processing-service/internal/infra/metrics"
)

type ProcessRequestUseCase struct {
	registry *registry.Registry
	storage  port.ObjectStorage
	media    port.MediaCodec
	pipe     *pipeline.Pipeline
	repo     port.AttemptRepository
	dlq      port.DLQPublisher
	notifier port.FailureNotifier
	logger   *zap.Logger
	cfg      ProcessRequestConfig
}

type ProcessRequestConfig struct {
	ScratchDir   string
	OutputBucket string
	DeleteSource bool
}

func NewProcessRequestUseCase(
	reg *registry.Registry,
	storage port.ObjectStorage,
	media port.MediaCodec,
	pipe *pipeline.Pipeline,
	repo port.AttemptRepository,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessRequestConfig,
) *ProcessRequestUseCase {
	return &ProcessRequestUseCase{
		registry: reg,
		storage:  storage,
		media:    media,
		pipe:     pipe,
		repo:     repo,
		dlq:      dlq,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}
}

// Execute handles one delivery of one message. A nil return acknowledges the
// message; a non-nil return leaves it on the queue for redelivery. Permanent
// failures are routed to the DLQ here and acknowledged, so only transient
// failures ever surface as errors.
func (uc *ProcessRequestUseCase) Execute(ctx context.Context, rawMsg []byte, receiveCount int) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessRequestUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var req entity.ProcessingRequest
	if err := json.Unmarshal(rawMsg, &req); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		if dlqErr := uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error()); dlqErr != nil {
			// Never acknowledge until the DLQ holds a copy; the message
			// stays on the queue for redelivery.
			uc.logger.Error("DLQ publish failed, leaving message for redelivery", zap.Error(dlqErr))
			return fmt.Errorf("dlq publish for unparseable message: %w", dlqErr)
		}
		metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()
		return nil
	}

	span.SetAttributes(
		attribute.String("request.source_key", req.SourceKey),
		attribute.String("request.effect_id", req.EffectID),
		attribute.Int("request.receive_count", receiveCount),
	)

	log := uc.logger.With(
		zap.String("source_key", req.SourceKey),
		zap.String("effect_id", req.EffectID),
		zap.Int("receive_count", receiveCount),
	)

	if receiveCount > 1 {
		metrics.RedeliveriesTotal.WithLabelValues(strconv.Itoa(receiveCount)).Inc()
	}

	attempt := entity.NewAttempt(&req, receiveCount)

	// The ledger row exists before any outcome is decided, so validation
	// failures are visible to the upstream status interface too.
	if err := uc.repo.Create(ctx, attempt); err != nil {
		log.Error("failed to create attempt record", zap.Error(err))
	}

	// Everything the worker can reject without touching storage is checked
	// before the first download.
	if err := req.Validate(); err != nil {
		return uc.handleFailure(ctx, attempt, rawMsg, &req, "validate", err, log)
	}
	desc, err := uc.registry.Resolve(req.EffectID)
	if err != nil {
		return uc.handleFailure(ctx, attempt, rawMsg, &req, "resolve_effect", entity.PermanentWrap(err, "resolve effect"), log)
	}
	params, err := uc.registry.Validate(req.EffectID, req.Params)
	if err != nil {
		return uc.handleFailure(ctx, attempt, rawMsg, &req, "validate_params", err, log)
	}

	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()

	if err := uc.runJob(ctx, attempt, &req, desc, params, rawMsg, log); err != nil {
		return err
	}
	if attempt.Status != entity.AttemptStatusCompleted {
		// Permanent failure already routed to the DLQ inside runJob; the
		// message is acknowledged but the job did not complete.
		return nil
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.JobStageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *ProcessRequestUseCase) runJob(
	ctx context.Context,
	attempt *entity.Attempt,
	req *entity.ProcessingRequest,
	desc *registry.Descriptor,
	params registry.Params,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.cfg.ScratchDir, attempt.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download source from object storage
	dlStart := time.Now()
	ctx2, spanDl := tracer.Start(ctx, "download_source")
	inputPath := filepath.Join(workDir, "input.mp4")
	err := uc.storage.Download(ctx2, req.SourceBucket, req.SourceKey, inputPath)
	spanDl.End()
	if err != nil {
		log.Error("failed to download source", zap.Error(err))
		return uc.handleFailure(ctx, attempt, rawMsg, req, "download", err, log)
	}
	metrics.JobStageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Probe container metadata
	ctx3, spanProbe := tracer.Start(ctx, "probe")
	info, err := uc.media.Probe(ctx3, inputPath)
	spanProbe.End()
	if err != nil {
		log.Error("probe failed", zap.Error(err))
		return uc.handleFailure(ctx, attempt, rawMsg, req, "probe", err, log)
	}
	log.Info("source probed",
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Float64("fps", info.FPS),
		zap.Float64("duration_secs", info.Duration),
	)

	outputPath := filepath.Join(workDir, "output.mp4")
	frameCount := 0

	switch desc.Kind {
	case registry.KindFilterGraph:
		fgStart := time.Now()
		ctx4, spanFg := tracer.Start(ctx, "apply_filter_graph")
		err = uc.media.ApplyFilterGraph(ctx4, inputPath, outputPath, desc.Filter, desc.KeepAudio)
		spanFg.End()
		if err != nil {
			log.Error("filter graph failed", zap.Error(err))
			return uc.handleFailure(ctx, attempt, rawMsg, req, "filter_graph", err, log)
		}
		metrics.JobStageDuration.WithLabelValues("filter_graph").Observe(time.Since(fgStart).Seconds())

	case registry.KindFramePipeline:
		frameCount, err = uc.runFramePipeline(ctx, workDir, inputPath, outputPath, info, params, log)
		if err != nil {
			return uc.handleFailure(ctx, attempt, rawMsg, req, "frame_pipeline", err, log)
		}

	default:
		// Unreachable with a loaded registry; the manifest check rejects
		// unknown kinds at startup.
		return uc.handleFailure(ctx, attempt, rawMsg, req, "dispatch",
			entity.Permanent("effect %q has unknown kind %q", desc.Name, desc.Kind), log)
	}

	// Upload result
	upStart := time.Now()
	ctx5, spanUp := tracer.Start(ctx, "upload_result")
	err = uc.storage.Upload(ctx5, uc.cfg.OutputBucket, req.DestinationKey, outputPath, "video/mp4")
	spanUp.End()
	if err != nil {
		log.Error("result upload failed", zap.Error(err))
		return uc.handleFailure(ctx, attempt, rawMsg, req, "upload", err, log)
	}
	metrics.JobStageDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	if uc.cfg.DeleteSource {
		if err := uc.storage.Remove(ctx, req.SourceBucket, req.SourceKey); err != nil {
			log.Warn("failed to delete source object", zap.Error(err))
		}
	}

	attempt.MarkCompleted(frameCount, info.Duration)
	if err := uc.repo.Update(ctx, attempt); err != nil {
		log.Error("failed to update attempt to COMPLETED", zap.Error(err))
	}

	log.Info("job completed successfully",
		zap.Int("frame_count", frameCount),
		zap.Float64("duration_secs", info.Duration),
		zap.String("destination_key", req.DestinationKey),
	)

	return nil
}

func (uc *ProcessRequestUseCase) runFramePipeline(
	ctx context.Context,
	workDir, inputPath, outputPath string,
	info entity.MediaInfo,
	params registry.Params,
	log *zap.Logger,
) (int, error) {
	tracer := otel.Tracer("usecase")

	exStart := time.Now()
	ctx1, spanEx := tracer.Start(ctx, "extract_frames")
	framesDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		spanEx.End()
		return 0, fmt.Errorf("create frames dir: %w", err)
	}
	framePaths, err := uc.media.ExtractFrames(ctx1, inputPath, framesDir)
	spanEx.End()
	if err != nil {
		log.Error("frame extraction failed", zap.Error(err))
		return 0, err
	}
	metrics.JobStageDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())

	pipeStart := time.Now()
	ctx2, spanPipe := tracer.Start(ctx, "stylize_frames")
	styledDir := filepath.Join(workDir, "styled")
	if err := os.MkdirAll(styledDir, 0755); err != nil {
		spanPipe.End()
		return 0, fmt.Errorf("create styled dir: %w", err)
	}
	frameCount, err := uc.pipe.Run(ctx2, framePaths, styledDir, pipelineConfig(params))
	spanPipe.End()
	if err != nil {
		log.Error("frame pipeline failed", zap.Error(err))
		return 0, err
	}
	metrics.JobStageDuration.WithLabelValues("stylize").Observe(time.Since(pipeStart).Seconds())
	metrics.FramesProcessedTotal.Add(float64(frameCount))

	asmStart := time.Now()
	ctx3, spanAsm := tracer.Start(ctx, "assemble_video")
	err = uc.media.AssembleVideo(ctx3, styledDir, info.FPS, outputPath)
	spanAsm.End()
	if err != nil {
		log.Error("video assembly failed", zap.Error(err))
		return 0, err
	}
	metrics.JobStageDuration.WithLabelValues("assemble").Observe(time.Since(asmStart).Seconds())

	return frameCount, nil
}

// pipelineConfig maps validated manifest parameters onto the rotoscoping
// pipeline. Params has already defaulted and clamped every key.
func pipelineConfig(params registry.Params) pipeline.Config {
	return pipeline.Config{
		EdgeStrength:      params.Float("edge_strength"),
		EdgeThickness:     params.Float("edge_thickness"),
		NumColors:         params.Int("num_colors"),
		ColorMethod:       params.String("color_method"),
		Smoothing:         params.Float("smoothing"),
		Saturation:        params.Float("saturation"),
		TemporalSmoothing: params.Float("temporal_smoothing"),
	}
}

// handleFailure classifies a stage error. Permanent errors are acknowledged
// after publishing to the DLQ; anything else is surfaced so the message is
// redelivered once its visibility timeout lapses.
func (uc *ProcessRequestUseCase) handleFailure(
	ctx context.Context,
	attempt *entity.Attempt,
	rawMsg []byte,
	req *entity.ProcessingRequest,
	stage string,
	stageErr error,
	log *zap.Logger,
) error {
	errMsg := stage + ": " + stageErr.Error()

	if entity.IsPermanent(stageErr) {
		// The DLQ copy must exist before the message is acknowledged;
		// otherwise a DLQ outage would erase the job entirely.
		if err := uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg); err != nil {
			log.Error("DLQ publish failed, leaving message for redelivery", zap.Error(err))
			attempt.MarkFailed(entity.AttemptStatusFailedTemp, errMsg)
			if uerr := uc.repo.Update(ctx, attempt); uerr != nil {
				log.Error("failed to update attempt to FAILED_TEMP", zap.Error(uerr))
			}
			metrics.JobsProcessedTotal.WithLabelValues("retry").Inc()
			return fmt.Errorf("dlq publish for permanent failure: %w", err)
		}

		attempt.MarkFailed(entity.AttemptStatusFailedPerm, errMsg)
		if err := uc.repo.Update(ctx, attempt); err != nil {
			log.Error("failed to update attempt to FAILED_PERM", zap.Error(err))
		}

		metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

		if req.NotifyEmail != "" {
			if err := uc.notifier.NotifyFailure(ctx, req.NotifyEmail, req.SourceKey, req.EffectID, errMsg); err != nil {
				log.Error("failed to send failure notification", zap.Error(err))
			}
		}

		log.Warn("permanent failure, message sent to DLQ", zap.String("error", errMsg))
		return nil
	}

	attempt.MarkFailed(entity.AttemptStatusFailedTemp, errMsg)
	if err := uc.repo.Update(ctx, attempt); err != nil {
		log.Error("failed to update attempt to FAILED_TEMP", zap.Error(err))
	}

	metrics.JobsProcessedTotal.WithLabelValues("retry").Inc()
	return fmt.Errorf("retryable failure (receive %d): %s", attempt.ReceiveCount, errMsg)
}
