package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelfx/reelfx-processing-service/internal/domain/entity"
)

// AttemptRepository persists the attempt ledger read by the upstream
// status-check interface.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func (r *AttemptRepository) Create(ctx context.Context, a *entity.Attempt) error {
	query := `
		INSERT INTO processing_attempts (
			id, source_bucket, source_key, destination_key, effect_id,
			status, receive_count, frame_count, video_duration,
			error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.SourceBucket, a.SourceKey, a.DestinationKey, a.EffectID,
		string(a.Status), a.ReceiveCount, a.FrameCount, a.VideoDuration,
		a.ErrorMessage, a.CreatedAt, a.UpdatedAt, a.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (r *AttemptRepository) Update(ctx context.Context, a *entity.Attempt) error {
	query := `
		UPDATE processing_attempts SET
			status=$2, frame_count=$3, video_duration=$4,
			error_message=$5, updated_at=$6, completed_at=$7
		WHERE id=$1`

	_, err := r.pool.Exec(ctx, query,
		a.ID, string(a.Status), a.FrameCount, a.VideoDuration,
		a.ErrorMessage, a.UpdatedAt, a.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	return nil
}
