package port

import (
	"context"

	"github.com/reelfx/reelfx-processing-service/internal/domain/entity"
)

// AttemptRepository is the ledger the upstream status interface reads.
// Ledger writes are best-effort from the worker's point of view; a job that
// produced its output is not failed because a row could not be written.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *entity.Attempt) error
	Update(ctx context.Context, attempt *entity.Attempt) error
}
