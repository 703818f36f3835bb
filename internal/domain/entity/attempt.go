package entity

import (
	"time"

	"github.com/google/uuid"
)

type AttemptStatus string

const (
	AttemptStatusProcessing AttemptStatus = "PROCESSING"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
	AttemptStatusFailedTemp AttemptStatus = "FAILED_TEMP"
	AttemptStatusFailedPerm AttemptStatus = "FAILED_PERM"
)

// Attempt is the run-state for one delivery of one message. It is created
// when the message is picked up and fully discarded, success or failure,
// before the next message is taken; only the ledger row outlives it.
type Attempt struct {
	ID             uuid.UUID
	SourceBucket   string
	SourceKey      string
	DestinationKey string
	EffectID       string
	Status         AttemptStatus
	ReceiveCount   int
	FrameCount     int
	VideoDuration  float64
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

func NewAttempt(req *ProcessingRequest, receiveCount int) *Attempt {
	now := time.Now().UTC()
	return &Attempt{
		ID:             uuid.New(),
		SourceBucket:   req.SourceBucket,
		SourceKey:      req.SourceKey,
		DestinationKey: req.DestinationKey,
		EffectID:       req.EffectID,
		Status:         AttemptStatusProcessing,
		ReceiveCount:   receiveCount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (a *Attempt) MarkCompleted(frameCount int, duration float64) {
	now := time.Now().UTC()
	a.Status = AttemptStatusCompleted
	a.FrameCount = frameCount
	a.VideoDuration = duration
	a.UpdatedAt = now
	a.CompletedAt = &now
}

func (a *Attempt) MarkFailed(status AttemptStatus, errMsg string) {
	a.Status = status
	a.ErrorMessage = errMsg
	a.UpdatedAt = time.Now().UTC()
}
