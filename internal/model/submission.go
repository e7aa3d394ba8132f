package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionTrigger tells whether the candidate or the timer submitted.
type SubmissionTrigger string

const (
	SubmissionTriggerManual SubmissionTrigger = "manual"
	SubmissionTriggerForced SubmissionTrigger = "forced"
)

// SubmissionLog is one recorded outbound submission call.
type SubmissionLog struct {
	ID          int64             `json:"id"`
	AttemptID   uuid.UUID         `json:"attempt_id"`
	CandidateID string            `json:"candidate_id"`
	Trigger     SubmissionTrigger `json:"trigger"`
	Answered    int               `json:"answered"`
	Total       int               `json:"total"`
	Success     bool              `json:"success"`
	Error       *string           `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	// Retries counts failed persist attempts while the row is queued.
	Retries     int               `json:"retries,omitempty"`
}
