package model

import "time"

// CandidateStatus is the externally owned status of a candidate's exam booking.
type CandidateStatus string

const (
	CandidateStatusPending   CandidateStatus = "pending"
	CandidateStatusVerified  CandidateStatus = "verified"
	CandidateStatusRejected  CandidateStatus = "rejected"
	CandidateStatusAbsent    CandidateStatus = "absent"
	CandidateStatusSubmitted CandidateStatus = "submitted"
)

// ExamSchedule is returned by GET /candidates/me/exam-scheduled and configures
// the countdown of the attempt.
type ExamSchedule struct {
	Status          CandidateStatus `json:"status" validate:"required,oneof=pending verified rejected absent submitted"`
	ScheduledAt     *time.Time      `json:"scheduledAt,omitempty"`
	DurationSeconds int             `json:"durationSeconds" validate:"required_if=Status verified,min=0"`
	QuestionCount   int             `json:"questionCount" validate:"min=0"`
}
