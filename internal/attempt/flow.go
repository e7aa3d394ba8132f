package attempt

import (
	"errors"
	"fmt"

	"github.com/stemsi/cbt-gateway/internal/model"
)

// Phase is a step of the candidate-facing exam flow.
type Phase string

const (
	PhaseLoading           Phase = "loading"
	PhasePending           Phase = "pending"
	PhaseVerified          Phase = "verified"
	PhaseRejected          Phase = "rejected"
	PhaseAbsent            Phase = "absent"
	PhaseSubmitted         Phase = "submitted"
	PhaseCountdown         Phase = "countdown"
	PhaseInProgress        Phase = "in_progress"
	PhaseSubmittedTerminal Phase = "submitted_terminal"
)

// ErrInvalidTransition is wrapped by every rejected Flow move.
var ErrInvalidTransition = errors.New("invalid exam flow transition")

// Flow is the exam flow state machine:
//
//	loading -> {pending, verified, rejected, absent, submitted}
//	verified -> countdown -> in_progress -> submitted_terminal
//
// Terminal phases only move again through Refetch.
type Flow struct {
	phase Phase
}

// NewFlow starts in the loading phase.
func NewFlow() *Flow {
	return &Flow{phase: PhaseLoading}
}

// Phase returns the current phase.
func (f *Flow) Phase() Phase { return f.phase }

// Resolve applies the externally fetched candidate status.
func (f *Flow) Resolve(status model.CandidateStatus) error {
	if f.phase != PhaseLoading {
		return f.reject("resolve")
	}
	switch status {
	case model.CandidateStatusPending:
		f.phase = PhasePending
	case model.CandidateStatusVerified:
		f.phase = PhaseVerified
	case model.CandidateStatusRejected:
		f.phase = PhaseRejected
	case model.CandidateStatusAbsent:
		f.phase = PhaseAbsent
	case model.CandidateStatusSubmitted:
		f.phase = PhaseSubmitted
	default:
		return fmt.Errorf("%w: unknown candidate status %q", ErrInvalidTransition, status)
	}
	return nil
}

// BeginCountdown moves a verified candidate to the pre-exam countdown.
func (f *Flow) BeginCountdown() error {
	if f.phase != PhaseVerified {
		return f.reject("begin countdown")
	}
	f.phase = PhaseCountdown
	return nil
}

// Start opens the exam once the countdown is over.
func (f *Flow) Start() error {
	if f.phase != PhaseCountdown {
		return f.reject("start")
	}
	f.phase = PhaseInProgress
	return nil
}

// Finish marks the attempt as submitted.
func (f *Flow) Finish() error {
	if f.phase != PhaseInProgress {
		return f.reject("finish")
	}
	f.phase = PhaseSubmittedTerminal
	return nil
}

// Refetch returns to loading after an external status change.
func (f *Flow) Refetch() {
	f.phase = PhaseLoading
}

// Terminal reports whether the flow waits on an external status change.
func (f *Flow) Terminal() bool {
	switch f.phase {
	case PhaseRejected, PhaseAbsent, PhaseSubmitted, PhaseSubmittedTerminal:
		return true
	}
	return false
}

func (f *Flow) reject(move string) error {
	return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, move, f.phase)
}
