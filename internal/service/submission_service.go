package service

import (
	"context"
	"fmt"

	"github.com/stemsi/cbt-gateway/internal/model"
)

// DefaultHistoryLimit caps the submission history returned to a candidate.
const DefaultHistoryLimit = 50

// SubmissionLister reads persisted submission logs.
type SubmissionLister interface {
	ListByCandidate(ctx context.Context, candidateID string, limit int) ([]model.SubmissionLog, error)
}

// SubmissionService exposes the candidate's submission history.
type SubmissionService struct {
	repo SubmissionLister
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(repo SubmissionLister) *SubmissionService {
	return &SubmissionService{repo: repo}
}

// History lists the candidate's recorded submission calls, newest first.
func (s *SubmissionService) History(ctx context.Context, candidateID string) ([]model.SubmissionLog, error) {
	logs, err := s.repo.ListByCandidate(ctx, candidateID, DefaultHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	if logs == nil {
		logs = []model.SubmissionLog{}
	}
	return logs, nil
}
