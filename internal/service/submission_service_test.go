package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stemsi/cbt-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	logs     []model.SubmissionLog
	err      error
	gotID    string
	gotLimit int
}

func (f *fakeLister) ListByCandidate(_ context.Context, candidateID string, limit int) ([]model.SubmissionLog, error) {
	f.gotID, f.gotLimit = candidateID, limit
	return f.logs, f.err
}

func TestHistory(t *testing.T) {
	lister := &fakeLister{}
	svc := NewSubmissionService(lister)

	logs, err := svc.History(context.Background(), "c-1")
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
	assert.Equal(t, "c-1", lister.gotID)
	assert.Equal(t, DefaultHistoryLimit, lister.gotLimit)

	lister.err = errors.New("connection reset")
	_, err = svc.History(context.Background(), "c-1")
	assert.Error(t, err)
}
