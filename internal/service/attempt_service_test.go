package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-gateway/internal/attempt"
	"github.com/stemsi/cbt-gateway/internal/backend"
	"github.com/stemsi/cbt-gateway/internal/config"
	"github.com/stemsi/cbt-gateway/internal/metrics"
	"github.com/stemsi/cbt-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu        sync.Mutex
	schedule  model.ExamSchedule
	questions []model.Question
	submitErr error
	submits   [][]model.SubmittedAnswer
	tokens    []string
}

func (f *fakeBackend) Questions(_ context.Context, _ string) ([]model.Question, error) {
	return f.questions, nil
}

func (f *fakeBackend) Schedule(_ context.Context, _ string) (*model.ExamSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.schedule
	return &s, nil
}

func (f *fakeBackend) Submit(_ context.Context, token string, answers []model.SubmittedAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, answers)
	f.tokens = append(f.tokens, token)
	return f.submitErr
}

func (f *fakeBackend) setStatus(status model.CandidateStatus) {
	f.mu.Lock()
	f.schedule.Status = status
	f.mu.Unlock()
}

func (f *attemptFixture) liveCount() int {
	f.svc.mu.Lock()
	defer f.svc.mu.Unlock()
	return len(f.svc.live)
}

func (f *fakeBackend) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

func sampleQuestions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		opts := make([]model.Option, model.OptionsPerQuestion)
		for j := range opts {
			opts[j] = model.Option{ID: fmt.Sprintf("q%d-o%d", i, j+1), Ordinal: j + 1, Text: fmt.Sprint(j)}
		}
		qs[i] = model.Question{ID: fmt.Sprintf("q%d", i), PromptText: "prompt", Options: opts}
	}
	return qs
}

func sampleSession(token string) *model.Session {
	return &model.Session{JTI: "jti", Token: token, Candidate: model.Candidate{ID: "c-1", Name: "Asha"}}
}

type attemptFixture struct {
	svc     *AttemptService
	backend *fakeBackend
	mr      *miniredis.Miniredis
	metrics *metrics.Metrics
}

func newAttemptFixture(t *testing.T, cfg *config.Config, questions int, duration int) *attemptFixture {
	t.Helper()
	mr, rdb := newTestRedis(t)
	fb := &fakeBackend{
		schedule:  model.ExamSchedule{Status: model.CandidateStatusVerified, DurationSeconds: duration, QuestionCount: questions},
		questions: sampleQuestions(questions),
	}
	m := metrics.New(prometheus.NewRegistry())
	svc := NewAttemptService(cfg, fb, NewDraftStore(rdb, cfg.DraftTTL), rdb, m, zerolog.Nop())
	t.Cleanup(svc.Close)
	return &attemptFixture{svc: svc, backend: fb, mr: mr, metrics: m}
}

func (f *attemptFixture) queuedLogs(t *testing.T) []model.SubmissionLog {
	t.Helper()
	if !f.mr.Exists(config.WorkerKey.PersistSubmissionsQueue) {
		return nil
	}
	items, err := f.mr.List(config.WorkerKey.PersistSubmissionsQueue)
	require.NoError(t, err)
	logs := make([]model.SubmissionLog, len(items))
	for i, raw := range items {
		require.NoError(t, json.Unmarshal([]byte(raw), &logs[i]))
	}
	return logs
}

func answerAll(t *testing.T, svc *AttemptService, sess *model.Session, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		idx := i
		_, err := svc.Answer(context.Background(), sess, model.SetAnswerRequest{QuestionIndex: &idx, OptionID: fmt.Sprintf("q%d-o%d", i, (i%4)+1)})
		require.NoError(t, err)
	}
}

func TestStartRequiresVerifiedAndOpenExam(t *testing.T) {
	f := newAttemptFixture(t, testConfig(), 3, 60)
	sess := sampleSession("up-1")
	ctx := context.Background()

	f.backend.schedule.Status = model.CandidateStatusPending
	_, err := f.svc.Start(ctx, sess)
	assert.ErrorIs(t, err, ErrNotVerified)

	f.backend.schedule.Status = model.CandidateStatusSubmitted
	_, err = f.svc.Start(ctx, sess)
	assert.ErrorIs(t, err, attempt.ErrSubmitted)

	later := time.Now().Add(time.Hour)
	f.backend.schedule.Status = model.CandidateStatusVerified
	f.backend.schedule.ScheduledAt = &later
	_, err = f.svc.Start(ctx, sess)
	assert.ErrorIs(t, err, ErrNotStarted)

	status, err := f.svc.Status(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, attempt.PhaseCountdown, status.Phase)
	assert.Greater(t, status.StartsInSeconds, 3500)
}

func TestStatusPhases(t *testing.T) {
	f := newAttemptFixture(t, testConfig(), 2, 60)
	sess := sampleSession("up-1")
	ctx := context.Background()

	f.backend.schedule.Status = model.CandidateStatusRejected
	status, err := f.svc.Status(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, attempt.PhaseRejected, status.Phase)

	f.backend.schedule.Status = model.CandidateStatusVerified
	status, err = f.svc.Status(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, attempt.PhaseVerified, status.Phase)
	assert.Nil(t, status.Attempt)

	_, err = f.svc.Start(ctx, sess)
	require.NoError(t, err)
	status, err = f.svc.Status(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, attempt.PhaseInProgress, status.Phase)
	require.NotNil(t, status.Attempt)

	answerAll(t, f.svc, sess, 2)
	_, err = f.svc.Submit(ctx, sess)
	require.NoError(t, err)
	f.backend.setStatus(model.CandidateStatusSubmitted)
	status, err = f.svc.Status(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, attempt.PhaseSubmitted, status.Phase)
	assert.Nil(t, status.Attempt)
}

func TestSubmittedAttemptIsReleased(t *testing.T) {
	f := newAttemptFixture(t, testConfig(), 2, 600)
	sess := sampleSession("up-1")
	ctx := context.Background()

	first, err := f.svc.Start(ctx, sess)
	require.NoError(t, err)
	answerAll(t, f.svc, sess, 2)
	_, err = f.svc.Submit(ctx, sess)
	require.NoError(t, err)
	assert.Zero(t, f.liveCount())

	// The backend re-verified the candidate, so a fresh attempt may start.
	status, err := f.svc.Status(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, attempt.PhaseVerified, status.Phase)

	second, err := f.svc.Start(ctx, sess)
	require.NoError(t, err)
	assert.False(t, second.Resumed)
	assert.NotEqual(t, first.State.AttemptID, second.State.AttemptID)
	assert.Zero(t, second.State.AnsweredCount)
	assert.Equal(t, 1, f.liveCount())
}

func TestForcedSubmissionReleasesAttempt(t *testing.T) {
	cfg := testConfig()
	cfg.TickInterval = time.Millisecond
	f := newAttemptFixture(t, cfg, 2, 1)
	sess := sampleSession("up-1")

	_, err := f.svc.Start(context.Background(), sess)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return f.liveCount() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.backend.submitCount())
}

func TestStartRejectsQuestionCountMismatch(t *testing.T) {
	f := newAttemptFixture(t, testConfig(), 2, 600)
	f.backend.schedule.QuestionCount = 5

	_, err := f.svc.Start(context.Background(), sampleSession("up-1"))
	assert.ErrorIs(t, err, backend.ErrUnexpectedResponse)
	assert.Zero(t, f.liveCount())
}

func TestManualSubmitFlow(t *testing.T) {
	f := newAttemptFixture(t, testConfig(), 3, 600)
	sess := sampleSession("up-1")
	ctx := context.Background()

	res, err := f.svc.Start(ctx, sess)
	require.NoError(t, err)
	assert.False(t, res.Resumed)
	assert.Len(t, res.Questions, 3)
	assert.Equal(t, 600, res.State.RemainingSeconds)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LiveAttempts))

	_, err = f.svc.Submit(ctx, sess)
	assert.ErrorIs(t, err, attempt.ErrIncomplete)
	assert.Zero(t, f.backend.submitCount())

	answerAll(t, f.svc, sess, 3)
	snap, err := f.svc.Navigate(sess, model.NavigateRequest{Action: model.NavigateNext})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CurrentIndex)

	// A later login refreshes the upstream token used for submission.
	sess2 := sampleSession("up-2")
	snap, err = f.svc.Submit(ctx, sess2)
	require.NoError(t, err)
	assert.Equal(t, attempt.StateSubmitted, snap.State)

	require.Equal(t, 1, f.backend.submitCount())
	assert.Equal(t, "up-2", f.backend.tokens[0])
	assert.Equal(t, []model.SubmittedAnswer{
		{QuestionID: "q0", SelectedOptionNumber: 1},
		{QuestionID: "q1", SelectedOptionNumber: 2},
		{QuestionID: "q2", SelectedOptionNumber: 3},
	}, f.backend.submits[0])

	logs := f.queuedLogs(t)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.Equal(t, model.SubmissionTriggerManual, logs[0].Trigger)
	assert.Equal(t, 3, logs[0].Answered)
	assert.Equal(t, "c-1", logs[0].CandidateID)

	assert.False(t, f.mr.Exists(config.CacheKey.AttemptMetaKey("c-1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Submissions.WithLabelValues("manual", "success")))

	idx := 0
	_, err = f.svc.Answer(ctx, sess, model.SetAnswerRequest{QuestionIndex: &idx, OptionID: "q0-o2"})
	assert.ErrorIs(t, err, ErrNoActiveAttempt)

	f.backend.setStatus(model.CandidateStatusSubmitted)
	_, err = f.svc.Submit(ctx, sess)
	assert.ErrorIs(t, err, attempt.ErrSubmitted)
	_, err = f.svc.Start(ctx, sess)
	assert.ErrorIs(t, err, attempt.ErrSubmitted)
	assert.Equal(t, 1, f.backend.submitCount())
}

func TestSubmitFailureIsLoggedAndRetryable(t *testing.T) {
	f := newAttemptFixture(t, testConfig(), 1, 600)
	sess := sampleSession("up-1")
	ctx := context.Background()

	_, err := f.svc.Start(ctx, sess)
	require.NoError(t, err)
	answerAll(t, f.svc, sess, 1)

	f.backend.mu.Lock()
	f.backend.submitErr = &backend.Error{Status: 500, Message: "boom"}
	f.backend.mu.Unlock()

	_, err = f.svc.Submit(ctx, sess)
	var be *backend.Error
	require.True(t, errors.As(err, &be))

	snap, err := f.svc.State(sess)
	require.NoError(t, err)
	assert.Equal(t, attempt.StateInProgress, snap.State)
	assert.Equal(t, 1, snap.AnsweredCount)
	assert.NotEmpty(t, snap.LastError)
	assert.True(t, f.mr.Exists(config.CacheKey.AttemptMetaKey("c-1")))

	f.backend.mu.Lock()
	f.backend.submitErr = nil
	f.backend.mu.Unlock()

	_, err = f.svc.Submit(ctx, sess)
	require.NoError(t, err)

	logs := f.queuedLogs(t)
	require.Len(t, logs, 2)
	assert.False(t, logs[0].Success)
	require.NotNil(t, logs[0].Error)
	assert.True(t, logs[1].Success)
}

func TestExpiryForcesOneSubmission(t *testing.T) {
	cfg := testConfig()
	cfg.TickInterval = time.Millisecond
	f := newAttemptFixture(t, cfg, 4, 1)
	sess := sampleSession("up-1")
	ctx := context.Background()

	_, err := f.svc.Start(ctx, sess)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.backend.submitCount() == 1 && f.liveCount() == 0
	}, 2*time.Second, 5*time.Millisecond, "attempt was not submitted on expiry")

	assert.Equal(t, 1, f.backend.submitCount())
	assert.Empty(t, f.backend.submits[0])

	logs := f.queuedLogs(t)
	require.Len(t, logs, 1)
	assert.Equal(t, model.SubmissionTriggerForced, logs[0].Trigger)
	assert.Equal(t, 0, logs[0].Answered)
	assert.Equal(t, 4, logs[0].Total)
}

func TestStartResumesDraft(t *testing.T) {
	f := newAttemptFixture(t, testConfig(), 3, 600)
	sess := sampleSession("up-1")
	ctx := context.Background()

	first, err := f.svc.Start(ctx, sess)
	require.NoError(t, err)
	idx := 1
	_, err = f.svc.Answer(ctx, sess, model.SetAnswerRequest{QuestionIndex: &idx, OptionID: "q1-o4"})
	require.NoError(t, err)

	again, err := f.svc.Start(ctx, sess)
	require.NoError(t, err)
	assert.True(t, again.Resumed)
	assert.Equal(t, first.State.AttemptID, again.State.AttemptID)

	f.svc.End("c-1")
	_, err = f.svc.State(sess)
	assert.ErrorIs(t, err, ErrNoActiveAttempt)

	// A changed schedule does not alter the duration of a begun attempt.
	f.backend.schedule.DurationSeconds = 60
	restored, err := f.svc.Start(ctx, sess)
	require.NoError(t, err)
	assert.True(t, restored.Resumed)
	assert.Equal(t, 600, restored.State.DurationSeconds)
	assert.Equal(t, first.State.AttemptID, restored.State.AttemptID)
	require.Len(t, restored.State.Answers, 1)
	assert.Equal(t, "q1-o4", restored.State.Answers[0].SelectedOptionID)
}

func TestOperationsWithoutAttempt(t *testing.T) {
	f := newAttemptFixture(t, testConfig(), 1, 60)
	sess := sampleSession("up-1")

	_, err := f.svc.State(sess)
	assert.ErrorIs(t, err, ErrNoActiveAttempt)
	_, err = f.svc.Navigate(sess, model.NavigateRequest{Action: model.NavigateNext})
	assert.ErrorIs(t, err, ErrNoActiveAttempt)
	_, err = f.svc.Submit(context.Background(), sess)
	assert.ErrorIs(t, err, ErrNoActiveAttempt)
	idx := 0
	_, err = f.svc.Answer(context.Background(), sess, model.SetAnswerRequest{QuestionIndex: &idx, OptionID: "x"})
	assert.ErrorIs(t, err, ErrNoActiveAttempt)
}
