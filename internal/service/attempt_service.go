package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-gateway/internal/attempt"
	"github.com/stemsi/cbt-gateway/internal/backend"
	"github.com/stemsi/cbt-gateway/internal/config"
	"github.com/stemsi/cbt-gateway/internal/metrics"
	"github.com/stemsi/cbt-gateway/internal/model"
)

// Attempt service errors.
var (
	ErrNotVerified     = errors.New("candidate is not verified for this exam")
	ErrNotStarted      = errors.New("exam has not started yet")
	ErrNoActiveAttempt = errors.New("no active exam attempt")
)

// Backend is the part of the certification backend an attempt needs.
type Backend interface {
	Questions(ctx context.Context, token string) ([]model.Question, error)
	Schedule(ctx context.Context, token string) (*model.ExamSchedule, error)
	Submit(ctx context.Context, token string, answers []model.SubmittedAnswer) error
}

// ExamStatus is the candidate-facing exam flow position.
type ExamStatus struct {
	Phase           attempt.Phase       `json:"phase"`
	Schedule        *model.ExamSchedule `json:"schedule"`
	StartsInSeconds int                 `json:"starts_in_seconds,omitempty"`
	Attempt         *attempt.Snapshot   `json:"attempt,omitempty"`
}

// StartResult is returned when an attempt is started or resumed.
type StartResult struct {
	Questions []model.Question `json:"questions"`
	State     attempt.Snapshot `json:"state"`
	Resumed   bool             `json:"resumed"`
}

type liveAttempt struct {
	attempt     *attempt.Attempt
	candidateID string
	// ended is closed when End stops the attempt.
	ended chan struct{}

	mu    sync.Mutex
	token string
}

func (l *liveAttempt) upstreamToken() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token
}

func (l *liveAttempt) setToken(token string) {
	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
}

// Watch follows one attempt for a stream without refreshing its upstream
// token.
type Watch struct {
	live *liveAttempt
}

// Done is closed once the attempt is submitted.
func (w *Watch) Done() <-chan struct{} { return w.live.attempt.Done() }

// Ended is closed when the attempt is stopped by a logout.
func (w *Watch) Ended() <-chan struct{} { return w.live.ended }

// Snapshot returns the current view of the attempt.
func (w *Watch) Snapshot() attempt.Snapshot { return w.live.attempt.Snapshot() }

// AttemptService runs one live attempt per candidate. Each attempt owns a
// countdown goroutine that forces submission on expiry; answers are autosaved
// so an attempt survives reconnects and gateway restarts. A submitted attempt
// is released, after which the backend status alone decides the phase.
type AttemptService struct {
	cfg     *config.Config
	backend Backend
	drafts  *DraftStore
	rdb     *redis.Client
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	live map[string]*liveAttempt
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	cfg *config.Config,
	backend Backend,
	drafts *DraftStore,
	rdb *redis.Client,
	m *metrics.Metrics,
	log zerolog.Logger,
) *AttemptService {
	ctx, cancel := context.WithCancel(context.Background())
	return &AttemptService{
		cfg:     cfg,
		backend: backend,
		drafts:  drafts,
		rdb:     rdb,
		metrics: m,
		log:     log.With().Str("component", "attempt_service").Logger(),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		live:    make(map[string]*liveAttempt),
	}
}

// Status resolves the exam flow phase from the backend status and the live
// attempt, if any.
func (s *AttemptService) Status(ctx context.Context, sess *model.Session) (*ExamStatus, error) {
	schedule, err := s.backend.Schedule(ctx, sess.Token)
	if err != nil {
		return nil, upstreamError("fetch schedule", err)
	}

	flow := attempt.NewFlow()
	if err := flow.Resolve(schedule.Status); err != nil {
		return nil, err
	}
	status := &ExamStatus{Schedule: schedule}

	if flow.Phase() == attempt.PhaseVerified {
		live := s.lookup(sess)
		switch {
		case schedule.ScheduledAt != nil && schedule.ScheduledAt.After(s.now()):
			_ = flow.BeginCountdown()
			status.StartsInSeconds = int(schedule.ScheduledAt.Sub(s.now()).Seconds())
		case live != nil:
			_ = flow.BeginCountdown()
			_ = flow.Start()
			snap := live.attempt.Snapshot()
			status.Attempt = &snap
			if snap.State == attempt.StateSubmitted {
				_ = flow.Finish()
			}
		}
	}

	status.Phase = flow.Phase()
	return status, nil
}

// Start fetches the questions and starts the candidate's attempt. A running
// attempt or an autosaved draft is resumed instead.
func (s *AttemptService) Start(ctx context.Context, sess *model.Session) (*StartResult, error) {
	if live := s.lookup(sess); live != nil && !live.attempt.Model().Submitted {
		return &StartResult{Questions: live.attempt.Questions(), State: live.attempt.Snapshot(), Resumed: true}, nil
	}

	schedule, err := s.backend.Schedule(ctx, sess.Token)
	if err != nil {
		return nil, upstreamError("fetch schedule", err)
	}
	switch schedule.Status {
	case model.CandidateStatusVerified:
	case model.CandidateStatusSubmitted:
		return nil, attempt.ErrSubmitted
	default:
		return nil, ErrNotVerified
	}
	if schedule.ScheduledAt != nil && schedule.ScheduledAt.After(s.now()) {
		return nil, ErrNotStarted
	}

	questions, err := s.backend.Questions(ctx, sess.Token)
	if err != nil {
		return nil, upstreamError("fetch questions", err)
	}
	if schedule.QuestionCount > 0 && schedule.QuestionCount != len(questions) {
		return nil, fmt.Errorf("fetch questions: %w: schedule lists %d questions, got %d",
			backend.ErrUnexpectedResponse, schedule.QuestionCount, len(questions))
	}

	candidateID := sess.Candidate.ID
	draft, err := s.drafts.Load(ctx, candidateID)
	if err != nil {
		s.log.Warn().Err(err).Str("candidate_id", candidateID).Msg("Ignoring unreadable draft")
		draft = nil
	}

	live := &liveAttempt{candidateID: candidateID, token: sess.Token, ended: make(chan struct{})}
	cfg := attempt.Config{
		Questions:       questions,
		DurationSeconds: schedule.DurationSeconds,
		Reporter:        s.reporter(live),
		TickInterval:    s.cfg.TickInterval,
		Now:             s.now,
		Log:             s.log.With().Str("candidate_id", candidateID).Logger(),
	}
	if draft != nil {
		cfg.ID = draft.AttemptID
		cfg.StartedAt = draft.StartedAt
		cfg.Answers = draft.Answers
		// The duration is fixed when the attempt begins.
		if draft.DurationSeconds > 0 {
			cfg.DurationSeconds = draft.DurationSeconds
		}
	} else {
		cfg.ID = uuid.New()
		cfg.StartedAt = s.now()
	}

	a, err := attempt.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("build attempt: %w", err)
	}
	live.attempt = a

	s.mu.Lock()
	if existing, ok := s.live[candidateID]; ok && !existing.attempt.Model().Submitted {
		// A concurrent start won the race.
		s.mu.Unlock()
		return &StartResult{Questions: existing.attempt.Questions(), State: existing.attempt.Snapshot(), Resumed: true}, nil
	}
	s.live[candidateID] = live
	s.mu.Unlock()

	if draft == nil {
		if err := s.drafts.Begin(ctx, candidateID, a.Model()); err != nil {
			s.log.Warn().Err(err).Str("candidate_id", candidateID).Msg("Failed to persist attempt draft")
		}
	}

	s.metrics.LiveAttempts.Inc()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.metrics.LiveAttempts.Dec()
		a.Run(s.ctx)
		select {
		case <-a.Done():
			s.release(live)
		default:
		}
	}()

	s.log.Info().
		Str("candidate_id", candidateID).
		Str("attempt_id", a.ID().String()).
		Bool("resumed", draft != nil).
		Msg("Attempt started")

	return &StartResult{Questions: questions, State: a.Snapshot(), Resumed: draft != nil}, nil
}

// State returns the snapshot of the candidate's attempt.
func (s *AttemptService) State(sess *model.Session) (*attempt.Snapshot, error) {
	live := s.lookup(sess)
	if live == nil {
		return nil, ErrNoActiveAttempt
	}
	snap := live.attempt.Snapshot()
	return &snap, nil
}

// Watch returns a handle on the candidate's attempt for streaming.
func (s *AttemptService) Watch(sess *model.Session) (*Watch, error) {
	live := s.lookup(sess)
	if live == nil {
		return nil, ErrNoActiveAttempt
	}
	return &Watch{live: live}, nil
}

// Questions returns the ordered questions of the candidate's attempt.
func (s *AttemptService) Questions(sess *model.Session) ([]model.Question, error) {
	live := s.lookup(sess)
	if live == nil {
		return nil, ErrNoActiveAttempt
	}
	return live.attempt.Questions(), nil
}

// Answer records an answer and autosaves it.
func (s *AttemptService) Answer(ctx context.Context, sess *model.Session, req model.SetAnswerRequest) (*attempt.Snapshot, error) {
	live := s.lookup(sess)
	if live == nil {
		return nil, ErrNoActiveAttempt
	}

	index := 0
	if req.QuestionIndex != nil {
		index = *req.QuestionIndex
	}
	ans, err := live.attempt.SetAnswer(index, req.OptionID)
	if err != nil {
		return nil, err
	}

	if err := s.drafts.SaveAnswer(ctx, live.candidateID, ans); err != nil {
		s.log.Warn().Err(err).Str("candidate_id", live.candidateID).Msg("Failed to autosave answer")
	}

	snap := live.attempt.Snapshot()
	return &snap, nil
}

// Navigate moves the candidate between questions.
func (s *AttemptService) Navigate(sess *model.Session, req model.NavigateRequest) (*attempt.Snapshot, error) {
	live := s.lookup(sess)
	if live == nil {
		return nil, ErrNoActiveAttempt
	}

	var err error
	switch req.Action {
	case model.NavigateNext:
		_, err = live.attempt.Next()
	case model.NavigatePrevious:
		_, err = live.attempt.Previous()
	case model.NavigateGoTo:
		_, err = live.attempt.GoTo(req.Index)
	default:
		return nil, fmt.Errorf("unknown navigate action %q", req.Action)
	}
	if err != nil {
		return nil, err
	}

	snap := live.attempt.Snapshot()
	return &snap, nil
}

// Submit is the candidate's manual submission. Without a live attempt the
// backend status tells an already submitted exam apart from one never started.
func (s *AttemptService) Submit(ctx context.Context, sess *model.Session) (*attempt.Snapshot, error) {
	live := s.lookup(sess)
	if live == nil {
		schedule, err := s.backend.Schedule(ctx, sess.Token)
		if err == nil && schedule.Status == model.CandidateStatusSubmitted {
			return nil, attempt.ErrSubmitted
		}
		return nil, ErrNoActiveAttempt
	}
	if _, err := live.attempt.Submit(ctx); err != nil {
		return nil, err
	}
	s.release(live)
	snap := live.attempt.Snapshot()
	return &snap, nil
}

// End stops and forgets the candidate's attempt. The draft stays in Redis so
// a later Start resumes it with the time already spent.
func (s *AttemptService) End(candidateID string) {
	s.mu.Lock()
	live, ok := s.live[candidateID]
	delete(s.live, candidateID)
	s.mu.Unlock()

	if ok {
		live.attempt.Stop()
		close(live.ended)
	}
}

// release forgets a submitted attempt unless a newer one replaced it.
func (s *AttemptService) release(live *liveAttempt) {
	s.mu.Lock()
	if s.live[live.candidateID] == live {
		delete(s.live, live.candidateID)
	}
	s.mu.Unlock()
}

// Close stops every countdown and waits for the goroutines to exit.
func (s *AttemptService) Close() {
	s.cancel()
	s.wg.Wait()
}

// lookup returns the live attempt of the session's candidate and refreshes
// its upstream token, which changes on every login.
func (s *AttemptService) lookup(sess *model.Session) *liveAttempt {
	s.mu.Lock()
	live, ok := s.live[sess.Candidate.ID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	live.setToken(sess.Token)
	return live
}

func (s *AttemptService) reporter(live *liveAttempt) attempt.Reporter {
	return attempt.ReporterFunc(func(ctx context.Context, sub attempt.Submission) error {
		err := s.backend.Submit(ctx, live.upstreamToken(), sub.Answers)

		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		s.metrics.Submissions.WithLabelValues(string(sub.Trigger), outcome).Inc()

		logCtx := context.WithoutCancel(ctx)
		s.enqueueLog(logCtx, live.candidateID, sub, err)

		if err != nil {
			return upstreamError("submit answers", err)
		}
		if cerr := s.drafts.Clear(logCtx, live.candidateID); cerr != nil {
			s.log.Warn().Err(cerr).Str("candidate_id", live.candidateID).Msg("Failed to clear draft")
		}
		return nil
	})
}

func (s *AttemptService) enqueueLog(ctx context.Context, candidateID string, sub attempt.Submission, submitErr error) {
	entry := model.SubmissionLog{
		AttemptID:   sub.AttemptID,
		CandidateID: candidateID,
		Trigger:     sub.Trigger,
		Answered:    sub.Answered,
		Total:       sub.Total,
		Success:     submitErr == nil,
		CreatedAt:   s.now(),
	}
	if submitErr != nil {
		msg := submitErr.Error()
		entry.Error = &msg
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal submission log")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, raw).Err(); err != nil {
		s.log.Error().Err(err).Str("candidate_id", candidateID).Msg("Failed to queue submission log")
	}
}

// upstreamError keeps backend failures matchable while adding the step.
func upstreamError(step string, err error) error {
	var be *backend.Error
	if errors.As(err, &be) || errors.Is(err, backend.ErrUnexpectedResponse) {
		return fmt.Errorf("%s: %w", step, err)
	}
	return fmt.Errorf("%s: %w: %v", step, ErrBackendUnavailable, err)
}
