package attempt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-gateway/internal/model"
)

// Domain Errors
var (
	ErrNoQuestions        = errors.New("attempt has no questions")
	ErrInvalidDuration    = errors.New("attempt duration must be positive")
	ErrNoReporter         = errors.New("attempt has no reporter")
	ErrIncomplete         = errors.New("all questions must be answered before submitting")
	ErrSubmitted          = errors.New("attempt already submitted")
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	ErrQuestionOutOfRange = errors.New("question index out of range")
	ErrUnknownOption      = errors.New("option does not belong to question")
)

// DefaultTickInterval is the production countdown resolution.
const DefaultTickInterval = time.Second

// State enumerates the lifecycle of a running attempt.
type State string

const (
	StateInProgress State = "IN_PROGRESS"
	StateSubmitting State = "SUBMITTING"
	StateSubmitted  State = "SUBMITTED"
)

// Config describes a new or restored attempt.
type Config struct {
	// ID of the attempt. A fresh one is generated when zero.
	ID              uuid.UUID
	Questions       []model.Question
	DurationSeconds int
	// StartedAt of the attempt. Zero means now. A past value resumes the
	// attempt with the elapsed time already spent.
	StartedAt time.Time
	// Answers restored from a draft.
	Answers      []model.Answer
	Reporter     Reporter
	TickInterval time.Duration
	Now          func() time.Time
	Log          zerolog.Logger
}

// Snapshot is a point-in-time view of an attempt.
type Snapshot struct {
	AttemptID        uuid.UUID      `json:"attempt_id"`
	State            State          `json:"state"`
	StartedAt        time.Time      `json:"started_at"`
	DurationSeconds  int            `json:"duration_seconds"`
	RemainingSeconds int            `json:"remaining_seconds"`
	Expired          bool           `json:"expired"`
	CurrentIndex     int            `json:"current_index"`
	TotalQuestions   int            `json:"total_questions"`
	AnsweredCount    int            `json:"answered_count"`
	CanSubmit        bool           `json:"can_submit"`
	Answers          []model.Answer `json:"answers"`
	LastError        string         `json:"last_error,omitempty"`
}

// Attempt is one timed exam run: countdown, answer ledger, navigation and a
// single-shot submission path shared by the candidate and the timer.
type Attempt struct {
	mu sync.Mutex

	id        uuid.UUID
	startedAt time.Time
	duration  int
	questions []model.Question

	ledger    *Ledger
	nav       *Navigator
	countdown *Countdown
	gate      Gate
	reporter  Reporter
	interval  time.Duration
	log       zerolog.Logger

	state          State
	forcedTriggers int
	lastErr        error
	cancel         context.CancelFunc
	done           chan struct{}
}

// New validates cfg and builds an attempt ready to Run.
func New(cfg Config) (*Attempt, error) {
	if len(cfg.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	if cfg.DurationSeconds <= 0 {
		return nil, ErrInvalidDuration
	}
	if cfg.Reporter == nil {
		return nil, ErrNoReporter
	}

	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	id := cfg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = now()
	}
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	remaining := cfg.DurationSeconds - int(now().Sub(startedAt)/time.Second)
	if remaining > cfg.DurationSeconds {
		remaining = cfg.DurationSeconds
	}

	a := &Attempt{
		id:        id,
		startedAt: startedAt,
		duration:  cfg.DurationSeconds,
		questions: cfg.Questions,
		ledger:    NewLedger(),
		nav:       NewNavigator(len(cfg.Questions)),
		countdown: NewCountdown(remaining),
		reporter:  cfg.Reporter,
		interval:  interval,
		log:       cfg.Log.With().Str("attempt_id", id.String()).Logger(),
		state:     StateInProgress,
		done:      make(chan struct{}),
	}

	for _, ans := range cfg.Answers {
		// Question id and ordinal come from the current questions, not the draft.
		resolved, err := a.resolve(ans.QuestionIndex, ans.SelectedOptionID)
		if err != nil {
			a.log.Warn().Err(err).Int("question_index", ans.QuestionIndex).Msg("Dropping restored answer")
			continue
		}
		a.ledger.Set(resolved)
	}

	return a, nil
}

// ID returns the attempt id.
func (a *Attempt) ID() uuid.UUID { return a.id }

// Questions returns the ordered questions of the attempt.
func (a *Attempt) Questions() []model.Question { return a.questions }

// Done is closed once the attempt is submitted.
func (a *Attempt) Done() <-chan struct{} { return a.done }

// Model returns the attempt as a data record.
func (a *Attempt) Model() model.ExamAttempt {
	a.mu.Lock()
	defer a.mu.Unlock()
	return model.ExamAttempt{
		AttemptID:       a.id,
		DurationSeconds: a.duration,
		StartedAt:       a.startedAt,
		Questions:       a.questions,
		Submitted:       a.state == StateSubmitted,
	}
}

// Run drives the countdown until it expires, the attempt is submitted, Stop is
// called or ctx is cancelled. Expiry forces a submission exactly once.
func (a *Attempt) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	if a.countdown.Remaining() == 0 {
		a.Tick(ctx)
		return
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case <-ticker.C:
			if a.Tick(ctx) == 0 {
				return
			}
		}
	}
}

// Stop cancels the recurring tick. The attempt keeps its answers.
func (a *Attempt) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Tick advances the countdown by one second and forces submission when it
// reaches zero. It returns the remaining seconds.
func (a *Attempt) Tick(ctx context.Context) int {
	a.mu.Lock()
	if a.state == StateSubmitted {
		a.mu.Unlock()
		return a.countdown.Remaining()
	}
	a.mu.Unlock()

	remaining, fired := a.countdown.Tick()
	if fired {
		a.expire(ctx)
	}
	return remaining
}

func (a *Attempt) expire(ctx context.Context) {
	a.mu.Lock()
	a.forcedTriggers++
	a.mu.Unlock()

	_, err := a.submit(ctx, model.SubmissionTriggerForced)
	switch {
	case err == nil:
		a.log.Info().Msg("Time is up, attempt submitted")
	case errors.Is(err, ErrSubmissionInFlight):
		a.log.Info().Msg("Time is up while a submission is in flight")
	case errors.Is(err, ErrSubmitted):
	default:
		a.log.Error().Err(err).Msg("Forced submission failed")
	}
}

// SetAnswer records optionID for the question at index, replacing any earlier
// choice. It does not move the navigator.
func (a *Attempt) SetAnswer(index int, optionID string) (model.Answer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateSubmitted {
		return model.Answer{}, ErrSubmitted
	}
	if a.gate.Busy() {
		return model.Answer{}, ErrSubmissionInFlight
	}

	ans, err := a.resolve(index, optionID)
	if err != nil {
		return model.Answer{}, err
	}
	a.ledger.Set(ans)
	return ans, nil
}

func (a *Attempt) resolve(index int, optionID string) (model.Answer, error) {
	if index < 0 || index >= len(a.questions) {
		return model.Answer{}, ErrQuestionOutOfRange
	}
	q := a.questions[index]
	opt, ok := q.Option(optionID)
	if !ok {
		return model.Answer{}, ErrUnknownOption
	}
	return model.Answer{
		QuestionIndex:         index,
		QuestionID:            q.ID,
		SelectedOptionID:      opt.ID,
		SelectedOptionOrdinal: opt.Ordinal,
	}, nil
}

// GoTo jumps to a question, clamped to the valid range.
func (a *Attempt) GoTo(index int) (int, error) {
	return a.navigate(func(n *Navigator) int { return n.GoTo(index) })
}

// Next moves to the following question.
func (a *Attempt) Next() (int, error) {
	return a.navigate((*Navigator).Next)
}

// Previous moves to the preceding question.
func (a *Attempt) Previous() (int, error) {
	return a.navigate((*Navigator).Previous)
}

func (a *Attempt) navigate(move func(*Navigator) int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateSubmitted {
		return a.nav.Current(), ErrSubmitted
	}
	return move(a.nav), nil
}

// CanSubmit reports whether a manual submission would be accepted right now.
func (a *Attempt) CanSubmit() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canSubmitLocked()
}

func (a *Attempt) canSubmitLocked() bool {
	return a.state == StateInProgress &&
		!a.gate.Busy() &&
		ManualAllowed(a.ledger.AnsweredCount(), len(a.questions), a.countdown.Expired())
}

// Submit is the candidate-initiated submission.
func (a *Attempt) Submit(ctx context.Context) (*model.SubmissionResult, error) {
	return a.submit(ctx, model.SubmissionTriggerManual)
}

func (a *Attempt) submit(ctx context.Context, trigger model.SubmissionTrigger) (*model.SubmissionResult, error) {
	a.mu.Lock()
	if a.state == StateSubmitted {
		a.mu.Unlock()
		return nil, ErrSubmitted
	}
	if trigger == model.SubmissionTriggerManual &&
		!ManualAllowed(a.ledger.AnsweredCount(), len(a.questions), a.countdown.Expired()) {
		a.mu.Unlock()
		return nil, ErrIncomplete
	}
	if !a.gate.Acquire() {
		a.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}

	a.state = StateSubmitting
	sub := Submission{
		AttemptID: a.id,
		Trigger:   trigger,
		Answers:   a.ledger.Payload(),
		Answered:  a.ledger.AnsweredCount(),
		Total:     len(a.questions),
	}
	a.mu.Unlock()

	// The outbound call runs without the lock so ticks and reads continue.
	err := a.reporter.Report(ctx, sub)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.gate.Release()

	if err != nil {
		a.state = StateInProgress
		a.lastErr = err
		a.log.Warn().Err(err).Str("trigger", string(trigger)).Msg("Submission failed")
		return nil, fmt.Errorf("submit answers: %w", err)
	}

	a.state = StateSubmitted
	a.lastErr = nil
	close(a.done)
	a.log.Info().
		Str("trigger", string(trigger)).
		Int("answered", sub.Answered).
		Int("total", sub.Total).
		Msg("Attempt submitted")
	return &model.SubmissionResult{Success: true}, nil
}

// ForcedTriggers counts how many times expiry forced a submission.
func (a *Attempt) ForcedTriggers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.forcedTriggers
}

// Snapshot returns the current view of the attempt.
func (a *Attempt) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		AttemptID:        a.id,
		State:            a.state,
		StartedAt:        a.startedAt,
		DurationSeconds:  a.duration,
		RemainingSeconds: a.countdown.Remaining(),
		Expired:          a.countdown.Expired(),
		CurrentIndex:     a.nav.Current(),
		TotalQuestions:   len(a.questions),
		AnsweredCount:    a.ledger.AnsweredCount(),
		CanSubmit:        a.canSubmitLocked(),
		Answers:          a.ledger.Ordered(),
	}
	if a.lastErr != nil {
		s.LastError = a.lastErr.Error()
	}
	return s
}
