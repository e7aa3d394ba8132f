package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-gateway/internal/attempt"
	"github.com/stemsi/cbt-gateway/internal/backend"
	"github.com/stemsi/cbt-gateway/internal/config"
	"github.com/stemsi/cbt-gateway/internal/logger"
	"github.com/stemsi/cbt-gateway/internal/model"
	"golang.org/x/term"
)

func main() {
	cfg := config.Load()

	var (
		backendURL string
		username   string
		localized  bool
	)
	flag.StringVar(&backendURL, "backend", cfg.BackendURL, "Base URL of the certification backend")
	flag.StringVar(&username, "user", "", "Candidate username")
	flag.BoolVar(&localized, "localized", false, "Show localized question text when available")
	flag.Parse()

	log := logger.SetupTo(os.Stderr, getLevel(cfg.LogLevel), "pretty")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	in := bufio.NewReader(os.Stdin)
	t := &terminal{
		in:        in,
		out:       os.Stdout,
		client:    backend.NewClient(backendURL, cfg.BackendTimeout, log),
		localized: localized,
		log:       log,
	}
	if err := t.run(ctx, username); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// getLevel keeps the exam screen quiet unless debugging was asked for.
func getLevel(level string) string {
	if level == "debug" || level == "trace" {
		return level
	}
	return "warn"
}

type terminal struct {
	in        *bufio.Reader
	out       io.Writer
	client    *backend.Client
	localized bool
	log       zerolog.Logger

	// lastErr is the submission failure already shown to the candidate.
	lastErr string
}

func (t *terminal) run(ctx context.Context, username string) error {
	sess, err := t.login(ctx, username)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "Welcome, %s.\n", sess.Candidate.Name)

	flow := attempt.NewFlow()
	schedule, err := t.client.Schedule(ctx, sess.Token)
	if err != nil {
		return fmt.Errorf("fetch exam status: %w", err)
	}
	if err := flow.Resolve(schedule.Status); err != nil {
		return err
	}

	switch flow.Phase() {
	case attempt.PhasePending:
		fmt.Fprintln(t.out, "Your registration is still being reviewed.")
		return nil
	case attempt.PhaseRejected:
		fmt.Fprintln(t.out, "Your registration was rejected.")
		return nil
	case attempt.PhaseAbsent:
		fmt.Fprintln(t.out, "You were marked absent for this exam.")
		return nil
	case attempt.PhaseSubmitted:
		fmt.Fprintln(t.out, "You have already submitted this exam.")
		return nil
	}

	if err := flow.BeginCountdown(); err != nil {
		return err
	}
	if err := t.waitForStart(ctx, schedule); err != nil {
		return err
	}
	if err := flow.Start(); err != nil {
		return err
	}

	questions, err := t.client.Questions(ctx, sess.Token)
	if err != nil {
		return fmt.Errorf("fetch questions: %w", err)
	}

	a, err := attempt.New(attempt.Config{
		Questions:       questions,
		DurationSeconds: schedule.DurationSeconds,
		Reporter: attempt.ReporterFunc(func(ctx context.Context, s attempt.Submission) error {
			return t.client.Submit(ctx, sess.Token, s.Answers)
		}),
		Log: t.log,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.Run(runCtx)

	if err := t.loop(runCtx, a); err != nil {
		return err
	}
	if err := flow.Finish(); err != nil {
		return err
	}
	fmt.Fprintln(t.out, "Your answers were submitted. You may close this window.")
	return nil
}

func (t *terminal) login(ctx context.Context, username string) (*model.Session, error) {
	if username == "" {
		fmt.Fprint(t.out, "Username: ")
		line, err := t.in.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	fmt.Fprint(t.out, "Password: ")
	var password string
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(t.out)
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		password = string(raw)
	} else {
		line, err := t.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimSpace(line)
	}

	res, err := t.client.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			return nil, errors.New("invalid username or password")
		}
		return nil, err
	}
	return &model.Session{Token: res.Token, Candidate: res.Candidate, IssuedAt: time.Now()}, nil
}

func (t *terminal) waitForStart(ctx context.Context, schedule *model.ExamSchedule) error {
	if schedule.ScheduledAt == nil {
		return nil
	}
	for {
		left := time.Until(*schedule.ScheduledAt)
		if left <= 0 {
			fmt.Fprintln(t.out)
			return nil
		}
		fmt.Fprintf(t.out, "\rThe exam starts in %s ", formatSeconds(int(left.Seconds())+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (t *terminal) loop(ctx context.Context, a *attempt.Attempt) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := t.in.ReadString('\n')
			if err != nil {
				return
			}
			lines <- strings.TrimSpace(line)
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	t.render(a)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.Done():
			return nil
		case <-ticker.C:
			t.tick(a)
		case line, ok := <-lines:
			if !ok {
				return errors.New("input closed before the exam was submitted")
			}
			if err := t.command(ctx, a, line); err != nil {
				fmt.Fprintln(t.out, "!", err)
				t.lastErr = a.Snapshot().LastError
			}
			select {
			case <-a.Done():
				return nil
			default:
			}
			t.render(a)
		}
	}
}

func (t *terminal) command(ctx context.Context, a *attempt.Attempt, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "n":
		_, err := a.Next()
		return err
	case "p":
		_, err := a.Previous()
		return err
	case "g":
		if len(fields) < 2 {
			return errors.New("usage: g <question number>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("invalid question number %q", fields[1])
		}
		_, err = a.GoTo(n - 1)
		return err
	case "1", "2", "3", "4":
		ordinal, _ := strconv.Atoi(fields[0])
		snap := a.Snapshot()
		q := a.Questions()[snap.CurrentIndex]
		opt, ok := q.OptionByOrdinal(ordinal)
		if !ok {
			return attempt.ErrUnknownOption
		}
		_, err := a.SetAnswer(snap.CurrentIndex, opt.ID)
		return err
	case "s":
		_, err := a.Submit(ctx)
		return err
	case "h", "?":
		fmt.Fprintln(t.out, "1-4 answer  n next  p previous  g N go to  s submit")
		return nil
	}
	return fmt.Errorf("unknown command %q, type ? for help", fields[0])
}

func (t *terminal) render(a *attempt.Attempt) {
	snap := a.Snapshot()
	q := a.Questions()[snap.CurrentIndex]

	selected := ""
	for _, ans := range snap.Answers {
		if ans.QuestionIndex == snap.CurrentIndex {
			selected = ans.SelectedOptionID
		}
	}

	fmt.Fprintf(t.out, "\n[%s left] Question %d of %d, %d answered\n",
		formatSeconds(snap.RemainingSeconds), snap.CurrentIndex+1, snap.TotalQuestions, snap.AnsweredCount)
	fmt.Fprintln(t.out, t.text(q.PromptText, q.PromptTextLocalized))
	for _, o := range q.Options {
		mark := " "
		if o.ID == selected {
			mark = "*"
		}
		fmt.Fprintf(t.out, " %s %d) %s\n", mark, o.Ordinal, t.text(o.Text, o.TextLocalized))
	}
	if snap.CanSubmit {
		fmt.Fprintln(t.out, "All questions answered. Type s to submit.")
	}
	t.reportFailure(snap)
	t.prompt(snap)
}

// tick redraws the prompt with the remaining time. A failed submission, such
// as the one forced when time runs out, is reported once.
func (t *terminal) tick(a *attempt.Attempt) {
	snap := a.Snapshot()
	if t.reportFailure(snap) {
		t.prompt(snap)
		return
	}
	fmt.Fprint(t.out, "\r")
	t.prompt(snap)
}

func (t *terminal) reportFailure(snap attempt.Snapshot) bool {
	if snap.LastError == t.lastErr {
		return false
	}
	t.lastErr = snap.LastError
	if snap.LastError == "" {
		return false
	}
	fmt.Fprintf(t.out, "\nSubmission failed: %s\nType s to try again.\n", snap.LastError)
	return true
}

func (t *terminal) prompt(snap attempt.Snapshot) {
	fmt.Fprintf(t.out, "[%s left] > ", formatSeconds(snap.RemainingSeconds))
}

func (t *terminal) text(plain string, localized *string) string {
	if t.localized && localized != nil && *localized != "" {
		return *localized
	}
	return plain
}

func formatSeconds(s int) string {
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
