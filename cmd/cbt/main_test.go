package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-gateway/internal/attempt"
	"github.com/stemsi/cbt-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type switchReporter struct {
	mu  sync.Mutex
	err error
}

func (r *switchReporter) Report(_ context.Context, _ attempt.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *switchReporter) set(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func newTerminalAttempt(t *testing.T, questions, seconds int, rep attempt.Reporter) *attempt.Attempt {
	t.Helper()
	qs := make([]model.Question, questions)
	for i := range qs {
		localized := fmt.Sprintf("soal %d", i+1)
		opts := make([]model.Option, model.OptionsPerQuestion)
		for o := range opts {
			opts[o] = model.Option{ID: fmt.Sprintf("q%d-o%d", i, o+1), Ordinal: o + 1, Text: fmt.Sprintf("choice %d", o+1)}
		}
		qs[i] = model.Question{ID: fmt.Sprintf("q%d", i), PromptText: fmt.Sprintf("question %d", i+1), PromptTextLocalized: &localized, Options: opts}
	}
	a, err := attempt.New(attempt.Config{Questions: qs, DurationSeconds: seconds, Reporter: rep, Log: zerolog.Nop()})
	require.NoError(t, err)
	return a
}

func TestCommandsAndRender(t *testing.T) {
	var out bytes.Buffer
	term := &terminal{out: &out, log: zerolog.Nop()}
	a := newTerminalAttempt(t, 2, 90, &switchReporter{})
	ctx := context.Background()

	require.NoError(t, term.command(ctx, a, "2"))
	term.render(a)
	assert.Contains(t, out.String(), "[01:30 left] Question 1 of 2, 1 answered")
	assert.Contains(t, out.String(), "question 1")
	assert.Contains(t, out.String(), " * 2) choice 2")

	assert.ErrorIs(t, term.command(ctx, a, "s"), attempt.ErrIncomplete)
	assert.Error(t, term.command(ctx, a, "g two"))
	assert.Error(t, term.command(ctx, a, "x"))

	require.NoError(t, term.command(ctx, a, "g 2"))
	require.NoError(t, term.command(ctx, a, "4"))
	out.Reset()
	term.localized = true
	term.render(a)
	assert.Contains(t, out.String(), "soal 2")
	assert.Contains(t, out.String(), "Type s to submit.")

	require.NoError(t, term.command(ctx, a, "s"))
	select {
	case <-a.Done():
	default:
		t.Fatal("attempt not submitted")
	}
}

func TestTickReportsFailedForcedSubmission(t *testing.T) {
	var out bytes.Buffer
	term := &terminal{out: &out, log: zerolog.Nop()}
	rep := &switchReporter{err: errors.New("backend unavailable")}
	a := newTerminalAttempt(t, 3, 1, rep)
	ctx := context.Background()

	// Time runs out and the forced submission fails.
	a.Tick(ctx)
	term.tick(a)
	term.tick(a)

	assert.Equal(t, 1, strings.Count(out.String(), "Submission failed"))
	assert.Contains(t, out.String(), "backend unavailable")
	assert.Contains(t, out.String(), "[00:00 left] > ")

	// The candidate retries with partial answers once time is up.
	rep.set(nil)
	require.NoError(t, term.command(ctx, a, "s"))
	select {
	case <-a.Done():
	default:
		t.Fatal("retry did not submit")
	}
}
