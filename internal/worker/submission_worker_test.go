package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-gateway/internal/config"
	"github.com/stemsi/cbt-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	batchErr error
	failFor  map[uuid.UUID]bool
	batches  [][]model.SubmissionLog
	singles  []model.SubmissionLog
}

func (f *fakeWriter) InsertBatch(_ context.Context, logs []model.SubmissionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batchErr != nil {
		return f.batchErr
	}
	f.batches = append(f.batches, append([]model.SubmissionLog(nil), logs...))
	return nil
}

func (f *fakeWriter) Insert(_ context.Context, l model.SubmissionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[l.AttemptID] {
		return errors.New("constraint violation")
	}
	f.singles = append(f.singles, l)
	return nil
}

func (f *fakeWriter) persisted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.singles)
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func newTestWorker(t *testing.T, w SubmissionWriter) (*SubmissionWorker, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	worker := NewSubmissionWorker(w, rdb, zerolog.Nop())
	worker.pollTimeout = 50 * time.Millisecond
	worker.batchTimeout = 20 * time.Millisecond
	return worker, mr, rdb
}

func pushLog(t *testing.T, rdb *redis.Client, l model.SubmissionLog) {
	t.Helper()
	raw, err := json.Marshal(l)
	require.NoError(t, err)
	require.NoError(t, rdb.RPush(context.Background(), config.WorkerKey.PersistSubmissionsQueue, raw).Err())
}

func TestWorkerPersistsQueuedLogs(t *testing.T) {
	writer := &fakeWriter{}
	worker, mr, rdb := newTestWorker(t, writer)

	for i := 0; i < 3; i++ {
		pushLog(t, rdb, model.SubmissionLog{AttemptID: uuid.New(), CandidateID: "c-1", Trigger: model.SubmissionTriggerManual, Success: true})
	}
	require.NoError(t, rdb.RPush(context.Background(), config.WorkerKey.PersistSubmissionsQueue, "{not json").Err())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return !mr.Exists(config.WorkerKey.PersistSubmissionsQueue)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	assert.Equal(t, 3, writer.persisted())
	dead, err := mr.List(config.WorkerKey.DeadSubmissionsQueue)
	require.NoError(t, err)
	assert.Equal(t, []string{"{not json"}, dead)
}

func TestFlushFallsBackAndRequeues(t *testing.T) {
	bad := uuid.New()
	writer := &fakeWriter{batchErr: errors.New("deadlock detected"), failFor: map[uuid.UUID]bool{bad: true}}
	worker, mr, _ := newTestWorker(t, writer)

	batch := []model.SubmissionLog{
		{AttemptID: uuid.New(), CandidateID: "c-1", Trigger: model.SubmissionTriggerForced},
		{AttemptID: bad, CandidateID: "c-2", Trigger: model.SubmissionTriggerManual},
	}
	worker.flushSafe(context.Background(), batch)

	assert.Len(t, writer.singles, 1)
	items, err := mr.List(config.WorkerKey.PersistSubmissionsQueue)
	require.NoError(t, err)
	require.Len(t, items, 1)

	var requeued model.SubmissionLog
	require.NoError(t, json.Unmarshal([]byte(items[0]), &requeued))
	assert.Equal(t, bad, requeued.AttemptID)
	assert.Equal(t, 1, requeued.Retries)
}

func TestFlushDeadLettersExhaustedRows(t *testing.T) {
	bad := uuid.New()
	writer := &fakeWriter{batchErr: errors.New("deadlock detected"), failFor: map[uuid.UUID]bool{bad: true}}
	worker, mr, _ := newTestWorker(t, writer)

	worker.flushSafe(context.Background(), []model.SubmissionLog{
		{AttemptID: bad, CandidateID: "c-2", Trigger: model.SubmissionTriggerManual, Retries: SubmissionMaxRetries},
	})

	assert.False(t, mr.Exists(config.WorkerKey.PersistSubmissionsQueue))
	items, err := mr.List(config.WorkerKey.DeadSubmissionsQueue)
	require.NoError(t, err)
	require.Len(t, items, 1)

	var dead model.SubmissionLog
	require.NoError(t, json.Unmarshal([]byte(items[0]), &dead))
	assert.Equal(t, bad, dead.AttemptID)
	assert.Equal(t, SubmissionMaxRetries+1, dead.Retries)
}
