package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-gateway/internal/config"
	"github.com/stemsi/cbt-gateway/internal/model"
)

const (
	SubmissionBatchSize    = 50
	SubmissionBatchTimeout = 2 * time.Second
	SubmissionPollTimeout  = 1 * time.Second
	// SubmissionMaxRetries bounds requeues before a row is dead-lettered.
	SubmissionMaxRetries = 5
)

// SubmissionWriter persists submission logs.
type SubmissionWriter interface {
	InsertBatch(ctx context.Context, logs []model.SubmissionLog) error
	Insert(ctx context.Context, l model.SubmissionLog) error
}

// SubmissionWorker drains persist_submissions_queue into PostgreSQL in batches.
type SubmissionWorker struct {
	writer SubmissionWriter
	rdb    *redis.Client
	log    zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
	pollTimeout  time.Duration
}

// NewSubmissionWorker creates a new SubmissionWorker.
func NewSubmissionWorker(writer SubmissionWriter, rdb *redis.Client, log zerolog.Logger) *SubmissionWorker {
	return &SubmissionWorker{
		writer:       writer,
		rdb:          rdb,
		log:          log.With().Str("component", "submission_worker").Logger(),
		batchSize:    SubmissionBatchSize,
		batchTimeout: SubmissionBatchTimeout,
		pollTimeout:  SubmissionPollTimeout,
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

// Start runs until ctx is cancelled, then flushes what it holds. Call in a
// goroutine.
func (w *SubmissionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("SubmissionWorker started")

	batch := make([]model.SubmissionLog, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, w.pollTimeout, config.WorkerKey.PersistSubmissionsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var l model.SubmissionLog
			if err := json.Unmarshal([]byte(item[1]), &l); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload, dead-lettering")
				w.deadLetter(ctx, item[1])
				continue
			}

			batch = append(batch, l)
		}
	}
}

// ----------------------------------------------------------------
// Batch insert with per-row fallback
// ----------------------------------------------------------------

func (w *SubmissionWorker) flushSafe(ctx context.Context, batch []model.SubmissionLog) {
	if len(batch) == 0 {
		return
	}

	err := w.writer.InsertBatch(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Submission logs persisted")
		return
	}
	w.log.Warn().Err(err).Msg("bulk insert failed, using fallback")

	for _, l := range batch {
		if err := w.writer.Insert(ctx, l); err != nil {
			w.requeue(ctx, l, err)
		}
	}
}

// requeue puts a failed row back on the queue until it has used up its
// retries, then moves it to the dead-letter queue.
func (w *SubmissionWorker) requeue(ctx context.Context, l model.SubmissionLog, cause error) {
	l.Retries++
	queue := config.WorkerKey.PersistSubmissionsQueue
	if l.Retries > SubmissionMaxRetries {
		queue = config.WorkerKey.DeadSubmissionsQueue
	}

	logEvt := w.log.Error().Err(cause).
		Str("attempt_id", l.AttemptID.String()).
		Int("retries", l.Retries)
	if queue == config.WorkerKey.DeadSubmissionsQueue {
		logEvt.Msg("single insert failed, dead-lettering")
	} else {
		logEvt.Msg("single insert failed, requeueing")
	}

	raw, err := json.Marshal(l)
	if err != nil {
		w.log.Error().Err(err).Str("attempt_id", l.AttemptID.String()).Msg("Failed to marshal submission log")
		return
	}
	if err := w.rdb.RPush(ctx, queue, raw).Err(); err != nil {
		w.log.Error().Err(err).Str("attempt_id", l.AttemptID.String()).Str("queue", queue).Msg("Failed to requeue submission log")
	}
}

func (w *SubmissionWorker) deadLetter(ctx context.Context, raw string) {
	// The payload is already off the queue, so shutdown must not drop it.
	if err := w.rdb.RPush(context.WithoutCancel(ctx), config.WorkerKey.DeadSubmissionsQueue, raw).Err(); err != nil {
		w.log.Error().Err(err).Msg("Failed to dead-letter payload")
	}
}
