package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/cbt-gateway/internal/config"
	"github.com/stemsi/cbt-gateway/internal/model"
)

// AttemptDraft is what survives a gateway restart or a reconnect: enough to
// rebuild the attempt with its original start time and answers.
type AttemptDraft struct {
	AttemptID       uuid.UUID
	StartedAt       time.Time
	DurationSeconds int
	Answers         []model.Answer
}

// DraftStore autosaves attempts in Redis.
type DraftStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDraftStore creates a new DraftStore.
func NewDraftStore(rdb *redis.Client, ttl time.Duration) *DraftStore {
	return &DraftStore{rdb: rdb, ttl: ttl}
}

// Begin records the header of a new attempt and drops any stale answers.
func (d *DraftStore) Begin(ctx context.Context, candidateID string, a model.ExamAttempt) error {
	metaKey := config.CacheKey.AttemptMetaKey(candidateID)
	answersKey := config.CacheKey.AttemptAnswersKey(candidateID)

	pipe := d.rdb.TxPipeline()
	pipe.Del(ctx, metaKey, answersKey)
	pipe.HSet(ctx, metaKey, map[string]interface{}{
		"attempt_id": a.AttemptID.String(),
		"started_at": a.StartedAt.Unix(),
		"duration":   a.DurationSeconds,
	})
	pipe.Expire(ctx, metaKey, d.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("begin draft: %w", err)
	}
	return nil
}

// SaveAnswer autosaves one answer, replacing the earlier one for its index.
func (d *DraftStore) SaveAnswer(ctx context.Context, candidateID string, ans model.Answer) error {
	raw, err := json.Marshal(ans)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}

	answersKey := config.CacheKey.AttemptAnswersKey(candidateID)
	pipe := d.rdb.TxPipeline()
	pipe.HSet(ctx, answersKey, strconv.Itoa(ans.QuestionIndex), raw)
	pipe.Expire(ctx, answersKey, d.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	return nil
}

// Load returns the candidate's draft, or nil when there is none.
func (d *DraftStore) Load(ctx context.Context, candidateID string) (*AttemptDraft, error) {
	meta, err := d.rdb.HGetAll(ctx, config.CacheKey.AttemptMetaKey(candidateID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load draft meta: %w", err)
	}
	if len(meta) == 0 {
		return nil, nil
	}

	id, err := uuid.Parse(meta["attempt_id"])
	if err != nil {
		return nil, fmt.Errorf("invalid draft attempt id: %w", err)
	}
	startedUnix, err := strconv.ParseInt(meta["started_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid draft start time: %w", err)
	}
	duration, err := strconv.Atoi(meta["duration"])
	if err != nil {
		return nil, fmt.Errorf("invalid draft duration: %w", err)
	}

	fields, err := d.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(candidateID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load draft answers: %w", err)
	}

	answers := make([]model.Answer, 0, len(fields))
	for _, raw := range fields {
		var ans model.Answer
		if err := json.Unmarshal([]byte(raw), &ans); err != nil {
			continue
		}
		answers = append(answers, ans)
	}
	sort.Slice(answers, func(i, j int) bool {
		return answers[i].QuestionIndex < answers[j].QuestionIndex
	})

	return &AttemptDraft{
		AttemptID:       id,
		StartedAt:       time.Unix(startedUnix, 0),
		DurationSeconds: duration,
		Answers:         answers,
	}, nil
}

// Clear removes the candidate's draft after a successful submission.
func (d *DraftStore) Clear(ctx context.Context, candidateID string) error {
	err := d.rdb.Del(ctx,
		config.CacheKey.AttemptMetaKey(candidateID),
		config.CacheKey.AttemptAnswersKey(candidateID),
	).Err()
	if err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}
