package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/cbt-gateway/internal/model"
)

// SubmissionRepository handles submission log data access.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// Insert stores a single submission log entry.
func (r *SubmissionRepository) Insert(ctx context.Context, l model.SubmissionLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO submission_logs (attempt_id, candidate_id, trigger, answered, total, success, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.AttemptID, l.CandidateID, l.Trigger, l.Answered, l.Total, l.Success, l.Error, createdAt(l),
	)
	return err
}

// InsertBatch stores many entries in one round trip using UNNEST.
func (r *SubmissionRepository) InsertBatch(ctx context.Context, logs []model.SubmissionLog) error {
	n := len(logs)
	if n == 0 {
		return nil
	}

	attemptIDs := make([]uuid.UUID, n)
	candidateIDs := make([]string, n)
	triggers := make([]string, n)
	answered := make([]int32, n)
	totals := make([]int32, n)
	successes := make([]bool, n)
	errs := make([]*string, n)
	createdAts := make([]time.Time, n)

	for i, l := range logs {
		attemptIDs[i] = l.AttemptID
		candidateIDs[i] = l.CandidateID
		triggers[i] = string(l.Trigger)
		answered[i] = int32(l.Answered)
		totals[i] = int32(l.Total)
		successes[i] = l.Success
		errs[i] = l.Error
		createdAts[i] = createdAt(l)
	}

	query := `
		INSERT INTO submission_logs (attempt_id, candidate_id, trigger, answered, total, success, error, created_at)
		SELECT * FROM UNNEST(
			$1::uuid[],
			$2::text[],
			$3::text[],
			$4::int[],
			$5::int[],
			$6::bool[],
			$7::text[],
			$8::timestamptz[]
		)
	`
	if _, err := r.pool.Exec(ctx, query, attemptIDs, candidateIDs, triggers, answered, totals, successes, errs, createdAts); err != nil {
		return fmt.Errorf("bulk insert submission logs: %w", err)
	}
	return nil
}

// ListByCandidate returns a candidate's submission history, newest first.
func (r *SubmissionRepository) ListByCandidate(ctx context.Context, candidateID string, limit int) ([]model.SubmissionLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, candidate_id, trigger, answered, total, success, error, created_at
		 FROM submission_logs
		 WHERE candidate_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, candidateID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []model.SubmissionLog
	for rows.Next() {
		var l model.SubmissionLog
		if err := rows.Scan(&l.ID, &l.AttemptID, &l.CandidateID, &l.Trigger, &l.Answered, &l.Total, &l.Success, &l.Error, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func createdAt(l model.SubmissionLog) time.Time {
	if l.CreatedAt.IsZero() {
		return time.Now()
	}
	return l.CreatedAt
}
