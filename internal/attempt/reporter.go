package attempt

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/cbt-gateway/internal/model"
)

// Submission is what an attempt hands to its Reporter.
type Submission struct {
	AttemptID uuid.UUID
	Trigger   model.SubmissionTrigger
	Answers   []model.SubmittedAnswer
	Answered  int
	Total     int
}

// Reporter performs the single outbound submission call. It must not retry;
// a returned error leaves the attempt open for another manual try.
type Reporter interface {
	Report(ctx context.Context, s Submission) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, s Submission) error

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, s Submission) error {
	return f(ctx, s)
}
