package attempt

import (
	"sort"

	"github.com/stemsi/cbt-gateway/internal/model"
)

// Ledger maps question index to the candidate's current answer.
// It does not check that an option belongs to its question and is not
// safe for concurrent use; Attempt serialises access.
type Ledger struct {
	answers map[int]model.Answer
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{answers: make(map[int]model.Answer)}
}

// Set records an answer, replacing any earlier one for the same index.
func (l *Ledger) Set(a model.Answer) {
	l.answers[a.QuestionIndex] = a
}

// Get returns the answer recorded for index, if any.
func (l *Ledger) Get(index int) (model.Answer, bool) {
	a, ok := l.answers[index]
	return a, ok
}

// AnsweredCount is the number of distinct answered question indices.
func (l *Ledger) AnsweredCount() int {
	return len(l.answers)
}

// Ordered returns the answers sorted by question index.
func (l *Ledger) Ordered() []model.Answer {
	out := make([]model.Answer, 0, len(l.answers))
	for _, a := range l.answers {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QuestionIndex < out[j].QuestionIndex
	})
	return out
}

// Payload converts the ledger into the ordered submission wire form.
func (l *Ledger) Payload() []model.SubmittedAnswer {
	ordered := l.Ordered()
	out := make([]model.SubmittedAnswer, len(ordered))
	for i, a := range ordered {
		out[i] = model.SubmittedAnswer{
			QuestionID:           a.QuestionID,
			SelectedOptionNumber: a.SelectedOptionOrdinal,
		}
	}
	return out
}
