package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamAttempt is one run of a candidate through the timed exam.
type ExamAttempt struct {
	AttemptID       uuid.UUID  `json:"attemptId"`
	DurationSeconds int        `json:"durationSeconds"`
	StartedAt       time.Time  `json:"startedAt"`
	Questions       []Question `json:"questions"`
	Submitted       bool       `json:"submitted"`
}

// Answer records the option chosen for one question. At most one per index.
type Answer struct {
	QuestionIndex         int    `json:"questionIndex"`
	QuestionID            string `json:"questionId"`
	SelectedOptionID      string `json:"selectedOptionId"`
	SelectedOptionOrdinal int    `json:"selectedOptionOrdinal"`
}

// SubmittedAnswer is the wire form of an answer in the submit request.
type SubmittedAnswer struct {
	QuestionID           string `json:"questionId"`
	SelectedOptionNumber int    `json:"selectedOptionNumber"`
}

// SubmitRequest is the body of POST /candidates/me/exam/submit.
type SubmitRequest struct {
	Answers []SubmittedAnswer `json:"answers"`
}

// SubmissionResult is created at most once per attempt.
type SubmissionResult struct {
	Success bool `json:"success"`
}

// SetAnswerRequest is the payload for recording an answer.
type SetAnswerRequest struct {
	QuestionIndex *int   `json:"questionIndex" binding:"required,min=0"`
	OptionID      string `json:"optionId" binding:"required,max=100"`
}

// NavigateAction enumerates navigation moves.
type NavigateAction string

const (
	NavigateNext     NavigateAction = "next"
	NavigatePrevious NavigateAction = "previous"
	NavigateGoTo     NavigateAction = "goto"
)

// NavigateRequest is the payload for moving between questions.
type NavigateRequest struct {
	Action NavigateAction `json:"action" binding:"required,oneof=next previous goto"`
	Index  int            `json:"index"`
}
