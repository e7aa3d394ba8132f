package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stemsi/cbt-gateway/internal/attempt"
	"github.com/stemsi/cbt-gateway/internal/backend"
	"github.com/stemsi/cbt-gateway/internal/response"
	"github.com/stemsi/cbt-gateway/internal/service"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{attempt.ErrSubmitted, http.StatusConflict, response.ErrAttemptSubmitted},
		{attempt.ErrSubmissionInFlight, http.StatusConflict, response.ErrSubmissionInFlight},
		{attempt.ErrIncomplete, http.StatusUnprocessableEntity, response.ErrIncompleteAnswers},
		{attempt.ErrQuestionOutOfRange, http.StatusBadRequest, response.ErrQuestionOutOfRange},
		{service.ErrNoActiveAttempt, http.StatusNotFound, response.ErrNoActiveAttempt},
		{service.ErrNotVerified, http.StatusForbidden, response.ErrNotVerified},
		{service.ErrNotStarted, http.StatusConflict, response.ErrExamNotStarted},
		{fmt.Errorf("fetch schedule: %w", backend.ErrUnexpectedResponse), http.StatusBadGateway, response.ErrUnexpectedResponse},
		{&backend.Error{Status: 401}, http.StatusUnauthorized, response.ErrSessionInvalidated},
		{&backend.Error{Status: 409, Message: "closed"}, http.StatusBadGateway, response.ErrBackendRejected},
		{fmt.Errorf("boom"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tc := range cases {
		got := mapError(tc.err)
		assert.Equal(t, tc.status, got.status, tc.err.Error())
		assert.Equal(t, tc.code, got.code, tc.err.Error())
	}
}

func TestMapSubmitError(t *testing.T) {
	got := mapSubmitError(fmt.Errorf("submit answers: %w", &backend.Error{Status: 500, Message: "db down"}))
	assert.Equal(t, http.StatusBadGateway, got.status)
	assert.Equal(t, response.ErrSubmissionFailed, got.code)
	assert.Equal(t, "db down", got.detail)

	got = mapSubmitError(attempt.ErrIncomplete)
	assert.Equal(t, response.ErrIncompleteAnswers, got.code)
}
