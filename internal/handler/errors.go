package handler

import (
	"errors"
	"net/http"

	"github.com/stemsi/cbt-gateway/internal/attempt"
	"github.com/stemsi/cbt-gateway/internal/backend"
	"github.com/stemsi/cbt-gateway/internal/response"
	"github.com/stemsi/cbt-gateway/internal/service"
)

// apiError is a domain error resolved to its HTTP status and code.
type apiError struct {
	status int
	code   response.ErrCode
	detail string
}

// mapError resolves service, attempt and backend errors. Unknown errors are
// internal.
func mapError(err error) apiError {
	switch {
	case errors.Is(err, attempt.ErrSubmitted):
		return apiError{status: http.StatusConflict, code: response.ErrAttemptSubmitted}
	case errors.Is(err, attempt.ErrSubmissionInFlight):
		return apiError{status: http.StatusConflict, code: response.ErrSubmissionInFlight}
	case errors.Is(err, attempt.ErrIncomplete):
		return apiError{status: http.StatusUnprocessableEntity, code: response.ErrIncompleteAnswers}
	case errors.Is(err, attempt.ErrQuestionOutOfRange):
		return apiError{status: http.StatusBadRequest, code: response.ErrQuestionOutOfRange}
	case errors.Is(err, attempt.ErrUnknownOption):
		return apiError{status: http.StatusBadRequest, code: response.ErrUnknownOption}
	case errors.Is(err, attempt.ErrNoQuestions), errors.Is(err, attempt.ErrInvalidDuration):
		return apiError{status: http.StatusBadGateway, code: response.ErrUnexpectedResponse, detail: err.Error()}
	case errors.Is(err, attempt.ErrInvalidTransition):
		return apiError{status: http.StatusBadGateway, code: response.ErrUnexpectedResponse, detail: err.Error()}

	case errors.Is(err, service.ErrNoActiveAttempt):
		return apiError{status: http.StatusNotFound, code: response.ErrNoActiveAttempt}
	case errors.Is(err, service.ErrNotVerified):
		return apiError{status: http.StatusForbidden, code: response.ErrNotVerified}
	case errors.Is(err, service.ErrNotStarted):
		return apiError{status: http.StatusConflict, code: response.ErrExamNotStarted}
	case errors.Is(err, service.ErrInvalidCredentials):
		return apiError{status: http.StatusUnauthorized, code: response.ErrInvalidCredentials}
	case errors.Is(err, service.ErrSessionInvalidated):
		return apiError{status: http.StatusUnauthorized, code: response.ErrSessionInvalidated}
	case errors.Is(err, service.ErrBackendUnavailable):
		return apiError{status: http.StatusServiceUnavailable, code: response.ErrBackendUnavailable}

	case errors.Is(err, backend.ErrUnexpectedResponse):
		return apiError{status: http.StatusBadGateway, code: response.ErrUnexpectedResponse}
	case errors.Is(err, backend.ErrUnauthorized):
		// The upstream token expired; only a new login can fix it.
		return apiError{status: http.StatusUnauthorized, code: response.ErrSessionInvalidated}
	}

	var be *backend.Error
	if errors.As(err, &be) {
		return apiError{status: http.StatusBadGateway, code: response.ErrBackendRejected, detail: be.Message}
	}
	return apiError{status: http.StatusInternalServerError, code: response.ErrInternal}
}

// mapSubmitError is mapError for the submission path, where any upstream
// failure means the attempt stayed open and can be retried.
func mapSubmitError(err error) apiError {
	e := mapError(err)
	switch e.code {
	case response.ErrBackendRejected, response.ErrBackendUnavailable, response.ErrUnexpectedResponse:
		e.status = http.StatusBadGateway
		e.code = response.ErrSubmissionFailed
		if e.detail == "" {
			e.detail = err.Error()
		}
	}
	return e
}
