package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Exam flow ─────────────────────────────────────────────────────
	ErrNotVerified        ErrCode = "CANDIDATE_NOT_VERIFIED"
	ErrExamNotStarted     ErrCode = "EXAM_NOT_STARTED"
	ErrNoActiveAttempt    ErrCode = "NO_ACTIVE_ATTEMPT"
	ErrAttemptSubmitted   ErrCode = "ATTEMPT_SUBMITTED"
	ErrSubmissionInFlight ErrCode = "SUBMISSION_IN_FLIGHT"
	ErrIncompleteAnswers  ErrCode = "INCOMPLETE_ANSWERS"
	ErrQuestionOutOfRange ErrCode = "QUESTION_OUT_OF_RANGE"
	ErrUnknownOption      ErrCode = "UNKNOWN_OPTION"

	// ─── Upstream ──────────────────────────────────────────────────────
	ErrSubmissionFailed   ErrCode = "SUBMISSION_FAILED"
	ErrBackendRejected    ErrCode = "BACKEND_REJECTED"
	ErrBackendUnavailable ErrCode = "BACKEND_UNAVAILABLE"
	ErrUnexpectedResponse ErrCode = "UNEXPECTED_BACKEND_RESPONSE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Invalid username or password."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Exam flow ─────────────────────────────────────────────────────
	case ErrNotVerified:
		return "You are not verified to take this exam."
	case ErrExamNotStarted:
		return "The exam has not started yet."
	case ErrNoActiveAttempt:
		return "No exam attempt is in progress. Start the exam first."
	case ErrAttemptSubmitted:
		return "This exam has already been submitted."
	case ErrSubmissionInFlight:
		return "Your answers are being submitted. Please wait."
	case ErrIncompleteAnswers:
		return "Answer every question before submitting."
	case ErrQuestionOutOfRange:
		return "Question number is out of range."
	case ErrUnknownOption:
		return "The selected option does not belong to this question."

	// ─── Upstream ──────────────────────────────────────────────────────
	case ErrSubmissionFailed:
		return "Submission failed. Your answers are kept, please try again."
	case ErrBackendRejected:
		return "The exam service rejected the request."
	case ErrBackendUnavailable:
		return "The exam service is unreachable. Please try again."
	case ErrUnexpectedResponse:
		return "The exam service returned an unexpected response."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
