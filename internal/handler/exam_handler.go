package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/cbt-gateway/internal/middleware"
	"github.com/stemsi/cbt-gateway/internal/model"
	"github.com/stemsi/cbt-gateway/internal/response"
	"github.com/stemsi/cbt-gateway/internal/service"
	"github.com/stemsi/cbt-gateway/internal/validator"
)

// ExamHandler handles the candidate-facing exam endpoints.
type ExamHandler struct {
	attemptService    *service.AttemptService
	submissionService *service.SubmissionService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(attemptService *service.AttemptService, submissionService *service.SubmissionService) *ExamHandler {
	return &ExamHandler{
		attemptService:    attemptService,
		submissionService: submissionService,
	}
}

func fail(c *gin.Context, e apiError) {
	if e.detail != "" {
		response.FailWithDetail(c, e.status, e.code, e.detail)
		return
	}
	response.Fail(c, e.status, e.code)
}

// Status godoc
// GET /api/v1/candidate/exam/status
// Returns the exam flow phase and the schedule.
func (h *ExamHandler) Status(c *gin.Context) {
	sess := middleware.GetSession(c)

	status, err := h.attemptService.Status(c.Request.Context(), sess)
	if err != nil {
		fail(c, mapError(err))
		return
	}

	response.Success(c, http.StatusOK, status)
}

// Start godoc
// POST /api/v1/candidate/exam/start
// Starts the attempt, or resumes the running or autosaved one.
func (h *ExamHandler) Start(c *gin.Context) {
	sess := middleware.GetSession(c)

	res, err := h.attemptService.Start(c.Request.Context(), sess)
	if err != nil {
		fail(c, mapError(err))
		return
	}

	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, res)
}

// State godoc
// GET /api/v1/candidate/exam/state
func (h *ExamHandler) State(c *gin.Context) {
	snap, err := h.attemptService.State(middleware.GetSession(c))
	if err != nil {
		fail(c, mapError(err))
		return
	}

	response.Success(c, http.StatusOK, snap)
}

// Answer godoc
// PUT /api/v1/candidate/exam/answers
// Records the selected option of one question. Does not move to the next one.
func (h *ExamHandler) Answer(c *gin.Context) {
	var req model.SetAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	snap, err := h.attemptService.Answer(c.Request.Context(), middleware.GetSession(c), req)
	if err != nil {
		fail(c, mapError(err))
		return
	}

	response.Success(c, http.StatusOK, snap)
}

// Navigate godoc
// POST /api/v1/candidate/exam/navigate
func (h *ExamHandler) Navigate(c *gin.Context) {
	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	snap, err := h.attemptService.Navigate(middleware.GetSession(c), req)
	if err != nil {
		fail(c, mapError(err))
		return
	}

	response.Success(c, http.StatusOK, snap)
}

// Submit godoc
// POST /api/v1/candidate/exam/submit
// Manual submission. Allowed once every question is answered.
func (h *ExamHandler) Submit(c *gin.Context) {
	snap, err := h.attemptService.Submit(c.Request.Context(), middleware.GetSession(c))
	if err != nil {
		fail(c, mapSubmitError(err))
		return
	}

	response.Success(c, http.StatusOK, snap)
}

// Submissions godoc
// GET /api/v1/candidate/exam/submissions
// Lists the recorded submission calls of the candidate.
func (h *ExamHandler) Submissions(c *gin.Context) {
	sess := middleware.GetSession(c)

	logs, err := h.submissionService.History(c.Request.Context(), sess.Candidate.ID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submissions": logs})
}
