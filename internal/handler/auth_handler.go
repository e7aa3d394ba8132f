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

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService    *service.AuthService
	attemptService *service.AttemptService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, attemptService *service.AttemptService) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		attemptService: attemptService,
	}
}

// Login godoc
// POST /api/v1/auth/login
// Verifies credentials with the certification backend and returns a gateway
// JWT. A previous session of the same candidate is replaced.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, sess, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		e := mapError(err)
		response.Fail(c, e.status, e.code)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":     token,
		"candidate": sess.Candidate,
	})
}

// Me godoc
// GET /api/v1/auth/me
// Returns the candidate of the current session.
func (h *AuthHandler) Me(c *gin.Context) {
	sess := middleware.GetSession(c)
	if sess == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"candidate": sess.Candidate,
		"issued_at": sess.IssuedAt,
	})
}

// Logout godoc
// POST /api/v1/auth/logout
// Stops the live attempt timer and ends the session. Autosaved answers stay
// so the attempt can be resumed after the next login.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	h.attemptService.End(claims.CandidateID)
	if err := h.authService.Logout(c.Request.Context(), claims.CandidateID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
