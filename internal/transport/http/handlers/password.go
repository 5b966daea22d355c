package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/helmhq/identity-service/internal/infra/security"
	"github.com/helmhq/identity-service/internal/transport/http/middleware"
	"github.com/helmhq/identity-service/internal/usecase"
)

// securityQuestionCatalog is the canned set of prompts offered during
// enrollment. Accounts pick three.
var securityQuestionCatalog = []string{
	"What was the name of your first pet?",
	"In what city were you born?",
	"What is your mother's maiden name?",
	"What was the make of your first car?",
	"What is the name of the street you grew up on?",
	"What was the name of your elementary school?",
	"What is your favorite book?",
	"What was your childhood nickname?",
	"In what city did your parents meet?",
	"What is the name of your favorite teacher?",
}

// PasswordHandler exposes credential rotation and self-service recovery.
type PasswordHandler struct {
	passwords *usecase.PasswordService
	recovery  *usecase.RecoveryService
}

// NewPasswordHandler constructs PasswordHandler.
func NewPasswordHandler(passwords *usecase.PasswordService, recovery *usecase.RecoveryService) *PasswordHandler {
	return &PasswordHandler{passwords: passwords, recovery: recovery}
}

// RegisterPublicRoutes binds the unauthenticated recovery endpoints.
func (h *PasswordHandler) RegisterPublicRoutes(r *gin.RouterGroup, resetMiddlewares ...gin.HandlerFunc) {
	resetChain := append([]gin.HandlerFunc{}, resetMiddlewares...)
	resetChain = append(resetChain, h.requestReset)
	r.GET("/reset-password/:email/:username", resetChain...)

	r.GET("/security-questions/:resetToken", h.questions)
	r.POST("/verify-security-answers/:resetToken", h.verifyAnswers)
	r.GET("/security-questions-list", h.questionCatalog)
}

// RegisterAuthedRoutes binds the endpoints reachable with a live session.
func (h *PasswordHandler) RegisterAuthedRoutes(r *gin.RouterGroup) {
	r.POST("/change-password", h.changePassword)
	r.POST("/change-temp-password", h.changeTempPassword)
	r.PUT("/security-questions", h.setSecurityQuestions)
}

func (h *PasswordHandler) changePassword(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid password payload"))
		return
	}

	err := h.passwords.ChangePassword(c.Request.Context(), accountID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.respondPasswordError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password changed"})
}

func (h *PasswordHandler) changeTempPassword(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ChangeTempPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid password payload"))
		return
	}

	err := h.passwords.ChangeTempPassword(c.Request.Context(), accountID, req.NewPassword, toQuestionInputs(req.SecurityQuestions))
	if err != nil {
		h.respondPasswordError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password changed"})
}

func (h *PasswordHandler) requestReset(c *gin.Context) {
	email := c.Param("email")
	username := c.Param("username")
	if email == "" || username == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email and username are required"))
		return
	}

	err := h.recovery.RequestReset(c.Request.Context(), email, username)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "no matching account"},
			{Err: usecase.ErrNoSecurityQuestions, Status: http.StatusBadRequest, Message: "account has no security questions on file"},
		}, http.StatusInternalServerError, "reset request failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "reset instructions sent"})
}

func (h *PasswordHandler) questions(c *gin.Context) {
	questions, err := h.recovery.Questions(c.Request.Context(), c.Param("resetToken"))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidOrExpiredToken, Status: http.StatusNotFound, Message: "reset token is invalid or expired"},
			{Err: usecase.ErrNoSecurityQuestions, Status: http.StatusNotFound, Message: "reset token is invalid or expired"},
		}, http.StatusInternalServerError, "lookup failed")
		return
	}

	c.JSON(http.StatusOK, SecurityQuestionsResponse{Questions: questions})
}

func (h *PasswordHandler) verifyAnswers(c *gin.Context) {
	var req VerifyAnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid recovery payload"))
		return
	}

	err := h.recovery.VerifyAndReset(c.Request.Context(), c.Param("resetToken"), req.Answers, req.NewPassword)
	if err != nil {
		var violation *security.PasswordValidationError
		if errors.As(err, &violation) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, violation.Message))
			return
		}

		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidOrExpiredToken, Status: http.StatusNotFound, Message: "reset token is invalid or expired"},
			{Err: usecase.ErrSecurityAnswerMismatch, Status: http.StatusForbidden, Message: "security answers do not match"},
			{Err: usecase.ErrPasswordReused, Status: http.StatusBadRequest, Message: "password was used recently"},
		}, http.StatusInternalServerError, "reset failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password reset"})
}

func (h *PasswordHandler) questionCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"security_questions": securityQuestionCatalog})
}

func (h *PasswordHandler) setSecurityQuestions(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req SetSecurityQuestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid question payload"))
		return
	}

	err := h.recovery.EnrollSecurityQuestions(c.Request.Context(), accountID, toQuestionInputs(req.SecurityQuestions))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSecurityQuestionCount, Status: http.StatusBadRequest, Message: "exactly three security questions with answers are required"},
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "enrollment failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "security questions saved"})
}

func (h *PasswordHandler) respondPasswordError(c *gin.Context, err error) {
	var violation *security.PasswordValidationError
	if errors.As(err, &violation) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, violation.Message))
		return
	}

	RespondWithMappedError(c, err, []ErrorCase{
		{Err: usecase.ErrInvalidCurrentPassword, Status: http.StatusForbidden, Message: "current password is incorrect"},
		{Err: usecase.ErrPasswordReused, Status: http.StatusBadRequest, Message: "password was used recently"},
		{Err: usecase.ErrNotTempPassword, Status: http.StatusBadRequest, Message: "account has no active temporary password"},
		{Err: usecase.ErrSecurityQuestionCount, Status: http.StatusBadRequest, Message: "exactly three security questions with answers are required"},
		{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
	}, http.StatusInternalServerError, "password change failed")
}

func toQuestionInputs(payload []SecurityQuestionPayload) []usecase.SecurityQuestionInput {
	inputs := make([]usecase.SecurityQuestionInput, 0, len(payload))
	for _, q := range payload {
		inputs = append(inputs, usecase.SecurityQuestionInput{
			Question: q.Question,
			Answer:   q.Answer,
		})
	}
	return inputs
}
