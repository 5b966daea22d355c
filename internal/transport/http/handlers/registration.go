package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helmhq/identity-service/internal/core/domain"
	"github.com/helmhq/identity-service/internal/infra/security"
	"github.com/helmhq/identity-service/internal/usecase"
)

// RegistrationHandler exposes public self-registration.
type RegistrationHandler struct {
	lifecycle *usecase.LifecycleService
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(lifecycle *usecase.LifecycleService) *RegistrationHandler {
	return &RegistrationHandler{lifecycle: lifecycle}
}

// RegisterRoutes binds the registration endpoint.
func (h *RegistrationHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/register", h.register)
}

// Register creates a pending account awaiting administrator approval.
func (h *RegistrationHandler) register(c *gin.Context) {
	var req RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	account, err := h.lifecycle.Register(c.Request.Context(), usecase.CreateAccountInput{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      domain.Role(req.Role),
		Password:  req.Password,
		Questions: toQuestionInputs(req.SecurityQuestions),
	})
	if err != nil {
		var violation *security.PasswordValidationError
		if errors.As(err, &violation) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, violation.Message))
			return
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			c.JSON(http.StatusConflict, NewErrorResponse(c, "username or email already in use"))
			return
		}

		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidRole, Status: http.StatusBadRequest, Message: "invalid account role"},
			{Err: usecase.ErrSecurityQuestionCount, Status: http.StatusBadRequest, Message: "exactly three security questions with answers are required"},
			{Err: usecase.ErrUsernameRequired, Status: http.StatusBadRequest, Message: "username is required"},
		}, http.StatusInternalServerError, "registration failed")
		return
	}

	c.JSON(http.StatusCreated, RegistrationResponse{
		Account: NewAccountSummary(account),
		Message: "registration received; an administrator will review your account",
	})
}
