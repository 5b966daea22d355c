package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helmhq/identity-service/internal/core/domain"
	"github.com/helmhq/identity-service/internal/core/port"
	"github.com/helmhq/identity-service/internal/infra/security"
	"github.com/helmhq/identity-service/internal/transport/http/middleware"
	"github.com/helmhq/identity-service/internal/usecase"
)

// AdminHandler exposes the administrator account and session endpoints.
type AdminHandler struct {
	lifecycle *usecase.LifecycleService
	sessions  *usecase.SessionService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(lifecycle *usecase.LifecycleService, sessions *usecase.SessionService) *AdminHandler {
	return &AdminHandler{lifecycle: lifecycle, sessions: sessions}
}

// RegisterRoutes binds the administrator endpoints. The caller applies the
// session and role guards to the group.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/accounts", h.createAccount)
	r.GET("/accounts", h.listAccounts)
	r.GET("/accounts/:id", h.getAccount)
	r.POST("/accounts/:id/approve", h.approve)
	r.POST("/accounts/:id/reject", h.reject)
	r.POST("/accounts/:id/suspend", h.suspend)
	r.POST("/accounts/:id/reinstate", h.reinstate)
	r.POST("/accounts/:id/reset-password", h.resetPassword)
	r.DELETE("/accounts/:id", h.deleteAccount)
	r.GET("/sessions", h.listSessions)
}

func (h *AdminHandler) createAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid account payload"))
		return
	}

	actor, _ := middleware.GetAuthenticatedAccountID(c)
	result, err := h.lifecycle.CreateAccount(c.Request.Context(), usecase.CreateAccountInput{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      domain.Role(req.Role),
		Password:  req.Password,
		CreatedBy: actor,
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
			{Err: usecase.ErrUsernameRequired, Status: http.StatusBadRequest, Message: "username is required"},
		}, http.StatusInternalServerError, "account creation failed")
		return
	}

	c.JSON(http.StatusCreated, CreateAccountResponse{
		Account:      NewAccountSummary(result.Account),
		TempPassword: result.TempPassword,
	})
}

func (h *AdminHandler) listAccounts(c *gin.Context) {
	filter := port.AccountFilter{
		Status: domain.AccountStatus(c.Query("status")),
		Role:   domain.Role(c.Query("role")),
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	accounts, err := h.lifecycle.ListAccounts(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "listing failed"))
		return
	}

	summaries := make([]AccountSummary, 0, len(accounts))
	for i := range accounts {
		summaries = append(summaries, NewAccountSummary(&accounts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"accounts": summaries})
}

func (h *AdminHandler) getAccount(c *gin.Context) {
	account, err := h.lifecycle.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "lookup failed")
		return
	}

	c.JSON(http.StatusOK, NewAccountSummary(account))
}

func (h *AdminHandler) approve(c *gin.Context) {
	h.respondTransition(c, h.lifecycle.Approve(c.Request.Context(), c.Param("id"), h.actor(c)), "account approved")
}

func (h *AdminHandler) reject(c *gin.Context) {
	h.respondTransition(c, h.lifecycle.Reject(c.Request.Context(), c.Param("id"), h.actor(c)), "account rejected")
}

func (h *AdminHandler) suspend(c *gin.Context) {
	// An absent or empty body means an indefinite suspension.
	var req SuspendRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid suspension payload"))
			return
		}
	}

	h.respondTransition(c, h.lifecycle.Suspend(c.Request.Context(), c.Param("id"), h.actor(c), req.Until), "account suspended")
}

func (h *AdminHandler) reinstate(c *gin.Context) {
	h.respondTransition(c, h.lifecycle.Reinstate(c.Request.Context(), c.Param("id"), h.actor(c)), "account reinstated")
}

func (h *AdminHandler) resetPassword(c *gin.Context) {
	temp, err := h.lifecycle.AdminResetPassword(c.Request.Context(), c.Param("id"), h.actor(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "reset failed")
		return
	}

	c.JSON(http.StatusOK, AdminResetPasswordResponse{TempPassword: temp})
}

func (h *AdminHandler) deleteAccount(c *gin.Context) {
	err := h.lifecycle.Delete(c.Request.Context(), c.Param("id"), h.actor(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "deletion failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "account deleted"})
}

func (h *AdminHandler) listSessions(c *gin.Context) {
	sessions, err := h.sessions.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "listing failed"))
		return
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, SessionSummary{
			ID:        session.ID,
			AccountID: session.AccountID,
			IssuedAt:  session.IssuedAt,
			LogoutAt:  session.LogoutAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": summaries})
}

func (h *AdminHandler) actor(c *gin.Context) string {
	actor, _ := middleware.GetAuthenticatedAccountID(c)
	return actor
}

func (h *AdminHandler) respondTransition(c *gin.Context, err error, message string) {
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
			{Err: usecase.ErrInvalidStateTransition, Status: http.StatusConflict, Message: "account is not in the expected state"},
		}, http.StatusInternalServerError, "transition failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: message})
}
