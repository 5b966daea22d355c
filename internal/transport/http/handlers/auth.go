package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/helmhq/identity-service/internal/transport/http/middleware"
	"github.com/helmhq/identity-service/internal/usecase"
)

// AuthHandler exposes the login, logout and status endpoints.
type AuthHandler struct {
	auth     *usecase.AuthService
	sessions *usecase.SessionService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, sessions *usecase.SessionService) *AuthHandler {
	return &AuthHandler{auth: auth, sessions: sessions}
}

// RegisterRoutes binds authentication routes, applying optional middleware ahead of the login handler.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, sessionAuth gin.HandlerFunc, loginMiddlewares ...gin.HandlerFunc) {
	chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
	chain = append(chain, h.login)
	r.POST("/login", chain...)

	r.POST("/logout", sessionAuth, h.logout)
	r.GET("/status", h.status)
}

// Login authenticates a username/password pair and issues a session.
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid username or password"},
			{Err: usecase.ErrAccountLocked, Status: http.StatusForbidden, Message: "account locked after repeated failed logins"},
		}, http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:              result.Token,
		AccountID:          result.AccountID,
		Username:           result.Username,
		MustChangePassword: result.MustChangePassword,
	})
}

// Logout revokes the caller's session.
func (h *AuthHandler) logout(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	_, token, ok := middleware.SessionCredentials(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing session credentials"))
		return
	}

	if err := h.sessions.Invalidate(c.Request.Context(), accountID, token); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSessionNotFound, Status: http.StatusUnauthorized, Message: "session not found"},
		}, http.StatusInternalServerError, "logout failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// Status reports whether the presented credentials still map to a live
// session. It never fails: absent or stale credentials read as logged out.
func (h *AuthHandler) status(c *gin.Context) {
	accountID, token, ok := middleware.SessionCredentials(c)
	if !ok {
		c.JSON(http.StatusOK, StatusResponse{OK: true, LoggedIn: false})
		return
	}

	valid, err := h.sessions.Validate(c.Request.Context(), accountID, token)
	if err != nil {
		valid = false
	}

	c.JSON(http.StatusOK, StatusResponse{OK: true, LoggedIn: valid})
}
