package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/helmhq/identity-service/internal/core/domain"
	"github.com/helmhq/identity-service/internal/usecase"
)

// AccountIDHeader carries the account the bearer token belongs to; session
// validity is keyed on the pair.
const AccountIDHeader = "X-Account-Id"

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// RequireSession validates the bearer token and account header against the
// stored session. Every successful check slides the session horizon.
func RequireSession(sessions *usecase.SessionService, accounts *usecase.LifecycleService) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, token, ok := SessionCredentials(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing session credentials"))
			return
		}

		valid, err := sessions.Validate(c.Request.Context(), accountID, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				newErrorResponse(c, "session validation failed"))
			return
		}
		if !valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "session expired or invalid"))
			return
		}

		account, err := accounts.Get(c.Request.Context(), accountID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "session expired or invalid"))
			return
		}

		c.Set(AccountIDKey, account.ID)
		c.Set(RoleKey, string(account.Role))
		c.Set(TempPasswordKey, account.TempPassword)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.AccountID = account.ID
		}

		c.Next()
	}
}

// RequireRole allows only accounts holding one of the supplied roles.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[string(role)] = true
	}

	return func(c *gin.Context) {
		role := c.GetString(RoleKey)
		if role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		if !allowed[role] {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "insufficient permissions"))
			return
		}

		c.Next()
	}
}

// TempPasswordGate blocks accounts still on a temporary credential from
// everything except the allow-listed routes, forcing the password change
// before normal use.
func TempPasswordGate(allowedRoutes ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedRoutes))
	for _, route := range allowedRoutes {
		allowed[route] = true
	}

	return func(c *gin.Context) {
		if !c.GetBool(TempPasswordKey) {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		if allowed[route] {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusForbidden,
			newErrorResponse(c, "temporary password must be changed first"))
	}
}

// SessionCredentials pulls the bearer token and account id off the request.
func SessionCredentials(c *gin.Context) (accountID, token string, ok bool) {
	accountID = strings.TrimSpace(c.GetHeader(AccountIDHeader))

	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "", false
	}
	token = strings.TrimSpace(parts[1])

	if accountID == "" || token == "" {
		return "", "", false
	}
	return accountID, token, true
}

// GetAuthenticatedAccountID retrieves the account ID from context (helper for handlers)
func GetAuthenticatedAccountID(c *gin.Context) (string, bool) {
	accountID := c.GetString(AccountIDKey)
	if accountID == "" {
		return "", false
	}
	return accountID, true
}
