package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/helmhq/identity-service/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse describes the response returned for a successful login.
type LoginResponse struct {
	Token              string `json:"token"`
	AccountID          string `json:"account_id"`
	Username           string `json:"username"`
	MustChangePassword bool   `json:"must_change_password"`
}

// StatusResponse reports whether the caller holds a live session.
type StatusResponse struct {
	OK       bool `json:"ok"`
	LoggedIn bool `json:"loggedIn"`
}

// AccountSummary describes the account view returned by the API.
type AccountSummary struct {
	ID                string               `json:"id"`
	Username          string               `json:"username"`
	Email             string               `json:"email"`
	FirstName         string               `json:"first_name"`
	LastName          string               `json:"last_name"`
	Role              domain.Role          `json:"role"`
	Status            domain.AccountStatus `json:"status"`
	TempPassword      bool                 `json:"temp_password"`
	LastLoginAt       *time.Time           `json:"last_login_at,omitempty"`
	PasswordExpiresAt time.Time            `json:"password_expires_at"`
	CreatedAt         time.Time            `json:"created_at"`
}

// NewAccountSummary maps a domain account onto the API view.
func NewAccountSummary(account *domain.Account) AccountSummary {
	return AccountSummary{
		ID:                account.ID,
		Username:          account.Username,
		Email:             account.Email,
		FirstName:         account.FirstName,
		LastName:          account.LastName,
		Role:              account.Role,
		Status:            account.Status,
		TempPassword:      account.TempPassword,
		LastLoginAt:       account.LastLoginAt,
		PasswordExpiresAt: account.PasswordExpiresAt,
		CreatedAt:         account.CreatedAt,
	}
}

// SecurityQuestionPayload is a plaintext question/answer pair.
type SecurityQuestionPayload struct {
	Question string `json:"question" binding:"required"`
	Answer   string `json:"answer" binding:"required"`
}

// RegistrationRequest defines the self-registration payload.
type RegistrationRequest struct {
	Username          string                    `json:"username"`
	Email             string                    `json:"email" binding:"required,email"`
	FirstName         string                    `json:"first_name" binding:"required"`
	LastName          string                    `json:"last_name" binding:"required"`
	Role              string                    `json:"role"`
	Password          string                    `json:"password" binding:"required"`
	SecurityQuestions []SecurityQuestionPayload `json:"security_questions"`
}

// RegistrationResponse is returned after a successful registration.
type RegistrationResponse struct {
	Account AccountSummary `json:"account"`
	Message string         `json:"message"`
}

// ChangePasswordRequest defines the authenticated password-change payload.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ChangeTempPasswordRequest replaces a temporary credential and enrolls the
// security-question set in the same call. The live session authenticates the
// caller; the temporary password itself is not re-entered.
type ChangeTempPasswordRequest struct {
	NewPassword       string                    `json:"new_password" binding:"required"`
	SecurityQuestions []SecurityQuestionPayload `json:"security_questions" binding:"required"`
}

// SecurityQuestionsResponse carries the question prompts for a reset token.
type SecurityQuestionsResponse struct {
	Questions []string `json:"questions"`
}

// VerifyAnswersRequest carries the recovery challenge answers and the
// replacement password.
type VerifyAnswersRequest struct {
	Answers     []string `json:"answers" binding:"required"`
	NewPassword string   `json:"new_password" binding:"required"`
}

// SetSecurityQuestionsRequest replaces the enrolled question set.
type SetSecurityQuestionsRequest struct {
	SecurityQuestions []SecurityQuestionPayload `json:"security_questions" binding:"required"`
}

// CreateAccountRequest defines the administrator account-creation payload.
type CreateAccountRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Role      string `json:"role" binding:"required"`
	Password  string `json:"password"`
}

// CreateAccountResponse reports the created account and, when generated, the
// temporary credential.
type CreateAccountResponse struct {
	Account      AccountSummary `json:"account"`
	TempPassword string         `json:"temp_password,omitempty"`
}

// SuspendRequest optionally bounds the suspension window.
type SuspendRequest struct {
	Until *time.Time `json:"until"`
}

// AdminResetPasswordResponse carries the generated temporary credential.
type AdminResetPasswordResponse struct {
	TempPassword string `json:"temp_password"`
}

// SessionSummary is the admin view over an active session.
type SessionSummary struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	IssuedAt  time.Time `json:"issued_at"`
	LogoutAt  time.Time `json:"logout_at"`
}

// HealthResponse is returned by the liveness endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}
