package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// Coded is implemented by every error that carries a stable API code.
type Coded interface {
	error
	Code() string
	Status() int
}

type ValidationError struct {
	ErrCode string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Code() string {
	if e.ErrCode == "" {
		return "VALIDATION_ERROR"
	}
	return e.ErrCode
}

func (e *ValidationError) Status() int { return http.StatusBadRequest }

// Validation builds a ValidationError with the generic code.
func Validation(format string, v ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, v...)}
}

type UnauthorizedError struct {
	ErrCode string
	Message string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: %s", e.Message)
}

func (e *UnauthorizedError) Code() string {
	if e.ErrCode == "" {
		return "UNAUTHORIZED"
	}
	return e.ErrCode
}

func (e *UnauthorizedError) Status() int { return http.StatusUnauthorized }

type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Message)
}

func (e *ForbiddenError) Code() string { return "FORBIDDEN" }

func (e *ForbiddenError) Status() int { return http.StatusForbidden }

type NotFoundError struct {
	Resource   string
	Identifier string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Identifier)
}

func (e *NotFoundError) Code() string {
	return strings.ToUpper(strings.ReplaceAll(e.Resource, " ", "_")) + "_NOT_FOUND"
}

func (e *NotFoundError) Status() int { return http.StatusNotFound }

// ConflictError reports a request that is valid but clashes with current state.
type ConflictError struct {
	ErrCode string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict (%s): %s", e.ErrCode, e.Message)
}

func (e *ConflictError) Code() string { return e.ErrCode }

func (e *ConflictError) Status() int { return http.StatusConflict }

type InsufficientBalanceError struct {
	Requested int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: requested %d ST, available %d ST", e.Requested, e.Available)
}

func (e *InsufficientBalanceError) Code() string { return "INSUFFICIENT_BALANCE" }

func (e *InsufficientBalanceError) Status() int { return http.StatusConflict }

type DatabaseError struct {
	Operation string
	Err       error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Operation, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

type APIError struct {
	StatusCode int
	ErrCode    string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s - %v", e.StatusCode, e.Message, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) Code() string {
	if e.ErrCode == "" {
		return "SERVER_ERROR"
	}
	return e.ErrCode
}

func (e *APIError) Status() int { return e.StatusCode }

type WebSocketError struct {
	Operation string
	Err       error
}

func (e *WebSocketError) Error() string {
	return fmt.Sprintf("WebSocket error during %s: %v", e.Operation, e.Err)
}

func (e *WebSocketError) Unwrap() error { return e.Err }

// Domain errors shared by the services.
var (
	ErrSessionAlreadyActive = &ConflictError{ErrCode: "SESSION_EXISTS", Message: "Mining session already active for this task"}
	ErrAlreadyBoosted       = &ConflictError{ErrCode: "ALREADY_BOOSTED", Message: "Session already boosted"}
	ErrBoostCapReached      = &ConflictError{ErrCode: "BOOST_CAP_REACHED", Message: "Session reached the maximum number of boosts"}
	ErrSessionNotComplete   = &ConflictError{ErrCode: "SESSION_NOT_COMPLETE", Message: "Mining session is not yet complete"}
	ErrSessionInactive      = &ConflictError{ErrCode: "SESSION_INACTIVE", Message: "Mining session is no longer active"}
	ErrTaskAlreadyCompleted = &ConflictError{ErrCode: "TASK_ALREADY_COMPLETED", Message: "Task already completed"}
	ErrNotOneShotTask       = &ValidationError{ErrCode: "INVALID_TASK_TYPE", Message: "Mining tasks must be completed through a mining session"}
	ErrNotMiningTask        = &ValidationError{ErrCode: "INVALID_TASK_TYPE", Message: "Task is not a mining task"}
	ErrUserExists           = &ConflictError{ErrCode: "USER_EXISTS", Message: "User with this email already exists"}
	ErrReferralExists       = &ConflictError{ErrCode: "REFERRAL_EXISTS", Message: "A referral for this email already exists"}
	ErrReferralCodeTaken    = &ConflictError{ErrCode: "REFERRAL_CODE_TAKEN", Message: "Referral code already in use"}
	ErrWithdrawalNotPending = &ConflictError{ErrCode: "WITHDRAWAL_NOT_PENDING", Message: "Withdrawal has already been processed"}
	ErrInvalidAmount        = &ValidationError{ErrCode: "INVALID_AMOUNT", Message: "Valid amount is required"}
	ErrInvalidCredentials   = &UnauthorizedError{ErrCode: "INVALID_CREDENTIALS", Message: "Invalid email or password"}
	ErrInvalidResetToken    = &ValidationError{ErrCode: "INVALID_RESET_TOKEN", Message: "Reset token is invalid or expired"}
)

// BelowMinimum reports a withdrawal smaller than the configured minimum.
func BelowMinimum(minimum int64) *ValidationError {
	return &ValidationError{ErrCode: "MINIMUM_WITHDRAWAL", Message: fmt.Sprintf("Minimum withdrawal amount is %d ST", minimum)}
}
