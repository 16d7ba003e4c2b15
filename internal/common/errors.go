package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInternal          = errors.New("internal error")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid task state transition")
	ErrQueueClosed       = errors.New("task queue is shut down")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsValidation reports whether err came from input validation.
func IsValidation(err error) bool {
	var ve *ValidationErrors
	return errors.As(err, &ve) || errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidInput)
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

// ToGRPCError maps an application error onto a gRPC status.
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if IsValidation(err) {
		return InvalidArgumentError(err.Error())
	}
	return InternalError(err.Error())
}
