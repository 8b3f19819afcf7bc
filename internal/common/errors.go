package common

import (
	"errors"
	"fmt"
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

// Failure taxonomy for the processing pipeline. The orchestrator classifies
// every error with errors.Is against these sentinels and converts it into a
// terminal failure message; nothing else escapes a job task.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrConfig              = errors.New("configuration error")
	ErrDatabase            = errors.New("database error")
	ErrFileProcessing      = errors.New("file processing error")
	ErrAIService           = errors.New("ai service error")
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ConfigError tags message as a configuration problem (missing schema,
// missing callback URL). Not transient; retrying the job cannot help.
func ConfigError(message string) error {
	return fmt.Errorf("%s: %w", message, ErrConfig)
}

func DatabaseError(message string, cause error) error {
	if cause != nil {
		return fmt.Errorf("%s: %v: %w", message, cause, ErrDatabase)
	}
	return fmt.Errorf("%s: %w", message, ErrDatabase)
}

func FileError(message string) error {
	return fmt.Errorf("%s: %w", message, ErrFileProcessing)
}

func AIError(message string, cause error) error {
	if cause != nil {
		return fmt.Errorf("%s: %v: %w", message, cause, ErrAIService)
	}
	return fmt.Errorf("%s: %w", message, ErrAIService)
}
