package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/AllenThomasDev/causal-webapp/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context, keeping the code of a wrapped AppError
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeFor(err),
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// GetCode returns the error code if the chain holds an AppError, otherwise the domain code
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeFor(err)
}

// Predefined error codes
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"

	CodeMalformedResponse = "MALFORMED_RESPONSE"
	CodeUnknownColumn     = "UNKNOWN_COLUMN"
	CodeInsufficientRoles = "INSUFFICIENT_ROLES"
	CodeRoleConflict      = "ROLE_CONFLICT"
	CodeDegenerateWeights = "DEGENERATE_WEIGHTS"
	CodeTypeMismatch      = "TYPE_MISMATCH"
	CodeUnsupportedFormat = "UNSUPPORTED_FILE_FORMAT"
	CodeUnidentifiable    = "UNIDENTIFIABLE"
)

var domainCodes = []struct {
	sentinel error
	code     string
}{
	{core.ErrMalformedResponse, CodeMalformedResponse},
	{core.ErrUnknownColumn, CodeUnknownColumn},
	{core.ErrInsufficientRoles, CodeInsufficientRoles},
	{core.ErrRoleConflict, CodeRoleConflict},
	{core.ErrCyclicGraph, CodeInvalidInput},
	{core.ErrUnsupportedTreatment, CodeInvalidInput},
	{core.ErrUnknownRefuter, CodeInvalidInput},
	{core.ErrDegenerateWeights, CodeDegenerateWeights},
	{core.ErrTypeMismatch, CodeTypeMismatch},
	{core.ErrUnsupportedFileFormat, CodeUnsupportedFormat},
	{core.ErrUnidentifiable, CodeUnidentifiable},
}

// CodeFor maps domain sentinel errors onto application codes
func CodeFor(err error) string {
	for _, dc := range domainCodes {
		if stderrors.Is(err, dc.sentinel) {
			return dc.code
		}
	}
	return CodeInternalError
}

// ExitCode maps an error onto a process exit status for the CLI
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch GetCode(err) {
	case CodeConfigInvalid:
		return 78
	case CodeUnsupportedFormat, CodeInvalidInput, CodeUnknownColumn, CodeInsufficientRoles, CodeRoleConflict, CodeTypeMismatch:
		return 65
	case CodeExternalService, CodeMalformedResponse:
		return 69
	default:
		return 1
	}
}

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{Code: CodeDatabaseError, Message: message, Cause: cause}
}

func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code:    CodeExternalService,
		Message: fmt.Sprintf("%s service error", service),
		Cause:   cause,
	}
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}
