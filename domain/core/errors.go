package core

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors - centralized error definitions
var (
	// Collaborator errors
	ErrMalformedResponse = errors.New("malformed collaborator response")

	// Data integrity errors
	ErrUnknownColumn        = errors.New("unknown column")
	ErrInsufficientRoles    = errors.New("insufficient roles")
	ErrRoleConflict         = errors.New("conflicting roles")
	ErrCyclicGraph          = errors.New("causal graph contains a cycle")
	ErrUnsupportedTreatment = errors.New("unsupported treatment column")

	// Estimation errors
	ErrUnidentifiable    = errors.New("causal effect is not identifiable")
	ErrDegenerateWeights = errors.New("degenerate propensity weights")
	ErrTypeMismatch      = errors.New("variable type mismatch")
	ErrUnknownRefuter    = errors.New("unknown refutation method")

	// Ingestion errors
	ErrUnsupportedFileFormat = errors.New("unsupported file format")

	// Session errors
	ErrStaleSnapshot = errors.New("session snapshot was replaced")
)

// Error constructors with context
func NewMalformedResponseError(shape string, reason string) error {
	return fmt.Errorf("%w: expected %s: %s", ErrMalformedResponse, shape, reason)
}

func NewUnknownColumnError(names []string) error {
	return fmt.Errorf("%w: %s", ErrUnknownColumn, strings.Join(quoteAll(names), ", "))
}

func NewInsufficientRolesError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInsufficientRoles, reason)
}

func NewRoleConflictError(column string, roles ...string) error {
	return fmt.Errorf("%w: column %q assigned as %s", ErrRoleConflict, column, strings.Join(roles, " and "))
}

func NewDegenerateWeightsError(reason string) error {
	return fmt.Errorf("%w: %s", ErrDegenerateWeights, reason)
}

func NewTypeMismatchError(variable, declared, actual string) error {
	return fmt.Errorf("%w: %q declared %s but column is %s", ErrTypeMismatch, variable, declared, actual)
}

func NewUnsupportedFileFormatError(name string, reason string) error {
	if name == "" {
		return fmt.Errorf("%w: %s", ErrUnsupportedFileFormat, reason)
	}
	return fmt.Errorf("%w: %s: %s", ErrUnsupportedFileFormat, name, reason)
}

// Error checking helpers

// IsCollaboratorError reports errors raised while validating text-generation output.
func IsCollaboratorError(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}

// IsDataIntegrityError reports errors that must stop the pipeline before a graph is built.
func IsDataIntegrityError(err error) bool {
	return errors.Is(err, ErrUnknownColumn) ||
		errors.Is(err, ErrInsufficientRoles) ||
		errors.Is(err, ErrRoleConflict) ||
		errors.Is(err, ErrCyclicGraph)
}

func IsEstimationError(err error) bool {
	return errors.Is(err, ErrDegenerateWeights) ||
		errors.Is(err, ErrUnidentifiable) ||
		errors.Is(err, ErrUnsupportedTreatment) ||
		errors.Is(err, ErrTypeMismatch)
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = fmt.Sprintf("%q", n)
	}
	return out
}
