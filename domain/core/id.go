package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// UUID parses the identifier, returning uuid.Nil for non-UUID values.
func (id ID) UUID() uuid.UUID {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return uuid.Nil
	}
	return u
}

// Domain-specific ID types
type (
	SnapshotID ID
	RunID      ID
)

func (id SnapshotID) String() string { return ID(id).String() }
func (id RunID) String() string      { return ID(id).String() }

func (id SnapshotID) UUID() uuid.UUID { return ID(id).UUID() }
func (id RunID) UUID() uuid.UUID      { return ID(id).UUID() }

// NewSnapshotID creates an identifier for a session snapshot
func NewSnapshotID() SnapshotID { return SnapshotID(NewID()) }

// NewRunID creates an identifier for a pipeline run
func NewRunID() RunID { return RunID(NewID()) }

// ParseSnapshotID parses a string into SnapshotID
func ParseSnapshotID(s string) (SnapshotID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("snapshot ID cannot be empty")
	}
	return SnapshotID(s), nil
}

// ParseRunID parses a string into RunID
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	return RunID(s), nil
}
