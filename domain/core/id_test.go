package core

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

func TestIDUUID(t *testing.T) {
	id := NewID()
	if id.UUID() == uuid.Nil {
		t.Errorf("expected NewID to parse as UUID, got %s", id)
	}
	if ID("not-a-uuid").UUID() != uuid.Nil {
		t.Error("expected uuid.Nil for non-UUID identifiers")
	}
}

func TestParseSnapshotAndRunID(t *testing.T) {
	if _, err := ParseSnapshotID("  "); err == nil {
		t.Error("expected error for blank snapshot ID")
	}
	if _, err := ParseRunID(""); err == nil {
		t.Error("expected error for empty run ID")
	}
	snap, err := ParseSnapshotID("snap-1")
	if err != nil || snap.String() != "snap-1" {
		t.Errorf("unexpected snapshot parse result %q, %v", snap, err)
	}
	if NewSnapshotID() == NewSnapshotID() {
		t.Error("expected distinct snapshot IDs")
	}
}

func TestErrorClassification(t *testing.T) {
	if !IsDataIntegrityError(NewUnknownColumnError([]string{"wage"})) {
		t.Error("unknown column should be a data integrity error")
	}
	if !IsDataIntegrityError(NewRoleConflictError("age", "treatment", "confounder")) {
		t.Error("role conflict should be a data integrity error")
	}
	if !IsCollaboratorError(NewMalformedResponseError("object", "truncated")) {
		t.Error("malformed response should be a collaborator error")
	}
	if !IsEstimationError(NewDegenerateWeightsError("empty arm")) {
		t.Error("degenerate weights should be an estimation error")
	}
	if !errors.Is(NewUnsupportedFileFormatError("x.pdf", "unknown extension"), ErrUnsupportedFileFormat) {
		t.Error("expected ErrUnsupportedFileFormat")
	}
	if IsDataIntegrityError(ErrMalformedResponse) {
		t.Error("malformed response must not be classified as data integrity")
	}
}
