package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AllenThomasDev/causal-webapp/domain/core"
	"github.com/AllenThomasDev/causal-webapp/domain/dataset"

	"github.com/google/uuid"
)

// Snapshot is an immutable Dataset and metadata pair. Its context is cancelled
// as soon as a newer snapshot replaces it.
type Snapshot struct {
	ID          uuid.UUID
	Generation  uint64
	Dataset     *dataset.Dataset
	RawMetadata string
	CreatedAt   time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// Context is cancelled when the snapshot is replaced or the store is closed
func (s *Snapshot) Context() context.Context { return s.ctx }

// Stale reports whether the snapshot has been replaced
func (s *Snapshot) Stale() bool { return s.ctx.Err() != nil }

// HasDataset reports whether a table has been uploaded
func (s *Snapshot) HasDataset() bool { return s.Dataset != nil }

// Store holds the single active snapshot of a session
type Store struct {
	mu      sync.RWMutex
	parent  context.Context
	current *Snapshot
}

// NewStore creates a store whose snapshot contexts derive from parent
func NewStore(parent context.Context) *Store {
	if parent == nil {
		parent = context.Background()
	}
	s := &Store{parent: parent}
	s.current = s.newSnapshot(nil, "", 0)
	return s
}

func (s *Store) newSnapshot(ds *dataset.Dataset, raw string, gen uint64) *Snapshot {
	ctx, cancel := context.WithCancel(s.parent)
	return &Snapshot{
		ID:          core.NewSnapshotID().UUID(),
		Generation:  gen,
		Dataset:     ds,
		RawMetadata: raw,
		CreatedAt:   time.Now().UTC(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Current returns the active snapshot
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// IsCurrent reports whether snap is still the active snapshot
func (s *Store) IsCurrent(snap *Snapshot) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snap != nil && s.current.ID == snap.ID
}

// Check returns core.ErrStaleSnapshot when snap has been replaced
func (s *Store) Check(snap *Snapshot) error {
	if s.IsCurrent(snap) {
		return nil
	}
	cur := s.Current()
	return fmt.Errorf("%w: generation %d superseded by %d", core.ErrStaleSnapshot, snap.Generation, cur.Generation)
}

// SetDataset publishes a new snapshot with ds and the current metadata
func (s *Store) SetDataset(ds *dataset.Dataset) *Snapshot {
	return s.update(func(prev *Snapshot) (*dataset.Dataset, string) { return ds, prev.RawMetadata })
}

// SetMetadata publishes a new snapshot with raw metadata and the current dataset
func (s *Store) SetMetadata(raw string) *Snapshot {
	return s.update(func(prev *Snapshot) (*dataset.Dataset, string) { return prev.Dataset, raw })
}

// Replace publishes a new snapshot holding both values
func (s *Store) Replace(ds *dataset.Dataset, raw string) *Snapshot {
	return s.update(func(*Snapshot) (*dataset.Dataset, string) { return ds, raw })
}

func (s *Store) update(next func(prev *Snapshot) (*dataset.Dataset, string)) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current
	ds, raw := next(prev)
	s.current = s.newSnapshot(ds, raw, prev.Generation+1)
	prev.cancel()
	return s.current
}

// Close cancels the active snapshot
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.cancel()
}
