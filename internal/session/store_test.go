package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/AllenThomasDev/causal-webapp/domain/core"
	"github.com/AllenThomasDev/causal-webapp/domain/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDataset(t *testing.T, name string) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(name, dataset.NumericColumn("x", []float64{1, 2, 3}))
	require.NoError(t, err)
	return ds
}

func TestStoreStartsEmpty(t *testing.T) {
	s := NewStore(context.Background())
	snap := s.Current()
	assert.False(t, snap.HasDataset())
	assert.Empty(t, snap.RawMetadata)
	assert.Zero(t, snap.Generation)
	assert.True(t, s.IsCurrent(snap))
}

func TestSetDatasetKeepsMetadata(t *testing.T) {
	s := NewStore(context.Background())
	s.SetMetadata("age: years")
	snap := s.SetDataset(testDataset(t, "a"))

	assert.Equal(t, "age: years", snap.RawMetadata)
	assert.Equal(t, "a", snap.Dataset.Name)
	assert.Equal(t, uint64(2), snap.Generation)

	snap = s.SetMetadata("educ: years of school")
	assert.Equal(t, "a", snap.Dataset.Name)
	assert.Equal(t, "educ: years of school", snap.RawMetadata)
}

func TestReplaceCancelsPreviousSnapshot(t *testing.T) {
	s := NewStore(context.Background())
	old := s.Replace(testDataset(t, "a"), "meta")
	require.NoError(t, old.Context().Err())

	fresh := s.Replace(testDataset(t, "b"), "meta")
	assert.ErrorIs(t, old.Context().Err(), context.Canceled)
	assert.True(t, old.Stale())
	assert.False(t, fresh.Stale())
	assert.NotEqual(t, old.ID, fresh.ID)

	assert.False(t, s.IsCurrent(old))
	assert.True(t, s.IsCurrent(fresh))

	err := s.Check(old)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrStaleSnapshot))
	assert.NoError(t, s.Check(fresh))
}

func TestCloseCancelsCurrent(t *testing.T) {
	s := NewStore(context.Background())
	snap := s.Current()
	s.Close()
	assert.True(t, snap.Stale())
}

func TestConcurrentUpdatesAreConsistent(t *testing.T) {
	s := NewStore(context.Background())
	ds := testDataset(t, "a")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Replace(ds, "meta")
		}()
		go func() {
			defer wg.Done()
			snap := s.Current()
			if snap.HasDataset() {
				assert.Equal(t, "meta", snap.RawMetadata)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(50), s.Current().Generation)
}
