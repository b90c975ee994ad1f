package logserver

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/msto63/kflogs/internal/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *JobStore {
	t.Helper()
	store, err := NewJobStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestJobStore_PutGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &api.Job{ID: 3, ApplicationID: 9, Name: "fill-3", Phase: api.PhaseRunning, Meta: api.JobMeta{Namespace: "apps"}}
	require.NoError(t, store.Put(ctx, job))

	got, err := store.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "fill-3", got.Name)
	assert.Equal(t, 9, got.ApplicationID)
	assert.Equal(t, api.PhaseRunning, got.Phase)
	assert.Equal(t, "apps", got.Meta.Namespace)
	assert.False(t, got.CreatedAt.IsZero())

	job.Name = "renamed"
	require.NoError(t, store.Put(ctx, job))
	got, err = store.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
}

func TestJobStore_SetPhase(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, &api.Job{ID: 1, Name: "fill-1", Phase: api.PhasePending}))

	require.NoError(t, store.SetPhase(ctx, 1, api.PhaseFailed))
	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Phase.Terminal())

	assert.ErrorIs(t, store.SetPhase(ctx, 99, api.PhaseRunning), ErrJobNotFound)
}

func TestJobStore_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), 5)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobStore_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "jobs.db")
	store, err := NewJobStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), &api.Job{ID: 1, Name: "a"}))
	require.NoError(t, store.Close())

	store, err = NewJobStore(path)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, api.PhaseNotRun, got.Phase)
	assert.NoError(t, store.Ping(context.Background()))
}
