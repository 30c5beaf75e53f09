package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/selectionstore/internal/domain/native"
	"github.com/GriffinCanCode/selectionstore/internal/domain/selection"
	"github.com/GriffinCanCode/selectionstore/internal/domain/session"
	"github.com/GriffinCanCode/selectionstore/internal/handle"
	"github.com/GriffinCanCode/selectionstore/internal/handle/memfs"
	"github.com/GriffinCanCode/selectionstore/internal/infrastructure/config"
	"github.com/GriffinCanCode/selectionstore/internal/logging"
	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
	"github.com/GriffinCanCode/selectionstore/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Store.Dir = t.TempDir()
	cfg.Transient.WatchSignals = false
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.MaxAttempts = 0

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	mem := memfs.New()
	docs := mem.Dir("docs")
	docs.Files("a.txt", "b.txt")

	a, err := New(cfg, WithLogger(logging.NewNop()), WithResolvers(mem))
	require.NoError(t, err)
	require.NoError(t, a.Init(ctx))
	assert.Nil(t, a.Teardown())
	assert.FileExists(t, cfg.Store.Path())

	nat, err := a.Selections.Add(ctx, docs, types.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, types.Counts{Files: 2, Directories: 1, Handles: 1}, nat.Counts)

	tmp, err := a.Selections.Add(ctx, selection.File{Name: "x", Size: 1}, types.Metadata{})
	require.NoError(t, err)

	require.NoError(t, a.Close())

	// Native selections survive a restart; transient ones do not.
	b, err := New(cfg, WithLogger(logging.NewNop()), WithResolvers(mem))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	require.NoError(t, b.Init(ctx))

	assert.True(t, b.Selections.Exists(ctx, nat.Key).Exists)
	gone := b.Selections.Exists(ctx, tmp.Key)
	assert.False(t, gone.Exists)
	assert.Equal(t, types.ReasonNotFound, gone.Reason)

	count := b.Selections.GetFileCount(ctx, nat.Key)
	assert.True(t, count.OK)
	assert.Equal(t, 2, count.Counts.Files)
}

func TestCloseExpiresTransient(t *testing.T) {
	ctx := context.Background()
	a, err := New(testConfig(t), WithLogger(logging.NewNop()))
	require.NoError(t, err)

	tmp, err := a.Selections.Add(ctx, selection.File{Name: "x", Size: 1}, types.Metadata{})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	status := a.Sessions.GetStatus(tmp.Key)
	assert.Equal(t, session.StatusExpired, status.Status)
	require.NotNil(t, status.Tombstone)
	assert.Equal(t, session.ReasonDispose, status.Tombstone.Reason)
}

func TestInitReconciles(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	mem := memfs.New()

	a, err := New(cfg, WithLogger(logging.NewNop()), WithResolvers(mem))
	require.NoError(t, err)
	res, err := a.Selections.Add(ctx, []handle.Handle{mem.File("f")}, types.Metadata{})
	require.NoError(t, err)
	// Leave a registry entry whose native record is gone.
	err = a.Connector.WithPartition(ctx, native.Partition, store.ReadWrite, func(p *store.Partition) error {
		_, err := p.Delete(ctx, res.Key)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := New(cfg, WithLogger(logging.NewNop()), WithResolvers(mem))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	require.NoError(t, b.Init(ctx))

	has, err := b.Registry.Has(ctx, res.Key)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSharedHub(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	hub := store.NewHub()

	a, err := New(cfg, WithLogger(logging.NewNop()), WithHub(hub))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.Init(ctx))
	assert.Equal(t, 1, hub.Count(cfg.Store.Path()))
}
