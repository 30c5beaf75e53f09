package native

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/selectionstore/internal/domain/registry"
	"github.com/GriffinCanCode/selectionstore/internal/handle"
	"github.com/GriffinCanCode/selectionstore/internal/handle/memfs"
	"github.com/GriffinCanCode/selectionstore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
	"github.com/GriffinCanCode/selectionstore/internal/store"
)

type fixture struct {
	conn     *store.Connector
	registry *registry.Manager
	fs       *memfs.FS
	metrics  *monitoring.Metrics
	backend  *Backend
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	conn, err := store.NewConnector(store.Options{
		Dir:        t.TempDir(),
		Name:       "native-test",
		Partitions: []string{registry.Partition, Partition},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	f := &fixture{
		conn:     conn,
		registry: registry.NewManager(conn, nil),
		fs:       memfs.New(),
		metrics:  monitoring.NewMetrics(nil),
	}
	opts = append([]Option{WithMetrics(f.metrics)}, opts...)
	f.backend = NewBackend(conn, f.registry, handle.NewResolvers(f.fs), opts...)
	return f
}

// photos is a directory with 3 files and a subdirectory holding 2 more
func (f *fixture) photos() *memfs.Node {
	root := f.fs.Dir("photos")
	root.Files("a.jpg", "b.jpg", "c.jpg")
	root.Dir("raw").Files("a.raw", "b.raw")
	return root
}

// failingRegistry wraps a real registry but refuses registrations
type failingRegistry struct {
	*registry.Manager
	err error
}

func (r failingRegistry) RegisterKey(context.Context, string, types.Metadata) (*types.RegistryRecord, error) {
	return nil, r.err
}

func TestPersistHandlesDirectoryTree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	result, err := f.backend.PersistHandles(ctx, []handle.Handle{f.photos()}, types.Metadata{}, handle.CountOptions{})
	require.NoError(t, err)
	require.True(t, result.OK, "reason: %s", result.Reason)

	assert.Equal(t, types.Counts{Files: 5, Directories: 2, Handles: 1}, result.Counts)
	assert.Equal(t, types.StorageNativeHandle, result.StorageType)
	assert.NotEmpty(t, result.Key)
	require.NotNil(t, result.Expires)
	assert.True(t, result.Expires.Durable)

	rec, err := f.registry.GetRecord(ctx, result.Key)
	require.NoError(t, err)
	assert.Equal(t, types.StorageNativeHandle, rec.StorageType)

	stored, err := f.backend.GetRecord(ctx, result.Key)
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, stored.Status)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Persisted.WithLabelValues("native-handle")))
}

func TestPersistHandlesRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	handles := []handle.Handle{f.fs.File("z.txt"), f.photos(), f.fs.File("a.txt")}

	result, err := f.backend.PersistHandles(ctx, handles, types.Metadata{Key: "mine"}, handle.CountOptions{})
	require.NoError(t, err)
	require.True(t, result.OK)
	assert.Equal(t, "mine", result.Key)

	got, err := f.backend.GetHandles(ctx, "mine")
	require.NoError(t, err)
	require.Len(t, got, len(handles))
	for i := range handles {
		assert.Equal(t, handles[i].Ref(), got[i].Ref())
	}

	recount, err := handle.Count(ctx, got, handle.CountOptions{})
	require.NoError(t, err)
	assert.Equal(t, result.Counts, recount)
}

func TestPersistHandlesValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.backend.PersistHandles(ctx, nil, types.Metadata{}, handle.CountOptions{})
	assert.ErrorIs(t, err, types.ErrMissingSelection)

	_, err = f.backend.PersistHandles(ctx, []handle.Handle{nil}, types.Metadata{}, handle.CountOptions{})
	assert.ErrorIs(t, err, types.ErrInvalidHandle)
}

func TestPersistHandlesCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.backend.PersistHandles(ctx, []handle.Handle{f.photos()}, types.Metadata{Key: "k"}, handle.CountOptions{})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, types.ReasonCancelled, result.Reason)

	keys, err := f.registry.ListKeys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestPersistHandlesTraversalError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.photos()
	raw, _ := f.fs.Lookup("/photos/raw")
	raw.FailEntries(errors.New("unreadable"))

	result, err := f.backend.PersistHandles(ctx, []handle.Handle{root}, types.Metadata{}, handle.CountOptions{})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.True(t, result.Partial)
	assert.Equal(t, types.ReasonTraversalError, result.Reason)
	assert.Equal(t, 3, result.Counts.Files)
}

func TestPersistHandlesCompensation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	regErr := fmt.Errorf("%w: registry offline", types.ErrStoreUnavailable)
	f.backend.registry = failingRegistry{Manager: f.registry, err: regErr}

	result, err := f.backend.PersistHandles(ctx, []handle.Handle{f.fs.File("a")}, types.Metadata{Key: "k"}, handle.CountOptions{})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, types.ReasonStoreUnavailable, result.Reason)
	assert.ErrorIs(t, result.Err, regErr)

	_, err = f.backend.GetRecord(ctx, "k")
	assert.ErrorIs(t, err, types.ErrUnknownKey)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SagaCompensations))
}

func TestPersistHandlesCompensationRestoresPrevious(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	original := f.fs.File("original")

	first, err := f.backend.PersistHandles(ctx, []handle.Handle{original}, types.Metadata{Key: "k"}, handle.CountOptions{})
	require.NoError(t, err)
	require.True(t, first.OK)

	f.backend.registry = failingRegistry{Manager: f.registry, err: types.ErrStoreUnavailable}
	second, err := f.backend.PersistHandles(ctx, []handle.Handle{f.fs.File("a"), f.fs.File("b")}, types.Metadata{Key: "k"}, handle.CountOptions{})
	require.NoError(t, err)
	assert.False(t, second.OK)

	record, err := f.backend.GetRecord(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, record.Status)
	assert.Equal(t, []handle.Ref{original.Ref()}, record.Handles)
	assert.Equal(t, 1, record.FileCount)

	has, err := f.registry.Has(ctx, "k")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	result, err := f.backend.PersistHandles(ctx, []handle.Handle{f.fs.File("a")}, types.Metadata{}, handle.CountOptions{})
	require.NoError(t, err)

	removed := f.backend.Remove(ctx, result.Key)
	assert.True(t, removed.OK)
	assert.True(t, removed.Removed)

	has, err := f.registry.Has(ctx, result.Key)
	require.NoError(t, err)
	assert.False(t, has)

	again := f.backend.Remove(ctx, result.Key)
	assert.True(t, again.OK)
	assert.False(t, again.Removed)
	assert.Equal(t, types.ReasonNotFound, again.Reason)
}

func TestCountFilesDrift(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dir := f.fs.Dir("docs")
	dir.Files("one.md", "two.md")

	result, err := f.backend.PersistHandles(ctx, []handle.Handle{dir}, types.Metadata{}, handle.CountOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, result.Counts.Files)

	fresh := f.backend.CountFiles(ctx, result.Key, handle.CountOptions{})
	assert.True(t, fresh.OK)
	assert.False(t, fresh.Partial)

	require.True(t, dir.Remove("two.md"))
	drift := f.backend.CountFiles(ctx, result.Key, handle.CountOptions{})
	assert.True(t, drift.OK)
	assert.True(t, drift.Partial)
	assert.Equal(t, types.ReasonEntriesMissing, drift.Reason)
	assert.Equal(t, 1, drift.Counts.Files)
	require.NotNil(t, drift.Recorded)
	assert.Equal(t, 2, drift.Recorded.Files)

	// Stored snapshot is not rewritten by a recount.
	stored, err := f.backend.GetRecord(ctx, result.Key)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.FileCount)
}

func TestCountFilesUnresolvedHandle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dir := f.fs.Dir("docs")
	file := dir.File("gone.md")

	result, err := f.backend.PersistHandles(ctx, []handle.Handle{file}, types.Metadata{}, handle.CountOptions{})
	require.NoError(t, err)

	dir.Remove("gone.md")
	count := f.backend.CountFiles(ctx, result.Key, handle.CountOptions{})
	assert.True(t, count.Partial)
	assert.Equal(t, types.ReasonEntriesMissing, count.Reason)
	assert.Equal(t, 0, count.Counts.Files)
}

func TestCountFilesUnknownKey(t *testing.T) {
	f := newFixture(t)
	count := f.backend.CountFiles(context.Background(), "nope", handle.CountOptions{})
	assert.False(t, count.OK)
	assert.Equal(t, types.ReasonNotFound, count.Reason)
}

func TestRequestPermissions(t *testing.T) {
	ctx := context.Background()

	t.Run("one probe fails", func(t *testing.T) {
		f := newFixture(t)
		a, b, c := f.fs.File("a"), f.fs.File("b"), f.fs.File("c")
		b.FailProbe(errors.New("probe exploded"))

		result, err := f.backend.PersistHandles(ctx, []handle.Handle{a, b, c}, types.Metadata{}, handle.CountOptions{})
		require.NoError(t, err)

		perms := f.backend.RequestPermissions(ctx, result.Key, types.PermissionRead)
		assert.True(t, perms.OK)
		assert.Equal(t, types.PermissionDenied, perms.State)
		assert.Equal(t, 3, perms.Counts.Handles)
	})

	t.Run("all granted", func(t *testing.T) {
		f := newFixture(t, WithProbeConcurrency(1))
		result, err := f.backend.PersistHandles(ctx, []handle.Handle{f.fs.File("a"), f.fs.File("b")}, types.Metadata{}, handle.CountOptions{})
		require.NoError(t, err)

		perms := f.backend.RequestPermissions(ctx, result.Key, "")
		assert.Equal(t, types.PermissionGranted, perms.State)
	})

	t.Run("prompt", func(t *testing.T) {
		f := newFixture(t)
		a := f.fs.File("a")
		a.SetPermission(types.PermissionPrompt)
		result, err := f.backend.PersistHandles(ctx, []handle.Handle{a, f.fs.File("b")}, types.Metadata{}, handle.CountOptions{})
		require.NoError(t, err)

		perms := f.backend.RequestPermissions(ctx, result.Key, types.PermissionReadWrite)
		assert.Equal(t, types.PermissionPrompt, perms.State)
	})

	t.Run("unresolvable handle is denied", func(t *testing.T) {
		f := newFixture(t)
		dir := f.fs.Dir("d")
		gone := dir.File("x")
		result, err := f.backend.PersistHandles(ctx, []handle.Handle{gone, f.fs.File("y")}, types.Metadata{}, handle.CountOptions{})
		require.NoError(t, err)
		dir.Remove("x")

		perms := f.backend.RequestPermissions(ctx, result.Key, types.PermissionRead)
		assert.True(t, perms.OK)
		assert.Equal(t, types.PermissionDenied, perms.State)
	})

	t.Run("unknown key", func(t *testing.T) {
		f := newFixture(t)
		perms := f.backend.RequestPermissions(ctx, "missing", types.PermissionRead)
		assert.False(t, perms.OK)
		assert.Equal(t, types.ReasonNotFound, perms.Reason)
	})
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return now }))

	put := func(r *Record) {
		require.NoError(t, f.backend.put(ctx, r))
	}
	old := now.Add(-time.Hour)

	// Registered but never marked committed.
	put(&Record{Key: "registered", Handles: []handle.Ref{f.fs.File("a").Ref()}, Status: StatusPending, UpdatedAt: old})
	_, err := f.registry.RegisterKey(ctx, "registered", types.Metadata{StorageType: types.StorageNativeHandle})
	require.NoError(t, err)

	// Written but never registered.
	put(&Record{Key: "orphan", Handles: []handle.Ref{f.fs.File("b").Ref()}, Status: StatusPending, UpdatedAt: old})

	// Still inside the grace window.
	put(&Record{Key: "fresh", Handles: []handle.Ref{f.fs.File("c").Ref()}, Status: StatusPending, UpdatedAt: now})

	// Registry entry whose record is gone.
	_, err = f.registry.RegisterKey(ctx, "dangling", types.Metadata{
		StorageType: types.StorageNativeHandle,
		UpdatedAt:   &old,
	})
	require.NoError(t, err)

	report, err := f.backend.Reconcile(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Scanned: 3, Committed: 1, Deleted: 1, Unregistered: 1}, report)

	rec, err := f.backend.GetRecord(ctx, "registered")
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, rec.Status)

	_, err = f.backend.GetRecord(ctx, "orphan")
	assert.ErrorIs(t, err, types.ErrUnknownKey)

	rec, err = f.backend.GetRecord(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)

	has, err := f.registry.Has(ctx, "dangling")
	require.NoError(t, err)
	assert.False(t, has)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.OrphansReconciled.WithLabelValues("deleted")))
}
