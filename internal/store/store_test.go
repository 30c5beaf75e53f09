package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/selectionstore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/selectionstore/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
)

type item struct {
	Key string `json:"key"`
	N   int    `json:"n"`
}

func (i item) StoreKey() string { return i.Key }

func testOptions(t *testing.T, partitions ...string) Options {
	t.Helper()
	return Options{
		Dir:        t.TempDir(),
		Name:       "test",
		Partitions: partitions,
		Metrics:    monitoring.NewMetrics(nil),
	}
}

func newConnector(t *testing.T, opts Options) *Connector {
	t.Helper()
	c, err := NewConnector(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpenProvisionsPartitions(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t, "registry", "native-handles")

	conn, err := Open(ctx, opts)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, 1, conn.Version())
	assert.Equal(t, []string{"native-handles", "registry"}, conn.Partitions())
	assert.Empty(t, conn.Missing(opts.Partitions))
}

func TestOpenVersionStrictlyIncreases(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t, "a")

	first, err := Open(ctx, opts)
	require.NoError(t, err)
	v1 := first.Version()
	require.NoError(t, first.Close())

	opts.Partitions = []string{"a", "b"}
	second, err := Open(ctx, opts)
	require.NoError(t, err)
	defer second.Close()

	assert.Greater(t, second.Version(), v1)
	assert.True(t, second.HasPartition("a"))
	assert.True(t, second.HasPartition("b"))
}

func TestOpenVersionTooLowFallsBack(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t, "a")
	opts.Version = 5

	conn, err := Open(ctx, opts)
	require.NoError(t, err)
	require.Equal(t, 5, conn.Version())
	require.NoError(t, conn.Close())

	opts.Version = 2
	conn, err = Open(ctx, opts)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, 5, conn.Version())
}

func TestOpenBlockedByWriter(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t, "a")
	opts.BusyTimeout = 50 * time.Millisecond

	first, err := Open(ctx, opts)
	require.NoError(t, err)
	v1 := first.Version()
	require.NoError(t, first.Close())

	// Another connection holds the write lock for the whole first round.
	db, err := sql.Open("sqlite", dsn(opts))
	require.NoError(t, err)
	defer db.Close()
	holder, err := db.Conn(ctx)
	require.NoError(t, err)
	_, err = holder.ExecContext(ctx, "BEGIN IMMEDIATE")
	require.NoError(t, err)

	opts.Partitions = []string{"a", "b"}
	_, err = Open(ctx, opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrProvisioningFailure)
	assert.ErrorIs(t, err, errMissingPartition)

	_, err = holder.ExecContext(ctx, "ROLLBACK")
	require.NoError(t, err)
	require.NoError(t, holder.Close())

	conn, err := Open(ctx, opts)
	require.NoError(t, err)
	defer conn.Close()
	assert.Greater(t, conn.Version(), v1)
	assert.Equal(t, []string{"a", "b"}, conn.Partitions())
}

func TestIsBlocked(t *testing.T) {
	assert.False(t, isBlocked(nil))
	assert.False(t, isBlocked(errors.New("database is locked")))
}

func TestOpenProvisioningFailure(t *testing.T) {
	opts := testOptions(t, "a")
	opts.MaxAttempts = 1

	_, err := Open(context.Background(), opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrProvisioningFailure)
	assert.Equal(t, types.ReasonProvisioningFailure, types.ReasonFor(err))
}

func TestOpenInvalidPartition(t *testing.T) {
	_, err := Open(context.Background(), testOptions(t, `bad"name`))
	assert.Error(t, err)
}

func TestPartitionOperations(t *testing.T) {
	ctx := context.Background()
	c := newConnector(t, testOptions(t, "items"))

	err := c.WithPartition(ctx, "items", ReadWrite, func(p *Partition) error {
		for i, key := range []string{"b", "a", "c"} {
			if err := p.Put(ctx, item{Key: key, N: i}); err != nil {
				return err
			}
		}
		return p.Put(ctx, item{Key: "a", N: 10})
	})
	require.NoError(t, err)

	err = c.WithPartition(ctx, "items", ReadOnly, func(p *Partition) error {
		var got item
		found, err := p.Get(ctx, "a", &got)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 10, got.N)

		found, err = p.Get(ctx, "zzz", &got)
		require.NoError(t, err)
		assert.False(t, found)

		keys, err := p.GetAllKeys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, keys)

		var scanned []string
		require.NoError(t, p.Scan(ctx, func(key string, decode func(any) error) error {
			var it item
			if err := decode(&it); err != nil {
				return err
			}
			scanned = append(scanned, it.Key)
			return nil
		}))
		assert.Equal(t, keys, scanned)

		assert.ErrorIs(t, p.Put(ctx, item{Key: "d"}), ErrReadOnly)
		_, err = p.Delete(ctx, "a")
		assert.ErrorIs(t, err, ErrReadOnly)
		assert.ErrorIs(t, p.Clear(ctx), ErrReadOnly)
		return nil
	})
	require.NoError(t, err)

	err = c.WithPartition(ctx, "items", ReadWrite, func(p *Partition) error {
		existed, err := p.Delete(ctx, "a")
		require.NoError(t, err)
		assert.True(t, existed)

		existed, err = p.Delete(ctx, "a")
		require.NoError(t, err)
		assert.False(t, existed)

		require.NoError(t, p.Clear(ctx))
		keys, err := p.GetAllKeys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
		return nil
	})
	require.NoError(t, err)
}

func TestWithPartitionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	c := newConnector(t, testOptions(t, "items"))
	boom := errors.New("boom")

	err := c.WithPartition(ctx, "items", ReadWrite, func(p *Partition) error {
		require.NoError(t, p.Put(ctx, item{Key: "a"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = c.WithPartition(ctx, "items", ReadOnly, func(p *Partition) error {
		found, err := p.Get(ctx, "a", &item{})
		assert.False(t, found)
		return err
	})
	require.NoError(t, err)
}

func TestConnectorSingleFlightOpen(t *testing.T) {
	ctx := context.Background()
	c := newConnector(t, testOptions(t, "items"))

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- c.WithPartition(ctx, "items", ReadWrite, func(p *Partition) error {
				return p.Put(ctx, item{Key: string(rune('a' + i)), N: i})
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), c.Opens())
}

func TestConnectorProvisionsUnknownPartition(t *testing.T) {
	ctx := context.Background()
	c := newConnector(t, testOptions(t, "a"))
	require.NoError(t, c.Warm(ctx))

	err := c.WithPartition(ctx, "b", ReadWrite, func(p *Partition) error {
		return p.Put(ctx, item{Key: "x"})
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Opens())
}

func TestConnectorRecoversDroppedTable(t *testing.T) {
	ctx := context.Background()
	c := newConnector(t, testOptions(t, "items"))

	conn, err := c.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.db.ExecContext(ctx, `DROP TABLE "p_items"`)
	require.NoError(t, err)

	err = c.WithPartition(ctx, "items", ReadWrite, func(p *Partition) error {
		return p.Put(ctx, item{Key: "x"})
	})
	require.NoError(t, err)
	assert.True(t, conn.Closed())
	assert.Equal(t, int64(2), c.Opens())
}

func TestHubClosesSiblingsOnUpgrade(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	opts := testOptions(t, "a")
	opts.Hub = hub

	first := newConnector(t, opts)
	old, err := first.Conn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Count(opts.Path()))

	opts.Partitions = []string{"a", "b"}
	second := newConnector(t, opts)
	upgraded, err := second.Conn(ctx)
	require.NoError(t, err)

	assert.True(t, old.Closed())
	assert.Greater(t, upgraded.Version(), old.Version())
	assert.Equal(t, 1, hub.Count(opts.Path()))

	// The first connector transparently reopens at the new version.
	err = first.WithPartition(ctx, "a", ReadWrite, func(p *Partition) error {
		return p.Put(ctx, item{Key: "k"})
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Opens())
	assert.Equal(t, 2, hub.Count(opts.Path()))
}

func TestConnectorBreakerSurfacesUnavailable(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t, "a")
	blocker := filepath.Join(opts.Dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	opts.Dir = blocker
	opts.Breaker = resilience.New("test", resilience.Settings{
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	c := newConnector(t, opts)

	err := c.Warm(ctx)
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)

	err = c.Warm(ctx)
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestConnectorClosed(t *testing.T) {
	c := newConnector(t, testOptions(t, "a"))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Conn(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCompressedValues(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t, "items")
	opts.Compress = true
	c := newConnector(t, opts)

	require.NoError(t, c.WithPartition(ctx, "items", ReadWrite, func(p *Partition) error {
		return p.Put(ctx, item{Key: "a", N: 42})
	}))
	require.NoError(t, c.Close())

	// A reader without compression still decodes the value.
	opts.Compress = false
	plain := newConnector(t, opts)
	require.NoError(t, plain.WithPartition(ctx, "items", ReadOnly, func(p *Partition) error {
		var got item
		found, err := p.Get(ctx, "a", &got)
		require.True(t, found)
		assert.Equal(t, 42, got.N)
		return err
	}))
}

func TestCodec(t *testing.T) {
	compress, err := NewCodec(true)
	require.NoError(t, err)
	defer compress.Close()

	data, err := compress.Marshal(item{Key: "a", N: 1})
	require.NoError(t, err)
	assert.Equal(t, zstdMagic, data[:4])

	var got item
	require.NoError(t, compress.Unmarshal(data, &got))
	assert.Equal(t, item{Key: "a", N: 1}, got)

	require.NoError(t, compress.Unmarshal([]byte(`{"key":"b","n":2}`), &got))
	assert.Equal(t, "b", got.Key)

	assert.Error(t, compress.Unmarshal([]byte(`not json`), &got))
}
