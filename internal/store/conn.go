package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/selectionstore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/selectionstore/internal/logging"
	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
)

// Conn is one open handle on the database file at a fixed version
type Conn struct {
	id         string
	path       string
	db         *sql.DB
	version    int
	partitions map[string]struct{}

	hub     *Hub
	logger  *logging.Logger
	metrics *monitoring.Metrics

	closed    atomic.Bool
	closeOnce sync.Once
	mu        sync.Mutex
	onClose   []func(*Conn)
}

// ID returns the conn's unique id
func (c *Conn) ID() string { return c.id }

// Path returns the database file path
func (c *Conn) Path() string { return c.path }

// Version returns the store version negotiated at open
func (c *Conn) Version() int { return c.version }

// Closed reports whether the conn has been closed
func (c *Conn) Closed() bool { return c.closed.Load() }

// HasPartition reports whether the partition existed at open
func (c *Conn) HasPartition(name string) bool {
	_, ok := c.partitions[name]
	return ok
}

// Partitions lists the partitions present at open, sorted
func (c *Conn) Partitions() []string {
	out := make([]string, 0, len(c.partitions))
	for name := range c.partitions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Missing returns the required partitions this conn does not have
func (c *Conn) Missing(required []string) []string {
	var missing []string
	for _, name := range required {
		if !c.HasPartition(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// OnClose registers fn to run once the conn closes, for any reason
func (c *Conn) OnClose(fn func(*Conn)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, fn)
}

// Close releases the database handle. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.hub.unregister(c)
		err = c.db.Close()

		c.mu.Lock()
		hooks := c.onClose
		c.onClose = nil
		c.mu.Unlock()
		for _, fn := range hooks {
			fn(c)
		}
	})
	return err
}

func (c *Conn) versionChange(version int) {
	c.logger.Debug("closing on version change",
		zap.String("conn", c.id),
		zap.Int("from", c.version),
		zap.Int("to", version))
	_ = c.Close()
}

// withPartition runs fn in one transaction. A partition that this conn does
// not know, or a table that vanished, surfaces as errMissingPartition.
func (c *Conn) withPartition(ctx context.Context, name string, mode Mode, codec *Codec, fn func(*Partition) error) (err error) {
	if c.Closed() {
		return ErrClosed
	}
	if !c.HasPartition(name) {
		return fmt.Errorf("%w: %s", errMissingPartition, name)
	}

	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordStoreOp(name, mode.String(), status, time.Since(start))
	}()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return c.classify(err)
	}

	p := &Partition{tx: tx, name: name, table: tableName(name), mode: mode, codec: codec}
	if err := fn(p); err != nil {
		_ = tx.Rollback()
		if c.Closed() {
			return fmt.Errorf("%w: %w", ErrClosed, err)
		}
		if isMissingTable(err) {
			return fmt.Errorf("%w: %s", errMissingPartition, name)
		}
		return err
	}

	if mode == ReadOnly {
		return c.classify(tx.Rollback())
	}
	return c.classify(tx.Commit())
}

func (c *Conn) classify(err error) error {
	if err == nil {
		return nil
	}
	if c.Closed() {
		return ErrClosed
	}
	if isMissingTable(err) {
		return fmt.Errorf("%w: %w", errMissingPartition, err)
	}
	return fmt.Errorf("%w: %w", types.ErrStoreUnavailable, err)
}
