package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/selectionstore/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/selectionstore/internal/logging"
	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
)

// Connector lazily opens and caches a Conn. Concurrent first callers share
// a single open. The cached conn is dropped when it closes (for example
// when a sibling upgrades the file) and re-opened on next use.
type Connector struct {
	opts    Options
	codec   *Codec
	breaker *resilience.Breaker
	logger  *logging.Logger

	group    singleflight.Group
	mu       sync.Mutex
	conn     *Conn
	required map[string]struct{}
	closed   bool

	opens atomic.Int64
}

// NewConnector creates a connector. Nothing is opened until first use.
func NewConnector(opts Options) (*Connector, error) {
	opts = opts.withDefaults()
	for _, name := range opts.Partitions {
		if err := ValidatePartition(name); err != nil {
			return nil, err
		}
	}

	codec, err := NewCodec(opts.Compress)
	if err != nil {
		return nil, err
	}

	breaker := opts.Breaker
	if breaker == nil {
		breaker = resilience.New("store:"+opts.Name, resilience.Settings{
			MaxRequests: 1,
			Timeout:     10 * time.Second,
		})
	}

	required := make(map[string]struct{}, len(opts.Partitions))
	for _, name := range opts.Partitions {
		required[name] = struct{}{}
	}

	return &Connector{
		opts:     opts,
		codec:    codec,
		breaker:  breaker,
		logger:   opts.Logger.Component("store"),
		required: required,
	}, nil
}

// Path returns the database file path
func (c *Connector) Path() string { return c.opts.Path() }

// Opens returns how many opens this connector has started
func (c *Connector) Opens() int64 { return c.opens.Load() }

// Conn returns the cached conn, opening it if needed
func (c *Connector) Conn(ctx context.Context) (*Conn, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.conn != nil && !c.conn.Closed() {
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	c.mu.Unlock()

	// The shared open must not die with whichever caller started it.
	openCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("open", func() (any, error) {
		return c.open(openCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Conn), nil
	}
}

// Warm opens the store ahead of first use
func (c *Connector) Warm(ctx context.Context) error {
	_, err := c.Conn(ctx)
	return err
}

func (c *Connector) open(ctx context.Context) (*Conn, error) {
	c.mu.Lock()
	if c.conn != nil && !c.conn.Closed() {
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	opts := c.opts
	opts.Partitions = c.requiredLocked()
	c.mu.Unlock()

	c.opens.Add(1)
	conn, err := resilience.Call(ctx, c.breaker, func(ctx context.Context) (*Conn, error) {
		return Open(ctx, opts)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", types.ErrStoreUnavailable, err)
	}
	if err != nil {
		return nil, err
	}

	conn.OnClose(c.forget)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = conn.Close()
		return nil, ErrClosed
	}
	c.conn = conn
	c.logger.Debug("store opened",
		zap.String("conn", conn.ID()),
		zap.Int("version", conn.Version()),
		zap.Strings("partitions", conn.Partitions()))
	return conn, nil
}

func (c *Connector) forget(conn *Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
}

func (c *Connector) drop(conn *Conn) {
	_ = conn.Close()
}

func (c *Connector) require(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.required[name] = struct{}{}
}

func (c *Connector) requiredLocked() []string {
	out := make([]string, 0, len(c.required))
	for name := range c.required {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// WithPartition runs fn in a transaction on partition name. If the cached
// conn lacks the partition, or loses it mid-flight, the conn is dropped and
// the whole operation retried against a fresh open that provisions it.
func (c *Connector) WithPartition(ctx context.Context, name string, mode Mode, fn func(*Partition) error) error {
	if err := ValidatePartition(name); err != nil {
		return err
	}
	c.require(name)

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		conn, err := c.Conn(ctx)
		if err != nil {
			return err
		}

		err = conn.withPartition(ctx, name, mode, c.codec, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errMissingPartition) && !errors.Is(err, ErrClosed) {
			return err
		}

		c.logger.Debug("retrying partition operation",
			zap.String("partition", name),
			zap.Int("attempt", attempt),
			zap.Error(err))
		c.drop(conn)
		lastErr = err
	}

	if errors.Is(lastErr, ErrClosed) {
		return fmt.Errorf("%w: %s: %w", types.ErrStoreUnavailable, name, lastErr)
	}
	return fmt.Errorf("%w: %s: %w", types.ErrProvisioningFailure, name, lastErr)
}

// Close closes the cached conn. The connector cannot be reused.
func (c *Connector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.codec.Close()
	return err
}
