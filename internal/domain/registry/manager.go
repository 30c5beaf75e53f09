package registry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/selectionstore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/selectionstore/internal/logging"
	"github.com/GriffinCanCode/selectionstore/internal/shared/id"
	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
	"github.com/GriffinCanCode/selectionstore/internal/store"
)

// Partition is the store partition holding registry records
const Partition = "registry"

// Connector is the slice of store.Connector the registry needs
type Connector interface {
	WithPartition(ctx context.Context, name string, mode store.Mode, fn func(*store.Partition) error) error
}

// Manager is the authoritative key -> storage type index
type Manager struct {
	conn    Connector
	ids     *id.Generator
	logger  *logging.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l.Component("registry") }
}

// WithMetrics sets the metrics sink
func WithMetrics(mt *monitoring.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a registry manager over conn
func NewManager(conn Connector, ids *id.Generator, opts ...Option) *Manager {
	m := &Manager{
		conn:   conn,
		ids:    ids,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ids == nil {
		m.ids = id.NewGenerator()
	}
	return m
}

// RegisterKey records key with the given metadata. An empty key gets a
// generated one. Re-registering keeps the original CreatedAt unless meta
// overrides it.
func (m *Manager) RegisterKey(ctx context.Context, key string, meta types.Metadata) (*types.RegistryRecord, error) {
	if key == "" {
		key = meta.Key
	}
	if key == "" {
		key = m.ids.NativeKey()
	}
	if err := id.ValidateKey(key); err != nil {
		return nil, err
	}

	storageType := meta.StorageType
	if storageType == "" {
		storageType = types.StorageUninitialized
	}
	if !storageType.Valid() {
		return nil, fmt.Errorf("unknown storage type %q", storageType)
	}

	created, updated := meta.Timestamps(m.now())
	record := &types.RegistryRecord{
		Key:         key,
		StorageType: storageType,
		CreatedAt:   created,
		UpdatedAt:   updated,
		Extra:       meta.CopyExtra(),
	}

	err := m.conn.WithPartition(ctx, Partition, store.ReadWrite, func(p *store.Partition) error {
		var existing types.RegistryRecord
		found, err := p.Get(ctx, key, &existing)
		if err != nil {
			return err
		}
		if found && meta.CreatedAt == nil {
			record.CreatedAt = existing.CreatedAt
		}
		return p.Put(ctx, record)
	})
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", key, err)
	}

	m.logger.Debug("key registered",
		zap.String("key", key),
		zap.String("storage_type", string(storageType)))
	return record, nil
}

// ListKeys returns every registered key in ascending order
func (m *Manager) ListKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := m.conn.WithPartition(ctx, Partition, store.ReadOnly, func(p *store.Partition) error {
		var err error
		keys, err = p.GetAllKeys(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	m.metrics.SetRegistryKeys(len(keys))
	return keys, nil
}

// GetRecord returns the record for key, or types.ErrUnknownKey
func (m *Manager) GetRecord(ctx context.Context, key string) (*types.RegistryRecord, error) {
	var record types.RegistryRecord
	var found bool
	err := m.conn.WithPartition(ctx, Partition, store.ReadOnly, func(p *store.Partition) error {
		var err error
		found, err = p.Get(ctx, key, &record)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownKey, key)
	}
	return &record, nil
}

// Has reports whether key is registered
func (m *Manager) Has(ctx context.Context, key string) (bool, error) {
	_, err := m.GetRecord(ctx, key)
	if err == nil {
		return true, nil
	}
	if types.ReasonFor(err) == types.ReasonNotFound {
		return false, nil
	}
	return false, err
}

// RemoveKey deletes key, reporting whether it was present
func (m *Manager) RemoveKey(ctx context.Context, key string) (bool, error) {
	var existed bool
	err := m.conn.WithPartition(ctx, Partition, store.ReadWrite, func(p *store.Partition) error {
		var err error
		existed, err = p.Delete(ctx, key)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", key, err)
	}
	if existed {
		m.logger.Debug("key removed", zap.String("key", key))
	}
	return existed, nil
}

// Clear removes every registry record
func (m *Manager) Clear(ctx context.Context) error {
	err := m.conn.WithPartition(ctx, Partition, store.ReadWrite, func(p *store.Partition) error {
		return p.Clear(ctx)
	})
	if err != nil {
		return fmt.Errorf("clear registry: %w", err)
	}
	m.metrics.SetRegistryKeys(0)
	m.logger.Info("registry cleared")
	return nil
}
