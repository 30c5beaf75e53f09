package native

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/selectionstore/internal/handle"
	"github.com/GriffinCanCode/selectionstore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/selectionstore/internal/logging"
	"github.com/GriffinCanCode/selectionstore/internal/shared/id"
	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
	"github.com/GriffinCanCode/selectionstore/internal/store"
)

// DefaultProbeConcurrency bounds parallel permission probes
const DefaultProbeConcurrency = 8

// Connector is the slice of store.Connector the backend needs
type Connector interface {
	WithPartition(ctx context.Context, name string, mode store.Mode, fn func(*store.Partition) error) error
}

// Registry is the slice of registry.Manager the backend needs
type Registry interface {
	RegisterKey(ctx context.Context, key string, meta types.Metadata) (*types.RegistryRecord, error)
	GetRecord(ctx context.Context, key string) (*types.RegistryRecord, error)
	RemoveKey(ctx context.Context, key string) (bool, error)
	ListKeys(ctx context.Context) ([]string, error)
}

// Backend persists handle selections
type Backend struct {
	conn      Connector
	registry  Registry
	resolvers *handle.Resolvers
	ids       *id.Generator

	logger           *logging.Logger
	metrics          *monitoring.Metrics
	now              func() time.Time
	probeConcurrency int
}

// Option configures a Backend
type Option func(*Backend)

func WithLogger(l *logging.Logger) Option {
	return func(b *Backend) { b.logger = l.Component("native") }
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(b *Backend) { b.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

func WithIDs(ids *id.Generator) Option {
	return func(b *Backend) { b.ids = ids }
}

// WithProbeConcurrency bounds parallel permission probes
func WithProbeConcurrency(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.probeConcurrency = n
		}
	}
}

// NewBackend creates a native backend
func NewBackend(conn Connector, registry Registry, resolvers *handle.Resolvers, opts ...Option) *Backend {
	b := &Backend{
		conn:             conn,
		registry:         registry,
		resolvers:        resolvers,
		logger:           logging.NewNop(),
		now:              time.Now,
		probeConcurrency: DefaultProbeConcurrency,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.ids == nil {
		b.ids = id.NewGenerator()
	}
	if b.resolvers == nil {
		b.resolvers = handle.NewResolvers()
	}
	return b
}

// PersistHandles stores handles under a new or caller-chosen key.
//
// The returned error is reserved for invalid input (types.ErrMissingSelection,
// types.ErrInvalidHandle). Everything else is reported through the result.
// A cancelled traversal persists nothing. Unreadable directories are skipped
// and the selection is still stored, flagged Partial.
func (b *Backend) PersistHandles(ctx context.Context, handles []handle.Handle, meta types.Metadata, opts handle.CountOptions) (types.PersistResult, error) {
	if err := handle.ValidateAll(handles); err != nil {
		return types.PersistResult{}, err
	}

	result := types.PersistResult{StorageType: types.StorageNativeHandle}

	counts, err := handle.Count(ctx, handles, opts)
	var terr *handle.TraversalError
	switch {
	case errors.As(err, &terr):
		result.Partial = true
		result.Reason = types.ReasonTraversalError
		result.Err = err
		b.logger.Warn("traversal incomplete", zap.Strings("failed", terr.Failed))
	case err != nil:
		return result.Fail(err), nil
	}
	result.Counts = counts

	key := meta.Key
	if key == "" {
		key = b.ids.NativeKey()
	}
	if err := id.ValidateKey(key); err != nil {
		return result.Fail(err), nil
	}
	result.Key = key

	created, updated := meta.Timestamps(b.now())
	record := &Record{
		Key:       key,
		Handles:   handle.Refs(handles),
		Status:    StatusPending,
		CreatedAt: created,
		UpdatedAt: updated,
		Extra:     meta.CopyExtra(),
	}
	record.setCounts(counts)

	// A reused key overwrites the stored record; keep it so a failed
	// registration can put it back.
	var prior *Record
	if meta.Key != "" {
		if existing, err := b.GetRecord(ctx, key); err == nil {
			prior = existing
		}
	}

	if err := b.put(ctx, record); err != nil {
		return result.Fail(err), nil
	}

	_, err = b.registry.RegisterKey(ctx, key, types.Metadata{
		CreatedAt:   &created,
		UpdatedAt:   &updated,
		StorageType: types.StorageNativeHandle,
		Extra:       meta.Extra,
	})
	if err != nil {
		b.compensate(ctx, key, prior, err)
		return result.Fail(err), nil
	}

	record.Status = StatusCommitted
	if err := b.put(ctx, record); err != nil {
		// Registered but still pending; Reconcile will commit it.
		b.logger.Warn("commit mark failed", zap.String("key", key), zap.Error(err))
	}

	b.metrics.IncPersisted(string(types.StorageNativeHandle))
	b.logger.Info("selection persisted",
		zap.String("key", key),
		zap.Int("files", counts.Files),
		zap.Int("directories", counts.Directories),
		zap.Int("handles", counts.Handles),
		zap.Bool("partial", result.Partial))

	result.OK = true
	result.CreatedAt = created
	result.UpdatedAt = updated
	expiry := persistentExpiry
	result.Expires = &expiry
	return result, nil
}

// compensate undoes the record write after a failed registration: the
// previous record is restored when there was one, otherwise the new record
// is deleted. Its own failures are logged only; the registration error is
// what callers see.
func (b *Backend) compensate(ctx context.Context, key string, prior *Record, cause error) {
	b.metrics.IncSagaCompensations()
	ctx = context.WithoutCancel(ctx)

	var err error
	action := "deleted"
	if prior != nil {
		action = "restored"
		err = b.put(ctx, prior)
	} else {
		_, err = b.delete(ctx, key)
	}
	if err != nil {
		b.logger.Error("compensation failed",
			zap.String("key", key),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	b.logger.Warn("registration failed, record rolled back",
		zap.String("key", key),
		zap.String("action", action),
		zap.Error(cause))
}

// GetRecord reads the stored record for key
func (b *Backend) GetRecord(ctx context.Context, key string) (*Record, error) {
	var record Record
	var found bool
	err := b.conn.WithPartition(ctx, Partition, store.ReadOnly, func(p *store.Partition) error {
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

// GetHandles resolves the stored refs of key into live handles
func (b *Backend) GetHandles(ctx context.Context, key string) ([]handle.Handle, error) {
	record, err := b.GetRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	return b.resolvers.ResolveAll(ctx, record.Handles)
}

// Remove deletes the record and then the registry entry. Removing an absent
// key succeeds with Removed=false.
func (b *Backend) Remove(ctx context.Context, key string) types.RemoveResult {
	result := types.RemoveResult{StorageType: types.StorageNativeHandle}

	hadRecord, err := b.delete(ctx, key)
	if err != nil {
		result.Reason = types.ReasonFor(err)
		result.Err = err
		return result
	}
	hadKey, err := b.registry.RemoveKey(ctx, key)
	if err != nil {
		result.Reason = types.ReasonFor(err)
		result.Err = err
		return result
	}

	result.OK = true
	result.Removed = hadRecord || hadKey
	if !result.Removed {
		result.Reason = types.ReasonNotFound
	} else {
		b.logger.Info("selection removed", zap.String("key", key))
	}
	return result
}

// CountFiles re-traverses the stored handles. Fewer files than recorded is
// reported as Partial with ReasonEntriesMissing. The stored counts are left
// untouched.
func (b *Backend) CountFiles(ctx context.Context, key string, opts handle.CountOptions) types.CountResult {
	result := types.CountResult{StorageType: types.StorageNativeHandle}

	record, err := b.GetRecord(ctx, key)
	if err != nil {
		result.Reason = types.ReasonFor(err)
		result.Err = err
		return result
	}
	recorded := record.Counts()
	result.Recorded = &recorded

	live := make([]handle.Handle, 0, len(record.Handles))
	unresolved := 0
	for _, ref := range record.Handles {
		h, err := b.resolvers.Resolve(ctx, ref)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				result.Reason = types.ReasonCancelled
				result.Err = ctxErr
				return result
			}
			b.logger.Debug("handle unresolved", zap.String("ref", ref.Identity()), zap.Error(err))
			unresolved++
			continue
		}
		live = append(live, h)
	}

	counts, err := handle.Count(ctx, live, opts)
	var terr *handle.TraversalError
	switch {
	case errors.As(err, &terr):
		result.Partial = true
		result.Reason = types.ReasonTraversalError
		result.Err = err
	case err != nil:
		result.Reason = types.ReasonFor(err)
		result.Err = err
		return result
	}
	counts.Handles = len(record.Handles)
	result.Counts = counts
	result.OK = true

	if counts.Files < recorded.Files || unresolved > 0 {
		result.Partial = true
		result.Reason = types.ReasonEntriesMissing
		b.metrics.IncDriftDetected(string(types.StorageNativeHandle))
		b.logger.Info("drift detected",
			zap.String("key", key),
			zap.Int("recorded_files", recorded.Files),
			zap.Int("files", counts.Files),
			zap.Int("unresolved", unresolved))
	}
	return result
}

// RequestPermissions probes every stored handle and aggregates the states.
// A probe or resolve failure counts as denied for that handle alone.
func (b *Backend) RequestPermissions(ctx context.Context, key string, mode types.PermissionMode) types.PermissionResult {
	result := types.PermissionResult{}

	record, err := b.GetRecord(ctx, key)
	if err != nil {
		result.Reason = types.ReasonFor(err)
		result.Err = err
		return result
	}
	if mode == "" {
		mode = types.PermissionRead
	}

	states := make([]types.PermissionState, len(record.Handles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.probeConcurrency)
	for i, ref := range record.Handles {
		g.Go(func() error {
			states[i] = b.probe(gctx, ref, mode)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		result.Reason = types.ReasonCancelled
		result.Err = err
		return result
	}

	result.OK = true
	result.State = handle.AggregatePermissions(states)
	result.Counts = record.Counts()
	result.Counts.Handles = len(record.Handles)
	return result
}

func (b *Backend) probe(ctx context.Context, ref handle.Ref, mode types.PermissionMode) types.PermissionState {
	state, err := func() (types.PermissionState, error) {
		h, err := b.resolvers.Resolve(ctx, ref)
		if err != nil {
			return types.PermissionDenied, err
		}
		return handle.Probe(ctx, h, mode)
	}()
	if err != nil {
		b.logger.Debug("permission probe failed", zap.String("ref", ref.Identity()), zap.Error(err))
		state = types.PermissionDenied
	}
	b.metrics.RecordPermissionProbe(string(state))
	return state
}

func (b *Backend) put(ctx context.Context, record *Record) error {
	return b.conn.WithPartition(ctx, Partition, store.ReadWrite, func(p *store.Partition) error {
		return p.Put(ctx, record)
	})
}

func (b *Backend) delete(ctx context.Context, key string) (bool, error) {
	var existed bool
	err := b.conn.WithPartition(ctx, Partition, store.ReadWrite, func(p *store.Partition) error {
		var err error
		existed, err = p.Delete(ctx, key)
		return err
	})
	return existed, err
}
