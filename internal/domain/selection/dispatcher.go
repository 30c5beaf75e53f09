package selection

import (
	"context"
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/selectionstore/internal/domain/native"
	"github.com/GriffinCanCode/selectionstore/internal/domain/session"
	"github.com/GriffinCanCode/selectionstore/internal/handle"
	"github.com/GriffinCanCode/selectionstore/internal/logging"
	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
)

// Registry is the slice of registry.Manager the dispatcher reads
type Registry interface {
	ListKeys(ctx context.Context) ([]string, error)
	GetRecord(ctx context.Context, key string) (*types.RegistryRecord, error)
}

// NativeBackend is the slice of native.Backend the dispatcher drives
type NativeBackend interface {
	PersistHandles(ctx context.Context, handles []handle.Handle, meta types.Metadata, opts handle.CountOptions) (types.PersistResult, error)
	GetHandles(ctx context.Context, key string) ([]handle.Handle, error)
	CountFiles(ctx context.Context, key string, opts handle.CountOptions) types.CountResult
	Remove(ctx context.Context, key string) types.RemoveResult
	RequestPermissions(ctx context.Context, key string, mode types.PermissionMode) types.PermissionResult
}

var _ NativeBackend = (*native.Backend)(nil)

// Dispatcher is the public selection API. It routes each key to the backend
// that owns it: the registry is consulted first, then live transient
// sessions, then transient tombstones.
type Dispatcher struct {
	registry Registry
	native   NativeBackend
	sessions *session.Manager
	logger   *logging.Logger
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = l.Component("selection") }
}

// New creates a dispatcher over explicitly constructed backends
func New(registry Registry, nativeBackend NativeBackend, sessions *session.Manager, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		native:   nativeBackend,
		sessions: sessions,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AddOption tunes a single Add call
type AddOption func(*addConfig)

type addConfig struct {
	progress handle.Progress
}

// WithProgress reports running counts while a native selection is traversed
func WithProgress(fn handle.Progress) AddOption {
	return func(c *addConfig) { c.progress = fn }
}

// Add stores a selection. The batch goes to the native backend only when
// every item is a valid handle; otherwise the whole batch is held as a
// transient session. Setting meta.StorageType to transient-session forces
// the transient path.
//
// A key reused across backends belongs to the latest write: the other
// backend's copy is removed.
//
// The error return is reserved for invalid input.
func (d *Dispatcher) Add(ctx context.Context, sel any, meta types.Metadata, opts ...AddOption) (types.PersistResult, error) {
	var cfg addConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	items, err := Normalize(sel)
	if err != nil {
		return types.PersistResult{}, err
	}

	if allHandles(items) && meta.StorageType != types.StorageTransientSession {
		handles := make([]handle.Handle, len(items))
		for i, it := range items {
			handles[i] = it.Handle
		}
		result, err := d.native.PersistHandles(ctx, handles, meta, handle.CountOptions{Progress: cfg.progress})
		if err == nil && result.OK && meta.Key != "" && d.sessions.Remove(result.Key) {
			d.logger.Debug("transient session replaced by native selection", zap.String("key", result.Key))
		}
		return result, err
	}

	if meta.Key != "" {
		if err := d.evictNative(ctx, meta.Key); err != nil {
			return types.PersistResult{StorageType: types.StorageTransientSession, Key: meta.Key}.Fail(err), nil
		}
	}

	entries := make([]session.Entry, len(items))
	downgraded := 0
	for i, it := range items {
		if it.Variant == VariantHandle {
			downgraded++
			entries[i] = handleEntry(it.Handle)
			continue
		}
		entries[i] = it.Entry
	}
	if downgraded > 0 {
		d.logger.Warn("handles stored as transient selection",
			zap.Int("handles", downgraded),
			zap.Int("items", len(items)))
	}
	return d.sessions.PersistEntries(entries, meta)
}

// evictNative removes a native selection stored under key so a transient
// write to the same key takes over. An unreachable registry is an error:
// the old owner would otherwise keep shadowing the key.
func (d *Dispatcher) evictNative(ctx context.Context, key string) error {
	record, err := d.registry.GetRecord(ctx, key)
	switch {
	case errors.Is(err, types.ErrUnknownKey):
		return nil
	case err != nil:
		return err
	case record.StorageType == types.StorageTransientSession:
		return nil
	}

	removed := d.native.Remove(ctx, key)
	if !removed.OK {
		return removed.Err
	}
	d.logger.Debug("native selection replaced by transient session", zap.String("key", key))
	return nil
}

func handleEntry(h handle.Handle) session.Entry {
	e := session.Entry{Name: h.Name(), Kind: h.Kind(), Source: h}
	if h.Kind() == handle.KindDirectory {
		e.Path = h.Name() + "/"
	}
	return e
}

// ListOptions filters ListKeys
type ListOptions struct {
	ExcludeTransient bool
	// Pattern is a doublestar glob matched against keys, e.g. "sel_*"
	Pattern string
}

// ListKeys returns registry keys followed by live transient keys, without
// duplicates. If the registry is unreachable the transient keys are still
// returned alongside the failure reason.
func (d *Dispatcher) ListKeys(ctx context.Context, opts ListOptions) types.KeysResult {
	if opts.Pattern != "" && !doublestar.ValidatePattern(opts.Pattern) {
		err := fmt.Errorf("invalid pattern %q: %w", opts.Pattern, doublestar.ErrBadPattern)
		return types.KeysResult{Keys: []string{}, Reason: types.ReasonFor(err), Err: err}
	}

	result := types.KeysResult{OK: true, Keys: []string{}}
	seen := make(map[string]struct{})
	add := func(key string) {
		if _, dup := seen[key]; dup {
			return
		}
		if opts.Pattern != "" {
			if ok, _ := doublestar.Match(opts.Pattern, key); !ok {
				return
			}
		}
		seen[key] = struct{}{}
		result.Keys = append(result.Keys, key)
	}

	keys, err := d.registry.ListKeys(ctx)
	if err != nil {
		result.OK = false
		result.Reason = types.ReasonFor(err)
		result.Err = err
	}
	for _, k := range keys {
		add(k)
	}
	if !opts.ExcludeTransient {
		for _, k := range d.sessions.Keys() {
			add(k)
		}
	}
	return result
}

type owner struct {
	storage   types.StorageType
	tombstone *session.Tombstone
}

// locate finds the backend that owns key. Transient sessions are still
// found when the registry cannot be reached.
func (d *Dispatcher) locate(ctx context.Context, key string) (owner, error) {
	record, regErr := d.registry.GetRecord(ctx, key)
	if regErr == nil {
		return owner{storage: record.StorageType}, nil
	}
	if !errors.Is(regErr, types.ErrUnknownKey) {
		if d.sessions.GetStatus(key).Status == session.StatusActive {
			return owner{storage: types.StorageTransientSession}, nil
		}
		return owner{}, regErr
	}

	status := d.sessions.GetStatus(key)
	switch status.Status {
	case session.StatusActive:
		return owner{storage: types.StorageTransientSession}, nil
	case session.StatusExpired:
		return owner{storage: types.StorageTransientSession, tombstone: status.Tombstone},
			fmt.Errorf("%w: %s (%s)", types.ErrTransientExpired, key, status.Tombstone.Reason)
	default:
		return owner{}, fmt.Errorf("%w: %s", types.ErrUnknownKey, key)
	}
}

// GetStorageType reports which backend owns key
func (d *Dispatcher) GetStorageType(ctx context.Context, key string) types.StorageTypeResult {
	o, err := d.locate(ctx, key)
	if err != nil {
		return types.StorageTypeResult{StorageType: o.storage, Reason: types.ReasonFor(err), Err: err}
	}
	return types.StorageTypeResult{OK: true, StorageType: o.storage}
}

// Exists reports whether key is currently usable. Expired transient keys
// do not exist but carry ReasonTransientExpired.
func (d *Dispatcher) Exists(ctx context.Context, key string) types.ExistsResult {
	o, err := d.locate(ctx, key)
	if err != nil {
		return types.ExistsResult{StorageType: o.storage, Reason: types.ReasonFor(err), Err: err}
	}
	return types.ExistsResult{Exists: true, StorageType: o.storage}
}

// GetFileCount recounts the selection from scratch every time
func (d *Dispatcher) GetFileCount(ctx context.Context, key string, opts ...AddOption) types.CountResult {
	var cfg addConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	o, err := d.locate(ctx, key)
	if err != nil {
		return types.CountResult{StorageType: o.storage, Reason: types.ReasonFor(err), Err: err}
	}

	if o.storage != types.StorageTransientSession {
		return d.native.CountFiles(ctx, key, handle.CountOptions{Progress: cfg.progress})
	}

	result := types.CountResult{StorageType: types.StorageTransientSession}
	counts, ok := d.sessions.Recount(key)
	recorded, _ := d.sessions.Recorded(key)
	if !ok {
		err := fmt.Errorf("%w: %s", types.ErrTransientExpired, key)
		result.Reason = types.ReasonFor(err)
		result.Err = err
		return result
	}
	result.OK = true
	result.Counts = counts
	result.Recorded = &recorded
	if counts.Files < recorded.Files {
		result.Partial = true
		result.Reason = types.ReasonEntriesMissing
	}
	return result
}

// Remove deletes key from whichever backend owns it, along with any
// transient session or tombstone left under the same key. Removing an
// expired transient key discards its tombstone. Absent keys succeed with
// Removed=false.
func (d *Dispatcher) Remove(ctx context.Context, key string) types.RemoveResult {
	o, err := d.locate(ctx, key)
	switch {
	case errors.Is(err, types.ErrUnknownKey):
		return types.RemoveResult{OK: true, Reason: types.ReasonNotFound}
	case errors.Is(err, types.ErrTransientExpired):
		removed := d.sessions.Remove(key)
		return types.RemoveResult{OK: true, Removed: removed, StorageType: types.StorageTransientSession}
	case err != nil:
		return types.RemoveResult{Reason: types.ReasonFor(err), Err: err}
	}

	if o.storage == types.StorageTransientSession {
		removed := d.sessions.Remove(key)
		result := types.RemoveResult{OK: true, Removed: removed, StorageType: o.storage}
		if !removed {
			result.Reason = types.ReasonNotFound
		}
		return result
	}
	result := d.native.Remove(ctx, key)
	if result.OK && d.sessions.Remove(key) {
		result.Removed = true
		result.Reason = types.ReasonNone
	}
	return result
}

// RequestPermissions probes the handles of a native selection. Transient
// selections hold no handles and report ReasonUnsupportedStorage.
func (d *Dispatcher) RequestPermissions(ctx context.Context, key string, mode types.PermissionMode) types.PermissionResult {
	o, err := d.locate(ctx, key)
	if err != nil {
		return types.PermissionResult{Reason: types.ReasonFor(err), Err: err}
	}
	if o.storage == types.StorageTransientSession {
		err := fmt.Errorf("%w: %s is transient", types.ErrUnsupportedStorage, key)
		counts, _ := d.sessions.Recorded(key)
		return types.PermissionResult{Counts: counts, Reason: types.ReasonFor(err), Err: err}
	}
	return d.native.RequestPermissions(ctx, key, mode)
}

// Resolved is the live content behind a key
type Resolved struct {
	StorageType types.StorageType
	Handles     []handle.Handle
	Entries     []session.Entry
}

// Resolve returns live handles for native keys and entry copies for
// transient keys.
func (d *Dispatcher) Resolve(ctx context.Context, key string) (Resolved, error) {
	o, err := d.locate(ctx, key)
	if err != nil {
		return Resolved{StorageType: o.storage}, err
	}
	if o.storage == types.StorageTransientSession {
		entries, ok := d.sessions.GetEntries(key)
		if !ok {
			return Resolved{StorageType: o.storage}, fmt.Errorf("%w: %s", types.ErrTransientExpired, key)
		}
		return Resolved{StorageType: o.storage, Entries: entries}, nil
	}
	handles, err := d.native.GetHandles(ctx, key)
	if err != nil {
		return Resolved{StorageType: o.storage}, err
	}
	return Resolved{StorageType: o.storage, Handles: handles}, nil
}
