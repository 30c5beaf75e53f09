// Package registry is the key -> storage type index.
//
// The registry is the single source of truth for whether a selection key
// exists and which backend owns it. Only durably persisted selections are
// registered; transient sessions never appear here.
//
// Records live in the "registry" partition of the store and are read
// through a store.Connector, so the first call opens (and if needed
// provisions) the store and concurrent first calls share that open.
//
// Example Usage:
//
//	manager := registry.NewManager(connector, ids, registry.WithLogger(log))
//	record, err := manager.RegisterKey(ctx, "", types.Metadata{StorageType: types.StorageNativeHandle})
//	keys, err := manager.ListKeys(ctx)
//	existed, err := manager.RemoveKey(ctx, record.Key)
package registry
