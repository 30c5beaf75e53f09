// Package store is the persistent store connector.
//
// A store is a single SQLite file. Partitions are tables named "p_<name>"
// holding (key, value) rows, and the store version is PRAGMA user_version.
// Open negotiates the version and provisions missing partitions; a
// Connector caches one Conn per process component and re-opens it when a
// partition goes missing or a sibling upgrades the file.
//
// Components:
//   - Open, Conn: Versioned open with bounded retry and provisioning
//   - Hub: Tracks conns per file and broadcasts version changes
//   - Connector: Lazy, single-flight, cached access with breaker protection
//   - Partition: Transaction-scoped key/value operations
//   - Codec: JSON (sonic) with optional zstd compression
//
// Example:
//
//	conn := store.NewConnector(store.Options{Dir: "data", Name: "selections", Partitions: []string{"registry"}})
//	defer conn.Close()
//	err := conn.WithPartition(ctx, "registry", store.ReadWrite, func(p *store.Partition) error {
//	    return p.Put(ctx, record)
//	})
package store
