// Package config provides 12-factor configuration for the selection store.
//
// Values start from Default(), are optionally overlaid by a YAML
// or TOML file (LoadFile) and finally by environment variables.
//
// Configuration Sections:
//   - Store: SQLite location, schema version and retry budget
//   - Transient: In-memory session teardown behaviour
//   - Permissions: Probe fan-out
//   - Logging: Log level and output format
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("store at %s\n", cfg.Store.Path())
//
// Environment Variables:
//   - SELECTION_STORE_DIR, SELECTION_STORE_NAME, SELECTION_STORE_VERSION
//   - SELECTION_STORE_MAX_ATTEMPTS, SELECTION_STORE_BUSY_TIMEOUT, SELECTION_STORE_COMPRESS
//   - SELECTION_RECONCILE_ON_START, SELECTION_RECONCILE_GRACE
//   - SELECTION_WATCH_SIGNALS, SELECTION_PROBE_CONCURRENCY
//   - LOG_LEVEL, LOG_DEV
package config
