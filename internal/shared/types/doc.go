// Package types provides shared data structures for the selection store.
//
// This package defines the vocabulary used by every backend and by the
// public dispatcher, so results and errors have one shape regardless of
// which backend produced them.
//
// Core Types:
//   - StorageType: Which backend owns a key
//   - RegistryRecord: Durable key -> storage type pointer
//   - Counts: File/directory/handle snapshot
//   - Metadata: Caller-supplied overrides on add
//
// Results:
//   - PersistResult, CountResult, RemoveResult, ExistsResult
//   - StorageTypeResult, PermissionResult, KeysResult
//
// Errors:
//   - Sentinel errors (ErrUnknownKey, ErrStoreUnavailable, ...)
//   - Reason codes derived with ReasonFor for structured results
//
// Example Usage:
//
//	res := dispatcher.Exists(ctx, key)
//	if !res.Exists && res.Reason == types.ReasonTransientExpired {
//	    // ask the user to pick the files again
//	}
package types
