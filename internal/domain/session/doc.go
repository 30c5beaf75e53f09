// Package session is the in-memory backend for selections that cannot be
// stored durably.
//
// A Session holds copies of the caller's file-like or entry-like items and
// their counts. Sessions live only as long as the process: a Teardown
// trigger, subscribed lazily on first use, sweeps every active session into
// a Tombstone so callers can tell "expired" apart from "never existed".
//
// Components:
//   - Manager: Session storage, expiry, status and copies
//   - Entry, Classify: Kind inference and file/directory counting
//   - ManualTeardown, SignalTeardown: Teardown triggers
//
// Example Usage:
//
//	manager := session.NewManager(session.WithTeardown(session.NewSignalTeardown()))
//	result, err := manager.PersistEntries(entries, types.Metadata{})
//	status := manager.GetStatus(result.Key)
package session
