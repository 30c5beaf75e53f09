// Package native is the durable backend for selections made of handles.
//
// A selection is stored as a Record in the "native-handles" partition: the
// serialized handle refs in their original order plus file, directory and
// handle counts taken at persist time. Counts are a snapshot; CountFiles
// re-traverses and reports drift when files have disappeared since.
//
// Persisting is a two-step saga across partitions. The record is written
// with Status pending, the key is registered, then the record is marked
// committed. If registration fails the record is deleted again. Reconcile
// repairs whatever an abnormal termination left behind:
//   - pending record, key registered: marked committed
//   - pending record, key not registered: deleted
//   - native registry entry without a record: unregistered
//
// Handle refs are turned back into live handles through handle.Resolvers,
// so the backend works with any handle family that has a resolver.
package native
