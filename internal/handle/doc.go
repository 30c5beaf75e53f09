// Package handle models opaque, re-resolvable references to files and
// directories.
//
// A Handle never carries file content. It can be flattened into a Ref
// (scheme, locator, kind, name) for durable storage and turned back into a
// live Handle by the Resolver registered for the Ref's scheme.
//
// Components:
//   - Handle, Directory: The live reference and its listing capability
//   - PermissionQuerier, PermissionRequester: Optional access probes
//   - Ref, Resolver, Resolvers: Serialization and rehydration
//   - Count: Cycle-safe recursive file/directory counting
//   - AggregatePermissions: Folds per-handle states into one
//
// Implementations live in sub-packages: osfs (scheme "file") and memfs
// (scheme "mem").
package handle
