// Package memfs is an in-memory handle family (scheme "mem"). It backs
// tests and ephemeral selections where no real filesystem is involved.
package memfs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/GriffinCanCode/selectionstore/internal/handle"
	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
)

// Scheme identifies memfs refs
const Scheme = "mem"

// ErrNotFound is returned when a ref no longer points at a node
var ErrNotFound = errors.New("memfs: node not found")

// FS is an in-memory tree of nodes indexed by path
type FS struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	roots []*Node
}

// New creates an empty filesystem
func New() *FS {
	return &FS{nodes: make(map[string]*Node)}
}

// Dir creates (or returns) a top-level directory
func (fs *FS) Dir(name string) *Node {
	return fs.add(nil, name, handle.KindDirectory)
}

// File creates (or returns) a top-level file
func (fs *FS) File(name string) *Node {
	return fs.add(nil, name, handle.KindFile)
}

// Lookup returns the node at p
func (fs *FS) Lookup(p string) (*Node, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	n, ok := fs.nodes[clean(p)]
	return n, ok
}

// Scheme implements handle.Resolver
func (fs *FS) Scheme() string { return Scheme }

// Resolve implements handle.Resolver
func (fs *FS) Resolve(ctx context.Context, ref handle.Ref) (handle.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ref.Scheme != Scheme {
		return nil, fmt.Errorf("memfs: scheme %q", ref.Scheme)
	}
	n, ok := fs.Lookup(ref.Locator)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.Locator)
	}
	if n.kind != ref.Kind {
		return nil, fmt.Errorf("memfs: %s is a %s, not a %s", ref.Locator, n.kind, ref.Kind)
	}
	return n, nil
}

func (fs *FS) add(parent *Node, name string, kind handle.Kind) *Node {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p := "/" + name
	if parent != nil {
		p = path.Join(parent.path, name)
	}
	if n, ok := fs.nodes[p]; ok {
		return n
	}

	n := &Node{fs: fs, path: p, name: name, kind: kind, perm: types.PermissionGranted}
	fs.nodes[p] = n
	if parent != nil {
		parent.children = append(parent.children, n)
	} else {
		fs.roots = append(fs.roots, n)
	}
	return n
}

func clean(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// Node is a file or directory. It implements handle.Directory plus both
// permission capabilities.
type Node struct {
	fs       *FS
	path     string
	name     string
	kind     handle.Kind
	children []*Node

	perm       types.PermissionState
	probeErr   error
	entriesErr error
}

// Dir creates (or returns) a child directory
func (n *Node) Dir(name string) *Node {
	return n.fs.add(n, name, handle.KindDirectory)
}

// File creates (or returns) a child file
func (n *Node) File(name string) *Node {
	return n.fs.add(n, name, handle.KindFile)
}

// Files creates several child files at once
func (n *Node) Files(names ...string) *Node {
	for _, name := range names {
		n.File(name)
	}
	return n
}

// Link lists target as a child of n without moving it. Linking an ancestor
// creates a cycle.
func (n *Node) Link(target *Node) {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	n.children = append(n.children, target)
}

// Remove deletes the named child and everything beneath it
func (n *Node) Remove(name string) bool {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()

	for i, c := range n.children {
		if c.name != name {
			continue
		}
		n.children = append(n.children[:i:i], n.children[i+1:]...)
		if c.path == path.Join(n.path, name) {
			prefix := c.path + "/"
			for p := range n.fs.nodes {
				if p == c.path || strings.HasPrefix(p, prefix) {
					delete(n.fs.nodes, p)
				}
			}
		}
		return true
	}
	return false
}

// SetPermission sets the state reported by both permission probes
func (n *Node) SetPermission(state types.PermissionState) {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	n.perm = state
}

// FailProbe makes permission probes return err
func (n *Node) FailProbe(err error) {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	n.probeErr = err
}

// FailEntries makes Entries return err
func (n *Node) FailEntries(err error) {
	n.fs.mu.Lock()
	defer n.fs.mu.Unlock()
	n.entriesErr = err
}

// Path returns the node's absolute path within the filesystem
func (n *Node) Path() string { return n.path }

func (n *Node) Kind() handle.Kind { return n.kind }
func (n *Node) Name() string      { return n.name }

func (n *Node) Ref() handle.Ref {
	return handle.Ref{Scheme: Scheme, Locator: n.path, Kind: n.kind, Name: n.name}
}

// Entries lists direct children
func (n *Node) Entries(ctx context.Context) ([]handle.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.fs.mu.RLock()
	defer n.fs.mu.RUnlock()

	if n.kind != handle.KindDirectory {
		return nil, fmt.Errorf("memfs: %s is not a directory", n.path)
	}
	if n.entriesErr != nil {
		return nil, n.entriesErr
	}
	out := make([]handle.Handle, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out, nil
}

func (n *Node) QueryPermission(ctx context.Context, _ types.PermissionMode) (types.PermissionState, error) {
	return n.probe(ctx)
}

func (n *Node) RequestPermission(ctx context.Context, _ types.PermissionMode) (types.PermissionState, error) {
	return n.probe(ctx)
}

func (n *Node) probe(ctx context.Context) (types.PermissionState, error) {
	if err := ctx.Err(); err != nil {
		return types.PermissionUnknown, err
	}
	n.fs.mu.RLock()
	defer n.fs.mu.RUnlock()
	if n.probeErr != nil {
		return types.PermissionUnknown, n.probeErr
	}
	return n.perm, nil
}

var (
	_ handle.Directory           = (*Node)(nil)
	_ handle.PermissionQuerier   = (*Node)(nil)
	_ handle.PermissionRequester = (*Node)(nil)
	_ handle.Resolver            = (*FS)(nil)
)
