package handle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
)

// Kind distinguishes files from directories
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	return k == KindFile || k == KindDirectory
}

// Handle is an opaque reference to a file or directory
type Handle interface {
	Kind() Kind
	Name() string
	Ref() Ref
}

// Directory is a handle whose children can be listed
type Directory interface {
	Handle
	Entries(ctx context.Context) ([]Handle, error)
}

// PermissionQuerier reports the current permission state without prompting
type PermissionQuerier interface {
	QueryPermission(ctx context.Context, mode types.PermissionMode) (types.PermissionState, error)
}

// PermissionRequester asks for permission, possibly involving the user
type PermissionRequester interface {
	RequestPermission(ctx context.Context, mode types.PermissionMode) (types.PermissionState, error)
}

// Ref is the serializable form of a handle
type Ref struct {
	Scheme  string `json:"scheme"`
	Locator string `json:"locator"`
	Kind    Kind   `json:"kind"`
	Name    string `json:"name"`
}

// Identity is stable for every handle that points at the same target
func (r Ref) Identity() string {
	return r.Scheme + "://" + r.Locator
}

// Validate applies handle-shape validation: a known kind, a non-empty name
// and a resolvable ref.
func Validate(v any) error {
	h, ok := v.(Handle)
	if !ok || h == nil {
		return fmt.Errorf("%w: %T does not implement Handle", types.ErrInvalidHandle, v)
	}
	if !h.Kind().Valid() {
		return fmt.Errorf("%w: unknown kind %q", types.ErrInvalidHandle, h.Kind())
	}
	if h.Name() == "" {
		return fmt.Errorf("%w: empty name", types.ErrInvalidHandle)
	}
	ref := h.Ref()
	if ref.Scheme == "" || ref.Locator == "" {
		return fmt.Errorf("%w: %q has no ref", types.ErrInvalidHandle, h.Name())
	}
	if h.Kind() == KindDirectory {
		if _, ok := h.(Directory); !ok {
			return fmt.Errorf("%w: directory %q cannot list entries", types.ErrInvalidHandle, h.Name())
		}
	}
	return nil
}

// ValidateAll validates a non-empty batch of handles
func ValidateAll(handles []Handle) error {
	if len(handles) == 0 {
		return types.ErrMissingSelection
	}
	for i, h := range handles {
		if err := Validate(h); err != nil {
			return fmt.Errorf("handle %d: %w", i, err)
		}
	}
	return nil
}

// ErrNoResolver is returned when no resolver handles a ref's scheme
var ErrNoResolver = errors.New("no resolver for scheme")

// Resolver turns stored refs of one scheme back into live handles
type Resolver interface {
	Scheme() string
	Resolve(ctx context.Context, ref Ref) (Handle, error)
}

// Resolvers dispatches refs to the resolver registered for their scheme
type Resolvers struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
}

// NewResolvers creates a resolver set
func NewResolvers(rs ...Resolver) *Resolvers {
	set := &Resolvers{resolvers: make(map[string]Resolver, len(rs))}
	for _, r := range rs {
		set.Register(r)
	}
	return set
}

// Register adds or replaces the resolver for r.Scheme()
func (s *Resolvers) Register(r Resolver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolvers[r.Scheme()] = r
}

// Resolve rehydrates a single ref
func (s *Resolvers) Resolve(ctx context.Context, ref Ref) (Handle, error) {
	s.mu.RLock()
	r, ok := s.resolvers[ref.Scheme]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoResolver, ref.Scheme)
	}
	return r.Resolve(ctx, ref)
}

// ResolveAll rehydrates refs in order, stopping at the first failure
func (s *Resolvers) ResolveAll(ctx context.Context, refs []Ref) ([]Handle, error) {
	out := make([]Handle, 0, len(refs))
	for _, ref := range refs {
		h, err := s.Resolve(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", ref.Identity(), err)
		}
		out = append(out, h)
	}
	return out, nil
}

// Refs flattens handles into their serializable form
func Refs(handles []Handle) []Ref {
	refs := make([]Ref, len(handles))
	for i, h := range handles {
		refs[i] = h.Ref()
	}
	return refs
}
