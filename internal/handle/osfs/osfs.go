// Package osfs exposes the local filesystem as handles (scheme "file").
//
// Directory locators are real paths with symlinks evaluated, so a link back
// to an ancestor resolves to the same identity and traversals terminate.
package osfs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/GriffinCanCode/selectionstore/internal/handle"
	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
)

// Scheme identifies osfs refs
const Scheme = "file"

// Open returns a handle for the file or directory at p
func Open(p string) (handle.Handle, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, fmt.Errorf("osfs: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("osfs: %w", err)
	}
	return fromInfo(abs, filepath.Base(abs), info)
}

// OpenAll opens several paths, failing on the first error
func OpenAll(paths ...string) ([]handle.Handle, error) {
	out := make([]handle.Handle, 0, len(paths))
	for _, p := range paths {
		h, err := Open(p)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func fromInfo(p, name string, info fs.FileInfo) (handle.Handle, error) {
	if !info.IsDir() {
		return &File{path: p, name: name}, nil
	}
	real, err := filepath.EvalSymlinks(p)
	if err != nil {
		return nil, fmt.Errorf("osfs: %w", err)
	}
	return &Dir{path: real, name: name}, nil
}

// File is a regular file (or anything that is not a directory)
type File struct {
	path string
	name string
}

func (f *File) Kind() handle.Kind { return handle.KindFile }
func (f *File) Name() string      { return f.name }
func (f *File) Path() string      { return f.path }

func (f *File) Ref() handle.Ref {
	return handle.Ref{Scheme: Scheme, Locator: f.path, Kind: handle.KindFile, Name: f.name}
}

func (f *File) QueryPermission(ctx context.Context, mode types.PermissionMode) (types.PermissionState, error) {
	return probe(ctx, f.path, mode)
}

func (f *File) RequestPermission(ctx context.Context, mode types.PermissionMode) (types.PermissionState, error) {
	return probe(ctx, f.path, mode)
}

// Dir is a directory
type Dir struct {
	path string
	name string
}

func (d *Dir) Kind() handle.Kind { return handle.KindDirectory }
func (d *Dir) Name() string      { return d.name }
func (d *Dir) Path() string      { return d.path }

func (d *Dir) Ref() handle.Ref {
	return handle.Ref{Scheme: Scheme, Locator: d.path, Kind: handle.KindDirectory, Name: d.name}
}

// Entries lists direct children. Symlinks are followed; links that cannot
// be followed are reported as files.
func (d *Dir) Entries(ctx context.Context) ([]handle.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(d.path)
	if err != nil {
		return nil, err
	}

	out := make([]handle.Handle, 0, len(dirents))
	for _, de := range dirents {
		full := filepath.Join(d.path, de.Name())
		if de.Type()&fs.ModeSymlink == 0 && !de.IsDir() {
			out = append(out, &File{path: full, name: de.Name()})
			continue
		}

		// A child whose target cannot be followed (dangling, looping or
		// unreadable) is listed as a file; only that child is affected.
		info, err := os.Stat(full)
		if err != nil {
			out = append(out, &File{path: full, name: de.Name()})
			continue
		}
		h, err := fromInfo(full, de.Name(), info)
		if err != nil {
			out = append(out, &File{path: full, name: de.Name()})
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func (d *Dir) QueryPermission(ctx context.Context, mode types.PermissionMode) (types.PermissionState, error) {
	return probe(ctx, d.path, mode)
}

func (d *Dir) RequestPermission(ctx context.Context, mode types.PermissionMode) (types.PermissionState, error) {
	return probe(ctx, d.path, mode)
}

func probe(ctx context.Context, p string, mode types.PermissionMode) (types.PermissionState, error) {
	if err := ctx.Err(); err != nil {
		return types.PermissionUnknown, err
	}
	return access(p, mode)
}

// Resolver rebuilds osfs handles from refs. It does not touch the disk;
// a vanished target surfaces when the handle is used.
type Resolver struct{}

// NewResolver creates the file-scheme resolver
func NewResolver() *Resolver { return &Resolver{} }

func (*Resolver) Scheme() string { return Scheme }

func (*Resolver) Resolve(ctx context.Context, ref handle.Ref) (handle.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ref.Scheme != Scheme {
		return nil, fmt.Errorf("osfs: scheme %q", ref.Scheme)
	}
	if !filepath.IsAbs(ref.Locator) {
		return nil, fmt.Errorf("osfs: locator %q is not absolute", ref.Locator)
	}
	name := ref.Name
	if name == "" {
		name = filepath.Base(ref.Locator)
	}
	switch ref.Kind {
	case handle.KindFile:
		return &File{path: ref.Locator, name: name}, nil
	case handle.KindDirectory:
		return &Dir{path: ref.Locator, name: name}, nil
	default:
		return nil, fmt.Errorf("%w: kind %q", types.ErrInvalidHandle, ref.Kind)
	}
}

var (
	_ handle.Directory           = (*Dir)(nil)
	_ handle.PermissionRequester = (*File)(nil)
	_ handle.PermissionQuerier   = (*Dir)(nil)
	_ handle.Resolver            = (*Resolver)(nil)
)
