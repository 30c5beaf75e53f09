package session

import (
	"path"
	"strings"
	"time"

	"github.com/GriffinCanCode/selectionstore/internal/handle"
	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
)

// Entry is a file-like or entry-like item held only in memory
type Entry struct {
	Name         string      `json:"name"`
	Kind         handle.Kind `json:"kind,omitempty"`
	Path         string      `json:"path,omitempty"`
	Size         int64       `json:"size,omitempty"`
	LastModified time.Time   `json:"last_modified,omitempty"`
	Type         string      `json:"type,omitempty"`
	// Source is the caller's original object, kept for Resolve
	Source any `json:"-"`
}

// ResolvedKind returns the explicit kind, else a directory for paths with
// a trailing slash, else a file.
func (e Entry) ResolvedKind() handle.Kind {
	if e.Kind.Valid() {
		return e.Kind
	}
	if strings.HasSuffix(e.location(), "/") {
		return handle.KindDirectory
	}
	return handle.KindFile
}

// NormalizedPath is the entry's path without leading or trailing slashes
func (e Entry) NormalizedPath() string {
	return normalizePath(e.location())
}

func (e Entry) location() string {
	if e.Path != "" {
		return e.Path
	}
	return e.Name
}

func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}

// Classify counts files and directories. Every ancestor segment of a
// nested path implies a directory; directories are counted once per
// normalized path whether explicit or implied.
func Classify(entries []Entry) types.Counts {
	counts := types.Counts{Handles: len(entries)}
	dirs := make(map[string]struct{})
	unnamed := 0

	for _, e := range entries {
		p := e.NormalizedPath()
		if e.ResolvedKind() == handle.KindDirectory {
			if p == "" {
				unnamed++
			} else {
				dirs[p] = struct{}{}
			}
		} else {
			counts.Files++
		}
		for dir := path.Dir(p); dir != "." && dir != "/" && dir != ""; dir = path.Dir(dir) {
			dirs[dir] = struct{}{}
		}
	}

	counts.Directories = len(dirs) + unnamed
	return counts
}

func copyEntries(in []Entry) []Entry {
	if in == nil {
		return nil
	}
	out := make([]Entry, len(in))
	copy(out, in)
	return out
}
