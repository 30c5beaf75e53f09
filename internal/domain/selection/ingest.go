package selection

import (
	"fmt"
	"io/fs"
	"iter"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/GriffinCanCode/selectionstore/internal/domain/session"
	"github.com/GriffinCanCode/selectionstore/internal/handle"
	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
)

// Variant tags what an ingested item is
type Variant string

const (
	VariantHandle Variant = "handle"
	VariantFile   Variant = "file"
	VariantEntry  Variant = "entry"
)

// Item is one classified selection element. Handle is set for
// VariantHandle; Entry for the other variants.
type Item struct {
	Variant Variant
	Handle  handle.Handle
	Entry   session.Entry
}

// File is a file-like object: a name plus at least one of size,
// modification time or media type.
type File struct {
	Name         string
	Path         string
	Size         int64
	LastModified time.Time
	Type         string
}

// Entry is an entry-like object as produced by directory pickers
type Entry struct {
	Name        string
	FullPath    string
	Kind        handle.Kind
	IsFile      bool
	IsDirectory bool
}

// Classify assigns v its variant once. Valid handles stay handles; a
// handle that fails validation but has a name is demoted to an entry.
func Classify(v any) (Item, error) {
	switch x := v.(type) {
	case nil:
		return Item{}, fmt.Errorf("%w: nil item", types.ErrInvalidHandle)
	case handle.Handle:
		if err := handle.Validate(x); err == nil {
			return Item{Variant: VariantHandle, Handle: x}, nil
		}
		if x.Name() == "" {
			return Item{}, fmt.Errorf("%w: handle without name", types.ErrInvalidHandle)
		}
		return entryItem(session.Entry{Name: x.Name(), Kind: x.Kind(), Source: v}), nil
	case File:
		return fileItem(x, v), nil
	case *File:
		if x == nil {
			return Item{}, fmt.Errorf("%w: nil file", types.ErrInvalidHandle)
		}
		return fileItem(*x, v), nil
	case Entry:
		return entryLike(x, v), nil
	case *Entry:
		if x == nil {
			return Item{}, fmt.Errorf("%w: nil entry", types.ErrInvalidHandle)
		}
		return entryLike(*x, v), nil
	case fs.FileInfo:
		if x.IsDir() {
			return entryItem(session.Entry{Name: x.Name(), Kind: handle.KindDirectory, Path: x.Name() + "/", LastModified: x.ModTime(), Source: v}), nil
		}
		return Item{Variant: VariantFile, Entry: session.Entry{
			Name:         x.Name(),
			Kind:         handle.KindFile,
			Size:         x.Size(),
			LastModified: x.ModTime(),
			Source:       v,
		}}, nil
	case fs.DirEntry:
		kind := handle.KindFile
		if x.IsDir() {
			kind = handle.KindDirectory
		}
		return entryItem(session.Entry{Name: x.Name(), Kind: kind, Source: v}), nil
	case map[string]any:
		return classifyMap(x)
	default:
		return Item{}, fmt.Errorf("%w: unsupported item %T", types.ErrInvalidHandle, v)
	}
}

func fileItem(f File, src any) Item {
	return Item{Variant: VariantFile, Entry: session.Entry{
		Name:         f.Name,
		Kind:         handle.KindFile,
		Path:         f.Path,
		Size:         f.Size,
		LastModified: f.LastModified,
		Type:         f.Type,
		Source:       src,
	}}
}

func entryLike(e Entry, src any) Item {
	kind := e.Kind
	switch {
	case kind.Valid():
	case e.IsDirectory:
		kind = handle.KindDirectory
	case e.IsFile:
		kind = handle.KindFile
	default:
		kind = ""
	}
	name := e.Name
	if name == "" && e.FullPath != "" {
		name = path.Base(strings.TrimSuffix(e.FullPath, "/"))
	}
	return entryItem(session.Entry{Name: name, Kind: kind, Path: e.FullPath, Source: src})
}

func entryItem(e session.Entry) Item {
	return Item{Variant: VariantEntry, Entry: e}
}

// classifyMap recognises decoded JSON objects. File-like shapes are tried
// before entry-like ones; a handle-like {kind, name} map carries no live
// reference and is therefore an entry.
func classifyMap(m map[string]any) (Item, error) {
	name, _ := m["name"].(string)

	_, hasSize := m["size"]
	_, hasModified := m["lastModified"]
	_, hasType := m["type"]
	if name != "" && (hasSize || hasModified || hasType) {
		f := File{Name: name}
		f.Size = toInt64(m["size"])
		f.LastModified = toTime(m["lastModified"])
		f.Type, _ = m["type"].(string)
		f.Path = firstString(m, "fullPath", "path", "webkitRelativePath")
		return fileItem(f, m), nil
	}

	_, hasKind := m["kind"]
	_, hasFullPath := m["fullPath"]
	_, hasPath := m["path"]
	_, hasIsFile := m["isFile"]
	_, hasIsDir := m["isDirectory"]
	if hasKind || hasFullPath || hasPath || hasIsFile || hasIsDir {
		e := Entry{Name: name}
		e.FullPath = firstString(m, "fullPath", "path")
		if k, ok := m["kind"].(string); ok {
			e.Kind = handle.Kind(k)
		}
		e.IsFile, _ = m["isFile"].(bool)
		e.IsDirectory, _ = m["isDirectory"].(bool)
		if e.Name == "" && e.FullPath == "" {
			return Item{}, fmt.Errorf("%w: entry without name or path", types.ErrInvalidHandle)
		}
		return entryLike(e, m), nil
	}

	return Item{}, fmt.Errorf("%w: unrecognised object shape", types.ErrInvalidHandle)
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// toTime accepts epoch milliseconds or RFC 3339 strings
func toTime(v any) time.Time {
	switch t := v.(type) {
	case float64:
		return time.UnixMilli(int64(t))
	case int64:
		return time.UnixMilli(t)
	case int:
		return time.UnixMilli(int64(t))
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err == nil {
			return parsed
		}
	case time.Time:
		return t
	}
	return time.Time{}
}

// Normalize flattens a selection into classified items. It accepts a single
// item, any slice or array of items, or an iter.Seq[any].
func Normalize(selection any) ([]Item, error) {
	var raw []any
	switch s := selection.(type) {
	case nil:
		return nil, types.ErrMissingSelection
	case []Item:
		if len(s) == 0 {
			return nil, types.ErrMissingSelection
		}
		return s, nil
	case iter.Seq[any]:
		for v := range s {
			raw = append(raw, v)
		}
	default:
		rv := reflect.ValueOf(selection)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			raw = make([]any, rv.Len())
			for i := range raw {
				raw[i] = rv.Index(i).Interface()
			}
		} else {
			raw = []any{selection}
		}
	}

	if len(raw) == 0 {
		return nil, types.ErrMissingSelection
	}

	items := make([]Item, len(raw))
	for i, v := range raw {
		item, err := Classify(v)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items[i] = item
	}
	return items, nil
}

// allHandles reports whether every item is a valid handle
func allHandles(items []Item) bool {
	for _, it := range items {
		if it.Variant != VariantHandle {
			return false
		}
	}
	return true
}
