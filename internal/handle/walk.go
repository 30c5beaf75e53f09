package handle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
)

// Progress receives running totals during a traversal
type Progress func(counts types.Counts)

// CountOptions configures Count
type CountOptions struct {
	Progress Progress
}

// TraversalError lists the directories that could not be listed. The
// counts returned alongside it cover everything else.
type TraversalError struct {
	Failed []string
	Errs   []error
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("%s: %d unreadable directories (%s)", types.ErrTraversal, len(e.Failed), strings.Join(e.Failed, ", "))
}

// Unwrap lets errors.Is match ErrTraversal and the underlying causes
func (e *TraversalError) Unwrap() []error {
	return append([]error{types.ErrTraversal}, e.Errs...)
}

// Count walks handles and counts files and directories. Top-level
// directories are counted themselves. Every directory is visited at most
// once per call, keyed by Ref identity, so repeated or cyclic entries are
// neither double counted nor recursed into forever.
//
// Cancellation returns ctx.Err() with no counts. Unreadable directories are
// skipped and reported through a *TraversalError.
func Count(ctx context.Context, handles []Handle, opts CountOptions) (types.Counts, error) {
	w := &walker{
		opts:    opts,
		visited: make(map[string]struct{}),
		counts:  types.Counts{Handles: len(handles)},
	}

	for _, h := range handles {
		if err := w.visit(ctx, h); err != nil {
			return types.Counts{}, err
		}
	}

	if w.failed != nil {
		return w.counts, w.failed
	}
	return w.counts, nil
}

type walker struct {
	opts    CountOptions
	visited map[string]struct{}
	counts  types.Counts
	failed  *TraversalError
}

func (w *walker) visit(ctx context.Context, h Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if h.Kind() != KindDirectory {
		w.counts.Files++
		w.report()
		return nil
	}

	id := h.Ref().Identity()
	if _, seen := w.visited[id]; seen {
		return nil
	}
	w.visited[id] = struct{}{}
	w.counts.Directories++
	w.report()

	dir, ok := h.(Directory)
	if !ok {
		w.fail(h, fmt.Errorf("%w: directory without listing", types.ErrInvalidHandle))
		return nil
	}

	entries, err := dir.Entries(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		w.fail(h, err)
		return nil
	}

	for _, child := range entries {
		if err := w.visit(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) fail(h Handle, err error) {
	if w.failed == nil {
		w.failed = &TraversalError{}
	}
	w.failed.Failed = append(w.failed.Failed, h.Ref().Identity())
	w.failed.Errs = append(w.failed.Errs, err)
}

func (w *walker) report() {
	if w.opts.Progress != nil {
		w.opts.Progress(w.counts)
	}
}
