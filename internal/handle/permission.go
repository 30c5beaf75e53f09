package handle

import (
	"context"

	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
)

// Probe asks h for permission, preferring an explicit request over a query.
// Handles with neither capability report unknown.
func Probe(ctx context.Context, h Handle, mode types.PermissionMode) (types.PermissionState, error) {
	if r, ok := h.(PermissionRequester); ok {
		return r.RequestPermission(ctx, mode)
	}
	if q, ok := h.(PermissionQuerier); ok {
		return q.QueryPermission(ctx, mode)
	}
	return types.PermissionUnknown, nil
}

// AggregatePermissions folds per-handle states: all granted => granted,
// any denied => denied, any prompt => prompt, otherwise unknown.
func AggregatePermissions(states []types.PermissionState) types.PermissionState {
	if len(states) == 0 {
		return types.PermissionUnknown
	}

	granted := 0
	prompt := false
	for _, s := range states {
		switch s {
		case types.PermissionDenied:
			return types.PermissionDenied
		case types.PermissionGranted:
			granted++
		case types.PermissionPrompt:
			prompt = true
		}
	}

	switch {
	case granted == len(states):
		return types.PermissionGranted
	case prompt:
		return types.PermissionPrompt
	default:
		return types.PermissionUnknown
	}
}
