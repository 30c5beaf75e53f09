//go:build !unix

package osfs

import (
	"os"

	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
)

// Without access(2) only the mode bits can be consulted.
func access(p string, mode types.PermissionMode) (types.PermissionState, error) {
	info, err := os.Stat(p)
	if err != nil {
		return types.PermissionUnknown, err
	}
	perm := info.Mode().Perm()
	if perm&0o444 == 0 {
		return types.PermissionDenied, nil
	}
	if mode == types.PermissionReadWrite && perm&0o222 == 0 {
		return types.PermissionDenied, nil
	}
	return types.PermissionGranted, nil
}
