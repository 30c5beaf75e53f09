//go:build unix

package osfs

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
)

func access(p string, mode types.PermissionMode) (types.PermissionState, error) {
	bits := uint32(unix.R_OK)
	if mode == types.PermissionReadWrite {
		bits |= unix.W_OK
	}

	err := unix.Access(p, bits)
	switch {
	case err == nil:
		return types.PermissionGranted, nil
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM), errors.Is(err, unix.EROFS):
		return types.PermissionDenied, nil
	default:
		return types.PermissionUnknown, err
	}
}
