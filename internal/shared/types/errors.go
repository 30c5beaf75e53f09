package types

import (
	"context"
	"errors"
)

// Error taxonomy shared by every backend. Callers match with errors.Is.
var (
	ErrMissingSelection    = errors.New("selection is empty")
	ErrInvalidHandle       = errors.New("invalid handle")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrProvisioningFailure = errors.New("store provisioning failed")
	ErrUnknownKey          = errors.New("unknown selection key")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrTraversal           = errors.New("traversal failed")
	ErrUnsupportedStorage  = errors.New("operation not supported by storage type")
	ErrTransientExpired    = errors.New("transient selection expired")
)

// Reason is the machine-readable failure code carried by results
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonNotFound            Reason = "not-found"
	ReasonTransientExpired    Reason = "transient-expired"
	ReasonEntriesMissing      Reason = "entries-missing"
	ReasonStoreUnavailable    Reason = "store-unavailable"
	ReasonProvisioningFailure Reason = "provisioning-failure"
	ReasonUnsupportedStorage  Reason = "unsupported-storage"
	ReasonPermissionDenied    Reason = "permission-denied"
	ReasonTraversalError      Reason = "traversal-error"
	ReasonMissingSelection    Reason = "missing-selection"
	ReasonInvalidHandle       Reason = "invalid-handle"
	ReasonCancelled           Reason = "cancelled"
	ReasonInternal            Reason = "internal-error"
)

// ReasonFor maps an error onto its reason code
func ReasonFor(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCancelled
	case errors.Is(err, ErrUnknownKey):
		return ReasonNotFound
	case errors.Is(err, ErrTransientExpired):
		return ReasonTransientExpired
	case errors.Is(err, ErrProvisioningFailure):
		return ReasonProvisioningFailure
	case errors.Is(err, ErrStoreUnavailable):
		return ReasonStoreUnavailable
	case errors.Is(err, ErrUnsupportedStorage):
		return ReasonUnsupportedStorage
	case errors.Is(err, ErrPermissionDenied):
		return ReasonPermissionDenied
	case errors.Is(err, ErrTraversal):
		return ReasonTraversalError
	case errors.Is(err, ErrMissingSelection):
		return ReasonMissingSelection
	case errors.Is(err, ErrInvalidHandle):
		return ReasonInvalidHandle
	default:
		return ReasonInternal
	}
}
