package types

import "time"

// StorageType identifies the backend that owns a selection key
type StorageType string

const (
	StorageUninitialized    StorageType = "uninitialized"
	StorageNativeHandle     StorageType = "native-handle"
	StorageTransientSession StorageType = "transient-session"
)

// Valid reports whether s is one of the known storage types
func (s StorageType) Valid() bool {
	switch s {
	case StorageUninitialized, StorageNativeHandle, StorageTransientSession:
		return true
	}
	return false
}

// RegistryRecord is the durable pointer from a key to its owning backend
type RegistryRecord struct {
	Key         string            `json:"key"`
	StorageType StorageType       `json:"storage_type"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// StoreKey returns the partition key of the record
func (r RegistryRecord) StoreKey() string {
	return r.Key
}

// Metadata carries optional caller overrides for a new selection.
// Extra holds opaque strings such as browser or tab identifiers.
type Metadata struct {
	Key         string            `json:"key,omitempty"`
	CreatedAt   *time.Time        `json:"created_at,omitempty"`
	UpdatedAt   *time.Time        `json:"updated_at,omitempty"`
	StorageType StorageType       `json:"storage_type,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Timestamps resolves created/updated times against now
func (m Metadata) Timestamps(now time.Time) (time.Time, time.Time) {
	created, updated := now, now
	if m.CreatedAt != nil {
		created = *m.CreatedAt
	}
	if m.UpdatedAt != nil {
		updated = *m.UpdatedAt
	}
	return created, updated
}

// CopyExtra returns a detached copy of the Extra map
func (m Metadata) CopyExtra() map[string]string {
	return copyStrings(m.Extra)
}

func copyStrings(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Counts is a point-in-time snapshot of a selection's size
type Counts struct {
	Files       int `json:"files"`
	Directories int `json:"directories"`
	Handles     int `json:"handles"`
}

// Expiry describes how long a selection is expected to live
type Expiry struct {
	Policy  string `json:"policy"`
	Durable bool   `json:"durable"`
	Message string `json:"message,omitempty"`
}

// PermissionMode is the access level requested for stored handles
type PermissionMode string

const (
	PermissionRead      PermissionMode = "read"
	PermissionReadWrite PermissionMode = "readwrite"
)

// PermissionState is the outcome of a permission probe
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
	PermissionUnknown PermissionState = "unknown"
)
