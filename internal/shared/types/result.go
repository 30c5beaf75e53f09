package types

import "time"

// PersistResult is returned by every add/persist path.
// Err holds the diagnostic cause and is never serialized.
type PersistResult struct {
	OK          bool        `json:"ok"`
	Reason      Reason      `json:"reason,omitempty"`
	Key         string      `json:"key,omitempty"`
	StorageType StorageType `json:"storage_type,omitempty"`
	Counts      Counts      `json:"counts"`
	Partial     bool        `json:"partial,omitempty"`
	CreatedAt   time.Time   `json:"created_at,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at,omitempty"`
	Expires     *Expiry     `json:"expires,omitempty"`
	Err         error       `json:"-"`
}

// StorageTypeResult answers which backend owns a key
type StorageTypeResult struct {
	OK          bool        `json:"ok"`
	StorageType StorageType `json:"storage_type,omitempty"`
	Reason      Reason      `json:"reason,omitempty"`
	Err         error       `json:"-"`
}

// ExistsResult answers whether a key is currently usable
type ExistsResult struct {
	Exists      bool        `json:"exists"`
	StorageType StorageType `json:"storage_type,omitempty"`
	Reason      Reason      `json:"reason,omitempty"`
	Err         error       `json:"-"`
}

// CountResult carries a fresh recount and, when known, the recorded snapshot
type CountResult struct {
	OK          bool        `json:"ok"`
	StorageType StorageType `json:"storage_type,omitempty"`
	Counts      Counts      `json:"counts"`
	Recorded    *Counts     `json:"recorded,omitempty"`
	Partial     bool        `json:"partial,omitempty"`
	Reason      Reason      `json:"reason,omitempty"`
	Err         error       `json:"-"`
}

// RemoveResult reports a removal. Removing an absent key is OK with
// Removed=false and ReasonNotFound.
type RemoveResult struct {
	OK          bool        `json:"ok"`
	Removed     bool        `json:"removed"`
	StorageType StorageType `json:"storage_type,omitempty"`
	Reason      Reason      `json:"reason,omitempty"`
	Err         error       `json:"-"`
}

// PermissionResult aggregates per-handle permission probes
type PermissionResult struct {
	OK     bool            `json:"ok"`
	State  PermissionState `json:"state,omitempty"`
	Counts Counts          `json:"counts"`
	Reason Reason          `json:"reason,omitempty"`
	Err    error           `json:"-"`
}

// KeysResult lists known keys
type KeysResult struct {
	OK     bool     `json:"ok"`
	Keys   []string `json:"keys"`
	Reason Reason   `json:"reason,omitempty"`
	Err    error    `json:"-"`
}

// Fail returns r marked as failed, with the reason derived from err
func (r PersistResult) Fail(err error) PersistResult {
	r.OK = false
	r.Reason = ReasonFor(err)
	r.Err = err
	return r
}
