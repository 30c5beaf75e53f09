package native

import (
	"time"

	"github.com/GriffinCanCode/selectionstore/internal/handle"
	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
)

// Partition is the store partition holding native records
const Partition = "native-handles"

// Status tracks a record through the persist saga
type Status string

const (
	StatusPending   Status = "pending"
	StatusCommitted Status = "committed"
)

// Record is the durable form of a native selection
type Record struct {
	Key            string            `json:"key"`
	Handles        []handle.Ref      `json:"handles"`
	FileCount      int               `json:"file_count"`
	DirectoryCount int               `json:"directory_count"`
	HandleCount    int               `json:"handle_count"`
	Status         Status            `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// StoreKey returns the partition key of the record
func (r Record) StoreKey() string {
	return r.Key
}

// Counts returns the recorded snapshot
func (r Record) Counts() types.Counts {
	return types.Counts{
		Files:       r.FileCount,
		Directories: r.DirectoryCount,
		Handles:     r.HandleCount,
	}
}

func (r *Record) setCounts(c types.Counts) {
	r.FileCount = c.Files
	r.DirectoryCount = c.Directories
	r.HandleCount = c.Handles
}

var persistentExpiry = types.Expiry{
	Policy:  "persistent",
	Durable: true,
	Message: "Selection survives restarts until removed.",
}
