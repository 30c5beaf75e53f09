package store

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/GriffinCanCode/selectionstore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/selectionstore/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/selectionstore/internal/logging"
)

const (
	DefaultMaxAttempts = 3
	DefaultBusyTimeout = 5 * time.Second
)

// Mode selects the transaction access mode
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

// Options configures Open and Connector
type Options struct {
	Dir  string
	Name string
	// Version is the requested store version; 0 means unspecified
	Version     int
	Partitions  []string
	MaxAttempts int
	BusyTimeout time.Duration
	Compress    bool

	Hub     *Hub
	Breaker *resilience.Breaker
	Logger  *logging.Logger
	Metrics *monitoring.Metrics
}

// Path returns the database file path
func (o Options) Path() string {
	return filepath.Join(o.Dir, o.Name+".db")
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = DefaultBusyTimeout
	}
	if o.Name == "" {
		o.Name = "selections"
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

var partitionName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// ValidatePartition checks that name can be used as a partition
func ValidatePartition(name string) error {
	if !partitionName.MatchString(name) {
		return fmt.Errorf("store: invalid partition name %q", name)
	}
	return nil
}

func tableName(partition string) string {
	return `"p_` + partition + `"`
}
