// Package id generates opaque, collision-resistant selection keys.
//
// Keys are prefixed ULIDs:
//   - Lexicographic sortability: keys sort by creation time
//   - Prefixes tell the owning backend apart in logs (sel_*, tmp_*)
//   - Monotonic entropy keeps keys minted in the same millisecond ordered
//
// There is no package-level default generator; components receive a
// *Generator through their constructors.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// Key prefixes
const (
	NativePrefix    = "sel"
	TransientPrefix = "tmp"
)

// MaxKeyLength bounds caller-supplied keys
const MaxKeyLength = 128

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

// NewGenerator creates a generator backed by crypto/rand with monotonic
// ordering inside a millisecond
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for testing with deterministic entropy
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NativeKey mints a key for a durably persisted selection
func (g *Generator) NativeKey() string {
	return g.GenerateWithPrefix(NativePrefix)
}

// TransientKey mints a key for an in-memory selection
func (g *Generator) TransientKey() string {
	return g.GenerateWithPrefix(TransientPrefix)
}

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Timestamp extracts the creation time from a generated key.
// The prefix, if any, is ignored.
func Timestamp(key string) (time.Time, error) {
	if i := strings.LastIndexByte(key, '_'); i >= 0 {
		key = key[i+1:]
	}
	parsed, err := ulid.Parse(key)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

// ValidateKey checks a caller-supplied key. Keys are opaque, so only
// emptiness, length and encoding are enforced.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("key exceeds maximum length of %d", MaxKeyLength)
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("key must be valid UTF-8")
	}
	return nil
}
