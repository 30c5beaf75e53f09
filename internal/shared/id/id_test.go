package id

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
	if id2.Compare(id1) <= 0 {
		t.Error("IDs generated in sequence should sort in order")
	}
}

func TestPrefixedKeys(t *testing.T) {
	gen := NewGenerator()

	tests := []struct {
		key    string
		prefix string
	}{
		{gen.NativeKey(), "sel"},
		{gen.TransientKey(), "tmp"},
	}

	for _, tt := range tests {
		if !strings.HasPrefix(tt.key, tt.prefix+"_") {
			t.Errorf("Key should start with '%s_', got: %s", tt.prefix, tt.key)
		}

		parts := strings.Split(tt.key, "_")
		if len(parts) != 2 {
			t.Fatalf("Prefixed key should have format 'prefix_ulid', got: %s", tt.key)
		}
		if !IsValid(parts[1]) {
			t.Errorf("ULID part should be valid: %s", parts[1])
		}
	}
}

func TestIsValid(t *testing.T) {
	invalidIDs := []string{
		"",
		"invalid",
		"1234567890",
		"zzzzzzzzzzzzzzzzzzzzzzzzzzz",
	}

	for _, id := range invalidIDs {
		if IsValid(id) {
			t.Errorf("ID should be invalid: %s", id)
		}
	}
}

func TestTimestamp(t *testing.T) {
	gen := NewGenerator()

	before := time.Now()
	key := gen.NativeKey()
	after := time.Now()

	ts, err := Timestamp(key)
	if err != nil {
		t.Fatalf("Failed to extract timestamp: %v", err)
	}

	// ULID timestamps have millisecond precision
	if ts.UnixMilli() < before.UnixMilli() || ts.UnixMilli() > after.UnixMilli() {
		t.Errorf("Timestamp %v should be between %v and %v", ts, before, after)
	}
}

func TestValidateKey(t *testing.T) {
	if err := ValidateKey("user-chosen/key"); err != nil {
		t.Errorf("Expected opaque key to be accepted: %v", err)
	}
	if err := ValidateKey(""); err == nil {
		t.Error("Empty key should be rejected")
	}
	if err := ValidateKey(strings.Repeat("k", MaxKeyLength+1)); err == nil {
		t.Error("Oversized key should be rejected")
	}
	if err := ValidateKey(string([]byte{0xff, 0xfe})); err == nil {
		t.Error("Invalid UTF-8 should be rejected")
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const workers = 10
	const perWorker = 100

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				key := gen.NativeKey()
				mu.Lock()
				if seen[key] {
					t.Errorf("Duplicate key generated: %s", key)
				}
				seen[key] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("Expected %d unique keys, got %d", workers*perWorker, len(seen))
	}
}
