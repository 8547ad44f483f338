// Package testutil provides shared test helpers for the memory engine.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/coeus-memory/coeus/internal/store"
)

// NewStore opens a fresh, schema-initialized Store backed by a temp-dir
// SQLite file. The store is closed automatically on test completion.
func NewStore(t *testing.T) *store.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TempDir creates a temporary directory for testing, cleaned up
// automatically after the test completes.
func TempDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertEqual fails the test if got != want.
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
