package db

import (
	"path/filepath"
	"testing"
)

// OpenTestSQLite opens a migrated metastore in t.TempDir() and registers
// cleanup. Tests that don't need the read/write split can use Write for
// everything.
func OpenTestSQLite(t *testing.T) *Metastore {
	t.Helper()

	m, err := OpenMetastore(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open test metastore: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}
