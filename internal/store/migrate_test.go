package store

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"testing"
)

var migrationName = regexp.MustCompile(`^\d{4}_[a-z0-9_]+\.up\.sql$`)

// Migrations are applied in lexical order, so file names have to sort the
// way they should run.
func TestMigrationFilesAreWellFormed(t *testing.T) {
	dir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected at least one migration")
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !migrationName.MatchString(name) {
			t.Fatalf("migration %q does not match NNNN_name.up.sql", name)
		}
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if len(content) == 0 {
			t.Fatalf("migration %s is empty", name)
		}
		names = append(names, name)
	}

	if !sort.StringsAreSorted(names) {
		t.Fatalf("expected ReadDir order to be sorted, got %v", names)
	}
}
