package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMigrations_sortedByVersion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "010_later.up.sql")
	writeFile(t, dir, "001_init.up.sql")
	writeFile(t, dir, "002_orders.up.sql")
	writeFile(t, dir, "notes.txt")

	all, err := loadMigrations(dir)
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3 (non-sql files skipped)", len(all))
	}
	for i, want := range []int64{1, 2, 10} {
		if all[i].version != want {
			t.Fatalf("all[%d].version = %d, want %d", i, all[i].version, want)
		}
	}
	if all[0].name != "001_init.up.sql" {
		t.Fatalf("all[0].name = %q, want 001_init.up.sql", all[0].name)
	}
}

func TestLoadMigrations_rejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "001_init.up.sql")
	writeFile(t, dir, "001_other.up.sql")

	if _, err := loadMigrations(dir); err == nil {
		t.Fatal("expected error for duplicate version prefix")
	}
}

func TestLoadMigrations_rejectsMalformedNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "init.up.sql")

	if _, err := loadMigrations(dir); err == nil {
		t.Fatal("expected error for missing version prefix")
	}
}
