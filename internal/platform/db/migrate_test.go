package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write test file %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadMigrations(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"002_appointments.sql": "CREATE TABLE appointments (id UUID PRIMARY KEY);",
		"001_accounts.sql":     "CREATE TABLE accounts (id UUID PRIMARY KEY);",
		"010_indexes.sql":      "CREATE INDEX x ON appointments (id);",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	for i, want := range []int{1, 2, 10} {
		if migrations[i].Version != want {
			t.Errorf("position %d: expected version %d, got %d", i, want, migrations[i].Version)
		}
	}
	if migrations[0].Name != "001_accounts.sql" {
		t.Errorf("expected name 001_accounts.sql, got %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE accounts (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_SkipsNonMigrations(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_accounts.sql": "SELECT 1;",
		"README.md":        "docs",
		"noprefix.sql":     "SELECT 2;",
		"abc_bad.sql":      "SELECT 3;",
	})
	if err := os.Mkdir(filepath.Join(dir, "002_dir.sql"), 0755); err != nil {
		t.Fatal(err)
	}

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("expected 1 migration, got %d", len(migrations))
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_accounts.sql": "SELECT 1;",
		"1_other.sql":      "SELECT 2;",
	})
	if _, err := NewMigrator(nil, dir).LoadMigrations(); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestLoadMigrations_NonExistentDir(t *testing.T) {
	if _, err := NewMigrator(nil, "/nonexistent/path/that/does/not/exist").LoadMigrations(); err == nil {
		t.Error("expected error for non-existent directory")
	}
}

func TestPendingAndStatuses(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Name: "001_accounts.sql"},
		{Version: 2, Name: "002_appointments.sql"},
		{Version: 3, Name: "003_documents.sql"},
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	done := map[int]time.Time{1: at}

	p := pending(migrations, done)
	if len(p) != 2 || p[0].Version != 2 || p[1].Version != 3 {
		t.Fatalf("unexpected pending set: %+v", p)
	}

	st := statuses(migrations, done)
	if len(st) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(st))
	}
	if !st[0].Applied || st[0].AppliedAt == nil || !st[0].AppliedAt.Equal(at) {
		t.Errorf("expected first migration applied at %v, got %+v", at, st[0])
	}
	if st[1].Applied || st[1].AppliedAt != nil || st[2].Applied {
		t.Errorf("expected later migrations pending, got %+v", st[1:])
	}
}

func TestRepoMigrations_Load(t *testing.T) {
	migrations, err := NewMigrator(nil, filepath.Join("..", "..", "..", "migrations")).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) < 3 {
		t.Fatalf("expected the shipped migrations, got %d", len(migrations))
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("expected contiguous versions, got %d at position %d", m.Version, i)
		}
	}
}
