package db

import (
	"path/filepath"
	"testing"
)

func openAt(t *testing.T, path string) *DB {
	t.Helper()
	d, err := New(path, nil)
	if err != nil {
		t.Fatalf("New(%s) error = %v", path, err)
	}
	return d
}

func openTemp(t *testing.T) *DB {
	t.Helper()
	d := openAt(t, filepath.Join(t.TempDir(), "nested", "reelcut.db"))
	t.Cleanup(func() { d.Close() })
	return d
}

func TestNew_Schema(t *testing.T) {
	d := openTemp(t)

	for _, table := range []string{"media_files", "projects", "saved_audio", "jobs", "config", "_migrations"} {
		var n int
		if err := d.Conn().QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&n); err != nil || n != 1 {
			t.Errorf("table %s: count = %d, err = %v", table, n, err)
		}
	}
}

func TestNew_Pragmas(t *testing.T) {
	d := openTemp(t)

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"busy_timeout", "5000"},
	}
	for _, tt := range tests {
		var got string
		if err := d.Conn().QueryRow("PRAGMA " + tt.pragma).Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s error = %v", tt.pragma, err)
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %s, want %s", tt.pragma, got, tt.want)
		}
	}
}

func TestNew_ForeignKeysEnforced(t *testing.T) {
	d := openTemp(t)

	_, err := d.Conn().Exec(`
		INSERT INTO saved_audio (id, file_id, name, created_at)
		VALUES ('a1', 'missing-file', 'Intro', datetime('now'))
	`)
	if err == nil {
		t.Error("insert with dangling file_id succeeded, want foreign key error")
	}
}

func TestMigrate_AppliesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reelcut.db")
	openAt(t, path).Close()

	d := openAt(t, path)
	defer d.Close()

	names, err := fsMigrations()
	if err != nil {
		t.Fatalf("fsMigrations() error = %v", err)
	}
	var count int
	if err := d.Conn().QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations error = %v", err)
	}
	if count != len(names) {
		t.Errorf("recorded migrations = %d, want %d", count, len(names))
	}
}

func TestNew_FailsInterruptedExports(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reelcut.db")
	d := openAt(t, path)
	_, err := d.Conn().Exec(`
		INSERT INTO jobs (id, project_id, status, progress, created_at, updated_at) VALUES
		('rendering-job', 'p1', 'rendering', 50, datetime('now'), datetime('now')),
		('converting-job', 'p1', 'converting', 99, datetime('now'), datetime('now')),
		('queued-job', 'p1', 'pending', 0, datetime('now'), datetime('now')),
		('done-job', 'p1', 'completed', 100, datetime('now'), datetime('now'))
	`)
	if err != nil {
		t.Fatalf("insert jobs error = %v", err)
	}
	d.Close()

	d = openAt(t, path)
	defer d.Close()

	want := map[string]string{
		"rendering-job":  "failed",
		"converting-job": "failed",
		"queued-job":     "pending",
		"done-job":       "completed",
	}
	for id, status := range want {
		var got string
		if err := d.Conn().QueryRow("SELECT status FROM jobs WHERE id = ?", id).Scan(&got); err != nil {
			t.Fatalf("query %s error = %v", id, err)
		}
		if got != status {
			t.Errorf("%s status = %s, want %s", id, got, status)
		}
	}

	var msg string
	if err := d.Conn().QueryRow("SELECT error FROM jobs WHERE id = 'rendering-job'").Scan(&msg); err != nil {
		t.Fatalf("query error column = %v", err)
	}
	if msg != "interrupted by restart" {
		t.Errorf("error = %q, want %q", msg, "interrupted by restart")
	}
}

func TestDSN(t *testing.T) {
	got := dsn("/tmp/x.db")
	want := "file:/tmp/x.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if got != want {
		t.Errorf("dsn() = %q, want %q", got, want)
	}
}
