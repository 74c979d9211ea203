package journal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_CreatesDatabaseAndDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "journal.db")

	j, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer j.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database file should exist: %v", err)
	}
	if j.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", j.Path(), dbPath)
	}

	var name string
	err = j.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='sessions'").Scan(&name)
	if err != nil {
		t.Errorf("sessions table should exist after migrations: %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := j.Sessions().Start(&Session{ID: "a", Backend: "sim"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	j.Close()

	j, err = Open(dbPath)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer j.Close()

	if _, err := j.Sessions().GetByID("a"); err != nil {
		t.Errorf("session should survive reopen: %v", err)
	}
}

func TestSessions_StartFinish(t *testing.T) {
	repo := openTemp(t).Sessions()

	s := &Session{ID: "s1", Backend: "sim", CameraIndex: 1, CameraName: "sim-mono-1"}
	if err := repo.Start(s); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.StartedAt.IsZero() {
		t.Error("Start() should set StartedAt")
	}

	got, err := repo.GetByID("s1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.Active() {
		t.Error("new session should be active")
	}
	if got.CameraName != "sim-mono-1" || got.CameraIndex != 1 || got.Backend != "sim" {
		t.Errorf("GetByID() = %+v", got)
	}

	if err := repo.Finish("s1", Summary{Produced: 120, Dropped: 7, Fault: "acquisition fault: boom"}); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	got, err = repo.GetByID("s1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Active() {
		t.Error("finished session should not be active")
	}
	if got.Produced != 120 || got.Dropped != 7 || got.Fault != "acquisition fault: boom" {
		t.Errorf("finished session = %+v", got)
	}
	if got.StoppedAt.Before(got.StartedAt) {
		t.Errorf("StoppedAt %v before StartedAt %v", got.StoppedAt, got.StartedAt)
	}
}

func TestSessions_NotFound(t *testing.T) {
	repo := openTemp(t).Sessions()

	if _, err := repo.GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
	if err := repo.Finish("missing", Summary{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Finish() error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

func TestSessions_DuplicateID(t *testing.T) {
	repo := openTemp(t).Sessions()

	if err := repo.Start(&Session{ID: "dup", Backend: "sim"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := repo.Start(&Session{ID: "dup", Backend: "sim"}); err == nil {
		t.Error("Start() with a duplicate ID should fail")
	}
}

func TestSessions_ListNewestFirst(t *testing.T) {
	repo := openTemp(t).Sessions()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		s := &Session{ID: id, Backend: "sim", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.Start(s); err != nil {
			t.Fatalf("Start(%s) error = %v", id, err)
		}
	}

	all, err := repo.List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 || all[0].ID != "third" || all[2].ID != "first" {
		t.Errorf("List(0) order = %v", ids(all))
	}

	limited, err := repo.List(2)
	if err != nil {
		t.Fatalf("List(2) error = %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "third" {
		t.Errorf("List(2) = %v", ids(limited))
	}

	if err := repo.Delete("second"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	all, _ = repo.List(0)
	if len(all) != 2 {
		t.Errorf("List() after Delete = %v", ids(all))
	}
}

func ids(sessions []*Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}
