package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"proxyfarm/internal/logging"
)

func mkdirAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if age > 0 {
		when := time.Now().Add(-age)
		if err := os.Chtimes(path, when, when); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}
}

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, nil, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	oldDir := filepath.Join(tmpDir, "src-old")
	recentDir := filepath.Join(tmpDir, "src-recent")
	mkdirAged(t, oldDir, 2*time.Hour)
	mkdirAged(t, recentDir, 0)

	result := CleanStale(context.Background(), tmpDir, time.Hour, nil, logging.NewNop())

	if len(result.Removed) != 1 || result.Removed[0] != oldDir {
		t.Fatalf("expected only %s removed, got %v", oldDir, result.Removed)
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Error("old directory should have been removed")
	}
	if _, err := os.Stat(recentDir); err != nil {
		t.Error("recent directory should still exist")
	}
}

func TestCleanStaleKeepsActiveDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	active := filepath.Join(tmpDir, "src-active")
	mkdirAged(t, active, 3*time.Hour)

	keep := map[string]struct{}{"src-active": {}}
	result := CleanStale(context.Background(), tmpDir, time.Hour, keep, nil)
	if len(result.Removed) != 0 {
		t.Fatalf("active directory removed: %v", result.Removed)
	}
}

func TestCleanStaleIgnoresFiles(t *testing.T) {
	tmpDir := t.TempDir()
	oldFile := filepath.Join(tmpDir, "concat.txt")
	if err := os.WriteFile(oldFile, []byte("test"), 0o644); err != nil {
		t.Fatalf("create file: %v", err)
	}
	oldTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldFile, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}

	result := CleanStale(context.Background(), tmpDir, time.Hour, nil, logging.NewNop())
	if len(result.Removed) != 0 {
		t.Errorf("expected no removals for files, got %d", len(result.Removed))
	}
}

func TestListDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, "src-1")
	mkdirAged(t, dir, 0)
	for _, name := range []string{"A001_1.mov", "A001_2.mov"} {
		if err := os.WriteFile(filepath.Join(dir, name), make([]byte, 100), 0o644); err != nil {
			t.Fatalf("write segment: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write stray: %v", err)
	}

	dirs, err := ListDirectories(tmpDir)
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}
	if len(dirs) != 1 {
		t.Fatalf("expected 1 directory, got %d", len(dirs))
	}
	if dirs[0].Name != "src-1" || dirs[0].Size != 200 || dirs[0].Segments != 2 {
		t.Fatalf("unexpected dir info: %+v", dirs[0])
	}
}

func TestListDirectoriesInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "/nonexistent/path/12345"} {
		dirs, err := ListDirectories(dir)
		if err != nil || dirs != nil {
			t.Errorf("expected nil result for %q, got %v %v", dir, dirs, err)
		}
	}
}
