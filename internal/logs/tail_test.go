package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"proxyfarm/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestLastReturnsTrailingLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\nd\ne\n")

	lines, offset, err := logs.Reader{Path: path}.Last(2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || lines[0] != "d" || lines[1] != "e" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset != 10 {
		t.Fatalf("offset = %d, want 10", offset)
	}
}

func TestLastAppliesFilter(t *testing.T) {
	path := writeLog(t, "task_id=t1 started\ntask_id=t2 started\ntask_id=t1 done\n")

	lines, _, err := logs.Reader{Path: path, Filter: logs.Filter{Terms: []string{"t1"}}}.Last(10)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || lines[1] != "task_id=t1 done" {
		t.Fatalf("unexpected filtered lines: %#v", lines)
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Reader{Path: filepath.Join(t.TempDir(), "absent.log")}.Last(5)
	if err != nil || lines != nil || offset != 0 {
		t.Fatalf("Last on missing file = %v, %d, %v", lines, offset, err)
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := writeLog(t, "start\n")
	_, offset, err := logs.Reader{Path: path}.Last(1)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- logs.Reader{Path: path, Poll: 10 * time.Millisecond}.Follow(ctx, offset, func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
		})
	}()

	appendLog(t, path, "later\npart")
	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	appendLog(t, path, "ial\n")
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "later" || got[1] != "partial" {
		t.Fatalf("unexpected followed lines: %#v", got)
	}
}

func TestFollowRestartsAfterTruncation(t *testing.T) {
	path := writeLog(t, "old line one\nold line two\n")
	_, offset, err := logs.Reader{Path: path}.Last(0)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if err := os.WriteFile(path, []byte("fresh\n"), 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	var got []string
	if err := (logs.Reader{Path: path, Poll: 10 * time.Millisecond}).Follow(ctx, offset, func(line string) {
		got = append(got, line)
	}); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if len(got) != 1 || got[0] != "fresh" {
		t.Fatalf("expected rotated content, got %#v", got)
	}
}
