package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWorkersOnEmptyQueue(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"workers"}, env.configPath)
	if err != nil {
		t.Fatalf("workers: %v", err)
	}
	requireContains(t, out, "No workers online")
	requireContains(t, out, "Queue empty")

	out, _, err = runCLI(t, []string{"--json", "workers"}, env.configPath)
	if err != nil {
		t.Fatalf("workers --json: %v", err)
	}
	var payload struct {
		RoutingKey string           `json:"routing_key"`
		Workers    []map[string]any `json:"workers"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode workers json: %v\n%s", err, out)
	}
	if payload.RoutingKey == "" || len(payload.Workers) != 0 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestSegmentsListAndClean(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"segments", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("segments list: %v", err)
	}
	requireContains(t, out, "No segment directories found")

	stale := filepath.Join(env.tempDir, "clip-a")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(stale, "A001_0000.mov"), []byte("seg"), 0o644); err != nil {
		t.Fatalf("write segment: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	out, _, err = runCLI(t, []string{"segments", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("segments list: %v", err)
	}
	requireContains(t, out, "clip-a")

	out, _, err = runCLI(t, []string{"segments", "clean"}, env.configPath)
	if err != nil {
		t.Fatalf("segments clean: %v", err)
	}
	requireContains(t, out, "Removed 1 segment directories")
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected %s removed, stat err = %v", stale, err)
	}
}

func TestQueueWithNothingToEncode(t *testing.T) {
	env := setupCLITestEnv(t)

	source := filepath.Join(env.baseDir, "media", "A001.mxf")
	proxy := filepath.Join(env.baseDir, "proxies", "A001.mov")
	for _, path := range []string{source, proxy} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	manifest := fmt.Sprintf(`project: Feature
timelines:
  - name: Reel 1
    clips:
      - source_id: a
        clip_name: A001
        file_name: A001.mxf
        file_path: %s
        duration: 4
        frame_count: 100
        fps: 25
        proxy_status: linked
        proxy_path: %s
`, source, proxy)
	if err := os.WriteFile(env.manifestPath, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "--yes"}, env.configPath)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	requireContains(t, out, "Project:  Feature")
	requireContains(t, out, "0 tasks dispatched")
	requireContains(t, out, "already linked")
}

func TestQueueRequiresManifest(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"queue", "--yes"}, env.configPath); err == nil {
		t.Fatal("expected missing manifest to fail preflight")
	}
}

func TestLogsShowsFilteredTail(t *testing.T) {
	env := setupCLITestEnv(t)

	logDir := filepath.Join(env.baseDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		t.Fatalf("mkdir logs: %v", err)
	}
	content := "INFO task started task_id=t1\nINFO task started task_id=t2\nWARN task failed task_id=t1\n"
	if err := os.WriteFile(filepath.Join(logDir, "worker.log"), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "worker", "--grep", "t1", "-n", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "WARN task failed task_id=t1\n" {
		t.Fatalf("unexpected logs output: %q", out)
	}

	if _, _, err := runCLI(t, []string{"logs", "daemon"}, env.configPath); err == nil {
		t.Fatal("expected unknown log name to be rejected")
	}
}
