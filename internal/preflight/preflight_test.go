package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"proxyfarm/internal/config"
	"proxyfarm/internal/services"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if CheckDirectoryAccess("test", f).Passed {
		t.Fatal("expected failure for file path")
	}
	if !CheckFileReadable("test", f).Passed {
		t.Fatal("expected file to be readable")
	}
	if CheckFileReadable("test", filepath.Dir(f)).Passed {
		t.Fatal("expected failure for directory")
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ProxyRoot = filepath.Join(base, "proxies")
	cfg.Paths.TempDir = filepath.Join(base, "segments")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return &cfg
}

func TestRunAllCoordinator(t *testing.T) {
	cfg := testConfig(t)
	cfg.Editor.ManifestPath = filepath.Join(t.TempDir(), "clips.yaml")

	results := RunAll(context.Background(), cfg, RoleCoordinator)
	if len(results) != 4 {
		t.Fatalf("expected 4 checks, got %d", len(results))
	}
	err := Failed(results)
	if !errors.Is(err, services.ErrConfiguration) || !strings.Contains(err.Error(), "Clip manifest") {
		t.Fatalf("expected missing manifest failure, got %v", err)
	}

	if err := os.WriteFile(cfg.Editor.ManifestPath, []byte("project: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Failed(RunAll(context.Background(), cfg, RoleCoordinator)); err != nil {
		t.Fatalf("expected all checks to pass, got %v", err)
	}
}

func TestRunAllWorkerChecksEncoders(t *testing.T) {
	cfg := testConfig(t)
	bin := t.TempDir()
	ffmpeg := filepath.Join(bin, "ffmpeg")
	script := "#!/bin/sh\necho ' V..... prores_ks            Apple ProRes'\n"
	if err := os.WriteFile(ffmpeg, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg.Worker.FFmpegBinary = ffmpeg
	cfg.Worker.FFprobeBinary = filepath.Join(bin, "missing-ffprobe")
	cfg.Encoding.Codec = "prores_ks"
	cfg.Encoding.AudioCodec = "pcm_s24le"
	cfg.Encoding.DataLevel = "limited"

	results := RunAll(context.Background(), cfg, RoleWorker)
	byName := map[string]Result{}
	for _, r := range results {
		byName[r.Name] = r
	}
	if !byName["FFmpeg"].Passed {
		t.Fatalf("expected ffmpeg to pass: %+v", byName["FFmpeg"])
	}
	if !byName["FFprobe"].Passed {
		t.Fatalf("ffprobe is optional without auto data level: %+v", byName["FFprobe"])
	}
	if !byName["Encoder prores_ks"].Passed {
		t.Fatalf("expected prores_ks encoder: %+v", byName["Encoder prores_ks"])
	}
	if byName["Encoder pcm_s24le"].Passed {
		t.Fatal("expected missing audio encoder to fail")
	}
}

func TestFailedNil(t *testing.T) {
	if err := Failed([]Result{{Name: "a", Passed: true}}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
