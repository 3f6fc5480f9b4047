package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"proxyfarm/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields, applies any provided options, and validates the
// result so suffix patterns are compiled.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ProxyRoot = filepath.Join(base, "proxies")
	cfgVal.Paths.TempDir = filepath.Join(base, "segments")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Worker.Name = "test-worker"
	cfgVal.Dispatch.PollInterval = 20
	cfgVal.Worker.PollInterval = 20

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithChunking enables chunking with the given threshold and chunk length in seconds.
func WithChunking(thresholdSeconds, chunkSeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Chunking.Enabled = true
		b.cfg.Chunking.ThresholdSeconds = thresholdSeconds
		b.cfg.Chunking.ChunkSeconds = chunkSeconds
	}
}

// WithoutChunking disables chunked dispatch.
func WithoutChunking() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Chunking.Enabled = false
	}
}

// WithOverwrite enables overwrite mode for output paths.
func WithOverwrite() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Encoding.Overwrite = true
	}
}

// WithDataLevel sets the configured input data level.
func WithDataLevel(level string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Encoding.DataLevel = level
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		for _, name := range names {
			writeScript(b, name, "exit 0\n")
		}
		prependPath(b)
	}
}

// WithScript writes an executable shell script named name with the given body
// and prepends it to PATH.
func WithScript(name, body string) ConfigOption {
	return func(b *configBuilder) {
		writeScript(b, name, body)
		prependPath(b)
	}
}

func writeScript(b *configBuilder, name, body string) {
	binDir := filepath.Join(b.baseDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		b.t.Fatalf("mkdir bin dir: %v", err)
	}
	script := []byte("#!/bin/sh\n" + body)
	if err := os.WriteFile(filepath.Join(binDir, name), script, 0o755); err != nil {
		b.t.Fatalf("write stub %s: %v", name, err)
	}
}

func prependPath(b *configBuilder) {
	binDir := filepath.Join(b.baseDir, "bin")
	oldPath := os.Getenv("PATH")
	if filepath.SplitList(oldPath)[0] == binDir {
		return
	}
	if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
		b.t.Fatalf("set PATH: %v", err)
	}
	b.t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
