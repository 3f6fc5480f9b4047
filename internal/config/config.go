package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration shared by the coordinator and workers.
type Paths struct {
	ProxyRoot string `toml:"proxy_root"`
	TempDir   string `toml:"temp_dir"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
}

// Encoding contains the proxy encode settings flattened into every task.
type Encoding struct {
	Codec         string `toml:"codec"`
	Profile       string `toml:"profile"`
	PixelFormat   string `toml:"pixel_format"`
	Height        int    `toml:"height"`
	AudioCodec    string `toml:"audio_codec"`
	AudioChannels int    `toml:"audio_channels"`
	Extension     string `toml:"extension"`
	DataLevel     string `toml:"data_level"`
	Overwrite     bool   `toml:"overwrite"`
}

// Chunking controls splitting long clips into segments encoded in parallel.
type Chunking struct {
	Enabled          bool `toml:"enabled"`
	ThresholdSeconds int  `toml:"threshold_seconds"`
	ChunkSeconds     int  `toml:"chunk_seconds"`
}

// Linking controls discovery of existing proxies next to the expected output.
type Linking struct {
	AllowedSuffixes []string `toml:"allowed_suffixes"`
}

// Reconcile holds the answers used when the coordinator runs without a terminal.
type Reconcile struct {
	ExistingProxies    string `toml:"existing_proxies"`
	OfflineMedia       string `toml:"offline_media"`
	RequeueLinkFailure bool   `toml:"requeue_link_failures"`
	ProceedMixedRoster bool   `toml:"proceed_mixed_roster"`
}

// Dispatch contains task-queue submission timing.
type Dispatch struct {
	TaskExpiry      int `toml:"task_expiry"`
	PollInterval    int `toml:"poll_interval_ms"`
	RosterTimeout   int `toml:"roster_timeout"`
	EventBufferSize int `toml:"event_buffer_size"`
}

// Worker contains settings for encoder worker processes.
type Worker struct {
	Name              string `toml:"name"`
	Concurrency       int    `toml:"concurrency"`
	PollInterval      int    `toml:"poll_interval_ms"`
	HeartbeatInterval int    `toml:"heartbeat_interval"`
	FFmpegBinary      string `toml:"ffmpeg_binary"`
	FFprobeBinary     string `toml:"ffprobe_binary"`
}

// Editor points at the clip-record export and the link results written back.
type Editor struct {
	ManifestPath string `toml:"manifest_path"`
	LinksPath    string `toml:"links_path"`
	Timeline     string `toml:"timeline"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	BatchComplete  bool   `toml:"batch_complete"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for proxyfarm.
//
// Configuration sections by subsystem:
//   - Paths: proxy root, segment temp dir, queue state, logs
//   - Encoding: codec/profile/resolution flattened into every task
//   - Chunking: parallel segment encoding of long clips
//   - Linking: suffix allow-list for existing proxy discovery
//   - Reconcile: headless answers to reconciliation questions
//   - Dispatch: expiry and polling for group submissions
//   - Worker: encoder worker identity and pacing
//   - Editor: clip-record manifest and link results
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Encoding      Encoding      `toml:"encoding"`
	Chunking      Chunking      `toml:"chunking"`
	Linking       Linking       `toml:"linking"`
	Reconcile     Reconcile     `toml:"reconcile"`
	Dispatch      Dispatch      `toml:"dispatch"`
	Worker        Worker        `toml:"worker"`
	Editor        Editor        `toml:"editor"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`

	suffixPatterns []*regexp.Regexp
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/proxyfarm/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("proxyfarm.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for coordinator and worker operation.
// ProxyRoot is created on a best-effort basis so workers can start while
// shared storage is still being mounted.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.TempDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.ProxyRoot) != "" {
		_ = os.MkdirAll(c.Paths.ProxyRoot, 0o755)
	}
	return nil
}

// QueueDBPath returns the SQLite task-queue database shared by coordinator and workers.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// LockPath returns the coordinator single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "coordinator.lock")
}

// FFmpegBinary returns the ffmpeg executable used for encodes and stitching.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Worker.FFmpegBinary); bin != "" {
		return bin
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	if bin := strings.TrimSpace(c.Worker.FFprobeBinary); bin != "" {
		return bin
	}
	return "ffprobe"
}

// SuffixPatterns returns the compiled allow-list for existing proxy discovery.
// Patterns are compiled during Validate.
func (c *Config) SuffixPatterns() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(c.suffixPatterns))
	copy(out, c.suffixPatterns)
	return out
}

// TaskExpiry returns how long submitted tasks may wait for a worker.
func (c *Config) TaskExpiry() time.Duration {
	return time.Duration(c.Dispatch.TaskExpiry) * time.Second
}

// DispatchPollInterval returns the group-readiness polling cadence.
func (c *Config) DispatchPollInterval() time.Duration {
	return time.Duration(c.Dispatch.PollInterval) * time.Millisecond
}

// RosterTimeout returns how recent a worker heartbeat must be to count as online.
func (c *Config) RosterTimeout() time.Duration {
	return time.Duration(c.Dispatch.RosterTimeout) * time.Second
}

// WorkerPollInterval returns the idle delay between claim attempts.
func (c *Config) WorkerPollInterval() time.Duration {
	return time.Duration(c.Worker.PollInterval) * time.Millisecond
}

// HeartbeatInterval returns the worker roster heartbeat cadence.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Worker.HeartbeatInterval) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
