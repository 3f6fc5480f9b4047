package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEncoding()
	c.normalizeReconcile()
	if err := c.normalizeWorker(); err != nil {
		return err
	}
	if err := c.normalizeEditor(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("PROXYFARM_PROXY_ROOT"); ok && strings.TrimSpace(value) != "" {
		c.Paths.ProxyRoot = strings.TrimSpace(value)
	}
	var err error
	if c.Paths.ProxyRoot, err = expandPath(c.Paths.ProxyRoot); err != nil {
		return fmt.Errorf("paths.proxy_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = defaultTempDir
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeEncoding() {
	c.Encoding.Codec = strings.TrimSpace(c.Encoding.Codec)
	c.Encoding.Profile = strings.TrimSpace(c.Encoding.Profile)
	c.Encoding.PixelFormat = strings.TrimSpace(c.Encoding.PixelFormat)
	c.Encoding.AudioCodec = strings.TrimSpace(c.Encoding.AudioCodec)
	ext := strings.ToLower(strings.TrimSpace(c.Encoding.Extension))
	if ext == "" {
		ext = defaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	c.Encoding.Extension = ext
	c.Encoding.DataLevel = strings.ToLower(strings.TrimSpace(c.Encoding.DataLevel))
	if c.Encoding.DataLevel == "" {
		c.Encoding.DataLevel = defaultDataLevel
	}
}

func (c *Config) normalizeReconcile() {
	c.Reconcile.ExistingProxies = strings.ToLower(strings.TrimSpace(c.Reconcile.ExistingProxies))
	if c.Reconcile.ExistingProxies == "" {
		c.Reconcile.ExistingProxies = defaultExistingProxies
	}
	c.Reconcile.OfflineMedia = strings.ToLower(strings.TrimSpace(c.Reconcile.OfflineMedia))
	if c.Reconcile.OfflineMedia == "" {
		c.Reconcile.OfflineMedia = defaultOfflineMedia
	}
}

func (c *Config) normalizeWorker() error {
	c.Worker.Name = strings.TrimSpace(c.Worker.Name)
	if value, ok := os.LookupEnv("PROXYFARM_WORKER_NAME"); ok && strings.TrimSpace(value) != "" {
		c.Worker.Name = strings.TrimSpace(value)
	}
	if c.Worker.Name == "" {
		host, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("worker.name: resolve hostname: %w", err)
		}
		c.Worker.Name = host
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = defaultWorkerConcurrency
	}
	return nil
}

func (c *Config) normalizeEditor() error {
	var err error
	if c.Editor.ManifestPath, err = expandPath(strings.TrimSpace(c.Editor.ManifestPath)); err != nil {
		return fmt.Errorf("editor.manifest_path: %w", err)
	}
	if c.Editor.LinksPath, err = expandPath(strings.TrimSpace(c.Editor.LinksPath)); err != nil {
		return fmt.Errorf("editor.links_path: %w", err)
	}
	c.Editor.Timeline = strings.TrimSpace(c.Editor.Timeline)
	if c.Editor.Timeline == "" {
		c.Editor.Timeline = defaultTimeline
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("PROXYFARM_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
