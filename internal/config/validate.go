package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Validate ensures the configuration is usable. It also compiles the linking
// suffix allow-list, so call it after mutating Linking.AllowedSuffixes.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEncoding(); err != nil {
		return err
	}
	if err := c.validateChunking(); err != nil {
		return err
	}
	if err := c.validateLinking(); err != nil {
		return err
	}
	if err := c.validateReconcile(); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"dispatch.task_expiry":          c.Dispatch.TaskExpiry,
		"dispatch.poll_interval_ms":     c.Dispatch.PollInterval,
		"dispatch.roster_timeout":       c.Dispatch.RosterTimeout,
		"dispatch.event_buffer_size":    c.Dispatch.EventBufferSize,
		"worker.poll_interval_ms":       c.Worker.PollInterval,
		"worker.heartbeat_interval":     c.Worker.HeartbeatInterval,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Dispatch.RosterTimeout <= c.Worker.HeartbeatInterval {
		return errors.New("dispatch.roster_timeout must be greater than worker.heartbeat_interval")
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ProxyRoot) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/proxyfarm/config.toml"
		}
		return fmt.Errorf("paths.proxy_root is required. Set PROXYFARM_PROXY_ROOT or edit %s (create with 'proxyfarm config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateEncoding() error {
	if c.Encoding.Codec == "" {
		return errors.New("encoding.codec must be set")
	}
	if c.Encoding.Height <= 0 {
		return errors.New("encoding.height must be positive")
	}
	if c.Encoding.AudioChannels < 0 {
		return errors.New("encoding.audio_channels must be >= 0")
	}
	switch c.Encoding.DataLevel {
	case "auto", "full", "limited":
	default:
		return fmt.Errorf("encoding.data_level must be auto, full or limited (got %q)", c.Encoding.DataLevel)
	}
	return nil
}

func (c *Config) validateChunking() error {
	if !c.Chunking.Enabled {
		return nil
	}
	if c.Chunking.ChunkSeconds <= 0 {
		return errors.New("chunking.chunk_seconds must be positive when chunking.enabled is true")
	}
	if c.Chunking.ThresholdSeconds < c.Chunking.ChunkSeconds {
		return errors.New("chunking.threshold_seconds must be >= chunking.chunk_seconds")
	}
	return nil
}

func (c *Config) validateLinking() error {
	patterns := make([]*regexp.Regexp, 0, len(c.Linking.AllowedSuffixes))
	for _, raw := range c.Linking.AllowedSuffixes {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		re, err := regexp.Compile(raw)
		if err != nil {
			return fmt.Errorf("linking.allowed_suffixes: invalid pattern %q: %w", raw, err)
		}
		patterns = append(patterns, re)
	}
	c.suffixPatterns = patterns
	return nil
}

func (c *Config) validateReconcile() error {
	switch c.Reconcile.ExistingProxies {
	case "link", "overwrite":
	default:
		return fmt.Errorf("reconcile.existing_proxies must be link or overwrite (got %q)", c.Reconcile.ExistingProxies)
	}
	switch c.Reconcile.OfflineMedia {
	case "rerender", "skip":
	default:
		return fmt.Errorf("reconcile.offline_media must be rerender or skip (got %q)", c.Reconcile.OfflineMedia)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
