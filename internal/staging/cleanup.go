package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"proxyfarm/internal/logging"
)

// CleanStaleResult contains the outcome of a cleanup pass.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes segment directories under tempDir older than maxAge.
// Directories named in keep belong to the running batch and are never removed.
func CleanStale(ctx context.Context, tempDir string, maxAge time.Duration, keep map[string]struct{}, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}

	tempDir = strings.TrimSpace(tempDir)
	if tempDir == "" {
		return result
	}
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: tempDir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() {
			continue
		}
		if _, active := keep[entry.Name()]; active {
			continue
		}
		dirPath := filepath.Join(tempDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			logging.WarnWithContext(logger, "failed to remove stale segment directory", "staging_cleanup_failed",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check paths.temp_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		if logger != nil {
			logger.Info("removed stale segment directory",
				logging.String("path", dirPath),
				logging.Duration("age", time.Since(info.ModTime()).Round(time.Second)),
				logging.String(logging.FieldEventType, "staging_cleanup"),
			)
		}
	}
	return result
}

// ListDirectories returns every segment directory with its metadata.
func ListDirectories(tempDir string) ([]DirInfo, error) {
	tempDir = strings.TrimSpace(tempDir)
	if tempDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirPath := filepath.Join(tempDir, entry.Name())
		size, segments := dirStats(dirPath)
		dirs = append(dirs, DirInfo{
			Name:     entry.Name(),
			Path:     dirPath,
			ModTime:  info.ModTime(),
			Size:     size,
			Segments: segments,
		})
	}
	return dirs, nil
}

// DirInfo describes one segment directory.
type DirInfo struct {
	Name     string
	Path     string
	ModTime  time.Time
	Size     int64
	Segments int
}

// dirStats sums file sizes and counts files, best effort.
func dirStats(path string) (int64, int) {
	var size int64
	var files int
	_ = filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
			files++
		}
		return nil
	})
	return size, files
}
