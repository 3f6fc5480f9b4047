package preflight

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"proxyfarm/internal/config"
	"proxyfarm/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFileReadable verifies that path is a readable regular file.
func CheckFileReadable(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}

// CheckSystemDeps evaluates the binaries a worker needs: ffmpeg with the
// configured video and audio encoders, and ffprobe.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	encoders := []string{cfg.Encoding.Codec}
	if cfg.Encoding.AudioCodec != "copy" {
		encoders = append(encoders, cfg.Encoding.AudioCodec)
	}
	return deps.Check(ctx, []deps.Tool{
		{
			Name:     "FFmpeg",
			Command:  cfg.FFmpegBinary(),
			Purpose:  "Required for proxy encoding and stitching",
			Encoders: encoders,
		},
		{
			Name:     "FFprobe",
			Command:  cfg.FFprobeBinary(),
			Purpose:  "Used to detect source color range",
			Optional: cfg.Encoding.DataLevel != "auto",
		},
	})
}
