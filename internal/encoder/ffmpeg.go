// Package encoder runs the proxy encode for one task with ffmpeg and reports
// progress ticks parsed from its -progress output.
package encoder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"proxyfarm/internal/fileutil"
	"proxyfarm/internal/logging"
	"proxyfarm/internal/services"
	"proxyfarm/internal/task"
)

const stderrTail = 2048

// FFmpeg encodes tasks with an ffmpeg binary.
type FFmpeg struct {
	Binary string
	Logger *slog.Logger
}

// New returns an encoder using binary, defaulting to "ffmpeg" on PATH.
func New(binary string, logger *slog.Logger) *FFmpeg {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FFmpeg{Binary: binary, Logger: logging.NewComponentLogger(logger, "encoder")}
}

// Encode writes t's output to a hidden partial file, renames it into place on
// success, and removes it on failure.
func (f *FFmpeg) Encode(ctx context.Context, t task.EncodeTask, onTick func(Tick)) error {
	partial := fileutil.PartialPath(t.OutputPath)
	args, err := BuildArgs(t, partial)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(t.OutputPath), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "encoder", "prepare output", t.OutputPath, err)
	}

	duration, frames := expectedLength(t)
	f.Logger.Debug("ffmpeg command",
		logging.String(logging.FieldTaskID, t.ID),
		logging.String("args", strings.Join(args, " ")),
	)

	cmd := exec.CommandContext(ctx, f.Binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrExternalTool, "encoder", "start ffmpeg", f.Binary, err)
	}
	parseErr := ParseProgress(stdout, duration, frames, onTick)
	waitErr := cmd.Wait()
	if waitErr != nil || parseErr != nil {
		_ = os.Remove(partial)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if waitErr == nil {
			waitErr = parseErr
		}
		return services.Wrap(services.ErrExternalTool, "encoder", "ffmpeg", tail(stderr.String()), waitErr)
	}
	if err := fileutil.MoveFile(partial, t.OutputPath); err != nil {
		_ = os.Remove(partial)
		return services.Wrap(services.ErrTransient, "encoder", "finalize output", t.OutputPath, err)
	}
	return nil
}

func expectedLength(t task.EncodeTask) (time.Duration, int64) {
	if t.Range != nil && t.Source.FPS > 0 {
		frames := t.Range.EndFrame - t.Range.StartFrame
		return time.Duration(float64(frames) / t.Source.FPS * float64(time.Second)), frames
	}
	return time.Duration(t.Source.Duration * float64(time.Second)), t.Source.Frames
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = s[len(s)-stderrTail:]
	}
	return s
}
