// Package stitch reassembles chunk segments into one proxy with a lossless
// ffmpeg concat.
package stitch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"proxyfarm/internal/fileutil"
	"proxyfarm/internal/logging"
	"proxyfarm/internal/services"
)

var sequencePattern = regexp.MustCompile(`_(\d+)$`)

const listFileName = "concat.txt"

// Stitcher concatenates ordered segments with ffmpeg.
type Stitcher struct {
	FFmpeg string
	Logger *slog.Logger
}

// New returns a Stitcher using binary, defaulting to "ffmpeg" on PATH.
func New(binary string, logger *slog.Logger) *Stitcher {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stitcher{FFmpeg: binary, Logger: logging.NewComponentLogger(logger, "stitch")}
}

type segment struct {
	path string
	seq  int
}

// Order validates segment names and returns them sorted by the sequence
// number embedded as a trailing "_<n>" in each stem. The sequence must run
// contiguously from 1.
func Order(segments []string) ([]string, error) {
	if len(segments) == 0 {
		return nil, &MissingSegmentError{Missing: []int{1}}
	}
	if err := sameExtension(segments); err != nil {
		return nil, err
	}

	parsed := make([]segment, 0, len(segments))
	seen := make(map[int]string, len(segments))
	for _, p := range segments {
		stem := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		m := sequencePattern.FindStringSubmatch(stem)
		if m == nil {
			return nil, &SegmentNameError{Path: p, Reason: "no sequence number"}
		}
		seq, err := strconv.Atoi(m[1])
		if err != nil || seq < 1 {
			return nil, &SegmentNameError{Path: p, Reason: "invalid sequence number " + m[1]}
		}
		if prev, dup := seen[seq]; dup {
			return nil, &SegmentNameError{Path: p, Reason: "duplicates sequence of " + prev}
		}
		seen[seq] = p
		parsed = append(parsed, segment{path: p, seq: seq})
	}
	sort.Slice(parsed, func(i, j int) bool { return parsed[i].seq < parsed[j].seq })

	var missing []int
	expected := 1
	for _, s := range parsed {
		for ; expected < s.seq; expected++ {
			missing = append(missing, expected)
		}
		expected = s.seq + 1
	}
	if len(missing) > 0 {
		return nil, &MissingSegmentError{Missing: missing}
	}

	ordered := make([]string, len(parsed))
	for i, s := range parsed {
		ordered[i] = s.path
	}
	return ordered, nil
}

func sameExtension(paths []string) error {
	exts := make([]string, 0, 2)
	seen := make(map[string]struct{})
	for _, p := range paths {
		ext := strings.ToLower(filepath.Ext(p))
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	if len(exts) > 1 {
		return &FormatMismatchError{Extensions: exts}
	}
	return nil
}

// Stitch concatenates segments in sequence order into outputPath. The result
// is written next to the output and renamed into place; on failure the
// partial file is removed and segments are left for inspection. After a
// successful stitch the segments, the concat list, and their directory (when
// empty) are removed.
func (s *Stitcher) Stitch(ctx context.Context, outputPath string, segments []string) (string, error) {
	ordered, err := Order(segments)
	if err != nil {
		return "", err
	}
	if err := sameExtension([]string{ordered[0], outputPath}); err != nil {
		return "", err
	}
	for i, p := range ordered {
		if !fileutil.Exists(p) {
			return "", &MissingSegmentError{Missing: []int{i + 1}, Path: p}
		}
	}

	segmentDir := filepath.Dir(ordered[0])
	listPath := filepath.Join(segmentDir, listFileName)
	if err := writeConcatList(listPath, ordered); err != nil {
		return "", services.Wrap(services.ErrTransient, "stitch", "write concat list", listPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "stitch", "prepare output", outputPath, err)
	}

	partial := fileutil.PartialPath(outputPath)
	args := []string{"-hide_banner", "-y", "-f", "concat", "-safe", "0", "-i", listPath, "-map", "0", "-c", "copy", partial}
	s.Logger.Debug("ffmpeg concat",
		logging.Int("segments", len(ordered)),
		logging.String("output", outputPath),
	)
	cmd := exec.CommandContext(ctx, s.FFmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(partial)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", services.Wrap(services.ErrExternalTool, "stitch", "ffmpeg concat", strings.TrimSpace(stderr.String()), err)
	}
	if err := fileutil.MoveFile(partial, outputPath); err != nil {
		_ = os.Remove(partial)
		return "", services.Wrap(services.ErrTransient, "stitch", "finalize output", outputPath, err)
	}

	s.cleanup(segmentDir, listPath, ordered)
	return outputPath, nil
}

func (s *Stitcher) cleanup(dir, listPath string, segments []string) {
	paths := append(append([]string(nil), segments...), listPath)
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logging.WarnWithContext(s.Logger, "segment cleanup failed", "segment_cleanup_failed",
				logging.String("path", p),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "stale segment directories are reaped on the next queue run"),
				logging.String(logging.FieldImpact, "disk space held until cleanup"),
			)
		}
	}
	// Only succeeds when empty.
	_ = os.Remove(dir)
}

func writeConcatList(path string, segments []string) error {
	var buf bytes.Buffer
	for _, p := range segments {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(&buf, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
