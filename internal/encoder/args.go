package encoder

import (
	"fmt"
	"strconv"
	"strings"

	"proxyfarm/internal/task"
)

// BuildArgs returns the ffmpeg argument list for an encode or chunk task,
// writing to output. Chunk tasks seek on the input side so the segment
// starts at its in-point.
func BuildArgs(t task.EncodeTask, output string) ([]string, error) {
	if t.Kind != task.KindEncode && t.Kind != task.KindChunk {
		return nil, fmt.Errorf("build args: %w: kind %q is not an encode", task.ErrInvalidTask, t.Kind)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("build args: %w", err)
	}

	args := []string{"-hide_banner", "-y"}
	if t.Kind == task.KindChunk {
		args = append(args, "-ss", t.Range.In, "-to", t.Range.Out)
	}
	args = append(args, "-i", t.Source.Path, "-map", "0:v:0", "-map", "0:a?")

	s := t.Settings
	args = append(args, "-c:v", s.Codec)
	if s.Profile != "" {
		args = append(args, "-profile:v", s.Profile)
	}
	args = append(args, "-vf", videoFilter(t))
	if s.PixelFormat != "" {
		args = append(args, "-pix_fmt", s.PixelFormat)
	}
	if s.AudioCodec != "" {
		args = append(args, "-c:a", s.AudioCodec)
	}
	if s.AudioChannels > 0 {
		args = append(args, "-ac", strconv.Itoa(s.AudioChannels))
	}
	args = append(args, "-progress", "pipe:1", "-nostats", output)
	return args, nil
}

func videoFilter(t task.EncodeTask) string {
	inRange := t.Source.InputLevel
	if inRange != "full" {
		inRange = "limited"
	}
	filters := []string{
		fmt.Sprintf("scale=-2:%d:in_range=%s:out_range=limited", t.Settings.Height, inRange),
	}
	if t.Source.HFlip {
		filters = append(filters, "hflip")
	}
	if t.Source.VFlip {
		filters = append(filters, "vflip")
	}
	return strings.Join(filters, ",")
}
