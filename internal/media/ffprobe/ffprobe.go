package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	PixFmt       string `json:"pix_fmt"`
	ColorRange   string `json:"color_range"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
	Channels     int    `json:"channels"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return Parse(output)
}

// Parse decodes ffprobe JSON output.
func Parse(output []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// FirstVideo returns the first video stream, if any.
func (r Result) FirstVideo() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, true
		}
	}
	return Stream{}, false
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// FrameRate returns the first video stream's frame rate, preferring the
// average rate over the container base rate.
func (r Result) FrameRate() float64 {
	video, ok := r.FirstVideo()
	if !ok {
		return 0
	}
	if rate := parseRational(video.AvgFrameRate); rate > 0 {
		return rate
	}
	return parseRational(video.RFrameRate)
}

// FrameCount returns the first video stream's frame count, estimating from
// duration and frame rate when the container omits nb_frames.
func (r Result) FrameCount() int64 {
	if video, ok := r.FirstVideo(); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(video.NbFrames), 10, 64); err == nil && n > 0 {
			return n
		}
	}
	duration := r.DurationSeconds()
	rate := r.FrameRate()
	if math.IsNaN(duration) || duration <= 0 || rate <= 0 {
		return 0
	}
	return int64(math.Round(duration * rate))
}

// ColorRange returns the first video stream's color_range tag ("pc", "tv"),
// or "" when absent or reported as unknown.
func (r Result) ColorRange() string {
	video, ok := r.FirstVideo()
	if !ok {
		return ""
	}
	value := strings.ToLower(strings.TrimSpace(video.ColorRange))
	if value == "unknown" {
		return ""
	}
	return value
}

// Prober runs ffprobe with a fixed binary.
type Prober struct {
	Binary string
}

// ColorRange probes path and returns its first video stream's color range tag.
func (p Prober) ColorRange(ctx context.Context, path string) (string, error) {
	result, err := Inspect(ctx, p.Binary, path)
	if err != nil {
		return "", err
	}
	return result.ColorRange(), nil
}

func parseRational(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	num, den, found := strings.Cut(value, "/")
	if !found {
		return parseFloat(value)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if math.IsNaN(n) || math.IsNaN(d) || d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
