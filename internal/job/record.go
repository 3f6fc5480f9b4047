package job

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strings"

	"proxyfarm/internal/services"
)

// ClipRecord is the fixed-shape clip description supplied by the editor.
type ClipRecord struct {
	SourceID   string  `json:"source_id" yaml:"source_id"`
	MediaRef   string  `json:"media_ref,omitempty" yaml:"media_ref,omitempty"`
	Project    string  `json:"project,omitempty" yaml:"project,omitempty"`
	ClipName   string  `json:"clip_name" yaml:"clip_name"`
	FileName   string  `json:"file_name" yaml:"file_name"`
	FilePath   string  `json:"file_path" yaml:"file_path"`
	Duration   float64 `json:"duration" yaml:"duration"`
	FrameCount int64   `json:"frame_count" yaml:"frame_count"`
	FPS        float64 `json:"fps" yaml:"fps"`
	Width      int     `json:"width" yaml:"width"`
	Height     int     `json:"height" yaml:"height"`
	HFlip      bool    `json:"h_flip,omitempty" yaml:"h_flip,omitempty"`
	VFlip      bool    `json:"v_flip,omitempty" yaml:"v_flip,omitempty"`
	StartFrame int64   `json:"start_frame,omitempty" yaml:"start_frame,omitempty"`
	EndFrame   int64   `json:"end_frame,omitempty" yaml:"end_frame,omitempty"`
	StartTC    string  `json:"start_tc,omitempty" yaml:"start_tc,omitempty"`
	EndTC      string  `json:"end_tc,omitempty" yaml:"end_tc,omitempty"`
	ProxyState string  `json:"proxy_status,omitempty" yaml:"proxy_status,omitempty"`
	ProxyPath  string  `json:"proxy_path,omitempty" yaml:"proxy_path,omitempty"`
}

// ErrInvalidRecord marks a clip record rejected at the boundary.
var ErrInvalidRecord = fmt.Errorf("%w: invalid clip record", services.ErrValidation)

// Options carries the settings every Job derives paths from.
type Options struct {
	ProxyRoot       string
	Extension       string
	Overwrite       bool
	AllowedSuffixes []*regexp.Regexp
}

// FromRecord validates rec and builds a Job from it.
func FromRecord(rec ClipRecord, opts Options) (*Job, error) {
	var problems []string
	rec.SourceID = strings.TrimSpace(rec.SourceID)
	rec.FilePath = strings.TrimSpace(rec.FilePath)
	if rec.SourceID == "" {
		problems = append(problems, "missing source_id")
	}
	if rec.FilePath == "" {
		problems = append(problems, "missing file_path")
	}
	if rec.FPS <= 0 || math.IsNaN(rec.FPS) {
		problems = append(problems, "fps must be positive")
	}
	if rec.Duration <= 0 || math.IsNaN(rec.Duration) {
		problems = append(problems, "duration must be positive")
	}
	if rec.FrameCount <= 0 {
		problems = append(problems, "frame_count must be positive")
	}
	status, err := ParseLinkStatus(rec.ProxyState)
	if err != nil {
		problems = append(problems, err.Error())
	}
	if status == StatusOffline && strings.TrimSpace(rec.ProxyPath) == "" {
		problems = append(problems, "offline clip without proxy_path")
	}
	if len(problems) > 0 {
		id := rec.SourceID
		if id == "" {
			id = rec.ClipName
		}
		return nil, fmt.Errorf("%w %q: %s", ErrInvalidRecord, id, strings.Join(problems, "; "))
	}

	fileName := strings.TrimSpace(rec.FileName)
	if fileName == "" {
		fileName = filepath.Base(rec.FilePath)
	}
	clipName := strings.TrimSpace(rec.ClipName)
	if clipName == "" {
		clipName = fileName
	}
	ext := opts.Extension
	if ext == "" {
		ext = ".mov"
	}
	opts.Extension = ext

	return &Job{
		SourceID:    rec.SourceID,
		MediaRef:    strings.TrimSpace(rec.MediaRef),
		ClipName:    clipName,
		FileName:    fileName,
		SourcePath:  filepath.Clean(rec.FilePath),
		Width:       rec.Width,
		Height:      rec.Height,
		FPS:         rec.FPS,
		Frames:      rec.FrameCount,
		Duration:    rec.Duration,
		HFlip:       rec.HFlip,
		VFlip:       rec.VFlip,
		StartFrame:  rec.StartFrame,
		EndFrame:    rec.EndFrame,
		StartTC:     rec.StartTC,
		EndTC:       rec.EndTC,
		Status:      status,
		LinkedProxy: strings.TrimSpace(rec.ProxyPath),
		opts:        opts,
	}, nil
}

// ParseLinkStatus maps the editor's proxy status strings onto LinkStatus.
func ParseLinkStatus(value string) (LinkStatus, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none", "unlinked":
		return StatusUnlinked, nil
	case "linked":
		return StatusLinked, nil
	case "offline":
		return StatusOffline, nil
	default:
		return StatusUnlinked, fmt.Errorf("unknown proxy_status %q", value)
	}
}
