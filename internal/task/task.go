package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind distinguishes whole-file encodes, chunk encodes, and stitch jobs.
type Kind string

const (
	KindEncode Kind = "encode"
	KindChunk  Kind = "chunk"
	KindStitch Kind = "stitch"
)

// Settings holds the encode settings flattened into every task.
type Settings struct {
	Codec         string `json:"codec"`
	Profile       string `json:"profile,omitempty"`
	PixelFormat   string `json:"pixel_format,omitempty"`
	Height        int    `json:"height"`
	AudioCodec    string `json:"audio_codec,omitempty"`
	AudioChannels int    `json:"audio_channels,omitempty"`
	Extension     string `json:"extension"`
}

// Source carries the probed source metadata a worker needs to encode.
type Source struct {
	Path       string  `json:"path"`
	FileName   string  `json:"file_name"`
	FPS        float64 `json:"fps"`
	Frames     int64   `json:"frames"`
	Duration   float64 `json:"duration"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	HFlip      bool    `json:"h_flip,omitempty"`
	VFlip      bool    `json:"v_flip,omitempty"`
	InputLevel string  `json:"input_level"`
}

// Range bounds a chunk task. In and Out are HH:MM:SS.mmm seek points.
type Range struct {
	Sequence   int    `json:"sequence"`
	StartFrame int64  `json:"start_frame"`
	EndFrame   int64  `json:"end_frame"`
	In         string `json:"in"`
	Out        string `json:"out"`
}

// EncodeTask is one unit of work claimed by a worker.
type EncodeTask struct {
	ID         string   `json:"id"`
	GroupID    string   `json:"group_id"`
	Kind       Kind     `json:"kind"`
	RoutingKey string   `json:"routing_key"`
	SourceID   string   `json:"source_id"`
	Settings   Settings `json:"settings"`
	Source     Source   `json:"source"`
	OutputPath string   `json:"output_path"`
	Range      *Range   `json:"range,omitempty"`
	Segments   []string `json:"segments,omitempty"`
	DependsOn  []string `json:"depends_on,omitempty"`
}

// ErrInvalidTask marks a task that cannot be executed as described.
var ErrInvalidTask = errors.New("invalid task")

// Validate checks that the fields required for the task's kind are present.
func (t EncodeTask) Validate() error {
	var problems []string
	if strings.TrimSpace(t.ID) == "" {
		problems = append(problems, "missing id")
	}
	if strings.TrimSpace(t.OutputPath) == "" {
		problems = append(problems, "missing output path")
	}
	switch t.Kind {
	case KindEncode:
		if t.Source.Path == "" {
			problems = append(problems, "missing source path")
		}
	case KindChunk:
		if t.Source.Path == "" {
			problems = append(problems, "missing source path")
		}
		if t.Range == nil {
			problems = append(problems, "chunk without range")
		} else if t.Range.EndFrame <= t.Range.StartFrame {
			problems = append(problems, "empty chunk range")
		}
	case KindStitch:
		if len(t.Segments) == 0 {
			problems = append(problems, "stitch without segments")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown kind %q", t.Kind))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w %s: %s", ErrInvalidTask, t.ID, strings.Join(problems, ", "))
	}
	return nil
}

// Marshal encodes the task for the queue.
func (t EncodeTask) Marshal() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal task %s: %w", t.ID, err)
	}
	return data, nil
}

// Unmarshal decodes a queued task payload. Unknown fields are rejected so a
// coordinator and worker built from different versions fail loudly.
func Unmarshal(data []byte) (EncodeTask, error) {
	var t EncodeTask
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return EncodeTask{}, fmt.Errorf("decode task: %w", err)
	}
	return t, nil
}
