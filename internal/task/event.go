package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is a task lifecycle state as reported by workers and the queue.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusStarted  Status = "STARTED"
	StatusEncoding Status = "ENCODING"
	StatusSuccess  Status = "SUCCESS"
	StatusFailure  Status = "FAILURE"
)

// Terminal reports whether no further transitions follow.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Active reports whether a worker is currently busy with the task.
func (s Status) Active() bool {
	return s == StatusStarted || s == StatusEncoding
}

// ProgressEvent is published by workers on the task's progress channel.
type ProgressEvent struct {
	TaskID         string    `json:"task_id"`
	GroupID        string    `json:"group_id"`
	Status         Status    `json:"status"`
	Percent        *float64  `json:"percent,omitempty"`
	WorkerName     string    `json:"worker_name"`
	SourceFileName string    `json:"source_file_name"`
	At             time.Time `json:"at"`
}

// WithPercent returns a copy of the event carrying percent.
func (e ProgressEvent) WithPercent(percent float64) ProgressEvent {
	e.Percent = &percent
	return e
}

// EncodeEvent serializes an event for publishing.
func EncodeEvent(e ProgressEvent) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal progress event: %w", err)
	}
	return data, nil
}

// DecodeEvent parses a published event payload.
func DecodeEvent(payload []byte) (ProgressEvent, error) {
	var e ProgressEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return ProgressEvent{}, fmt.Errorf("decode progress event: %w", err)
	}
	if e.TaskID == "" {
		return ProgressEvent{}, fmt.Errorf("decode progress event: missing task id")
	}
	return e, nil
}

const channelPrefix = "progress"

// Channel returns the pub/sub channel a task's events are published on.
func Channel(groupID, taskID string) string {
	return strings.Join([]string{channelPrefix, groupID, taskID}, ".")
}

// GroupPattern matches every task channel of one group (path.Match syntax).
func GroupPattern(groupID string) string {
	return strings.Join([]string{channelPrefix, groupID, "*"}, ".")
}
