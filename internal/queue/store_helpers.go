package queue

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"proxyfarm/internal/task"
)

const taskColumns = "id, group_id, status, worker_name, info, payload, created_at, started_at, finished_at"

// Record is a task row as stored in the queue.
type Record struct {
	ID         string
	GroupID    string
	Status     task.Status
	WorkerName string
	Info       string
	Task       task.EncodeTask
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Result converts the row to the task-queue result shape.
func (r Record) Result() task.Result {
	return task.Result{
		ID:         r.ID,
		Status:     r.Status,
		WorkerName: r.WorkerName,
		Args:       r.Task,
		Info:       r.Info,
	}
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id          string
		groupID     string
		statusStr   string
		workerName  sql.NullString
		info        sql.NullString
		payload     string
		createdRaw  sql.NullString
		startedRaw  sql.NullString
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&groupID,
		&statusStr,
		&workerName,
		&info,
		&payload,
		&createdRaw,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	decoded, err := task.Unmarshal([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", id, err)
	}
	rec := &Record{
		ID:         id,
		GroupID:    groupID,
		Status:     task.Status(statusStr),
		WorkerName: workerName.String,
		Info:       info.String,
		Task:       decoded,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		rec.CreatedAt = created
	}
	if started, err := parseTimeString(startedRaw.String); err == nil {
		rec.StartedAt = started
	}
	if finished, err := parseTimeString(finishedRaw.String); err == nil {
		rec.FinishedAt = finished
	}
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
