package logging

import "strings"

// FormatSubject builds the worker/task/stage prefix used in console output.
func FormatSubject(worker, taskID, stage string) string {
	worker = strings.TrimSpace(worker)
	taskID = strings.TrimSpace(taskID)
	stage = strings.TrimSpace(stage)
	parts := make([]string, 0, 2)
	if worker != "" {
		parts = append(parts, "@"+worker)
	}
	if len(taskID) > 8 {
		taskID = taskID[:8]
	}
	switch {
	case taskID != "" && stage != "":
		parts = append(parts, "task "+taskID+" ("+stage+")")
	case taskID != "":
		parts = append(parts, "task "+taskID)
	case stage != "":
		parts = append(parts, stage)
	}
	return strings.Join(parts, " · ")
}
