package task

import "context"

// Result is the queue's final record of one task.
type Result struct {
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	WorkerName string     `json:"worker_name"`
	Args       EncodeTask `json:"args"`
	Info       string     `json:"info,omitempty"`
}

// Succeeded reports whether the task finished successfully.
func (r Result) Succeeded() bool { return r.Status == StatusSuccess }

// Group is a handle on one synchronized submission.
type Group interface {
	ID() string
	// Ready reports whether every task in the group reached a terminal status.
	Ready(ctx context.Context) (bool, error)
	Results(ctx context.Context) ([]Result, error)
}
