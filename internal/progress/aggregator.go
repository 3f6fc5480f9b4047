// Package progress folds per-task lifecycle events into an aggregate
// completion estimate for one dispatched group.
//
// The aggregate is the mean of per-task percents over tasks that have
// reported at least once, with finished tasks counted as 100. It is an
// instantaneous average, not a fraction of total work; completion itself is
// decided by polling the task queue, never by counting events.
package progress

import (
	"slices"
	"sync"

	"proxyfarm/internal/task"
)

// Snapshot is a consistent view of the aggregator state.
type Snapshot struct {
	Total         int
	Reported      int
	Succeeded     int
	Failed        int
	Percent       float64
	ActiveWorkers []string
}

// Done returns the number of tasks in a terminal state.
func (s Snapshot) Done() int { return s.Succeeded + s.Failed }

// Aggregator is safe for concurrent use.
type Aggregator struct {
	mu      sync.Mutex
	total   int
	status  map[string]task.Status
	percent map[string]float64
	workers map[string]task.Status
}

// New returns an aggregator for a group of total tasks.
func New(total int) *Aggregator {
	return &Aggregator{
		total:   total,
		status:  make(map[string]task.Status),
		percent: make(map[string]float64),
		workers: make(map[string]task.Status),
	}
}

// Observe applies one event and reports whether it changed the rendered state.
// Events after a terminal event for the same task are ignored.
func (a *Aggregator) Observe(ev task.ProgressEvent) bool {
	if ev.TaskID == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	prev, seen := a.status[ev.TaskID]
	if seen && prev.Terminal() {
		return false
	}

	changed := a.trackWorker(ev)
	switch ev.Status {
	case task.StatusStarted:
		if seen {
			return changed
		}
		a.status[ev.TaskID] = task.StatusStarted
		a.percent[ev.TaskID] = 0
		return true
	case task.StatusEncoding:
		a.status[ev.TaskID] = task.StatusEncoding
		next, ok := a.percent[ev.TaskID]
		if ev.Percent != nil {
			next = clamp(*ev.Percent)
		}
		if !seen || !ok || prev != task.StatusEncoding || next != a.percent[ev.TaskID] {
			a.percent[ev.TaskID] = next
			return true
		}
		return changed
	case task.StatusSuccess, task.StatusFailure:
		a.status[ev.TaskID] = ev.Status
		a.percent[ev.TaskID] = 100
		return true
	default:
		return changed
	}
}

func (a *Aggregator) trackWorker(ev task.ProgressEvent) bool {
	if ev.WorkerName == "" {
		return false
	}
	prev, ok := a.workers[ev.WorkerName]
	a.workers[ev.WorkerName] = ev.Status
	return !ok || prev.Active() != ev.Status.Active()
}

// Settle marks every polled result terminal, covering events lost in transit.
func (a *Aggregator) Settle(results []task.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range results {
		if !r.Status.Terminal() {
			continue
		}
		a.status[r.ID] = r.Status
		a.percent[r.ID] = 100
		if r.WorkerName != "" && a.workers[r.WorkerName].Active() {
			a.workers[r.WorkerName] = r.Status
		}
	}
}

// Percent returns the aggregate completion estimate.
func (a *Aggregator) Percent() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.percentLocked()
}

func (a *Aggregator) percentLocked() float64 {
	if len(a.percent) == 0 {
		return 0
	}
	var sum float64
	for _, p := range a.percent {
		sum += p
	}
	return sum / float64(len(a.percent))
}

// ActiveWorkers returns, sorted, the workers whose latest event shows them busy.
func (a *Aggregator) ActiveWorkers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeLocked()
}

func (a *Aggregator) activeLocked() []string {
	var names []string
	for name, status := range a.workers {
		if status.Active() {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Snapshot returns the current state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := Snapshot{
		Total:         a.total,
		Reported:      len(a.status),
		Percent:       a.percentLocked(),
		ActiveWorkers: a.activeLocked(),
	}
	for _, status := range a.status {
		switch status {
		case task.StatusSuccess:
			snap.Succeeded++
		case task.StatusFailure:
			snap.Failed++
		}
	}
	return snap
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
