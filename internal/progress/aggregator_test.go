package progress_test

import (
	"sync"
	"testing"

	"proxyfarm/internal/progress"
	"proxyfarm/internal/task"
)

func event(id string, status task.Status, worker string) task.ProgressEvent {
	return task.ProgressEvent{TaskID: id, GroupID: "g", Status: status, WorkerName: worker}
}

func TestPercentAveragesReportingTasks(t *testing.T) {
	agg := progress.New(2)
	agg.Observe(event("t1", task.StatusStarted, "w1"))
	agg.Observe(event("t1", task.StatusEncoding, "w1").WithPercent(50))
	agg.Observe(event("t2", task.StatusSuccess, "w2"))

	if got := agg.Percent(); got != 75 {
		t.Fatalf("expected 75, got %v", got)
	}
}

func TestPercentExcludesSilentTasks(t *testing.T) {
	agg := progress.New(4)
	agg.Observe(event("t1", task.StatusEncoding, "w1").WithPercent(20))
	if got := agg.Percent(); got != 20 {
		t.Fatalf("expected 20 with one reporting task, got %v", got)
	}
	if got := progress.New(3).Percent(); got != 0 {
		t.Fatalf("expected 0 with no reports, got %v", got)
	}
}

func TestFailureCountsAsComplete(t *testing.T) {
	agg := progress.New(2)
	agg.Observe(event("t1", task.StatusFailure, "w1"))
	agg.Observe(event("t2", task.StatusEncoding, "w2").WithPercent(0))
	if got := agg.Percent(); got != 50 {
		t.Fatalf("expected 50, got %v", got)
	}
	snap := agg.Snapshot()
	if snap.Failed != 1 || snap.Succeeded != 0 || snap.Done() != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestObserveDedupesUnchangedState(t *testing.T) {
	agg := progress.New(1)
	steps := []struct {
		ev   task.ProgressEvent
		want bool
	}{
		{event("t1", task.StatusStarted, "w1"), true},
		{event("t1", task.StatusStarted, "w1"), false},
		{event("t1", task.StatusEncoding, "w1").WithPercent(10), true},
		{event("t1", task.StatusEncoding, "w1").WithPercent(10), false},
		{event("t1", task.StatusEncoding, "w1").WithPercent(11), true},
		{event("t1", task.StatusSuccess, "w1"), true},
		{event("t1", task.StatusSuccess, "w1"), false},
		{event("t1", task.StatusEncoding, "w1").WithPercent(12), false},
	}
	for i, step := range steps {
		if got := agg.Observe(step.ev); got != step.want {
			t.Fatalf("step %d: Observe = %v, want %v", i, got, step.want)
		}
	}
	if got := agg.Percent(); got != 100 {
		t.Fatalf("expected terminal task to stay at 100, got %v", got)
	}
}

func TestActiveWorkersFollowLatestEvent(t *testing.T) {
	agg := progress.New(3)
	agg.Observe(event("t1", task.StatusStarted, "w2"))
	agg.Observe(event("t2", task.StatusEncoding, "w1").WithPercent(5))
	if got := agg.ActiveWorkers(); len(got) != 2 || got[0] != "w1" || got[1] != "w2" {
		t.Fatalf("unexpected active workers %v", got)
	}
	agg.Observe(event("t1", task.StatusSuccess, "w2"))
	if got := agg.ActiveWorkers(); len(got) != 1 || got[0] != "w1" {
		t.Fatalf("expected only w1 active, got %v", got)
	}
}

func TestSettleAppliesPolledResults(t *testing.T) {
	agg := progress.New(2)
	agg.Observe(event("t1", task.StatusEncoding, "w1").WithPercent(40))
	agg.Settle([]task.Result{
		{ID: "t1", Status: task.StatusSuccess, WorkerName: "w1"},
		{ID: "t2", Status: task.StatusFailure, Info: "expired"},
	})
	snap := agg.Snapshot()
	if snap.Percent != 100 || snap.Succeeded != 1 || snap.Failed != 1 {
		t.Fatalf("unexpected snapshot after settle %+v", snap)
	}
	if len(snap.ActiveWorkers) != 0 {
		t.Fatalf("expected no active workers, got %v", snap.ActiveWorkers)
	}
	if agg.Observe(event("t1", task.StatusEncoding, "w1").WithPercent(90)) {
		t.Fatal("expected late event after settle to be ignored")
	}
}

func TestObserveConcurrent(t *testing.T) {
	agg := progress.New(50)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('A'+i%26)) + string(rune('a'+i/26))
			agg.Observe(event(id, task.StatusSuccess, "w"))
		}(i)
	}
	wg.Wait()
	if snap := agg.Snapshot(); snap.Succeeded != 50 || snap.Percent != 100 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
