package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"proxyfarm/internal/batch"
	"proxyfarm/internal/config"
	"proxyfarm/internal/decide"
	"proxyfarm/internal/editor"
	"proxyfarm/internal/encoder"
	"proxyfarm/internal/queue"
	"proxyfarm/internal/services"
	"proxyfarm/internal/task"
	"proxyfarm/internal/testsupport"
	"proxyfarm/internal/version"
	"proxyfarm/internal/worker"
	"proxyfarm/internal/workflow"
)

type clip struct {
	id       string
	name     string
	duration float64
}

// writingEncoder stands in for ffmpeg by writing a small file at the output.
type writingEncoder struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []task.EncodeTask
}

func (e *writingEncoder) Encode(_ context.Context, t task.EncodeTask, onTick func(encoder.Tick)) error {
	e.mu.Lock()
	e.calls = append(e.calls, t)
	fail := e.fail[t.SourceID]
	e.mu.Unlock()
	if fail {
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "encode", "exit status 1", nil)
	}
	onTick(encoder.Tick{Percent: 50})
	if err := os.MkdirAll(filepath.Dir(t.OutputPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(t.OutputPath, []byte("proxy"), 0o644)
}

func (e *writingEncoder) kinds() map[task.Kind]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[task.Kind]int)
	for _, t := range e.calls {
		out[t.Kind]++
	}
	return out
}

type writingStitcher struct {
	mu    sync.Mutex
	count int
}

func (s *writingStitcher) Stitch(_ context.Context, output string, segments []string) (string, error) {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	for _, seg := range segments {
		if _, err := os.Stat(seg); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return "", err
	}
	return output, os.WriteFile(output, []byte("stitched"), 0o644)
}

type harness struct {
	cfg      *config.Config
	store    *queue.Store
	manifest *editor.Manifest
	encoder  *writingEncoder
	stitcher *writingStitcher
}

func newHarness(t *testing.T, clips []clip, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithDataLevel("limited")}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	base := testsupport.BaseDir(cfg)

	var b strings.Builder
	b.WriteString("project: Feature\ntimelines:\n  - name: Reel 1\n    clips:\n")
	for _, c := range clips {
		path := filepath.Join(base, "media", "day1", c.name+".mxf")
		testsupport.WriteFile(t, path, 32)
		fmt.Fprintf(&b, "      - source_id: %s\n        clip_name: %s\n        file_name: %s.mxf\n        file_path: %s\n        duration: %g\n        frame_count: %d\n        fps: 25\n",
			c.id, c.name, c.name, path, c.duration, int64(c.duration*25))
	}
	manifestPath := filepath.Join(base, "clips.yaml")
	testsupport.WriteText(t, manifestPath, b.String())
	cfg.Editor.ManifestPath = manifestPath
	cfg.Editor.Timeline = "Reel 1"

	manifest, err := editor.Open(manifestPath, "", nil)
	if err != nil {
		t.Fatalf("editor.Open: %v", err)
	}
	return &harness{
		cfg:      cfg,
		store:    testsupport.MustOpenStore(t, cfg),
		manifest: manifest,
		encoder:  &writingEncoder{fail: map[string]bool{}},
		stitcher: &writingStitcher{},
	}
}

// startWorker runs an in-process worker until the test ends.
func (h *harness) startWorker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := worker.New(h.cfg, h.store, h.store, h.encoder, h.stitcher, nil).WithConcurrency(2)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil {
			t.Errorf("worker Run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (h *harness) coordinator(d decide.Decider) *workflow.Coordinator {
	return workflow.New(h.cfg, h.store, h.manifest, d, nil)
}

func runWithTimeout(t *testing.T, c *workflow.Coordinator) (*workflow.Report, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return c.Run(ctx)
}

func TestRunEncodesAndLinksTimeline(t *testing.T) {
	h := newHarness(t, []clip{{"a", "A001", 4}, {"b", "B001", 2}}, testsupport.WithoutChunking())
	h.startWorker(t)

	report, err := runWithTimeout(t, h.coordinator(nil))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Tasks != 2 || report.GroupID == "" {
		t.Fatalf("unexpected dispatch: tasks=%d group=%q", report.Tasks, report.GroupID)
	}
	if len(report.Link.Linked) != 2 || len(report.Link.Failed) != 0 {
		t.Fatalf("unexpected link report: %+v", report.Link)
	}
	want := filepath.Join(h.cfg.Paths.ProxyRoot, testsupport.BaseDir(h.cfg)[1:], "media", "day1", "A001.mov")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected proxy mirrored under proxy root at %s: %v", want, err)
	}

	links, err := h.manifest.Links(context.Background())
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	if links["a"].ProxyPath != want {
		t.Fatalf("link entry for a = %+v", links["a"])
	}

	again, err := runWithTimeout(t, h.coordinator(nil))
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if again.Tasks != 0 {
		t.Fatalf("expected linked clips to be skipped, dispatched %d tasks", again.Tasks)
	}
	if len(again.Removed) != 2 || again.Removed[0].Reason != batch.ReasonAlreadyLinked {
		t.Fatalf("unexpected removals on rerun: %+v", again.Removed)
	}
}

func TestRunChunksLongClips(t *testing.T) {
	h := newHarness(t, []clip{{"long", "L001", 10}}, testsupport.WithChunking(8, 4))
	h.startWorker(t)

	report, err := runWithTimeout(t, h.coordinator(nil))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Tasks != 4 {
		t.Fatalf("expected 3 chunks plus a stitch, got %d tasks", report.Tasks)
	}
	if got := h.encoder.kinds()[task.KindChunk]; got != 3 {
		t.Fatalf("expected 3 chunk encodes, got %d", got)
	}
	h.stitcher.mu.Lock()
	stitched := h.stitcher.count
	h.stitcher.mu.Unlock()
	if stitched != 1 {
		t.Fatalf("expected one stitch, got %d", stitched)
	}
	if len(report.Link.Linked) != 1 || report.Link.Linked[0] != "long" {
		t.Fatalf("unexpected link report: %+v", report.Link)
	}
}

func TestRunReportsEncodeFailures(t *testing.T) {
	h := newHarness(t, []clip{{"a", "A001", 4}, {"b", "B001", 2}}, testsupport.WithoutChunking())
	h.encoder.fail["b"] = true
	h.startWorker(t)

	report, err := runWithTimeout(t, h.coordinator(nil))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.EncodeFailures) != 1 {
		t.Fatalf("expected one encode failure, got %+v", report.EncodeFailures)
	}
	failure := report.EncodeFailures[0]
	if failure.SourceID != "b" || failure.ClipName != "B001" || !strings.HasPrefix(failure.Info, "tool:") {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if len(report.Link.Linked) != 1 || report.Link.Linked[0] != "a" {
		t.Fatalf("unexpected link report: %+v", report.Link)
	}
	if report.Summary().Failed != 1 || report.Summary().Linked != 1 {
		t.Fatalf("unexpected summary: %+v", report.Summary())
	}
}

func TestRunLinksExistingProxyWithoutDispatch(t *testing.T) {
	h := newHarness(t, []clip{{"a", "A001", 4}}, testsupport.WithoutChunking())
	existing := filepath.Join(h.cfg.Paths.ProxyRoot, testsupport.BaseDir(h.cfg)[1:], "media", "day1", "A001.mov")
	testsupport.WriteFile(t, existing, 8)

	report, err := runWithTimeout(t, h.coordinator(decide.Policy{ExistingProxies: decide.DecisionLink}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Tasks != 0 || report.Counters.LinkedOK != 1 {
		t.Fatalf("expected existing proxy linked without encoding: tasks=%d counters=%+v", report.Tasks, report.Counters)
	}
	if report.Linked() != 1 {
		t.Fatalf("Linked() = %d", report.Linked())
	}
}

func TestRunFailsWithoutCompatibleWorkers(t *testing.T) {
	h := newHarness(t, []clip{{"a", "A001", 4}}, testsupport.WithoutChunking())
	ctx := context.Background()
	if err := h.store.Heartbeat(ctx, version.WorkerInfo{Name: "old-box", Host: "old", RoutingKey: "0.0.1-deadbee"}); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	_, err := runWithTimeout(t, h.coordinator(nil))
	var noWorkers *version.NoCompatibleWorkersError
	if !errors.As(err, &noWorkers) {
		t.Fatalf("expected NoCompatibleWorkersError, got %v", err)
	}
	stats, err := h.store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 0 {
		t.Fatalf("expected nothing submitted, got %v", stats)
	}
}

func TestRunAbortsWhenMixedRosterDeclined(t *testing.T) {
	h := newHarness(t, []clip{{"a", "A001", 4}}, testsupport.WithoutChunking())
	ctx := context.Background()
	for _, w := range []version.WorkerInfo{
		{Name: "new-box", Host: "new", RoutingKey: version.Current()},
		{Name: "old-box", Host: "old", RoutingKey: "0.0.1-deadbee"},
	} {
		if err := h.store.Heartbeat(ctx, w); err != nil {
			t.Fatalf("Heartbeat: %v", err)
		}
	}

	var asked []decide.Kind
	d := decide.Func(func(ctx context.Context, q decide.Question) (decide.Decision, error) {
		asked = append(asked, q.Kind)
		return decide.Policy{}.Ask(ctx, q)
	})
	_, err := runWithTimeout(t, h.coordinator(d))
	if !errors.Is(err, workflow.ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}
	if len(asked) == 0 || asked[len(asked)-1] != decide.QuestionMixedRoster {
		t.Fatalf("expected the mixed roster question last, asked %v", asked)
	}
}

func TestRunRejectsConcurrentCoordinator(t *testing.T) {
	h := newHarness(t, []clip{{"a", "A001", 4}})
	held := flock.New(h.cfg.LockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer func() { _ = held.Unlock() }()

	_, err = runWithTimeout(t, h.coordinator(nil))
	if !errors.Is(err, workflow.ErrCoordinatorBusy) {
		t.Fatalf("expected ErrCoordinatorBusy, got %v", err)
	}
}

func TestRunAbortsWhenProjectChanges(t *testing.T) {
	h := newHarness(t, []clip{{"a", "A001", 4}}, testsupport.WithoutChunking())
	h.startWorker(t)

	swapped := &switchingEditor{Manifest: h.manifest, after: 1, project: "Other"}
	c := workflow.New(h.cfg, h.store, swapped, nil, nil)
	report, err := runWithTimeout(t, c)
	if !errors.Is(err, workflow.ErrProjectChanged) {
		t.Fatalf("expected ErrProjectChanged, got %v", err)
	}
	if report == nil || len(report.Link.Linked) != 0 {
		t.Fatalf("expected no links after project change, got %+v", report)
	}
}

// switchingEditor reports a different project once CurrentProject has been
// called more than after times.
type switchingEditor struct {
	*editor.Manifest
	mu      sync.Mutex
	calls   int
	after   int
	project string
}

func (s *switchingEditor) CurrentProject(ctx context.Context) (string, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()
	if n > s.after {
		return s.project, nil
	}
	return s.Manifest.CurrentProject(ctx)
}
