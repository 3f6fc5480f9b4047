package chunk_test

import (
	"path/filepath"
	"strings"
	"testing"

	"proxyfarm/internal/chunk"
	"proxyfarm/internal/job"
)

func clip(t *testing.T, frames int64, fps, duration float64) *job.Job {
	t.Helper()
	j, err := job.FromRecord(job.ClipRecord{
		SourceID:   "MediaPool:7",
		FileName:   "A001.mxf",
		FilePath:   "/media/A001.mxf",
		FPS:        fps,
		FrameCount: frames,
		Duration:   duration,
	}, job.Options{ProxyRoot: "/proxies", Extension: ".mov"})
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}
	return j
}

func TestPlanSplitsWithTrailingPartial(t *testing.T) {
	p := chunk.Planner{Enabled: true, ThresholdSeconds: 2, ChunkSeconds: 2}
	chunks := p.Plan(clip(t, 125, 25, 5))
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	wantFrames := []int64{50, 50, 25}
	for i, c := range chunks {
		if c.Sequence != i+1 {
			t.Fatalf("chunk %d has sequence %d", i, c.Sequence)
		}
		if c.Frames() != wantFrames[i] {
			t.Fatalf("chunk %d has %d frames, want %d", i, c.Frames(), wantFrames[i])
		}
		if i > 0 && c.StartFrame != chunks[i-1].EndFrame {
			t.Fatalf("chunk %d is not contiguous with previous", i)
		}
		if i > 0 && c.In != chunks[i-1].Out {
			t.Fatalf("chunk %d in point %q does not match previous out %q", i, c.In, chunks[i-1].Out)
		}
	}
	if chunks[0].In != "00:00:00.000" || chunks[2].Out != "00:00:05.000" {
		t.Fatalf("unexpected bounds %q..%q", chunks[0].In, chunks[2].Out)
	}
}

func TestPlanExactMultipleHasNoTrailingChunk(t *testing.T) {
	p := chunk.Planner{Enabled: true, ThresholdSeconds: 2, ChunkSeconds: 2}
	chunks := p.Plan(clip(t, 100, 25, 4))
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if c.Frames() != 50 {
			t.Fatalf("unexpected chunk length %d", c.Frames())
		}
	}
}

func TestPlanBelowThresholdIsWhole(t *testing.T) {
	p := chunk.Planner{Enabled: true, ThresholdSeconds: 600, ChunkSeconds: 60}
	if chunks := p.Plan(clip(t, 125, 25, 5)); chunks != nil {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestPlanDisabled(t *testing.T) {
	p := chunk.Planner{Enabled: false, ThresholdSeconds: 1, ChunkSeconds: 1}
	if chunks := p.Plan(clip(t, 125, 25, 5)); chunks != nil {
		t.Fatalf("expected no chunks when disabled, got %d", len(chunks))
	}
}

func TestPlanSingleChunkIsWhole(t *testing.T) {
	p := chunk.Planner{Enabled: true, ThresholdSeconds: 2, ChunkSeconds: 10}
	if chunks := p.Plan(clip(t, 125, 25, 5)); chunks != nil {
		t.Fatalf("expected whole-file encode, got %d chunks", len(chunks))
	}
}

func TestFramesToTimecode(t *testing.T) {
	tests := []struct {
		frame int64
		fps   float64
		want  string
	}{
		{0, 25, "00:00:00.000"},
		{25, 25, "00:00:01.000"},
		{37, 25, "00:00:01.480"},
		{90000, 25, "01:00:00.000"},
		{1439, 24000.0 / 1001.0, "00:01:00.018"},
	}
	for _, tt := range tests {
		if got := chunk.FramesToTimecode(tt.frame, tt.fps); got != tt.want {
			t.Fatalf("FramesToTimecode(%d, %v) = %q, want %q", tt.frame, tt.fps, got, tt.want)
		}
	}
}

func TestSegmentPath(t *testing.T) {
	p := chunk.Planner{TempDir: "/scratch"}
	j := clip(t, 125, 25, 5)
	got := p.SegmentPath(j, 3)
	if filepath.Base(got) != "A001_3.mov" {
		t.Fatalf("unexpected segment file name %q", got)
	}
	dir := filepath.Dir(got)
	if dir != p.SegmentDir(j) {
		t.Fatalf("segment %q outside segment dir %q", got, p.SegmentDir(j))
	}
	if filepath.Dir(dir) != "/scratch" || !strings.HasPrefix(filepath.Base(dir), "mediapool_7-") {
		t.Fatalf("unexpected segment dir %q", dir)
	}
	if again := p.SegmentPath(clip(t, 125, 25, 5), 3); again != got {
		t.Fatalf("segment path not stable: %q vs %q", got, again)
	}
}

func TestSegmentDirsDistinctForSimilarSourceIDs(t *testing.T) {
	p := chunk.Planner{TempDir: "/scratch"}
	build := func(sourceID, path string) *job.Job {
		j, err := job.FromRecord(job.ClipRecord{
			SourceID:   sourceID,
			FileName:   "C0001.MP4",
			FilePath:   path,
			FPS:        25,
			FrameCount: 250,
			Duration:   10,
		}, job.Options{ProxyRoot: "/proxies", Extension: ".mov"})
		if err != nil {
			t.Fatalf("FromRecord: %v", err)
		}
		return j
	}
	a := build("Reel:A", "/cardA/C0001.MP4")
	b := build("reel_a", "/cardB/C0001.MP4")
	if p.SegmentDir(a) == p.SegmentDir(b) {
		t.Fatalf("source IDs share segment dir %q", p.SegmentDir(a))
	}
	if p.SegmentPath(a, 1) == p.SegmentPath(b, 1) {
		t.Fatalf("source IDs share segment path %q", p.SegmentPath(a, 1))
	}
}
