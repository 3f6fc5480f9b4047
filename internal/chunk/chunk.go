// Package chunk splits long clips into fixed-length segments that workers
// encode in parallel, and names the segment files a stitch task reassembles.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"proxyfarm/internal/config"
	"proxyfarm/internal/job"
	"proxyfarm/internal/textutil"
)

// Chunk is one contiguous frame range of a clip. EndFrame is exclusive.
type Chunk struct {
	SourceID   string
	Sequence   int
	StartFrame int64
	EndFrame   int64
	In         string
	Out        string
}

// Frames returns the number of frames covered by the chunk.
func (c Chunk) Frames() int64 { return c.EndFrame - c.StartFrame }

// Planner decides whether and how a clip is split.
type Planner struct {
	Enabled          bool
	ThresholdSeconds float64
	ChunkSeconds     float64
	TempDir          string
}

// NewPlanner builds a planner from configuration.
func NewPlanner(cfg *config.Config) Planner {
	return Planner{
		Enabled:          cfg.Chunking.Enabled,
		ThresholdSeconds: float64(cfg.Chunking.ThresholdSeconds),
		ChunkSeconds:     float64(cfg.Chunking.ChunkSeconds),
		TempDir:          cfg.Paths.TempDir,
	}
}

// Plan returns the chunks for j, or nil when the clip is encoded whole.
func (p Planner) Plan(j *job.Job) []Chunk {
	if !p.Enabled || p.ChunkSeconds <= 0 || j.FPS <= 0 {
		return nil
	}
	if j.Duration < p.ThresholdSeconds {
		return nil
	}
	total := j.Frames
	if total <= 0 {
		total = int64(math.Round(j.Duration * j.FPS))
	}
	chunkFrames := int64(math.Round(p.ChunkSeconds * j.FPS))
	if chunkFrames <= 0 || total <= chunkFrames {
		return nil
	}

	count := total / chunkFrames
	if total%chunkFrames > 0 {
		count++
	}
	chunks := make([]Chunk, 0, count)
	for start, seq := int64(0), 1; start < total; start, seq = start+chunkFrames, seq+1 {
		end := min(start+chunkFrames, total)
		chunks = append(chunks, Chunk{
			SourceID:   j.SourceID,
			Sequence:   seq,
			StartFrame: start,
			EndFrame:   end,
			In:         FramesToTimecode(start, j.FPS),
			Out:        FramesToTimecode(end, j.FPS),
		})
	}
	return chunks
}

// SegmentDir returns the scratch directory holding j's segments. The name is
// the readable source token plus a digest of the raw source ID, so IDs that
// sanitize alike still get distinct directories.
func (p Planner) SegmentDir(j *job.Job) string {
	sum := sha256.Sum256([]byte(j.SourceID))
	name := textutil.SanitizeToken(j.SourceID) + "-" + hex.EncodeToString(sum[:])[:segmentDigestLen]
	return filepath.Join(p.TempDir, name)
}

const segmentDigestLen = 10

// SegmentPath returns the file a chunk encode writes: <stem>_<seq><ext>.
func (p Planner) SegmentPath(j *job.Job, seq int) string {
	return filepath.Join(p.SegmentDir(j), j.Stem()+"_"+strconv.Itoa(seq)+j.Extension())
}

// FramesToTimecode renders a frame offset as HH:MM:SS.mmm. The fraction is
// decimal milliseconds, not a frame count, because encoders take seek points
// in that form.
func FramesToTimecode(frame int64, fps float64) string {
	if fps <= 0 || frame <= 0 {
		return "00:00:00.000"
	}
	totalMillis := int64(math.Round(float64(frame) / fps * 1000))
	hours := totalMillis / 3_600_000
	minutes := totalMillis / 60_000 % 60
	seconds := totalMillis / 1000 % 60
	millis := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}
