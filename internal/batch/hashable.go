package batch

import (
	"fmt"

	"github.com/google/uuid"

	"proxyfarm/internal/chunk"
	"proxyfarm/internal/job"
	"proxyfarm/internal/task"
)

// Planner splits a job into chunks, or returns nil to encode it whole.
type Planner interface {
	Plan(j *job.Job) []chunk.Chunk
	SegmentPath(j *job.Job, seq int) string
}

// Hashable flattens every surviving job into transport-safe tasks. Output
// paths are reserved across the batch so two clips never share one. A
// chunked job yields its chunk tasks followed by a stitch task depending on
// all of them. Jobs whose output path cannot be resolved are removed and
// reported in Warnings. Group ids are left for the dispatcher.
func (b *Batch) Hashable(planner Planner, settings task.Settings, routingKey string) []task.EncodeTask {
	reserved := make(map[string]struct{}, len(b.Jobs))
	unplannable := make(map[*job.Job]struct{})
	var tasks []task.EncodeTask
	for _, j := range b.Jobs {
		output, err := j.ReserveOutputPath(reserved)
		if err != nil {
			b.Warnings = append(b.Warnings, fmt.Errorf("%s: %w", j.ClipName, err))
			unplannable[j] = struct{}{}
			continue
		}
		base := task.EncodeTask{
			RoutingKey: routingKey,
			SourceID:   j.SourceID,
			Settings:   settings,
			Source:     sourceOf(j),
		}

		chunks := planner.Plan(j)
		if len(chunks) == 0 {
			t := base
			t.ID = uuid.NewString()
			t.Kind = task.KindEncode
			t.OutputPath = output
			tasks = append(tasks, t)
			continue
		}

		ids := make([]string, 0, len(chunks))
		segments := make([]string, 0, len(chunks))
		for _, c := range chunks {
			t := base
			t.ID = uuid.NewString()
			t.Kind = task.KindChunk
			t.OutputPath = planner.SegmentPath(j, c.Sequence)
			t.Range = &task.Range{
				Sequence:   c.Sequence,
				StartFrame: c.StartFrame,
				EndFrame:   c.EndFrame,
				In:         c.In,
				Out:        c.Out,
			}
			tasks = append(tasks, t)
			ids = append(ids, t.ID)
			segments = append(segments, t.OutputPath)
		}
		stitch := base
		stitch.ID = uuid.NewString()
		stitch.Kind = task.KindStitch
		stitch.OutputPath = output
		stitch.Segments = segments
		stitch.DependsOn = ids
		tasks = append(tasks, stitch)
	}
	b.removeSet(ReasonUnplannable, unplannable)
	return tasks
}

func sourceOf(j *job.Job) task.Source {
	level := j.InputLevel
	if level == "" {
		level = job.LevelLimited
	}
	return task.Source{
		Path:       j.SourcePath,
		FileName:   j.FileName,
		FPS:        j.FPS,
		Frames:     j.Frames,
		Duration:   j.Duration,
		Width:      j.Width,
		Height:     j.Height,
		HFlip:      j.HFlip,
		VFlip:      j.VFlip,
		InputLevel: string(level),
	}
}

// Finals returns, per source, the task whose success means the proxy exists:
// the stitch task for chunked jobs, the encode task otherwise.
func Finals(tasks []task.EncodeTask) map[string]string {
	finals := make(map[string]string)
	for _, t := range tasks {
		if t.Kind == task.KindEncode || t.Kind == task.KindStitch {
			finals[t.ID] = t.SourceID
		}
	}
	return finals
}
