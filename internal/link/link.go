// Package link re-associates finished proxies with their source clips through
// the host editor.
//
// Workers never see editor objects. The coordinator captures a Handle per
// source when it builds a batch and keeps them in an Index; linking looks the
// handle up by source identifier and checks it still belongs to the open
// project before asking the editor to link.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"proxyfarm/internal/fileutil"
	"proxyfarm/internal/job"
	"proxyfarm/internal/logging"
	"proxyfarm/internal/services"
)

// Handle is the editor-side reference to one source clip.
type Handle struct {
	SourceID string
	Project  string
	Ref      string
}

// Editor is the host editor's linking surface.
type Editor interface {
	CurrentProject(ctx context.Context) (string, error)
	LinkProxy(ctx context.Context, h Handle, proxyPath string) (bool, error)
}

// Index maps stable source identifiers to editor handles.
type Index struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

// NewIndex builds an index from handles. Later handles replace earlier ones
// with the same source identifier.
func NewIndex(handles ...Handle) *Index {
	idx := &Index{handles: make(map[string]Handle, len(handles))}
	for _, h := range handles {
		idx.Add(h)
	}
	return idx
}

// Add records or replaces a handle.
func (i *Index) Add(h Handle) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.handles[h.SourceID] = h
}

// Lookup returns the handle for sourceID.
func (i *Index) Lookup(sourceID string) (Handle, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	h, ok := i.handles[sourceID]
	return h, ok
}

// Len returns the number of indexed handles.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.handles)
}

// Linker links proxies through an Editor using an Index.
type Linker struct {
	editor Editor
	index  *Index
	logger *slog.Logger
}

// NewLinker wires a linker.
func NewLinker(editor Editor, index *Index, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Linker{editor: editor, index: index, logger: logging.NewComponentLogger(logger, "linker")}
}

// Link associates proxyPath with j's source clip and marks j linked.
func (l *Linker) Link(ctx context.Context, j *job.Job, proxyPath string) error {
	if proxyPath == "" || !fileutil.Exists(proxyPath) {
		return &ProxyFileMissingError{Path: proxyPath}
	}
	h, ok := l.index.Lookup(j.SourceID)
	if !ok {
		return &StaleReferenceError{SourceID: j.SourceID, Reason: "not captured in this batch"}
	}
	current, err := l.editor.CurrentProject(ctx)
	if err != nil {
		return services.Wrap(services.ErrTransient, "linker", "current project", "", err)
	}
	if h.Project != current {
		return &StaleReferenceError{
			SourceID: j.SourceID,
			Reason:   fmt.Sprintf("captured in project %q, open project is %q", h.Project, current),
		}
	}
	linked, err := l.editor.LinkProxy(ctx, h, proxyPath)
	if err != nil {
		return services.Wrap(services.ErrTransient, "linker", "link proxy", j.SourceID, err)
	}
	if !linked {
		return &LinkMismatchError{SourceID: j.SourceID, Path: proxyPath}
	}
	j.Status = job.StatusLinked
	j.LinkedProxy = proxyPath
	return nil
}

// Failure is one job that could not be linked.
type Failure struct {
	SourceID string
	ClipName string
	Path     string
	Err      error
}

// Report summarizes a linking pass.
type Report struct {
	Linked []string
	Failed []Failure
}

// Total returns the number of jobs attempted.
func (r Report) Total() int { return len(r.Linked) + len(r.Failed) }

// LinkAll links every job to its OutputPath. Individual failures are
// collected; ErrAllLinksFailed is returned only when nothing linked.
func (l *Linker) LinkAll(ctx context.Context, jobs []*job.Job) (Report, error) {
	var report Report
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := l.Link(ctx, j, j.OutputPath); err != nil {
			report.Failed = append(report.Failed, Failure{SourceID: j.SourceID, ClipName: j.ClipName, Path: j.OutputPath, Err: err})
			logging.WarnWithContext(l.logger, "link failed", "link_failed",
				logging.String(logging.FieldSourceID, j.SourceID),
				logging.String("clip", j.ClipName),
				logging.String("proxy", j.OutputPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, hint(err)),
				logging.String(logging.FieldImpact, "clip keeps its previous proxy state"),
			)
			continue
		}
		report.Linked = append(report.Linked, j.SourceID)
		l.logger.Debug("linked proxy",
			logging.String(logging.FieldSourceID, j.SourceID),
			logging.String("proxy", j.OutputPath),
		)
	}
	if len(jobs) > 0 && len(report.Linked) == 0 {
		return report, fmt.Errorf("%w (%d jobs)", ErrAllLinksFailed, len(jobs))
	}
	return report, nil
}

func hint(err error) string {
	var (
		missing *ProxyFileMissingError
		stale   *StaleReferenceError
	)
	switch {
	case errors.As(err, &missing):
		return "check the encode result for this clip"
	case errors.As(err, &stale):
		return "reopen the original project and run queue again"
	default:
		return "check the proxy matches the source's frame rate and duration"
	}
}
