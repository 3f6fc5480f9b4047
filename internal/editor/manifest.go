// Package editor adapts a clip-record manifest exported from the host editor
// to the interfaces the coordinator consumes.
//
// The manifest is YAML (or JSON when the file ends in .json) naming the open
// project and its timelines. It is re-read on every call so a project switch
// in the editor is visible mid-run. Links are appended to a JSON Lines file
// the editor imports; records already present there are reported as linked.
package editor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"proxyfarm/internal/fileutil"
	"proxyfarm/internal/job"
	"proxyfarm/internal/link"
	"proxyfarm/internal/logging"
	"proxyfarm/internal/services"
)

// ErrTimelineNotFound is returned when the requested timeline is absent.
var ErrTimelineNotFound = fmt.Errorf("%w: timeline", services.ErrNotFound)

type document struct {
	Project   string     `yaml:"project" json:"project"`
	Timelines []timeline `yaml:"timelines" json:"timelines"`
}

type timeline struct {
	Name  string           `yaml:"name" json:"name"`
	Clips []job.ClipRecord `yaml:"clips" json:"clips"`
}

// LinkEntry is one line of the links file.
type LinkEntry struct {
	Project   string    `json:"project"`
	SourceID  string    `json:"source_id"`
	Ref       string    `json:"ref,omitempty"`
	ProxyPath string    `json:"proxy_path"`
	LinkedAt  time.Time `json:"linked_at"`
}

// Manifest is safe for concurrent use.
type Manifest struct {
	path      string
	linksPath string
	mu        sync.Mutex
	now       func() time.Time
	logger    *slog.Logger
}

// Open returns a manifest adapter. linksPath defaults to links.jsonl next to
// the manifest.
func Open(path, linksPath string, logger *slog.Logger) (*Manifest, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, services.Wrap(services.ErrConfiguration, "editor", "open", "editor.manifest_path is empty", nil)
	}
	if !fileutil.Exists(path) {
		return nil, services.Wrap(services.ErrNotFound, "editor", "open", path, os.ErrNotExist)
	}
	if strings.TrimSpace(linksPath) == "" {
		linksPath = filepath.Join(filepath.Dir(path), "links.jsonl")
	}
	return &Manifest{
		path:      path,
		linksPath: linksPath,
		now:       time.Now,
		logger:    logging.NewComponentLogger(logger, "editor"),
	}, nil
}

// LinksPath returns the file links are appended to.
func (m *Manifest) LinksPath() string { return m.linksPath }

func (m *Manifest) load(ctx context.Context) (document, error) {
	if err := ctx.Err(); err != nil {
		return document{}, err
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		return document{}, services.Wrap(services.ErrNotFound, "editor", "read manifest", m.path, err)
	}
	var doc document
	if strings.EqualFold(filepath.Ext(m.path), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	}
	if err != nil {
		return document{}, services.Wrap(services.ErrValidation, "editor", "parse manifest", m.path, err)
	}
	return doc, nil
}

// CurrentProject returns the project named in the manifest.
func (m *Manifest) CurrentProject(ctx context.Context) (string, error) {
	doc, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.Project), nil
}

// Timelines lists timeline names in manifest order.
func (m *Manifest) Timelines(ctx context.Context) ([]string, error) {
	doc, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(doc.Timelines))
	for i, tl := range doc.Timelines {
		names[i] = tl.Name
	}
	return names, nil
}

func (d document) timeline(name string) (timeline, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		if len(d.Timelines) == 1 {
			return d.Timelines[0], nil
		}
		return timeline{}, fmt.Errorf("%w: manifest has %d timelines, set editor.timeline", ErrTimelineNotFound, len(d.Timelines))
	}
	for _, tl := range d.Timelines {
		if strings.EqualFold(strings.TrimSpace(tl.Name), name) {
			return tl, nil
		}
	}
	return timeline{}, fmt.Errorf("%w %q", ErrTimelineNotFound, name)
}

// ListClipRecords returns the clip records of timeline. Clips recorded in the
// links file for the current project are reported as linked, unless the
// linked proxy has since disappeared, in which case they are offline.
func (m *Manifest) ListClipRecords(ctx context.Context, timelineName string) ([]job.ClipRecord, error) {
	doc, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	tl, err := doc.timeline(timelineName)
	if err != nil {
		return nil, err
	}
	links, err := m.Links(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]job.ClipRecord, len(tl.Clips))
	for i, rec := range tl.Clips {
		if rec.Project == "" {
			rec.Project = doc.Project
		}
		if entry, ok := links[rec.SourceID]; ok && entry.Project == doc.Project {
			rec.ProxyPath = entry.ProxyPath
			rec.ProxyState = string(job.StatusLinked)
			if !fileutil.Exists(entry.ProxyPath) {
				rec.ProxyState = string(job.StatusOffline)
			}
		}
		records[i] = rec
	}
	return records, nil
}

// Handles returns a link handle for every clip of timeline.
func (m *Manifest) Handles(ctx context.Context, timelineName string) ([]link.Handle, error) {
	doc, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	tl, err := doc.timeline(timelineName)
	if err != nil {
		return nil, err
	}
	handles := make([]link.Handle, 0, len(tl.Clips))
	for _, rec := range tl.Clips {
		ref := rec.MediaRef
		if ref == "" {
			ref = rec.SourceID
		}
		handles = append(handles, link.Handle{SourceID: rec.SourceID, Project: doc.Project, Ref: ref})
	}
	return handles, nil
}

// LinkProxy records proxyPath for the handle's clip. It returns false when
// the clip is not in the manifest.
func (m *Manifest) LinkProxy(ctx context.Context, h link.Handle, proxyPath string) (bool, error) {
	doc, err := m.load(ctx)
	if err != nil {
		return false, err
	}
	if !doc.contains(h.SourceID) {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry := LinkEntry{
		Project:   h.Project,
		SourceID:  h.SourceID,
		Ref:       h.Ref,
		ProxyPath: proxyPath,
		LinkedAt:  m.now().UTC(),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("encode link entry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.linksPath), 0o755); err != nil {
		return false, services.Wrap(services.ErrTransient, "editor", "link", "create links dir", err)
	}
	f, err := os.OpenFile(m.linksPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "editor", "link", "open links file", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return false, services.Wrap(services.ErrTransient, "editor", "link", "write links file", err)
	}
	m.logger.Debug("proxy linked",
		logging.String(logging.FieldSourceID, h.SourceID),
		logging.String("proxy", proxyPath),
	)
	return true, f.Close()
}

func (d document) contains(sourceID string) bool {
	for _, tl := range d.Timelines {
		for _, rec := range tl.Clips {
			if rec.SourceID == sourceID {
				return true
			}
		}
	}
	return false
}

// Links returns the latest link entry per source. A missing links file is empty.
func (m *Manifest) Links(ctx context.Context) (map[string]LinkEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := os.Open(m.linksPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]LinkEntry{}, nil
		}
		return nil, fmt.Errorf("open links file: %w", err)
	}
	defer f.Close()

	links := make(map[string]LinkEntry)
	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var entry LinkEntry
		if err := json.Unmarshal([]byte(text), &entry); err != nil {
			logging.WarnWithContext(m.logger, "skipping malformed link entry", "links_file_malformed",
				logging.String("path", m.linksPath),
				logging.Int("line", lineNo),
				logging.Error(err),
				logging.String(logging.FieldImpact, "clip may be re-encoded"),
			)
			continue
		}
		links[entry.SourceID] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read links file: %w", err)
	}
	return links, nil
}
