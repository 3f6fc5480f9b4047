package editor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"proxyfarm/internal/editor"
	"proxyfarm/internal/job"
	"proxyfarm/internal/link"
	"proxyfarm/internal/services"
	"proxyfarm/internal/testsupport"
)

const manifestYAML = `project: Feature
timelines:
  - name: Reel 1
    clips:
      - source_id: a
        media_ref: pool/a
        clip_name: A001
        file_name: A001.mxf
        file_path: /media/day1/A001.mxf
        duration: 4
        frame_count: 100
        fps: 25
        width: 1920
        height: 1080
      - source_id: b
        clip_name: B001
        file_name: B001.mxf
        file_path: /media/day1/B001.mxf
        duration: 2
        frame_count: 50
        fps: 25
  - name: Reel 2
    clips: []
`

func openManifest(t *testing.T, name, content string) *editor.Manifest {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	testsupport.WriteText(t, path, content)
	m, err := editor.Open(path, "", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return m
}

func TestListClipRecordsFromYAML(t *testing.T) {
	m := openManifest(t, "clips.yaml", manifestYAML)
	ctx := context.Background()

	project, err := m.CurrentProject(ctx)
	if err != nil || project != "Feature" {
		t.Fatalf("CurrentProject = %q, %v", project, err)
	}
	names, err := m.Timelines(ctx)
	if err != nil || len(names) != 2 {
		t.Fatalf("Timelines = %v, %v", names, err)
	}
	records, err := m.ListClipRecords(ctx, "reel 1")
	if err != nil {
		t.Fatalf("ListClipRecords: %v", err)
	}
	if len(records) != 2 || records[0].MediaRef != "pool/a" || records[1].FrameCount != 50 {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[0].Project != "Feature" {
		t.Fatalf("expected project to be filled in, got %q", records[0].Project)
	}
}

func TestListClipRecordsRequiresTimelineWhenAmbiguous(t *testing.T) {
	m := openManifest(t, "clips.yaml", manifestYAML)
	_, err := m.ListClipRecords(context.Background(), "")
	if !errors.Is(err, editor.ErrTimelineNotFound) || !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrTimelineNotFound, got %v", err)
	}
	if _, err := m.ListClipRecords(context.Background(), "Reel 9"); !errors.Is(err, editor.ErrTimelineNotFound) {
		t.Fatalf("expected ErrTimelineNotFound, got %v", err)
	}
}

func TestManifestRejectsUnknownFields(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "clips.yaml", "project: X\ntimelines: []\nextra: 1\n"},
		{"json", "clips.json", `{"project":"X","timelines":[],"extra":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := openManifest(t, tt.file, tt.content)
			_, err := m.CurrentProject(context.Background())
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestJSONManifest(t *testing.T) {
	m := openManifest(t, "clips.json", `{"project":"Doc","timelines":[{"name":"Main","clips":[
		{"source_id":"x","clip_name":"X","file_name":"X.mov","file_path":"/m/X.mov","duration":1,"frame_count":24,"fps":24}]}]}`)
	records, err := m.ListClipRecords(context.Background(), "")
	if err != nil {
		t.Fatalf("ListClipRecords: %v", err)
	}
	if len(records) != 1 || records[0].SourceID != "x" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestLinkProxyMarksRecordsLinked(t *testing.T) {
	m := openManifest(t, "clips.yaml", manifestYAML)
	ctx := context.Background()
	proxy := filepath.Join(t.TempDir(), "A001.mov")
	testsupport.WriteFile(t, proxy, 8)

	handles, err := m.Handles(ctx, "Reel 1")
	if err != nil || len(handles) != 2 {
		t.Fatalf("Handles = %v, %v", handles, err)
	}
	if handles[0].Ref != "pool/a" || handles[1].Ref != "b" || handles[0].Project != "Feature" {
		t.Fatalf("unexpected handles: %+v", handles)
	}

	ok, err := m.LinkProxy(ctx, handles[0], proxy)
	if err != nil || !ok {
		t.Fatalf("LinkProxy = %v, %v", ok, err)
	}
	ok, err = m.LinkProxy(ctx, link.Handle{SourceID: "ghost", Project: "Feature"}, proxy)
	if err != nil || ok {
		t.Fatalf("expected unknown clip to be refused, got %v, %v", ok, err)
	}

	records, err := m.ListClipRecords(ctx, "Reel 1")
	if err != nil {
		t.Fatalf("ListClipRecords: %v", err)
	}
	if records[0].ProxyState != string(job.StatusLinked) || records[0].ProxyPath != proxy {
		t.Fatalf("expected a to be linked, got %+v", records[0])
	}
	if records[1].ProxyState != "" {
		t.Fatalf("expected b untouched, got %q", records[1].ProxyState)
	}
}

func TestMissingLinkedProxyIsOffline(t *testing.T) {
	m := openManifest(t, "clips.yaml", manifestYAML)
	ctx := context.Background()
	handles, err := m.Handles(ctx, "Reel 1")
	if err != nil {
		t.Fatalf("Handles: %v", err)
	}
	if _, err := m.LinkProxy(ctx, handles[1], "/nowhere/B001.mov"); err != nil {
		t.Fatalf("LinkProxy: %v", err)
	}
	testsupport.WriteText(t, m.LinksPath(), mustRead(t, m.LinksPath())+"not json\n")

	records, err := m.ListClipRecords(ctx, "Reel 1")
	if err != nil {
		t.Fatalf("ListClipRecords: %v", err)
	}
	if records[1].ProxyState != string(job.StatusOffline) {
		t.Fatalf("expected offline, got %q", records[1].ProxyState)
	}
	if _, err := job.FromRecord(records[1], job.Options{ProxyRoot: "/proxies"}); err != nil {
		t.Fatalf("offline record should stay valid: %v", err)
	}
}

func TestOpenRequiresManifest(t *testing.T) {
	if _, err := editor.Open("", "", nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := editor.Open(filepath.Join(t.TempDir(), "none.yaml"), "", nil); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
