package main

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"proxyfarm/internal/workflow"
)

type reportJSON struct {
	Project        string         `json:"project"`
	Timeline       string         `json:"timeline"`
	GroupID        string         `json:"group_id,omitempty"`
	Clips          int            `json:"clips"`
	Tasks          int            `json:"tasks"`
	LinkedExisting int            `json:"linked_existing"`
	Linked         []string       `json:"linked"`
	Skipped        map[string]int `json:"skipped"`
	EncodeFailures []failureJSON  `json:"encode_failures"`
	LinkFailures   []failureJSON  `json:"link_failures"`
	Warnings       []string       `json:"warnings"`
	DurationMS     int64          `json:"duration_ms"`
}

type failureJSON struct {
	SourceID string `json:"source_id"`
	Clip     string `json:"clip,omitempty"`
	Detail   string `json:"detail"`
}

func renderReport(cmd *cobra.Command, asJSON bool, r *workflow.Report) error {
	skipped := make(map[string]int)
	for _, removal := range r.Removed {
		skipped[removal.Reason]++
	}
	if asJSON {
		out := reportJSON{
			Project:        r.Project,
			Timeline:       r.Timeline,
			GroupID:        r.GroupID,
			Clips:          r.Clips,
			Tasks:          r.Tasks,
			LinkedExisting: r.Counters.LinkedOK,
			Linked:         append([]string{}, r.Link.Linked...),
			Skipped:        skipped,
			EncodeFailures: []failureJSON{},
			LinkFailures:   []failureJSON{},
			Warnings:       []string{},
			DurationMS:     r.Duration.Milliseconds(),
		}
		for _, f := range r.EncodeFailures {
			out.EncodeFailures = append(out.EncodeFailures, failureJSON{SourceID: f.SourceID, Clip: f.ClipName, Detail: f.Info})
		}
		for _, f := range r.Link.Failed {
			out.LinkFailures = append(out.LinkFailures, failureJSON{SourceID: f.SourceID, Clip: f.ClipName, Detail: f.Err.Error()})
		}
		for _, w := range r.Warnings {
			out.Warnings = append(out.Warnings, w.Error())
		}
		return writeJSON(cmd, out)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Project:  %s\n", r.Project)
	fmt.Fprintf(out, "Timeline: %s\n", r.Timeline)
	fmt.Fprintf(out, "Clips:    %d (%d tasks dispatched)\n", r.Clips, r.Tasks)
	fmt.Fprintf(out, "Linked:   %d new, %d existing\n", len(r.Link.Linked), r.Counters.LinkedOK)
	for _, reason := range slices.Sorted(maps.Keys(skipped)) {
		fmt.Fprintf(out, "Skipped:  %d %s\n", skipped[reason], reason)
	}
	fmt.Fprintf(out, "Elapsed:  %s\n", r.Duration.Round(time.Second))

	rows := make([][]string, 0, len(r.EncodeFailures)+len(r.Link.Failed))
	for _, f := range r.EncodeFailures {
		rows = append(rows, []string{clipLabel(f.ClipName, f.SourceID), "encode " + string(f.Kind), f.Worker, f.Info})
	}
	for _, f := range r.Link.Failed {
		rows = append(rows, []string{clipLabel(f.ClipName, f.SourceID), "link", "", f.Err.Error()})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, renderTable([]string{"Clip", "Stage", "Worker", "Detail"}, rows, nil))
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "warning: %v\n", w)
	}
	return nil
}

func clipLabel(name, sourceID string) string {
	if name == "" {
		return sourceID
	}
	return name
}
