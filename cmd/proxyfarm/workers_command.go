package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"proxyfarm/internal/queue"
	"proxyfarm/internal/task"
	"proxyfarm/internal/version"
)

type workerJSON struct {
	Name       string    `json:"name"`
	Host       string    `json:"host"`
	RoutingKey string    `json:"routing_key"`
	Compatible bool      `json:"compatible"`
	LastSeen   time.Time `json:"last_seen"`
}

func newWorkersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "Show online workers and queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueueStore(func(store *queue.Store) error {
				roster, err := store.Roster(cmd.Context())
				if err != nil {
					return err
				}
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				key := version.Current()

				if ctx.JSONMode() {
					workers := make([]workerJSON, 0, len(roster))
					for _, w := range roster {
						workers = append(workers, workerJSON{
							Name:       w.Name,
							Host:       w.Host,
							RoutingKey: w.RoutingKey,
							Compatible: w.RoutingKey == key,
							LastSeen:   w.LastSeen,
						})
					}
					counts := make(map[string]int, len(stats))
					for status, n := range stats {
						counts[string(status)] = n
					}
					return writeJSON(cmd, map[string]any{
						"routing_key": key,
						"workers":     workers,
						"tasks":       counts,
					})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Routing key: %s\n", key)
				if len(roster) == 0 {
					fmt.Fprintln(out, "No workers online")
				} else {
					rows := make([][]string, 0, len(roster))
					for _, w := range roster {
						rows = append(rows, []string{
							w.Name,
							w.Host,
							w.RoutingKey,
							yesNo(w.RoutingKey == key),
							formatDuration(time.Since(w.LastSeen)) + " ago",
						})
					}
					fmt.Fprint(out, renderTable(
						[]string{"Worker", "Host", "Key", "Compatible", "Seen"},
						rows,
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
					))
				}

				if len(stats) == 0 {
					fmt.Fprintln(out, "Queue empty")
					return nil
				}
				statuses := make([]task.Status, 0, len(stats))
				for status := range stats {
					statuses = append(statuses, status)
				}
				slices.Sort(statuses)
				rows := make([][]string, 0, len(statuses))
				for _, status := range statuses {
					rows = append(rows, []string{string(status), fmt.Sprint(stats[status])})
				}
				fmt.Fprint(out, renderTable([]string{"Status", "Tasks"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}
