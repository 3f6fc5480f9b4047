package queue

import (
	"context"
	"fmt"

	"proxyfarm/internal/task"
)

// Stats returns a count of tasks grouped by status.
func (s *Store) Stats(ctx context.Context) (map[task.Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[task.Status]int)
	for rows.Next() {
		var status task.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Reset drops every group, task and event. The worker roster survives so
// running workers stay visible to the next coordinator.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM events`); err != nil {
		return fmt.Errorf("reset events: %w", err)
	}
	if _, err := s.execWithRetry(ctx, `DELETE FROM task_groups`); err != nil {
		return fmt.Errorf("reset groups: %w", err)
	}
	return nil
}

// PruneEvents deletes events older than the stale window.
func (s *Store) PruneEvents(ctx context.Context) (int64, error) {
	cutoff := s.clock().Add(-s.staleAfter).UnixMilli()
	res, err := s.execWithRetry(ctx, `DELETE FROM events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}
