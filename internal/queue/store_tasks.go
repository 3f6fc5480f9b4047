package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"proxyfarm/internal/task"
)

// SubmitGroup stores every task of one group atomically. All tasks must carry
// the same non-empty GroupID and dependencies must refer to tasks of the same
// submission. Runnable tasks still pending after expiry are failed
// queue-side; a dependent task's expiry starts once its last dependency
// succeeds.
func (s *Store) SubmitGroup(ctx context.Context, tasks []task.EncodeTask, expiry time.Duration) (task.Group, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("submit group: %w: no tasks", task.ErrInvalidTask)
	}
	if expiry <= 0 {
		return nil, fmt.Errorf("submit group: expiry must be positive")
	}
	groupID := tasks[0].GroupID
	if groupID == "" {
		return nil, fmt.Errorf("submit group: %w: missing group id", task.ErrInvalidTask)
	}
	ids := make(map[string]struct{}, len(tasks))
	payloads := make([]string, len(tasks))
	for i, t := range tasks {
		if t.GroupID != groupID {
			return nil, fmt.Errorf("submit group: %w: task %s belongs to group %q", task.ErrInvalidTask, t.ID, t.GroupID)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("submit group: %w", err)
		}
		if _, dup := ids[t.ID]; dup {
			return nil, fmt.Errorf("submit group: %w: duplicate task id %s", task.ErrInvalidTask, t.ID)
		}
		ids[t.ID] = struct{}{}
		data, err := t.Marshal()
		if err != nil {
			return nil, err
		}
		payloads[i] = string(data)
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := ids[dep]; !ok {
				return nil, fmt.Errorf("submit group: %w: task %s depends on unknown task %s", task.ErrInvalidTask, t.ID, dep)
			}
		}
	}

	now := s.clock()
	created := formatTime(now)
	expires := now.Add(expiry).UnixMilli()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO task_groups (id, created_at, expires_at, expiry_ms) VALUES (?, ?, ?, ?)`,
			groupID, created, expires, expiry.Milliseconds(),
		); err != nil {
			return fmt.Errorf("insert group: %w", err)
		}
		for i, t := range tasks {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tasks (id, group_id, kind, routing_key, payload, status, created_at, expires_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				t.ID, groupID, string(t.Kind), t.RoutingKey, payloads[i], task.StatusPending, created, expires,
			); err != nil {
				return fmt.Errorf("insert task %s: %w", t.ID, err)
			}
		}
		for _, t := range tasks {
			for _, dep := range t.DependsOn {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO task_deps (task_id, depends_on) VALUES (?, ?)`, t.ID, dep,
				); err != nil {
					return fmt.Errorf("insert dependency %s -> %s: %w", t.ID, dep, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Group(groupID), nil
}

// Group returns a handle for an existing group.
func (s *Store) Group(id string) task.Group {
	return &groupHandle{store: s, id: id}
}

// Claim hands the oldest runnable task for routingKey to worker and marks it
// STARTED. A task is runnable when it is pending, unexpired, and every
// dependency succeeded. It returns nil when nothing is runnable.
func (s *Store) Claim(ctx context.Context, worker, routingKey string) (*task.EncodeTask, error) {
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}
	now := s.clock()
	var claimed *task.EncodeTask
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		claimed = nil
		var id, payload string
		err := tx.QueryRowContext(ctx,
			`SELECT t.id, t.payload FROM tasks t
             WHERE t.status = ? AND t.routing_key = ? AND t.expires_at > ?
               AND NOT EXISTS (
                 SELECT 1 FROM task_deps d JOIN tasks p ON p.id = d.depends_on
                 WHERE d.task_id = t.id AND p.status != ?)
             ORDER BY t.seq LIMIT 1`,
			task.StatusPending, routingKey, now.UnixMilli(), task.StatusSuccess,
		).Scan(&id, &payload)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select runnable task: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET status = ?, worker_name = ?, started_at = ? WHERE id = ? AND status = ?`,
			task.StatusStarted, worker, formatTime(now), id, task.StatusPending,
		)
		if err != nil {
			return fmt.Errorf("claim task %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		decoded, err := task.Unmarshal([]byte(payload))
		if err != nil {
			return fmt.Errorf("task %s: %w", id, err)
		}
		claimed = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkEncoding records that worker has started producing output for id.
func (s *Store) MarkEncoding(ctx context.Context, id, worker string) error {
	return s.transition(ctx, id, worker, task.StatusEncoding, "")
}

// Finish records a terminal status reported by worker.
func (s *Store) Finish(ctx context.Context, id, worker string, status task.Status, info string) error {
	if !status.Terminal() {
		return fmt.Errorf("finish task %s: status %s is not terminal", id, status)
	}
	if err := s.transition(ctx, id, worker, status, info); err != nil {
		return err
	}
	if status != task.StatusSuccess {
		return nil
	}
	return s.unblockDependents(ctx, id)
}

// unblockDependents restarts the expiry window of pending tasks whose last
// outstanding dependency was id.
func (s *Store) unblockDependents(ctx context.Context, id string) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE tasks
         SET expires_at = ? + (SELECT g.expiry_ms FROM task_groups g WHERE g.id = tasks.group_id)
         WHERE status = ?
           AND id IN (SELECT task_id FROM task_deps WHERE depends_on = ?)
           AND NOT EXISTS (
             SELECT 1 FROM task_deps d JOIN tasks p ON p.id = d.depends_on
             WHERE d.task_id = tasks.id AND p.status != ?)`,
		s.clock().UnixMilli(), task.StatusPending, id, task.StatusSuccess,
	); err != nil {
		return fmt.Errorf("unblock dependents of %s: %w", id, err)
	}
	return nil
}

func (s *Store) transition(ctx context.Context, id, worker string, status task.Status, info string) error {
	var finished any
	if status.Terminal() {
		finished = formatTime(s.clock())
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE tasks SET status = ?, info = COALESCE(?, info), finished_at = COALESCE(?, finished_at)
         WHERE id = ? AND worker_name = ? AND status IN (?, ?)`,
		status, nullableString(info), finished, id, worker, task.StatusStarted, task.StatusEncoding,
	)
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("task %s: %w", id, ErrTaskNotActive)
	}
	return nil
}

// Get fetches one task row.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrTaskNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return rec, nil
}

// GroupRecords returns every task of a group in submission order.
func (s *Store) GroupRecords(ctx context.Context, groupID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+taskColumns+` FROM tasks WHERE group_id = ? ORDER BY seq`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query group %s: %w", groupID, err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// sweep fails tasks that can no longer run: runnable but unclaimed past
// expiry, held by a worker that stopped heartbeating, or blocked behind a
// failed dependency. Tasks still waiting on dependencies never expire.
func (s *Store) sweep(ctx context.Context) error {
	now := s.clock()
	finished := formatTime(now)
	if _, err := s.execWithRetry(ctx,
		`UPDATE tasks SET status = ?, info = ?, finished_at = ?
         WHERE status = ? AND expires_at <= ?
           AND NOT EXISTS (
             SELECT 1 FROM task_deps d JOIN tasks p ON p.id = d.depends_on
             WHERE d.task_id = tasks.id AND p.status != ?)`,
		task.StatusFailure, InfoExpired, finished, task.StatusPending, now.UnixMilli(), task.StatusSuccess,
	); err != nil {
		return fmt.Errorf("expire tasks: %w", err)
	}
	if _, err := s.execWithRetry(ctx,
		`UPDATE tasks SET status = ?, info = ?, finished_at = ?
         WHERE status IN (?, ?)
           AND worker_name NOT IN (SELECT name FROM workers WHERE last_seen > ?)`,
		task.StatusFailure, InfoWorkerLost, finished, task.StatusStarted, task.StatusEncoding,
		now.Add(-s.staleAfter).UnixMilli(),
	); err != nil {
		return fmt.Errorf("fail orphaned tasks: %w", err)
	}
	for {
		res, err := s.execWithRetry(ctx,
			`UPDATE tasks SET status = ?, info = ?, finished_at = ?
             WHERE status = ? AND EXISTS (
               SELECT 1 FROM task_deps d JOIN tasks p ON p.id = d.depends_on
               WHERE d.task_id = tasks.id AND p.status = ?)`,
			task.StatusFailure, InfoDependencyFailed, finished, task.StatusPending, task.StatusFailure,
		)
		if err != nil {
			return fmt.Errorf("fail blocked tasks: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
	}
}

type groupHandle struct {
	store *Store
	id    string
}

func (g *groupHandle) ID() string { return g.id }

// Ready reports whether every task of the group is terminal.
func (g *groupHandle) Ready(ctx context.Context) (bool, error) {
	if err := g.store.sweep(ctx); err != nil {
		return false, err
	}
	var total, open int
	err := g.store.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1), COALESCE(SUM(CASE WHEN status IN (?, ?) THEN 0 ELSE 1 END), 0)
         FROM tasks WHERE group_id = ?`,
		task.StatusSuccess, task.StatusFailure, g.id,
	).Scan(&total, &open)
	if err != nil {
		return false, fmt.Errorf("group %s readiness: %w", g.id, err)
	}
	if total == 0 {
		return false, fmt.Errorf("group %s: %w", g.id, ErrTaskNotFound)
	}
	return open == 0, nil
}

// Results returns one result per task in submission order.
func (g *groupHandle) Results(ctx context.Context) ([]task.Result, error) {
	records, err := g.store.GroupRecords(ctx, g.id)
	if err != nil {
		return nil, err
	}
	results := make([]task.Result, len(records))
	for i, rec := range records {
		results[i] = rec.Result()
	}
	return results, nil
}
