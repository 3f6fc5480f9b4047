package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"proxyfarm/internal/version"
)

// Heartbeat registers or refreshes a worker on the roster.
func (s *Store) Heartbeat(ctx context.Context, info version.WorkerInfo) error {
	name := strings.TrimSpace(info.Name)
	if name == "" {
		return fmt.Errorf("heartbeat: worker name is required")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO workers (name, host, routing_key, last_seen) VALUES (?, ?, ?, ?)
         ON CONFLICT(name) DO UPDATE SET host = excluded.host, routing_key = excluded.routing_key, last_seen = excluded.last_seen`,
		name, nullableString(info.Host), info.RoutingKey, s.clock().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("heartbeat %s: %w", name, err)
	}
	return nil
}

// Unregister removes a worker from the roster on clean shutdown.
func (s *Store) Unregister(ctx context.Context, name string) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM workers WHERE name = ?`, name); err != nil {
		return fmt.Errorf("unregister %s: %w", name, err)
	}
	return nil
}

// Roster lists workers that heartbeated within the stale window, by name.
func (s *Store) Roster(ctx context.Context) ([]version.WorkerInfo, error) {
	cutoff := s.clock().Add(-s.staleAfter).UnixMilli()
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT name, COALESCE(host, ''), routing_key, last_seen FROM workers WHERE last_seen > ? ORDER BY name`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()

	var roster []version.WorkerInfo
	for rows.Next() {
		var (
			info     version.WorkerInfo
			lastSeen int64
		)
		if err := rows.Scan(&info.Name, &info.Host, &info.RoutingKey, &lastSeen); err != nil {
			return nil, err
		}
		info.LastSeen = time.UnixMilli(lastSeen).UTC()
		roster = append(roster, info)
	}
	return roster, rows.Err()
}
