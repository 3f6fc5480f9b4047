package queue

import (
	"context"
	"fmt"
	"time"
)

const eventBatchSize = 500

// Publish appends an event to the shared events table. Subscribers in any
// process sharing the database receive it on their next poll.
func (s *Store) Publish(ctx context.Context, channel string, payload []byte) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO events (channel, payload, created_at) VALUES (?, ?, ?)`,
		channel, payload, s.clock().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe delivers events published after the call whose channel matches
// pattern. Delivery is best effort.
func (s *Store) Subscribe(ctx context.Context, pattern string, handler Handler) (func(), error) {
	if err := s.startPoller(); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx, pattern, handler)
}

func (s *Store) startPoller() error {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	if s.pollCancel != nil {
		return nil
	}
	var cursor int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(id), 0) FROM events`).Scan(&cursor); err != nil {
		return fmt.Errorf("read event cursor: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.pollCancel = cancel
	s.pollDone = done
	go s.pollEvents(ctx, cursor, done)
	return nil
}

func (s *Store) stopPoller() {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	if s.pollCancel == nil {
		return
	}
	s.pollCancel()
	<-s.pollDone
	s.pollCancel = nil
	s.pollDone = nil
}

func (s *Store) pollEvents(ctx context.Context, cursor int64, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for {
			next, n, err := s.drainEvents(ctx, cursor)
			cursor = next
			if err != nil || n < eventBatchSize {
				break
			}
		}
	}
}

// drainEvents forwards one batch of events after cursor to the hub and
// returns the new cursor. Errors leave the cursor where delivery stopped.
func (s *Store) drainEvents(ctx context.Context, cursor int64) (int64, int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel, payload FROM events WHERE id > ? ORDER BY id LIMIT ?`,
		cursor, eventBatchSize,
	)
	if err != nil {
		return cursor, 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			id      int64
			channel string
			payload []byte
		)
		if err := rows.Scan(&id, &channel, &payload); err != nil {
			return cursor, n, err
		}
		_ = s.hub.Publish(ctx, channel, payload)
		cursor = id
		n++
	}
	return cursor, n, rows.Err()
}
