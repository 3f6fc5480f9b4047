package queue

import (
	"context"
	"fmt"
	"path"
	"sync"
	"sync/atomic"
)

// Handler receives one published message.
type Handler = func(channel string, payload []byte)

type message struct {
	channel string
	payload []byte
}

type subscriber struct {
	pattern string
	ch      chan message
	done    chan struct{}
	once    sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// Hub is an in-process publish/subscribe fan-out. Channel patterns use
// path.Match syntax. Each subscriber has a bounded buffer; messages that do
// not fit are dropped, so delivery is at most once.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	nextID  uint64
	buffer  int
	closed  bool
	dropped atomic.Uint64
}

// NewHub creates a hub whose subscribers buffer up to buffer messages.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Hub{subs: make(map[uint64]*subscriber), buffer: buffer}
}

// Subscribe invokes handler on its own goroutine for every message whose
// channel matches pattern, until cancel is called or ctx is done.
func (h *Hub) Subscribe(ctx context.Context, pattern string, handler Handler) (func(), error) {
	if handler == nil {
		return nil, fmt.Errorf("subscribe %q: nil handler", pattern)
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("subscribe %q: %w", pattern, err)
	}
	ctx = ensureContext(ctx)

	sub := &subscriber{
		pattern: pattern,
		ch:      make(chan message, h.buffer),
		done:    make(chan struct{}),
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		sub.stop()
	}

	go func() {
		for {
			select {
			case msg := <-sub.ch:
				handler(msg.channel, msg.payload)
			case <-sub.done:
				return
			case <-ctx.Done():
				cancel()
				return
			}
		}
	}()
	return cancel, nil
}

// Publish delivers payload to every matching subscriber without blocking.
func (h *Hub) Publish(_ context.Context, channel string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	for _, sub := range h.subs {
		if ok, _ := path.Match(sub.pattern, channel); !ok {
			continue
		}
		select {
		case sub.ch <- message{channel: channel, payload: payload}:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Dropped returns how many deliveries were discarded because a subscriber
// buffer was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close stops every subscription. Further publishes fail with ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		sub.stop()
		delete(h.subs, id)
	}
}
