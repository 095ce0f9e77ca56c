package hub

import (
	"log/slog"
	"sync"

	"github.com/atikulmunna/loglens/internal/model"
)

const subscriberBuffer = 256

// Hub broadcasts pipeline progress events to every subscriber.
// Publishing never blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan model.Progress]struct{}
	latest      map[string]model.Progress
	dropped     int64
	closed      bool
	logger      *slog.Logger
}

// New creates an empty Hub.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[chan model.Progress]struct{}),
		latest:      make(map[string]model.Progress),
		logger:      logger,
	}
}

// Subscribe returns a buffered channel receiving every published event and a
// function that unsubscribes and closes it.
func (h *Hub) Subscribe() (<-chan model.Progress, func()) {
	ch := make(chan model.Progress, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		close(ch)
	} else {
		h.subscribers[ch] = struct{}{}
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subscribers[ch]; ok {
				delete(h.subscribers, ch)
				close(ch)
			}
		})
	}
}

// Publish sends ev to all subscribers and remembers it as the latest event
// for its source. It matches the pipeline observer signature.
func (h *Hub) Publish(ev model.Progress) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.latest[ev.Source] = ev

	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			h.dropped++
			h.logger.Debug("hub: dropped event for slow consumer", "dropped", h.dropped)
		}
	}
}

// Latest returns the most recent event of every source.
func (h *Hub) Latest() []model.Progress {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]model.Progress, 0, len(h.latest))
	for _, ev := range h.latest {
		out = append(out, ev)
	}
	return out
}

// Dropped returns the total number of events dropped due to slow consumers.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Close closes all subscriber channels; later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = nil
}
