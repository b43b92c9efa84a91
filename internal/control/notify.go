package control

import (
	"sync"
	"time"
)

// UpdateKind distinguishes the write path that produced an Update.
type UpdateKind string

const (
	UpdateOperator  UpdateKind = "operator"
	UpdateHeartbeat UpdateKind = "heartbeat"
	UpdateFault     UpdateKind = "fault"
	UpdateScheduler UpdateKind = "scheduler"
)

// Update is pushed to subscribers after every committed write. It
// carries the post-update record so consumers need no follow-up read.
type Update struct {
	Kind   UpdateKind  `json:"kind"`
	Record SetupRecord `json:"record"`
	At     time.Time   `json:"at"`
}

// Hub fans committed updates out to subscribers. Slow subscribers drop
// updates rather than block the write path; monitoring is best-effort.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Update
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Update)}
}

// Subscribe registers a new subscriber. The returned cancel function
// must be called to release the subscription; the channel is closed by
// cancel, never by the hub's publishers.
func (h *Hub) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Update, buffer)
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *Hub) publish(u Update) {
	h.mu.Lock()
	for _, ch := range h.subs {
		select {
		case ch <- u:
		default:
			// subscriber lagging; drop
		}
	}
	h.mu.Unlock()
}
