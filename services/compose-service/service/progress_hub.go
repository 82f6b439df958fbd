package service

import (
	"sync"

	"github.com/RigelNana/backdrop/services/compose-service/models"
)

const subscriberBuffer = 64

// ProgressEvent is one pair transition, or the final event of a run.
type ProgressEvent struct {
	RunID     string                  `json:"run_id"`
	Index     int                     `json:"index"`
	Result    models.GenerationResult `json:"result"`
	Final     bool                    `json:"final,omitempty"`
	RunStatus string                  `json:"run_status,omitempty"`
}

// ProgressHub fans progress events out to per-run subscribers.
type ProgressHub struct {
	mu   sync.Mutex
	subs map[string]map[chan ProgressEvent]struct{}
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[string]map[chan ProgressEvent]struct{})}
}

// Subscribe returns a channel of events for runID and a function that
// releases it. The channel is closed after the final event.
func (h *ProgressHub) Subscribe(runID string) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, subscriberBuffer)

	h.mu.Lock()
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[chan ProgressEvent]struct{})
	}
	h.subs[runID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[runID]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(h.subs, runID)
				}
			}
		})
	}
}

// Publish delivers ev without blocking; slow subscribers miss events and
// are expected to re-read the run snapshot.
func (h *ProgressHub) Publish(ev ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.RunID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Finish sends the final event and closes every subscriber of runID.
func (h *ProgressHub) Finish(runID, status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[runID] {
		select {
		case ch <- ProgressEvent{RunID: runID, Index: -1, Final: true, RunStatus: status}:
		default:
		}
		close(ch)
	}
	delete(h.subs, runID)
}

// Subscribers returns the number of listeners on runID.
func (h *ProgressHub) Subscribers(runID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[runID])
}
