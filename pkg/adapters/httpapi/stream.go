package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/espalier/pkg/domain"
)

// StreamManager fans lifecycle events out to active SSE connections,
// keyed by run ID.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{}
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
	}
}

// Subscribe registers a listener for one run. The returned cancel
// removes the subscription and closes the channel.
func (sm *StreamManager) Subscribe(runID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[runID]; !ok {
		sm.subscribers[runID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[runID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[runID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, runID)
			}
		}
	}
}

// Broadcast delivers a message to every subscriber of the run. Slow
// clients with a full buffer drop the message rather than block.
func (sm *StreamManager) Broadcast(runID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if subs, ok := sm.subscribers[runID]; ok {
		for ch := range subs {
			select {
			case ch <- msg:
			default:
				slog.Warn("SSE: Client buffer full, dropping message", "run_id", runID)
			}
		}
	}
}

// Hooks returns lifecycle hooks that broadcast turn and fork events as
// JSON. Wire them into the simulator at construction:
//
//	streams := httpapi.NewStreamManager()
//	sim, _ := espalier.New(path, espalier.WithLifecycleHooks(streams.Hooks()))
//	handler := httpapi.NewHandler(sim, httpapi.WithStreamManager(streams))
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnAppended: func(ctx context.Context, ev *domain.TurnEvent) {
			if bytes, err := json.Marshal(ev); err == nil {
				sm.Broadcast(ev.RunID, string(bytes))
			}
		},
		OnBranchForked: func(ctx context.Context, ev *domain.ForkEvent) {
			if bytes, err := json.Marshal(ev); err == nil {
				sm.Broadcast(ev.RunID, string(bytes))
			}
		},
	}
}
