package api

import (
	"context"

	"github.com/starford/onyx/internal/sse"
	"github.com/starford/onyx/internal/syncer"
)

// SSE event types published for UIs.
const (
	EventStateUpdated = "state.updated"
	EventSyncStatus   = "sync.status"
)

// Publisher is the subset of sse.Broker the bridge needs.
type Publisher interface {
	Publish(event sse.Event)
}

// Bridge forwards every orchestrator change to pub until the returned
// func is called.
func Bridge(ctx context.Context, orch *syncer.Orchestrator, pub Publisher) (func(), error) {
	return orch.Watch(ctx, func(c syncer.Change) {
		if c.State != nil {
			pub.Publish(sse.Event{Type: EventStateUpdated, Data: c})
			return
		}
		pub.Publish(sse.Event{Type: EventSyncStatus, Data: c.Status})
	})
}
