package store

import (
	"context"
	"time"
)

// EventType identifies what a SaveAsync call reported.
type EventType string

const (
	// EventSave is published when a fire-and-forget save completes. Saved is
	// false for an empty snapshot.
	EventSave EventType = "save"

	// EventError is published when a fire-and-forget save fails.
	EventError EventType = "error"
)

// Event is the outcome of a SaveAsync call.
type Event struct {
	Type       EventType
	Timestamp  time.Time
	Collection string
	Snapshot   *Snapshot
	Saved      bool
	Err        error
}

// Listener receives events published by a MilestoneStore.
type Listener interface {
	OnMilestoneEvent(ctx context.Context, event Event)
}

// ListenerFunc is a function adapter for Listener
type ListenerFunc func(ctx context.Context, event Event)

// OnMilestoneEvent implements the Listener interface
func (f ListenerFunc) OnMilestoneEvent(ctx context.Context, event Event) {
	f(ctx, event)
}
