// Package events fans task lifecycle notifications out to subscribers.
package events

import (
	"fmt"
	"time"

	"github.com/tidal-downloader/tidal/internal/engine/types"
)

// EventType names a task lifecycle notification.
type EventType string

const (
	TaskAdded   EventType = "task_added"
	TaskUpdated EventType = "task_updated"
	TaskRemoved EventType = "task_removed"
)

// Event is the wire form of a notification, used by the stream hub and the
// remote client.
type Event struct {
	Type      EventType  `json:"type"`
	Task      types.Task `json:"task"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewEvent stamps a notification for task.
func NewEvent(typ EventType, task types.Task) Event {
	return Event{Type: typ, Task: task, Timestamp: time.Now()}
}

// Listener receives task snapshots after the mutation that produced them is
// visible through the manager.
type Listener interface {
	OnTaskAdded(task types.Task)
	OnTaskUpdated(task types.Task)
	OnTaskRemoved(task types.Task)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Added   func(types.Task)
	Updated func(types.Task)
	Removed func(types.Task)
}

func (f ListenerFuncs) OnTaskAdded(task types.Task) {
	if f.Added != nil {
		f.Added(task)
	}
}

func (f ListenerFuncs) OnTaskUpdated(task types.Task) {
	if f.Updated != nil {
		f.Updated(task)
	}
}

func (f ListenerFuncs) OnTaskRemoved(task types.Task) {
	if f.Removed != nil {
		f.Removed(task)
	}
}

// EventFunc returns a Listener that forwards every notification as an Event.
func EventFunc(fn func(Event)) Listener {
	return ListenerFuncs{
		Added:   func(t types.Task) { fn(NewEvent(TaskAdded, t)) },
		Updated: func(t types.Task) { fn(NewEvent(TaskUpdated, t)) },
		Removed: func(t types.Task) { fn(NewEvent(TaskRemoved, t)) },
	}
}

// Dispatch delivers e to l using the callback matching its type.
func Dispatch(l Listener, e Event) error {
	switch e.Type {
	case TaskAdded:
		l.OnTaskAdded(e.Task)
	case TaskUpdated:
		l.OnTaskUpdated(e.Task)
	case TaskRemoved:
		l.OnTaskRemoved(e.Task)
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}
