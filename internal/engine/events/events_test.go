package events

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidal-downloader/tidal/internal/engine/types"
)

// =============================================================================
// Bus Tests
// =============================================================================

func TestBus_RegistrationOrder(t *testing.T) {
	bus := NewBus()
	var order []string

	for _, name := range []string{"first", "second", "third"} {
		bus.Subscribe(ListenerFuncs{Updated: func(types.Task) { order = append(order, name) }})
	}

	bus.Publish(NewEvent(TaskUpdated, types.Task{ID: "x"}))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestBus_DispatchesByType(t *testing.T) {
	bus := NewBus()
	var added, updated, removed []string
	bus.Subscribe(ListenerFuncs{
		Added:   func(t types.Task) { added = append(added, t.ID) },
		Updated: func(t types.Task) { updated = append(updated, t.ID) },
		Removed: func(t types.Task) { removed = append(removed, t.ID) },
	})

	bus.Publish(NewEvent(TaskAdded, types.Task{ID: "a"}))
	bus.Publish(NewEvent(TaskUpdated, types.Task{ID: "b"}))
	bus.Publish(NewEvent(TaskRemoved, types.Task{ID: "c"}))

	assert.Equal(t, []string{"a"}, added)
	assert.Equal(t, []string{"b"}, updated)
	assert.Equal(t, []string{"c"}, removed)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	count := 0
	id := bus.Subscribe(ListenerFuncs{Added: func(types.Task) { count++ }})
	bus.Subscribe(ListenerFuncs{})

	bus.Publish(NewEvent(TaskAdded, types.Task{}))
	require.True(t, bus.Unsubscribe(id))
	assert.False(t, bus.Unsubscribe(id), "second unsubscribe is a no-op")
	bus.Publish(NewEvent(TaskAdded, types.Task{}))

	assert.Equal(t, 1, count)
	assert.Equal(t, 1, bus.Len())
}

func TestBus_SameListenerTwice(t *testing.T) {
	bus := NewBus()
	count := 0
	l := ListenerFuncs{Updated: func(types.Task) { count++ }}
	a := bus.Subscribe(l)
	bus.Subscribe(l)

	bus.Publish(NewEvent(TaskUpdated, types.Task{}))
	assert.Equal(t, 2, count)

	bus.Unsubscribe(a)
	bus.Publish(NewEvent(TaskUpdated, types.Task{}))
	assert.Equal(t, 3, count)
}

func TestBus_UnsubscribeFromCallback(t *testing.T) {
	bus := NewBus()
	var id SubscriptionID
	calls := 0
	id = bus.Subscribe(ListenerFuncs{Updated: func(types.Task) {
		calls++
		bus.Unsubscribe(id)
	}})

	bus.Publish(NewEvent(TaskUpdated, types.Task{}))
	bus.Publish(NewEvent(TaskUpdated, types.Task{}))
	assert.Equal(t, 1, calls)
}

func TestBus_ConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	received := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id := bus.Subscribe(ListenerFuncs{Updated: func(types.Task) {
				mu.Lock()
				received++
				mu.Unlock()
			}})
			bus.Unsubscribe(id)
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(NewEvent(TaskUpdated, types.Task{}))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, bus.Len())
}

// =============================================================================
// Event Tests
// =============================================================================

func TestEvent_JSON(t *testing.T) {
	task := types.NewTask("http://example.com/f.zip", "f.zip", "/tmp")
	task.Status = types.StatusDownloading

	data, err := json.Marshal(NewEvent(TaskUpdated, *task))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"task_updated"`)
	assert.Contains(t, string(data), `"status":"downloading"`)

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, TaskUpdated, back.Type)
	assert.Equal(t, task.ID, back.Task.ID)
	assert.Equal(t, types.StatusDownloading, back.Task.Status)
}

func TestEventFunc_ForwardsAll(t *testing.T) {
	var got []EventType
	l := EventFunc(func(e Event) { got = append(got, e.Type) })

	l.OnTaskAdded(types.Task{})
	l.OnTaskUpdated(types.Task{})
	l.OnTaskRemoved(types.Task{})

	assert.Equal(t, []EventType{TaskAdded, TaskUpdated, TaskRemoved}, got)
}

func TestDispatch_UnknownType(t *testing.T) {
	assert.Error(t, Dispatch(ListenerFuncs{}, Event{Type: "bogus"}))
}
