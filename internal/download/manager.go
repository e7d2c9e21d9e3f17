// Package download owns the task registry and schedules downloads under a
// system-wide concurrency cap.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidal-downloader/tidal/internal/engine"
	"github.com/tidal-downloader/tidal/internal/engine/events"
	"github.com/tidal-downloader/tidal/internal/engine/types"
	"github.com/tidal-downloader/tidal/internal/utils"
)

// DefaultMaxConcurrent is the cap used when Options leaves it unset.
const DefaultMaxConcurrent = 3

var (
	// ErrInvalidArgument is wrapped by every validation failure.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned for ids that are not in the registry.
	ErrNotFound = errors.New("task not found")
)

// Runner is one transfer attempt for a task.
type Runner interface {
	Run(ctx context.Context)
	Pause()
	Cancel()
}

// RunnerFactory builds the Runner for an admitted task.
type RunnerFactory func(task types.Task, cb engine.Callback, runtime *types.RuntimeConfig) Runner

// NewRangeRunner is the default RunnerFactory.
func NewRangeRunner(task types.Task, cb engine.Callback, runtime *types.RuntimeConfig) Runner {
	return engine.NewRangeDownloader(task, cb, runtime)
}

// Options configures a Manager.
type Options struct {
	MaxConcurrent int
	Runtime       *types.RuntimeConfig
	// NewRunner defaults to NewRangeRunner.
	NewRunner RunnerFactory
}

// handle is the live transfer of one task. Callbacks are honoured only while
// their handle is the one registered for the task.
type handle struct {
	id     string
	runner Runner
}

// batch collects what a locked mutation wants done once the lock is released.
type batch struct {
	events []events.Event
	start  []*handle
}

func (b *batch) emit(typ events.EventType, t *types.Task) {
	b.events = append(b.events, events.NewEvent(typ, t.Clone()))
}

// Manager schedules tasks. All methods are safe for concurrent use.
type Manager struct {
	// notifyMu keeps a mutation and the delivery of its events together, so
	// listeners see snapshots in the order they were produced.
	notifyMu sync.Mutex

	mu            sync.Mutex
	tasks         map[string]*types.Task
	handles       map[string]*handle
	active        int
	maxConcurrent int
	runtime       *types.RuntimeConfig
	closed        bool

	newRunner RunnerFactory
	bus       *events.Bus
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates an idle manager.
func New(opts Options) *Manager {
	if opts.MaxConcurrent == 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.NewRunner == nil {
		opts.NewRunner = NewRangeRunner
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		tasks:         make(map[string]*types.Task),
		handles:       make(map[string]*handle),
		maxConcurrent: max(1, opts.MaxConcurrent),
		runtime:       opts.Runtime,
		newRunner:     opts.NewRunner,
		bus:           events.NewBus(),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// apply runs fn under the registry lock, then publishes its events and
// launches the runners it admitted.
func (m *Manager) apply(fn func(b *batch) error) error {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	var b batch
	m.mu.Lock()
	err := fn(&b)
	m.mu.Unlock()

	for _, h := range b.start {
		go func(h *handle) {
			defer m.wg.Done()
			h.runner.Run(m.ctx)
		}(h)
	}
	for _, e := range b.events {
		m.bus.Publish(e)
	}
	return err
}

// AddListener subscribes l to task lifecycle events. Callbacks run while
// the manager holds its notification lock; a listener that needs to mutate
// the manager must do so from another goroutine.
func (m *Manager) AddListener(l events.Listener) events.SubscriptionID {
	return m.bus.Subscribe(l)
}

// RemoveListener unsubscribes a listener.
func (m *Manager) RemoveListener(id events.SubscriptionID) {
	m.bus.Unsubscribe(id)
}

// AddDownload registers a task and tries to start it right away.
func (m *Manager) AddDownload(url, fileName, savePath string) (string, error) {
	return m.AddDownloadWithSegments(url, fileName, savePath, types.DefaultSegments)
}

// AddDownloadWithSegments is AddDownload with an explicit segment count.
func (m *Manager) AddDownloadWithSegments(url, fileName, savePath string, segments int) (string, error) {
	switch {
	case strings.TrimSpace(url) == "":
		return "", fmt.Errorf("%w: url must not be empty", ErrInvalidArgument)
	case strings.TrimSpace(fileName) == "":
		return "", fmt.Errorf("%w: file name must not be empty", ErrInvalidArgument)
	case strings.TrimSpace(savePath) == "":
		return "", fmt.Errorf("%w: save path must not be empty", ErrInvalidArgument)
	case segments < types.MinSegments || segments > types.MaxSegments:
		return "", fmt.Errorf("%w: segment count %d out of range [%d, %d]",
			ErrInvalidArgument, segments, types.MinSegments, types.MaxSegments)
	}

	if err := os.MkdirAll(savePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create save directory: %w", err)
	}

	var id string
	err := m.apply(func(b *batch) error {
		target := uniqueFilePath(filepath.Join(savePath, fileName), m.pathTakenLocked)

		task := types.NewTask(url, filepath.Base(target), savePath)
		task.Segments = segments
		m.tasks[task.ID] = task
		id = task.ID

		utils.Debug("Added task %s: %s -> %s", task.ID, url, task.FullPath())
		b.emit(events.TaskAdded, task)
		m.startLocked(task, b)
		return nil
	})
	return id, err
}

func (m *Manager) pathTakenLocked(path string) bool {
	for _, t := range m.tasks {
		if t.FullPath() == path {
			return true
		}
	}
	return false
}

// StartDownload admits a task, or queues it as WAITING when the cap is
// reached. Unknown ids and tasks already downloading are left alone.
func (m *Manager) StartDownload(id string) error {
	return m.apply(func(b *batch) error {
		task, ok := m.tasks[id]
		if !ok {
			utils.Debug("Start: task %s not found", id)
			return ErrNotFound
		}
		m.startLocked(task, b)
		return nil
	})
}

func (m *Manager) startLocked(task *types.Task, b *batch) {
	if task.Status == types.StatusDownloading || m.closed {
		return
	}

	if m.active >= m.maxConcurrent {
		if task.Status.CanTransitionTo(types.StatusWaiting) {
			task.Status = types.StatusWaiting
			task.ErrorMessage = ""
			task.Speed = 0
			b.emit(events.TaskUpdated, task)
			utils.Debug("Task %s waiting: %d of %d slots busy", task.ID, m.active, m.maxConcurrent)
		}
		return
	}

	if !task.Status.CanTransitionTo(types.StatusDownloading) {
		return
	}
	m.active++
	task.Status = types.StatusDownloading
	task.StartedAt = time.Now()
	task.CompletedAt = time.Time{}
	task.ErrorMessage = ""
	task.Speed = 0

	h := &handle{id: task.ID}
	h.runner = m.newRunner(task.Clone(), &taskCallback{m: m, h: h}, m.runtime)
	m.handles[task.ID] = h
	m.wg.Add(1)
	b.start = append(b.start, h)
	b.emit(events.TaskUpdated, task)

	utils.Debug("Started task %s (%d/%d active)", task.ID, m.active, m.maxConcurrent)
}

// admitNextLocked fills free slots with the earliest-created WAITING tasks.
func (m *Manager) admitNextLocked(b *batch) {
	for !m.closed && m.active < m.maxConcurrent {
		var next *types.Task
		for _, t := range m.tasks {
			if t.Status != types.StatusWaiting {
				continue
			}
			if next == nil || earlier(t, next) {
				next = t
			}
		}
		if next == nil {
			return
		}
		m.startLocked(next, b)
	}
}

func earlier(a, b *types.Task) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// release forgets the live handle of id and frees its slot.
func (m *Manager) releaseLocked(id string) (*handle, bool) {
	h, ok := m.handles[id]
	if !ok {
		return nil, false
	}
	delete(m.handles, id)
	m.active--
	return h, true
}

// PauseDownload stops a running transfer and keeps its temp file. Tasks
// without a live transfer are unchanged.
func (m *Manager) PauseDownload(id string) error {
	return m.apply(func(b *batch) error {
		if _, ok := m.tasks[id]; !ok {
			return ErrNotFound
		}
		if m.pauseLocked(id, b) {
			m.admitNextLocked(b)
		}
		return nil
	})
}

func (m *Manager) pauseLocked(id string, b *batch) bool {
	h, ok := m.releaseLocked(id)
	if !ok {
		return false
	}
	h.runner.Pause()

	task := m.tasks[id]
	task.Status = types.StatusPaused
	task.Speed = 0
	b.emit(events.TaskUpdated, task)
	utils.Debug("Paused task %s", id)
	return true
}

// CancelDownload stops a task for good and deletes its temp file. Completed
// tasks are left alone.
func (m *Manager) CancelDownload(id string) error {
	return m.apply(func(b *batch) error {
		if _, ok := m.tasks[id]; !ok {
			return ErrNotFound
		}
		if m.cancelLocked(id, b) {
			m.admitNextLocked(b)
		}
		return nil
	})
}

// cancelLocked reports whether a slot was freed.
func (m *Manager) cancelLocked(id string, b *batch) bool {
	task := m.tasks[id]
	if !task.Status.CanTransitionTo(types.StatusCancelled) {
		return false
	}

	h, wasActive := m.releaseLocked(id)
	if wasActive {
		// The runner removes the temp file once its workers are gone
		h.runner.Cancel()
	} else if err := os.Remove(task.TempPath()); err != nil && !os.IsNotExist(err) {
		utils.Debug("Could not remove %s: %v", task.TempPath(), err)
	}

	task.Status = types.StatusCancelled
	task.Speed = 0
	task.ErrorMessage = ""
	b.emit(events.TaskUpdated, task)
	utils.Debug("Cancelled task %s", id)
	return wasActive
}

// RemoveTask pauses a task and drops it from the registry. Its temp file
// stays on disk.
func (m *Manager) RemoveTask(id string) error {
	return m.apply(func(b *batch) error {
		task, ok := m.tasks[id]
		if !ok {
			return ErrNotFound
		}
		freed := m.pauseLocked(id, b)
		delete(m.tasks, id)
		b.emit(events.TaskRemoved, task)
		utils.Debug("Removed task %s", id)
		if freed {
			m.admitNextLocked(b)
		}
		return nil
	})
}

// DiscardTask cancels a task, deleting its temp file, and drops it from the
// registry.
func (m *Manager) DiscardTask(id string) error {
	return m.apply(func(b *batch) error {
		task, ok := m.tasks[id]
		if !ok {
			return ErrNotFound
		}
		freed := m.cancelLocked(id, b)
		delete(m.tasks, id)
		b.emit(events.TaskRemoved, task)
		utils.Debug("Discarded task %s", id)
		if freed {
			m.admitNextLocked(b)
		}
		return nil
	})
}

// SetMaxConcurrentDownloads changes the cap, clamped to at least one. Raising
// it admits waiting tasks; lowering it never interrupts running ones.
func (m *Manager) SetMaxConcurrentDownloads(n int) {
	_ = m.apply(func(b *batch) error {
		m.maxConcurrent = max(1, n)
		m.admitNextLocked(b)
		return nil
	})
}

// MaxConcurrentDownloads returns the current cap.
func (m *Manager) MaxConcurrentDownloads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxConcurrent
}

// ActiveCount returns the number of tasks holding a slot.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// GetTask returns a snapshot of one task.
func (m *Manager) GetTask(id string) (types.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return types.Task{}, false
	}
	return t.Clone(), true
}

// GetAllTasks returns snapshots ordered by creation time, then id.
func (m *Manager) GetAllTasks() []types.Task {
	m.mu.Lock()
	out := make([]types.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Clone())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return earlier(&out[i], &out[j])
	})
	return out
}

// Shutdown stops admissions, pauses every running transfer and waits for the
// runners to exit or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	_ = m.apply(func(b *batch) error {
		m.closed = true
		for id := range m.handles {
			m.pauseLocked(id, b)
		}
		return nil
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		utils.Debug("Manager shut down cleanly")
		return nil
	case <-ctx.Done():
		m.cancel()
		return fmt.Errorf("shutdown interrupted: %w", ctx.Err())
	}
}

// taskCallback turns downloader reports into task state changes.
type taskCallback struct {
	m *Manager
	h *handle
}

func (c *taskCallback) current() (*types.Task, bool) {
	if c.m.handles[c.h.id] != c.h {
		return nil, false
	}
	task, ok := c.m.tasks[c.h.id]
	return task, ok
}

func (c *taskCallback) OnProgress(_ types.Task, downloaded, total, speed int64) {
	_ = c.m.apply(func(b *batch) error {
		task, ok := c.current()
		if !ok {
			return nil
		}
		task.ApplyProgress(downloaded, total, speed)
		b.emit(events.TaskUpdated, task)
		return nil
	})
}

func (c *taskCallback) OnCompleted(snapshot types.Task) {
	_ = c.m.apply(func(b *batch) error {
		task, ok := c.current()
		if !ok {
			return nil
		}
		c.m.releaseLocked(task.ID)
		task.ApplyProgress(snapshot.Downloaded, snapshot.TotalSize, 0)
		task.Status = types.StatusCompleted
		task.CompletedAt = time.Now()
		b.emit(events.TaskUpdated, task)
		utils.Debug("Task %s completed", task.ID)

		c.m.admitNextLocked(b)
		return nil
	})
}

func (c *taskCallback) OnError(snapshot types.Task, message string) {
	_ = c.m.apply(func(b *batch) error {
		task, ok := c.current()
		if !ok {
			return nil
		}
		c.m.releaseLocked(task.ID)
		task.ApplyProgress(snapshot.Downloaded, snapshot.TotalSize, 0)
		task.Status = types.StatusError
		task.ErrorMessage = message
		b.emit(events.TaskUpdated, task)
		utils.Debug("Task %s failed: %s", task.ID, message)

		c.m.admitNextLocked(b)
		return nil
	})
}
