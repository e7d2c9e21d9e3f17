package history

import (
	"context"
	"time"

	"github.com/tidal-downloader/tidal/internal/engine/types"
	"github.com/tidal-downloader/tidal/internal/utils"
)

const recordTimeout = 5 * time.Second

// Recorder writes a ledger entry whenever a task reaches COMPLETED, ERROR or
// CANCELLED. It implements events.Listener.
type Recorder struct {
	store *Store
}

// NewRecorder returns a listener that records into store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) OnTaskAdded(types.Task) {}

func (r *Recorder) OnTaskRemoved(types.Task) {}

func (r *Recorder) OnTaskUpdated(task types.Task) {
	if !task.Status.IsTerminal() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.store.Record(ctx, EntryFromTask(task)); err != nil {
		utils.Debug("History: could not record %s: %v", task.ID, err)
	}
}

// EntryFromTask builds the ledger row for a finished task. The file content
// is sniffed only for completed downloads.
func EntryFromTask(task types.Task) types.HistoryEntry {
	e := types.HistoryEntry{
		ID:          task.ID,
		URL:         task.URL,
		Filename:    task.FileName,
		DestPath:    task.FullPath(),
		Status:      task.Status.String(),
		Error:       task.ErrorMessage,
		TotalSize:   task.TotalSize,
		Downloaded:  task.Downloaded,
		CreatedAt:   task.CreatedAt,
		CompletedAt: task.CompletedAt,
	}
	if e.CompletedAt.IsZero() {
		e.CompletedAt = time.Now()
	}
	if !task.StartedAt.IsZero() {
		e.TimeTaken = e.CompletedAt.Sub(task.StartedAt)
	}
	if task.Status == types.StatusCompleted {
		e.Kind, e.MIME = utils.DetectKind(task.FullPath())
	}
	return e
}
