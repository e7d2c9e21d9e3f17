// Package core exposes the download engine behind one interface, backed
// either by an in-process manager or by a running daemon's HTTP API.
package core

import (
	"context"

	"github.com/tidal-downloader/tidal/internal/engine/events"
	"github.com/tidal-downloader/tidal/internal/engine/types"
)

// DownloadService defines the interface for interacting with the download engine.
// This abstraction allows the TUI and the CLI to switch between a local embedded
// backend and a remote daemon connection.
type DownloadService interface {
	// List returns the status of every task, oldest first.
	List() ([]types.DownloadStatus, error)

	// History returns finished, failed and cancelled downloads, newest first.
	History() ([]types.HistoryEntry, error)

	// Add queues a new download. Empty path and filename are resolved from
	// the settings and the server respectively; segments 0 uses the default.
	Add(url string, path string, filename string, segments int) (string, error)

	// Pause pauses an active download.
	Pause(id string) error

	// Resume restarts a paused, failed or cancelled download.
	Resume(id string) error

	// Delete removes a download. With discard its temp file is deleted too.
	Delete(id string, discard bool) error

	// GetStatus returns a status for a single download by id.
	GetStatus(id string) (*types.DownloadStatus, error)

	// StreamEvents returns a channel of task events and a function that
	// stops the stream.
	StreamEvents(ctx context.Context) (<-chan events.Event, func(), error)

	// Shutdown handles graceful shutdown of the service
	Shutdown() error
}
