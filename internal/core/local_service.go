package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/tidal-downloader/tidal/internal/config"
	"github.com/tidal-downloader/tidal/internal/download"
	"github.com/tidal-downloader/tidal/internal/engine"
	"github.com/tidal-downloader/tidal/internal/engine/events"
	"github.com/tidal-downloader/tidal/internal/engine/types"
	"github.com/tidal-downloader/tidal/internal/history"
	"github.com/tidal-downloader/tidal/internal/utils"
)

const streamBufferSize = 100

// LocalDownloadService implements DownloadService on an in-process manager.
type LocalDownloadService struct {
	Manager *download.Manager

	mu       sync.RWMutex
	settings *config.Settings
	runtime  *types.RuntimeConfig
	client   *http.Client
	store    *history.Store

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewLocalDownloadService builds a manager from settings. When store is not
// nil every terminal task is recorded into it; the service closes it on
// Shutdown.
func NewLocalDownloadService(settings *config.Settings, store *history.Store) *LocalDownloadService {
	if settings == nil {
		settings = config.DefaultSettings()
	}
	runtime := types.ConvertRuntimeConfig(settings.ToRuntimeConfig())

	cp := *settings
	settings = &cp

	s := &LocalDownloadService{
		Manager: download.New(download.Options{
			MaxConcurrent: settings.Connections.MaxConcurrentDownloads,
			Runtime:       runtime,
		}),
		settings: settings,
		runtime:  runtime,
		client:   engine.NewHTTPClient(runtime),
		store:    store,
	}
	if store != nil {
		s.Manager.AddListener(history.NewRecorder(store))
	}
	return s
}

// List returns the status of every task, oldest first.
func (s *LocalDownloadService) List() ([]types.DownloadStatus, error) {
	tasks := s.Manager.GetAllTasks()
	out := make([]types.DownloadStatus, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, types.StatusFromTask(t))
	}
	return out, nil
}

// History returns the ledger, newest first.
func (s *LocalDownloadService) History() ([]types.HistoryEntry, error) {
	if s.store == nil {
		return []types.HistoryEntry{}, nil
	}
	entries, err := s.store.List(context.Background(), 0)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []types.HistoryEntry{}
	}
	return entries, nil
}

// Add resolves the destination and queues the download.
func (s *LocalDownloadService) Add(url string, path string, filename string, segments int) (string, error) {
	s.mu.RLock()
	general, conns := s.settings.General, s.settings.Connections
	s.mu.RUnlock()

	if path == "" {
		path = general.DefaultDownloadDir
	}
	path = utils.EnsureAbsPath(path)

	if segments == 0 {
		segments = conns.DefaultSegments
	}

	filename = utils.SanitizeFilename(filename)
	if filename == "" && url != "" {
		filename = s.resolveFilename(url)
	}

	id, err := s.Manager.AddDownloadWithSegments(url, filename, path, segments)
	if err != nil {
		return "", err
	}
	return id, nil
}

// resolveFilename asks the server for a Content-Disposition name and falls
// back to the URL path.
func (s *LocalDownloadService) resolveFilename(url string) string {
	info, err := engine.Probe(context.Background(), s.client, url, s.runtime)
	if err != nil {
		utils.Debug("Filename lookup for %s failed: %v", url, err)
		return utils.FilenameFromURL(url)
	}
	return utils.DetermineFilename(url, info.Filename)
}

// ApplySettings takes new settings. The concurrency cap and the defaults used
// by Add change at once; transport settings apply to the next start of the
// process.
func (s *LocalDownloadService) ApplySettings(settings *config.Settings) {
	if settings == nil {
		return
	}
	cp := *settings
	s.mu.Lock()
	s.settings = &cp
	s.mu.Unlock()
	s.Manager.SetMaxConcurrentDownloads(cp.Connections.MaxConcurrentDownloads)
}

// DownloadDir is the directory Add uses when no path is given.
func (s *LocalDownloadService) DownloadDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return utils.EnsureAbsPath(s.settings.General.DefaultDownloadDir)
}

// Pause pauses an active download.
func (s *LocalDownloadService) Pause(id string) error {
	return s.Manager.PauseDownload(id)
}

// Resume restarts a download.
func (s *LocalDownloadService) Resume(id string) error {
	return s.Manager.StartDownload(id)
}

// Delete removes a download, keeping its temp file unless discard is set.
func (s *LocalDownloadService) Delete(id string, discard bool) error {
	if discard {
		return s.Manager.DiscardTask(id)
	}
	return s.Manager.RemoveTask(id)
}

// GetStatus returns the status of one task.
func (s *LocalDownloadService) GetStatus(id string) (*types.DownloadStatus, error) {
	task, ok := s.Manager.GetTask(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", download.ErrNotFound, id)
	}
	st := types.StatusFromTask(task)
	return &st, nil
}

// StreamEvents subscribes to the manager. Events are dropped when the
// consumer falls more than a buffer behind.
func (s *LocalDownloadService) StreamEvents(ctx context.Context) (<-chan events.Event, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ch := make(chan events.Event, streamBufferSize)
	var (
		mu     sync.Mutex
		closed bool
	)

	sub := s.Manager.AddListener(events.EventFunc(func(e events.Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
			utils.Debug("Event stream full, dropping %s for %s", e.Type, e.Task.ID)
		}
	}))

	stop := make(chan struct{})
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			close(stop)
			s.Manager.RemoveListener(sub)
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-stop:
		}
	}()

	return ch, cleanup, nil
}

// Shutdown pauses running downloads and closes the history ledger.
func (s *LocalDownloadService) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		timeout := s.settings.Performance.ShutdownTimeout
		s.mu.RUnlock()
		if timeout <= 0 {
			timeout = config.DefaultSettings().Performance.ShutdownTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		err := s.Manager.Shutdown(ctx)
		if s.store != nil {
			err = errors.Join(err, s.store.Close())
		}
		s.shutdownErr = err
	})
	return s.shutdownErr
}
