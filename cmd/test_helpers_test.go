package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/tidal-downloader/tidal/internal/config"
	"github.com/tidal-downloader/tidal/internal/download"
	"github.com/tidal-downloader/tidal/internal/engine/events"
	"github.com/tidal-downloader/tidal/internal/engine/types"
)

func requireTCPListener(t *testing.T) {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("tcp listener unavailable: %v", err)
		return
	}
	_ = ln.Close()
}

// setupIsolatedCmdState points every tidal directory at a fresh temp dir and
// clears the global flags.
func setupIsolatedCmdState(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.HomeEnv, home)
	t.Setenv(tokenEnv, "")
	t.Setenv(hostEnv, "")

	oldHost, oldToken := globalHost, globalToken
	globalHost, globalToken = "", ""
	t.Cleanup(func() { globalHost, globalToken = oldHost, oldToken })

	if err := config.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs failed: %v", err)
	}
	return home
}

type serviceCall struct {
	op      string
	id      string
	url     string
	path    string
	name    string
	discard bool
}

// fakeService is an in-memory DownloadService.
type fakeService struct {
	mu       sync.Mutex
	statuses []types.DownloadStatus
	history  []types.HistoryEntry
	calls    []serviceCall
	addErr   error
	opErr    error
	nextID   int
}

func (f *fakeService) record(c serviceCall) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *fakeService) Calls() []serviceCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]serviceCall(nil), f.calls...)
}

func (f *fakeService) List() ([]types.DownloadStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.DownloadStatus(nil), f.statuses...), nil
}

func (f *fakeService) History() ([]types.HistoryEntry, error) {
	return f.history, nil
}

func (f *fakeService) Add(url, path, filename string, segments int) (string, error) {
	f.record(serviceCall{op: "add", url: url, path: path, name: filename})
	if f.addErr != nil {
		return "", f.addErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("%08d-aaaa-bbbb-cccc-dddddddddddd", f.nextID)
	f.statuses = append(f.statuses, types.DownloadStatus{ID: id, URL: url, Status: "waiting"})
	return id, nil
}

func (f *fakeService) Pause(id string) error {
	f.record(serviceCall{op: "pause", id: id})
	return f.opErr
}

func (f *fakeService) Resume(id string) error {
	f.record(serviceCall{op: "resume", id: id})
	return f.opErr
}

func (f *fakeService) Delete(id string, discard bool) error {
	f.record(serviceCall{op: "delete", id: id, discard: discard})
	return f.opErr
}

func (f *fakeService) GetStatus(id string) (*types.DownloadStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.statuses {
		if s.ID == id {
			cp := s
			return &cp, nil
		}
	}
	return nil, download.ErrNotFound
}

func (f *fakeService) StreamEvents(ctx context.Context) (<-chan events.Event, func(), error) {
	return nil, func() {}, errors.New("not supported")
}

func (f *fakeService) Shutdown() error { return nil }
