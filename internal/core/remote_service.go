package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tidal-downloader/tidal/internal/engine/events"
	"github.com/tidal-downloader/tidal/internal/engine/types"
	"github.com/tidal-downloader/tidal/internal/utils"
)

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// RemoteDownloadService implements DownloadService for a remote daemon.
type RemoteDownloadService struct {
	BaseURL string
	Token   string
	Client  *http.Client
	Dialer  *websocket.Dialer
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRemoteDownloadService creates a new remote service instance.
func NewRemoteDownloadService(baseURL string, token string) *RemoteDownloadService {
	ctx, cancel := context.WithCancel(context.Background())
	return &RemoteDownloadService{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 30 * time.Second},
		Dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *RemoteDownloadService) authHeader() http.Header {
	h := http.Header{}
	if s.Token != "" {
		h.Set("Authorization", "Bearer "+s.Token)
	}
	return h
}

func (s *RemoteDownloadService) doRequest(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(s.ctx, method, s.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header = s.authHeader()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		// Limit error body read to 1KB
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
	}

	return resp, nil
}

func (s *RemoteDownloadService) getJSON(path string, out any) error {
	resp, err := s.doRequest(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return json.NewDecoder(resp.Body).Decode(out)
}

// List returns the status of every task, oldest first.
func (s *RemoteDownloadService) List() ([]types.DownloadStatus, error) {
	var statuses []types.DownloadStatus
	if err := s.getJSON("/list", &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// History returns the daemon's ledger.
func (s *RemoteDownloadService) History() ([]types.HistoryEntry, error) {
	var entries []types.HistoryEntry
	if err := s.getJSON("/history", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetStatus returns a status for a single download by id.
func (s *RemoteDownloadService) GetStatus(id string) (*types.DownloadStatus, error) {
	var status types.DownloadStatus
	if err := s.getJSON("/download?id="+url.QueryEscape(id), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// AddRequest is the body of POST /download.
type AddRequest struct {
	URL      string `json:"url"`
	Path     string `json:"path,omitempty"`
	Filename string `json:"filename,omitempty"`
	Segments int    `json:"segments,omitempty"`
}

// Add queues a new download.
func (s *RemoteDownloadService) Add(rawurl string, path string, filename string, segments int) (string, error) {
	resp, err := s.doRequest(http.MethodPost, "/download", AddRequest{
		URL:      rawurl,
		Path:     path,
		Filename: filename,
		Segments: segments,
	})
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var result map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result["id"], nil
}

func (s *RemoteDownloadService) action(method, path, id string, extra url.Values) error {
	q := url.Values{"id": {id}}
	for k, v := range extra {
		q[k] = v
	}
	resp, err := s.doRequest(method, path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Pause pauses an active download.
func (s *RemoteDownloadService) Pause(id string) error {
	return s.action(http.MethodPost, "/pause", id, nil)
}

// Resume restarts a download.
func (s *RemoteDownloadService) Resume(id string) error {
	return s.action(http.MethodPost, "/resume", id, nil)
}

// Delete removes a download.
func (s *RemoteDownloadService) Delete(id string, discard bool) error {
	var extra url.Values
	if discard {
		extra = url.Values{"discard": {"true"}}
	}
	return s.action(http.MethodDelete, "/delete", id, extra)
}

// Shutdown stops the service. The daemon keeps running.
func (s *RemoteDownloadService) Shutdown() error {
	s.cancel()
	return nil
}

// StreamEvents follows the daemon's WebSocket feed, reconnecting with
// backoff until ctx or the service is done.
func (s *RemoteDownloadService) StreamEvents(ctx context.Context) (<-chan events.Event, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan events.Event, streamBufferSize)
	go s.streamWithReconnect(ctx, ch)
	return ch, cancel, nil
}

func (s *RemoteDownloadService) wsURL() (string, error) {
	u, err := url.Parse(s.BaseURL + "/ws")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

func (s *RemoteDownloadService) streamWithReconnect(ctx context.Context, ch chan events.Event) {
	defer close(ch)
	backoff := 1 * time.Second
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ctx.Done():
			return
		default:
		}

		err := s.connectStream(ctx, ch)
		if err == nil {
			return
		}
		utils.Debug("Event stream disconnected: %v", err)

		select {
		case <-s.ctx.Done():
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// connectStream returns nil only when ctx ends the stream.
func (s *RemoteDownloadService) connectStream(ctx context.Context, ch chan events.Event) error {
	target, err := s.wsURL()
	if err != nil {
		return err
	}

	conn, resp, err := s.Dialer.DialContext(ctx, target, s.authHeader())
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer func() { _ = conn.Close() }()

	// Unblock ReadMessage when either context ends
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	stopService := context.AfterFunc(s.ctx, func() { _ = conn.Close() })
	defer stopService()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || s.ctx.Err() != nil {
				return nil
			}
			return err
		}

		var e events.Event
		if err := json.Unmarshal(data, &e); err != nil {
			utils.Debug("Event stream: bad frame: %v", err)
			continue
		}

		// Non-blocking send
		select {
		case ch <- e:
		default:
		}
	}
}
