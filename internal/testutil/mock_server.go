// Package testutil provides HTTP fixtures and file helpers for download tests.
package testutil

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// MockServer is a configurable HTTP test server for download testing.
type MockServer struct {
	Server *httptest.Server

	// Configuration
	FileSize         int64         // Size of the served file
	SupportsRanges   bool          // Advertise and honor Range requests
	ContentType      string        // Content-Type header value
	Filename         string        // Filename in Content-Disposition header
	RandomData       bool          // If true, serve random data; otherwise serve a byte pattern
	HeadNotAllowed   bool          // Answer HEAD with 405
	OmitLength       bool          // Stream without Content-Length
	Latency          time.Duration // Artificial latency per request
	ByteLatency      time.Duration // Sleep after every written chunk
	FailAfterBytes   int64         // Cut each response after this many bytes (0 = no fail)
	FailOnNthRequest int           // Fail the Nth request with 500 (0 = don't fail)

	// Tracking
	RequestCount   atomic.Int64
	HeadRequests   atomic.Int64
	BytesServed    atomic.Int64
	ActiveRequests atomic.Int64
	RangeRequests  atomic.Int64
	FullRequests   atomic.Int64
	FailedRequests atomic.Int64

	mu             sync.Mutex
	internalReqNum int
	ranges         []string

	data          []byte
	CustomHandler http.HandlerFunc
}

// MockServerOption is a function that configures a MockServer.
type MockServerOption func(*MockServer)

// WithHandler replaces the built-in handler entirely.
func WithHandler(h http.HandlerFunc) MockServerOption {
	return func(m *MockServer) {
		m.CustomHandler = h
	}
}

// WithFileSize sets the file size to serve.
func WithFileSize(size int64) MockServerOption {
	return func(m *MockServer) {
		m.FileSize = size
	}
}

// WithRangeSupport enables or disables Range request support.
func WithRangeSupport(enabled bool) MockServerOption {
	return func(m *MockServer) {
		m.SupportsRanges = enabled
	}
}

// WithContentType sets the Content-Type header.
func WithContentType(ct string) MockServerOption {
	return func(m *MockServer) {
		m.ContentType = ct
	}
}

// WithFilename sets the filename in Content-Disposition header.
func WithFilename(name string) MockServerOption {
	return func(m *MockServer) {
		m.Filename = name
	}
}

// WithRandomData enables serving random bytes.
func WithRandomData(random bool) MockServerOption {
	return func(m *MockServer) {
		m.RandomData = random
	}
}

// WithHeadNotAllowed makes HEAD return 405 so clients must fall back to GET.
func WithHeadNotAllowed() MockServerOption {
	return func(m *MockServer) {
		m.HeadNotAllowed = true
	}
}

// WithoutContentLength streams responses with no declared length.
func WithoutContentLength() MockServerOption {
	return func(m *MockServer) {
		m.OmitLength = true
	}
}

// WithLatency adds artificial latency per request.
func WithLatency(d time.Duration) MockServerOption {
	return func(m *MockServer) {
		m.Latency = d
	}
}

// WithByteLatency sleeps after every chunk written, throttling the transfer.
func WithByteLatency(d time.Duration) MockServerOption {
	return func(m *MockServer) {
		m.ByteLatency = d
	}
}

// WithFailAfterBytes causes every response to end after serving N bytes.
func WithFailAfterBytes(n int64) MockServerOption {
	return func(m *MockServer) {
		m.FailAfterBytes = n
	}
}

// WithFailOnNthRequest causes the Nth request to fail.
func WithFailOnNthRequest(n int) MockServerOption {
	return func(m *MockServer) {
		m.FailOnNthRequest = n
	}
}

func newMock(opts []MockServerOption) *MockServer {
	m := &MockServer{
		FileSize:       1024 * 1024, // 1MB default
		SupportsRanges: true,
		ContentType:    "application/octet-stream",
		Filename:       "testfile.bin",
	}
	for _, opt := range opts {
		opt(m)
	}

	m.data = make([]byte, m.FileSize)
	if m.RandomData {
		_, _ = rand.Read(m.data)
	} else {
		// Position-dependent pattern so misplaced segments are detectable
		for i := range m.data {
			m.data[i] = byte(i % 251)
		}
	}
	return m
}

// NewMockServer creates a new mock HTTP server with the given options.
func NewMockServer(opts ...MockServerOption) *MockServer {
	m := newMock(opts)
	m.Server = NewHTTPServer(http.HandlerFunc(m.handleRequest))
	return m
}

// NewMockServerT creates a new mock HTTP server and skips the test if binding fails.
func NewMockServerT(t *testing.T, opts ...MockServerOption) *MockServer {
	t.Helper()
	m := newMock(opts)
	m.Server = NewHTTPServerT(t, http.HandlerFunc(m.handleRequest))
	t.Cleanup(m.Close)
	return m
}

// URL returns the server's URL.
func (m *MockServer) URL() string {
	return m.Server.URL
}

// Data returns the exact bytes served for a full download.
func (m *MockServer) Data() []byte {
	return m.data
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	if m.Server != nil {
		m.Server.Close()
	}
}

// Ranges returns every Range header received, in arrival order.
func (m *MockServer) Ranges() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.ranges))
	copy(out, m.ranges)
	return out
}

// Reset clears all tracking counters.
func (m *MockServer) Reset() {
	m.RequestCount.Store(0)
	m.HeadRequests.Store(0)
	m.BytesServed.Store(0)
	m.ActiveRequests.Store(0)
	m.RangeRequests.Store(0)
	m.FullRequests.Store(0)
	m.FailedRequests.Store(0)
	m.mu.Lock()
	m.internalReqNum = 0
	m.ranges = nil
	m.mu.Unlock()
}

// Stats returns a summary of server statistics.
func (m *MockServer) Stats() MockServerStats {
	return MockServerStats{
		TotalRequests:  m.RequestCount.Load(),
		HeadRequests:   m.HeadRequests.Load(),
		BytesServed:    m.BytesServed.Load(),
		RangeRequests:  m.RangeRequests.Load(),
		FullRequests:   m.FullRequests.Load(),
		FailedRequests: m.FailedRequests.Load(),
	}
}

// MockServerStats contains server statistics.
type MockServerStats struct {
	TotalRequests  int64
	HeadRequests   int64
	BytesServed    int64
	RangeRequests  int64
	FullRequests   int64
	FailedRequests int64
}

func (m *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	if m.CustomHandler != nil {
		m.CustomHandler(w, r)
		return
	}

	m.RequestCount.Add(1)
	m.ActiveRequests.Add(1)
	defer m.ActiveRequests.Add(-1)

	m.mu.Lock()
	m.internalReqNum++
	reqNum := m.internalReqNum
	if rh := r.Header.Get("Range"); rh != "" && r.Method == http.MethodGet {
		m.ranges = append(m.ranges, rh)
	}
	m.mu.Unlock()

	if m.FailOnNthRequest > 0 && reqNum == m.FailOnNthRequest {
		m.FailedRequests.Add(1)
		http.Error(w, "Simulated failure", http.StatusInternalServerError)
		return
	}

	if m.Latency > 0 {
		time.Sleep(m.Latency)
	}

	if r.Method == http.MethodHead {
		m.HeadRequests.Add(1)
		if m.HeadNotAllowed {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		m.setCommonHeaders(w, 0, m.FileSize-1)
		if m.SupportsRanges {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	rangeHeader := r.Header.Get("Range")
	start := int64(0)
	end := m.FileSize - 1

	if rangeHeader != "" && m.SupportsRanges {
		m.RangeRequests.Add(1)

		var err error
		start, end, err = parseRange(rangeHeader, m.FileSize)
		if err != nil {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", m.FileSize))
			http.Error(w, "Invalid range", http.StatusRequestedRangeNotSatisfiable)
			return
		}

		m.setCommonHeaders(w, start, end)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, m.FileSize))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		m.FullRequests.Add(1)
		m.setCommonHeaders(w, 0, m.FileSize-1)
		if m.SupportsRanges {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		w.WriteHeader(http.StatusOK)
	}

	length := end - start + 1
	written := int64(0)
	flusher, _ := w.(http.Flusher)

	chunkSize := int64(32 * 1024)
	for written < length {
		// Per-request byte count, so a retried request can succeed
		if m.FailAfterBytes > 0 && written >= m.FailAfterBytes {
			m.FailedRequests.Add(1)
			return
		}

		n := length - written
		if n > chunkSize {
			n = chunkSize
		}
		if m.FailAfterBytes > 0 && written+n > m.FailAfterBytes {
			n = m.FailAfterBytes - written
		}

		from := start + written
		wn, err := w.Write(m.data[from : from+n])
		if err != nil {
			return // Client disconnected
		}
		written += int64(wn)
		m.BytesServed.Add(int64(wn))

		if m.ByteLatency > 0 {
			if flusher != nil {
				flusher.Flush()
			}
			time.Sleep(m.ByteLatency)
		}
	}
}

func (m *MockServer) setCommonHeaders(w http.ResponseWriter, start, end int64) {
	w.Header().Set("Content-Type", m.ContentType)
	if !m.OmitLength {
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	}
	if m.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, m.Filename))
	}
}

// parseRange parses an HTTP Range header and returns start, end positions.
// Handles formats like "bytes=0-499", "bytes=500-" and "bytes=-500".
func parseRange(rangeHeader string, fileSize int64) (int64, int64, error) {
	if !strings.HasPrefix(rangeHeader, "bytes=") {
		return 0, 0, fmt.Errorf("invalid range prefix")
	}

	rangeSpec := strings.TrimPrefix(rangeHeader, "bytes=")
	parts := strings.Split(rangeSpec, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid range format")
	}

	var start, end int64
	var err error

	if parts[0] == "" {
		end = fileSize - 1
		start, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		start = fileSize - start
	} else {
		start, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return 0, 0, err
		}

		if parts[1] == "" {
			end = fileSize - 1
		} else {
			end, err = strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return 0, 0, err
			}
			// Servers clamp an end beyond the file
			if end >= fileSize {
				end = fileSize - 1
			}
		}
	}

	if start < 0 || start > end {
		return 0, 0, fmt.Errorf("range out of bounds")
	}

	return start, end, nil
}
