// Package single streams a file over one connection, optionally resuming
// from an offset with an open-ended Range request.
package single

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tidal-downloader/tidal/internal/engine/types"
	"github.com/tidal-downloader/tidal/internal/utils"
)

// Target is the temp file being filled.
type Target interface {
	io.WriterAt
	Truncate(size int64) error
}

// SingleDownloader handles downloads that are not split into segments: small
// remainders, unknown sizes and servers without Range support.
type SingleDownloader struct {
	Client  *http.Client
	Runtime *types.RuntimeConfig

	Limiter    *rate.Limiter
	Stopped    func() bool
	SetHeaders func(*http.Request)
}

// NewSingleDownloader creates a single-stream downloader.
func NewSingleDownloader(client *http.Client, runtime *types.RuntimeConfig) *SingleDownloader {
	return &SingleDownloader{
		Client:  client,
		Runtime: runtime,
	}
}

func (d *SingleDownloader) stopped() bool {
	return d.Stopped != nil && d.Stopped()
}

// Download streams rawurl into file from offset start until EOF. A Range header
// is sent only when start is positive. If the server ignores it and answers
// 200, the file is truncated and counter reset so the transfer restarts at 0.
func (d *SingleDownloader) Download(ctx context.Context, rawurl string, file Target, start int64, counter *atomic.Int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return err
	}
	if d.SetHeaders != nil {
		d.SetHeaders(req)
	} else {
		req.Header.Set("User-Agent", d.Runtime.GetUserAgent())
		req.Header.Set("Accept-Encoding", "identity")
	}
	if start > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", start))
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			utils.Debug("Error closing response body: %v", err)
		}
	}()

	offset := start
	switch {
	case start > 0 && resp.StatusCode == http.StatusPartialContent:
	case resp.StatusCode == http.StatusOK:
		if start > 0 {
			utils.Debug("Server ignored Range for %s, restarting from 0", rawurl)
			if err := file.Truncate(0); err != nil {
				return fmt.Errorf("truncate error: %w", err)
			}
			counter.Store(0)
			offset = 0
		}
	default:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	began := time.Now()
	buf := make([]byte, d.Runtime.GetWorkerBufferSize())

	for {
		if d.stopped() {
			return nil
		}

		nr, readErr := resp.Body.Read(buf)
		if nr > 0 {
			if d.Limiter != nil {
				if err := d.Limiter.WaitN(ctx, nr); err != nil {
					return err
				}
			}
			nw, writeErr := file.WriteAt(buf[:nr], offset)
			if nw > 0 {
				offset += int64(nw)
				counter.Add(int64(nw))
			}
			if writeErr != nil {
				return fmt.Errorf("write error: %w", writeErr)
			}
			if nr != nw {
				return io.ErrShortWrite
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break // Done reading
			}
			return fmt.Errorf("read error: %w", readErr)
		}
	}

	elapsed := time.Since(began)
	if secs := elapsed.Seconds(); secs > 0 {
		utils.Debug("Streamed %s in %s (%s)",
			utils.ConvertBytesToHumanReadable(offset-start),
			elapsed.Round(time.Millisecond),
			utils.FormatSpeed(int64(float64(offset-start)/secs)),
		)
	}
	return nil
}
