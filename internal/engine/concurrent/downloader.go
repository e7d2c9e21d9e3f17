// Package concurrent transfers disjoint byte ranges of one file in parallel.
package concurrent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tidal-downloader/tidal/internal/engine/types"
	"github.com/tidal-downloader/tidal/internal/utils"
)

var (
	// ErrSegmentShort is returned when a ranged response ends before its segment.
	ErrSegmentShort = errors.New("segment ended early")
	// ErrRangeNotSatisfied is returned when a segment request is not answered with 206.
	ErrRangeNotSatisfied = errors.New("range request not honoured")
)

// ConcurrentDownloader runs one worker per segment, each writing its own byte
// range into the shared file with positioned writes.
type ConcurrentDownloader struct {
	Client  *http.Client
	Runtime *types.RuntimeConfig

	// Limiter is shared by all workers of one download. Nil disables throttling.
	Limiter *rate.Limiter

	// Stopped is polled on every read. When it reports true, workers return
	// without error and any I/O failure is treated as shutdown noise.
	Stopped func() bool

	// SetHeaders decorates every outgoing request.
	SetHeaders func(*http.Request)
}

// NewConcurrentDownloader creates a segmented downloader.
func NewConcurrentDownloader(client *http.Client, runtime *types.RuntimeConfig) *ConcurrentDownloader {
	return &ConcurrentDownloader{
		Client:  client,
		Runtime: runtime,
	}
}

func (d *ConcurrentDownloader) stopped() bool {
	return d.Stopped != nil && d.Stopped()
}

// Download fetches every segment of tr and blocks until all workers have
// returned. counter is incremented atomically for every byte stored.
func (d *ConcurrentDownloader) Download(ctx context.Context, rawurl string, file io.WriterAt, tr *Transfer, counter *atomic.Int64) error {
	utils.Debug("Segmented transfer of %s across %d segments", rawurl, len(tr.Segments))

	g, gctx := errgroup.WithContext(ctx)
	for i := range tr.Segments {
		g.Go(func() error {
			err := d.downloadSegment(gctx, rawurl, file, tr, i, counter)
			if err != nil && d.stopped() {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

func (d *ConcurrentDownloader) downloadSegment(ctx context.Context, rawurl string, file io.WriterAt, tr *Transfer, i int, counter *atomic.Int64) error {
	seg := tr.Segments[i]
	if d.stopped() {
		return nil
	}

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
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", seg.Start, seg.End))

	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("segment %d: %w", seg.Index, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("segment %d: %w: unexpected status code: %d", seg.Index, ErrRangeNotSatisfied, resp.StatusCode)
	}

	buf := make([]byte, d.Runtime.GetWorkerBufferSize())
	offset := seg.Start
	for offset <= seg.End {
		if d.stopped() {
			return nil
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			// Never write past the segment even if the server sends more
			if remaining := seg.End - offset + 1; int64(n) > remaining {
				n = int(remaining)
			}
			if d.Limiter != nil {
				if err := d.Limiter.WaitN(ctx, n); err != nil {
					return err
				}
			}
			if _, err := file.WriteAt(buf[:n], offset); err != nil {
				return fmt.Errorf("segment %d: write error: %w", seg.Index, err)
			}
			offset += int64(n)
			tr.written[i].Add(int64(n))
			counter.Add(int64(n))
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return fmt.Errorf("segment %d: read error: %w", seg.Index, readErr)
		}
	}

	if offset <= seg.End {
		return fmt.Errorf("segment %d: %w at %d of %d", seg.Index, ErrSegmentShort, offset, seg.End+1)
	}
	return nil
}
