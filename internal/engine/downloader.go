// Package engine performs a single task's transfer: probe, resume, segmented
// or single-stream download, progress sampling and finalize.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tidal-downloader/tidal/internal/engine/concurrent"
	"github.com/tidal-downloader/tidal/internal/engine/single"
	"github.com/tidal-downloader/tidal/internal/engine/types"
	"github.com/tidal-downloader/tidal/internal/utils"
)

// Outcome messages reported through Callback.OnError.
const (
	MsgProbeFailed  = "could not retrieve file information"
	MsgRenameFailed = "could not rename temporary file"
)

// Callback receives the outcome of a transfer. The downloader never changes a
// task's status itself; it only reports.
type Callback interface {
	OnProgress(task types.Task, downloaded, total, speed int64)
	OnCompleted(task types.Task)
	OnError(task types.Task, message string)
}

// RangeDownloader transfers one task end to end. It runs at most once; a new
// instance is built for every start.
type RangeDownloader struct {
	// Client is used for the probe and every transfer request.
	Client *http.Client

	task    types.Task
	cb      Callback
	runtime *types.RuntimeConfig

	paused    atomic.Bool
	cancelled atomic.Bool
	started   atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc

	downloaded atomic.Int64
	total      atomic.Int64
}

// NewRangeDownloader prepares a downloader for a snapshot of task.
func NewRangeDownloader(task types.Task, cb Callback, runtime *types.RuntimeConfig) *RangeDownloader {
	d := &RangeDownloader{
		Client:  NewHTTPClient(runtime),
		task:    task,
		cb:      cb,
		runtime: runtime,
	}
	d.total.Store(task.TotalSize)
	return d
}

// Pause stops the transfer and keeps the temp file for a later resume.
func (d *RangeDownloader) Pause() {
	d.paused.Store(true)
	d.interrupt()
}

// Cancel stops the transfer and deletes the temp file once workers have exited.
func (d *RangeDownloader) Cancel() {
	d.cancelled.Store(true)
	d.interrupt()
}

// IsPaused reports whether Pause was called.
func (d *RangeDownloader) IsPaused() bool { return d.paused.Load() }

// IsCancelled reports whether Cancel was called.
func (d *RangeDownloader) IsCancelled() bool { return d.cancelled.Load() }

func (d *RangeDownloader) stopped() bool {
	return d.paused.Load() || d.cancelled.Load()
}

// interrupt unblocks in-flight reads so workers observe the flags promptly.
func (d *RangeDownloader) interrupt() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run performs the transfer and reports exactly one outcome through the
// callback, unless paused or cancelled. Subsequent calls return immediately.
func (d *RangeDownloader) Run(ctx context.Context) {
	if !d.started.CompareAndSwap(false, true) {
		utils.Debug("Downloader for %s already ran", d.task.ID)
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	tempPath := d.task.TempPath()

	// Pause or cancel may have arrived before the worker was scheduled
	if d.stopped() {
		d.discardIfCancelled(tempPath)
		return
	}

	info, err := Probe(runCtx, d.Client, d.task.URL, d.runtime)
	if err != nil {
		if d.interrupted(ctx) {
			d.discardIfCancelled(tempPath)
			return
		}
		utils.Debug("Probe failed for %s: %v", d.task.URL, err)
		d.cb.OnError(d.snapshot(), MsgProbeFailed)
		return
	}
	total := info.Size
	d.total.Store(total)

	start, tempExists := d.resumeOffset(tempPath, info)

	if info.SupportsRange && total >= 0 && tempExists && start >= total {
		utils.Debug("Temp file for %s already complete", d.task.ID)
		d.downloaded.Store(total)
		d.cb.OnProgress(d.snapshot(), total, total, 0)
		d.finish(tempPath)
		return
	}

	flags := os.O_CREATE | os.O_WRONLY
	if start == 0 {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(tempPath, flags, 0o644)
	if err != nil {
		d.cb.OnError(d.snapshot(), fmt.Sprintf("could not open temporary file: %v", err))
		return
	}
	if start > 0 && total >= 0 {
		// Drop any bytes past the reported size
		if err := file.Truncate(start); err != nil {
			_ = file.Close()
			d.cb.OnError(d.snapshot(), fmt.Sprintf("could not open temporary file: %v", err))
			return
		}
	}
	d.downloaded.Store(start)

	samplerDone := make(chan struct{})
	var samplerWG sync.WaitGroup
	samplerWG.Add(1)
	go func() {
		defer samplerWG.Done()
		d.sample(samplerDone)
	}()

	var tr *concurrent.Transfer
	var transferErr error
	remaining := total - start
	if info.SupportsRange && total >= 0 && remaining > types.SegmentThreshold {
		tr = concurrent.NewTransfer(concurrent.Partition(start, total, d.task.Segments))
		cd := concurrent.NewConcurrentDownloader(d.Client, d.runtime)
		cd.Limiter = d.limiter()
		cd.Stopped = d.stopped
		cd.SetHeaders = d.setHeaders
		utils.Debug("Task %s: segmented transfer from %d, %d segments", d.task.ID, start, len(tr.Segments))
		transferErr = cd.Download(runCtx, d.task.URL, file, tr, &d.downloaded)
	} else {
		sd := single.NewSingleDownloader(d.Client, d.runtime)
		sd.Limiter = d.limiter()
		sd.Stopped = d.stopped
		sd.SetHeaders = d.setHeaders
		utils.Debug("Task %s: single stream from %d", d.task.ID, start)
		transferErr = sd.Download(runCtx, d.task.URL, file, start, &d.downloaded)
	}

	// Join the sampler before any terminal report
	close(samplerDone)
	samplerWG.Wait()

	if tr != nil && !tr.Complete() {
		// Keep only the gap-free prefix so the file length stays a valid checkpoint
		if err := file.Truncate(tr.ContiguousEnd()); err != nil {
			utils.Debug("Truncate to checkpoint failed: %v", err)
		}
	}

	if d.interrupted(ctx) {
		_ = file.Sync()
		_ = file.Close()
		d.discardIfCancelled(tempPath)
		return
	}

	if transferErr != nil {
		_ = file.Close()
		utils.Debug("Transfer failed for %s: %v", d.task.ID, transferErr)
		d.cb.OnError(d.snapshot(), transferErr.Error())
		return
	}

	downloaded := d.downloaded.Load()
	if total >= 0 && downloaded < total {
		_ = file.Close()
		d.cb.OnError(d.snapshot(), fmt.Sprintf("transfer ended early: %d of %d bytes", downloaded, total))
		return
	}
	if total < 0 {
		// Unknown size resolves to whatever the stream delivered
		total = downloaded
		d.total.Store(total)
	}

	if err := file.Sync(); err != nil {
		utils.Debug("Sync failed for %s: %v", tempPath, err)
	}
	if err := file.Close(); err != nil {
		utils.Debug("Close failed for %s: %v", tempPath, err)
	}

	d.cb.OnProgress(d.snapshot(), downloaded, total, 0)
	d.finish(tempPath)
}

// interrupted reports a user stop or a cancelled parent context.
func (d *RangeDownloader) interrupted(parent context.Context) bool {
	return d.stopped() || parent.Err() != nil
}

// resumeOffset returns where the transfer restarts and whether the temp file
// is a usable checkpoint. Without range support the old bytes cannot be
// trusted, so the file is emptied.
func (d *RangeDownloader) resumeOffset(tempPath string, info *types.FileInfo) (int64, bool) {
	st, err := os.Stat(tempPath)
	if err != nil {
		return 0, false
	}
	if !info.SupportsRange {
		if st.Size() > 0 {
			utils.Debug("Server for %s has no ranges, restarting from zero", d.task.ID)
			if err := os.Truncate(tempPath, 0); err != nil {
				utils.Debug("Could not empty %s: %v", tempPath, err)
			}
		}
		return 0, false
	}
	start := st.Size()
	if info.Size >= 0 && start > info.Size {
		// Stale bytes beyond the real size must not reach the final file
		if err := os.Truncate(tempPath, info.Size); err != nil {
			utils.Debug("Could not trim %s: %v", tempPath, err)
			return 0, true
		}
		start = info.Size
	}
	utils.Debug("Resuming %s from offset %d", d.task.ID, start)
	return start, true
}

func (d *RangeDownloader) finish(tempPath string) {
	if err := finalizeFile(tempPath, d.task.FullPath()); err != nil {
		utils.Debug("Finalize failed for %s: %v", d.task.ID, err)
		d.cb.OnError(d.snapshot(), MsgRenameFailed)
		return
	}
	utils.Debug("Task %s completed: %s", d.task.ID, d.task.FullPath())
	d.cb.OnCompleted(d.snapshot())
}

func (d *RangeDownloader) discardIfCancelled(tempPath string) {
	if !d.cancelled.Load() {
		return
	}
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		utils.Debug("Could not remove %s: %v", tempPath, err)
	}
}

func (d *RangeDownloader) setHeaders(req *http.Request) {
	SetRequestHeaders(req, d.runtime)
}

func (d *RangeDownloader) limiter() *rate.Limiter {
	limit := d.runtime.GetSpeedLimit()
	if limit <= 0 {
		return nil
	}
	burst := d.runtime.GetWorkerBufferSize()
	if int64(burst) < limit {
		burst = int(limit)
	}
	return rate.NewLimiter(rate.Limit(limit), burst)
}

// snapshot returns the task with the latest counters applied.
func (d *RangeDownloader) snapshot() types.Task {
	t := d.task
	t.ApplyProgress(d.downloaded.Load(), d.total.Load(), 0)
	return t
}

// sample reports progress immediately and then once per interval until done
// is closed. Nothing is reported while paused or cancelled.
func (d *RangeDownloader) sample(done <-chan struct{}) {
	ticker := time.NewTicker(d.runtime.GetProgressInterval())
	defer ticker.Stop()

	lastBytes := d.downloaded.Load()
	lastTime := time.Now()
	d.emitProgress(lastBytes, 0)

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			current := d.downloaded.Load()
			var speed int64
			if ms := now.Sub(lastTime).Milliseconds(); ms > 0 && current > lastBytes {
				speed = (current - lastBytes) * 1000 / ms
			}
			lastBytes, lastTime = current, now
			d.emitProgress(current, speed)
		}
	}
}

func (d *RangeDownloader) emitProgress(downloaded, speed int64) {
	if d.stopped() {
		return
	}
	total := d.total.Load()
	if total >= 0 && downloaded > total {
		downloaded = total
	}
	t := d.snapshot()
	t.Speed = speed
	d.cb.OnProgress(t, downloaded, total, speed)
}
