package concurrent

import (
	"sync/atomic"

	"github.com/tidal-downloader/tidal/internal/engine/types"
)

// Partition splits the inclusive range [start, size-1] into n contiguous,
// non-overlapping segments of floor(remaining/n) bytes. The last segment
// absorbs the remainder. When fewer bytes than n remain, one segment per
// byte is produced. An empty range yields nil.
func Partition(start, size int64, n int) []types.Segment {
	remaining := size - start
	if remaining <= 0 || start < 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if int64(n) > remaining {
		n = int(remaining)
	}

	chunk := remaining / int64(n)
	segments := make([]types.Segment, n)
	offset := start
	for i := 0; i < n; i++ {
		end := offset + chunk - 1
		if i == n-1 {
			end = size - 1
		}
		segments[i] = types.Segment{Index: i, Start: offset, End: end}
		offset = end + 1
	}
	return segments
}

// Transfer tracks how far each segment of one attempt has been written.
type Transfer struct {
	Segments []types.Segment
	written  []atomic.Int64
}

// NewTransfer prepares progress tracking for segments.
func NewTransfer(segments []types.Segment) *Transfer {
	return &Transfer{
		Segments: segments,
		written:  make([]atomic.Int64, len(segments)),
	}
}

// Written returns the bytes stored so far for segment i.
func (t *Transfer) Written(i int) int64 {
	return t.written[i].Load()
}

// Complete reports whether every segment has been fully written.
func (t *Transfer) Complete() bool {
	for i, seg := range t.Segments {
		if t.written[i].Load() < seg.Len() {
			return false
		}
	}
	return true
}

// ContiguousEnd returns the offset of the first byte not yet written when
// scanning segments in order. Everything before it is a gap-free prefix,
// which makes it safe to truncate the temp file there and resume later.
func (t *Transfer) ContiguousEnd() int64 {
	if len(t.Segments) == 0 {
		return 0
	}
	for i, seg := range t.Segments {
		w := t.written[i].Load()
		if w < seg.Len() {
			return seg.Start + w
		}
	}
	return t.Segments[len(t.Segments)-1].End + 1
}
