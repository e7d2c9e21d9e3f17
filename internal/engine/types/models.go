package types

import "time"

// FileInfo is the result of a metadata probe
type FileInfo struct {
	Size          int64  // UnknownSize when the server sent no length
	SupportsRange bool   // Accept-Ranges: bytes
	Filename      string // From Content-Disposition, may be empty
	ContentType   string
}

// Segment is an inclusive byte range owned by one transfer worker
type Segment struct {
	Index int   `json:"index"`
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Len returns the number of bytes covered by the segment
func (s Segment) Len() int64 {
	return s.End - s.Start + 1
}

// DownloadStatus is the API view of a task
type DownloadStatus struct {
	ID         string  `json:"id"`
	URL        string  `json:"url"`
	Filename   string  `json:"filename"`
	DestPath   string  `json:"dest_path,omitempty"` // Full absolute path to file
	TotalSize  int64   `json:"total_size"`
	Downloaded int64   `json:"downloaded"`
	Progress   float64 `json:"progress"` // Percentage 0-100
	Speed      int64   `json:"speed"`    // bytes per second
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
	ETA        int64   `json:"eta"`      // Estimated seconds remaining
	Segments   int     `json:"segments"` // Configured connections
	AddedAt    int64   `json:"added_at"` // Unix timestamp when added
}

// StatusFromTask builds the API view of a task snapshot
func StatusFromTask(t Task) DownloadStatus {
	s := DownloadStatus{
		ID:         t.ID,
		URL:        t.URL,
		Filename:   t.FileName,
		DestPath:   t.FullPath(),
		TotalSize:  t.TotalSize,
		Downloaded: t.Downloaded,
		Progress:   t.Progress(),
		Speed:      t.Speed,
		Status:     t.Status.String(),
		Error:      t.ErrorMessage,
		Segments:   t.Segments,
		AddedAt:    t.CreatedAt.Unix(),
	}
	if t.Status == StatusCompleted {
		s.Progress = 100
	}
	if t.Status == StatusDownloading && t.Speed > 0 && t.TotalSize > t.Downloaded {
		s.ETA = (t.TotalSize - t.Downloaded) / t.Speed
	}
	return s
}

// HistoryEntry is one finished, failed or cancelled download in the ledger
type HistoryEntry struct {
	ID          string        `json:"id"`
	URL         string        `json:"url"`
	Filename    string        `json:"filename"`
	DestPath    string        `json:"dest_path"`
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
	TotalSize   int64         `json:"total_size"`
	Downloaded  int64         `json:"downloaded"`
	Kind        string        `json:"kind,omitempty"` // File extension detected from content
	MIME        string        `json:"mime,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt time.Time     `json:"completed_at"`
	TimeTaken   time.Duration `json:"time_taken"`
}
