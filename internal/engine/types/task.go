package types

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UnknownSize marks a total size that has not been resolved by a probe yet.
const UnknownSize int64 = -1

// Status is the lifecycle state of a Task.
type Status int

const (
	StatusWaiting Status = iota
	StatusDownloading
	StatusPaused
	StatusCompleted
	StatusError
	StatusCancelled
)

var statusNames = [...]string{
	StatusWaiting:     "waiting",
	StatusDownloading: "downloading",
	StatusPaused:      "paused",
	StatusCompleted:   "completed",
	StatusError:       "error",
	StatusCancelled:   "cancelled",
}

var statusDisplayNames = [...]string{
	StatusWaiting:     "Waiting",
	StatusDownloading: "Downloading",
	StatusPaused:      "Paused",
	StatusCompleted:   "Completed",
	StatusError:       "Error",
	StatusCancelled:   "Cancelled",
}

func (s Status) valid() bool {
	return s >= StatusWaiting && s <= StatusCancelled
}

// String returns the lower-case name used by the API and the history ledger.
func (s Status) String() string {
	if !s.valid() {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// DisplayName returns the label shown in the UI.
func (s Status) DisplayName() string {
	if !s.valid() {
		return "Unknown"
	}
	return statusDisplayNames[s]
}

// IsTerminal reports whether the status ends a transfer attempt.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// CanTransitionTo reports whether moving from s to next is a legal state change.
//
// A task only reaches DOWNLOADING through admission, and only leaves it through
// pause, completion, failure or cancellation. Every non-downloading state may be
// restarted explicitly, which re-enters admission as WAITING or DOWNLOADING.
func (s Status) CanTransitionTo(next Status) bool {
	if !s.valid() || !next.valid() {
		return false
	}
	switch s {
	case StatusDownloading:
		switch next {
		case StatusPaused, StatusCompleted, StatusError, StatusCancelled:
			return true
		}
		return false
	case StatusWaiting:
		return next == StatusDownloading || next == StatusWaiting || next == StatusCancelled
	case StatusPaused, StatusError:
		return next == StatusWaiting || next == StatusDownloading || next == StatusCancelled
	case StatusCompleted, StatusCancelled:
		return next == StatusWaiting || next == StatusDownloading
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus converts an API name back into a Status.
func ParseStatus(name string) (Status, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return StatusWaiting, fmt.Errorf("unknown status %q", name)
}

// Task describes one download. Values handed out by the manager are snapshots;
// only the manager mutates the live record.
type Task struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	FileName string `json:"filename"`
	SavePath string `json:"save_path"`

	TotalSize  int64  `json:"total_size"`
	Downloaded int64  `json:"downloaded"`
	Status     Status `json:"status"`

	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	CompletedAt time.Time `json:"completed_at,omitzero"`

	Segments     int    `json:"segments"`
	Speed        int64  `json:"speed"` // bytes per second
	ErrorMessage string `json:"error,omitempty"`
}

// NewTask creates a WAITING task with a fresh id and the default segment count.
func NewTask(url, fileName, savePath string) *Task {
	return &Task{
		ID:        uuid.New().String(),
		URL:       url,
		FileName:  fileName,
		SavePath:  savePath,
		TotalSize: UnknownSize,
		Status:    StatusWaiting,
		CreatedAt: time.Now(),
		Segments:  DefaultSegments,
	}
}

// FullPath is the final location of the downloaded file.
func (t *Task) FullPath() string {
	return filepath.Join(t.SavePath, t.FileName)
}

// TempPath is the staging file that holds a partial download.
func (t *Task) TempPath() string {
	return t.FullPath() + IncompleteSuffix
}

// SetSegments changes the number of concurrent segments used by the next transfer.
func (t *Task) SetSegments(n int) error {
	if n < MinSegments || n > MaxSegments {
		return fmt.Errorf("segment count %d out of range [%d, %d]", n, MinSegments, MaxSegments)
	}
	t.Segments = n
	return nil
}

// ApplyProgress records a progress sample, keeping the size invariants intact.
func (t *Task) ApplyProgress(downloaded, total, speed int64) {
	if total >= 0 || t.TotalSize < 0 {
		t.TotalSize = total
	}
	if downloaded < 0 {
		downloaded = 0
	}
	if t.TotalSize >= 0 && downloaded > t.TotalSize {
		downloaded = t.TotalSize
	}
	if speed < 0 {
		speed = 0
	}
	t.Downloaded = downloaded
	t.Speed = speed
}

// Progress returns the completed percentage in [0, 100].
func (t *Task) Progress() float64 {
	if t.TotalSize <= 0 {
		return 0
	}
	return float64(t.Downloaded) / float64(t.TotalSize) * 100
}

// Clone returns a copy detached from the live record.
func (t *Task) Clone() Task {
	return *t
}

func (t *Task) String() string {
	return fmt.Sprintf("Task{id=%s, file=%s, status=%s, progress=%.1f%%}", t.ID, t.FileName, t.Status, t.Progress())
}
