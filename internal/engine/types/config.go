package types

import (
	"time"
)

// Size constants
const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB

	// IncompleteSuffix is appended to the target path while downloading
	IncompleteSuffix = ".tidal"
)

// Transfer constants
const (
	// SegmentThreshold is the remaining byte count above which a resumable
	// download is split across segment workers.
	SegmentThreshold = 1 * MB

	DefaultSegments = 4
	MinSegments     = 1
	MaxSegments     = 16

	WorkerBuffer     = 32 * KB
	ProgressInterval = 1 * time.Second
)

// Manager defaults
const (
	DefaultMaxConcurrentDownloads = 3
	ShutdownTimeout               = 5 * time.Second
)

// HTTP Client Tuning
const (
	DefaultMaxIdleConns          = 100
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 15 * time.Second
	DefaultExpectContinueTimeout = 1 * time.Second
	DialTimeout                  = 10 * time.Second
	KeepAliveDuration            = 30 * time.Second
	ProbeTimeout                 = 30 * time.Second
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// RuntimeConfig holds dynamic settings that can override defaults
type RuntimeConfig struct {
	UserAgent           string
	ProxyURL            string
	SkipTLSVerification bool

	// SpeedLimit caps a single download in bytes per second. Zero means unlimited.
	SpeedLimit int64

	WorkerBufferSize int
	ProgressInterval time.Duration
	ProbeTimeout     time.Duration
}

// GetUserAgent returns the configured user agent or the default
func (r *RuntimeConfig) GetUserAgent() string {
	if r == nil || r.UserAgent == "" {
		return DefaultUserAgent
	}
	return r.UserAgent
}

// GetWorkerBufferSize returns configured value or default
func (r *RuntimeConfig) GetWorkerBufferSize() int {
	if r == nil || r.WorkerBufferSize <= 0 {
		return WorkerBuffer
	}
	return r.WorkerBufferSize
}

// GetProgressInterval returns configured value or default
func (r *RuntimeConfig) GetProgressInterval() time.Duration {
	if r == nil || r.ProgressInterval <= 0 {
		return ProgressInterval
	}
	return r.ProgressInterval
}

// GetProbeTimeout returns configured value or default
func (r *RuntimeConfig) GetProbeTimeout() time.Duration {
	if r == nil || r.ProbeTimeout <= 0 {
		return ProbeTimeout
	}
	return r.ProbeTimeout
}

// GetSpeedLimit returns the per-download cap in bytes per second, 0 if unlimited
func (r *RuntimeConfig) GetSpeedLimit() int64 {
	if r == nil || r.SpeedLimit < 0 {
		return 0
	}
	return r.SpeedLimit
}

// GetProxyURL returns the configured proxy or an empty string
func (r *RuntimeConfig) GetProxyURL() string {
	if r == nil {
		return ""
	}
	return r.ProxyURL
}

// GetSkipTLSVerification reports whether certificate checks are disabled
func (r *RuntimeConfig) GetSkipTLSVerification() bool {
	return r != nil && r.SkipTLSVerification
}
