package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Value returns the setting stored under a JSON key.
func (s *Settings) Value(key string) (any, bool) {
	switch key {
	case "default_download_dir":
		return s.General.DefaultDownloadDir, true
	case "clipboard_prefill":
		return s.General.ClipboardPrefill, true
	case "theme":
		return s.General.Theme, true
	case "log_retention_count":
		return s.General.LogRetentionCount, true
	case "max_concurrent_downloads":
		return s.Connections.MaxConcurrentDownloads, true
	case "default_segments":
		return s.Connections.DefaultSegments, true
	case "user_agent":
		return s.Connections.UserAgent, true
	case "proxy_url":
		return s.Connections.ProxyURL, true
	case "skip_tls_verification":
		return s.Connections.SkipTLSVerification, true
	case "speed_limit":
		return s.Connections.SpeedLimit, true
	case "worker_buffer_size":
		return s.Chunks.WorkerBufferSize, true
	case "progress_interval":
		return s.Performance.ProgressInterval, true
	case "probe_timeout":
		return s.Performance.ProbeTimeout, true
	case "shutdown_timeout":
		return s.Performance.ShutdownTimeout, true
	}
	return nil, false
}

// Set parses raw for the setting under key and stores it. Call Validate
// afterwards to clamp the result.
func (s *Settings) Set(key, raw string) error {
	raw = strings.TrimSpace(raw)
	current, ok := s.Value(key)
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}

	var (
		i   int
		i64 int64
		b   bool
		d   time.Duration
		err error
	)
	switch current.(type) {
	case int:
		i, err = strconv.Atoi(raw)
	case int64:
		i64, err = strconv.ParseInt(raw, 10, 64)
	case bool:
		b, err = strconv.ParseBool(raw)
	case time.Duration:
		d, err = time.ParseDuration(raw)
	}
	if err != nil {
		return fmt.Errorf("invalid value %q for %s", raw, key)
	}

	switch key {
	case "default_download_dir":
		s.General.DefaultDownloadDir = raw
	case "clipboard_prefill":
		s.General.ClipboardPrefill = b
	case "theme":
		s.General.Theme = i
	case "log_retention_count":
		s.General.LogRetentionCount = i
	case "max_concurrent_downloads":
		s.Connections.MaxConcurrentDownloads = i
	case "default_segments":
		s.Connections.DefaultSegments = i
	case "user_agent":
		s.Connections.UserAgent = raw
	case "proxy_url":
		s.Connections.ProxyURL = raw
	case "skip_tls_verification":
		s.Connections.SkipTLSVerification = b
	case "speed_limit":
		s.Connections.SpeedLimit = i64
	case "worker_buffer_size":
		s.Chunks.WorkerBufferSize = i
	case "progress_interval":
		s.Performance.ProgressInterval = d
	case "probe_timeout":
		s.Performance.ProbeTimeout = d
	case "shutdown_timeout":
		s.Performance.ShutdownTimeout = d
	}
	return nil
}

// Reset restores the default for key.
func (s *Settings) Reset(key string) error {
	def, ok := DefaultSettings().Value(key)
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}
	return s.Set(key, FormatRaw(def))
}

// FormatRaw renders a setting value in the form Set accepts.
func FormatRaw(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case time.Duration:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
