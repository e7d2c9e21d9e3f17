package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Settings holds all user-configurable application settings organized by category.
type Settings struct {
	General     GeneralSettings     `json:"general"`
	Connections ConnectionSettings  `json:"connections"`
	Chunks      ChunkSettings       `json:"chunks"`
	Performance PerformanceSettings `json:"performance"`
}

// GeneralSettings contains application behavior settings.
type GeneralSettings struct {
	DefaultDownloadDir string `json:"default_download_dir"`
	ClipboardPrefill   bool   `json:"clipboard_prefill"`
	Theme              int    `json:"theme"`
	LogRetentionCount  int    `json:"log_retention_count"`
}

const (
	ThemeAdaptive = 0
	ThemeLight    = 1
	ThemeDark     = 2
)

// ConnectionSettings contains network connection parameters.
type ConnectionSettings struct {
	MaxConcurrentDownloads int    `json:"max_concurrent_downloads"`
	DefaultSegments        int    `json:"default_segments"`
	UserAgent              string `json:"user_agent"`
	ProxyURL               string `json:"proxy_url"`
	SkipTLSVerification    bool   `json:"skip_tls_verification"`
	SpeedLimit             int64  `json:"speed_limit"` // bytes per second per download, 0 = unlimited
}

// ChunkSettings contains transfer buffer configuration.
type ChunkSettings struct {
	WorkerBufferSize int `json:"worker_buffer_size"`
}

// PerformanceSettings contains timing parameters.
type PerformanceSettings struct {
	ProgressInterval time.Duration `json:"progress_interval"`
	ProbeTimeout     time.Duration `json:"probe_timeout"`
	ShutdownTimeout  time.Duration `json:"shutdown_timeout"`
}

// SettingMeta provides metadata for a single setting (for UI rendering).
type SettingMeta struct {
	Key         string // JSON key name
	Label       string // Human-readable label
	Description string // Help text
	Type        string // "string", "int", "int64", "bool", "duration"
}

// GetSettingsMetadata returns metadata for all settings organized by category.
func GetSettingsMetadata() map[string][]SettingMeta {
	return map[string][]SettingMeta{
		"General": {
			{Key: "default_download_dir", Label: "Default Download Dir", Description: "Default directory for new downloads. Leave empty to use current directory.", Type: "string"},
			{Key: "clipboard_prefill", Label: "Clipboard Prefill", Description: "Prefill the add form with a URL found on the clipboard.", Type: "bool"},
			{Key: "theme", Label: "App Theme", Description: "UI Theme (System, Light, Dark).", Type: "int"},
			{Key: "log_retention_count", Label: "Log Retention Count", Description: "Number of recent log files to keep.", Type: "int"},
		},
		"Network": {
			{Key: "max_concurrent_downloads", Label: "Max Concurrent Downloads", Description: "Maximum number of downloads running at once (minimum 1).", Type: "int"},
			{Key: "default_segments", Label: "Default Segments", Description: "Parallel segments per download (1-16).", Type: "int"},
			{Key: "user_agent", Label: "User Agent", Description: "Custom User-Agent string for HTTP requests. Leave empty for default.", Type: "string"},
			{Key: "proxy_url", Label: "Proxy URL", Description: "HTTP or SOCKS5 proxy URL (e.g. socks5://127.0.0.1:1080). Leave empty to use system default.", Type: "string"},
			{Key: "skip_tls_verification", Label: "Skip TLS Verification", Description: "Accept invalid certificates. Unsafe.", Type: "bool"},
			{Key: "speed_limit", Label: "Speed Limit", Description: "Per-download bandwidth cap in bytes per second. 0 disables the cap.", Type: "int64"},
			{Key: "worker_buffer_size", Label: "Worker Buffer Size", Description: "I/O buffer size per segment worker in bytes.", Type: "int"},
		},
		"Performance": {
			{Key: "progress_interval", Label: "Progress Interval", Description: "How often speed and progress are sampled (e.g., 1s).", Type: "duration"},
			{Key: "probe_timeout", Label: "Probe Timeout", Description: "Timeout for the metadata request (e.g., 30s).", Type: "duration"},
			{Key: "shutdown_timeout", Label: "Shutdown Timeout", Description: "How long to wait for downloads to pause on exit (e.g., 5s).", Type: "duration"},
		},
	}
}

// CategoryOrder returns the order of categories for UI tabs.
func CategoryOrder() []string {
	return []string{"General", "Network", "Performance"}
}

const (
	KB = 1024
	MB = 1024 * KB
)

const (
	minSegments = 1
	maxSegments = 16
)

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	defaultDir := filepath.Join(homeDir, "Downloads")

	return &Settings{
		General: GeneralSettings{
			DefaultDownloadDir: defaultDir,
			ClipboardPrefill:   true,
			Theme:              ThemeAdaptive,
			LogRetentionCount:  5,
		},
		Connections: ConnectionSettings{
			MaxConcurrentDownloads: 3,
			DefaultSegments:        4,
			UserAgent:              "", // Empty means use default UA
		},
		Chunks: ChunkSettings{
			WorkerBufferSize: 32 * KB,
		},
		Performance: PerformanceSettings{
			ProgressInterval: 1 * time.Second,
			ProbeTimeout:     30 * time.Second,
			ShutdownTimeout:  5 * time.Second,
		},
	}
}

// Validate clamps out-of-range values back into their allowed ranges.
func (s *Settings) Validate() {
	d := DefaultSettings()

	if s.Connections.MaxConcurrentDownloads < 1 {
		s.Connections.MaxConcurrentDownloads = 1
	}
	if s.Connections.DefaultSegments < minSegments {
		s.Connections.DefaultSegments = minSegments
	}
	if s.Connections.DefaultSegments > maxSegments {
		s.Connections.DefaultSegments = maxSegments
	}
	if s.Connections.SpeedLimit < 0 {
		s.Connections.SpeedLimit = 0
	}
	if s.Chunks.WorkerBufferSize <= 0 {
		s.Chunks.WorkerBufferSize = d.Chunks.WorkerBufferSize
	}
	if s.Performance.ProgressInterval <= 0 {
		s.Performance.ProgressInterval = d.Performance.ProgressInterval
	}
	if s.Performance.ProbeTimeout <= 0 {
		s.Performance.ProbeTimeout = d.Performance.ProbeTimeout
	}
	if s.Performance.ShutdownTimeout <= 0 {
		s.Performance.ShutdownTimeout = d.Performance.ShutdownTimeout
	}
	if s.General.LogRetentionCount < 1 {
		s.General.LogRetentionCount = d.General.LogRetentionCount
	}
	if s.General.Theme < ThemeAdaptive || s.General.Theme > ThemeDark {
		s.General.Theme = ThemeAdaptive
	}
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetTidalDir(), "settings.json")
}

// LoadSettings loads settings from disk. Returns defaults if file doesn't exist.
func LoadSettings() (*Settings, error) {
	return LoadSettingsFrom(GetSettingsPath())
}

// LoadSettingsFrom loads settings from an explicit path.
func LoadSettingsFrom(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings() // Start with defaults to fill any missing fields
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}
	settings.Validate()

	return settings, nil
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(s *Settings) error {
	return SaveSettingsTo(GetSettingsPath(), s)
}

// SaveSettingsTo saves settings to an explicit path atomically.
func SaveSettingsTo(path string, s *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// RuntimeConfig carries the engine-facing subset of Settings
type RuntimeConfig struct {
	UserAgent           string
	ProxyURL            string
	SkipTLSVerification bool
	SpeedLimit          int64
	WorkerBufferSize    int
	ProgressInterval    time.Duration
	ProbeTimeout        time.Duration
}

// ToRuntimeConfig creates a RuntimeConfig from user Settings
func (s *Settings) ToRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		UserAgent:           s.Connections.UserAgent,
		ProxyURL:            s.Connections.ProxyURL,
		SkipTLSVerification: s.Connections.SkipTLSVerification,
		SpeedLimit:          s.Connections.SpeedLimit,
		WorkerBufferSize:    s.Chunks.WorkerBufferSize,
		ProgressInterval:    s.Performance.ProgressInterval,
		ProbeTimeout:        s.Performance.ProbeTimeout,
	}
}
