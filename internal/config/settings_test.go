package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultSettings(t *testing.T) {
	settings := DefaultSettings()

	if settings == nil {
		t.Fatal("DefaultSettings returned nil")
	}

	t.Run("GeneralSettings", func(t *testing.T) {
		if settings.General.DefaultDownloadDir == "" {
			t.Error("Default download directory should not be empty")
		}
		if !strings.Contains(strings.ToLower(settings.General.DefaultDownloadDir), "downloads") {
			t.Errorf("Default download dir should contain 'Downloads', got: %s", settings.General.DefaultDownloadDir)
		}
		if settings.General.LogRetentionCount != 5 {
			t.Errorf("LogRetentionCount = %d, want 5", settings.General.LogRetentionCount)
		}
	})

	t.Run("ConnectionSettings", func(t *testing.T) {
		if settings.Connections.MaxConcurrentDownloads != 3 {
			t.Errorf("MaxConcurrentDownloads = %d, want 3", settings.Connections.MaxConcurrentDownloads)
		}
		if settings.Connections.DefaultSegments != 4 {
			t.Errorf("DefaultSegments = %d, want 4", settings.Connections.DefaultSegments)
		}
		if settings.Connections.SpeedLimit != 0 {
			t.Errorf("SpeedLimit should be unlimited by default, got %d", settings.Connections.SpeedLimit)
		}
		if settings.Connections.SkipTLSVerification {
			t.Error("SkipTLSVerification should be false by default")
		}
	})

	t.Run("PerformanceSettings", func(t *testing.T) {
		if settings.Performance.ProgressInterval != time.Second {
			t.Errorf("ProgressInterval = %v, want 1s", settings.Performance.ProgressInterval)
		}
		if settings.Performance.ShutdownTimeout != 5*time.Second {
			t.Errorf("ShutdownTimeout = %v, want 5s", settings.Performance.ShutdownTimeout)
		}
		if settings.Chunks.WorkerBufferSize <= 0 {
			t.Errorf("WorkerBufferSize should be positive, got: %d", settings.Chunks.WorkerBufferSize)
		}
	})
}

func TestDefaultSettings_Consistency(t *testing.T) {
	s1 := DefaultSettings()
	s2 := DefaultSettings()

	if s1 == s2 {
		t.Error("DefaultSettings should return new instance each time")
	}
	if s1.Connections.MaxConcurrentDownloads != s2.Connections.MaxConcurrentDownloads {
		t.Error("Default settings should be consistent")
	}
}

func TestValidate_Clamps(t *testing.T) {
	s := DefaultSettings()
	s.Connections.MaxConcurrentDownloads = 0
	s.Connections.DefaultSegments = 99
	s.Connections.SpeedLimit = -10
	s.Chunks.WorkerBufferSize = -1
	s.Performance.ProgressInterval = 0
	s.General.Theme = 42

	s.Validate()

	if s.Connections.MaxConcurrentDownloads != 1 {
		t.Errorf("MaxConcurrentDownloads = %d, want 1", s.Connections.MaxConcurrentDownloads)
	}
	if s.Connections.DefaultSegments != 16 {
		t.Errorf("DefaultSegments = %d, want 16", s.Connections.DefaultSegments)
	}
	if s.Connections.SpeedLimit != 0 {
		t.Errorf("SpeedLimit = %d, want 0", s.Connections.SpeedLimit)
	}
	if s.Chunks.WorkerBufferSize != 32*KB {
		t.Errorf("WorkerBufferSize = %d, want %d", s.Chunks.WorkerBufferSize, 32*KB)
	}
	if s.Performance.ProgressInterval != time.Second {
		t.Errorf("ProgressInterval = %v, want 1s", s.Performance.ProgressInterval)
	}
	if s.General.Theme != ThemeAdaptive {
		t.Errorf("Theme = %d, want adaptive", s.General.Theme)
	}

	s.Connections.DefaultSegments = 0
	s.Validate()
	if s.Connections.DefaultSegments != 1 {
		t.Errorf("DefaultSegments = %d, want 1", s.Connections.DefaultSegments)
	}
}

func TestGetSettingsPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnv, home)

	path := GetSettingsPath()
	if !strings.HasPrefix(path, GetTidalDir()) {
		t.Errorf("Settings path should be under app dir. Path: %s, Dir: %s", path, GetTidalDir())
	}
	if filepath.Base(path) != "settings.json" {
		t.Errorf("Settings path should end with 'settings.json', got: %s", path)
	}
}

func TestDirs_FollowHomeEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnv, home)

	if GetTidalDir() != home {
		t.Fatalf("GetTidalDir = %s, want %s", GetTidalDir(), home)
	}
	if err := EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, dir := range []string{GetStateDir(), GetLogsDir(), GetRuntimeDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s to exist", dir)
		}
	}
}

func TestSaveAndLoadSettings(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "settings.json")

	original := DefaultSettings()
	original.General.DefaultDownloadDir = tmpDir
	original.General.ClipboardPrefill = false
	original.Connections.MaxConcurrentDownloads = 7
	original.Connections.DefaultSegments = 8
	original.Connections.UserAgent = "TestAgent/1.0"
	original.Connections.ProxyURL = "socks5://127.0.0.1:1080"
	original.Connections.SpeedLimit = 256 * KB
	original.Performance.ProbeTimeout = 10 * time.Second

	if err := SaveSettingsTo(path, original); err != nil {
		t.Fatalf("SaveSettingsTo: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary settings file should have been renamed")
	}

	loaded, err := LoadSettingsFrom(path)
	if err != nil {
		t.Fatalf("LoadSettingsFrom: %v", err)
	}

	if loaded.General.DefaultDownloadDir != original.General.DefaultDownloadDir {
		t.Errorf("DefaultDownloadDir mismatch: got %q, want %q",
			loaded.General.DefaultDownloadDir, original.General.DefaultDownloadDir)
	}
	if loaded.General.ClipboardPrefill {
		t.Error("ClipboardPrefill mismatch")
	}
	if loaded.Connections.MaxConcurrentDownloads != 7 {
		t.Errorf("MaxConcurrentDownloads mismatch: got %d", loaded.Connections.MaxConcurrentDownloads)
	}
	if loaded.Connections.DefaultSegments != 8 {
		t.Errorf("DefaultSegments mismatch: got %d", loaded.Connections.DefaultSegments)
	}
	if loaded.Connections.ProxyURL != original.Connections.ProxyURL {
		t.Error("ProxyURL mismatch")
	}
	if loaded.Connections.SpeedLimit != original.Connections.SpeedLimit {
		t.Error("SpeedLimit mismatch")
	}
	if loaded.Performance.ProbeTimeout != 10*time.Second {
		t.Error("ProbeTimeout mismatch")
	}
}

func TestLoadSettings_MissingFile(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if settings.Connections.MaxConcurrentDownloads != 3 {
		t.Error("Should return default settings when file is missing")
	}
}

func TestLoadSettings_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"connections":{"max_concurrent_downloads":5}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	settings, err := LoadSettingsFrom(path)
	if err != nil {
		t.Fatalf("LoadSettingsFrom: %v", err)
	}
	if settings.Connections.MaxConcurrentDownloads != 5 {
		t.Errorf("MaxConcurrentDownloads = %d, want 5", settings.Connections.MaxConcurrentDownloads)
	}
	if settings.Connections.DefaultSegments != 4 {
		t.Errorf("DefaultSegments = %d, want default 4", settings.Connections.DefaultSegments)
	}
}

func TestLoadSettings_CorruptedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.json")
	if err := os.WriteFile(path, []byte("{invalid json"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, err := LoadSettingsFrom(path); err == nil {
		t.Error("Expected error when loading invalid JSON")
	}
}

func TestToRuntimeConfig(t *testing.T) {
	s := DefaultSettings()
	s.Connections.UserAgent = "agent"
	s.Connections.SpeedLimit = 1000
	s.Chunks.WorkerBufferSize = 4096

	rc := s.ToRuntimeConfig()
	if rc.UserAgent != "agent" || rc.SpeedLimit != 1000 || rc.WorkerBufferSize != 4096 {
		t.Errorf("unexpected runtime config: %+v", rc)
	}
	if rc.ProgressInterval != s.Performance.ProgressInterval {
		t.Error("ProgressInterval not copied")
	}
}

func TestSettingsMetadata_CoversCategories(t *testing.T) {
	meta := GetSettingsMetadata()
	for _, cat := range CategoryOrder() {
		if len(meta[cat]) == 0 {
			t.Errorf("category %s has no settings", cat)
		}
	}
}
