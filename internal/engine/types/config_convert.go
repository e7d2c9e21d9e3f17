package types

import "github.com/tidal-downloader/tidal/internal/config"

// ConvertRuntimeConfig converts the app-level RuntimeConfig to the engine-level RuntimeConfig.
func ConvertRuntimeConfig(rc *config.RuntimeConfig) *RuntimeConfig {
	if rc == nil {
		return nil
	}
	return &RuntimeConfig{
		UserAgent:           rc.UserAgent,
		ProxyURL:            rc.ProxyURL,
		SkipTLSVerification: rc.SkipTLSVerification,
		SpeedLimit:          rc.SpeedLimit,
		WorkerBufferSize:    rc.WorkerBufferSize,
		ProgressInterval:    rc.ProgressInterval,
		ProbeTimeout:        rc.ProbeTimeout,
	}
}
