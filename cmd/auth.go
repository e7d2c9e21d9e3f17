package cmd

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tidal-downloader/tidal/internal/config"
	"github.com/tidal-downloader/tidal/internal/utils"
)

const (
	tokenEnv = "TIDAL_TOKEN"
	hostEnv  = "TIDAL_HOST"
)

func tokenFilePath() string {
	return filepath.Join(config.GetRuntimeDir(), "token")
}

// ensureAuthToken returns the local daemon token, generating and storing a
// new one on first use.
func ensureAuthToken() string {
	path := tokenFilePath()
	if data, err := os.ReadFile(path); err == nil {
		if token := strings.TrimSpace(string(data)); token != "" {
			return token
		}
	}

	token := uuid.New().String()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		utils.Debug("Error creating token dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		utils.Debug("Error writing token file: %v", err)
	}
	return token
}

// requestToken extracts the bearer token. Browsers cannot set headers on a
// WebSocket upgrade, so a token query parameter is accepted too.
func requestToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}

// authMiddleware rejects requests without the daemon token. /health stays open
// so clients can probe for a running instance.
func authMiddleware(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		got := requestToken(r)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// resolveTokenForTarget picks the token for a daemon: flag, then
// environment, then the local token file for loopback targets only.
func resolveTokenForTarget(target string) (string, error) {
	if token := strings.TrimSpace(globalToken); token != "" {
		return token, nil
	}
	if token := strings.TrimSpace(os.Getenv(tokenEnv)); token != "" {
		return token, nil
	}
	if isLoopbackHost(hostnameFromTarget(target)) {
		return ensureAuthToken(), nil
	}
	return "", errors.New("no token provided. Use --token or set " + tokenEnv)
}
