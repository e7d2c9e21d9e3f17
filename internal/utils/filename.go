package utils

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/vfaronov/httpheader"
)

// FilenameFromURL derives a file name from the last path segment of rawURL.
// When no usable name exists it falls back to download_<unix millis>.
func FilenameFromURL(rawURL string) string {
	fallback := fmt.Sprintf("download_%d", time.Now().UnixMilli())

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	name := path.Base(parsed.Path)
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	name = SanitizeFilename(name)
	if name == "" || !strings.Contains(name, ".") {
		return fallback
	}
	return name
}

// FilenameFromHeader returns the file name advertised by Content-Disposition, if any.
func FilenameFromHeader(h http.Header) string {
	_, name, _ := httpheader.ContentDisposition(h)
	return SanitizeFilename(name)
}

// DetermineFilename prefers a server-provided name, usually from
// FilenameFromHeader, and falls back to the URL.
func DetermineFilename(rawURL, serverName string) string {
	if name := SanitizeFilename(serverName); name != "" {
		return name
	}
	return FilenameFromURL(rawURL)
}

// SanitizeFilename strips directory components and characters that are not
// valid in file names on common platforms.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(name)
}

// EnsureAbsPath resolves p against the working directory.
func EnsureAbsPath(p string) string {
	if p == "" {
		p = "."
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
