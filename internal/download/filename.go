package download

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// uniqueFilePath returns path unchanged when nothing occupies it, otherwise
// the first free "base(N).ext" sibling. An existing file and any path
// reported by taken count as occupied. A leftover temp file does not, so a
// re-added download picks it up and resumes.
func uniqueFilePath(path string, taken func(string) bool) string {
	if !occupied(path, taken) {
		return path
	}

	dir := filepath.Dir(path)
	base, ext := splitExt(filepath.Base(path))

	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s(%d)%s", base, i, ext))
		if !occupied(candidate, taken) {
			return candidate
		}
	}
}

// splitExt cuts name at its last dot. Names without a dot, or whose only dot
// leads the name, have no extension.
func splitExt(name string) (base, ext string) {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return name, ""
	}
	return name[:idx], name[idx:]
}

func occupied(path string, taken func(string) bool) bool {
	if _, err := os.Stat(path); err == nil {
		return true
	}
	return taken != nil && taken(path)
}
