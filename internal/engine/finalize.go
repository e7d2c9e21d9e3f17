package engine

import (
	"io"
	"os"

	"github.com/tidal-downloader/tidal/internal/utils"
)

// finalizeFile moves the completed temp file into place. Rename is attempted
// first; when it fails (e.g. across devices) the content is copied instead.
// On failure the temp file is left untouched for manual recovery.
func finalizeFile(tempPath, finalPath string) error {
	err := os.Rename(tempPath, finalPath)
	if err == nil {
		return nil
	}
	utils.Debug("Rename %s failed, copying instead: %v", tempPath, err)

	if err := copyFile(tempPath, finalPath); err != nil {
		return err
	}
	_ = os.Remove(tempPath)
	return nil
}

// copyFile copies a file from src to dst (fallback when rename fails)
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if err := in.Close(); err != nil {
			utils.Debug("Error closing input file: %v", err)
		}
	}()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			utils.Debug("Error closing output file: %v", err)
		}
	}()

	buf := make([]byte, 1024*1024)
	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		_ = os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}
