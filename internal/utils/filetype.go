package utils

import (
	"github.com/h2non/filetype"
)

// DetectKind sniffs the file header and returns its extension and MIME type.
// Unknown content yields empty strings.
func DetectKind(path string) (ext, mime string) {
	kind, err := filetype.MatchFile(path)
	if err != nil || kind == filetype.Unknown {
		return "", ""
	}
	return kind.Extension, kind.MIME.Value
}
