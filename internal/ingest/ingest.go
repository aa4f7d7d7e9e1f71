// Package ingest registers page images found on disk as pages of a document.
package ingest

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/libriscan/libriscan/constants"
)

// Result is the per-file import outcome.
type Result struct {
	SourcePath string    `json:"source_path"`
	ImagePath  string    `json:"image_path,omitempty"`
	PageID     uuid.UUID `json:"page_id,omitempty"`
	PageNumber int       `json:"page_number,omitempty"`
	HashHex    string    `json:"hash,omitempty"`
	Duplicate  bool      `json:"duplicate,omitempty"`
	Err        string    `json:"error,omitempty"`
}

// DirStats summarizes a directory import.
type DirStats struct {
	Scanned    uint32 `json:"scanned"`
	Matched    uint32 `json:"matched"`
	Succeeded  uint32 `json:"succeeded"`
	Duplicates uint32 `json:"duplicates"`
	Failed     uint32 `json:"failed"`
}

// AllowedExt reports whether ext names a page image the backends can read.
func AllowedExt(ext string) bool {
	return constants.IsImageExt(ext) || constants.IsHEICExt(ext)
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
