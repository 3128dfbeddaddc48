// Package extract implements the per-format adapters: PDF (text + table),
// image (OCR), and spreadsheet/CSV, each producing a uniform
// RawExtraction. Validation is a shared helper applied before any
// format-specific work.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/syntheit/ledgerflow/internal/models"
)

// MaxFileSizeBytes is the default upload cap (50 MB); callers may
// override via Validate's maxBytes parameter when config differs.
const MaxFileSizeBytes = 50 * 1024 * 1024

// Extractor is the sum-type-by-interface every format adapter implements.
type Extractor interface {
	// CanHandle reports whether this extractor claims the given file based
	// on its extension/MIME.
	CanHandle(path, mime string) bool
	// Extract performs format-specific extraction; callers must Validate
	// first, Extract does not re-validate.
	Extract(path string) (*models.RawExtraction, error)
	// Extensions lists the file extensions (lowercase, with leading dot)
	// this extractor claims.
	Extensions() []string
}

// Validate applies the checks common to every extractor before any
// format-specific work begins: existence, regular file, readable,
// non-empty, and within maxBytes.
func Validate(path string, maxBytes int64) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &models.ExtractionError{Reason: fmt.Sprintf("file does not exist: %s", path)}
		}
		return &models.ExtractionError{Reason: fmt.Sprintf("cannot stat file: %v", err)}
	}

	if !info.Mode().IsRegular() {
		return &models.ExtractionError{Reason: fmt.Sprintf("not a regular file: %s", path)}
	}

	if info.Size() == 0 {
		return &models.ExtractionError{Reason: fmt.Sprintf("file is empty: %s", path)}
	}

	if maxBytes > 0 && info.Size() > maxBytes {
		return &models.ExtractionError{Reason: fmt.Sprintf("file exceeds maximum size of %d bytes: %s", maxBytes, path)}
	}

	f, err := os.Open(path)
	if err != nil {
		return &models.ExtractionError{Reason: fmt.Sprintf("file is not readable: %v", err)}
	}
	f.Close()

	return nil
}

func extOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
