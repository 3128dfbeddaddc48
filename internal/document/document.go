// Package document is the dispatch layer: a registry mapping file
// extension to the extractor that claims it, with no format knowledge of
// its own beyond routing and timing.
package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/syntheit/ledgerflow/internal/extract"
	"github.com/syntheit/ledgerflow/internal/models"
)

// DispatchRecord is the observability record emitted for every dispatch.
type DispatchRecord struct {
	ProcessingID     string
	FileName         string
	Extractor        string
	Status           string
	ProcessingTime   time.Duration
	ExtractionResult *models.RawExtraction
	Err              error
	StartedAt        time.Time
	CompletedAt      time.Time
}

// Registry holds the extension-to-extractor table. It is built once at
// startup and is safe for concurrent use since every method is read-only
// after construction.
type Registry struct {
	extractors []extract.Extractor
	maxBytes   int64
}

// NewRegistry wires the three format extractors. The caller supplies the
// OCR engine; the registry does not construct external services on its
// own.
func NewRegistry(ocr extract.OCREngine, maxFileSizeBytes int64) *Registry {
	maxBytes := maxFileSizeBytes
	if maxBytes <= 0 {
		maxBytes = extract.MaxFileSizeBytes
	}
	return &Registry{
		extractors: []extract.Extractor{
			extract.NewPDFExtractor(),
			extract.NewImageExtractor(ocr),
			extract.NewSpreadsheetExtractor(),
		},
		maxBytes: maxBytes,
	}
}

// Dispatch validates the file, finds the extractor that claims it, runs it
// under a stopwatch, and returns a DispatchRecord. An unroutable file
// (extension/MIME claimed by no extractor) is reported as a dispatch error,
// not as an ExtractionError, since no format-specific work was ever
// attempted.
func (r *Registry) Dispatch(path, mime string, processingID string) DispatchRecord {
	started := time.Now()
	rec := DispatchRecord{
		ProcessingID: processingID,
		FileName:     fileName(path),
		StartedAt:    started,
	}

	if err := extract.Validate(path, r.maxBytes); err != nil {
		rec.Status = "failed"
		rec.Err = err
		rec.CompletedAt = time.Now()
		rec.ProcessingTime = rec.CompletedAt.Sub(started)
		return rec
	}

	ext, ok := r.find(path, mime)
	if !ok {
		rec.Status = "failed"
		rec.Err = fmt.Errorf("no extractor claims file %s (mime %s)", path, mime)
		rec.CompletedAt = time.Now()
		rec.ProcessingTime = rec.CompletedAt.Sub(started)
		return rec
	}
	rec.Extractor = extractorName(ext)

	result, err := ext.Extract(path)
	rec.CompletedAt = time.Now()
	rec.ProcessingTime = rec.CompletedAt.Sub(started)

	if err != nil {
		rec.Status = "failed"
		rec.Err = err
		return rec
	}

	rec.Status = "completed"
	rec.ExtractionResult = result
	return rec
}

func (r *Registry) find(path, mime string) (extract.Extractor, bool) {
	for _, e := range r.extractors {
		if e.CanHandle(path, mime) {
			return e, true
		}
	}
	return nil, false
}

func extractorName(e extract.Extractor) string {
	switch e.(type) {
	case *extract.PDFExtractor:
		return "pdf"
	case *extract.ImageExtractor:
		return "image"
	case *extract.SpreadsheetExtractor:
		return "spreadsheet"
	default:
		return "unknown"
	}
}

func fileName(path string) string {
	if i := strings.LastIndexAny(path, "/\\"); i >= 0 {
		return path[i+1:]
	}
	return path
}
