// Package chunk decides whether a document needs to be split at all,
// then splits it with one of three strategies: transaction batches, page
// markers, or byte-bounded windows with overlap at sentence/newline
// boundaries.
package chunk

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/syntheit/ledgerflow/internal/models"
)

// Default knobs; maxChunks is a hard cap against pathological input.
const (
	DefaultMaxChunkSize            = 4000
	DefaultOverlap                 = 200
	DefaultMaxTransactionsPerChunk = 30
	maxChunks                      = 1000
	lookbackWindow                 = 500
)

// Params are the tunable chunker knobs, normally sourced from
// internal/config.
type Params struct {
	MaxChunkSize            int
	Overlap                 int
	MaxTransactionsPerChunk int
}

// DefaultParams returns the documented defaults.
func DefaultParams() Params {
	return Params{
		MaxChunkSize:            DefaultMaxChunkSize,
		Overlap:                 DefaultOverlap,
		MaxTransactionsPerChunk: DefaultMaxTransactionsPerChunk,
	}
}

var pageMarkerPattern = regexp.MustCompile(`--- Page \d+ ---`)

// ShouldChunk reports whether the document is large enough, in bytes or
// in detected transactions, to warrant splitting.
func ShouldChunk(rawText string, structured map[string]any, p Params) bool {
	if len(rawText) > 2*p.MaxChunkSize {
		return true
	}
	return detectedTransactionCount(structured) > p.MaxTransactionsPerChunk
}

// Chunk splits rawText/structured into chunks in document order:
// transaction batches when structured data carries a transactions array,
// page splits when page markers are present, byte-bounded windows
// otherwise.
func Chunk(rawText string, structured map[string]any, p Params) []models.Chunk {
	if txns := transactionsArray(structured); txns != nil {
		return chunkTransactions(txns, p)
	}
	if pageMarkerPattern.MatchString(rawText) {
		return chunkPages(rawText)
	}
	return chunkBySize(rawText, p)
}

func detectedTransactionCount(structured map[string]any) int {
	if txns := transactionsArray(structured); txns != nil {
		return len(txns)
	}
	return 0
}

func transactionsArray(structured map[string]any) []map[string]any {
	if structured == nil {
		return nil
	}
	if txns, ok := structured["transactions"].([]map[string]any); ok && len(txns) > 0 {
		return txns
	}
	return nil
}

func chunkTransactions(txns []map[string]any, p Params) []models.Chunk {
	batchSize := p.MaxTransactionsPerChunk
	if batchSize <= 0 {
		batchSize = DefaultMaxTransactionsPerChunk
	}

	var chunks []models.Chunk
	for start := 0; start < len(txns); start += batchSize {
		end := start + batchSize
		if end > len(txns) {
			end = len(txns)
		}
		batch := txns[start:end]
		chunks = append(chunks, models.Chunk{
			ChunkID:      len(chunks),
			ChunkType:    models.ChunkTransactions,
			Transactions: batch,
			StartIndex:   start,
			EndIndex:     end - 1,
			CharCount:    estimateBatchChars(batch),
		})
		if len(chunks) >= maxChunks {
			break
		}
	}
	return chunks
}

func estimateBatchChars(batch []map[string]any) int {
	total := 0
	for _, row := range batch {
		total += len(fmt.Sprint(row))
	}
	return total
}

// chunkPages splits on `--- Page N ---` markers, preserving any preamble
// before the first marker as chunk 0.
func chunkPages(rawText string) []models.Chunk {
	locs := pageMarkerPattern.FindAllStringIndex(rawText, -1)
	if len(locs) == 0 {
		return []models.Chunk{{ChunkID: 0, ChunkType: models.ChunkPages, Text: rawText, CharCount: len(rawText)}}
	}

	var chunks []models.Chunk
	if locs[0][0] > 0 {
		preamble := rawText[:locs[0][0]]
		if strings.TrimSpace(preamble) != "" {
			chunks = append(chunks, models.Chunk{
				ChunkID:   0,
				ChunkType: models.ChunkPages,
				Text:      preamble,
				CharCount: len(preamble),
			})
		}
	}

	for i, loc := range locs {
		start := loc[0]
		end := len(rawText)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		text := rawText[start:end]
		chunks = append(chunks, models.Chunk{
			ChunkID:   len(chunks),
			ChunkType: models.ChunkPages,
			Text:      text,
			CharCount: len(text),
		})
		if len(chunks) >= maxChunks {
			break
		}
	}

	return chunks
}

// chunkBySize advances by MaxChunkSize bytes, looking back up to
// lookbackWindow chars for a newline or ". " boundary before cutting, and
// begins the next chunk at end-overlap when that still makes forward
// progress.
func chunkBySize(rawText string, p Params) []models.Chunk {
	maxSize := p.MaxChunkSize
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	overlap := p.Overlap
	if overlap < 0 {
		overlap = 0
	}

	if len(rawText) <= maxSize {
		return []models.Chunk{{ChunkID: 0, ChunkType: models.ChunkSize, Text: rawText, CharCount: len(rawText)}}
	}

	var chunks []models.Chunk
	pos := 0
	for pos < len(rawText) && len(chunks) < maxChunks {
		end := pos + maxSize
		if end >= len(rawText) {
			end = len(rawText)
		} else {
			end = boundaryBefore(rawText, pos, end)
		}

		text := rawText[pos:end]
		chunks = append(chunks, models.Chunk{
			ChunkID:   len(chunks),
			ChunkType: models.ChunkSize,
			Text:      text,
			CharCount: len(text),
		})

		if end >= len(rawText) {
			break
		}

		next := end - overlap
		if next <= pos {
			next = end
		}
		pos = next
	}

	return chunks
}

// boundaryBefore looks back up to lookbackWindow chars from end for a
// newline or sentence-ending ". " and cuts there if found, else cuts
// exactly at end.
func boundaryBefore(text string, start, end int) int {
	lookbackStart := end - lookbackWindow
	if lookbackStart < start {
		lookbackStart = start
	}

	window := text[lookbackStart:end]

	if idx := strings.LastIndex(window, "\n"); idx >= 0 {
		return lookbackStart + idx + 1
	}
	if idx := strings.LastIndex(window, ". "); idx >= 0 {
		return lookbackStart + idx + 2
	}
	return end
}

// EstimatedProcessingTime returns the observability-only per-chunk
// processing-time estimate: pages 2s, transaction-batch 0.5s x count,
// size 3s.
func EstimatedProcessingTime(c models.Chunk) time.Duration {
	switch c.ChunkType {
	case models.ChunkPages:
		return 2 * time.Second
	case models.ChunkTransactions:
		return time.Duration(len(c.Transactions)) * 500 * time.Millisecond
	default:
		return 3 * time.Second
	}
}
