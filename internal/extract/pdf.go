package extract

import (
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/syntheit/ledgerflow/internal/models"
)

// PDFExtractor shells out to pdftotext. It attempts a table-aware,
// layout-preserving pass first; if that yields no usable text it falls
// back to a plain per-page text pass.
type PDFExtractor struct {
	// PdftotextPath overrides the binary name for testing.
	PdftotextPath string
}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{PdftotextPath: "pdftotext"}
}

func (e *PDFExtractor) Extensions() []string { return []string{".pdf"} }

func (e *PDFExtractor) CanHandle(path, mime string) bool {
	return extOf(path) == ".pdf" || mime == "application/pdf"
}

func (e *PDFExtractor) Extract(path string) (*models.RawExtraction, error) {
	bin := e.PdftotextPath
	if bin == "" {
		bin = "pdftotext"
	}

	layoutText, layoutErr := e.run(bin, "-layout", path)
	rawText := layoutText
	usedFallback := false

	if layoutErr != nil || strings.TrimSpace(layoutText) == "" {
		plainText, err := e.run(bin, path)
		if err != nil {
			return nil, &models.ExtractionError{Reason: fmt.Sprintf("pdftotext failed: %v", err)}
		}
		rawText = plainText
		usedFallback = true
	}

	pages := splitFormFeed(rawText)
	var b strings.Builder
	tables := detectTables(pages)

	for i, page := range pages {
		fmt.Fprintf(&b, "--- Page %d ---\n", i+1)
		b.WriteString(page)
		b.WriteString("\n")
	}

	for _, t := range tables {
		b.WriteString(renderTable(t))
		b.WriteString("\n")
	}

	return &models.RawExtraction{
		RawText: b.String(),
		Tables:  tables,
		Metadata: map[string]any{
			"page_count":     len(pages),
			"used_fallback":  usedFallback,
			"table_detected": len(tables) > 0,
		},
	}, nil
}

func (e *PDFExtractor) run(bin string, args ...string) (string, error) {
	fullArgs := append(append([]string{}, args...), "-")
	cmd := exec.Command(bin, fullArgs...)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%v: %s", err, errOut.String())
	}
	return out.String(), nil
}

func splitFormFeed(text string) []string {
	pages := strings.Split(text, "\f")
	// Drop a single trailing empty page produced by a final form-feed.
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	if len(pages) == 0 {
		pages = []string{text}
	}
	return pages
}

var tableRowPattern = regexp.MustCompile(`(\S+(?:\s{2,}\S+){2,})`)

// detectTables applies a best-effort heuristic over -layout output: lines
// with 3+ whitespace-separated columns, repeated across 2+ consecutive
// lines, form one table; a page can yield several tables, indexed in order.
func detectTables(pages []string) []models.Table {
	var tables []models.Table

	for pageIdx, page := range pages {
		lines := strings.Split(page, "\n")
		var candidate [][]string
		tableIdx := 0

		flush := func() {
			if len(candidate) < 2 {
				candidate = nil
				return
			}
			headers := candidate[0]
			rows := candidate[1:]
			tables = append(tables, models.Table{
				Page:    pageIdx + 1,
				Index:   tableIdx,
				Headers: headers,
				Rows:    rows,
			})
			tableIdx++
			candidate = nil
		}

		for _, line := range lines {
			cols := splitColumns(line)
			if len(cols) >= 3 {
				candidate = append(candidate, cols)
			} else {
				flush()
			}
		}
		flush()
	}

	return tables
}

func splitColumns(line string) []string {
	matches := regexp.MustCompile(`\s{2,}`).Split(strings.TrimSpace(line), -1)
	var cols []string
	for _, m := range matches {
		if strings.TrimSpace(m) != "" {
			cols = append(cols, strings.TrimSpace(m))
		}
	}
	return cols
}

func renderTable(t models.Table) string {
	var b strings.Builder
	b.WriteString("| " + strings.Join(t.Headers, " | ") + " |\n")
	for _, row := range t.Rows {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return b.String()
}

// PageCount extracts the page count hint from extraction metadata.
func PageCount(meta map[string]any) int {
	if v, ok := meta["page_count"]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		case string:
			if i, err := strconv.Atoi(n); err == nil {
				return i
			}
		}
	}
	return 0
}
