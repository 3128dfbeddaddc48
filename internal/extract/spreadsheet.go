package extract

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/syntheit/ledgerflow/internal/models"
)

// SpreadsheetExtractor reads the first sheet of an Excel workbook or an
// auto-detected-encoding CSV/delimited file.
type SpreadsheetExtractor struct{}

func NewSpreadsheetExtractor() *SpreadsheetExtractor { return &SpreadsheetExtractor{} }

func (e *SpreadsheetExtractor) Extensions() []string {
	return []string{".csv", ".tsv", ".xlsx", ".xls"}
}

func (e *SpreadsheetExtractor) CanHandle(path, mime string) bool {
	ext := extOf(path)
	for _, supported := range e.Extensions() {
		if ext == supported {
			return true
		}
	}
	return strings.Contains(mime, "spreadsheet") || strings.Contains(mime, "csv")
}

func (e *SpreadsheetExtractor) Extract(path string) (*models.RawExtraction, error) {
	ext := extOf(path)

	var columns []string
	var records [][]string
	var err error

	switch ext {
	case ".xlsx", ".xls":
		columns, records, err = readExcel(path)
	default:
		columns, records, err = readCSV(path)
	}
	if err != nil {
		return nil, &models.ExtractionError{Reason: err.Error()}
	}

	columnRoles := detectColumnRoles(columns)
	columnTypes := inferColumnTypes(columns, records)

	dataRecords, _ := dropDuplicateHeaderRow(columns, records)

	isMulti := countRowsWithDateAndAmount(dataRecords, columnRoles) >= 3
	isExpenseSheet := isLikelyExpenseSheet(columnRoles)

	rawText := renderPretty(columns, dataRecords)

	recordMaps := make([]map[string]any, 0, len(dataRecords))
	for _, row := range dataRecords {
		m := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(row) {
				m[col] = row[i]
			}
		}
		recordMaps = append(recordMaps, m)
	}

	var detectedTxRows []map[string]any
	if isMulti {
		detectedTxRows = extractTransactionRows(columns, dataRecords, columnRoles)
	}

	return &models.RawExtraction{
		RawText: rawText,
		StructuredData: map[string]any{
			"columns":                      columns,
			"column_types":                 columnTypes,
			"records":                      recordMaps,
			"detected_transaction_columns": columnRoles,
			"is_likely_expense_sheet":      isExpenseSheet,
			"is_multi_transaction":         isMulti,
			"transactions":                 detectedTxRows,
		},
	}, nil
}

func readExcel(path string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("sheet %s is empty", sheets[0])
	}

	return rows[0], rows[1:], nil
}

// readCSV decodes with utf-8, latin-1, iso-8859-1, cp1252 tried in that
// order.
func readCSV(path string) ([]string, [][]string, error) {
	raw, err := readAll(path)
	if err != nil {
		return nil, nil, err
	}

	decoded, err := decodeBestEffort(raw)
	if err != nil {
		return nil, nil, err
	}

	r := csv.NewReader(strings.NewReader(decoded))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse CSV: %w", err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("CSV file is empty")
	}

	return all[0], all[1:], nil
}

func readAll(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func decodeBestEffort(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}

	for _, cm := range []*charmap.Charmap{charmap.ISO8859_1, charmap.Windows1252} {
		if decoded, _, err := transform.Bytes(cm.NewDecoder(), raw); err == nil {
			return string(decoded), nil
		}
	}

	return string(raw), nil
}

var (
	dateColumnNames     = []string{"date", "transaction_date", "trans_date", "datetime", "timestamp"}
	amountColumnNames   = []string{"amount", "total", "price", "cost", "value", "sum", "debit", "credit"}
	vendorColumnNames   = []string{"vendor", "merchant", "supplier", "company", "store", "payee"}
	descColumnNames     = []string{"description", "memo", "note", "details", "comment"}
	categoryColumnNames = []string{"category", "type", "class", "classification"}
)

// detectColumnRoles matches header names by case-insensitive substring,
// returning the header name matched for each recognized role (empty
// string if none matched).
func detectColumnRoles(headers []string) map[string]string {
	roles := map[string]string{"date": "", "amount": "", "vendor": "", "description": "", "category": ""}

	for _, h := range headers {
		lower := strings.ToLower(strings.TrimSpace(h))
		if roles["date"] == "" && containsAny(lower, dateColumnNames) {
			roles["date"] = h
		}
		if roles["amount"] == "" && containsAny(lower, amountColumnNames) {
			roles["amount"] = h
		}
		if roles["vendor"] == "" && containsAny(lower, vendorColumnNames) {
			roles["vendor"] = h
		}
		if roles["description"] == "" && containsAny(lower, descColumnNames) {
			roles["description"] = h
		}
		if roles["category"] == "" && containsAny(lower, categoryColumnNames) {
			roles["category"] = h
		}
	}

	return roles
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func isLikelyExpenseSheet(roles map[string]string) bool {
	count := 0
	for _, v := range roles {
		if v != "" {
			count++
		}
	}
	return count >= 3
}

func inferColumnTypes(headers []string, records [][]string) map[string]string {
	types := make(map[string]string, len(headers))
	for i, h := range headers {
		isNumeric := true
		isDate := true
		sampleCount := 0
		for _, row := range records {
			if i >= len(row) {
				continue
			}
			v := strings.TrimSpace(row[i])
			if v == "" {
				continue
			}
			sampleCount++
			if _, err := cleanAmount(v); err != nil {
				isNumeric = false
			}
			if _, err := coerceISODate(v); err != nil {
				isDate = false
			}
			if sampleCount >= 20 {
				break
			}
		}
		switch {
		case sampleCount == 0:
			types[h] = "unknown"
		case isDate:
			types[h] = "date"
		case isNumeric:
			types[h] = "numeric"
		default:
			types[h] = "text"
		}
	}
	return types
}

// dropDuplicateHeaderRow discards a re-embedded header row: the first data
// row that itself scores >= 2 on the header vocabulary with >= 5 rows
// following it.
func dropDuplicateHeaderRow(headers []string, records [][]string) ([][]string, bool) {
	if len(records) == 0 {
		return records, false
	}

	first := records[0]
	score := 0
	for _, cell := range first {
		lower := strings.ToLower(strings.TrimSpace(cell))
		if containsAny(lower, dateColumnNames) || containsAny(lower, amountColumnNames) ||
			containsAny(lower, vendorColumnNames) || containsAny(lower, descColumnNames) ||
			containsAny(lower, categoryColumnNames) {
			score++
		}
	}

	if score >= 2 && len(records)-1 >= 5 {
		return records[1:], true
	}

	return records, false
}

// countRowsWithDateAndAmount scans every cell rather than trusting column
// roles, since date/amount values sometimes land in unlabeled columns.
func countRowsWithDateAndAmount(records [][]string, _ map[string]string) int {
	count := 0
	for _, row := range records {
		hasDate, hasAmount := false, false
		for _, v := range row {
			if v == "" {
				continue
			}
			if looksLikeDateCell(v) {
				if _, err := coerceISODate(v); err == nil {
					hasDate = true
				}
			}
			if looksLikeAmountCell(v) {
				if _, err := cleanAmount(v); err == nil {
					hasAmount = true
				}
			}
		}
		if hasDate && hasAmount {
			count++
		}
	}
	return count
}

func looksLikeDateCell(v string) bool {
	return regexp.MustCompile(`\d{1,4}[-/]\d{1,2}[-/]\d{1,4}`).MatchString(v)
}

func looksLikeAmountCell(v string) bool {
	return regexp.MustCompile(`^\(?-?\$?[\d,]+\.?\d*\)?$`).MatchString(strings.TrimSpace(v))
}

// cleanAmount strips currency symbols/commas and converts parenthesized
// negatives, e.g. "(1.23)" -> -1.23.
func cleanAmount(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimPrefix(s, "-")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if negative {
		v = -v
	}
	return v, nil
}

var dateLayouts = []string{
	"2006-01-02", "01/02/2006", "1/2/2006", "01-02-2006",
	"Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "02-Jan-2006",
}

// coerceISODate parses common date representations and returns them as
// YYYY-MM-DD.
func coerceISODate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unrecognized date format: %q", raw)
}

// extractTransactionRows produces per-row transaction maps for
// multi-transaction sheets: amounts cleaned, dates coerced, empty rows
// dropped.
func extractTransactionRows(headers []string, records [][]string, roles map[string]string) []map[string]any {
	dateIdx := columnIndex(headers, roles["date"])
	amountIdx := columnIndex(headers, roles["amount"])
	vendorIdx := columnIndex(headers, roles["vendor"])
	descIdx := columnIndex(headers, roles["description"])
	categoryIdx := columnIndex(headers, roles["category"])

	var out []map[string]any
	for _, row := range records {
		if isEmptyRow(row) {
			continue
		}

		tx := map[string]any{}

		if dateIdx >= 0 && dateIdx < len(row) {
			if iso, err := coerceISODate(row[dateIdx]); err == nil {
				tx["date"] = iso
			}
		}
		if amountIdx >= 0 && amountIdx < len(row) {
			if amt, err := cleanAmount(row[amountIdx]); err == nil {
				tx["amount"] = amt
			}
		}
		if vendorIdx >= 0 && vendorIdx < len(row) {
			tx["vendor"] = strings.TrimSpace(row[vendorIdx])
		}
		if descIdx >= 0 && descIdx < len(row) {
			tx["description"] = strings.TrimSpace(row[descIdx])
		}
		if categoryIdx >= 0 && categoryIdx < len(row) {
			tx["category"] = strings.TrimSpace(row[categoryIdx])
		}

		if len(tx) > 0 {
			out = append(out, tx)
		}
	}
	return out
}

func columnIndex(headers []string, name string) int {
	if name == "" {
		return -1
	}
	for i, h := range headers {
		if h == name {
			return i
		}
	}
	return -1
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func renderPretty(headers []string, records [][]string) string {
	var b strings.Builder
	b.WriteString(strings.Join(headers, " | "))
	b.WriteString("\n")
	for _, row := range records {
		b.WriteString(strings.Join(row, " | "))
		b.WriteString("\n")
	}
	return b.String()
}
