// Package llmclient drives per-chunk structured extraction through an
// OpenAI-compatible chat completions endpoint: JSON-mode response_format,
// bearer auth, bounded retry with backoff, and a cleanup chain (manual
// fixes, json-repair, balanced-brace fallback) for malformed replies.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	jsonrepair "github.com/RealAlexandreAI/json-repair"

	"github.com/syntheit/ledgerflow/internal/models"
)

const (
	maxRetries          = 3
	baseBackoff         = 1 * time.Second
	requestTimeout      = 30 * time.Second
	maxPromptChars      = 8000
	extractionMaxTokens = 2000
)

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

// NewClient constructs a Client; temperature is clamped to 0.3 so
// extraction stays deterministic.
func NewClient(baseURL, apiKey, model string, maxTokens int, temperature float64) *Client {
	if temperature > 0.3 {
		temperature = 0.3
	}
	if maxTokens <= 0 {
		maxTokens = extractionMaxTokens
	}
	return &Client{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		HTTPClient:  &http.Client{Timeout: requestTimeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Extract runs one chunk through the LLM and returns the extraction
// outcome. forceMulti instructs the prompt to require array output and
// auto-wraps a single-object reply into a one-element array.
func (c *Client) Extract(ctx context.Context, chunk models.Chunk, documentType string, categoryListing string, forceMulti bool) models.ExtractionOutcome {
	prompt := buildPrompt(chunk, documentType, categoryListing, forceMulti)

	raw, err := c.callWithRetry(ctx, prompt)
	if err != nil {
		return models.ExtractionOutcome{Single: errorRecord(err.Error())}
	}

	cleaned := cleanAndRepair(raw)

	if forceMulti {
		multi, ok := parseMulti(cleaned)
		if ok {
			return models.ExtractionOutcome{Multi: &multi}
		}
		if record, ok := parseSingle(cleaned); ok {
			return models.ExtractionOutcome{Multi: &models.MultiTransactionResult{
				ExtractionType:       "multi_transaction",
				Transactions:         []models.ExtractedRecord{record},
				TotalRawTransactions: 1,
				ValidTransactions:    1,
			}}
		}
		return models.ExtractionOutcome{Single: errorRecord("failed to parse LLM response as JSON")}
	}

	if record, ok := parseSingle(cleaned); ok {
		return models.ExtractionOutcome{Single: &record}
	}
	if multi, ok := parseMulti(cleaned); ok {
		return models.ExtractionOutcome{Multi: &multi}
	}

	return models.ExtractionOutcome{Single: errorRecord("failed to parse LLM response as JSON")}
}

func errorRecord(reason string) *models.ExtractedRecord {
	return &models.ExtractedRecord{
		ExtractionError: reason,
		FieldConfidence: map[string]float64{},
	}
}

// callWithRetry retries up to 3 times on transport or decode failure
// with exponential backoff.
func (c *Client) callWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(baseBackoff * time.Duration(1<<uint(attempt-1))):
			}
		}

		resp, err := c.callOnce(ctx, prompt)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}
	return "", lastErr
}

func (c *Client) callOnce(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a financial document extraction assistant. Always return valid JSON."},
			{Role: "user", Content: prompt},
		},
		Temperature:    c.Temperature,
		MaxTokens:      c.MaxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewBuffer(data))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to connect to LLM provider: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read LLM response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("LLM provider failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode LLM response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("LLM response contained no choices")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	if strings.Contains(s, "failed to connect") {
		return true
	}
	if strings.Contains(s, "timeout") {
		return true
	}
	if strings.Contains(s, "status 5") {
		return true
	}
	if strings.Contains(s, "failed to decode") {
		return true
	}
	return false
}

// cleanAndRepair chains markdown-fence stripping, trailing-comma removal,
// missing-comma stitching, a json-repair pass, and finally a
// balanced-brace fallback.
func cleanAndRepair(raw string) string {
	cleaned := cleanJSONResponse(raw)
	cleaned = stripTrailingCommas(cleaned)
	cleaned = stitchMissingCommas(cleaned)

	if json.Valid([]byte(cleaned)) {
		return cleaned
	}

	if repaired, err := jsonrepair.RepairJSON(cleaned); err == nil && json.Valid([]byte(repaired)) {
		return repaired
	}

	if balanced := largestBalancedBraces(cleaned); balanced != "" && json.Valid([]byte(balanced)) {
		return balanced
	}

	return cleaned
}

// cleanJSONResponse strips markdown fences, else finds the outermost
// array/object boundary.
func cleanJSONResponse(input string) string {
	res := strings.TrimSpace(input)

	startIdx := strings.Index(res, "```json")
	if startIdx != -1 {
		endIdx := strings.LastIndex(res, "```")
		if endIdx > startIdx+7 {
			return strings.TrimSpace(res[startIdx+7 : endIdx])
		}
	}

	startIdx = strings.Index(res, "```")
	if startIdx != -1 {
		endIdx := strings.LastIndex(res, "```")
		if endIdx > startIdx+3 {
			block := strings.TrimSpace(res[startIdx+3 : endIdx])
			if (strings.HasPrefix(block, "[") && strings.HasSuffix(block, "]")) ||
				(strings.HasPrefix(block, "{") && strings.HasSuffix(block, "}")) {
				return block
			}
		}
	}

	firstBracket := strings.Index(res, "[")
	lastBracket := strings.LastIndex(res, "]")
	firstBrace := strings.Index(res, "{")
	lastBrace := strings.LastIndex(res, "}")

	isArr := firstBracket != -1 && lastBracket > firstBracket
	isObj := firstBrace != -1 && lastBrace > firstBrace

	if isArr && (!isObj || firstBracket < firstBrace) && lastBracket > lastBrace {
		return strings.TrimSpace(res[firstBracket : lastBracket+1])
	} else if isObj && (!isArr || firstBrace < firstBracket) && lastBrace > lastBracket {
		return strings.TrimSpace(res[firstBrace : lastBrace+1])
	}

	return res
}

var trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)

func stripTrailingCommas(s string) string {
	return trailingCommaPattern.ReplaceAllString(s, "$1")
}

var missingCommaPattern = regexp.MustCompile(`([}\]"\d])(\s*)\n(\s*)(["{\[])`)

// stitchMissingCommas inserts a comma between adjacent JSON tokens that are
// missing one across a newline, a common truncated-stream artifact.
func stitchMissingCommas(s string) string {
	return missingCommaPattern.ReplaceAllString(s, "$1,$2\n$3$4")
}

// largestBalancedBraces extracts the largest balanced {...} span, the
// last-resort fallback when cleanup and json-repair both fail.
func largestBalancedBraces(s string) string {
	bestStart, bestEnd := -1, -1
	depth := 0
	start := -1

	for i, r := range s {
		switch r {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					if i-start > bestEnd-bestStart {
						bestStart, bestEnd = start, i
					}
				}
			}
		}
	}

	if bestStart == -1 {
		return ""
	}
	return s[bestStart : bestEnd+1]
}

// extractedRecordWire keeps every field as raw JSON so one mistyped
// field can never fail the whole record; coercion (invalid field ->
// null, confidence 0.5) is applied per field in coerceRecord.
type extractedRecordWire struct {
	Vendor          json.RawMessage `json:"vendor"`
	Amount          json.RawMessage `json:"amount"`
	Currency        json.RawMessage `json:"currency"`
	Date            json.RawMessage `json:"date"`
	Description     json.RawMessage `json:"description"`
	Category        json.RawMessage `json:"category"`
	PaymentMethod   json.RawMessage `json:"payment_method"`
	RecipientID     json.RawMessage `json:"recipient_id"`
	IsIncome        json.RawMessage `json:"is_income"`
	LineItems       json.RawMessage `json:"line_items"`
	FieldConfidence json.RawMessage `json:"field_confidence"`
}

func parseSingle(cleaned string) (models.ExtractedRecord, bool) {
	var wire extractedRecordWire
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return models.ExtractedRecord{}, false
	}
	return coerceRecord(wire), true
}

type multiWire struct {
	Transactions         []extractedRecordWire `json:"transactions"`
	TotalRawTransactions json.RawMessage       `json:"total_raw_transactions"`
	ValidTransactions    json.RawMessage       `json:"valid_transactions"`
}

func parseMulti(cleaned string) (models.MultiTransactionResult, bool) {
	var wire multiWire
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return models.MultiTransactionResult{}, false
	}
	if wire.Transactions == nil {
		return models.MultiTransactionResult{}, false
	}

	records := make([]models.ExtractedRecord, 0, len(wire.Transactions))
	for i, w := range wire.Transactions {
		r := coerceRecord(w)
		r.TransactionIdx = i
		records = append(records, r)
	}

	return models.MultiTransactionResult{
		ExtractionType:       "multi_transaction",
		Transactions:         records,
		TotalRawTransactions: coerceCount(wire.TotalRawTransactions),
		ValidTransactions:    coerceCount(wire.ValidTransactions),
	}, true
}

// coerceCount accepts a JSON number or numeric string; anything else
// reads as 0 (unknown).
func coerceCount(raw json.RawMessage) int {
	if len(raw) == 0 || isJSONNull(raw) {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return v
		}
	}
	return 0
}

// coerceRecord applies the per-field discipline: each field is coerced
// independently, and any field that fails coercion is nulled with its
// confidence set to 0.5 while the rest of the record survives.
func coerceRecord(w extractedRecordWire) models.ExtractedRecord {
	r := models.ExtractedRecord{FieldConfidence: map[string]float64{}}

	if len(w.FieldConfidence) > 0 && !isJSONNull(w.FieldConfidence) {
		var fc map[string]float64
		if err := json.Unmarshal(w.FieldConfidence, &fc); err == nil && fc != nil {
			r.FieldConfidence = fc
		}
	}

	r.Vendor = coerceString(w.Vendor, "vendor", r.FieldConfidence)
	r.Date = coerceString(w.Date, "date", r.FieldConfidence)
	r.Description = coerceString(w.Description, "description", r.FieldConfidence)
	r.Category = coerceString(w.Category, "category", r.FieldConfidence)
	r.PaymentMethod = coerceString(w.PaymentMethod, "payment_method", r.FieldConfidence)
	r.RecipientID = coerceString(w.RecipientID, "recipient_id", r.FieldConfidence)

	if cur := coerceString(w.Currency, "currency", r.FieldConfidence); cur != nil {
		r.Currency = *cur
	}

	r.IsIncome = coerceBool(w.IsIncome, "is_income", r.FieldConfidence)

	amount, ok := coerceAmount(w.Amount)
	if ok {
		r.Amount = &amount
	} else if len(w.Amount) > 0 && !isJSONNull(w.Amount) {
		r.FieldConfidence["amount"] = 0.5
	}

	if len(w.LineItems) > 0 && !isJSONNull(w.LineItems) {
		var items []models.LineItem
		if err := json.Unmarshal(w.LineItems, &items); err == nil {
			r.LineItems = items
		}
	}

	return r
}

func isJSONNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// coerceString accepts a JSON string or number; anything else present is
// nulled with confidence 0.5.
func coerceString(raw json.RawMessage, field string, conf map[string]float64) *string {
	if len(raw) == 0 || isJSONNull(raw) {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil
		}
		return &s
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		s := strconv.FormatFloat(f, 'f', -1, 64)
		return &s
	}

	conf[field] = 0.5
	return nil
}

// coerceBool accepts a JSON bool or a "true"/"false" string; anything
// else present lowers the field's confidence and reads as false.
func coerceBool(raw json.RawMessage, field string, conf map[string]float64) bool {
	if len(raw) == 0 || isJSONNull(raw) {
		return false
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return v
		}
	}

	conf[field] = 0.5
	return false
}

func coerceAmount(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
		negative := false
		if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
			negative = true
			cleaned = cleaned[1 : len(cleaned)-1]
		}
		if v, err := strconv.ParseFloat(cleaned, 64); err == nil {
			if negative {
				v = -v
			}
			return v, true
		}
	}

	return 0, false
}
