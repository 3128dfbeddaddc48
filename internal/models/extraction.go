package models

// Table is a detected table within a document, normalized to a uniform
// shape regardless of source format.
type Table struct {
	Page    int        `json:"page"`
	Index   int        `json:"index"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// RawExtraction is the uniform output every format extractor produces.
type RawExtraction struct {
	RawText        string         `json:"raw_text"`
	StructuredData map[string]any `json:"structured_data,omitempty"`
	Tables         []Table        `json:"tables,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ExtractionError wraps a format-extractor-local failure; it is terminal
// for the document it was raised on.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return "extraction failed: " + e.Reason
}

// ExtractedRecord is a single candidate transaction returned by the LLM
// extractor, with per-field confidences alongside the values themselves.
type ExtractedRecord struct {
	Vendor          *string            `json:"vendor,omitempty"`
	Amount          *float64           `json:"amount,omitempty"`
	Currency        string             `json:"currency,omitempty"`
	Date            *string            `json:"date,omitempty"`
	Description     *string            `json:"description,omitempty"`
	Category        *string            `json:"category,omitempty"`
	PaymentMethod   *string            `json:"payment_method,omitempty"`
	RecipientID     *string            `json:"recipient_id,omitempty"`
	IsIncome        bool               `json:"is_income"`
	LineItems       []LineItem         `json:"line_items,omitempty"`
	FieldConfidence map[string]float64 `json:"field_confidence,omitempty"`
	ExtractionError string             `json:"extraction_error,omitempty"`
	TransactionIdx  int                `json:"_transaction_index,omitempty"`
}

// Field returns the extracted value for name, or nil if absent/empty. It is
// the single source of truth the scorer and creator both use to decide
// whether a field counts as "present."
func (r *ExtractedRecord) Field(name string) any {
	switch name {
	case "vendor":
		return derefNonEmpty(r.Vendor)
	case "amount":
		if r.Amount != nil && *r.Amount != 0 {
			return *r.Amount
		}
		return nil
	case "date":
		return derefNonEmpty(r.Date)
	case "description":
		return derefNonEmpty(r.Description)
	case "category":
		return derefNonEmpty(r.Category)
	case "payment_method":
		return derefNonEmpty(r.PaymentMethod)
	case "recipient_id":
		return derefNonEmpty(r.RecipientID)
	default:
		return nil
	}
}

func derefNonEmpty(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

// LineItem is an optional sub-line of an extracted record (e.g. individual
// receipt items); the core does not score or materialize these on its own,
// it only carries them through to the created Transaction's notes/metadata.
type LineItem struct {
	Description string   `json:"description"`
	Amount      *float64 `json:"amount,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty"`
}

// MultiTransactionResult is returned instead of a single ExtractedRecord
// when the chunk was processed in multi-transaction mode.
type MultiTransactionResult struct {
	ExtractionType       string            `json:"extraction_type"`
	Transactions         []ExtractedRecord `json:"transactions"`
	TotalRawTransactions int               `json:"total_raw_transactions,omitempty"`
	ValidTransactions    int               `json:"valid_transactions,omitempty"`
}

// ExtractionOutcome is the merged, document-level result the Orchestrator
// hands to the scorer: either a single record or a multi-transaction batch.
type ExtractionOutcome struct {
	Single *ExtractedRecord
	Multi  *MultiTransactionResult
}

// IsMultiTransaction reports whether this outcome carries a transaction
// array rather than a single record.
func (o *ExtractionOutcome) IsMultiTransaction() bool {
	return o != nil && o.Multi != nil
}
