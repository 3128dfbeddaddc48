package llmclient

import (
	"fmt"
	"strings"

	"github.com/syntheit/ledgerflow/internal/models"
)

// documentTypeIntros are the document-type-specific prompt lead-ins; any
// type not listed falls back to genericIntro.
var documentTypeIntros = map[string]string{
	"receipt":               "You are extracting a single purchase transaction from a retail receipt.",
	"invoice":                "You are extracting a single billed transaction from a vendor invoice.",
	"utility_bill":           "You are extracting a single utility payment from a utility bill.",
	"paystub":                "You are extracting a single payroll deposit from a paystub.",
	"bank_statement":         "You are extracting every individual transaction listed on a bank statement.",
	"bank_statement_multi":   "You are extracting every individual transaction listed on a bank statement.",
	"expense_report":         "You are extracting every individual expense line from an expense report.",
	"expense_report_multi":   "You are extracting every individual expense line from an expense report.",
	"credit_card_statement":  "You are extracting every individual charge from a credit card statement.",
	"credit_card_statement_multi": "You are extracting every individual charge from a credit card statement.",
}

const genericIntro = "You are extracting financial transaction data from a document."

const schemaInstructions = `Return ONLY valid JSON, matching exactly this schema (omit any field you cannot determine, never invent one):
{
  "vendor": "string or null",
  "amount": "number, no currency symbols or commas",
  "currency": "3-letter ISO code",
  "date": "YYYY-MM-DD",
  "description": "string or null",
  "category": "string or null, must match one of the listed categories exactly",
  "payment_method": "string or null",
  "recipient_id": "string or null",
  "is_income": "boolean",
  "line_items": [{"description": "string", "amount": "number", "quantity": "number"}],
  "field_confidence": {"vendor": 0.0, "amount": 0.0, "date": 0.0, "description": 0.0, "category": 0.0}
}`

const multiSchemaInstructions = `Return ONLY valid JSON, an object with this exact shape:
{
  "extraction_type": "multi_transaction",
  "transactions": [ <one object per transaction, each matching the single-transaction schema below> ],
  "total_raw_transactions": "integer, count of rows you saw in the source",
  "valid_transactions": "integer, count you were able to extract"
}
Each element of "transactions" matches:
{
  "vendor": "string or null",
  "amount": "number, no currency symbols or commas",
  "currency": "3-letter ISO code",
  "date": "YYYY-MM-DD",
  "description": "string or null",
  "category": "string or null, must match one of the listed categories exactly",
  "payment_method": "string or null",
  "recipient_id": "string or null",
  "is_income": "boolean",
  "field_confidence": {"vendor": 0.0, "amount": 0.0, "date": 0.0, "description": 0.0, "category": 0.0}
}`

// buildPrompt assembles intro, schema instructions, category listing,
// then chunk text truncated to maxPromptChars.
func buildPrompt(chunk models.Chunk, documentType, categoryListing string, forceMulti bool) string {
	intro, ok := documentTypeIntros[documentType]
	if !ok {
		intro = genericIntro
	}

	schema := schemaInstructions
	if forceMulti {
		schema = multiSchemaInstructions
		intro += " This document contains MULTIPLE transactions; you MUST return the array form even if you find only one."
	}

	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n\n")
	b.WriteString(schema)
	b.WriteString("\n\nAll amounts MUST be numeric with no currency symbols or thousands separators. All dates MUST be formatted YYYY-MM-DD.\n\n")

	if categoryListing != "" {
		fmt.Fprintf(&b, "AVAILABLE CATEGORIES:\n%s\n", categoryListing)
	}

	text := chunkText(chunk)
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
	}
	b.WriteString("\nDOCUMENT TEXT:\n")
	b.WriteString(text)

	return b.String()
}

func chunkText(chunk models.Chunk) string {
	if chunk.ChunkType == models.ChunkTransactions {
		var b strings.Builder
		for _, row := range chunk.Transactions {
			fmt.Fprintf(&b, "%v\n", row)
		}
		return b.String()
	}
	return chunk.Text
}
