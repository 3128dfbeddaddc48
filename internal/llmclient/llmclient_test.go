package llmclient

import (
	"encoding/json"
	"testing"
)

func TestCleanJSONResponse_StripsMarkdownFence(t *testing.T) {
	input := "Here you go:\n```json\n{\"vendor\": \"Acme\"}\n```\nThanks!"
	got := cleanJSONResponse(input)
	if got != `{"vendor": "Acme"}` {
		t.Fatalf("got %q", got)
	}
}

func TestCleanJSONResponse_FindsObjectBoundsWithoutFence(t *testing.T) {
	input := "sure, the result is {\"amount\": 10} as requested"
	got := cleanJSONResponse(input)
	if got != `{"amount": 10}` {
		t.Fatalf("got %q", got)
	}
}

func TestStripTrailingCommas(t *testing.T) {
	input := `{"a": 1, "b": [1, 2, 3,],}`
	got := stripTrailingCommas(input)
	if !json.Valid([]byte(got)) {
		t.Fatalf("expected valid JSON after stripping trailing commas, got %q", got)
	}
}

func TestLargestBalancedBraces(t *testing.T) {
	input := `noise {"a": 1} more noise {"b": {"c": 2}} trailing`
	got := largestBalancedBraces(input)
	if got != `{"b": {"c": 2}}` {
		t.Fatalf("expected the larger balanced object, got %q", got)
	}
}

func TestLargestBalancedBraces_NoBraces(t *testing.T) {
	if got := largestBalancedBraces("no json here"); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestParseSingle_CoercesStringAmount(t *testing.T) {
	raw := `{"vendor": "Office Depot", "amount": "$1,113.03", "date": "2025-10-07"}`
	record, ok := parseSingle(raw)
	if !ok {
		t.Fatal("expected parseSingle to succeed")
	}
	if record.Amount == nil || *record.Amount != 1113.03 {
		t.Fatalf("expected coerced amount 1113.03, got %v", record.Amount)
	}
	if record.Vendor == nil || *record.Vendor != "Office Depot" {
		t.Fatalf("expected vendor Office Depot, got %v", record.Vendor)
	}
}

func TestParseSingle_InvalidAmountGetsLoweredConfidence(t *testing.T) {
	raw := `{"vendor": "Acme", "amount": "not-a-number"}`
	record, ok := parseSingle(raw)
	if !ok {
		t.Fatal("expected parseSingle to succeed despite a bad amount field")
	}
	if record.Amount != nil {
		t.Fatalf("expected nil amount for unparseable value, got %v", record.Amount)
	}
	if got := record.FieldConfidence["amount"]; got != 0.5 {
		t.Fatalf("expected amount confidence 0.5 for a coercion failure, got %v", got)
	}
}

func TestParseSingle_MistypedVendorNullsOnlyThatField(t *testing.T) {
	raw := `{"vendor": {"name": "Acme"}, "amount": 42.5, "date": "2026-01-01"}`
	record, ok := parseSingle(raw)
	if !ok {
		t.Fatal("expected parseSingle to succeed despite a mistyped vendor field")
	}
	if record.Vendor != nil {
		t.Fatalf("expected nil vendor for an object-typed value, got %v", *record.Vendor)
	}
	if got := record.FieldConfidence["vendor"]; got != 0.5 {
		t.Fatalf("expected vendor confidence 0.5 for a coercion failure, got %v", got)
	}
	if record.Amount == nil || *record.Amount != 42.5 {
		t.Fatalf("expected the rest of the record to survive, got amount %v", record.Amount)
	}
	if record.Date == nil || *record.Date != "2026-01-01" {
		t.Fatalf("expected the rest of the record to survive, got date %v", record.Date)
	}
}

func TestParseSingle_NumericValueCoercedToString(t *testing.T) {
	record, ok := parseSingle(`{"vendor": "Acme", "recipient_id": 4821}`)
	if !ok {
		t.Fatal("expected parseSingle to succeed")
	}
	if record.RecipientID == nil || *record.RecipientID != "4821" {
		t.Fatalf("expected numeric recipient_id read as string, got %v", record.RecipientID)
	}
}

func TestParseSingle_StringIsIncomeCoerced(t *testing.T) {
	record, ok := parseSingle(`{"vendor": "Payroll Inc", "is_income": "true"}`)
	if !ok {
		t.Fatal("expected parseSingle to succeed")
	}
	if !record.IsIncome {
		t.Fatal("expected is_income string \"true\" coerced to true")
	}
}

func TestParseSingle_MistypedIsIncomeLowersConfidence(t *testing.T) {
	record, ok := parseSingle(`{"vendor": "Acme", "is_income": [1]}`)
	if !ok {
		t.Fatal("expected parseSingle to succeed despite a mistyped is_income")
	}
	if record.IsIncome {
		t.Fatal("expected unparseable is_income to read as false")
	}
	if got := record.FieldConfidence["is_income"]; got != 0.5 {
		t.Fatalf("expected is_income confidence 0.5, got %v", got)
	}
}

func TestParseSingle_MistypedFieldConfidenceIgnored(t *testing.T) {
	record, ok := parseSingle(`{"vendor": "Acme", "field_confidence": "high"}`)
	if !ok {
		t.Fatal("expected parseSingle to succeed despite a mistyped field_confidence")
	}
	if record.Vendor == nil || *record.Vendor != "Acme" {
		t.Fatalf("expected vendor to survive, got %v", record.Vendor)
	}
	if record.FieldConfidence == nil {
		t.Fatal("expected an empty confidence map, got nil")
	}
}

func TestParseMulti_AssignsTransactionIndex(t *testing.T) {
	raw := `{"extraction_type": "multi_transaction", "transactions": [
		{"vendor": "A", "amount": 1},
		{"vendor": "B", "amount": 2}
	]}`
	multi, ok := parseMulti(raw)
	if !ok {
		t.Fatal("expected parseMulti to succeed")
	}
	if len(multi.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(multi.Transactions))
	}
	if multi.Transactions[0].TransactionIdx != 0 || multi.Transactions[1].TransactionIdx != 1 {
		t.Fatalf("expected sequential transaction indices, got %d, %d", multi.Transactions[0].TransactionIdx, multi.Transactions[1].TransactionIdx)
	}
}

func TestParseMulti_NoTransactionsFieldFails(t *testing.T) {
	if _, ok := parseMulti(`{"vendor": "Acme"}`); ok {
		t.Fatal("expected parseMulti to fail when no transactions array is present")
	}
}

func TestCoerceAmount_ParenthesizedIsNegative(t *testing.T) {
	v, ok := coerceAmount(json.RawMessage(`"(45.80)"`))
	if !ok {
		t.Fatal("expected coerceAmount to succeed")
	}
	if v != -45.80 {
		t.Fatalf("expected -45.80, got %v", v)
	}
}

func TestCleanAndRepair_FixesTrailingCommaAndFence(t *testing.T) {
	input := "```json\n{\"vendor\": \"Acme\", \"amount\": 10,}\n```"
	got := cleanAndRepair(input)
	if !json.Valid([]byte(got)) {
		t.Fatalf("expected valid JSON after cleanAndRepair, got %q", got)
	}
}
