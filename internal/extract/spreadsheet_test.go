package extract

import "testing"

func TestCleanAmount_StripsCurrencyAndCommas(t *testing.T) {
	v, err := cleanAmount("$1,234.56")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 1234.56 {
		t.Fatalf("expected 1234.56, got %f", v)
	}
}

func TestCleanAmount_ParenthesizedIsNegative(t *testing.T) {
	v, err := cleanAmount("(1.23)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != -1.23 {
		t.Fatalf("expected -1.23, got %f", v)
	}
}

func TestCleanAmount_LeadingMinusIsNegative(t *testing.T) {
	v, err := cleanAmount("-45.80")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != -45.80 {
		t.Fatalf("expected -45.80, got %f", v)
	}
}

func TestCleanAmount_EmptyIsError(t *testing.T) {
	if _, err := cleanAmount("   "); err == nil {
		t.Fatalf("expected an error for an empty amount")
	}
}

func TestCoerceISODate_CommonFormats(t *testing.T) {
	cases := map[string]string{
		"2025-10-07":      "2025-10-07",
		"10/07/2025":      "2025-10-07",
		"Oct 7, 2025":     "",
		"07-Oct-2025":     "2025-10-07",
	}
	for input, want := range cases {
		got, err := coerceISODate(input)
		if want == "" {
			continue // non-exact formats aren't asserted, just shouldn't panic
		}
		if err != nil {
			t.Fatalf("coerceISODate(%q) unexpected error: %v", input, err)
		}
		if got != want {
			t.Errorf("coerceISODate(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestCoerceISODate_UnrecognizedIsError(t *testing.T) {
	if _, err := coerceISODate("not a date"); err == nil {
		t.Fatalf("expected an error for an unrecognized date format")
	}
}

func TestDetectColumnRoles_CaseInsensitiveSubstring(t *testing.T) {
	roles := detectColumnRoles([]string{"Transaction Date", "Total Amount", "Merchant", "Notes"})
	if roles["date"] != "Transaction Date" {
		t.Errorf("expected date role on 'Transaction Date', got %q", roles["date"])
	}
	if roles["amount"] != "Total Amount" {
		t.Errorf("expected amount role on 'Total Amount', got %q", roles["amount"])
	}
	if roles["vendor"] != "Merchant" {
		t.Errorf("expected vendor role on 'Merchant', got %q", roles["vendor"])
	}
	if roles["description"] != "Notes" {
		t.Errorf("expected description role on 'Notes', got %q", roles["description"])
	}
}

func TestIsLikelyExpenseSheet_RequiresAtLeastThreeRoles(t *testing.T) {
	roles := map[string]string{"date": "Date", "amount": "Amount", "vendor": "", "description": "", "category": ""}
	if isLikelyExpenseSheet(roles) {
		t.Fatalf("expected false with only 2 matched roles")
	}
	roles["description"] = "Memo"
	if !isLikelyExpenseSheet(roles) {
		t.Fatalf("expected true with 3 matched roles")
	}
}

func TestDropDuplicateHeaderRow_DropsWhenHeaderLikeWithEnoughFollowingRows(t *testing.T) {
	headers := []string{"Date", "Description", "Amount"}
	records := make([][]string, 0, 7)
	records = append(records, []string{"date", "description", "amount"}) // re-embedded header
	for i := 0; i < 6; i++ {
		records = append(records, []string{"2026-01-01", "item", "10.00"})
	}

	out, dropped := dropDuplicateHeaderRow(headers, records)
	if !dropped {
		t.Fatalf("expected the re-embedded header row to be detected and dropped")
	}
	if len(out) != 6 {
		t.Fatalf("expected 6 remaining rows, got %d", len(out))
	}
}

func TestDropDuplicateHeaderRow_KeepsWhenTooFewFollowingRows(t *testing.T) {
	headers := []string{"Date", "Description", "Amount"}
	records := [][]string{
		{"date", "description", "amount"},
		{"2026-01-01", "item", "10.00"},
	}
	out, dropped := dropDuplicateHeaderRow(headers, records)
	if dropped {
		t.Fatalf("expected no drop when fewer than 5 rows follow")
	}
	if len(out) != len(records) {
		t.Fatalf("expected all rows kept, got %d", len(out))
	}
}

func TestCountRowsWithDateAndAmount_ThresholdForMultiTransaction(t *testing.T) {
	records := [][]string{
		{"2026-01-01", "Coffee Shop", "-4.50"},
		{"2026-01-02", "Grocery Store", "-85.67"},
		{"2026-01-03", "Payroll", "500.00"},
		{"no date here", "Unrelated", "not an amount"},
	}
	count := countRowsWithDateAndAmount(records, nil)
	if count != 3 {
		t.Fatalf("expected 3 rows with both date and amount, got %d", count)
	}
}

func TestExtractTransactionRows_CleansAmountsAndDatesDropsEmptyRows(t *testing.T) {
	headers := []string{"Date", "Description", "Amount"}
	roles := map[string]string{"date": "Date", "description": "Description", "amount": "Amount"}
	records := [][]string{
		{"2026-01-01", "Coffee", "(4.50)"},
		{"", "", ""},
		{"01/02/2026", "Groceries", "$85.67"},
	}

	rows := extractTransactionRows(headers, records, roles)
	if len(rows) != 2 {
		t.Fatalf("expected empty row dropped, got %d rows", len(rows))
	}
	if rows[0]["date"] != "2026-01-01" {
		t.Errorf("expected ISO date, got %v", rows[0]["date"])
	}
	if rows[0]["amount"] != -4.50 {
		t.Errorf("expected cleaned negative amount, got %v", rows[0]["amount"])
	}
	if rows[1]["date"] != "2026-01-02" {
		t.Errorf("expected coerced ISO date for slash format, got %v", rows[1]["date"])
	}
}
