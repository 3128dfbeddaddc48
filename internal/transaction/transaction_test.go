package transaction

import (
	"strings"
	"testing"

	"github.com/syntheit/ledgerflow/internal/models"
)

func strp(s string) *string   { return &s }
func amtp(f float64) *float64 { return &f }

func TestMissingRequiredFields_AllPresent(t *testing.T) {
	record := &models.ExtractedRecord{
		Vendor:        strp("Acme"),
		Amount:        amtp(10),
		PaymentMethod: strp("card"),
	}
	if missing := missingRequiredFields(record, "cat-1"); len(missing) != 0 {
		t.Fatalf("expected no missing fields, got %v", missing)
	}
}

func TestMissingRequiredFields_VendorWaivedForTransfer(t *testing.T) {
	record := &models.ExtractedRecord{
		Amount:        amtp(10),
		PaymentMethod: strp("card"),
		Description:   strp("Internal transfer between accounts"),
	}
	missing := missingRequiredFields(record, "cat-1")
	for _, f := range missing {
		if f == "vendor" {
			t.Fatalf("vendor should be waived for transfer description, got missing=%v", missing)
		}
	}
}

func TestMissingRequiredFields_VendorWaivedForDeposit(t *testing.T) {
	record := &models.ExtractedRecord{
		Amount:        amtp(10),
		PaymentMethod: strp("card"),
		Description:   strp("Payroll deposit"),
	}
	missing := missingRequiredFields(record, "cat-1")
	for _, f := range missing {
		if f == "vendor" {
			t.Fatalf("vendor should be waived for deposit description, got missing=%v", missing)
		}
	}
}

func TestMissingRequiredFields_AllAbsent(t *testing.T) {
	record := &models.ExtractedRecord{}
	missing := missingRequiredFields(record, "")
	want := map[string]bool{"category": true, "payment_method": true, "vendor": true, "amount": true}
	if len(missing) != len(want) {
		t.Fatalf("expected %d missing fields, got %v", len(want), missing)
	}
	for _, f := range missing {
		if !want[f] {
			t.Fatalf("unexpected missing field %q", f)
		}
	}
}

func TestMissingRequiredFields_NonPositiveAmount(t *testing.T) {
	zero := 0.0
	record := &models.ExtractedRecord{
		Vendor:        strp("Acme"),
		Amount:        &zero,
		PaymentMethod: strp("card"),
	}
	missing := missingRequiredFields(record, "cat-1")
	found := false
	for _, f := range missing {
		if f == "amount" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected amount to be flagged missing for a zero amount, got %v", missing)
	}
}

func defaultCreator() *Creator {
	return NewCreator(nil, nil, 0, 0)
}

func TestDetermineStatus_GateFailsOverridesConfidence(t *testing.T) {
	record := &models.ExtractedRecord{Amount: amtp(10)}
	status, missing := defaultCreator().determineStatus(0.99, record, "")
	if status != models.TxPending {
		t.Fatalf("expected pending when gate fails regardless of confidence, got %s", status)
	}
	if len(missing) == 0 {
		t.Fatalf("expected missing fields to be reported")
	}
}

func TestDetermineStatus_ConfidenceBands(t *testing.T) {
	complete := &models.ExtractedRecord{
		Vendor:        strp("Acme"),
		Amount:        amtp(10),
		PaymentMethod: strp("card"),
	}

	cases := []struct {
		confidence float64
		want       models.TransactionStatus
	}{
		{0.96, models.TxApproved},
		{0.95, models.TxApproved},
		{0.90, models.TxPending},
		{0.85, models.TxPending},
		{0.50, models.TxDraft},
	}
	creator := defaultCreator()
	for _, c := range cases {
		status, missing := creator.determineStatus(c.confidence, complete, "cat-1")
		if len(missing) != 0 {
			t.Fatalf("expected gate to pass for confidence %f, got missing=%v", c.confidence, missing)
		}
		if status != c.want {
			t.Errorf("determineStatus(%f) = %s, want %s", c.confidence, status, c.want)
		}
	}
}

func TestDetermineStatus_ConfiguredAutoApprovalMovesPendingBand(t *testing.T) {
	complete := &models.ExtractedRecord{
		Vendor:        strp("Acme"),
		Amount:        amtp(10),
		PaymentMethod: strp("card"),
	}

	creator := NewCreator(nil, nil, 0, 0.70)
	status, _ := creator.determineStatus(0.75, complete, "cat-1")
	if status != models.TxPending {
		t.Fatalf("expected pending at 0.75 with a lowered auto-approval threshold, got %s", status)
	}
	status, _ = creator.determineStatus(0.65, complete, "cat-1")
	if status != models.TxDraft {
		t.Fatalf("expected draft below the lowered threshold, got %s", status)
	}
}

func TestShouldCreate(t *testing.T) {
	creator := defaultCreator()
	complete := &models.ExtractedRecord{Vendor: strp("Acme"), Amount: amtp(10), Date: strp("2026-01-01")}
	if !creator.ShouldCreate(0.90, complete) {
		t.Fatalf("expected true for complete record above threshold")
	}
	if creator.ShouldCreate(0.80, complete) {
		t.Fatalf("expected false below threshold")
	}

	missingDate := &models.ExtractedRecord{Vendor: strp("Acme"), Amount: amtp(10)}
	if creator.ShouldCreate(0.99, missingDate) {
		t.Fatalf("expected false when date is missing even above threshold")
	}
}

func TestShouldCreate_ConfiguredThresholdHonored(t *testing.T) {
	creator := NewCreator(nil, nil, 0.70, 0)
	complete := &models.ExtractedRecord{Vendor: strp("Acme"), Amount: amtp(10), Date: strp("2026-01-01")}
	if !creator.ShouldCreate(0.75, complete) {
		t.Fatalf("expected true at 0.75 with a lowered creation threshold")
	}
	if creator.ShouldCreate(0.65, complete) {
		t.Fatalf("expected false below the lowered threshold")
	}
}

func TestCoerceISODate_ValidISO(t *testing.T) {
	in := "2026-03-14"
	if got := coerceISODate(&in); got != "2026-03-14" {
		t.Fatalf("expected passthrough of valid ISO date, got %s", got)
	}
}

func TestCoerceISODate_NilFallsBackToToday(t *testing.T) {
	got := coerceISODate(nil)
	if len(got) != len("2026-01-01") {
		t.Fatalf("expected an ISO-shaped fallback date, got %q", got)
	}
}

func TestGenerateNotes_IncludesMultiTransactionIndex(t *testing.T) {
	record := &models.ExtractedRecord{}
	idx := 2
	notes := generateNotes(record, 0.9, nil, &idx)
	want := "Transaction #3 from multi-transaction document"
	if !strings.Contains(notes, want) {
		t.Fatalf("expected notes to contain %q, got %q", want, notes)
	}
}

func TestGenerateNotes_IncludesMissingFieldWarning(t *testing.T) {
	record := &models.ExtractedRecord{}
	notes := generateNotes(record, 0.5, []string{"vendor", "amount"}, nil)
	if !strings.Contains(notes, "MISSING REQUIRED FIELDS") {
		t.Fatalf("expected a missing-fields warning in notes, got %q", notes)
	}
}
