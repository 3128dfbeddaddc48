package scorer

import (
	"testing"

	"github.com/syntheit/ledgerflow/internal/models"
)

func ptr(s string) *string { return &s }
func famt(f float64) *float64 { return &f }

func fullRecord() *models.ExtractedRecord {
	return &models.ExtractedRecord{
		Vendor:      ptr("Acme Corp"),
		Amount:      famt(42.50),
		Date:        ptr("2026-01-15"),
		Description: ptr("Office supplies"),
		Category:    ptr("Office"),
		FieldConfidence: map[string]float64{
			"vendor":      0.95,
			"amount":      0.99,
			"date":        0.90,
			"description": 0.80,
			"category":    0.85,
		},
	}
}

func TestScoreSingle_FullRecordHighConfidence(t *testing.T) {
	score := ScoreSingle(fullRecord())
	if score < 0.85 {
		t.Fatalf("expected high confidence for a complete record, got %f", score)
	}
}

func TestScoreSingle_MissingCriticalFieldPenalized(t *testing.T) {
	full := ScoreSingle(fullRecord())

	missingVendor := fullRecord()
	missingVendor.Vendor = nil
	delete(missingVendor.FieldConfidence, "vendor")

	penalized := ScoreSingle(missingVendor)
	if full-penalized < criticalFieldPenalty-0.001 {
		t.Fatalf("expected missing vendor to cost at least %f, got delta %f", criticalFieldPenalty, full-penalized)
	}
}

func TestScoreSingle_NilRecord(t *testing.T) {
	if ScoreSingle(nil) != 0 {
		t.Fatalf("expected 0 for nil record")
	}
}

func TestScoreSingle_EmptyFieldConfidence(t *testing.T) {
	r := &models.ExtractedRecord{Vendor: ptr("x"), Amount: famt(1)}
	if got := ScoreSingle(r); got != 0 {
		t.Fatalf("expected 0 score when no field_confidence present, got %f", got)
	}
}

// TestScoreSingle_Monotonicity covers property P6: raising a single field's
// confidence without changing anything else must never decrease the score.
func TestScoreSingle_Monotonicity(t *testing.T) {
	low := fullRecord()
	low.FieldConfidence["amount"] = 0.5

	high := fullRecord()
	high.FieldConfidence["amount"] = 0.99

	if ScoreSingle(high) < ScoreSingle(low) {
		t.Fatalf("raising amount confidence decreased overall score: low=%f high=%f", ScoreSingle(low), ScoreSingle(high))
	}
}

func TestScoreSingle_NullingCriticalFieldStrictlyDecreases(t *testing.T) {
	base := fullRecord()
	baseScore := ScoreSingle(base)

	nulled := fullRecord()
	nulled.Date = nil
	delete(nulled.FieldConfidence, "date")
	nulledScore := ScoreSingle(nulled)

	if baseScore-nulledScore < criticalFieldPenalty-0.001 {
		t.Fatalf("nulling a critical field should cost at least %f, got %f", criticalFieldPenalty, baseScore-nulledScore)
	}
}

func TestScoreSingle_NullingLowConfidenceCriticalFieldStillDecreases(t *testing.T) {
	base := &models.ExtractedRecord{
		Vendor: ptr("Acme"),
		Amount: famt(42.50),
		Date:   ptr("2026-01-15"),
		FieldConfidence: map[string]float64{
			"vendor": 0.95,
			"amount": 0.05,
			"date":   0.95,
		},
	}
	baseScore := ScoreSingle(base)

	// Dropping the lowest-confidence critical field must not lift the
	// weighted average past what the flat penalty subtracts.
	nulled := &models.ExtractedRecord{
		Vendor: ptr("Acme"),
		Date:   ptr("2026-01-15"),
		FieldConfidence: map[string]float64{
			"vendor": 0.95,
			"date":   0.95,
		},
	}
	nulledScore := ScoreSingle(nulled)

	if nulledScore >= baseScore {
		t.Fatalf("nulling a low-confidence critical field raised the score: base=%f nulled=%f", baseScore, nulledScore)
	}
}

func TestScoreMulti_CompletenessPenalty(t *testing.T) {
	result := &models.MultiTransactionResult{
		Transactions:         []models.ExtractedRecord{*fullRecord(), *fullRecord()},
		TotalRawTransactions: 4,
		ValidTransactions:    2,
	}

	complete := &models.MultiTransactionResult{
		Transactions:         []models.ExtractedRecord{*fullRecord(), *fullRecord()},
		TotalRawTransactions: 2,
		ValidTransactions:    2,
	}

	if ScoreMulti(result) >= ScoreMulti(complete) {
		t.Fatalf("partial extraction should score lower than complete: partial=%f complete=%f", ScoreMulti(result), ScoreMulti(complete))
	}
}

func TestScoreMulti_EmptyTransactions(t *testing.T) {
	if ScoreMulti(&models.MultiTransactionResult{}) != 0 {
		t.Fatalf("expected 0 for empty transaction list")
	}
	if ScoreMulti(nil) != 0 {
		t.Fatalf("expected 0 for nil result")
	}
}

func TestScoreMulti_PresenceFallback(t *testing.T) {
	result := &models.MultiTransactionResult{
		Transactions: []models.ExtractedRecord{
			{Vendor: ptr("A"), Amount: famt(10), Date: ptr("2026-01-01")},
		},
		TotalRawTransactions: 1,
		ValidTransactions:    1,
	}
	score := ScoreMulti(result)
	if score != 1.0 {
		t.Fatalf("expected full presence estimate of 1.0, got %f", score)
	}
}

func TestRecommend_Bands(t *testing.T) {
	cases := []struct {
		confidence float64
		want       ActionBand
	}{
		{0.95, ActionAutoApprove},
		{0.85, ActionAutoApprove},
		{0.84, ActionReviewRecommended},
		{0.60, ActionReviewRecommended},
		{0.59, ActionManualReview},
		{0.0, ActionManualReview},
	}
	for _, c := range cases {
		if got := Recommend(c.confidence); got != c.want {
			t.Errorf("Recommend(%f) = %s, want %s", c.confidence, got, c.want)
		}
	}
}

func TestRecommendAt_ConfiguredBoundary(t *testing.T) {
	if got := RecommendAt(0.80, 0.75); got != ActionAutoApprove {
		t.Fatalf("expected auto_approve at 0.80 with a 0.75 boundary, got %s", got)
	}
	if got := RecommendAt(0.70, 0.75); got != ActionReviewRecommended {
		t.Fatalf("expected review_recommended below the configured boundary, got %s", got)
	}
	if got := RecommendAt(0.90, 0); got != ActionAutoApprove {
		t.Fatalf("expected the default boundary when none is configured, got %s", got)
	}
}

func TestAggregate(t *testing.T) {
	stats := Aggregate(map[string]float64{
		"vendor": 0.95,
		"amount": 0.99,
		"date":   0.60,
	})

	if stats.Count != 3 {
		t.Fatalf("expected count 3, got %d", stats.Count)
	}
	if stats.Min != 0.60 {
		t.Fatalf("expected min 0.60, got %f", stats.Min)
	}
	if stats.Max != 0.99 {
		t.Fatalf("expected max 0.99, got %f", stats.Max)
	}
	if len(stats.HighConfidenceFields) != 2 {
		t.Fatalf("expected 2 high confidence fields, got %v", stats.HighConfidenceFields)
	}
	if len(stats.LowConfidenceFields) != 1 {
		t.Fatalf("expected 1 low confidence field, got %v", stats.LowConfidenceFields)
	}
}

func TestAggregate_Empty(t *testing.T) {
	stats := Aggregate(nil)
	if stats.Count != 0 {
		t.Fatalf("expected zero-value stats for empty input")
	}
}

func TestScore_DispatchesByOutcomeShape(t *testing.T) {
	single := models.ExtractionOutcome{Single: fullRecord()}
	if Score(single) != ScoreSingle(fullRecord()) {
		t.Fatalf("Score did not dispatch to ScoreSingle for a single-record outcome")
	}

	multi := models.ExtractionOutcome{Multi: &models.MultiTransactionResult{
		Transactions:         []models.ExtractedRecord{*fullRecord()},
		TotalRawTransactions: 1,
		ValidTransactions:    1,
	}}
	if Score(multi) != ScoreMulti(multi.Multi) {
		t.Fatalf("Score did not dispatch to ScoreMulti for a multi-record outcome")
	}
}
