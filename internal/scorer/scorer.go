// Package scorer turns per-field extraction confidences into a single
// overall score and an action band. Every function here is free of I/O
// so the scoring math can be tested in isolation.
package scorer

import (
	"sort"

	"github.com/syntheit/ledgerflow/internal/models"
)

// FieldWeights sums to ~1.0; any field not listed defaults to 0.05.
var FieldWeights = map[string]float64{
	"vendor":         0.20,
	"amount":         0.30,
	"date":           0.20,
	"description":    0.10,
	"category":       0.10,
	"payment_method": 0.05,
	"recipient_id":   0.05,
}

const defaultFieldWeight = 0.05

// CriticalFields trigger the 0.15 missing-field penalty.
var CriticalFields = []string{"vendor", "amount", "date"}

const (
	criticalFieldPenalty     = 0.15
	multiCompletenessPenalty = 0.3
	autoApproveThreshold     = 0.85
	manualReviewThreshold    = 0.60
)

// ActionBand partitions [0,1] into auto-approve, review-recommended, and
// manual-review ranges.
type ActionBand string

const (
	ActionAutoApprove       ActionBand = "auto_approve"
	ActionReviewRecommended ActionBand = "review_recommended"
	ActionManualReview      ActionBand = "manual_review_required"
)

func weightOf(field string) float64 {
	if w, ok := FieldWeights[field]; ok {
		return w
	}
	return defaultFieldWeight
}

// sortedFields returns the confidence map's keys in a fixed order so the
// weighted sums are reproducible call to call.
func sortedFields(confidence map[string]float64) []string {
	fields := make([]string, 0, len(confidence))
	for field := range confidence {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// ScoreSingle computes a weighted average over fields whose extracted
// value is non-null and non-empty, applies the missing-critical-field
// penalty, and clamps to [0,1]. Absent critical fields stay in the
// denominator at zero confidence; otherwise nulling a low-confidence
// critical field would raise the average by more than the flat penalty
// takes back.
func ScoreSingle(record *models.ExtractedRecord) float64 {
	if record == nil {
		return 0
	}

	var totalWeight, weightedSum float64
	for _, field := range sortedFields(record.FieldConfidence) {
		if record.Field(field) == nil {
			continue
		}
		w := weightOf(field)
		weightedSum += record.FieldConfidence[field] * w
		totalWeight += w
	}

	for _, f := range CriticalFields {
		if record.Field(f) == nil {
			totalWeight += weightOf(f)
		}
	}

	var score float64
	if totalWeight > 0 {
		score = weightedSum / totalWeight
	}

	score = applyMissingCriticalPenalty(score, record)

	return clamp01(score)
}

func applyMissingCriticalPenalty(score float64, record *models.ExtractedRecord) float64 {
	missing := 0
	for _, f := range CriticalFields {
		if record.Field(f) == nil {
			missing++
		}
	}
	score -= float64(missing) * criticalFieldPenalty
	if score < 0 {
		score = 0
	}
	return score
}

// estimateFromPresence is the fallback used when a multi-transaction
// record carries no per-field confidences: vendor +0.3, amount +0.4,
// date +0.3.
func estimateFromPresence(record *models.ExtractedRecord) float64 {
	score := 0.0
	if record.Field("vendor") != nil {
		score += 0.3
	}
	if record.Field("amount") != nil {
		score += 0.4
	}
	if record.Field("date") != nil {
		score += 0.3
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// ScoreRecord computes one multi-transaction record's confidence: the
// weighted field-confidence average when present, else the
// presence-based estimate.
func ScoreRecord(record *models.ExtractedRecord) float64 {
	if len(record.FieldConfidence) == 0 {
		return estimateFromPresence(record)
	}

	var totalWeight, weightedSum float64
	for _, field := range sortedFields(record.FieldConfidence) {
		w := weightOf(field)
		weightedSum += record.FieldConfidence[field] * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

// ScoreMulti averages each valid transaction's score, then subtracts a
// completeness penalty when the expected count is known, clamped to
// [0,1].
func ScoreMulti(result *models.MultiTransactionResult) float64 {
	if result == nil || len(result.Transactions) == 0 {
		return 0
	}

	var scores []float64
	validCount := 0
	for _, tx := range result.Transactions {
		s := ScoreRecord(&tx)
		if s > 0 {
			scores = append(scores, s)
			validCount++
		}
	}
	if len(scores) == 0 {
		return 0
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	avg := sum / float64(len(scores))

	expected := result.TotalRawTransactions
	if expected == 0 {
		expected = len(result.Transactions)
	}
	actual := result.ValidTransactions
	if actual == 0 {
		actual = validCount
	}

	var completeness float64
	if expected > 0 {
		completeness = float64(actual) / float64(expected)
	}
	penalty := (1 - completeness) * multiCompletenessPenalty

	return clamp01(avg - penalty)
}

// Score dispatches to ScoreSingle or ScoreMulti depending on which arm of
// outcome is populated.
func Score(outcome models.ExtractionOutcome) float64 {
	if outcome.IsMultiTransaction() {
		return ScoreMulti(outcome.Multi)
	}
	return ScoreSingle(outcome.Single)
}

// Recommend maps an overall confidence to its action band using the
// default auto-approve boundary.
func Recommend(confidence float64) ActionBand {
	return RecommendAt(confidence, autoApproveThreshold)
}

// RecommendAt is Recommend with a configurable auto-approve boundary;
// non-positive values fall back to the default.
func RecommendAt(confidence, autoApprove float64) ActionBand {
	if autoApprove <= 0 {
		autoApprove = autoApproveThreshold
	}
	switch {
	case confidence >= autoApprove:
		return ActionAutoApprove
	case confidence >= manualReviewThreshold:
		return ActionReviewRecommended
	default:
		return ActionManualReview
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// FieldConfidenceStats summarizes per-field confidences for logging and
// review UIs.
type FieldConfidenceStats struct {
	Average              float64
	Min                  float64
	Max                  float64
	Count                int
	HighConfidenceFields []string
	LowConfidenceFields  []string
}

// Aggregate computes min/max/average plus high/low confidence field
// buckets (>=0.90 / <0.70), exposed for observability only.
func Aggregate(fieldScores map[string]float64) FieldConfidenceStats {
	if len(fieldScores) == 0 {
		return FieldConfidenceStats{}
	}

	stats := FieldConfidenceStats{Count: len(fieldScores)}
	first := true
	var sum float64

	for field, score := range fieldScores {
		sum += score
		if first {
			stats.Min, stats.Max = score, score
			first = false
		} else {
			if score < stats.Min {
				stats.Min = score
			}
			if score > stats.Max {
				stats.Max = score
			}
		}
		if score >= 0.90 {
			stats.HighConfidenceFields = append(stats.HighConfidenceFields, field)
		}
		if score < 0.70 {
			stats.LowConfidenceFields = append(stats.LowConfidenceFields, field)
		}
	}

	stats.Average = sum / float64(len(fieldScores))
	return stats
}
