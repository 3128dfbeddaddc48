// Package classify assigns each document a type tag and a
// multi-transaction verdict via three scoring passes: filename hints,
// content regexes, and structured-data shape.
package classify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/syntheit/ledgerflow/internal/models"
)

// filenamePatterns and their modifiers drive the first scoring pass.
var filenamePatterns = map[string]string{
	"statement": "bank_statement",
	"stmt":      "bank_statement",
	"invoice":   "invoice",
	"bill":      "utility_bill",
	"receipt":   "receipt",
	"expense":   "expense_report",
}

var filenameModifiers = map[string]string{
	"bank":   "bank_statement",
	"credit": "credit_card_statement",
	"card":   "credit_card_statement",
}

// contentPatterns are content regexes scored per document type; the ratio
// of matched patterns to total patterns is that type's content-pass
// confidence.
var contentPatterns = map[string][]*regexp.Regexp{
	"receipt": {
		regexp.MustCompile(`(?i)thank you for your purchase`),
		regexp.MustCompile(`(?i)subtotal`),
		regexp.MustCompile(`(?i)total\s*:?\s*\$?\d`),
		regexp.MustCompile(`(?i)cashier`),
	},
	"invoice": {
		regexp.MustCompile(`(?i)invoice\s*#?\s*\d`),
		regexp.MustCompile(`(?i)bill\s+to`),
		regexp.MustCompile(`(?i)due\s+date`),
		regexp.MustCompile(`(?i)amount\s+due`),
	},
	"utility_bill": {
		regexp.MustCompile(`(?i)account\s+number`),
		regexp.MustCompile(`(?i)billing\s+period`),
		regexp.MustCompile(`(?i)kwh|meter\s+reading|usage`),
		regexp.MustCompile(`(?i)previous\s+balance`),
	},
	"paystub": {
		regexp.MustCompile(`(?i)gross\s+pay`),
		regexp.MustCompile(`(?i)net\s+pay`),
		regexp.MustCompile(`(?i)deductions?`),
		regexp.MustCompile(`(?i)ytd|year.to.date`),
	},
	"bank_statement": {
		regexp.MustCompile(`(?i)account\s+summary`),
		regexp.MustCompile(`(?i)beginning\s+balance`),
		regexp.MustCompile(`(?i)ending\s+balance`),
		regexp.MustCompile(`(?i)statement\s+period`),
	},
	"expense_report": {
		regexp.MustCompile(`(?i)expense\s+report`),
		regexp.MustCompile(`(?i)reimbursement`),
		regexp.MustCompile(`(?i)approved\s+by`),
		regexp.MustCompile(`(?i)per\s+diem`),
	},
	"credit_card_statement": {
		regexp.MustCompile(`(?i)minimum\s+payment`),
		regexp.MustCompile(`(?i)credit\s+limit`),
		regexp.MustCompile(`(?i)payment\s+due\s+date`),
		regexp.MustCompile(`(?i)available\s+credit`),
	},
}

// multiTransactionKeywordBundles are groups of keywords; each bundle that
// matches anywhere in the text contributes +0.2 to the multi-transaction
// signal.
var multiTransactionKeywordBundles = [][]string{
	{"transaction history", "transaction list", "list of transactions"},
	{"beginning balance", "ending balance"},
	{"multiple transactions", "itemized"},
}

var transactionNumberPattern = regexp.MustCompile(`(?i)transaction\s*\d+`)
var dateAmountLinePattern = regexp.MustCompile(`(?i)\d{1,4}[-/]\d{1,2}[-/]\d{1,4}.{0,40}\$?\d+[.,]\d{2}`)

// Classify assigns a document type and multi-transaction verdict. The
// filename and content passes each propose a type; the higher-confidence
// proposal wins, and a strong multi-transaction signal upgrades the type
// to its _multi variant.
func Classify(filePath, rawText string, structured map[string]any) models.Classification {
	var indicators []string

	docType, fileConfidence := scoreFilename(filePath, structured)
	if fileConfidence > 0 {
		indicators = append(indicators, "filename characteristics matched "+docType)
	}

	contentType, contentConfidence, contentIndicators := scoreContent(rawText)
	indicators = append(indicators, contentIndicators...)

	finalType := docType
	finalConfidence := fileConfidence
	if contentConfidence > finalConfidence {
		finalType = contentType
		finalConfidence = contentConfidence
	}

	multiScore, multiIndicators := scoreMultiTransactionSignal(rawText, structured)
	indicators = append(indicators, multiIndicators...)
	isMulti := multiScore > 0.6

	if isMulti && multiScore > 0.7 {
		finalType = upgradeToMulti(finalType)
	}

	return models.Classification{
		DocumentType:               finalType,
		IsMultiTransaction:         isMulti,
		Confidence:                 finalConfidence,
		MultiTransactionConfidence: multiScore,
		Indicators:                 indicators,
	}
}

func scoreFilename(filePath string, structured map[string]any) (string, float64) {
	lower := strings.ToLower(filePath)

	matchedType := ""
	for pattern, docType := range filenamePatterns {
		if strings.Contains(lower, pattern) {
			matchedType = docType
			break
		}
	}

	if matchedType != "" {
		for modifier, docType := range filenameModifiers {
			if strings.Contains(lower, modifier) {
				matchedType = docType
				break
			}
		}
		return matchedType, 0.8
	}

	if hasSpreadsheetShape(structured) {
		return "bank_statement", 0.8
	}

	return "unknown", 0
}

func hasSpreadsheetShape(structured map[string]any) bool {
	roles, ok := structured["detected_transaction_columns"].(map[string]string)
	if !ok {
		return false
	}
	count := 0
	for _, v := range roles {
		if v != "" {
			count++
		}
	}
	return count >= 3
}

func scoreContent(rawText string) (string, float64, []string) {
	bestType := "unknown"
	bestScore := 0.0
	var indicators []string

	for docType, patterns := range contentPatterns {
		matched := 0
		for _, p := range patterns {
			if p.MatchString(rawText) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		score := float64(matched) / float64(len(patterns))
		indicators = append(indicators, docType+" content score "+formatScore(score))
		if score > bestScore {
			bestScore = score
			bestType = docType
		}
	}

	return bestType, bestScore, indicators
}

func scoreMultiTransactionSignal(rawText string, structured map[string]any) (float64, []string) {
	score := 0.0
	var indicators []string
	lower := strings.ToLower(rawText)

	for _, bundle := range multiTransactionKeywordBundles {
		for _, kw := range bundle {
			if strings.Contains(lower, kw) {
				score += 0.2
				indicators = append(indicators, "multi-transaction keyword: "+kw)
				break
			}
		}
	}

	if rowCount(structured) > 5 {
		score += 0.3
		indicators = append(indicators, "row count > 5")
	}

	if hasAmountAndDateColumn(structured) {
		score += 0.4
		indicators = append(indicators, "amount and date columns present")
	}

	if len(transactionNumberPattern.FindAllString(rawText, -1)) > 2 {
		score += 0.3
		indicators = append(indicators, "repeated transaction-number markers")
	}

	if len(dateAmountLinePattern.FindAllString(rawText, -1)) > 3 {
		score += 0.25
		indicators = append(indicators, "repeated date/amount line co-occurrence")
	}

	if score > 1.0 {
		score = 1.0
	}

	return score, indicators
}

func rowCount(structured map[string]any) int {
	if structured == nil {
		return 0
	}
	if records, ok := structured["records"].([]map[string]any); ok {
		return len(records)
	}
	return 0
}

func hasAmountAndDateColumn(structured map[string]any) bool {
	roles, ok := structured["detected_transaction_columns"].(map[string]string)
	if !ok {
		return false
	}
	return roles["amount"] != "" && roles["date"] != ""
}

var multiVariants = map[string]string{
	"bank_statement":        "bank_statement_multi",
	"expense_report":        "expense_report_multi",
	"credit_card_statement": "credit_card_statement_multi",
}

func upgradeToMulti(docType string) string {
	if variant, ok := multiVariants[docType]; ok {
		return variant
	}
	if strings.HasSuffix(docType, "_multi") {
		return docType
	}
	return docType + "_multi"
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 2, 64)
}
