// Package transaction materializes transactions from extraction
// outcomes: a required-field gate, a confidence-band status decision
// layered on top of it, and the multi-transaction iteration/linking
// rules, split into side-effect-free decisions plus a thin persistence
// wrapper.
package transaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/syntheit/ledgerflow/internal/category"
	"github.com/syntheit/ledgerflow/internal/models"
	"github.com/syntheit/ledgerflow/internal/scorer"
	"github.com/syntheit/ledgerflow/internal/store"
)

// ConfidenceThreshold is the default gate for auto-creation and
// multi-transaction inclusion when configuration supplies none.
const ConfidenceThreshold = 0.85

const (
	approveThreshold = 0.95
	pendingThreshold = 0.85
)

// Creator materializes Transactions from extraction outcomes, resolving
// categories through the Resolver and persisting through the Store.
type Creator struct {
	store      *store.Store
	categories *category.Resolver

	createThreshold float64
	autoApproval    float64
}

// NewCreator constructs a Creator. createThreshold gates auto-creation
// and multi-transaction inclusion; autoApproval is the confidence at
// which a gate-passing record lands as pending rather than draft.
// Non-positive values fall back to the defaults.
func NewCreator(s *store.Store, categories *category.Resolver, createThreshold, autoApproval float64) *Creator {
	if createThreshold <= 0 {
		createThreshold = ConfidenceThreshold
	}
	if autoApproval <= 0 {
		autoApproval = pendingThreshold
	}
	return &Creator{
		store:           s,
		categories:      categories,
		createThreshold: createThreshold,
		autoApproval:    autoApproval,
	}
}

// ShouldCreate is the auto-creation pre-check: confidence >= the
// configured threshold AND vendor, amount, and date all present.
func (c *Creator) ShouldCreate(confidence float64, record *models.ExtractedRecord) bool {
	if confidence < c.createThreshold {
		return false
	}
	return record.Field("vendor") != nil && record.Field("amount") != nil && record.Field("date") != nil
}

// missingRequiredFields is the hard gate: category, payment_method,
// vendor (unless the description reads as a transfer/deposit), and
// amount>0.
func missingRequiredFields(record *models.ExtractedRecord, categoryID string) []string {
	var missing []string

	if categoryID == "" {
		missing = append(missing, "category")
	}
	if record.Field("payment_method") == nil {
		missing = append(missing, "payment_method")
	}

	description := ""
	if record.Description != nil {
		description = strings.ToLower(*record.Description)
	}
	isTransferOrDeposit := strings.Contains(description, "transfer") || strings.Contains(description, "deposit")
	if record.Field("vendor") == nil && !isTransferOrDeposit {
		missing = append(missing, "vendor")
	}

	if record.Amount == nil || *record.Amount <= 0 {
		missing = append(missing, "amount")
	}

	return missing
}

// determineStatus applies the required-field gate first, then the
// confidence band. Gate failures force pending regardless of confidence.
func (c *Creator) determineStatus(confidence float64, record *models.ExtractedRecord, categoryID string) (models.TransactionStatus, []string) {
	missing := missingRequiredFields(record, categoryID)
	if len(missing) > 0 {
		return models.TxPending, missing
	}

	switch {
	case confidence >= approveThreshold:
		return models.TxApproved, nil
	case confidence >= c.autoApproval:
		return models.TxPending, nil
	default:
		return models.TxDraft, nil
	}
}

// generateNotes builds the review-facing note block: a confidence line,
// a missing-fields warning when the gate failed, low-confidence field
// callouts, and a multi-transaction index marker.
func generateNotes(record *models.ExtractedRecord, confidence float64, missing []string, transactionIndex *int) string {
	var lines []string
	lines = append(lines, "Auto-created from document extraction")

	if transactionIndex != nil {
		lines = append(lines, fmt.Sprintf("Transaction #%d from multi-transaction document", *transactionIndex+1))
	}

	lines = append(lines, fmt.Sprintf("Confidence: %.1f%%", confidence*100))
	lines = append(lines, "Category selected by AI")

	if len(missing) > 0 {
		lines = append(lines, fmt.Sprintf("MISSING REQUIRED FIELDS: %s. Transaction set to 'pending' for manual review.", strings.ToUpper(strings.Join(missing, ", "))))
	}

	var low []string
	for field, conf := range record.FieldConfidence {
		if conf < 0.70 {
			low = append(low, field)
		}
	}
	if len(low) > 0 {
		lines = append(lines, "Low confidence fields: "+strings.Join(low, ", "))
	}

	if len(record.LineItems) > 0 {
		lines = append(lines, fmt.Sprintf("Contains %d line items", len(record.LineItems)))
	}

	return strings.Join(lines, "\n")
}

// coerceISODate reuses the source date when it parses, else falls back
// to the processing time.
func coerceISODate(raw *string) string {
	if raw == nil || *raw == "" {
		return time.Now().UTC().Format("2006-01-02")
	}
	layouts := []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, *raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return time.Now().UTC().Format("2006-01-02")
}

// buildTransaction assembles a Transaction from one ExtractedRecord,
// resolving its category id first.
func (c *Creator) buildTransaction(ctx context.Context, businessID, accountID, userID, documentID string, record *models.ExtractedRecord, confidence float64, transactionIndex *int) models.Transaction {
	var categoryID string
	if record.Category != nil && *record.Category != "" {
		if id, ok, err := c.categories.Resolve(ctx, businessID, *record.Category); err == nil && ok {
			categoryID = id
		} else if id, ok, err := c.categories.Suggest(ctx, businessID, derefOr(record.Description, ""), derefOr(record.Vendor, ""), record.IsIncome); err == nil && ok {
			categoryID = id
		}
	}

	status, missing := c.determineStatus(confidence, record, categoryID)

	vendor := derefOr(record.Vendor, "")
	description := derefOr(record.Description, "")
	if description == "" {
		description = fmt.Sprintf("Auto-created from %s", vendor)
	}

	amount := models.NewMoney(0)
	if record.Amount != nil {
		amount = models.NewMoney(*record.Amount)
	}

	currency := record.Currency
	if currency == "" {
		currency = "USD"
	}

	tx := models.Transaction{
		ID:               uuid.NewString(),
		BusinessID:       businessID,
		AccountID:        accountID,
		UserID:           userID,
		Amount:           amount,
		Currency:         currency,
		Date:             coerceISODate(record.Date),
		Description:      description,
		Vendor:           vendor,
		PaymentMethod:    derefOr(record.PaymentMethod, ""),
		IsIncome:         record.IsIncome,
		Status:           status,
		Notes:            generateNotes(record, confidence, missing, transactionIndex),
		SourceDocumentID: documentID,
	}
	if categoryID != "" {
		tx.CategoryID = &categoryID
	}
	if transactionIndex != nil {
		tx.TransactionIndex = *transactionIndex
	}

	return tx
}

// persist inserts a Transaction via the Store, mapping it into a Row.
func (c *Creator) persist(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	row := store.Row{
		"id":                 tx.ID,
		"business_id":        tx.BusinessID,
		"account_id":         tx.AccountID,
		"user_id":            tx.UserID,
		"amount":             tx.Amount.Float64(),
		"currency":           tx.Currency,
		"date":               tx.Date,
		"description":        tx.Description,
		"vendor":             tx.Vendor,
		"payment_method":     tx.PaymentMethod,
		"is_income":          tx.IsIncome,
		"status":             string(tx.Status),
		"notes":              tx.Notes,
		"source_document_id": tx.SourceDocumentID,
		"_transaction_index": tx.TransactionIndex,
	}
	if tx.CategoryID != nil {
		row["category_id"] = *tx.CategoryID
	}

	if _, err := c.store.Insert(ctx, "transactions", row); err != nil {
		return models.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return tx, nil
}

// CreateFromOutcome dispatches to single or multi-transaction creation
// depending on the extraction outcome's shape.
func (c *Creator) CreateFromOutcome(ctx context.Context, businessID, accountID, userID, documentID string, outcome models.ExtractionOutcome, confidence float64) ([]models.Transaction, error) {
	if outcome.IsMultiTransaction() {
		return c.createMultiple(ctx, businessID, accountID, userID, documentID, outcome.Multi)
	}
	return c.createSingle(ctx, businessID, accountID, userID, documentID, outcome.Single, confidence)
}

func (c *Creator) createSingle(ctx context.Context, businessID, accountID, userID, documentID string, record *models.ExtractedRecord, confidence float64) ([]models.Transaction, error) {
	if record == nil {
		return nil, nil
	}

	tx := c.buildTransaction(ctx, businessID, accountID, userID, documentID, record, confidence, nil)
	created, err := c.persist(ctx, tx)
	if err != nil {
		return nil, err
	}
	return []models.Transaction{created}, nil
}

// createMultiple iterates transactions, skips any below the configured
// creation threshold, and persists the rest with their transaction index
// and note.
func (c *Creator) createMultiple(ctx context.Context, businessID, accountID, userID, documentID string, result *models.MultiTransactionResult) ([]models.Transaction, error) {
	if result == nil {
		return nil, nil
	}

	var created []models.Transaction
	for i := range result.Transactions {
		record := &result.Transactions[i]
		txConfidence := scorer.ScoreRecord(record)
		if txConfidence < c.createThreshold {
			continue
		}

		idx := i
		tx := c.buildTransaction(ctx, businessID, accountID, userID, documentID, record, txConfidence, &idx)
		persisted, err := c.persist(ctx, tx)
		if err != nil {
			return created, err
		}
		created = append(created, persisted)
	}

	return created, nil
}

// LinkDocument updates the source document with the created transaction
// ids: transaction_id is the first created id, linked_transaction_ids is
// the full set, multi_transaction_count is its length, and
// auto_created_transaction is true.
func (c *Creator) LinkDocument(ctx context.Context, documentID string, created []models.Transaction) error {
	if len(created) == 0 {
		return nil
	}

	ids := make([]string, len(created))
	for i, tx := range created {
		ids[i] = tx.ID
	}

	_, err := c.store.PatchByID(ctx, "documents", documentID, store.Row{
		"transaction_id":           ids[0],
		"linked_transaction_ids":   ids,
		"multi_transaction_count":  len(ids),
		"auto_created_transaction": true,
	})
	if err != nil {
		return fmt.Errorf("link document %s to transactions: %w", documentID, err)
	}
	return nil
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
