// Package models holds the entities that flow through the ingest-to-ledger
// core: businesses, accounts, categories, documents, transactions, and
// ledger entries, plus the intermediate extraction types the pipeline
// stages exchange with one another.
package models

import "time"

// BusinessStatus is the lifecycle state of a Business.
type BusinessStatus string

const (
	BusinessActive    BusinessStatus = "active"
	BusinessSuspended BusinessStatus = "suspended"
	BusinessClosed    BusinessStatus = "closed"
)

// Business owns every Account, Category, Document, and Transaction in the
// core. Its currency is immutable once the first transaction is created.
type Business struct {
	ID              string         `json:"id"`
	Currency        string         `json:"currency"`
	Status          BusinessStatus `json:"status"`
	FiscalYearStart int            `json:"fiscal_year_start"`
}

// AccountType enumerates the kinds of account the core can post against.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCredit     AccountType = "credit_card"
	AccountInvestment AccountType = "investment"
	AccountLoan       AccountType = "loan"
	AccountCash       AccountType = "cash"
	AccountOther      AccountType = "other"
)

// Account tracks a running balance that is mutated exclusively by the
// Ledger service; AvailableBalance is nil unless the backing store
// computed one, since the two values legitimately differ for credit
// accounts.
type Account struct {
	ID               string      `json:"id"`
	BusinessID       string      `json:"business_id"`
	Type             AccountType `json:"type"`
	Currency         string      `json:"currency"`
	CurrentBalance   Money       `json:"current_balance"`
	AvailableBalance *Money      `json:"available_balance,omitempty"`
	IsPrimary        bool        `json:"is_primary"`
	IsActive         bool        `json:"is_active"`
}

// CategoryType is the income/expense partition of a Category.
type CategoryType string

const (
	CategoryIncome  CategoryType = "income"
	CategoryExpense CategoryType = "expense"
)

// Category is a node in a business-scoped, cycle-free tree.
type Category struct {
	ID           string       `json:"id"`
	BusinessID   string       `json:"business_id"`
	Type         CategoryType `json:"type"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	ParentID     *string      `json:"parent_id,omitempty"`
	IsSystem     bool         `json:"is_system"`
	IsActive     bool         `json:"is_active"`
	DisplayOrder int          `json:"display_order"`
}

// ExtractionStatus is the wire vocabulary for Document.ExtractionStatus.
type ExtractionStatus string

const (
	ExtractionPending    ExtractionStatus = "pending"
	ExtractionProcessing ExtractionStatus = "processing"
	ExtractionCompleted  ExtractionStatus = "completed"
	ExtractionFailed     ExtractionStatus = "failed"
)

// Document is the source record the Orchestrator drives from upload to a
// terminal extraction status.
type Document struct {
	ID                     string           `json:"id"`
	BusinessID             string           `json:"business_id"`
	FilePath               string           `json:"file_path"`
	MIME                   string           `json:"mime"`
	DocumentName           string           `json:"document_name"`
	ExtractionStatus       ExtractionStatus `json:"extraction_status"`
	DocumentType           string           `json:"document_type,omitempty"`
	RawText                string           `json:"raw_text,omitempty"`
	StructuredData         map[string]any   `json:"structured_data,omitempty"`
	ConfidenceScore        *float64         `json:"confidence_score,omitempty"`
	ProcessingError        string           `json:"processing_error,omitempty"`
	ProcessedAt            *time.Time       `json:"processed_at,omitempty"`
	TransactionID          string           `json:"transaction_id,omitempty"`
	AutoCreatedTransaction bool             `json:"auto_created_transaction"`
	LinkedTransactionIDs   []string         `json:"linked_transaction_ids,omitempty"`
	MultiTransactionCount  int              `json:"multi_transaction_count,omitempty"`
}

// TransactionStatus is the wire vocabulary for Transaction.Status.
type TransactionStatus string

const (
	TxDraft    TransactionStatus = "draft"
	TxPending  TransactionStatus = "pending"
	TxApproved TransactionStatus = "approved"
	TxRejected TransactionStatus = "rejected"
)

// Transaction is a single financial event materialized by the Transaction
// Creator and, once approved, posted to the Ledger.
type Transaction struct {
	ID                string            `json:"id"`
	BusinessID        string            `json:"business_id"`
	AccountID         string            `json:"account_id"`
	CategoryID        *string           `json:"category_id,omitempty"`
	UserID            string            `json:"user_id"`
	Amount            Money             `json:"amount"`
	Currency          string            `json:"currency"`
	Date              string            `json:"date"`
	Description       string            `json:"description"`
	Vendor            string            `json:"vendor,omitempty"`
	PaymentMethod     string            `json:"payment_method,omitempty"`
	IsIncome          bool              `json:"is_income"`
	Status            TransactionStatus `json:"status"`
	Notes             string            `json:"notes,omitempty"`
	SourceDocumentID  string            `json:"source_document_id,omitempty"`
	ApprovedBy        string            `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time        `json:"approved_at,omitempty"`
	TransactionIndex  int               `json:"transaction_index,omitempty"`
}

// LedgerEntryType is income or expense, matching the sign of ChangeAmount.
type LedgerEntryType string

const (
	LedgerIncome  LedgerEntryType = "income"
	LedgerExpense LedgerEntryType = "expense"
)

// LedgerEntry is the append-only record of one balance-changing event. It is
// unique per TransactionID and never updated or deleted once written.
type LedgerEntry struct {
	ID              string          `json:"id"`
	BusinessID      string          `json:"business_id"`
	AccountID       string          `json:"account_id"`
	TransactionID   string          `json:"transaction_id"`
	AmountBefore    Money           `json:"amount_before"`
	ChangeAmount    Money           `json:"change_amount"`
	AmountAfter     Money           `json:"amount_after"`
	TransactionType LedgerEntryType `json:"transaction_type"`
	Description     string          `json:"description,omitempty"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}
