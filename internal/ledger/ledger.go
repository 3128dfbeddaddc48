// Package ledger is the append-only double-entry service. Entry insert
// and balance write happen in one store transaction with the account row
// locked, so the amount_before/change/amount_after triple holds under
// concurrent approvals on the same account.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/syntheit/ledgerflow/internal/models"
	"github.com/syntheit/ledgerflow/internal/store"
)

// appender is the single store primitive the ledger uses, carved out so
// the posting rules can be exercised against an in-memory double.
type appender interface {
	AppendLedgerEntry(ctx context.Context, accountID string, entry store.Row, changeCents int64) (before, after int64, err error)
}

// Service posts ledger entries and mutates account balances through the
// Store's atomic append primitive.
type Service struct {
	store appender
}

// NewService constructs a ledger Service.
func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// Append inserts a LedgerEntry unique by transaction_id and writes back
// the account balance, both inside one store transaction. Re-appending
// for a transaction_id that already has an entry is swallowed as a no-op
// and leaves the balance untouched.
func (s *Service) Append(ctx context.Context, businessID, accountID, transactionID string, change models.Money, entryType models.LedgerEntryType, userID, description string) (*models.LedgerEntry, error) {
	entry := &models.LedgerEntry{
		ID:              uuid.NewString(),
		BusinessID:      businessID,
		AccountID:       accountID,
		TransactionID:   transactionID,
		ChangeAmount:    change,
		TransactionType: entryType,
		Description:     description,
		CreatedBy:       userID,
		CreatedAt:       time.Now().UTC(),
	}

	before, after, err := s.store.AppendLedgerEntry(ctx, accountID, store.Row{
		"id":               entry.ID,
		"business_id":      entry.BusinessID,
		"account_id":       entry.AccountID,
		"transaction_id":   entry.TransactionID,
		"transaction_type": string(entry.TransactionType),
		"description":      entry.Description,
		"created_by":       entry.CreatedBy,
		"created_at":       entry.CreatedAt,
	}, int64(change))
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEntry) {
			return nil, nil
		}
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}

	entry.AmountBefore = models.Money(before)
	entry.AmountAfter = models.Money(after)
	return entry, nil
}

// ChangeForTransaction applies the sign convention: income posts as
// +amount, expense posts as -amount.
func ChangeForTransaction(tx models.Transaction) (models.Money, models.LedgerEntryType) {
	if tx.IsIncome {
		return tx.Amount, models.LedgerIncome
	}
	return -tx.Amount, models.LedgerExpense
}

// AppendForApproval posts the ledger entry for an approved Transaction,
// deriving the change amount and entry type from its sign convention.
func (s *Service) AppendForApproval(ctx context.Context, tx models.Transaction, userID string) (*models.LedgerEntry, error) {
	change, entryType := ChangeForTransaction(tx)
	return s.Append(ctx, tx.BusinessID, tx.AccountID, tx.ID, change, entryType, userID, tx.Description)
}

// Reverse posts the inverse of a transaction's ledger entry when an
// approval is undone. The reversal is a new, independently idempotent
// append keyed by a synthetic "<transaction_id>:reversal" id, never a
// mutation of the existing entry.
func (s *Service) Reverse(ctx context.Context, tx models.Transaction, userID string) (*models.LedgerEntry, error) {
	change, entryType := ChangeForTransaction(tx)
	reversalType := models.LedgerExpense
	if entryType == models.LedgerExpense {
		reversalType = models.LedgerIncome
	}
	return s.Append(ctx, tx.BusinessID, tx.AccountID, tx.ID+":reversal", -change, reversalType, userID, "Reversal: "+tx.Description)
}
