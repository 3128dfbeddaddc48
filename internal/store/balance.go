package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// AppendLedgerEntry inserts a ledger row and moves the account balance in
// one transaction. The account row is locked for the duration, so
// concurrent appends against the same account serialize and each observes
// the balance the previous one wrote. entry must carry every ledger
// column except amount_before, change_amount, and amount_after, which are
// filled here from the locked balance. A duplicate transaction_id rolls
// the whole unit back and returns ErrDuplicateEntry with the balance
// untouched.
func (s *Store) AppendLedgerEntry(ctx context.Context, accountID string, entry Row, changeCents int64) (before, after int64, err error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin ledger append: %w", err)
	}
	defer tx.Rollback(ctx)

	var beforeCents int64
	err = tx.QueryRow(ctx, `SELECT (current_balance * 100)::bigint FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&beforeCents)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, 0, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
		}
		return 0, 0, fmt.Errorf("read balance: %w", err)
	}

	afterCents := beforeCents + changeCents

	entry["amount_before"] = float64(beforeCents) / 100
	entry["change_amount"] = float64(changeCents) / 100
	entry["amount_after"] = float64(afterCents) / 100

	cols := make([]string, 0, len(entry))
	placeholders := make([]string, 0, len(entry))
	args := make([]any, 0, len(entry))
	for k, v := range entry {
		cols = append(cols, pgx.Identifier{k}.Sanitize())
		args = append(args, v)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	sql := fmt.Sprintf("INSERT INTO ledger (%s) VALUES (%s)", join(cols, ","), join(placeholders, ","))
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return 0, 0, fmt.Errorf("insert ledger entry: %w", ErrDuplicateEntry)
		}
		return 0, 0, fmt.Errorf("insert ledger entry: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE accounts
		SET current_balance = $1::numeric / 100, available_balance = $1::numeric / 100, updated_at = NOW()
		WHERE id = $2
	`, afterCents, accountID); err != nil {
		return 0, 0, fmt.Errorf("write balance: %w", err)
	}

	var storedCents int64
	if err := tx.QueryRow(ctx, `SELECT (current_balance * 100)::bigint FROM accounts WHERE id = $1`, accountID).Scan(&storedCents); err != nil {
		return 0, 0, fmt.Errorf("verify balance: %w", err)
	}
	if storedCents != afterCents {
		return 0, 0, fmt.Errorf("account %s balance drifted during append: %w", accountID, ErrInvariantViolation)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit ledger append: %w", err)
	}

	return beforeCents, afterCents, nil
}
