package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/structhub/docintake/internal/common"
)

// LedgerRepository is the usage-ledger boundary: a conditional decrement that
// is atomic at the storage layer. Debit must never be implemented as a
// read-then-write round trip.
type LedgerRepository interface {
	// Debit decrements the balance if sufficient. Returns false (no error)
	// when the balance is too low; the account row is left unchanged.
	Debit(ctx context.Context, accountID uuid.UUID, amount int64) (bool, error)
	// Credit increases the balance unconditionally.
	Credit(ctx context.Context, accountID uuid.UUID, amount int64) error
	// Balance is a point-in-time read for display, not for correctness gating.
	Balance(ctx context.Context, accountID uuid.UUID) (int64, error)
}

type ledgerRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewLedgerRepository(db *sql.DB, log *slog.Logger) LedgerRepository {
	if log == nil {
		log = slog.Default()
	}
	return &ledgerRepo{db: db, log: log}
}

func (r *ledgerRepo) Debit(ctx context.Context, accountID uuid.UUID, amount int64) (bool, error) {
	if amount < 0 {
		return false, fmt.Errorf("debit amount %d: %w", amount, common.ErrInvalidInput)
	}
	// Single-statement conditional update; safe under concurrent debits.
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET credits = credits - $1 WHERE id = $2 AND credits >= $1`,
		amount, accountID.String(),
	)
	if err != nil {
		r.log.Error("ledger debit failed", "account_id", accountID, "amount", amount, "err", err)
		return false, common.DatabaseError("debit account", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, common.DatabaseError("debit account", err)
	}
	if n == 0 {
		r.log.Warn("ledger debit insufficient", "account_id", accountID, "amount", amount)
		return false, nil
	}
	r.log.Info("ledger debit ok", "account_id", accountID, "amount", amount)
	return true, nil
}

func (r *ledgerRepo) Credit(ctx context.Context, accountID uuid.UUID, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("credit amount %d: %w", amount, common.ErrInvalidInput)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET credits = credits + $1 WHERE id = $2`,
		amount, accountID.String(),
	)
	if err != nil {
		r.log.Error("ledger credit failed", "account_id", accountID, "amount", amount, "err", err)
		return common.DatabaseError("credit account", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %s: %w", accountID, common.ErrNotFound)
	}
	r.log.Info("ledger credit ok", "account_id", accountID, "amount", amount)
	return nil
}

func (r *ledgerRepo) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var credits int64
	err := r.db.QueryRowContext(ctx,
		`SELECT credits FROM accounts WHERE id = $1`, accountID.String(),
	).Scan(&credits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("account %s: %w", accountID, common.ErrNotFound)
	}
	if err != nil {
		return 0, common.DatabaseError("read balance", err)
	}
	return credits, nil
}
