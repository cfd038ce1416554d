package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/servicehub/booking-engine/internal/models"
)

const walletColumns = `id, user_id, balance, locked_balance, currency, created_at, updated_at`

const transactionColumns = `id, wallet_id, user_id, type, amount, balance_before, balance_after,
	locked_after, description, booking_id, created_at`

const withdrawalColumns = `id, user_id, amount, status, reference, failure_reason,
	processed_by, processed_at, created_at, updated_at`

// WalletRepository is the wallet ledger. Every balance change is one
// transaction that locks the wallet row and appends a transactions row.
type WalletRepository struct {
	db       *sqlx.DB
	currency string
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *sqlx.DB, currency string) *WalletRepository {
	return &WalletRepository{db: db, currency: currency}
}

// ============================================================================
// WALLETS
// ============================================================================

// GetOrCreate returns the user's wallet, creating an empty one on first use
func (r *WalletRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if err := ensureWalletTx(ctx, r.db, userID, r.currency); err != nil {
		return nil, err
	}

	var wallet models.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &wallet, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

// Post applies a single credit, debit, lock, unlock or release atomically
func (r *WalletRepository) Post(ctx context.Context, posting models.LedgerPosting) (*models.Transaction, error) {
	var txn *models.Transaction
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		txn, err = postLedgerEntry(ctx, tx, r.currency, posting)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// ListTransactions returns the user's ledger, newest first
func (r *WalletRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	txns := []models.Transaction{}
	if err := r.db.SelectContext(ctx, &txns, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

// ============================================================================
// WITHDRAWALS
// ============================================================================

// CreateWithdrawal locks amount and records a pending withdrawal request
func (r *WalletRepository) CreateWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.WithdrawalRequest, error) {
	now := time.Now()
	withdrawal := &models.WithdrawalRequest{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    amount,
		Status:    models.WithdrawalPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := postLedgerEntry(ctx, tx, r.currency, models.LedgerPosting{
			UserID:      userID,
			Op:          models.LedgerLock,
			Type:        models.TransactionWithdrawalLock,
			Amount:      amount,
			Description: fmt.Sprintf("Withdrawal request %s", withdrawal.ID),
		})
		if err != nil {
			return err
		}

		query := `
			INSERT INTO withdrawal_requests (id, user_id, amount, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`
		if _, err := tx.ExecContext(ctx, query,
			withdrawal.ID, withdrawal.UserID, withdrawal.Amount, withdrawal.Status,
			withdrawal.CreatedAt, withdrawal.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to create withdrawal request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawal, nil
}

// GetWithdrawal returns a withdrawal request by id
func (r *WalletRepository) GetWithdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1`
	if err := r.db.GetContext(ctx, &w, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("withdrawal %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return &w, nil
}

// ListWithdrawals lists withdrawal requests, optionally by status, oldest first
func (r *WalletRepository) ListWithdrawals(ctx context.Context, status *models.WithdrawalStatus, limit, offset int) ([]models.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests`
	args := []interface{}{}
	if status != nil {
		args = append(args, *status)
		query += ` WHERE status = $1`
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY created_at LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	list := []models.WithdrawalRequest{}
	if err := r.db.SelectContext(ctx, &list, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	return list, nil
}

// CompleteWithdrawal pays out a pending request: the locked funds leave the wallet
func (r *WalletRepository) CompleteWithdrawal(ctx context.Context, id, processedBy uuid.UUID, reference string) (*models.WithdrawalRequest, error) {
	return r.processWithdrawal(ctx, id, processedBy, models.WithdrawalCompleted, reference)
}

// RejectWithdrawal returns the locked funds to the available balance
func (r *WalletRepository) RejectWithdrawal(ctx context.Context, id, processedBy uuid.UUID, reason string) (*models.WithdrawalRequest, error) {
	return r.processWithdrawal(ctx, id, processedBy, models.WithdrawalRejected, reason)
}

func (r *WalletRepository) processWithdrawal(ctx context.Context, id, processedBy uuid.UUID, outcome models.WithdrawalStatus, note string) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &w, query, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("withdrawal %s: %w", id, models.ErrNotFound)
			}
			return fmt.Errorf("failed to lock withdrawal: %w", err)
		}
		if w.Status != models.WithdrawalPending {
			return models.NewDomainError(models.ErrInvalidState, "WITHDRAWAL_PROCESSED",
				fmt.Sprintf("withdrawal is already %s", w.Status),
				map[string]interface{}{"current_status": string(w.Status)})
		}

		posting := models.LedgerPosting{UserID: w.UserID, Amount: w.Amount}
		if outcome == models.WithdrawalCompleted {
			posting.Op = models.LedgerRelease
			posting.Type = models.TransactionPayout
			posting.Description = fmt.Sprintf("Withdrawal %s paid out", w.ID)
		} else {
			posting.Op = models.LedgerUnlock
			posting.Type = models.TransactionWithdrawalUnlock
			posting.Description = fmt.Sprintf("Withdrawal %s rejected", w.ID)
		}
		if _, err := postLedgerEntry(ctx, tx, r.currency, posting); err != nil {
			return err
		}

		now := time.Now()
		w.Status = outcome
		w.ProcessedBy = &processedBy
		w.ProcessedAt = &now
		w.UpdatedAt = now
		if outcome == models.WithdrawalCompleted {
			w.Reference = &note
		} else {
			w.FailureReason = &note
		}

		update := `
			UPDATE withdrawal_requests
			SET status = $1, reference = $2, failure_reason = $3, processed_by = $4,
			    processed_at = $5, updated_at = $5
			WHERE id = $6 AND status = 'PENDING'`
		if _, err := tx.ExecContext(ctx, update,
			w.Status, w.Reference, w.FailureReason, processedBy, now, w.ID,
		); err != nil {
			return fmt.Errorf("failed to update withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ============================================================================
// LEDGER PRIMITIVES (shared with booking transactions)
// ============================================================================

// ensureWalletTx creates an empty wallet for the user if none exists
func ensureWalletTx(ctx context.Context, exec sqlx.ExecerContext, userID uuid.UUID, currency string) error {
	query := `
		INSERT INTO wallets (id, user_id, balance, locked_balance, currency, created_at, updated_at)
		VALUES ($1, $2, 0, 0, $3, NOW(), NOW())
		ON CONFLICT (user_id) DO NOTHING`
	if _, err := exec.ExecContext(ctx, query, uuid.New(), userID, currency); err != nil {
		return fmt.Errorf("failed to ensure wallet: %w", err)
	}
	return nil
}

// postLedgerEntry locks the wallet row, applies the posting and appends the
// transactions row. Must run inside tx so both writes commit together.
func postLedgerEntry(ctx context.Context, tx *sqlx.Tx, currency string, p models.LedgerPosting) (*models.Transaction, error) {
	if err := ensureWalletTx(ctx, tx, p.UserID, currency); err != nil {
		return nil, err
	}

	var wallet models.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &wallet, query, p.UserID); err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}

	next, err := wallet.Apply(p.Op, p.Amount)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE wallets SET balance = $1, locked_balance = $2, updated_at = NOW() WHERE id = $3`,
		next.Balance, next.LockedBalance, wallet.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to update wallet: %w", err)
	}

	txn := &models.Transaction{
		ID:            uuid.New(),
		WalletID:      wallet.ID,
		UserID:        p.UserID,
		Type:          p.Type,
		Amount:        p.Amount,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  next.Balance,
		LockedAfter:   next.LockedBalance,
		Description:   p.Description,
		BookingID:     p.BookingID,
		CreatedAt:     time.Now(),
	}

	insert := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := tx.ExecContext(ctx, insert,
		txn.ID, txn.WalletID, txn.UserID, txn.Type, txn.Amount, txn.BalanceBefore,
		txn.BalanceAfter, txn.LockedAfter, txn.Description, txn.BookingID, txn.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	return txn, nil
}

// bookingSettledTx reports whether earnings were already posted for the booking
func bookingSettledTx(ctx context.Context, tx *sqlx.Tx, bookingID uuid.UUID) (bool, error) {
	var settled bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE booking_id = $1 AND type IN ('EARNING', 'COMMISSION')
		)`
	if err := tx.GetContext(ctx, &settled, query, bookingID); err != nil {
		return false, fmt.Errorf("failed to check settlement: %w", err)
	}
	return settled, nil
}
