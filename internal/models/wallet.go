package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType classifies a wallet ledger entry
type TransactionType string

const (
	TransactionWalletTopup      TransactionType = "WALLET_TOPUP"
	TransactionBookingPayment   TransactionType = "BOOKING_PAYMENT"
	TransactionEarning          TransactionType = "EARNING"
	TransactionCommission       TransactionType = "COMMISSION"
	TransactionRefund           TransactionType = "REFUND"
	TransactionPayout           TransactionType = "PAYOUT"
	TransactionWithdrawalLock   TransactionType = "WITHDRAWAL_LOCK"
	TransactionWithdrawalUnlock TransactionType = "WITHDRAWAL_UNLOCK"
)

// LedgerOp is the effect a posting has on a wallet
type LedgerOp string

const (
	LedgerCredit LedgerOp = "CREDIT"
	LedgerDebit  LedgerOp = "DEBIT"
	LedgerLock   LedgerOp = "LOCK"
	LedgerUnlock LedgerOp = "UNLOCK"
	// LedgerRelease removes previously locked funds from the wallet (withdrawal paid out)
	LedgerRelease LedgerOp = "RELEASE"
)

// Wallet is a user's balance. Balance includes LockedBalance.
type Wallet struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	UserID        uuid.UUID       `json:"user_id" db:"user_id"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	LockedBalance decimal.Decimal `json:"locked_balance" db:"locked_balance"`
	Currency      string          `json:"currency" db:"currency"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Available is the spendable part of the balance
func (w Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.LockedBalance)
}

// Apply returns the wallet after op, or an error when it would break
// balance >= 0, locked >= 0 or locked <= balance.
func (w Wallet) Apply(op LedgerOp, amount decimal.Decimal) (Wallet, error) {
	if !amount.IsPositive() {
		return w, ValidationError("amount", "amount must be positive")
	}

	next := w
	switch op {
	case LedgerCredit:
		next.Balance = w.Balance.Add(amount)
	case LedgerDebit:
		if w.Available().LessThan(amount) {
			return w, insufficientFunds(w, amount)
		}
		next.Balance = w.Balance.Sub(amount)
	case LedgerLock:
		if w.Available().LessThan(amount) {
			return w, insufficientFunds(w, amount)
		}
		next.LockedBalance = w.LockedBalance.Add(amount)
	case LedgerUnlock:
		if w.LockedBalance.LessThan(amount) {
			return w, NewDomainError(ErrInvalidState, "LOCK_UNDERFLOW",
				fmt.Sprintf("cannot unlock %s, only %s locked", amount, w.LockedBalance), nil)
		}
		next.LockedBalance = w.LockedBalance.Sub(amount)
	case LedgerRelease:
		if w.LockedBalance.LessThan(amount) {
			return w, NewDomainError(ErrInvalidState, "LOCK_UNDERFLOW",
				fmt.Sprintf("cannot release %s, only %s locked", amount, w.LockedBalance), nil)
		}
		next.LockedBalance = w.LockedBalance.Sub(amount)
		next.Balance = w.Balance.Sub(amount)
	default:
		return w, fmt.Errorf("unknown ledger op %q", op)
	}
	return next, nil
}

func insufficientFunds(w Wallet, amount decimal.Decimal) *DomainError {
	return NewDomainError(ErrInsufficientFunds, "INSUFFICIENT_FUNDS",
		fmt.Sprintf("insufficient wallet balance: available %s, required %s", w.Available(), amount),
		map[string]interface{}{
			"available": w.Available().String(),
			"required":  amount.String(),
		})
}

// LedgerPosting is a single movement to apply to a user's wallet
type LedgerPosting struct {
	UserID      uuid.UUID
	Op          LedgerOp
	Type        TransactionType
	Amount      decimal.Decimal
	Description string
	BookingID   *uuid.UUID
}

// Transaction is an immutable wallet ledger entry
type Transaction struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	WalletID      uuid.UUID       `json:"wallet_id" db:"wallet_id"`
	UserID        uuid.UUID       `json:"user_id" db:"user_id"`
	Type          TransactionType `json:"type" db:"type"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before" db:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after" db:"balance_after"`
	LockedAfter   decimal.Decimal `json:"locked_after" db:"locked_after"`
	Description   string          `json:"description" db:"description"`
	BookingID     *uuid.UUID      `json:"booking_id,omitempty" db:"booking_id"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// WithdrawalStatus is the lifecycle of a payout request
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "PENDING"
	WithdrawalCompleted WithdrawalStatus = "COMPLETED"
	WithdrawalRejected  WithdrawalStatus = "REJECTED"
)

// WithdrawalRequest reserves wallet funds until an admin pays or rejects it
type WithdrawalRequest struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	UserID        uuid.UUID        `json:"user_id" db:"user_id"`
	Amount        decimal.Decimal  `json:"amount" db:"amount"`
	Status        WithdrawalStatus `json:"status" db:"status"`
	Reference     *string          `json:"reference,omitempty" db:"reference"`
	FailureReason *string          `json:"failure_reason,omitempty" db:"failure_reason"`
	ProcessedBy   *uuid.UUID       `json:"processed_by,omitempty" db:"processed_by"`
	ProcessedAt   *time.Time       `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}

// CreateWithdrawalRequest is the body of a payout request
type CreateWithdrawalRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// ProcessWithdrawalRequest is an admin's payout decision
type ProcessWithdrawalRequest struct {
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

// TopUpRequest credits a wallet after an external payment
type TopUpRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}
