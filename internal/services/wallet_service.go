package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/servicehub/booking-engine/internal/models"
)

// WalletService exposes the wallet ledger to users and admins
type WalletService struct {
	wallets WalletStore
	effects *effectEmitter
	logger  *logrus.Logger
}

// NewWalletService creates a new WalletService
func NewWalletService(wallets WalletStore, notifier Notifier, logger *logrus.Logger) *WalletService {
	return &WalletService{
		wallets: wallets,
		effects: &effectEmitter{notifier: notifier, logger: logger},
		logger:  logger,
	}
}

// GetWallet returns the caller's wallet, opening it on first use
func (s *WalletService) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return s.wallets.GetOrCreate(ctx, userID)
}

// ListTransactions returns the caller's ledger, newest first
func (s *WalletService) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.wallets.ListTransactions(ctx, userID, limit, offset)
}

// Credit adds funds to a wallet
func (s *WalletService) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, kind models.TransactionType, description string, bookingID *uuid.UUID) (*models.Transaction, error) {
	return s.post(ctx, models.LedgerPosting{UserID: userID, Op: models.LedgerCredit, Type: kind, Amount: amount, Description: description, BookingID: bookingID})
}

// Debit removes available funds from a wallet
func (s *WalletService) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, kind models.TransactionType, description string, bookingID *uuid.UUID) (*models.Transaction, error) {
	return s.post(ctx, models.LedgerPosting{UserID: userID, Op: models.LedgerDebit, Type: kind, Amount: amount, Description: description, BookingID: bookingID})
}

// TopUp credits a wallet after an external payment confirmed by an admin
func (s *WalletService) TopUp(ctx context.Context, actor models.Actor, userID uuid.UUID, req *models.TopUpRequest) (*models.Transaction, error) {
	if !actor.IsAdmin() {
		return nil, models.UnauthorizedError("only admins can top up wallets")
	}
	description := "Wallet top-up"
	if req.Reference != "" {
		description += " (" + req.Reference + ")"
	}
	return s.Credit(ctx, userID, req.Amount, models.TransactionWalletTopup, description, nil)
}

func (s *WalletService) post(ctx context.Context, posting models.LedgerPosting) (*models.Transaction, error) {
	if !posting.Amount.IsPositive() {
		return nil, models.ValidationError("amount", "amount must be positive")
	}
	txn, err := s.wallets.Post(ctx, posting)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"user_id": posting.UserID,
		"op":      posting.Op,
		"type":    posting.Type,
		"amount":  posting.Amount.String(),
	}).Info("Wallet posting applied")
	return txn, nil
}

// RequestWithdrawal locks amount until an admin pays or rejects the request
func (s *WalletService) RequestWithdrawal(ctx context.Context, userID uuid.UUID, req *models.CreateWithdrawalRequest) (*models.WithdrawalRequest, error) {
	if !req.Amount.IsPositive() {
		return nil, models.ValidationError("amount", "amount must be positive")
	}
	if req.Amount.Exponent() < -2 {
		return nil, models.ValidationError("amount", "amount cannot have more than two decimal places")
	}
	return s.wallets.CreateWithdrawal(ctx, userID, req.Amount)
}

// GetWithdrawal returns a withdrawal request to its owner or an admin
func (s *WalletService) GetWithdrawal(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.WithdrawalRequest, error) {
	w, err := s.wallets.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, models.NotFoundError("withdrawal", id)
	}
	return w, nil
}

// ListWithdrawals returns withdrawal requests, optionally filtered by status
func (s *WalletService) ListWithdrawals(ctx context.Context, actor models.Actor, status *models.WithdrawalStatus, limit, offset int) ([]models.WithdrawalRequest, error) {
	if !actor.IsAdmin() {
		return nil, models.UnauthorizedError("only admins can list withdrawals")
	}
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	return s.wallets.ListWithdrawals(ctx, status, limit, offset)
}

// CompleteWithdrawal pays out a pending request, removing the locked funds
func (s *WalletService) CompleteWithdrawal(ctx context.Context, actor models.Actor, id uuid.UUID, reference string) (*models.WithdrawalRequest, error) {
	if !actor.IsAdmin() {
		return nil, models.UnauthorizedError("only admins can process withdrawals")
	}
	if reference == "" {
		return nil, models.ValidationError("reference", "payout reference is required")
	}
	w, err := s.wallets.CompleteWithdrawal(ctx, id, actor.UserID, reference)
	if err != nil {
		return nil, err
	}
	s.notifyWithdrawal(ctx, w, fmt.Sprintf("Your withdrawal of %s has been paid", w.Amount.StringFixed(2)))
	return w, nil
}

// RejectWithdrawal releases the locked funds back to the available balance
func (s *WalletService) RejectWithdrawal(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.WithdrawalRequest, error) {
	if !actor.IsAdmin() {
		return nil, models.UnauthorizedError("only admins can process withdrawals")
	}
	w, err := s.wallets.RejectWithdrawal(ctx, id, actor.UserID, reason)
	if err != nil {
		return nil, err
	}
	s.notifyWithdrawal(ctx, w, fmt.Sprintf("Your withdrawal of %s was rejected: %s", w.Amount.StringFixed(2), reason))
	return w, nil
}

func (s *WalletService) notifyWithdrawal(ctx context.Context, w *models.WithdrawalRequest, message string) {
	s.effects.send(ctx, notice{
		userID:  w.UserID,
		kind:    models.NotificationWithdrawal,
		title:   "Withdrawal update",
		message: message,
		data: map[string]interface{}{
			"withdrawal_id": w.ID.String(),
			"status":        string(w.Status),
			"amount":        w.Amount.StringFixed(2),
		},
	}, logrus.Fields{"withdrawal_id": w.ID})
}
