package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/servicehub/booking-engine/internal/models"
)

// WalletOperations is the wallet and payout surface
type WalletOperations interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error)
	TopUp(ctx context.Context, actor models.Actor, userID uuid.UUID, req *models.TopUpRequest) (*models.Transaction, error)
	RequestWithdrawal(ctx context.Context, userID uuid.UUID, req *models.CreateWithdrawalRequest) (*models.WithdrawalRequest, error)
	GetWithdrawal(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, actor models.Actor, status *models.WithdrawalStatus, limit, offset int) ([]models.WithdrawalRequest, error)
	CompleteWithdrawal(ctx context.Context, actor models.Actor, id uuid.UUID, reference string) (*models.WithdrawalRequest, error)
	RejectWithdrawal(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.WithdrawalRequest, error)
}

// WalletHandler handles the caller's own wallet
type WalletHandler struct {
	wallets WalletOperations
	logger  *logrus.Logger
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(wallets WalletOperations, logger *logrus.Logger) *WalletHandler {
	return &WalletHandler{wallets: wallets, logger: logger}
}

// GetWallet handles GET /api/v1/wallet
func (h *WalletHandler) GetWallet(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	wallet, err := h.wallets.GetWallet(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": wallet})
}

// ListTransactions handles GET /api/v1/wallet/transactions
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	limit, offset := pagination(c)

	txs, err := h.wallets.ListTransactions(c.Request.Context(), actor.UserID, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "total": len(txs)})
}

// RequestWithdrawal handles POST /api/v1/wallet/withdrawals
func (h *WalletHandler) RequestWithdrawal(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req models.CreateWithdrawalRequest
	if !bindJSON(c, &req) {
		return
	}

	w, err := h.wallets.RequestWithdrawal(c.Request.Context(), actor.UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"withdrawal": w})
}

// GetWithdrawal handles GET /api/v1/wallet/withdrawals/:id
func (h *WalletHandler) GetWithdrawal(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	w, err := h.wallets.GetWithdrawal(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawal": w})
}
