package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/servicehub/booking-engine/internal/models"
)

// KYCReviewer records partner verification decisions
type KYCReviewer interface {
	UpdateKYCStatus(ctx context.Context, actor models.Actor, partnerID uuid.UUID, status models.KYCStatus) (*models.ServicePartner, error)
}

// SweepRunner exposes the scheduled maintenance jobs
type SweepRunner interface {
	RunExpireAbandonedNow()
	RunRedispatchStaleNow()
	GetJobStatus() map[string]interface{}
}

// AdminHandler handles admin-related HTTP requests
type AdminHandler struct {
	kyc     KYCReviewer
	wallets WalletOperations
	sweeps  SweepRunner
	logger  *logrus.Logger
}

// NewAdminHandler creates a new admin handler. sweeps may be nil when the
// scheduler is disabled.
func NewAdminHandler(kyc KYCReviewer, wallets WalletOperations, sweeps SweepRunner, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{kyc: kyc, wallets: wallets, sweeps: sweeps, logger: logger}
}

// ===================================================================
// PARTNER VERIFICATION
// ===================================================================

// UpdatePartnerKYC handles PUT /api/v1/admin/partners/:id/kyc
func (h *AdminHandler) UpdatePartnerKYC(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	partnerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.UpdateKYCRequest
	if !bindJSON(c, &req) {
		return
	}

	partner, err := h.kyc.UpdateKYCStatus(c.Request.Context(), actor, partnerID, req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"partner": partner})
}

// ===================================================================
// WALLETS AND PAYOUTS
// ===================================================================

// TopUpWallet handles POST /api/v1/admin/users/:id/wallet/top-up
func (h *AdminHandler) TopUpWallet(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.TopUpRequest
	if !bindJSON(c, &req) {
		return
	}

	tx, err := h.wallets.TopUp(c.Request.Context(), actor, userID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// ListWithdrawals handles GET /api/v1/admin/withdrawals
func (h *AdminHandler) ListWithdrawals(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	limit, offset := pagination(c)

	var status *models.WithdrawalStatus
	if raw := c.Query("status"); raw != "" {
		s := models.WithdrawalStatus(raw)
		status = &s
	}

	items, err := h.wallets.ListWithdrawals(c.Request.Context(), actor, status, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": items, "total": len(items)})
}

// CompleteWithdrawal handles POST /api/v1/admin/withdrawals/:id/complete
func (h *AdminHandler) CompleteWithdrawal(c *gin.Context) {
	h.processWithdrawal(c, h.wallets.CompleteWithdrawal, func(req models.ProcessWithdrawalRequest) string {
		return req.Reference
	})
}

// RejectWithdrawal handles POST /api/v1/admin/withdrawals/:id/reject
func (h *AdminHandler) RejectWithdrawal(c *gin.Context) {
	h.processWithdrawal(c, h.wallets.RejectWithdrawal, func(req models.ProcessWithdrawalRequest) string {
		return req.Reason
	})
}

func (h *AdminHandler) processWithdrawal(
	c *gin.Context,
	op func(context.Context, models.Actor, uuid.UUID, string) (*models.WithdrawalRequest, error),
	arg func(models.ProcessWithdrawalRequest) string,
) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.ProcessWithdrawalRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	w, err := op(c.Request.Context(), actor, id, arg(req))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawal": w})
}

// ===================================================================
// SCHEDULED JOBS
// ===================================================================

// GetJobStatus handles GET /api/v1/admin/jobs
func (h *AdminHandler) GetJobStatus(c *gin.Context) {
	if h.sweeps == nil {
		c.JSON(http.StatusOK, gin.H{"running": false, "job_count": 0})
		return
	}
	c.JSON(http.StatusOK, h.sweeps.GetJobStatus())
}

// RunJob handles POST /api/v1/admin/jobs/:name/run
func (h *AdminHandler) RunJob(c *gin.Context) {
	if h.sweeps == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "scheduler_disabled",
			Message: "Scheduled jobs are disabled",
		})
		return
	}

	switch name := c.Param("name"); name {
	case "expire-abandoned":
		h.sweeps.RunExpireAbandonedNow()
	case "redispatch-stale":
		h.sweeps.RunRedispatchStaleNow()
	default:
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Unknown job " + name,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Job completed", "job": c.Param("name")})
}
