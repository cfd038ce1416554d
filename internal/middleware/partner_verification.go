package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/servicehub/booking-engine/internal/models"
)

// PartnerContextKey holds the caller's *models.ServicePartner
const PartnerContextKey = "partner"

// PartnerLookup finds the partner profile of a user
type PartnerLookup interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.ServicePartner, error)
}

// RequireApprovedPartner lets only KYC-approved service partners through.
// Must be used after AuthMiddleware.
func RequireApprovedPartner(partners PartnerLookup, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "User context not found",
			})
			return
		}

		partner, err := partners.GetByUserID(c.Request.Context(), userCtx.UserID)
		if err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				logger.WithFields(logrus.Fields{
					"user_id": userCtx.UserID,
					"error":   err.Error(),
				}).Error("Failed to load partner for KYC check")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   "internal_error",
					"message": "Failed to verify partner account",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "not_partner",
				"message": "Service partner account not found",
				"code":    "NOT_PARTNER",
			})
			return
		}

		if !partner.IsKYCApproved() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":      "not_verified",
				"message":    "Your partner account is not verified yet. Please wait for admin approval.",
				"code":       "KYC_NOT_APPROVED",
				"kyc_status": partner.KYCStatus,
			})
			return
		}

		c.Set(PartnerContextKey, partner)
		c.Next()
	}
}

// GetPartner returns the partner stored by RequireApprovedPartner
func GetPartner(c *gin.Context) (*models.ServicePartner, bool) {
	value, exists := c.Get(PartnerContextKey)
	if !exists {
		return nil, false
	}
	partner, ok := value.(*models.ServicePartner)
	return partner, ok
}
