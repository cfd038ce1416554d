package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/servicehub/booking-engine/internal/models"
)

// PartnerOperations is the partner self-service surface
type PartnerOperations interface {
	GetProfile(ctx context.Context, actor models.Actor) (*models.ServicePartner, error)
	UpdateAvailability(ctx context.Context, actor models.Actor, status models.AvailabilityStatus) (*models.ServicePartner, error)
	UpdateLocation(ctx context.Context, actor models.Actor, req *models.UpdateLocationRequest) error
}

// PartnerHandler handles partner self-service requests
type PartnerHandler struct {
	partners PartnerOperations
	logger   *logrus.Logger
}

// NewPartnerHandler creates a new partner handler
func NewPartnerHandler(partners PartnerOperations, logger *logrus.Logger) *PartnerHandler {
	return &PartnerHandler{partners: partners, logger: logger}
}

// GetProfile handles GET /api/v1/partners/me
func (h *PartnerHandler) GetProfile(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	partner, err := h.partners.GetProfile(c.Request.Context(), actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"partner": partner})
}

// UpdateAvailability handles PUT /api/v1/partners/me/availability
func (h *PartnerHandler) UpdateAvailability(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req models.UpdateAvailabilityRequest
	if !bindJSON(c, &req) {
		return
	}

	partner, err := h.partners.UpdateAvailability(c.Request.Context(), actor, req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"partner": partner})
}

// UpdateLocation handles PUT /api/v1/partners/me/location
func (h *PartnerHandler) UpdateLocation(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req models.UpdateLocationRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.partners.UpdateLocation(c.Request.Context(), actor, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Location updated"})
}
