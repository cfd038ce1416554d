package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/servicehub/booking-engine/internal/models"
	"github.com/servicehub/booking-engine/internal/services"
)

// BookingOperations is the booking lifecycle served over HTTP
type BookingOperations interface {
	Create(ctx context.Context, actor models.Actor, req *models.CreateBookingRequest) (*models.Booking, error)
	Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.BookingDetails, error)
	List(ctx context.Context, actor models.Actor, filter models.BookingFilter) ([]models.Booking, error)
	ListClaimable(ctx context.Context, actor models.Actor, limit int) ([]services.ClaimableJob, error)
	Assign(ctx context.Context, actor models.Actor, id, partnerID uuid.UUID) (*models.Booking, error)
	Claim(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error)
	Accept(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error)
	Reject(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Booking, error)
	Arrive(ctx context.Context, actor models.Actor, id uuid.UUID, req *models.ArriveRequest) (*models.Booking, error)
	UploadBeforePhotos(ctx context.Context, actor models.Actor, id uuid.UUID, req *models.PhotosRequest) (*models.Booking, error)
	UploadAfterPhotos(ctx context.Context, actor models.Actor, id uuid.UUID, req *models.PhotosRequest) (*models.Booking, error)
	Start(ctx context.Context, actor models.Actor, id uuid.UUID, otp string) (*models.Booking, error)
	Complete(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error)
	VerifyCompletionOTP(ctx context.Context, actor models.Actor, id uuid.UUID, otp string) (*models.Booking, error)
	Cancel(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Booking, error)
	Rate(ctx context.Context, actor models.Actor, id uuid.UUID, req *models.RateBookingRequest) (*models.Booking, error)
	RetryMatching(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error)
	MarkPaid(ctx context.Context, actor models.Actor, id uuid.UUID, reference string) (*models.Booking, error)
}

// BookingHandler handles booking-related HTTP requests
type BookingHandler struct {
	bookings BookingOperations
	logger   *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings BookingOperations, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, logger: logger}
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req models.CreateBookingRequest
	if !bindJSON(c, &req) {
		return
	}

	booking, err := h.bookings.Create(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"booking": booking})
}

// ListBookings handles GET /api/v1/bookings
func (h *BookingHandler) ListBookings(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	filter := models.BookingFilter{}
	filter.Limit, filter.Offset = pagination(c)
	if status := c.Query("status"); status != "" {
		s := models.BookingStatus(status)
		if !s.IsValid() {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Unknown status " + status})
			return
		}
		filter.Status = &s
	}
	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: name + " must be RFC3339"})
			return
		}
		*dst = &t
	}

	bookings, err := h.bookings.List(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "total": len(bookings)})
}

// GetBooking handles GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	details, err := h.bookings.Get(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// ListClaimableJobs handles GET /api/v1/partners/me/jobs
func (h *BookingHandler) ListClaimableJobs(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	limit, _ := pagination(c)

	jobs, err := h.bookings.ListClaimable(c.Request.Context(), actor, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// AssignPartner handles POST /api/v1/bookings/:id/assign
func (h *BookingHandler) AssignPartner(c *gin.Context) {
	var req models.AssignPartnerRequest
	h.transition(c, &req, func(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
		return h.bookings.Assign(ctx, actor, id, req.PartnerID)
	})
}

// ClaimBooking handles POST /api/v1/bookings/:id/claim
func (h *BookingHandler) ClaimBooking(c *gin.Context) {
	h.transition(c, nil, h.bookings.Claim)
}

// AcceptBooking handles POST /api/v1/bookings/:id/accept
func (h *BookingHandler) AcceptBooking(c *gin.Context) {
	h.transition(c, nil, h.bookings.Accept)
}

// RejectBooking handles POST /api/v1/bookings/:id/reject
func (h *BookingHandler) RejectBooking(c *gin.Context) {
	var req models.RejectBookingRequest
	h.transitionOptional(c, &req, func(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
		return h.bookings.Reject(ctx, actor, id, req.Reason)
	})
}

// MarkArrived handles POST /api/v1/bookings/:id/arrive
func (h *BookingHandler) MarkArrived(c *gin.Context) {
	var req models.ArriveRequest
	h.transition(c, &req, func(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
		return h.bookings.Arrive(ctx, actor, id, &req)
	})
}

// UploadBeforePhotos handles POST /api/v1/bookings/:id/photos/before
func (h *BookingHandler) UploadBeforePhotos(c *gin.Context) {
	var req models.PhotosRequest
	h.transition(c, &req, func(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
		return h.bookings.UploadBeforePhotos(ctx, actor, id, &req)
	})
}

// UploadAfterPhotos handles POST /api/v1/bookings/:id/photos/after
func (h *BookingHandler) UploadAfterPhotos(c *gin.Context) {
	var req models.PhotosRequest
	h.transition(c, &req, func(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
		return h.bookings.UploadAfterPhotos(ctx, actor, id, &req)
	})
}

// StartService handles POST /api/v1/bookings/:id/start
func (h *BookingHandler) StartService(c *gin.Context) {
	var req models.OTPRequest
	h.transition(c, &req, func(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
		return h.bookings.Start(ctx, actor, id, req.OTP)
	})
}

// CompleteService handles POST /api/v1/admin/bookings/:id/complete
func (h *BookingHandler) CompleteService(c *gin.Context) {
	h.transition(c, nil, h.bookings.Complete)
}

// VerifyCompletion handles POST /api/v1/bookings/:id/verify-completion
func (h *BookingHandler) VerifyCompletion(c *gin.Context) {
	var req models.OTPRequest
	h.transition(c, &req, func(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
		return h.bookings.VerifyCompletionOTP(ctx, actor, id, req.OTP)
	})
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	var req models.CancelBookingRequest
	h.transitionOptional(c, &req, func(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
		return h.bookings.Cancel(ctx, actor, id, req.Reason)
	})
}

// RateBooking handles POST /api/v1/bookings/:id/rate
func (h *BookingHandler) RateBooking(c *gin.Context) {
	var req models.RateBookingRequest
	h.transition(c, &req, func(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
		return h.bookings.Rate(ctx, actor, id, &req)
	})
}

// RetryMatching handles POST /api/v1/bookings/:id/retry-matching
func (h *BookingHandler) RetryMatching(c *gin.Context) {
	h.transition(c, nil, h.bookings.RetryMatching)
}

// MarkPaid handles POST /api/v1/bookings/:id/payment
func (h *BookingHandler) MarkPaid(c *gin.Context) {
	var req models.MarkPaidRequest
	h.transition(c, &req, func(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
		return h.bookings.MarkPaid(ctx, actor, id, req.Reference)
	})
}

type transitionFunc func(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error)

// transition runs one lifecycle operation on the booking named in the path.
// A nil body means the operation takes none.
func (h *BookingHandler) transition(c *gin.Context, body interface{}, op transitionFunc) {
	h.run(c, body, bindJSON, op)
}

// transitionOptional is transition for operations whose body may be omitted
func (h *BookingHandler) transitionOptional(c *gin.Context, body interface{}, op transitionFunc) {
	h.run(c, body, bindOptionalJSON, op)
}

func (h *BookingHandler) run(c *gin.Context, body interface{}, bind func(*gin.Context, interface{}) bool, op transitionFunc) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if body != nil && !bind(c, body) {
		return
	}

	booking, err := op(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": booking})
}
