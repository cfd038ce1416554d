package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/servicehub/booking-engine/internal/middleware"
	"github.com/servicehub/booking-engine/internal/models"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

var errorKinds = []struct {
	kind   error
	status int
	name   string
}{
	{models.ErrNotFound, http.StatusNotFound, "not_found"},
	{models.ErrValidation, http.StatusBadRequest, "validation_error"},
	{models.ErrUnauthorized, http.StatusForbidden, "forbidden"},
	{models.ErrAlreadyClaimed, http.StatusConflict, "already_claimed"},
	{models.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{models.ErrInsufficientFunds, http.StatusUnprocessableEntity, "insufficient_funds"},
	{models.ErrGeofenceViolation, http.StatusUnprocessableEntity, "geofence_violation"},
	{models.ErrPreconditionMissing, http.StatusUnprocessableEntity, "precondition_failed"},
}

// respondError writes err as JSON. Domain errors keep their code and
// details; anything else is logged and hidden behind a 500.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var de *models.DomainError
	hasDomain := errors.As(err, &de)

	for _, k := range errorKinds {
		if !errors.Is(err, k.kind) {
			continue
		}
		resp := ErrorResponse{Error: k.name, Message: err.Error(), Code: strings.ToUpper(k.name)}
		if hasDomain {
			resp.Message, resp.Code, resp.Details = de.Message, de.Code, de.Details
		}
		c.JSON(k.status, resp)
		return
	}

	logger.WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
		"error":  err.Error(),
	}).Error("Request failed")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An unexpected error occurred",
	})
}

// actorFrom returns the authenticated caller or writes a 401
func actorFrom(c *gin.Context) (models.Actor, bool) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "User context not found",
		})
		return models.Actor{}, false
	}
	return userCtx.Actor(), true
}

// pathID parses a UUID path parameter or writes a 400
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid " + name + " format",
		})
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON binds the request body or writes a 400
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return false
	}
	return true
}

// bindOptionalJSON binds the body when one was sent
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return false
	}
	return true
}

// pagination reads limit and offset query parameters
func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
