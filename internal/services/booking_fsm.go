package services

import (
	"github.com/servicehub/booking-engine/internal/models"
)

// BookingOperation names a lifecycle operation on a booking
type BookingOperation string

const (
	OpStartSearch     BookingOperation = "start_search"
	OpRouteToBusiness BookingOperation = "route_to_business"
	OpNoPartnerFound  BookingOperation = "no_partner_found"
	OpRetryMatching   BookingOperation = "retry_matching"
	OpAssign          BookingOperation = "assign"
	OpClaim           BookingOperation = "claim"
	OpAccept          BookingOperation = "accept"
	OpReject          BookingOperation = "reject"
	OpArrive          BookingOperation = "arrive"
	OpUploadBefore    BookingOperation = "upload_before_photos"
	OpStart           BookingOperation = "start"
	OpUploadAfter     BookingOperation = "upload_after_photos"
	OpComplete        BookingOperation = "complete"
	OpCancel          BookingOperation = "cancel"
	OpRate            BookingOperation = "rate"
	OpMarkPaid        BookingOperation = "mark_paid"
)

// transitionRule maps the statuses an operation is legal from to the status it
// produces. An empty target leaves the status unchanged.
type transitionRule struct {
	from []models.BookingStatus
	to   models.BookingStatus
}

var bookingTransitions = map[BookingOperation]transitionRule{
	OpStartSearch: {
		from: []models.BookingStatus{models.BookingStatusPending},
		to:   models.BookingStatusSearchingPartner,
	},
	OpRouteToBusiness: {
		from: []models.BookingStatus{models.BookingStatusPending},
		to:   models.BookingStatusPendingAssignment,
	},
	OpNoPartnerFound: {
		from: []models.BookingStatus{models.BookingStatusSearchingPartner},
		to:   models.BookingStatusPartnerNotFound,
	},
	OpRetryMatching: {
		from: []models.BookingStatus{models.BookingStatusSearchingPartner, models.BookingStatusPartnerNotFound},
		to:   models.BookingStatusSearchingPartner,
	},
	OpAssign: {
		from: []models.BookingStatus{
			models.BookingStatusSearchingPartner,
			models.BookingStatusPending,
			models.BookingStatusPendingAssignment,
		},
		to: models.BookingStatusPartnerAssigned,
	},
	OpClaim: {
		from: []models.BookingStatus{models.BookingStatusSearchingPartner, models.BookingStatusPending},
		to:   models.BookingStatusPartnerAccepted,
	},
	OpAccept: {
		from: []models.BookingStatus{models.BookingStatusPartnerAssigned},
		to:   models.BookingStatusPartnerAccepted,
	},
	// Reject returns to SEARCHING_PARTNER; business bookings go back to
	// PENDING_ASSIGNMENT (see rejectTarget).
	OpReject: {
		from: []models.BookingStatus{models.BookingStatusPartnerAssigned, models.BookingStatusPartnerAccepted},
		to:   models.BookingStatusSearchingPartner,
	},
	OpArrive: {
		from: []models.BookingStatus{models.BookingStatusPartnerAccepted},
		to:   models.BookingStatusArrived,
	},
	OpUploadBefore: {
		from: []models.BookingStatus{models.BookingStatusArrived, models.BookingStatusInProgress},
	},
	OpStart: {
		from: []models.BookingStatus{models.BookingStatusPartnerAccepted, models.BookingStatusArrived},
		to:   models.BookingStatusInProgress,
	},
	OpUploadAfter: {
		from: []models.BookingStatus{models.BookingStatusInProgress},
	},
	OpComplete: {
		from: []models.BookingStatus{models.BookingStatusInProgress},
		to:   models.BookingStatusCompleted,
	},
	OpCancel: {
		from: cancellableStatuses(),
		to:   models.BookingStatusCancelled,
	},
	OpRate: {
		from: []models.BookingStatus{models.BookingStatusCompleted},
		to:   models.BookingStatusRated,
	},
	// Payment confirmation does not move the lifecycle; it is refused once the
	// booking is closed.
	OpMarkPaid: {
		from: cancellableStatuses(),
	},
}

func cancellableStatuses() []models.BookingStatus {
	var statuses []models.BookingStatus
	for _, s := range models.AllBookingStatuses() {
		switch s {
		case models.BookingStatusCompleted, models.BookingStatusCancelled, models.BookingStatusRated:
			continue
		}
		statuses = append(statuses, s)
	}
	return statuses
}

// AllowedFrom returns the statuses op may be applied from
func AllowedFrom(op BookingOperation) []models.BookingStatus {
	rule, ok := bookingTransitions[op]
	if !ok {
		return nil
	}
	out := make([]models.BookingStatus, len(rule.from))
	copy(out, rule.from)
	return out
}

// NextStatus validates op against current and returns the resulting status
func NextStatus(op BookingOperation, current models.BookingStatus) (models.BookingStatus, error) {
	rule, ok := bookingTransitions[op]
	if !ok {
		return "", models.NewDomainError(models.ErrValidation, "UNKNOWN_OPERATION", "unknown booking operation "+string(op), nil)
	}
	for _, s := range rule.from {
		if s == current {
			if rule.to == "" {
				return current, nil
			}
			return rule.to, nil
		}
	}
	return "", invalidTransition(op, current)
}

// CanApply reports whether op is legal from current
func CanApply(op BookingOperation, current models.BookingStatus) bool {
	_, err := NextStatus(op, current)
	return err == nil
}

// Operations lists every operation the table knows
func Operations() []BookingOperation {
	ops := make([]BookingOperation, 0, len(bookingTransitions))
	for op := range bookingTransitions {
		ops = append(ops, op)
	}
	return ops
}

func invalidTransition(op BookingOperation, current models.BookingStatus) *models.DomainError {
	err := models.InvalidStateError(string(op), current)
	allowed := make([]string, 0, len(bookingTransitions[op].from))
	for _, s := range bookingTransitions[op].from {
		allowed = append(allowed, string(s))
	}
	err.Details["allowed_from"] = allowed
	return err
}

func rejectTarget(b *models.Booking) models.BookingStatus {
	if b.BusinessPartnerID != nil {
		return models.BookingStatusPendingAssignment
	}
	return models.BookingStatusSearchingPartner
}
