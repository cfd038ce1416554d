package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicehub/booking-engine/internal/models"
)

const (
	pending    = models.BookingStatusPending
	pendingBP  = models.BookingStatusPendingAssignment
	searching  = models.BookingStatusSearchingPartner
	assigned   = models.BookingStatusPartnerAssigned
	accepted   = models.BookingStatusPartnerAccepted
	arrived    = models.BookingStatusArrived
	inProgress = models.BookingStatusInProgress
	completed  = models.BookingStatusCompleted
	rated      = models.BookingStatusRated
	cancelled  = models.BookingStatusCancelled
	notFound   = models.BookingStatusPartnerNotFound
)

func TestNextStatus_Table(t *testing.T) {
	expected := map[BookingOperation]map[models.BookingStatus]models.BookingStatus{
		OpStartSearch:     {pending: searching},
		OpRouteToBusiness: {pending: pendingBP},
		OpNoPartnerFound:  {searching: notFound},
		OpRetryMatching:   {searching: searching, notFound: searching},
		OpAssign:          {searching: assigned, pending: assigned, pendingBP: assigned},
		OpClaim:           {searching: accepted, pending: accepted},
		OpAccept:          {assigned: accepted},
		OpReject:          {assigned: searching, accepted: searching},
		OpArrive:          {accepted: arrived},
		OpUploadBefore:    {arrived: arrived, inProgress: inProgress},
		OpStart:           {accepted: inProgress, arrived: inProgress},
		OpUploadAfter:     {inProgress: inProgress},
		OpComplete:        {inProgress: completed},
		OpRate:            {completed: rated},
		OpCancel: {
			pending: cancelled, pendingBP: cancelled, searching: cancelled, assigned: cancelled,
			accepted: cancelled, arrived: cancelled, inProgress: cancelled, notFound: cancelled,
		},
		OpMarkPaid: {
			pending: pending, pendingBP: pendingBP, searching: searching, assigned: assigned,
			accepted: accepted, arrived: arrived, inProgress: inProgress, notFound: notFound,
		},
	}

	require.ElementsMatch(t, Operations(), keys(expected))

	for op, legal := range expected {
		for _, status := range models.AllBookingStatuses() {
			next, err := NextStatus(op, status)
			want, ok := legal[status]
			if ok {
				assert.NoError(t, err, "%s from %s", op, status)
				assert.Equal(t, want, next, "%s from %s", op, status)
				continue
			}
			assert.True(t, errors.Is(err, models.ErrInvalidState), "%s from %s should be rejected", op, status)
		}
	}
}

func TestNextStatus_ErrorCarriesCurrentStatus(t *testing.T) {
	_, err := NextStatus(OpStart, searching)

	var domainErr *models.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "SEARCHING_PARTNER", domainErr.Details["current_status"])
	assert.ElementsMatch(t, []string{"PARTNER_ACCEPTED", "ARRIVED"}, domainErr.Details["allowed_from"])
}

func TestNextStatus_UnknownOperation(t *testing.T) {
	_, err := NextStatus("teleport", pending)
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestTerminalStatusesOnlyAllowRating(t *testing.T) {
	for _, op := range Operations() {
		if op == OpRate {
			continue
		}
		for _, status := range []models.BookingStatus{completed, rated, cancelled} {
			assert.False(t, CanApply(op, status), "%s must not apply to %s", op, status)
		}
	}
}

func TestRejectTarget(t *testing.T) {
	b := &models.Booking{}
	assert.Equal(t, searching, rejectTarget(b))

	bp := fixedID(1)
	b.BusinessPartnerID = &bp
	assert.Equal(t, pendingBP, rejectTarget(b))
}

func keys(m map[BookingOperation]map[models.BookingStatus]models.BookingStatus) []BookingOperation {
	out := make([]BookingOperation, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
