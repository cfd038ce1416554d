package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicehub/booking-engine/internal/models"
)

func TestBookingLifecycle_EndToEnd(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	partnerA, actorA := env.addPartner(1, 0.01)
	partnerB, actorB := env.addPartner(2, 0.02)

	booking, err := env.svc.Create(ctx, env.customer, env.createRequest())
	require.NoError(t, err)
	assertDecimal(t, "1000", booking.TotalAmount)
	assertDecimal(t, "300", booking.AdvanceAmount)
	assertDecimal(t, "700", booking.RemainingAmount)

	require.NoError(t, env.svc.RunMatching(ctx, booking.ID))
	assert.Len(t, env.notifier.to(partnerA.UserID, models.NotificationNewJob), 1)
	assert.Len(t, env.notifier.to(partnerB.UserID, models.NotificationNewJob), 1)

	// Both partners claim at once
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, actor := range []models.Actor{actorA, actorB} {
		wg.Add(1)
		go func(i int, actor models.Actor) {
			defer wg.Done()
			_, errs[i] = env.svc.Claim(ctx, actor, booking.ID)
		}(i, actor)
	}
	wg.Wait()

	var winner models.Actor
	var winnerID = partnerA.ID
	switch {
	case errs[0] == nil && errors.Is(errs[1], models.ErrAlreadyClaimed):
		winner = actorA
	case errs[1] == nil && errors.Is(errs[0], models.ErrAlreadyClaimed):
		winner, winnerID = actorB, partnerB.ID
	default:
		t.Fatalf("expected exactly one winner, got %v and %v", errs[0], errs[1])
	}
	assert.Equal(t, models.BookingStatusPartnerAccepted, env.store.booking(booking.ID).Status)

	// Arrive 400 m from the site
	_, err = env.svc.Arrive(ctx, winner, booking.ID, &models.ArriveRequest{Latitude: siteLat + 0.0036, Longitude: siteLng})
	require.NoError(t, err)

	_, err = env.svc.UploadBeforePhotos(ctx, winner, booking.ID, &models.PhotosRequest{URLs: []string{"https://cdn.example.com/before.jpg"}})
	require.NoError(t, err)
	_, err = env.svc.Start(ctx, winner, booking.ID, "4321")
	require.NoError(t, err)

	// 20 minutes over the 60 minute estimate
	env.clock = env.clock.Add(80 * time.Minute)
	_, err = env.svc.UploadAfterPhotos(ctx, winner, booking.ID, &models.PhotosRequest{URLs: []string{"https://cdn.example.com/after.jpg"}})
	require.NoError(t, err)

	completed, err := env.svc.VerifyCompletionOTP(ctx, winner, booking.ID, "654321")
	require.NoError(t, err)

	assert.Equal(t, models.BookingStatusCompleted, completed.Status)
	require.NotNil(t, completed.ActualDuration)
	assert.Equal(t, 80, *completed.ActualDuration)
	assertDecimal(t, "200", completed.OvertimeCharge)
	assertDecimal(t, "1200", completed.TotalAmount)
	assertDecimal(t, "900", completed.RemainingAmount)
	assertDecimal(t, "180", completed.PlatformFee)
	assertDecimal(t, "1020", completed.CommissionAmount)

	assertDecimal(t, "1020", env.store.balance(winner.UserID))
	assertDecimal(t, "180", env.store.balance(env.platformID))

	invoice, err := fakeBookings{env.store}.GetInvoice(ctx, booking.ID)
	require.NoError(t, err)
	assertDecimal(t, "1200", invoice.Subtotal)
	assertDecimal(t, "216", invoice.TaxAmount)
	assertDecimal(t, "1416", invoice.GrandTotal)
	assert.Regexp(t, `^INV-`, invoice.InvoiceNumber)

	stats := env.store.partner(winnerID)
	assert.Equal(t, 1, stats.TotalBookings)
	assert.Equal(t, 1, stats.CompletedBookings)
	assert.InDelta(t, 100.0, stats.CompletionRate, 1e-9)

	_, err = env.svc.Rate(ctx, env.customer, booking.ID, &models.RateBookingRequest{Rating: 5})
	require.NoError(t, err)

	assert.Equal(t, []models.BookingStatus{
		models.BookingStatusPending,
		models.BookingStatusSearchingPartner,
		models.BookingStatusPartnerAccepted,
		models.BookingStatusArrived,
		models.BookingStatusInProgress,
		models.BookingStatusCompleted,
		models.BookingStatusRated,
	}, env.store.historyOf(booking.ID))
}
