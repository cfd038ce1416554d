package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicehub/booking-engine/internal/models"
)

func matchingBooking(env *testEnv) *models.Booking {
	id := uuid.New()
	return &models.Booking{
		ID:               id,
		ServiceLatitude:  siteLat,
		ServiceLongitude: siteLng,
		Items:            []models.BookingItem{{BookingID: id, CategoryID: env.categoryID}},
	}
}

func TestFindCandidates_RanksByDistanceWithinRadius(t *testing.T) {
	env := newTestEnv()
	far, _ := env.addPartner(1, 0.08)  // ~8.9 km
	near, _ := env.addPartner(2, 0.01) // ~1.1 km
	mid, _ := env.addPartner(3, 0.03)  // ~3.3 km
	tooFar, _ := env.addPartner(4, 0.2)

	small, _ := env.addPartner(5, 0.04) // ~4.4 km, radius 2 km
	env.store.partners[small.ID].ServiceRadiusKm = 2

	candidates, err := env.matching.FindCandidates(context.Background(), matchingBooking(env))
	require.NoError(t, err)

	var got []uuid.UUID
	for _, c := range candidates {
		got = append(got, c.Partner.ID)
	}
	assert.Equal(t, []uuid.UUID{near.ID, mid.ID, far.ID}, got)
	assert.NotContains(t, got, tooFar.ID)
	assert.InDelta(t, 1.112, candidates[0].DistanceKm, 0.001)
}

func TestFindCandidates_Filters(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	ok, _ := env.addPartner(1, 0.01)
	offline, _ := env.addPartner(2, 0.01)
	env.store.partners[offline.ID].AvailabilityStatus = models.AvailabilityOffline
	unverified, _ := env.addPartner(3, 0.01)
	env.store.partners[unverified.ID].KYCStatus = models.KYCStatusSubmitted
	otherCategory, _ := env.addPartner(4, 0.01)
	env.store.partners[otherCategory.ID].CategoryID = uuid.New()
	rejected, _ := env.addPartner(5, 0.01)

	booking := matchingBooking(env)
	booking.RejectedPartnerIDs = models.UUIDArray{rejected.ID.String()}

	candidates, err := env.matching.FindCandidates(ctx, booking)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, ok.ID, candidates[0].Partner.ID)
}

func TestFindCandidates_BusinessTeamOnly(t *testing.T) {
	env := newTestEnv()
	member, _ := env.addPartner(1, 0.02)
	env.addPartner(2, 0.01)
	business, _ := env.addBusiness(1, "0.2", member.ID)

	booking := matchingBooking(env)
	booking.BusinessPartnerID = &business.ID

	candidates, err := env.matching.FindCandidates(context.Background(), booking)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, member.ID, candidates[0].Partner.ID)
}

func TestFindCandidates_CapAndTieBreak(t *testing.T) {
	env := newTestEnv()
	logger, _ := test.NewNullLogger()
	for i := 1; i <= 5; i++ {
		p, _ := env.addPartner(i, 0.01)
		env.store.partners[p.ID].AvgRating = float64(i)
	}

	svc := NewMatchingService(fakePartners{env.store}, 3, logger)
	candidates, err := svc.FindCandidates(context.Background(), matchingBooking(env))
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, 5.0, candidates[0].Partner.AvgRating)
	assert.Equal(t, 4.0, candidates[1].Partner.AvgRating)
}

func TestFindCandidates_RequiresItem(t *testing.T) {
	env := newTestEnv()
	_, err := env.matching.FindCandidates(context.Background(), &models.Booking{ID: uuid.New()})
	assert.Error(t, err)
}
