package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridepool/backend/internal/domain"
)

func TestTripRepo_CreateAndGet(t *testing.T) {
	trips := newTestStore(t).Repos().Trips
	ctx := context.Background()

	created, err := trips.Create(ctx, tripFixture(uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, 4, created.AvailableSeats, "available starts at total")
	assert.Equal(t, domain.TripScheduled, created.Status)

	got, err := trips.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Manifest)
	assert.True(t, got.Preferences.AC)
}

func TestTripRepo_ReserveSeats(t *testing.T) {
	trips := newTestStore(t).Repos().Trips
	ctx := context.Background()

	created, err := trips.Create(ctx, tripFixture(uuid.New()))
	require.NoError(t, err)

	after, err := trips.ReserveSeats(ctx, created.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, after.AvailableSeats)

	_, err = trips.ReserveSeats(ctx, created.ID, 2)
	assert.ErrorIs(t, err, domain.ErrInsufficientSeats)

	after, err = trips.ReserveSeats(ctx, created.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, after.AvailableSeats)
}

func TestTripRepo_ReserveSeats_NotScheduled(t *testing.T) {
	trips := newTestStore(t).Repos().Trips
	ctx := context.Background()

	created, err := trips.Create(ctx, tripFixture(uuid.New()))
	require.NoError(t, err)
	_, err = trips.UpdateStatus(ctx, created.ID, domain.TripScheduled, domain.TripCancelled)
	require.NoError(t, err)

	_, err = trips.ReserveSeats(ctx, created.ID, 1)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestTripRepo_ReleaseSeats_OnlyWhileScheduled(t *testing.T) {
	trips := newTestStore(t).Repos().Trips
	ctx := context.Background()

	created, err := trips.Create(ctx, tripFixture(uuid.New()))
	require.NoError(t, err)
	_, err = trips.ReserveSeats(ctx, created.ID, 2)
	require.NoError(t, err)
	require.NoError(t, trips.ReleaseSeats(ctx, created.ID, 1))

	_, err = trips.UpdateStatus(ctx, created.ID, domain.TripScheduled, domain.TripOngoing)
	require.NoError(t, err)

	err = trips.ReleaseSeats(ctx, created.ID, 1)
	assert.ErrorIs(t, err, domain.ErrConflict)
	got, err := trips.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AvailableSeats)

	assert.ErrorIs(t, trips.ReleaseSeats(ctx, uuid.New(), 1), domain.ErrNotFound)
}

func TestTripRepo_BookingLifecycle(t *testing.T) {
	trips := newTestStore(t).Repos().Trips
	ctx := context.Background()
	passenger := uuid.New()

	created, err := trips.Create(ctx, tripFixture(uuid.New()))
	require.NoError(t, err)

	b, err := trips.AddBooking(ctx, domain.Booking{TripID: created.ID, PassengerID: passenger, SeatsBooked: 2, PickupCode: "4821"})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, b.Status)
	assert.Equal(t, domain.PickupPending, b.PickupStatus)

	picked, err := trips.UpdatePickupStatus(ctx, b.ID, domain.PickupPending, domain.PickupPickedUp)
	require.NoError(t, err)
	assert.Equal(t, domain.PickupPickedUp, picked.PickupStatus)

	require.NoError(t, trips.CompleteBookings(ctx, created.ID))

	got, err := trips.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Manifest, 1)
	assert.Equal(t, domain.BookingCompleted, got.Manifest[0].Status)
	assert.Equal(t, "4821", got.Manifest[0].PickupCode)

	joined, err := trips.ListByPassenger(ctx, passenger)
	require.NoError(t, err)
	require.Len(t, joined, 1)
	assert.Equal(t, created.ID, joined[0].ID)
}

func TestTripRepo_AddBooking_DuplicateConflicts(t *testing.T) {
	trips := newTestStore(t).Repos().Trips
	ctx := context.Background()
	passenger := uuid.New()

	created, err := trips.Create(ctx, tripFixture(uuid.New()))
	require.NoError(t, err)
	_, err = trips.AddBooking(ctx, domain.Booking{TripID: created.ID, PassengerID: passenger, SeatsBooked: 1, PickupCode: "1000"})
	require.NoError(t, err)

	_, err = trips.AddBooking(ctx, domain.Booking{TripID: created.ID, PassengerID: passenger, SeatsBooked: 1, PickupCode: "2000"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestTripRepo_Search(t *testing.T) {
	trips := newTestStore(t).Repos().Trips
	ctx := context.Background()

	near, err := trips.Create(ctx, tripFixture(uuid.New()))
	require.NoError(t, err)

	far := tripFixture(uuid.New())
	far.Origin = domain.Place{Address: "Chennai", Coords: domain.Coords{Lat: 13.0827, Lng: 80.2707}}
	_, err = trips.Create(ctx, far)
	require.NoError(t, err)

	from := domain.Coords{Lat: 12.98, Lng: 77.60}
	to := domain.Coords{Lat: 12.30, Lng: 76.65}
	got, err := trips.Search(ctx, domain.TripSearch{From: &from, To: &to, Now: time.Now().UTC()})
	require.NoError(t, err)

	var ids []uuid.UUID
	for _, tr := range got {
		ids = append(ids, tr.ID)
	}
	assert.Contains(t, ids, near.ID)
	for _, tr := range got {
		assert.NotEqual(t, "Chennai", tr.Origin.Address)
	}
}
