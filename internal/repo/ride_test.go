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

func TestRideRepo_CreateAndGet(t *testing.T) {
	rides := newTestStore(t).Repos().Rides
	ctx := context.Background()

	created, err := rides.Create(ctx, rideFixture(uuid.New()))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID, "ID should be DB-generated")
	assert.Equal(t, domain.RidePending, created.Status)
	assert.Nil(t, created.DriverID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := rides.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Pickup, got.Pickup)
	assert.Equal(t, int64(13300), got.FinalFare)
}

func TestRideRepo_GetByID_NotFound(t *testing.T) {
	rides := newTestStore(t).Repos().Rides

	_, err := rides.GetByID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRideRepo_Create_SecondActiveRideConflicts(t *testing.T) {
	rides := newTestStore(t).Repos().Rides
	ctx := context.Background()
	passenger := uuid.New()

	_, err := rides.Create(ctx, rideFixture(passenger))
	require.NoError(t, err)

	_, err = rides.Create(ctx, rideFixture(passenger))
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRideRepo_Claim(t *testing.T) {
	rides := newTestStore(t).Repos().Rides
	ctx := context.Background()
	driver := uuid.New()

	created, err := rides.Create(ctx, rideFixture(uuid.New()))
	require.NoError(t, err)

	claimed, err := rides.Claim(ctx, created.ID, driver, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, domain.RideAccepted, claimed.Status)
	require.NotNil(t, claimed.DriverID)
	assert.Equal(t, driver, *claimed.DriverID)
	assert.NotNil(t, claimed.AcceptedAt)

	// A second claim loses the compare-and-set.
	_, err = rides.Claim(ctx, created.ID, uuid.New(), time.Now().UTC())
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRideRepo_UpdateStatus_StaleFromConflicts(t *testing.T) {
	rides := newTestStore(t).Repos().Rides
	ctx := context.Background()

	created, err := rides.Create(ctx, rideFixture(uuid.New()))
	require.NoError(t, err)
	claimed, err := rides.Claim(ctx, created.ID, uuid.New(), time.Now().UTC())
	require.NoError(t, err)

	next := claimed
	next.StampTransition(domain.RideArrived, time.Now().UTC())
	arrived, err := rides.UpdateStatus(ctx, next, domain.RideAccepted)
	require.NoError(t, err)
	assert.Equal(t, domain.RideArrived, arrived.Status)
	assert.NotNil(t, arrived.ArrivedAt)

	// Replaying the same transition from the old status fails.
	_, err = rides.UpdateStatus(ctx, next, domain.RideAccepted)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRideRepo_SetRating_OncePerSide(t *testing.T) {
	rides := newTestStore(t).Repos().Rides
	ctx := context.Background()

	created, err := rides.Create(ctx, rideFixture(uuid.New()))
	require.NoError(t, err)
	claimed, err := rides.Claim(ctx, created.ID, uuid.New(), time.Now().UTC())
	require.NoError(t, err)
	done := claimed
	done.Status = domain.RideCompleted
	_, err = rides.UpdateStatus(ctx, done, domain.RideAccepted)
	require.NoError(t, err)

	rating := domain.Rating{Value: 5, Comment: "smooth", GivenAt: time.Now().UTC()}
	rated, err := rides.SetRating(ctx, created.ID, domain.RatingByPassenger, rating)
	require.NoError(t, err)
	require.NotNil(t, rated.PassengerRating)
	assert.Equal(t, 5, rated.PassengerRating.Value)
	assert.Nil(t, rated.DriverRating)

	_, err = rides.SetRating(ctx, created.ID, domain.RatingByPassenger, rating)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRideRepo_FindActiveAndHistory(t *testing.T) {
	rides := newTestStore(t).Repos().Rides
	ctx := context.Background()
	passenger := uuid.New()

	first, err := rides.Create(ctx, rideFixture(passenger))
	require.NoError(t, err)

	active, err := rides.FindActive(ctx, passenger, domain.RolePassenger)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	cancelled := first
	cancelled.StampTransition(domain.RideCancelled, time.Now().UTC())
	cancelled.CancelledBy = domain.CancelledByPassenger
	_, err = rides.UpdateStatus(ctx, cancelled, domain.RidePending)
	require.NoError(t, err)

	_, err = rides.FindActive(ctx, passenger, domain.RolePassenger)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	history, total, err := rides.ListHistory(ctx, passenger, domain.RolePassenger, domain.NewPaginationParams(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, history, 1)
	assert.Equal(t, domain.CancelledByPassenger, history[0].CancelledBy)
}

func TestRideRepo_ListPending_FiltersByClass(t *testing.T) {
	rides := newTestStore(t).Repos().Rides
	ctx := context.Background()

	car := rideFixture(uuid.New())
	bike := rideFixture(uuid.New())
	bike.VehicleClass = domain.VehicleBike
	_, err := rides.Create(ctx, car)
	require.NoError(t, err)
	_, err = rides.Create(ctx, bike)
	require.NoError(t, err)

	got, err := rides.ListPending(ctx, domain.VehicleBike, 20)
	require.NoError(t, err)
	for _, r := range got {
		assert.Equal(t, domain.VehicleBike, r.VehicleClass)
	}
	assert.NotEmpty(t, got)
}
