package repo_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ridepool/backend/internal/domain"
	"github.com/ridepool/backend/internal/repo"
	"github.com/ridepool/backend/testutil"
)

// newTestStore returns a rolled-back Postgres store. Requires
// TEST_DATABASE_URL; migrations are applied by TestMain.
func newTestStore(t *testing.T) repo.Store {
	t.Helper()
	return testutil.NewTxStore(t)
}

// rideFixture returns a pending city ride for passengerID.
func rideFixture(passengerID uuid.UUID) domain.Ride {
	return domain.Ride{
		PassengerID:   passengerID,
		Pickup:        domain.Place{Address: "MG Road", Coords: domain.Coords{Lat: 12.9756, Lng: 77.6050}},
		Dropoff:       domain.Place{Address: "Indiranagar", Coords: domain.Coords{Lat: 12.9784, Lng: 77.6408}},
		Kind:          domain.RideKindCity,
		VehicleClass:  domain.VehicleCar,
		Seats:         1,
		DistanceKm:    5,
		DurationMins:  15,
		EstimatedFare: 13300,
		OfferedFare:   13300,
		FinalFare:     13300,
		PaymentMethod: domain.PaymentCash,
	}
}

// tripFixture returns a four-seat trip scheduled a day from now.
func tripFixture(hostID uuid.UUID) domain.PublishedTrip {
	return domain.PublishedTrip{
		HostID:        hostID,
		Kind:          domain.TripKindIntercity,
		Origin:        domain.Place{Address: "Bengaluru", Coords: domain.Coords{Lat: 12.9716, Lng: 77.5946}},
		Destination:   domain.Place{Address: "Mysuru", Coords: domain.Coords{Lat: 12.2958, Lng: 76.6394}},
		ScheduledTime: time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second),
		Vehicle:       "Sedan",
		TotalSeats:    4,
		PricePerSeat:  45000,
		Preferences:   domain.Preferences{AC: true},
	}
}
