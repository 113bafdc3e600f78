package fare_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ridepool/backend/internal/domain"
	"github.com/ridepool/backend/internal/fare"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name   string
		class  domain.VehicleClass
		km     float64
		mins   float64
		expect int64
	}{
		// 50 + 10*12 + 20*1.5 = 200
		{"car", domain.VehicleCar, 10, 20, 200 * fare.MinorPerMajor},
		// 30 + 4*9 + 10*1.0 = 76
		{"auto", domain.VehicleAuto, 4, 10, 76 * fare.MinorPerMajor},
		// 20 + 3*6 + 7*0.8 = 43.6 -> 44
		{"bike rounds up", domain.VehicleBike, 3, 7, 44 * fare.MinorPerMajor},
		// 20 + 1*6 + 3*0.8 = 28.4 -> 28
		{"bike rounds down", domain.VehicleBike, 1, 3, 28 * fare.MinorPerMajor},
		// unknown class is charged as CAR
		{"unknown class", domain.VehicleClass("TRUCK"), 10, 20, 200 * fare.MinorPerMajor},
		// defaults 5 km / 15 min: 50 + 60 + 22.5 = 132.5 -> 133
		{"defaults", domain.VehicleCar, 0, 0, 133 * fare.MinorPerMajor},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, fare.Estimate(tc.class, tc.km, tc.mins))
		})
	}
}

func TestEstimate_IsDeterministic(t *testing.T) {
	a := fare.Estimate(domain.VehicleAuto, 12.3, 31)
	b := fare.Estimate(domain.VehicleAuto, 12.3, 31)
	assert.Equal(t, a, b)
}

func TestQuoteFor_CityUsesEstimate(t *testing.T) {
	offer := int64(25000)
	q := fare.QuoteFor(domain.RideRequest{
		Kind: domain.RideKindCity, VehicleClass: domain.VehicleCar,
		DistanceKm: 10, DurationMins: 20, OfferedFare: &offer,
	})

	assert.Equal(t, int64(20000), q.Estimated)
	assert.Equal(t, offer, q.Offered)
	assert.Equal(t, offer, q.Final)
}

func TestQuoteFor_NegotiatedKindTrustsOffer(t *testing.T) {
	offer := int64(90000)
	q := fare.QuoteFor(domain.RideRequest{
		Kind: domain.RideKindOutstation, VehicleClass: domain.VehicleCar,
		DistanceKm: 10, DurationMins: 20, OfferedFare: &offer,
	})

	assert.Equal(t, offer, q.Estimated)
	assert.Equal(t, offer, q.Final)
}

func TestQuoteFor_NoOfferFallsBackToEstimate(t *testing.T) {
	q := fare.QuoteFor(domain.RideRequest{Kind: domain.RideKindRental, VehicleClass: domain.VehicleAuto, DistanceKm: 4, DurationMins: 10})

	assert.Equal(t, int64(7600), q.Estimated)
	assert.Equal(t, int64(7600), q.Offered)
	assert.Equal(t, int64(7600), q.Final)
}
