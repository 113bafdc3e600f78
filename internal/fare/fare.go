// Package fare implements the metered fare estimate for on-demand rides.
package fare

import (
	"math"

	"github.com/ridepool/backend/internal/domain"
)

// MinorPerMajor is the number of minor currency units in one major unit.
const MinorPerMajor = 100

// Defaults applied when the caller has no route estimate.
const (
	DefaultDistanceKm   = 5.0
	DefaultDurationMins = 15.0
)

// Rate is a per-class tariff in major units.
type Rate struct {
	Base   float64
	PerKm  float64
	PerMin float64
}

var rates = map[domain.VehicleClass]Rate{
	domain.VehicleCar:  {Base: 50, PerKm: 12, PerMin: 1.5},
	domain.VehicleAuto: {Base: 30, PerKm: 9, PerMin: 1.0},
	domain.VehicleBike: {Base: 20, PerKm: 6, PerMin: 0.8},
}

// RateFor returns the tariff for class. Unknown classes are charged as CAR.
func RateFor(class domain.VehicleClass) Rate {
	if r, ok := rates[class]; ok {
		return r
	}
	return rates[domain.VehicleCar]
}

// Estimate returns base + km·perKm + min·perMin rounded to a whole major unit,
// expressed in minor units. Non-positive distance or duration fall back to the
// defaults.
func Estimate(class domain.VehicleClass, distanceKm, durationMins float64) int64 {
	if distanceKm <= 0 {
		distanceKm = DefaultDistanceKm
	}
	if durationMins <= 0 {
		durationMins = DefaultDurationMins
	}
	r := RateFor(class)
	major := math.Round(r.Base + distanceKm*r.PerKm + durationMins*r.PerMin)
	return int64(major) * MinorPerMajor
}

// Quote is the fare triple fixed at submission time.
type Quote struct {
	Estimated int64
	Offered   int64
	Final     int64
}

// QuoteFor resolves the fares for a ride request. City rides are metered and
// take the estimate; other kinds honour the passenger's offer when present.
// The final fare starts as the offer, or the estimate when there is none.
func QuoteFor(req domain.RideRequest) Quote {
	est := Estimate(req.VehicleClass, req.DistanceKm, req.DurationMins)

	q := Quote{Estimated: est, Offered: est, Final: est}
	if req.OfferedFare != nil && *req.OfferedFare > 0 {
		q.Offered = *req.OfferedFare
		q.Final = *req.OfferedFare
		if req.Kind != domain.RideKindCity {
			q.Estimated = *req.OfferedFare
		}
	}
	return q
}
