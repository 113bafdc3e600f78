// Package settlement applies the balance and reputation side effects of
// completed rides, completed pool trips, ratings and wallet top-ups.
//
// Every method takes the repositories of the caller's open transaction and
// never commits on its own: the caller's status change and the balance
// movements commit or roll back together.
package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ridepool/backend/internal/domain"
	"github.com/ridepool/backend/internal/observability"
)

// Ledger is the slice of repo.ActorRepo the settler writes through.
type Ledger interface {
	AdjustBalances(ctx context.Context, delta domain.BalanceDelta) (domain.Actor, error)
	AddRating(ctx context.Context, id uuid.UUID, value int) (domain.Actor, error)
}

// Settler computes and applies settlements.
type Settler struct {
	log *slog.Logger
}

// NewSettler constructs a Settler.
func NewSettler(log *slog.Logger) *Settler {
	return &Settler{log: log}
}

// ApplyRideSettlement credits the driver's earnings with the final fare and,
// for wallet payments, debits the passenger's wallet by the same amount.
// Any failure is reported as domain.ErrSettlement.
func (s *Settler) ApplyRideSettlement(ctx context.Context, ledger Ledger, ride domain.Ride) (domain.RideSettlement, error) {
	if ride.DriverID == nil {
		return domain.RideSettlement{}, s.fail(ctx, "ride", ride.ID, fmt.Errorf("ride has no driver"))
	}
	if ride.FinalFare < 0 {
		return domain.RideSettlement{}, s.fail(ctx, "ride", ride.ID, fmt.Errorf("negative fare %d", ride.FinalFare))
	}

	deltas := []domain.BalanceDelta{{ActorID: *ride.DriverID, EarningsDelta: ride.FinalFare}}
	if ride.PaymentMethod == domain.PaymentWallet {
		deltas = append(deltas, domain.BalanceDelta{ActorID: ride.PassengerID, WalletDelta: -ride.FinalFare})
	}
	if err := s.apply(ctx, ledger, deltas); err != nil {
		return domain.RideSettlement{}, s.fail(ctx, "ride", ride.ID, err)
	}

	observability.SettlementsTotal.WithLabelValues("ride", observability.OutcomeOK).Inc()
	observability.SettledAmountTotal.WithLabelValues("ride").Add(float64(ride.FinalFare))
	return domain.RideSettlement{RideID: ride.ID, Fare: ride.FinalFare, Deltas: deltas}, nil
}

// ApplyTripSettlement credits the host with pricePerSeat for every seat held
// by a non-cancelled manifest entry.
func (s *Settler) ApplyTripSettlement(ctx context.Context, ledger Ledger, trip domain.PublishedTrip) (domain.TripSettlement, error) {
	seats := trip.BookedSeats()
	amount := int64(seats) * trip.PricePerSeat

	var deltas []domain.BalanceDelta
	if amount > 0 {
		deltas = append(deltas, domain.BalanceDelta{ActorID: trip.HostID, EarningsDelta: amount})
		if err := s.apply(ctx, ledger, deltas); err != nil {
			return domain.TripSettlement{}, s.fail(ctx, "trip", trip.ID, err)
		}
	}

	observability.SettlementsTotal.WithLabelValues("trip", observability.OutcomeOK).Inc()
	observability.SettledAmountTotal.WithLabelValues("trip").Add(float64(amount))
	return domain.TripSettlement{TripID: trip.ID, Seats: seats, Deltas: deltas}, nil
}

// ApplyRating folds value into the rated party's running average: the
// driver when the passenger rates, the passenger when the driver rates.
func (s *Settler) ApplyRating(ctx context.Context, ledger Ledger, ride domain.Ride, side domain.RatingSide, value int) (domain.Actor, error) {
	if value < 1 || value > 5 {
		return domain.Actor{}, fmt.Errorf("settlement.Settler.ApplyRating: %w: rating must be between 1 and 5", domain.ErrValidation)
	}

	var target uuid.UUID
	switch side {
	case domain.RatingByPassenger:
		if ride.DriverID == nil {
			return domain.Actor{}, s.fail(ctx, "rating", ride.ID, fmt.Errorf("ride has no driver"))
		}
		target = *ride.DriverID
	case domain.RatingByDriver:
		target = ride.PassengerID
	default:
		return domain.Actor{}, fmt.Errorf("settlement.Settler.ApplyRating: %w: unknown rating side %q", domain.ErrValidation, side)
	}

	a, err := ledger.AddRating(ctx, target, value)
	if err != nil {
		return domain.Actor{}, s.fail(ctx, "rating", ride.ID, err)
	}
	observability.SettlementsTotal.WithLabelValues("rating", observability.OutcomeOK).Inc()
	return a, nil
}

// ApplyTopUp credits a confirmed payment to the actor's wallet. Drivers also
// see the amount in their earnings total.
func (s *Settler) ApplyTopUp(ctx context.Context, ledger Ledger, actor domain.Actor, amount int64) (domain.Actor, domain.BalanceDelta, error) {
	if amount <= 0 {
		return domain.Actor{}, domain.BalanceDelta{}, fmt.Errorf("settlement.Settler.ApplyTopUp: %w: amount must be positive", domain.ErrValidation)
	}
	delta := domain.BalanceDelta{ActorID: actor.ID, WalletDelta: amount}
	if actor.Role == domain.RoleDriver {
		delta.EarningsDelta = amount
	}

	updated, err := ledger.AdjustBalances(ctx, delta)
	if err != nil {
		return domain.Actor{}, domain.BalanceDelta{}, s.fail(ctx, "topup", actor.ID, err)
	}
	observability.SettlementsTotal.WithLabelValues("topup", observability.OutcomeOK).Inc()
	observability.SettledAmountTotal.WithLabelValues("topup").Add(float64(amount))
	return updated, delta, nil
}

func (s *Settler) apply(ctx context.Context, ledger Ledger, deltas []domain.BalanceDelta) error {
	for _, d := range deltas {
		if _, err := ledger.AdjustBalances(ctx, d); err != nil {
			return fmt.Errorf("actor %s: %v", d.ActorID, err)
		}
	}
	return nil
}

// fail logs, counts and wraps cause as domain.ErrSettlement. The cause is
// kept as text so callers classify the error as a settlement failure only.
func (s *Settler) fail(ctx context.Context, kind string, id uuid.UUID, cause error) error {
	observability.SettlementsTotal.WithLabelValues(kind, observability.OutcomeFailed).Inc()
	s.log.WarnContext(ctx, "settlement failed", "kind", kind, "id", id, "error", cause)
	return fmt.Errorf("settlement.Settler: %w: %s %s: %v", domain.ErrSettlement, kind, id, cause)
}
