package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ridepool/backend/internal/domain"
	"github.com/ridepool/backend/internal/events"
	"github.com/ridepool/backend/internal/fare"
	"github.com/ridepool/backend/internal/observability"
	"github.com/ridepool/backend/internal/repo"
	"github.com/ridepool/backend/internal/settlement"
)

// RideService is the on-demand ride lifecycle engine. Every state change is
// a conditional update on the status read at the start of the call, and
// completion commits together with its settlement.
type RideService struct {
	store   repo.Store
	settler *settlement.Settler
	events  *events.Emitter
	log     *slog.Logger
	now     clock
}

// NewRideService constructs a RideService.
func NewRideService(store repo.Store, settler *settlement.Settler, emitter *events.Emitter, log *slog.Logger) *RideService {
	return &RideService{store: store, settler: settler, events: emitter, log: log, now: utcNow}
}

// Submit creates a pending ride for the calling passenger.
func (s *RideService) Submit(ctx context.Context, who domain.Identity, req domain.RideRequest) (domain.Ride, error) {
	if who.Role != domain.RolePassenger {
		return domain.Ride{}, fmt.Errorf("service.RideService.Submit: %w: only passengers may request rides", domain.ErrForbidden)
	}
	req = withRideDefaults(req)
	if err := validateRideRequest(req); err != nil {
		return domain.Ride{}, fmt.Errorf("service.RideService.Submit: %w", err)
	}

	q := fare.QuoteFor(req)
	created, err := s.store.Repos().Rides.Create(ctx, domain.Ride{
		PassengerID:   who.ActorID,
		Pickup:        req.Pickup,
		Dropoff:       req.Dropoff,
		Kind:          req.Kind,
		VehicleClass:  req.VehicleClass,
		Seats:         req.Seats,
		DistanceKm:    req.DistanceKm,
		DurationMins:  req.DurationMins,
		EstimatedFare: q.Estimated,
		OfferedFare:   q.Offered,
		FinalFare:     q.Final,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		return domain.Ride{}, fmt.Errorf("service.RideService.Submit: %w", err)
	}

	s.log.InfoContext(ctx, "ride requested",
		"ride_id", created.ID,
		"passenger_id", who.ActorID,
		"final_fare", created.FinalFare,
	)
	s.emit(ctx, events.RideRequested, created, who.ActorID, nil)
	return created, nil
}

// Claim binds the calling driver to a pending ride.
func (s *RideService) Claim(ctx context.Context, who domain.Identity, rideID uuid.UUID) (domain.Ride, error) {
	if who.Role != domain.RoleDriver {
		return domain.Ride{}, fmt.Errorf("service.RideService.Claim: %w: only drivers may claim rides", domain.ErrForbidden)
	}
	claimed, err := s.store.Repos().Rides.Claim(ctx, rideID, who.ActorID, s.now())
	if err != nil {
		return domain.Ride{}, fmt.Errorf("service.RideService.Claim: %w", err)
	}

	observability.RideTransitionsTotal.WithLabelValues(string(domain.RidePending), string(domain.RideAccepted)).Inc()
	s.log.InfoContext(ctx, "ride claimed", "ride_id", claimed.ID, "driver_id", who.ActorID)
	s.emit(ctx, events.RideAccepted, claimed, who.ActorID, nil)
	return ProjectRide(claimed, domain.RoleDriver), nil
}

// Transition moves a ride to status to on behalf of one of its parties.
// reason is recorded only on cancellation. Completion settles the fare in the
// same transaction as the status change.
func (s *RideService) Transition(ctx context.Context, who domain.Identity, rideID uuid.UUID, to domain.RideStatus, reason string) (domain.Ride, error) {
	if !to.Valid() {
		return domain.Ride{}, fmt.Errorf("service.RideService.Transition: %w: unknown status %q", domain.ErrValidation, to)
	}

	rides := s.store.Repos().Rides
	ride, err := rides.GetByID(ctx, rideID)
	if err != nil {
		return domain.Ride{}, fmt.Errorf("service.RideService.Transition: %w", err)
	}
	role, ok := ride.PartyRole(who.ActorID)
	if !ok {
		return domain.Ride{}, fmt.Errorf("service.RideService.Transition: %w: not a party to this ride", domain.ErrForbidden)
	}
	from := ride.Status
	if !domain.CanTransition(role, from, to) {
		return domain.Ride{}, fmt.Errorf("service.RideService.Transition: %w: %s may not move a ride from %s to %s",
			domain.ErrInvalidTransition, role, from, to)
	}

	next := ride
	next.StampTransition(to, s.now())

	var deltas []domain.BalanceDelta
	switch to {
	case domain.RideCompleted:
		next.PaymentSettled = true
		err = s.store.WithinTx(ctx, func(tx repo.Repos) error {
			updated, err := tx.Rides.UpdateStatus(ctx, next, from)
			if err != nil {
				return err
			}
			res, err := s.settler.ApplyRideSettlement(ctx, tx.Actors, updated)
			if err != nil {
				return err
			}
			next, deltas = updated, res.Deltas
			return nil
		})
	case domain.RideCancelled:
		next.CancelledBy = domain.CancelledBy(role)
		next.CancelReason = strings.TrimSpace(reason)
		next, err = rides.UpdateStatus(ctx, next, from)
	default:
		next, err = rides.UpdateStatus(ctx, next, from)
	}
	if err != nil {
		return domain.Ride{}, fmt.Errorf("service.RideService.Transition: %w", err)
	}

	observability.RideTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	s.log.InfoContext(ctx, "ride transitioned",
		"ride_id", next.ID,
		"actor_id", who.ActorID,
		"from", from,
		"to", to,
	)
	s.emit(ctx, rideEventType(to), next, who.ActorID, deltas)
	return ProjectRide(next, role), nil
}

// Rate records the caller's 1..5 rating of the other party on a completed
// ride and folds it into that party's running average.
func (s *RideService) Rate(ctx context.Context, who domain.Identity, rideID uuid.UUID, value int, comment string) (domain.Ride, error) {
	if value < 1 || value > 5 {
		return domain.Ride{}, fmt.Errorf("service.RideService.Rate: %w: rating must be between 1 and 5", domain.ErrValidation)
	}

	ride, err := s.store.Repos().Rides.GetByID(ctx, rideID)
	if err != nil {
		return domain.Ride{}, fmt.Errorf("service.RideService.Rate: %w", err)
	}
	role, ok := ride.PartyRole(who.ActorID)
	if !ok {
		return domain.Ride{}, fmt.Errorf("service.RideService.Rate: %w: not a party to this ride", domain.ErrForbidden)
	}
	if ride.Status != domain.RideCompleted {
		return domain.Ride{}, fmt.Errorf("service.RideService.Rate: %w: ride is %s, not completed", domain.ErrConflict, ride.Status)
	}

	side := domain.RatingByPassenger
	if role == domain.RoleDriver {
		side = domain.RatingByDriver
	}
	rating := domain.Rating{Value: value, Comment: strings.TrimSpace(comment), GivenAt: s.now()}

	var rated domain.Ride
	err = s.store.WithinTx(ctx, func(tx repo.Repos) error {
		updated, err := tx.Rides.SetRating(ctx, rideID, side, rating)
		if err != nil {
			return err
		}
		if _, err := s.settler.ApplyRating(ctx, tx.Actors, updated, side, value); err != nil {
			return err
		}
		rated = updated
		return nil
	})
	if err != nil {
		return domain.Ride{}, fmt.Errorf("service.RideService.Rate: %w", err)
	}

	s.log.InfoContext(ctx, "ride rated", "ride_id", rideID, "side", side, "value", value)
	s.emit(ctx, events.RideRated, rated, who.ActorID, nil)
	return ProjectRide(rated, role), nil
}

// EstimateFare exposes the fare estimator for quotes shown before submission.
func (s *RideService) EstimateFare(class domain.VehicleClass, distanceKm, durationMins float64) (int64, error) {
	if class == "" {
		class = domain.VehicleCar
	}
	if !class.Valid() {
		return 0, fmt.Errorf("service.RideService.EstimateFare: %w: unknown vehicle class %q", domain.ErrValidation, class)
	}
	if distanceKm < 0 || durationMins < 0 {
		return 0, fmt.Errorf("service.RideService.EstimateFare: %w: distance and duration must not be negative", domain.ErrValidation)
	}
	return fare.Estimate(class, distanceKm, durationMins), nil
}

func (s *RideService) emit(ctx context.Context, typ events.Type, ride domain.Ride, actorID uuid.UUID, deltas []domain.BalanceDelta) {
	ev := events.New(typ, ride.ID, actorID)
	ev.Status = string(ride.Status)
	ev.Deltas = deltas
	s.events.Emit(ctx, ev)
}

func rideEventType(to domain.RideStatus) events.Type {
	switch to {
	case domain.RideCompleted:
		return events.RideCompleted
	case domain.RideCancelled:
		return events.RideCancelled
	default:
		return events.RideProgressed
	}
}

func withRideDefaults(req domain.RideRequest) domain.RideRequest {
	if req.Kind == "" {
		req.Kind = domain.RideKindCity
	}
	if req.VehicleClass == "" {
		req.VehicleClass = domain.VehicleCar
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCash
	}
	if req.Seats == 0 {
		req.Seats = 1
	}
	return req
}

func validateRideRequest(req domain.RideRequest) error {
	if err := validatePlace("pickup", req.Pickup); err != nil {
		return err
	}
	if err := validatePlace("dropoff", req.Dropoff); err != nil {
		return err
	}
	switch {
	case !req.Kind.Valid():
		return fmt.Errorf("%w: unknown ride kind %q", domain.ErrValidation, req.Kind)
	case !req.VehicleClass.Valid():
		return fmt.Errorf("%w: unknown vehicle class %q", domain.ErrValidation, req.VehicleClass)
	case !req.PaymentMethod.Valid():
		return fmt.Errorf("%w: unknown payment method %q", domain.ErrValidation, req.PaymentMethod)
	case req.Seats < 1:
		return fmt.Errorf("%w: seats must be at least 1", domain.ErrValidation)
	case req.DistanceKm < 0 || req.DurationMins < 0:
		return fmt.Errorf("%w: distance and duration must not be negative", domain.ErrValidation)
	case req.OfferedFare != nil && *req.OfferedFare < 0:
		return fmt.Errorf("%w: offered fare must not be negative", domain.ErrValidation)
	}
	return nil
}
