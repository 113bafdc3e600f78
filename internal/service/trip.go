package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ridepool/backend/internal/cache"
	"github.com/ridepool/backend/internal/domain"
	"github.com/ridepool/backend/internal/events"
	"github.com/ridepool/backend/internal/observability"
	"github.com/ridepool/backend/internal/repo"
	"github.com/ridepool/backend/internal/settlement"
)

// DefaultVehicle is recorded when a host does not name their vehicle.
const DefaultVehicle = "Sedan"

// TripService is the seat ledger engine for published pool trips.
// Seat counts only move inside a transaction that also writes the matching
// manifest change.
type TripService struct {
	store   repo.Store
	cache   cache.SearchCache
	settler *settlement.Settler
	events  *events.Emitter
	log     *slog.Logger
	now     clock
	code    func() (string, error)
}

// NewTripService constructs a TripService. A nil searchCache disables caching.
func NewTripService(store repo.Store, searchCache cache.SearchCache, settler *settlement.Settler, emitter *events.Emitter, log *slog.Logger) *TripService {
	if searchCache == nil {
		searchCache = cache.NoopSearchCache{}
	}
	return &TripService{
		store:   store,
		cache:   searchCache,
		settler: settler,
		events:  emitter,
		log:     log,
		now:     utcNow,
		code:    newPickupCode,
	}
}

// Publish validates and persists a new scheduled trip hosted by the caller.
func (s *TripService) Publish(ctx context.Context, who domain.Identity, trip domain.PublishedTrip) (domain.PublishedTrip, error) {
	if who.Role != domain.RoleDriver {
		return domain.PublishedTrip{}, fmt.Errorf("service.TripService.Publish: %w: only drivers may publish trips", domain.ErrForbidden)
	}
	if trip.Kind == "" {
		trip.Kind = domain.TripKindLocal
	}
	if strings.TrimSpace(trip.Vehicle) == "" {
		trip.Vehicle = DefaultVehicle
	}
	if err := validateTrip(trip); err != nil {
		return domain.PublishedTrip{}, fmt.Errorf("service.TripService.Publish: %w", err)
	}

	trip.HostID = who.ActorID
	trip.AvailableSeats = trip.TotalSeats
	trip.Status = domain.TripScheduled
	trip.Manifest = nil

	created, err := s.store.Repos().Trips.Create(ctx, trip)
	if err != nil {
		return domain.PublishedTrip{}, fmt.Errorf("service.TripService.Publish: %w", err)
	}

	s.cache.Invalidate(ctx)
	s.log.InfoContext(ctx, "trip published",
		"trip_id", created.ID,
		"host_id", who.ActorID,
		"total_seats", created.TotalSeats,
	)
	s.emit(ctx, events.TripPublished, created, who.ActorID, 0, nil)
	return created, nil
}

// Search returns bookable trips. Results may come from the search cache and
// can be slightly stale; ClaimSeats re-checks availability.
func (s *TripService) Search(ctx context.Context, filter domain.TripSearch) ([]domain.PublishedTrip, error) {
	if filter.Kind != nil && !filter.Kind.Valid() {
		return nil, fmt.Errorf("service.TripService.Search: %w: unknown trip kind %q", domain.ErrValidation, *filter.Kind)
	}
	for _, c := range []*domain.Coords{filter.From, filter.To} {
		if c == nil {
			continue
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("service.TripService.Search: %w", err)
		}
	}
	if filter.Now.IsZero() {
		filter.Now = s.now()
	}

	if trips, ok := s.cache.Get(ctx, filter); ok {
		return trips, nil
	}
	trips, err := s.store.Repos().Trips.Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service.TripService.Search: %w", err)
	}
	s.cache.Set(ctx, filter, trips)
	return trips, nil
}

// ClaimSeats books seats on a trip for the caller. The seat decrement and the
// manifest entry commit together; a claim that would oversell fails with
// domain.ErrInsufficientSeats.
func (s *TripService) ClaimSeats(ctx context.Context, who domain.Identity, tripID uuid.UUID, seats int) (domain.PublishedTrip, domain.Booking, error) {
	if seats < 1 {
		return domain.PublishedTrip{}, domain.Booking{}, fmt.Errorf("service.TripService.ClaimSeats: %w: seats must be at least 1", domain.ErrValidation)
	}

	var (
		trip    domain.PublishedTrip
		booking domain.Booking
	)
	err := s.store.WithinTx(ctx, func(tx repo.Repos) error {
		current, err := tx.Trips.GetByID(ctx, tripID)
		if err != nil {
			return err
		}
		if current.HostID == who.ActorID {
			return fmt.Errorf("%w: hosts cannot book their own trip", domain.ErrSelfBooking)
		}
		if _, ok := current.BookingFor(who.ActorID); ok {
			return fmt.Errorf("%w: passenger already booked on this trip", domain.ErrConflict)
		}
		if _, err := tx.Trips.ReserveSeats(ctx, tripID, seats); err != nil {
			return err
		}
		code, err := s.code()
		if err != nil {
			return fmt.Errorf("pickup code: %w", err)
		}
		booking, err = tx.Trips.AddBooking(ctx, domain.Booking{
			TripID:      tripID,
			PassengerID: who.ActorID,
			SeatsBooked: seats,
			PickupCode:  code,
		})
		if err != nil {
			return err
		}
		trip, err = tx.Trips.GetByID(ctx, tripID)
		return err
	})
	if err != nil {
		observability.SeatClaimsTotal.WithLabelValues(claimOutcome(err)).Inc()
		return domain.PublishedTrip{}, domain.Booking{}, fmt.Errorf("service.TripService.ClaimSeats: %w", err)
	}

	observability.SeatClaimsTotal.WithLabelValues(observability.OutcomeOK).Inc()
	s.cache.Invalidate(ctx)
	s.log.InfoContext(ctx, "seats claimed",
		"trip_id", tripID,
		"passenger_id", who.ActorID,
		"seats", seats,
		"available_seats", trip.AvailableSeats,
	)
	s.emit(ctx, events.SeatsClaimed, trip, who.ActorID, seats, nil)
	return ProjectTrip(trip, who.ActorID), booking, nil
}

// CancelBooking cancels the caller's confirmed entry on a scheduled trip and
// returns its seats to the trip.
func (s *TripService) CancelBooking(ctx context.Context, who domain.Identity, tripID uuid.UUID) (domain.PublishedTrip, error) {
	var (
		trip  domain.PublishedTrip
		seats int
	)
	err := s.store.WithinTx(ctx, func(tx repo.Repos) error {
		current, err := tx.Trips.GetByID(ctx, tripID)
		if err != nil {
			return err
		}
		b, ok := current.BookingFor(who.ActorID)
		if !ok {
			return fmt.Errorf("%w: no booking on this trip", domain.ErrNotFound)
		}
		if current.Status != domain.TripScheduled {
			return fmt.Errorf("%w: trip is %s", domain.ErrConflict, current.Status)
		}
		if _, err := tx.Trips.UpdateBookingStatus(ctx, b.ID, domain.BookingConfirmed, domain.BookingCancelled); err != nil {
			return err
		}
		if err := tx.Trips.ReleaseSeats(ctx, tripID, b.SeatsBooked); err != nil {
			return err
		}
		seats = b.SeatsBooked
		trip, err = tx.Trips.GetByID(ctx, tripID)
		return err
	})
	if err != nil {
		return domain.PublishedTrip{}, fmt.Errorf("service.TripService.CancelBooking: %w", err)
	}

	s.cache.Invalidate(ctx)
	s.log.InfoContext(ctx, "booking cancelled", "trip_id", tripID, "passenger_id", who.ActorID, "seats", seats)
	s.emit(ctx, events.BookingCanceled, trip, who.ActorID, seats, nil)
	return ProjectTrip(trip, who.ActorID), nil
}

// UpdateTripStatus moves a trip along its state machine on behalf of the host.
// Completion marks confirmed entries completed and credits the host's
// earnings in the same transaction. Cancelling a trip leaves the manifest and
// seat counts as they are.
func (s *TripService) UpdateTripStatus(ctx context.Context, who domain.Identity, tripID uuid.UUID, to domain.TripStatus) (domain.PublishedTrip, error) {
	if !to.Valid() {
		return domain.PublishedTrip{}, fmt.Errorf("service.TripService.UpdateTripStatus: %w: unknown status %q", domain.ErrValidation, to)
	}

	trips := s.store.Repos().Trips
	current, err := trips.GetByID(ctx, tripID)
	if err != nil {
		return domain.PublishedTrip{}, fmt.Errorf("service.TripService.UpdateTripStatus: %w", err)
	}
	if current.HostID != who.ActorID {
		return domain.PublishedTrip{}, fmt.Errorf("service.TripService.UpdateTripStatus: %w: only the host may change trip status", domain.ErrForbidden)
	}
	from := current.Status
	if !domain.CanTransitionTrip(from, to) {
		return domain.PublishedTrip{}, fmt.Errorf("service.TripService.UpdateTripStatus: %w: trip cannot move from %s to %s",
			domain.ErrInvalidTransition, from, to)
	}

	var (
		updated domain.PublishedTrip
		deltas  []domain.BalanceDelta
	)
	if to == domain.TripCompleted {
		err = s.store.WithinTx(ctx, func(tx repo.Repos) error {
			if _, err := tx.Trips.UpdateStatus(ctx, tripID, from, to); err != nil {
				return err
			}
			if err := tx.Trips.CompleteBookings(ctx, tripID); err != nil {
				return err
			}
			done, err := tx.Trips.GetByID(ctx, tripID)
			if err != nil {
				return err
			}
			res, err := s.settler.ApplyTripSettlement(ctx, tx.Actors, done)
			if err != nil {
				return err
			}
			updated, deltas = done, res.Deltas
			return nil
		})
	} else {
		updated, err = trips.UpdateStatus(ctx, tripID, from, to)
	}
	if err != nil {
		return domain.PublishedTrip{}, fmt.Errorf("service.TripService.UpdateTripStatus: %w", err)
	}

	observability.TripTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	s.cache.Invalidate(ctx)
	s.log.InfoContext(ctx, "trip transitioned", "trip_id", tripID, "from", from, "to", to)
	s.emit(ctx, tripEventType(to), updated, who.ActorID, 0, deltas)
	return ProjectTrip(updated, who.ActorID), nil
}

// VerifyPickup marks a passenger picked up when the code they relayed to the
// host matches their manifest entry.
func (s *TripService) VerifyPickup(ctx context.Context, who domain.Identity, tripID, passengerID uuid.UUID, code string) (domain.Booking, error) {
	b, err := s.hostBooking(ctx, who, tripID, passengerID)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("service.TripService.VerifyPickup: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(b.PickupCode)) != 1 {
		return domain.Booking{}, fmt.Errorf("service.TripService.VerifyPickup: %w: pickup code does not match", domain.ErrValidation)
	}
	updated, err := s.store.Repos().Trips.UpdatePickupStatus(ctx, b.ID, domain.PickupPending, domain.PickupPickedUp)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("service.TripService.VerifyPickup: %w", err)
	}

	s.log.InfoContext(ctx, "passenger picked up", "trip_id", tripID, "passenger_id", passengerID)
	s.emitPickup(ctx, updated, who.ActorID)
	updated.PickupCode = ""
	return updated, nil
}

// MarkDropoff records that a picked-up passenger has been delivered.
func (s *TripService) MarkDropoff(ctx context.Context, who domain.Identity, tripID, passengerID uuid.UUID) (domain.Booking, error) {
	b, err := s.hostBooking(ctx, who, tripID, passengerID)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("service.TripService.MarkDropoff: %w", err)
	}
	updated, err := s.store.Repos().Trips.UpdatePickupStatus(ctx, b.ID, domain.PickupPickedUp, domain.PickupDroppedOff)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("service.TripService.MarkDropoff: %w", err)
	}

	s.log.InfoContext(ctx, "passenger dropped off", "trip_id", tripID, "passenger_id", passengerID)
	s.emitPickup(ctx, updated, who.ActorID)
	updated.PickupCode = ""
	return updated, nil
}

// hostBooking loads the passenger's live entry on a trip the caller hosts
// and that is still running.
func (s *TripService) hostBooking(ctx context.Context, who domain.Identity, tripID, passengerID uuid.UUID) (domain.Booking, error) {
	trip, err := s.store.Repos().Trips.GetByID(ctx, tripID)
	if err != nil {
		return domain.Booking{}, err
	}
	if trip.HostID != who.ActorID {
		return domain.Booking{}, fmt.Errorf("%w: only the host may update pickups", domain.ErrForbidden)
	}
	if trip.Status != domain.TripScheduled && trip.Status != domain.TripOngoing {
		return domain.Booking{}, fmt.Errorf("%w: trip is %s", domain.ErrConflict, trip.Status)
	}
	b, ok := trip.BookingFor(passengerID)
	if !ok {
		return domain.Booking{}, fmt.Errorf("%w: passenger has no booking on this trip", domain.ErrNotFound)
	}
	if b.Status != domain.BookingConfirmed {
		return domain.Booking{}, fmt.Errorf("%w: booking is %s", domain.ErrConflict, b.Status)
	}
	return b, nil
}

func (s *TripService) emit(ctx context.Context, typ events.Type, trip domain.PublishedTrip, actorID uuid.UUID, seats int, deltas []domain.BalanceDelta) {
	ev := events.New(typ, trip.ID, actorID)
	ev.Status = string(trip.Status)
	ev.Seats = seats
	ev.Deltas = deltas
	s.events.Emit(ctx, ev)
}

func (s *TripService) emitPickup(ctx context.Context, b domain.Booking, actorID uuid.UUID) {
	ev := events.New(events.PickupUpdated, b.TripID, actorID)
	ev.Status = string(b.PickupStatus)
	ev.Seats = b.SeatsBooked
	s.events.Emit(ctx, ev)
}

func tripEventType(to domain.TripStatus) events.Type {
	switch to {
	case domain.TripCompleted:
		return events.TripCompleted
	case domain.TripCancelled:
		return events.TripCancelled
	default:
		return events.TripProgressed
	}
}

func claimOutcome(err error) string {
	if errors.Is(err, domain.ErrInsufficientSeats) || errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrSelfBooking) {
		return observability.OutcomeRejected
	}
	return observability.OutcomeFailed
}

func validateTrip(t domain.PublishedTrip) error {
	if err := validatePlace("origin", t.Origin); err != nil {
		return err
	}
	if err := validatePlace("destination", t.Destination); err != nil {
		return err
	}
	switch {
	case !t.Kind.Valid():
		return fmt.Errorf("%w: unknown trip kind %q", domain.ErrValidation, t.Kind)
	case t.ScheduledTime.IsZero():
		return fmt.Errorf("%w: scheduled time is required", domain.ErrValidation)
	case t.TotalSeats < 1:
		return fmt.Errorf("%w: total seats must be at least 1", domain.ErrValidation)
	case t.PricePerSeat < 0:
		return fmt.Errorf("%w: price per seat must not be negative", domain.ErrValidation)
	}
	return nil
}

var pickupCodeSpan = big.NewInt(9000)

// newPickupCode draws a 4-digit code in [1000, 9999].
func newPickupCode() (string, error) {
	n, err := rand.Int(rand.Reader, pickupCodeSpan)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+1000, 10), nil
}
