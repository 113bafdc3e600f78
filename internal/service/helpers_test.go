package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ridepool/backend/internal/cache"
	"github.com/ridepool/backend/internal/domain"
	"github.com/ridepool/backend/internal/events"
	"github.com/ridepool/backend/internal/payments"
	"github.com/ridepool/backend/internal/repo"
	"github.com/ridepool/backend/internal/service"
	"github.com/ridepool/backend/internal/settlement"
)

// harness wires every service over one in-memory store and records events.
type harness struct {
	store    *repo.MemoryStore
	recorder *events.Recorder
	rides    *service.RideService
	trips    *service.TripService
	query    *service.QueryService
	wallet   *service.WalletService
	actors   *service.ActorService
}

func newHarness(t *testing.T, opts ...func(*harnessConfig)) *harness {
	t.Helper()
	cfg := harnessConfig{verifier: payments.DisabledVerifier{}}
	for _, o := range opts {
		o(&cfg)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repo.NewMemoryStore()
	rec := events.NewRecorder()
	emitter := events.NewEmitter(rec, log)
	settler := settlement.NewSettler(log)

	return &harness{
		store:    store,
		recorder: rec,
		rides:    service.NewRideService(store, settler, emitter, log),
		trips:    service.NewTripService(store, cfg.cache, settler, emitter, log),
		query:    service.NewQueryService(store),
		wallet:   service.NewWalletService(store, cfg.verifier, settler, emitter, log),
		actors:   service.NewActorService(store, emitter, log),
	}
}

type harnessConfig struct {
	cache    cache.SearchCache
	verifier payments.Verifier
}

func withCache(c cache.SearchCache) func(*harnessConfig) {
	return func(cfg *harnessConfig) { cfg.cache = c }
}

func withVerifier(v payments.Verifier) func(*harnessConfig) {
	return func(cfg *harnessConfig) { cfg.verifier = v }
}

// register creates an actor in the store and returns its identity.
func (h *harness) register(t *testing.T, role domain.Role) domain.Identity {
	t.Helper()
	id := uuid.New()
	_, err := h.store.Repos().Actors.Upsert(context.Background(), id, role)
	require.NoError(t, err)
	return domain.Identity{ActorID: id, Role: role}
}

// anonymous returns an identity that has no actor record.
func anonymous(role domain.Role) domain.Identity {
	return domain.Identity{ActorID: uuid.New(), Role: role}
}

func (h *harness) actor(t *testing.T, id domain.Identity) domain.Actor {
	t.Helper()
	a, err := h.store.Repos().Actors.GetByID(context.Background(), id.ActorID)
	require.NoError(t, err)
	return a
}

func (h *harness) ride(t *testing.T, id uuid.UUID) domain.Ride {
	t.Helper()
	r, err := h.store.Repos().Rides.GetByID(context.Background(), id)
	require.NoError(t, err)
	return r
}

func (h *harness) trip(t *testing.T, id uuid.UUID) domain.PublishedTrip {
	t.Helper()
	tr, err := h.store.Repos().Trips.GetByID(context.Background(), id)
	require.NoError(t, err)
	return tr
}

// ---- fixtures --------------------------------------------------------------

var (
	mgRoad   = domain.Place{Address: "MG Road, Bengaluru", Coords: domain.Coords{Lat: 12.9756, Lng: 77.6066}}
	airport  = domain.Place{Address: "Kempegowda Airport", Coords: domain.Coords{Lat: 13.1986, Lng: 77.7066}}
	mysuru   = domain.Place{Address: "Mysuru Palace", Coords: domain.Coords{Lat: 12.3052, Lng: 76.6552}}
	majestic = domain.Place{Address: "Majestic, Bengaluru", Coords: domain.Coords{Lat: 12.9767, Lng: 77.5713}}
)

func rideRequest() domain.RideRequest {
	return domain.RideRequest{
		Pickup:       mgRoad,
		Dropoff:      airport,
		DistanceKm:   32,
		DurationMins: 55,
	}
}

func withFare(req domain.RideRequest, amount int64, method domain.PaymentMethod) domain.RideRequest {
	req.OfferedFare = &amount
	req.PaymentMethod = method
	return req
}

func tripDraft(seats int, price int64) domain.PublishedTrip {
	return domain.PublishedTrip{
		Origin:        majestic,
		Destination:   mysuru,
		ScheduledTime: time.Now().UTC().Add(24 * time.Hour),
		TotalSeats:    seats,
		PricePerSeat:  price,
	}
}

// driveToOngoing submits, claims and advances a ride to ongoing.
func (h *harness) driveToOngoing(t *testing.T, passenger, driver domain.Identity, req domain.RideRequest) domain.Ride {
	t.Helper()
	ctx := context.Background()
	ride, err := h.rides.Submit(ctx, passenger, req)
	require.NoError(t, err)
	_, err = h.rides.Claim(ctx, driver, ride.ID)
	require.NoError(t, err)
	for _, to := range []domain.RideStatus{domain.RideArrived, domain.RideOngoing} {
		ride, err = h.rides.Transition(ctx, driver, ride.ID, to, "")
		require.NoError(t, err)
	}
	return ride
}

// requireSeatLedger checks availableSeats + live booked seats == totalSeats.
func requireSeatLedger(t *testing.T, trip domain.PublishedTrip) {
	t.Helper()
	require.GreaterOrEqual(t, trip.AvailableSeats, 0)
	require.LessOrEqual(t, trip.AvailableSeats, trip.TotalSeats)
	require.Equal(t, trip.TotalSeats, trip.AvailableSeats+trip.BookedSeats(), "seat ledger out of balance")
}

func isConflictOrInvalid(err error) bool {
	return errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrInvalidTransition)
}
