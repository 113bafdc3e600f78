package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ridepool/backend/internal/domain"
	"github.com/ridepool/backend/internal/handler"
	"github.com/ridepool/backend/internal/middleware"
	"github.com/ridepool/backend/internal/service"
)

// Each mock is a test double for one handler servicer.
// Set only the method fields your test needs.

type mockRideServicer struct {
	submit     func(ctx context.Context, who domain.Identity, req domain.RideRequest) (domain.Ride, error)
	claim      func(ctx context.Context, who domain.Identity, id uuid.UUID) (domain.Ride, error)
	transition func(ctx context.Context, who domain.Identity, id uuid.UUID, to domain.RideStatus, reason string) (domain.Ride, error)
	rate       func(ctx context.Context, who domain.Identity, id uuid.UUID, value int, comment string) (domain.Ride, error)
	estimate   func(class domain.VehicleClass, km, mins float64) (int64, error)
}

func (m *mockRideServicer) Submit(ctx context.Context, who domain.Identity, req domain.RideRequest) (domain.Ride, error) {
	return m.submit(ctx, who, req)
}
func (m *mockRideServicer) Claim(ctx context.Context, who domain.Identity, id uuid.UUID) (domain.Ride, error) {
	return m.claim(ctx, who, id)
}
func (m *mockRideServicer) Transition(ctx context.Context, who domain.Identity, id uuid.UUID, to domain.RideStatus, reason string) (domain.Ride, error) {
	return m.transition(ctx, who, id, to, reason)
}
func (m *mockRideServicer) Rate(ctx context.Context, who domain.Identity, id uuid.UUID, value int, comment string) (domain.Ride, error) {
	return m.rate(ctx, who, id, value, comment)
}
func (m *mockRideServicer) EstimateFare(class domain.VehicleClass, km, mins float64) (int64, error) {
	return m.estimate(class, km, mins)
}

var _ handler.RideServicer = (*mockRideServicer)(nil)

type mockTripServicer struct {
	publish       func(ctx context.Context, who domain.Identity, trip domain.PublishedTrip) (domain.PublishedTrip, error)
	search        func(ctx context.Context, filter domain.TripSearch) ([]domain.PublishedTrip, error)
	claimSeats    func(ctx context.Context, who domain.Identity, id uuid.UUID, seats int) (domain.PublishedTrip, domain.Booking, error)
	cancelBooking func(ctx context.Context, who domain.Identity, id uuid.UUID) (domain.PublishedTrip, error)
	updateStatus  func(ctx context.Context, who domain.Identity, id uuid.UUID, to domain.TripStatus) (domain.PublishedTrip, error)
	verifyPickup  func(ctx context.Context, who domain.Identity, id, passengerID uuid.UUID, code string) (domain.Booking, error)
	markDropoff   func(ctx context.Context, who domain.Identity, id, passengerID uuid.UUID) (domain.Booking, error)
}

func (m *mockTripServicer) Publish(ctx context.Context, who domain.Identity, trip domain.PublishedTrip) (domain.PublishedTrip, error) {
	return m.publish(ctx, who, trip)
}
func (m *mockTripServicer) Search(ctx context.Context, filter domain.TripSearch) ([]domain.PublishedTrip, error) {
	return m.search(ctx, filter)
}
func (m *mockTripServicer) ClaimSeats(ctx context.Context, who domain.Identity, id uuid.UUID, seats int) (domain.PublishedTrip, domain.Booking, error) {
	return m.claimSeats(ctx, who, id, seats)
}
func (m *mockTripServicer) CancelBooking(ctx context.Context, who domain.Identity, id uuid.UUID) (domain.PublishedTrip, error) {
	return m.cancelBooking(ctx, who, id)
}
func (m *mockTripServicer) UpdateTripStatus(ctx context.Context, who domain.Identity, id uuid.UUID, to domain.TripStatus) (domain.PublishedTrip, error) {
	return m.updateStatus(ctx, who, id, to)
}
func (m *mockTripServicer) VerifyPickup(ctx context.Context, who domain.Identity, id, passengerID uuid.UUID, code string) (domain.Booking, error) {
	return m.verifyPickup(ctx, who, id, passengerID, code)
}
func (m *mockTripServicer) MarkDropoff(ctx context.Context, who domain.Identity, id, passengerID uuid.UUID) (domain.Booking, error) {
	return m.markDropoff(ctx, who, id, passengerID)
}

var _ handler.TripServicer = (*mockTripServicer)(nil)

type mockQueryServicer struct {
	ride         func(ctx context.Context, who domain.Identity, id uuid.UUID) (domain.Ride, error)
	activeRide   func(ctx context.Context, who domain.Identity) (domain.Ride, error)
	rideHistory  func(ctx context.Context, who domain.Identity, page domain.PaginationParams) (domain.Page[domain.Ride], error)
	pendingRides func(ctx context.Context, who domain.Identity, class domain.VehicleClass, limit int) ([]domain.Ride, error)
	trip         func(ctx context.Context, who domain.Identity, id uuid.UUID) (domain.PublishedTrip, error)
	hostedTrips  func(ctx context.Context, who domain.Identity) ([]domain.PublishedTrip, error)
	joinedTrips  func(ctx context.Context, who domain.Identity) ([]domain.PublishedTrip, error)
}

func (m *mockQueryServicer) Ride(ctx context.Context, who domain.Identity, id uuid.UUID) (domain.Ride, error) {
	return m.ride(ctx, who, id)
}
func (m *mockQueryServicer) ActiveRide(ctx context.Context, who domain.Identity) (domain.Ride, error) {
	return m.activeRide(ctx, who)
}
func (m *mockQueryServicer) RideHistory(ctx context.Context, who domain.Identity, page domain.PaginationParams) (domain.Page[domain.Ride], error) {
	return m.rideHistory(ctx, who, page)
}
func (m *mockQueryServicer) PendingRides(ctx context.Context, who domain.Identity, class domain.VehicleClass, limit int) ([]domain.Ride, error) {
	return m.pendingRides(ctx, who, class, limit)
}
func (m *mockQueryServicer) Trip(ctx context.Context, who domain.Identity, id uuid.UUID) (domain.PublishedTrip, error) {
	return m.trip(ctx, who, id)
}
func (m *mockQueryServicer) HostedTrips(ctx context.Context, who domain.Identity) ([]domain.PublishedTrip, error) {
	return m.hostedTrips(ctx, who)
}
func (m *mockQueryServicer) JoinedTrips(ctx context.Context, who domain.Identity) ([]domain.PublishedTrip, error) {
	return m.joinedTrips(ctx, who)
}

var _ handler.QueryServicer = (*mockQueryServicer)(nil)

type mockWalletServicer struct {
	topUp func(ctx context.Context, who domain.Identity, reference string) (service.TopUpResult, error)
}

func (m *mockWalletServicer) TopUp(ctx context.Context, who domain.Identity, reference string) (service.TopUpResult, error) {
	return m.topUp(ctx, who, reference)
}

var _ handler.WalletServicer = (*mockWalletServicer)(nil)

type mockActorServicer struct {
	sync           func(ctx context.Context, who domain.Identity, id uuid.UUID, role domain.Role) (domain.Actor, error)
	get            func(ctx context.Context, who domain.Identity, id uuid.UUID) (domain.Actor, error)
	recordDocument func(ctx context.Context, who domain.Identity, docType domain.DocumentType, path string) (domain.Actor, error)
}

func (m *mockActorServicer) Sync(ctx context.Context, who domain.Identity, id uuid.UUID, role domain.Role) (domain.Actor, error) {
	return m.sync(ctx, who, id, role)
}
func (m *mockActorServicer) Get(ctx context.Context, who domain.Identity, id uuid.UUID) (domain.Actor, error) {
	return m.get(ctx, who, id)
}
func (m *mockActorServicer) RecordDocument(ctx context.Context, who domain.Identity, docType domain.DocumentType, path string) (domain.Actor, error) {
	return m.recordDocument(ctx, who, docType, path)
}

var _ handler.ActorServicer = (*mockActorServicer)(nil)

// ---- helpers ---------------------------------------------------------------

func newHTTPHandler(svc handler.Services) http.Handler {
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return handler.NewServer(svc, log).Routes()
}

var (
	passenger = domain.Identity{ActorID: uuid.New(), Role: domain.RolePassenger}
	driver    = domain.Identity{ActorID: uuid.New(), Role: domain.RoleDriver}
	admin     = domain.Identity{ActorID: uuid.New(), Role: domain.RoleAdmin}
)

// serve sends one request as who. A nil body sends no body.
func serve(t *testing.T, h http.Handler, who domain.Identity, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderActorID, who.ActorID.String())
	req.Header.Set(middleware.HeaderActorRole, string(who.Role))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[handler.ErrorResponse](t, rec).Error.Code
}

func rideFixture() domain.Ride {
	now := time.Now().UTC()
	return domain.Ride{
		ID:            uuid.New(),
		PassengerID:   passenger.ActorID,
		Pickup:        domain.Place{Address: "MG Road", Coords: domain.Coords{Lat: 12.9756, Lng: 77.6050}},
		Dropoff:       domain.Place{Address: "Airport", Coords: domain.Coords{Lat: 13.1986, Lng: 77.7066}},
		Kind:          domain.RideKindCity,
		VehicleClass:  domain.VehicleCar,
		Seats:         1,
		DistanceKm:    10,
		DurationMins:  20,
		EstimatedFare: 250,
		OfferedFare:   250,
		PaymentMethod: domain.PaymentCash,
		Status:        domain.RidePending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func tripFixture() domain.PublishedTrip {
	now := time.Now().UTC()
	return domain.PublishedTrip{
		ID:             uuid.New(),
		HostID:         driver.ActorID,
		Kind:           domain.TripKindIntercity,
		Origin:         domain.Place{Address: "Majestic", Coords: domain.Coords{Lat: 12.9767, Lng: 77.5713}},
		Destination:    domain.Place{Address: "Mysuru", Coords: domain.Coords{Lat: 12.2958, Lng: 76.6394}},
		ScheduledTime:  now.Add(24 * time.Hour),
		Vehicle:        "Sedan",
		TotalSeats:     4,
		AvailableSeats: 4,
		PricePerSeat:   400,
		Status:         domain.TripScheduled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
