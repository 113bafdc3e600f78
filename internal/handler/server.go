// Package handler implements the HTTP handlers for the ride-sharing API.
// All handlers are methods on Server. Methods are split into domain-specific
// files (ride.go, trip.go, actor.go, health.go) but all share the same Server
// struct so they can access its dependencies.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"

	"github.com/ridepool/backend/internal/domain"
	"github.com/ridepool/backend/internal/middleware"
	"github.com/ridepool/backend/internal/service"
)

// RideServicer defines the ride lifecycle operations the handlers depend on.
// Defining the interface here (in the consumer package) follows the Go
// convention: "accept interfaces, return concrete types". It lets handler
// tests inject a mock without touching the store or service layer.
type RideServicer interface {
	Submit(ctx context.Context, who domain.Identity, req domain.RideRequest) (domain.Ride, error)
	Claim(ctx context.Context, who domain.Identity, rideID uuid.UUID) (domain.Ride, error)
	Transition(ctx context.Context, who domain.Identity, rideID uuid.UUID, to domain.RideStatus, reason string) (domain.Ride, error)
	Rate(ctx context.Context, who domain.Identity, rideID uuid.UUID, value int, comment string) (domain.Ride, error)
	EstimateFare(class domain.VehicleClass, distanceKm, durationMins float64) (int64, error)
}

// TripServicer defines the seat ledger operations.
type TripServicer interface {
	Publish(ctx context.Context, who domain.Identity, trip domain.PublishedTrip) (domain.PublishedTrip, error)
	Search(ctx context.Context, filter domain.TripSearch) ([]domain.PublishedTrip, error)
	ClaimSeats(ctx context.Context, who domain.Identity, tripID uuid.UUID, seats int) (domain.PublishedTrip, domain.Booking, error)
	CancelBooking(ctx context.Context, who domain.Identity, tripID uuid.UUID) (domain.PublishedTrip, error)
	UpdateTripStatus(ctx context.Context, who domain.Identity, tripID uuid.UUID, to domain.TripStatus) (domain.PublishedTrip, error)
	VerifyPickup(ctx context.Context, who domain.Identity, tripID, passengerID uuid.UUID, code string) (domain.Booking, error)
	MarkDropoff(ctx context.Context, who domain.Identity, tripID, passengerID uuid.UUID) (domain.Booking, error)
}

// QueryServicer defines the role-scoped reads.
type QueryServicer interface {
	Ride(ctx context.Context, who domain.Identity, id uuid.UUID) (domain.Ride, error)
	ActiveRide(ctx context.Context, who domain.Identity) (domain.Ride, error)
	RideHistory(ctx context.Context, who domain.Identity, page domain.PaginationParams) (domain.Page[domain.Ride], error)
	PendingRides(ctx context.Context, who domain.Identity, class domain.VehicleClass, limit int) ([]domain.Ride, error)
	Trip(ctx context.Context, who domain.Identity, id uuid.UUID) (domain.PublishedTrip, error)
	HostedTrips(ctx context.Context, who domain.Identity) ([]domain.PublishedTrip, error)
	JoinedTrips(ctx context.Context, who domain.Identity) ([]domain.PublishedTrip, error)
}

// WalletServicer defines wallet top-ups.
type WalletServicer interface {
	TopUp(ctx context.Context, who domain.Identity, reference string) (service.TopUpResult, error)
}

// ActorServicer defines identity sync and document records.
type ActorServicer interface {
	Sync(ctx context.Context, who domain.Identity, id uuid.UUID, role domain.Role) (domain.Actor, error)
	Get(ctx context.Context, who domain.Identity, id uuid.UUID) (domain.Actor, error)
	RecordDocument(ctx context.Context, who domain.Identity, docType domain.DocumentType, path string) (domain.Actor, error)
}

// Services bundles the handler dependencies. Tests set only the ones they use.
type Services struct {
	Rides  RideServicer
	Trips  TripServicer
	Query  QueryServicer
	Wallet WalletServicer
	Actors ActorServicer
}

// Server serves every API endpoint.
type Server struct {
	rides  RideServicer
	trips  TripServicer
	query  QueryServicer
	wallet WalletServicer
	actors ActorServicer
	log    *slog.Logger
}

// NewServer constructs the Server with all its dependencies.
func NewServer(svc Services, log *slog.Logger) *Server {
	return &Server{
		rides:  svc.Rides,
		trips:  svc.Trips,
		query:  svc.Query,
		wallet: svc.Wallet,
		actors: svc.Actors,
		log:    log,
	}
}

// Routes returns the API router. Everything except the health check and the
// OpenAPI document requires an identity.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.GetHealth)
	r.Get("/openapi.yaml", s.GetOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireIdentity)

		r.Get("/fares/estimate", s.EstimateFare)

		r.Route("/rides", func(r chi.Router) {
			r.Post("/", s.SubmitRide)
			r.Get("/active", s.GetActiveRide)
			r.Get("/history", s.ListRideHistory)
			r.Get("/pending", s.ListPendingRides)
			r.Get("/{id}", s.GetRide)
			r.Post("/{id}/claim", s.ClaimRide)
			r.Post("/{id}/transitions", s.TransitionRide)
			r.Post("/{id}/rating", s.RateRide)
		})

		r.Route("/trips", func(r chi.Router) {
			r.Post("/", s.PublishTrip)
			r.Get("/search", s.SearchTrips)
			r.Get("/hosted", s.ListHostedTrips)
			r.Get("/joined", s.ListJoinedTrips)
			r.Get("/{id}", s.GetTrip)
			r.Put("/{id}/status", s.UpdateTripStatus)
			r.Post("/{id}/bookings", s.ClaimSeats)
			r.Delete("/{id}/bookings/me", s.CancelBooking)
			r.Post("/{id}/pickups/{passengerId}/verify", s.VerifyPickup)
			r.Post("/{id}/pickups/{passengerId}/dropoff", s.MarkDropoff)
		})

		r.Get("/actors/me", s.GetMe)
		r.Put("/actors/me/documents/{docType}", s.RecordDocument)
		r.Get("/actors/{id}", s.GetActor)
		r.Put("/actors/{id}", s.SyncActor)

		r.Post("/wallet/topups", s.TopUpWallet)
	})
	return r
}

// identity returns the caller placed in the context by RequireIdentity.
// Routes are only mounted behind that middleware, so a missing identity is a
// wiring bug and answered with 401.
func (s *Server) identity(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	who, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: ErrorDetail{Code: "unauthorized", Message: "identity required"}})
	}
	return who, ok
}

// fail writes the response for a service error. Server-side failures are
// logged with the request id; client errors are not.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

// pathUUID binds a uuid path parameter. On failure it writes a 422 and
// returns false.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	var id uuid.UUID
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, requestBody("invalid "+name+": "+err.Error()))
		return uuid.Nil, false
	}
	return id, true
}

// queryParam binds one optional form-style query parameter into dst.
func queryParam(w http.ResponseWriter, r *http.Request, name string, dst any) bool {
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), dst); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, requestBody("invalid "+name+": "+err.Error()))
		return false
	}
	return true
}
