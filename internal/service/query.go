package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ridepool/backend/internal/domain"
	"github.com/ridepool/backend/internal/repo"
)

// MaxPendingRides caps the pending-ride feed shown to drivers.
const MaxPendingRides = 20

// QueryService is the read layer. It never mutates and shapes every result
// for the caller: drivers see an obfuscated dropoff until the ride is
// underway, and trip manifests only carry the caller's own pickup code.
type QueryService struct {
	repos repo.Repos
}

// NewQueryService constructs a QueryService over the store's base repos.
func NewQueryService(store repo.Store) *QueryService {
	return &QueryService{repos: store.Repos()}
}

// Ride returns a ride to one of its parties or an admin.
func (s *QueryService) Ride(ctx context.Context, who domain.Identity, id uuid.UUID) (domain.Ride, error) {
	ride, err := s.repos.Rides.GetByID(ctx, id)
	if err != nil {
		return domain.Ride{}, fmt.Errorf("service.QueryService.Ride: %w", err)
	}
	if who.Role == domain.RoleAdmin {
		return ride, nil
	}
	role, ok := ride.PartyRole(who.ActorID)
	if !ok {
		return domain.Ride{}, fmt.Errorf("service.QueryService.Ride: %w: not a party to this ride", domain.ErrForbidden)
	}
	return ProjectRide(ride, role), nil
}

// ActiveRide returns the caller's non-terminal ride in their current role.
func (s *QueryService) ActiveRide(ctx context.Context, who domain.Identity) (domain.Ride, error) {
	if who.Role == domain.RoleAdmin {
		return domain.Ride{}, fmt.Errorf("service.QueryService.ActiveRide: %w: admins do not take rides", domain.ErrForbidden)
	}
	ride, err := s.repos.Rides.FindActive(ctx, who.ActorID, who.Role)
	if err != nil {
		return domain.Ride{}, fmt.Errorf("service.QueryService.ActiveRide: %w", err)
	}
	return ProjectRide(ride, who.Role), nil
}

// RideHistory returns one page of the caller's completed and cancelled rides,
// newest first.
func (s *QueryService) RideHistory(ctx context.Context, who domain.Identity, page domain.PaginationParams) (domain.Page[domain.Ride], error) {
	if who.Role == domain.RoleAdmin {
		return domain.Page[domain.Ride]{}, fmt.Errorf("service.QueryService.RideHistory: %w: admins do not take rides", domain.ErrForbidden)
	}
	rides, total, err := s.repos.Rides.ListHistory(ctx, who.ActorID, who.Role, page)
	if err != nil {
		return domain.Page[domain.Ride]{}, fmt.Errorf("service.QueryService.RideHistory: %w", err)
	}
	items := make([]domain.Ride, len(rides))
	for i, r := range rides {
		items[i] = ProjectRide(r, who.Role)
	}
	return domain.Page[domain.Ride]{Items: items, Total: total, PaginationParams: page}, nil
}

// PendingRides is the driver's feed of unclaimed requests, newest first.
// An empty class matches every vehicle class.
func (s *QueryService) PendingRides(ctx context.Context, who domain.Identity, class domain.VehicleClass, limit int) ([]domain.Ride, error) {
	if who.Role != domain.RoleDriver {
		return nil, fmt.Errorf("service.QueryService.PendingRides: %w: only drivers see pending rides", domain.ErrForbidden)
	}
	if class != "" && !class.Valid() {
		return nil, fmt.Errorf("service.QueryService.PendingRides: %w: unknown vehicle class %q", domain.ErrValidation, class)
	}
	if limit < 1 || limit > MaxPendingRides {
		limit = MaxPendingRides
	}
	rides, err := s.repos.Rides.ListPending(ctx, class, limit)
	if err != nil {
		return nil, fmt.Errorf("service.QueryService.PendingRides: %w", err)
	}
	for i := range rides {
		rides[i] = ProjectRide(rides[i], domain.RoleDriver)
	}
	return rides, nil
}

// Trip returns a trip with the manifest shaped for the caller.
func (s *QueryService) Trip(ctx context.Context, who domain.Identity, id uuid.UUID) (domain.PublishedTrip, error) {
	trip, err := s.repos.Trips.GetByID(ctx, id)
	if err != nil {
		return domain.PublishedTrip{}, fmt.Errorf("service.QueryService.Trip: %w", err)
	}
	return ProjectTrip(trip, who.ActorID), nil
}

// HostedTrips lists trips the caller published, latest scheduled first.
func (s *QueryService) HostedTrips(ctx context.Context, who domain.Identity) ([]domain.PublishedTrip, error) {
	if who.Role != domain.RoleDriver {
		return nil, fmt.Errorf("service.QueryService.HostedTrips: %w: only drivers host trips", domain.ErrForbidden)
	}
	trips, err := s.repos.Trips.ListByHost(ctx, who.ActorID)
	if err != nil {
		return nil, fmt.Errorf("service.QueryService.HostedTrips: %w", err)
	}
	return projectTrips(trips, who.ActorID), nil
}

// JoinedTrips lists trips the caller has booked seats on.
func (s *QueryService) JoinedTrips(ctx context.Context, who domain.Identity) ([]domain.PublishedTrip, error) {
	trips, err := s.repos.Trips.ListByPassenger(ctx, who.ActorID)
	if err != nil {
		return nil, fmt.Errorf("service.QueryService.JoinedTrips: %w", err)
	}
	return projectTrips(trips, who.ActorID), nil
}

// ProjectRide shapes a ride for a viewer acting in role. Drivers see the
// hidden-dropoff sentinel until the ride is ongoing or completed.
func ProjectRide(ride domain.Ride, role domain.Role) domain.Ride {
	if role == domain.RoleDriver && !ride.DropoffVisible() {
		ride.Dropoff = domain.HiddenPlace()
	}
	return ride
}

// ProjectTrip strips every pickup code except the viewer's own.
func ProjectTrip(trip domain.PublishedTrip, viewer uuid.UUID) domain.PublishedTrip {
	if len(trip.Manifest) == 0 {
		return trip
	}
	manifest := make([]domain.Booking, len(trip.Manifest))
	for i, b := range trip.Manifest {
		if b.PassengerID != viewer {
			b.PickupCode = ""
		}
		manifest[i] = b
	}
	trip.Manifest = manifest
	return trip
}

func projectTrips(trips []domain.PublishedTrip, viewer uuid.UUID) []domain.PublishedTrip {
	for i := range trips {
		trips[i] = ProjectTrip(trips[i], viewer)
	}
	return trips
}
