package repo

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ridepool/backend/internal/domain"
	"github.com/ridepool/backend/internal/geo"
)

// MemoryStore is an in-process Store with the same conditional-update and
// uniqueness semantics as the Postgres implementation. Every call is
// serialised by one mutex; WithinTx holds it for the whole unit of work and
// applies a snapshot only when fn succeeds.
//
// Inside WithinTx, use only the Repos passed to fn. Calling Repos() on the
// store from inside fn deadlocks.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

var (
	_ Store     = (*MemoryStore)(nil)
	_ RideRepo  = (*memRideRepo)(nil)
	_ TripRepo  = (*memTripRepo)(nil)
	_ ActorRepo = (*memActorRepo)(nil)
)

type memState struct {
	rides     map[uuid.UUID]domain.Ride
	rideOrder []uuid.UUID

	trips     map[uuid.UUID]domain.PublishedTrip
	tripOrder []uuid.UUID

	bookings     map[uuid.UUID]domain.Booking
	bookingOrder []uuid.UUID

	actors map[uuid.UUID]domain.Actor
	topups map[string]uuid.UUID
}

func newMemState() *memState {
	return &memState{
		rides:    map[uuid.UUID]domain.Ride{},
		trips:    map[uuid.UUID]domain.PublishedTrip{},
		bookings: map[uuid.UUID]domain.Booking{},
		actors:   map[uuid.UUID]domain.Actor{},
		topups:   map[string]uuid.UUID{},
	}
}

// clone copies every map and slice. Records are values and are always
// replaced whole, so a shallow copy of each map is a full snapshot.
func (s *memState) clone() *memState {
	return &memState{
		rides:        maps.Clone(s.rides),
		rideOrder:    append([]uuid.UUID(nil), s.rideOrder...),
		trips:        maps.Clone(s.trips),
		tripOrder:    append([]uuid.UUID(nil), s.tripOrder...),
		bookings:     maps.Clone(s.bookings),
		bookingOrder: append([]uuid.UUID(nil), s.bookingOrder...),
		actors:       maps.Clone(s.actors),
		topups:       maps.Clone(s.topups),
	}
}

// Repos returns repositories that lock the store per call.
func (m *MemoryStore) Repos() Repos {
	return memReposFor(memRepos{store: m})
}

// WithinTx runs fn on a private snapshot and publishes it if fn succeeds.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(Repos) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("repo.MemoryStore.WithinTx: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(memReposFor(memRepos{store: m, tx: snapshot})); err != nil {
		return fmt.Errorf("repo.MemoryStore.WithinTx: %w", err)
	}
	m.state = snapshot
	return nil
}

type memRepos struct {
	store *MemoryStore
	tx    *memState
}

func memReposFor(r memRepos) Repos {
	return Repos{
		Rides:  &memRideRepo{r},
		Trips:  &memTripRepo{r},
		Actors: &memActorRepo{r},
	}
}

// with runs fn against the transaction snapshot, or under the store lock
// when there is no transaction.
func (r memRepos) with(fn func(st *memState) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.state)
}

func memNow() time.Time { return time.Now().UTC() }

func isActive(s domain.RideStatus) bool { return !s.Terminal() }

// ---- rides -----------------------------------------------------------------

type memRideRepo struct{ memRepos }

func (r *memRideRepo) Create(_ context.Context, ride domain.Ride) (domain.Ride, error) {
	var out domain.Ride
	err := r.with(func(st *memState) error {
		for _, existing := range st.rides {
			if existing.PassengerID == ride.PassengerID && isActive(existing.Status) {
				return fmt.Errorf("%w: passenger already has an active ride", domain.ErrConflict)
			}
		}
		now := memNow()
		ride.ID = uuid.New()
		ride.DriverID = nil
		ride.Status = domain.RidePending
		ride.PaymentSettled = false
		ride.CreatedAt, ride.UpdatedAt = now, now
		st.rides[ride.ID] = ride
		st.rideOrder = append(st.rideOrder, ride.ID)
		out = ride
		return nil
	})
	if err != nil {
		return domain.Ride{}, fmt.Errorf("repo.MemoryRideRepo.Create: %w", err)
	}
	return out, nil
}

func (r *memRideRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Ride, error) {
	var out domain.Ride
	err := r.with(func(st *memState) error {
		ride, ok := st.rides[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = ride
		return nil
	})
	if err != nil {
		return domain.Ride{}, fmt.Errorf("repo.MemoryRideRepo.GetByID: %w", err)
	}
	return out, nil
}

func (r *memRideRepo) Claim(_ context.Context, id, driverID uuid.UUID, at time.Time) (domain.Ride, error) {
	var out domain.Ride
	err := r.with(func(st *memState) error {
		ride, ok := st.rides[id]
		if !ok {
			return domain.ErrNotFound
		}
		if ride.Status != domain.RidePending || ride.DriverID != nil {
			return fmt.Errorf("%w: ride is no longer pending", domain.ErrConflict)
		}
		for _, other := range st.rides {
			if other.IsDriver(driverID) && isActive(other.Status) {
				return fmt.Errorf("%w: driver already has an active ride", domain.ErrConflict)
			}
		}
		d := driverID
		ride.DriverID = &d
		ride.StampTransition(domain.RideAccepted, at)
		st.rides[id] = ride
		out = ride
		return nil
	})
	if err != nil {
		return domain.Ride{}, fmt.Errorf("repo.MemoryRideRepo.Claim: %w", err)
	}
	return out, nil
}

func (r *memRideRepo) UpdateStatus(_ context.Context, ride domain.Ride, from domain.RideStatus) (domain.Ride, error) {
	var out domain.Ride
	err := r.with(func(st *memState) error {
		stored, ok := st.rides[ride.ID]
		if !ok || stored.Status != from {
			return fmt.Errorf("%w: ride is no longer %s", domain.ErrConflict, from)
		}
		stored.Status = ride.Status
		stored.CancelledBy = ride.CancelledBy
		stored.CancelReason = ride.CancelReason
		stored.PaymentSettled = ride.PaymentSettled
		stored.FinalFare = ride.FinalFare
		stored.AcceptedAt = ride.AcceptedAt
		stored.ArrivedAt = ride.ArrivedAt
		stored.StartedAt = ride.StartedAt
		stored.CompletedAt = ride.CompletedAt
		stored.CancelledAt = ride.CancelledAt
		stored.UpdatedAt = memNow()
		st.rides[ride.ID] = stored
		out = stored
		return nil
	})
	if err != nil {
		return domain.Ride{}, fmt.Errorf("repo.MemoryRideRepo.UpdateStatus: %w", err)
	}
	return out, nil
}

func (r *memRideRepo) SetRating(_ context.Context, id uuid.UUID, side domain.RatingSide, rating domain.Rating) (domain.Ride, error) {
	var out domain.Ride
	err := r.with(func(st *memState) error {
		ride, ok := st.rides[id]
		if !ok || ride.Status != domain.RideCompleted {
			return fmt.Errorf("%w: ride is not completed or already rated", domain.ErrConflict)
		}
		rt := rating
		switch side {
		case domain.RatingByPassenger:
			if ride.PassengerRating != nil {
				return fmt.Errorf("%w: ride is not completed or already rated", domain.ErrConflict)
			}
			ride.PassengerRating = &rt
		case domain.RatingByDriver:
			if ride.DriverRating != nil {
				return fmt.Errorf("%w: ride is not completed or already rated", domain.ErrConflict)
			}
			ride.DriverRating = &rt
		default:
			return fmt.Errorf("%w: unknown rating side %q", domain.ErrValidation, side)
		}
		ride.UpdatedAt = memNow()
		st.rides[id] = ride
		out = ride
		return nil
	})
	if err != nil {
		return domain.Ride{}, fmt.Errorf("repo.MemoryRideRepo.SetRating: %w", err)
	}
	return out, nil
}

func (r *memRideRepo) FindActive(_ context.Context, actorID uuid.UUID, role domain.Role) (domain.Ride, error) {
	var out domain.Ride
	err := r.with(func(st *memState) error {
		for i := len(st.rideOrder) - 1; i >= 0; i-- {
			ride := st.rides[st.rideOrder[i]]
			if isActive(ride.Status) && isParty(ride, actorID, role) {
				out = ride
				return nil
			}
		}
		return domain.ErrNotFound
	})
	if err != nil {
		return domain.Ride{}, fmt.Errorf("repo.MemoryRideRepo.FindActive: %w", err)
	}
	return out, nil
}

func (r *memRideRepo) ListHistory(_ context.Context, actorID uuid.UUID, role domain.Role, page domain.PaginationParams) ([]domain.Ride, int64, error) {
	var matched []domain.Ride
	_ = r.with(func(st *memState) error {
		for i := len(st.rideOrder) - 1; i >= 0; i-- {
			ride := st.rides[st.rideOrder[i]]
			if ride.Status.Terminal() && isParty(ride, actorID, role) {
				matched = append(matched, ride)
			}
		}
		return nil
	})
	return paginate(matched, page), int64(len(matched)), nil
}

func (r *memRideRepo) ListPending(_ context.Context, class domain.VehicleClass, limit int) ([]domain.Ride, error) {
	var out []domain.Ride
	_ = r.with(func(st *memState) error {
		for i := len(st.rideOrder) - 1; i >= 0 && len(out) < limit; i-- {
			ride := st.rides[st.rideOrder[i]]
			if ride.Status != domain.RidePending || ride.DriverID != nil {
				continue
			}
			if class != "" && ride.VehicleClass != class {
				continue
			}
			out = append(out, ride)
		}
		return nil
	})
	return out, nil
}

func isParty(ride domain.Ride, actorID uuid.UUID, role domain.Role) bool {
	if role == domain.RoleDriver {
		return ride.IsDriver(actorID)
	}
	return ride.PassengerID == actorID
}

func paginate[T any](items []T, page domain.PaginationParams) []T {
	start := page.Offset()
	if start >= len(items) {
		return nil
	}
	end := start + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// ---- trips -----------------------------------------------------------------

type memTripRepo struct{ memRepos }

func (s *memState) tripWithManifest(id uuid.UUID) (domain.PublishedTrip, bool) {
	trip, ok := s.trips[id]
	if !ok {
		return domain.PublishedTrip{}, false
	}
	trip.Manifest = nil
	for _, bid := range s.bookingOrder {
		if b := s.bookings[bid]; b.TripID == id {
			trip.Manifest = append(trip.Manifest, b)
		}
	}
	return trip, true
}

func (r *memTripRepo) Create(_ context.Context, trip domain.PublishedTrip) (domain.PublishedTrip, error) {
	var out domain.PublishedTrip
	_ = r.with(func(st *memState) error {
		now := memNow()
		trip.ID = uuid.New()
		trip.AvailableSeats = trip.TotalSeats
		trip.Status = domain.TripScheduled
		trip.Manifest = nil
		trip.CreatedAt, trip.UpdatedAt = now, now
		st.trips[trip.ID] = trip
		st.tripOrder = append(st.tripOrder, trip.ID)
		out = trip
		return nil
	})
	return out, nil
}

func (r *memTripRepo) GetByID(_ context.Context, id uuid.UUID) (domain.PublishedTrip, error) {
	var out domain.PublishedTrip
	err := r.with(func(st *memState) error {
		trip, ok := st.tripWithManifest(id)
		if !ok {
			return domain.ErrNotFound
		}
		out = trip
		return nil
	})
	if err != nil {
		return domain.PublishedTrip{}, fmt.Errorf("repo.MemoryTripRepo.GetByID: %w", err)
	}
	return out, nil
}

func (r *memTripRepo) Search(_ context.Context, filter domain.TripSearch) ([]domain.PublishedTrip, error) {
	notBefore := filter.Now.Add(-domain.SearchScheduleTolerance)
	var out []domain.PublishedTrip
	_ = r.with(func(st *memState) error {
		for _, id := range st.tripOrder {
			t := st.trips[id]
			switch {
			case t.Status != domain.TripScheduled, t.AvailableSeats <= 0, t.ScheduledTime.Before(notBefore):
				continue
			case filter.Kind != nil && t.Kind != *filter.Kind:
				continue
			case filter.From != nil && !geo.Within(*filter.From, t.Origin.Coords, domain.SearchOriginRadiusKm):
				continue
			case filter.To != nil && !geo.Within(*filter.To, t.Destination.Coords, domain.SearchDestinationRadiusKm):
				continue
			}
			out = append(out, t)
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	if len(out) > domain.SearchLimit {
		out = out[:domain.SearchLimit]
	}
	return out, nil
}

func (r *memTripRepo) ListByHost(_ context.Context, hostID uuid.UUID) ([]domain.PublishedTrip, error) {
	return r.listWhere(func(st *memState, t domain.PublishedTrip) bool { return t.HostID == hostID }), nil
}

func (r *memTripRepo) ListByPassenger(_ context.Context, passengerID uuid.UUID) ([]domain.PublishedTrip, error) {
	return r.listWhere(func(st *memState, t domain.PublishedTrip) bool {
		for _, b := range st.bookings {
			if b.TripID == t.ID && b.PassengerID == passengerID {
				return true
			}
		}
		return false
	}), nil
}

// listWhere returns matching trips with manifests, latest scheduled first.
func (r *memTripRepo) listWhere(match func(*memState, domain.PublishedTrip) bool) []domain.PublishedTrip {
	var out []domain.PublishedTrip
	_ = r.with(func(st *memState) error {
		for _, id := range st.tripOrder {
			if t := st.trips[id]; match(st, t) {
				full, _ := st.tripWithManifest(id)
				out = append(out, full)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledTime.After(out[j].ScheduledTime) })
	return out
}

func (r *memTripRepo) ReserveSeats(_ context.Context, tripID uuid.UUID, seats int) (domain.PublishedTrip, error) {
	var out domain.PublishedTrip
	err := r.with(func(st *memState) error {
		t, ok := st.trips[tripID]
		switch {
		case !ok:
			return domain.ErrNotFound
		case t.Status != domain.TripScheduled:
			return fmt.Errorf("%w: trip is %s", domain.ErrConflict, t.Status)
		case t.AvailableSeats < seats:
			return fmt.Errorf("%w: requested %d, available %d", domain.ErrInsufficientSeats, seats, t.AvailableSeats)
		}
		t.AvailableSeats -= seats
		t.UpdatedAt = memNow()
		st.trips[tripID] = t
		out = t
		return nil
	})
	if err != nil {
		return domain.PublishedTrip{}, fmt.Errorf("repo.MemoryTripRepo.ReserveSeats: %w", err)
	}
	return out, nil
}

func (r *memTripRepo) ReleaseSeats(_ context.Context, tripID uuid.UUID, seats int) error {
	err := r.with(func(st *memState) error {
		t, ok := st.trips[tripID]
		if !ok {
			return domain.ErrNotFound
		}
		if t.Status != domain.TripScheduled {
			return fmt.Errorf("%w: trip is %s", domain.ErrConflict, t.Status)
		}
		if t.AvailableSeats+seats > t.TotalSeats {
			return fmt.Errorf("available seats would exceed total seats")
		}
		t.AvailableSeats += seats
		t.UpdatedAt = memNow()
		st.trips[tripID] = t
		return nil
	})
	if err != nil {
		return fmt.Errorf("repo.MemoryTripRepo.ReleaseSeats: %w", err)
	}
	return nil
}

func (r *memTripRepo) AddBooking(_ context.Context, b domain.Booking) (domain.Booking, error) {
	var out domain.Booking
	err := r.with(func(st *memState) error {
		if _, ok := st.trips[b.TripID]; !ok {
			return domain.ErrNotFound
		}
		for _, existing := range st.bookings {
			if existing.TripID == b.TripID && existing.PassengerID == b.PassengerID && existing.Status != domain.BookingCancelled {
				return fmt.Errorf("%w: passenger already booked on this trip", domain.ErrConflict)
			}
		}
		now := memNow()
		b.ID = uuid.New()
		b.Status = domain.BookingConfirmed
		b.PickupStatus = domain.PickupPending
		b.CreatedAt, b.UpdatedAt = now, now
		st.bookings[b.ID] = b
		st.bookingOrder = append(st.bookingOrder, b.ID)
		out = b
		return nil
	})
	if err != nil {
		return domain.Booking{}, fmt.Errorf("repo.MemoryTripRepo.AddBooking: %w", err)
	}
	return out, nil
}

func (r *memTripRepo) UpdateBookingStatus(_ context.Context, bookingID uuid.UUID, from, to domain.BookingStatus) (domain.Booking, error) {
	var out domain.Booking
	err := r.with(func(st *memState) error {
		b, ok := st.bookings[bookingID]
		if !ok || b.Status != from {
			return fmt.Errorf("%w: booking is no longer %s", domain.ErrConflict, from)
		}
		b.Status = to
		b.UpdatedAt = memNow()
		st.bookings[bookingID] = b
		out = b
		return nil
	})
	if err != nil {
		return domain.Booking{}, fmt.Errorf("repo.MemoryTripRepo.UpdateBookingStatus: %w", err)
	}
	return out, nil
}

func (r *memTripRepo) UpdatePickupStatus(_ context.Context, bookingID uuid.UUID, from, to domain.PickupStatus) (domain.Booking, error) {
	var out domain.Booking
	err := r.with(func(st *memState) error {
		b, ok := st.bookings[bookingID]
		if !ok || b.Status != domain.BookingConfirmed || b.PickupStatus != from {
			return fmt.Errorf("%w: passenger is no longer %s", domain.ErrConflict, from)
		}
		b.PickupStatus = to
		b.UpdatedAt = memNow()
		st.bookings[bookingID] = b
		out = b
		return nil
	})
	if err != nil {
		return domain.Booking{}, fmt.Errorf("repo.MemoryTripRepo.UpdatePickupStatus: %w", err)
	}
	return out, nil
}

func (r *memTripRepo) CompleteBookings(_ context.Context, tripID uuid.UUID) error {
	return r.with(func(st *memState) error {
		now := memNow()
		for id, b := range st.bookings {
			if b.TripID == tripID && b.Status == domain.BookingConfirmed {
				b.Status = domain.BookingCompleted
				b.UpdatedAt = now
				st.bookings[id] = b
			}
		}
		return nil
	})
}

func (r *memTripRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to domain.TripStatus) (domain.PublishedTrip, error) {
	var out domain.PublishedTrip
	err := r.with(func(st *memState) error {
		t, ok := st.trips[id]
		if !ok || t.Status != from {
			return fmt.Errorf("%w: trip is no longer %s", domain.ErrConflict, from)
		}
		t.Status = to
		t.UpdatedAt = memNow()
		st.trips[id] = t
		out, _ = st.tripWithManifest(id)
		return nil
	})
	if err != nil {
		return domain.PublishedTrip{}, fmt.Errorf("repo.MemoryTripRepo.UpdateStatus: %w", err)
	}
	return out, nil
}

// ---- actors ----------------------------------------------------------------

type memActorRepo struct{ memRepos }

func (r *memActorRepo) Upsert(_ context.Context, id uuid.UUID, role domain.Role) (domain.Actor, error) {
	var out domain.Actor
	_ = r.with(func(st *memState) error {
		now := memNow()
		a, ok := st.actors[id]
		if !ok {
			a = domain.Actor{ID: id, CreatedAt: now}
		}
		a.Role = role
		a.UpdatedAt = now
		st.actors[id] = a
		out = a
		return nil
	})
	return out, nil
}

func (r *memActorRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Actor, error) {
	var out domain.Actor
	err := r.with(func(st *memState) error {
		a, ok := st.actors[id]
		if !ok {
			return domain.ErrNotFound
		}
		a.Documents = maps.Clone(a.Documents)
		if a.Documents == nil {
			a.Documents = map[domain.DocumentType]string{}
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.Actor{}, fmt.Errorf("repo.MemoryActorRepo.GetByID: %w", err)
	}
	return out, nil
}

func (r *memActorRepo) AdjustBalances(_ context.Context, delta domain.BalanceDelta) (domain.Actor, error) {
	var out domain.Actor
	err := r.with(func(st *memState) error {
		a, ok := st.actors[delta.ActorID]
		if !ok {
			return domain.ErrNotFound
		}
		a.WalletBalance += delta.WalletDelta
		a.EarningsTotal += delta.EarningsDelta
		a.UpdatedAt = memNow()
		st.actors[a.ID] = a
		out = a
		return nil
	})
	if err != nil {
		return domain.Actor{}, fmt.Errorf("repo.MemoryActorRepo.AdjustBalances: %w", err)
	}
	return out, nil
}

func (r *memActorRepo) AddRating(_ context.Context, id uuid.UUID, value int) (domain.Actor, error) {
	var out domain.Actor
	err := r.with(func(st *memState) error {
		a, ok := st.actors[id]
		if !ok {
			return domain.ErrNotFound
		}
		a.RatingAverage = (a.RatingAverage*float64(a.RatingCount) + float64(value)) / float64(a.RatingCount+1)
		a.RatingCount++
		a.UpdatedAt = memNow()
		st.actors[id] = a
		out = a
		return nil
	})
	if err != nil {
		return domain.Actor{}, fmt.Errorf("repo.MemoryActorRepo.AddRating: %w", err)
	}
	return out, nil
}

func (r *memActorRepo) SetDocument(_ context.Context, id uuid.UUID, docType domain.DocumentType, path string) error {
	err := r.with(func(st *memState) error {
		a, ok := st.actors[id]
		if !ok {
			return domain.ErrNotFound
		}
		docs := maps.Clone(a.Documents)
		if docs == nil {
			docs = map[domain.DocumentType]string{}
		}
		docs[docType] = path
		a.Documents = docs
		a.UpdatedAt = memNow()
		st.actors[id] = a
		return nil
	})
	if err != nil {
		return fmt.Errorf("repo.MemoryActorRepo.SetDocument: %w", err)
	}
	return nil
}

func (r *memActorRepo) RecordTopUp(_ context.Context, reference string, actorID uuid.UUID, _ int64) (bool, error) {
	var inserted bool
	err := r.with(func(st *memState) error {
		if _, ok := st.actors[actorID]; !ok {
			return domain.ErrNotFound
		}
		if _, seen := st.topups[reference]; seen {
			return nil
		}
		st.topups[reference] = actorID
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("repo.MemoryActorRepo.RecordTopUp: %w", err)
	}
	return inserted, nil
}
