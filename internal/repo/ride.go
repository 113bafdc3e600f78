package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ridepool/backend/internal/domain"
)

// RideRepo defines the persistence operations for on-demand rides.
// Every state change is a conditional update keyed on the status the caller
// read, so a concurrent writer that got there first makes the loser fail
// with domain.ErrConflict instead of overwriting.
type RideRepo interface {
	// Create inserts a pending ride. Returns domain.ErrConflict if the
	// passenger already has a non-terminal ride.
	Create(ctx context.Context, ride domain.Ride) (domain.Ride, error)

	// GetByID retrieves a ride. Returns domain.ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Ride, error)

	// Claim binds driverID to a pending, unclaimed ride and moves it to
	// accepted. Returns domain.ErrConflict if the ride is no longer claimable
	// or the driver already has a non-terminal ride.
	Claim(ctx context.Context, id, driverID uuid.UUID, at time.Time) (domain.Ride, error)

	// UpdateStatus writes ride's status, timestamps, cancellation fields and
	// settlement flag, provided the stored status still equals from.
	UpdateStatus(ctx context.Context, ride domain.Ride, from domain.RideStatus) (domain.Ride, error)

	// SetRating records one side's rating on a completed ride that side has
	// not yet rated. Returns domain.ErrConflict otherwise.
	SetRating(ctx context.Context, id uuid.UUID, side domain.RatingSide, rating domain.Rating) (domain.Ride, error)

	// FindActive returns the actor's non-terminal ride in the given role.
	// Returns domain.ErrNotFound if there is none.
	FindActive(ctx context.Context, actorID uuid.UUID, role domain.Role) (domain.Ride, error)

	// ListHistory returns one page of the actor's terminal rides, newest first,
	// and the total number of such rides.
	ListHistory(ctx context.Context, actorID uuid.UUID, role domain.Role, page domain.PaginationParams) ([]domain.Ride, int64, error)

	// ListPending returns unclaimed pending rides, newest first.
	// An empty class matches every vehicle class.
	ListPending(ctx context.Context, class domain.VehicleClass, limit int) ([]domain.Ride, error)
}

// Constraint names from migrations/00002_create_rides.sql.
const (
	constraintActivePassenger = "rides_one_active_per_passenger"
	constraintActiveDriver    = "rides_one_active_per_driver"
)

const rideColumns = `
	id, passenger_id, driver_id,
	pickup_address, pickup_lat, pickup_lng,
	dropoff_address, dropoff_lat, dropoff_lng,
	kind, vehicle_class, seats, distance_km, duration_mins,
	estimated_fare, offered_fare, final_fare, payment_method, payment_settled,
	status, cancelled_by, cancel_reason,
	accepted_at, arrived_at, started_at, completed_at, cancelled_at,
	passenger_rating, passenger_rating_comment, passenger_rated_at,
	driver_rating, driver_rating_comment, driver_rated_at,
	created_at, updated_at`

// pgRideRepo is the Postgres implementation of RideRepo.
type pgRideRepo struct {
	db db
}

// NewRideRepo constructs a RideRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewRideRepo(db db) RideRepo {
	return &pgRideRepo{db: db}
}

// Create inserts a new ride row and returns the full persisted record.
func (r *pgRideRepo) Create(ctx context.Context, ride domain.Ride) (domain.Ride, error) {
	q := `
		INSERT INTO rides (
			passenger_id, pickup_address, pickup_lat, pickup_lng,
			dropoff_address, dropoff_lat, dropoff_lng,
			kind, vehicle_class, seats, distance_km, duration_mins,
			estimated_fare, offered_fare, final_fare, payment_method, status)
		VALUES (
			@passenger_id, @pickup_address, @pickup_lat, @pickup_lng,
			@dropoff_address, @dropoff_lat, @dropoff_lng,
			@kind, @vehicle_class, @seats, @distance_km, @duration_mins,
			@estimated_fare, @offered_fare, @final_fare, @payment_method, 'pending')
		RETURNING ` + rideColumns

	args := pgx.NamedArgs{
		"passenger_id":    ride.PassengerID,
		"pickup_address":  ride.Pickup.Address,
		"pickup_lat":      ride.Pickup.Coords.Lat,
		"pickup_lng":      ride.Pickup.Coords.Lng,
		"dropoff_address": ride.Dropoff.Address,
		"dropoff_lat":     ride.Dropoff.Coords.Lat,
		"dropoff_lng":     ride.Dropoff.Coords.Lng,
		"kind":            string(ride.Kind),
		"vehicle_class":   string(ride.VehicleClass),
		"seats":           ride.Seats,
		"distance_km":     ride.DistanceKm,
		"duration_mins":   ride.DurationMins,
		"estimated_fare":  ride.EstimatedFare,
		"offered_fare":    ride.OfferedFare,
		"final_fare":      ride.FinalFare,
		"payment_method":  string(ride.PaymentMethod),
	}

	result, err := scanRide(r.db.QueryRow(ctx, q, args))
	if err != nil {
		if isUniqueViolation(err, constraintActivePassenger) {
			return domain.Ride{}, fmt.Errorf("repo.RideRepo.Create: %w: passenger already has an active ride", domain.ErrConflict)
		}
		return domain.Ride{}, fmt.Errorf("repo.RideRepo.Create: %w", err)
	}
	return result, nil
}

// GetByID retrieves a ride by primary key.
func (r *pgRideRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Ride, error) {
	q := `SELECT ` + rideColumns + ` FROM rides WHERE id = @id`

	result, err := scanRide(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Ride{}, fmt.Errorf("repo.RideRepo.GetByID: %w", err)
	}
	return result, nil
}

// Claim is the compare-and-set from pending/unassigned to accepted/driverID.
func (r *pgRideRepo) Claim(ctx context.Context, id, driverID uuid.UUID, at time.Time) (domain.Ride, error) {
	q := `
		UPDATE rides
		SET driver_id   = @driver_id,
		    status      = 'accepted',
		    accepted_at = @at,
		    updated_at  = @at
		WHERE id = @id AND status = 'pending' AND driver_id IS NULL
		RETURNING ` + rideColumns

	args := pgx.NamedArgs{"id": id, "driver_id": driverID, "at": at}
	result, err := scanRide(r.db.QueryRow(ctx, q, args))
	switch {
	case err == nil:
		return result, nil
	case isUniqueViolation(err, constraintActiveDriver):
		return domain.Ride{}, fmt.Errorf("repo.RideRepo.Claim: %w: driver already has an active ride", domain.ErrConflict)
	case errors.Is(err, domain.ErrNotFound):
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return domain.Ride{}, fmt.Errorf("repo.RideRepo.Claim: %w", getErr)
		}
		return domain.Ride{}, fmt.Errorf("repo.RideRepo.Claim: %w: ride is no longer pending", domain.ErrConflict)
	default:
		return domain.Ride{}, fmt.Errorf("repo.RideRepo.Claim: %w", err)
	}
}

// UpdateStatus is the compare-and-set on status used by every transition
// after acceptance.
func (r *pgRideRepo) UpdateStatus(ctx context.Context, ride domain.Ride, from domain.RideStatus) (domain.Ride, error) {
	q := `
		UPDATE rides
		SET status          = @status,
		    cancelled_by    = @cancelled_by,
		    cancel_reason   = @cancel_reason,
		    payment_settled = @payment_settled,
		    final_fare      = @final_fare,
		    accepted_at     = @accepted_at,
		    arrived_at      = @arrived_at,
		    started_at      = @started_at,
		    completed_at    = @completed_at,
		    cancelled_at    = @cancelled_at,
		    updated_at      = now()
		WHERE id = @id AND status = @from
		RETURNING ` + rideColumns

	args := pgx.NamedArgs{
		"id":              ride.ID,
		"from":            string(from),
		"status":          string(ride.Status),
		"cancelled_by":    string(ride.CancelledBy),
		"cancel_reason":   ride.CancelReason,
		"payment_settled": ride.PaymentSettled,
		"final_fare":      ride.FinalFare,
		"accepted_at":     ride.AcceptedAt,
		"arrived_at":      ride.ArrivedAt,
		"started_at":      ride.StartedAt,
		"completed_at":    ride.CompletedAt,
		"cancelled_at":    ride.CancelledAt,
	}

	result, err := scanRide(r.db.QueryRow(ctx, q, args))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Ride{}, fmt.Errorf("repo.RideRepo.UpdateStatus: %w: ride is no longer %s", domain.ErrConflict, from)
		}
		return domain.Ride{}, fmt.Errorf("repo.RideRepo.UpdateStatus: %w", err)
	}
	return result, nil
}

// SetRating records a rating at most once per side.
func (r *pgRideRepo) SetRating(ctx context.Context, id uuid.UUID, side domain.RatingSide, rating domain.Rating) (domain.Ride, error) {
	var q string
	switch side {
	case domain.RatingByPassenger:
		q = `
		UPDATE rides
		SET passenger_rating = @value, passenger_rating_comment = @comment,
		    passenger_rated_at = @at, updated_at = now()
		WHERE id = @id AND status = 'completed' AND passenger_rating IS NULL
		RETURNING ` + rideColumns
	case domain.RatingByDriver:
		q = `
		UPDATE rides
		SET driver_rating = @value, driver_rating_comment = @comment,
		    driver_rated_at = @at, updated_at = now()
		WHERE id = @id AND status = 'completed' AND driver_rating IS NULL
		RETURNING ` + rideColumns
	default:
		return domain.Ride{}, fmt.Errorf("repo.RideRepo.SetRating: %w: unknown rating side %q", domain.ErrValidation, side)
	}

	args := pgx.NamedArgs{"id": id, "value": rating.Value, "comment": rating.Comment, "at": rating.GivenAt}
	result, err := scanRide(r.db.QueryRow(ctx, q, args))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Ride{}, fmt.Errorf("repo.RideRepo.SetRating: %w: ride is not completed or already rated", domain.ErrConflict)
		}
		return domain.Ride{}, fmt.Errorf("repo.RideRepo.SetRating: %w", err)
	}
	return result, nil
}

// FindActive returns the actor's single non-terminal ride.
func (r *pgRideRepo) FindActive(ctx context.Context, actorID uuid.UUID, role domain.Role) (domain.Ride, error) {
	q := `SELECT ` + rideColumns + ` FROM rides
		WHERE ` + partyColumn(role) + ` = @actor_id AND status = ANY(@statuses)
		ORDER BY created_at DESC
		LIMIT 1`

	args := pgx.NamedArgs{"actor_id": actorID, "statuses": statusStrings(domain.ActiveRideStatuses)}
	result, err := scanRide(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Ride{}, fmt.Errorf("repo.RideRepo.FindActive: %w", err)
	}
	return result, nil
}

// ListHistory returns a page of terminal rides for one party.
func (r *pgRideRepo) ListHistory(ctx context.Context, actorID uuid.UUID, role domain.Role, page domain.PaginationParams) ([]domain.Ride, int64, error) {
	where := ` FROM rides WHERE ` + partyColumn(role) + ` = @actor_id AND status = ANY(@statuses)`
	args := pgx.NamedArgs{
		"actor_id": actorID,
		"statuses": statusStrings(domain.TerminalRideStatuses),
		"limit":    page.Limit,
		"offset":   page.Offset(),
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*)`+where, args).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.RideRepo.ListHistory: count: %w", err)
	}

	rides, err := r.queryRides(ctx, `SELECT `+rideColumns+where+` ORDER BY created_at DESC LIMIT @limit OFFSET @offset`, args)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.RideRepo.ListHistory: %w", err)
	}
	return rides, total, nil
}

// ListPending returns the claimable queue.
func (r *pgRideRepo) ListPending(ctx context.Context, class domain.VehicleClass, limit int) ([]domain.Ride, error) {
	q := `SELECT ` + rideColumns + ` FROM rides
		WHERE status = 'pending' AND driver_id IS NULL
		  AND (@class = '' OR vehicle_class = @class)
		ORDER BY created_at DESC
		LIMIT @limit`

	rides, err := r.queryRides(ctx, q, pgx.NamedArgs{"class": string(class), "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("repo.RideRepo.ListPending: %w", err)
	}
	return rides, nil
}

func (r *pgRideRepo) queryRides(ctx context.Context, q string, args pgx.NamedArgs) ([]domain.Ride, error) {
	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		rides = append(rides, ride)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return rides, nil
}

func partyColumn(role domain.Role) string {
	if role == domain.RoleDriver {
		return "driver_id"
	}
	return "passenger_id"
}

// scanRide maps a single rides row into a domain.Ride.
func scanRide(s scanner) (domain.Ride, error) {
	var (
		r                           domain.Ride
		id, passengerID, driverID   pgtype.UUID
		kind, class, method, status string
		cancelledBy                 string
		pRating, dRating            pgtype.Int2
		pComment, dComment          string
		pRatedAt, dRatedAt          pgtype.Timestamptz
	)

	err := s.Scan(
		&id, &passengerID, &driverID,
		&r.Pickup.Address, &r.Pickup.Coords.Lat, &r.Pickup.Coords.Lng,
		&r.Dropoff.Address, &r.Dropoff.Coords.Lat, &r.Dropoff.Coords.Lng,
		&kind, &class, &r.Seats, &r.DistanceKm, &r.DurationMins,
		&r.EstimatedFare, &r.OfferedFare, &r.FinalFare, &method, &r.PaymentSettled,
		&status, &cancelledBy, &r.CancelReason,
		&r.AcceptedAt, &r.ArrivedAt, &r.StartedAt, &r.CompletedAt, &r.CancelledAt,
		&pRating, &pComment, &pRatedAt,
		&dRating, &dComment, &dRatedAt,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Ride{}, domain.ErrNotFound
		}
		return domain.Ride{}, err
	}

	r.ID = uuid.UUID(id.Bytes)
	r.PassengerID = uuid.UUID(passengerID.Bytes)
	if driverID.Valid {
		d := uuid.UUID(driverID.Bytes)
		r.DriverID = &d
	}
	r.Kind = domain.RideKind(kind)
	r.VehicleClass = domain.VehicleClass(class)
	r.PaymentMethod = domain.PaymentMethod(method)
	r.Status = domain.RideStatus(status)
	r.CancelledBy = domain.CancelledBy(cancelledBy)
	r.PassengerRating = ratingFrom(pRating, pComment, pRatedAt)
	r.DriverRating = ratingFrom(dRating, dComment, dRatedAt)
	return r, nil
}

func ratingFrom(v pgtype.Int2, comment string, at pgtype.Timestamptz) *domain.Rating {
	if !v.Valid {
		return nil
	}
	return &domain.Rating{Value: int(v.Int16), Comment: comment, GivenAt: at.Time}
}
