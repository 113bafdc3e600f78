package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ridepool/backend/internal/domain"
)

// TripRepo defines the persistence operations for published pool trips and
// their manifests.
type TripRepo interface {
	// Create inserts a scheduled trip with availableSeats = totalSeats.
	Create(ctx context.Context, trip domain.PublishedTrip) (domain.PublishedTrip, error)

	// GetByID retrieves a trip together with its full manifest.
	// Returns domain.ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (domain.PublishedTrip, error)

	// Search returns bookable trips matching filter, soonest first, capped at
	// domain.SearchLimit. Manifests are not loaded.
	Search(ctx context.Context, filter domain.TripSearch) ([]domain.PublishedTrip, error)

	// ListByHost returns the host's trips with manifests, latest scheduled first.
	ListByHost(ctx context.Context, hostID uuid.UUID) ([]domain.PublishedTrip, error)

	// ListByPassenger returns trips the passenger has a manifest entry on,
	// latest scheduled first, with manifests.
	ListByPassenger(ctx context.Context, passengerID uuid.UUID) ([]domain.PublishedTrip, error)

	// ReserveSeats atomically decrements availableSeats by seats if at least
	// that many remain and the trip is still scheduled. Returns
	// domain.ErrInsufficientSeats or domain.ErrConflict when the guard fails.
	ReserveSeats(ctx context.Context, tripID uuid.UUID, seats int) (domain.PublishedTrip, error)

	// ReleaseSeats returns seats to availableSeats while the trip is still
	// scheduled. Returns domain.ErrConflict once the trip has moved on.
	ReleaseSeats(ctx context.Context, tripID uuid.UUID, seats int) error

	// AddBooking appends a manifest entry. Returns domain.ErrConflict if the
	// passenger already has a live entry on the trip.
	AddBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)

	// UpdateBookingStatus moves an entry from one status to another.
	// Returns domain.ErrConflict if the entry is no longer in from.
	UpdateBookingStatus(ctx context.Context, bookingID uuid.UUID, from, to domain.BookingStatus) (domain.Booking, error)

	// UpdatePickupStatus moves an entry's pickup state from one value to another.
	UpdatePickupStatus(ctx context.Context, bookingID uuid.UUID, from, to domain.PickupStatus) (domain.Booking, error)

	// CompleteBookings marks every confirmed entry on the trip completed.
	CompleteBookings(ctx context.Context, tripID uuid.UUID) error

	// UpdateStatus sets the trip status if it still equals from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.TripStatus) (domain.PublishedTrip, error)
}

const constraintLiveBooking = "trip_bookings_one_live_per_passenger"

const tripColumns = `
	id, host_id, kind,
	origin_address, origin_lat, origin_lng,
	destination_address, destination_lat, destination_lng,
	scheduled_time, vehicle, total_seats, available_seats, price_per_seat,
	pref_music, pref_ac, pref_quiet, pref_pets,
	status, created_at, updated_at`

const bookingColumns = `
	id, trip_id, passenger_id, seats_booked, status, pickup_status, pickup_code,
	created_at, updated_at`

// haversineSQL is the great-circle distance in km between (lat, lng) columns
// and the named parameters.
func haversineSQL(latCol, lngCol, latParam, lngParam string) string {
	return fmt.Sprintf(`(2 * 6371 * asin(least(1.0, sqrt(
		power(sin(radians(@%[3]s - %[1]s) / 2), 2) +
		cos(radians(%[1]s)) * cos(radians(@%[3]s)) *
		power(sin(radians(@%[4]s - %[2]s) / 2), 2)))))`, latCol, lngCol, latParam, lngParam)
}

// pgTripRepo is the Postgres implementation of TripRepo.
type pgTripRepo struct {
	db db
}

// NewTripRepo constructs a TripRepo backed by the provided db connection.
func NewTripRepo(db db) TripRepo {
	return &pgTripRepo{db: db}
}

// Create inserts a new trip row and returns the full persisted record.
func (r *pgTripRepo) Create(ctx context.Context, trip domain.PublishedTrip) (domain.PublishedTrip, error) {
	q := `
		INSERT INTO published_trips (
			host_id, kind, origin_address, origin_lat, origin_lng,
			destination_address, destination_lat, destination_lng,
			scheduled_time, vehicle, total_seats, available_seats, price_per_seat,
			pref_music, pref_ac, pref_quiet, pref_pets, status)
		VALUES (
			@host_id, @kind, @origin_address, @origin_lat, @origin_lng,
			@destination_address, @destination_lat, @destination_lng,
			@scheduled_time, @vehicle, @total_seats, @total_seats, @price_per_seat,
			@pref_music, @pref_ac, @pref_quiet, @pref_pets, 'scheduled')
		RETURNING ` + tripColumns

	args := pgx.NamedArgs{
		"host_id":             trip.HostID,
		"kind":                string(trip.Kind),
		"origin_address":      trip.Origin.Address,
		"origin_lat":          trip.Origin.Coords.Lat,
		"origin_lng":          trip.Origin.Coords.Lng,
		"destination_address": trip.Destination.Address,
		"destination_lat":     trip.Destination.Coords.Lat,
		"destination_lng":     trip.Destination.Coords.Lng,
		"scheduled_time":      trip.ScheduledTime,
		"vehicle":             trip.Vehicle,
		"total_seats":         trip.TotalSeats,
		"price_per_seat":      trip.PricePerSeat,
		"pref_music":          trip.Preferences.Music,
		"pref_ac":             trip.Preferences.AC,
		"pref_quiet":          trip.Preferences.Quiet,
		"pref_pets":           trip.Preferences.Pets,
	}

	result, err := scanTrip(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.PublishedTrip{}, fmt.Errorf("repo.TripRepo.Create: %w", err)
	}
	return result, nil
}

// GetByID retrieves a trip and its manifest.
func (r *pgTripRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.PublishedTrip, error) {
	q := `SELECT ` + tripColumns + ` FROM published_trips WHERE id = @id`

	trip, err := scanTrip(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.PublishedTrip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", err)
	}
	if err := r.loadManifests(ctx, []*domain.PublishedTrip{&trip}); err != nil {
		return domain.PublishedTrip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", err)
	}
	return trip, nil
}

// Search filters bookable trips by kind, schedule window and radius.
func (r *pgTripRepo) Search(ctx context.Context, filter domain.TripSearch) ([]domain.PublishedTrip, error) {
	q := `SELECT ` + tripColumns + ` FROM published_trips
		WHERE status = 'scheduled'
		  AND available_seats > 0
		  AND scheduled_time >= @not_before`
	args := pgx.NamedArgs{
		"not_before": filter.Now.Add(-domain.SearchScheduleTolerance),
		"limit":      domain.SearchLimit,
	}
	if filter.Kind != nil {
		q += ` AND kind = @kind`
		args["kind"] = string(*filter.Kind)
	}
	if filter.From != nil {
		q += ` AND ` + haversineSQL("origin_lat", "origin_lng", "from_lat", "from_lng") + ` <= @from_radius`
		args["from_lat"], args["from_lng"] = filter.From.Lat, filter.From.Lng
		args["from_radius"] = domain.SearchOriginRadiusKm
	}
	if filter.To != nil {
		q += ` AND ` + haversineSQL("destination_lat", "destination_lng", "to_lat", "to_lng") + ` <= @to_radius`
		args["to_lat"], args["to_lng"] = filter.To.Lat, filter.To.Lng
		args["to_radius"] = domain.SearchDestinationRadiusKm
	}
	q += ` ORDER BY scheduled_time ASC LIMIT @limit`

	trips, err := r.queryTrips(ctx, q, args)
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.Search: %w", err)
	}
	return trips, nil
}

// ListByHost returns every trip the host published.
func (r *pgTripRepo) ListByHost(ctx context.Context, hostID uuid.UUID) ([]domain.PublishedTrip, error) {
	q := `SELECT ` + tripColumns + ` FROM published_trips
		WHERE host_id = @host_id
		ORDER BY scheduled_time DESC`

	trips, err := r.listWithManifests(ctx, q, pgx.NamedArgs{"host_id": hostID})
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.ListByHost: %w", err)
	}
	return trips, nil
}

// ListByPassenger returns every trip the passenger has joined.
func (r *pgTripRepo) ListByPassenger(ctx context.Context, passengerID uuid.UUID) ([]domain.PublishedTrip, error) {
	q := `SELECT ` + tripColumns + ` FROM published_trips t
		WHERE EXISTS (
			SELECT 1 FROM trip_bookings b
			WHERE b.trip_id = t.id AND b.passenger_id = @passenger_id)
		ORDER BY scheduled_time DESC`

	trips, err := r.listWithManifests(ctx, q, pgx.NamedArgs{"passenger_id": passengerID})
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.ListByPassenger: %w", err)
	}
	return trips, nil
}

// ReserveSeats is the conditional decrement the whole seat ledger rests on.
func (r *pgTripRepo) ReserveSeats(ctx context.Context, tripID uuid.UUID, seats int) (domain.PublishedTrip, error) {
	q := `
		UPDATE published_trips
		SET available_seats = available_seats - @seats,
		    updated_at      = now()
		WHERE id = @id AND status = 'scheduled' AND available_seats >= @seats
		RETURNING ` + tripColumns

	trip, err := scanTrip(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": tripID, "seats": seats}))
	if err == nil {
		return trip, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.PublishedTrip{}, fmt.Errorf("repo.TripRepo.ReserveSeats: %w", err)
	}

	// The guard failed; say which part of it.
	current, getErr := scanTrip(r.db.QueryRow(ctx,
		`SELECT `+tripColumns+` FROM published_trips WHERE id = @id`, pgx.NamedArgs{"id": tripID}))
	if getErr != nil {
		return domain.PublishedTrip{}, fmt.Errorf("repo.TripRepo.ReserveSeats: %w", getErr)
	}
	if current.Status != domain.TripScheduled {
		return domain.PublishedTrip{}, fmt.Errorf("repo.TripRepo.ReserveSeats: %w: trip is %s", domain.ErrConflict, current.Status)
	}
	return domain.PublishedTrip{}, fmt.Errorf("repo.TripRepo.ReserveSeats: %w: requested %d, available %d",
		domain.ErrInsufficientSeats, seats, current.AvailableSeats)
}

// ReleaseSeats gives seats back, bounded by the table's seat check.
func (r *pgTripRepo) ReleaseSeats(ctx context.Context, tripID uuid.UUID, seats int) error {
	const q = `
		UPDATE published_trips
		SET available_seats = available_seats + @seats,
		    updated_at      = now()
		WHERE id = @id AND status = 'scheduled'`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": tripID, "seats": seats})
	if err != nil {
		return fmt.Errorf("repo.TripRepo.ReleaseSeats: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status domain.TripStatus
	err = r.db.QueryRow(ctx, `SELECT status FROM published_trips WHERE id = @id`, pgx.NamedArgs{"id": tripID}).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("repo.TripRepo.ReleaseSeats: %w", domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("repo.TripRepo.ReleaseSeats: %w", err)
	}
	return fmt.Errorf("repo.TripRepo.ReleaseSeats: %w: trip is %s", domain.ErrConflict, status)
}

// AddBooking inserts a manifest entry.
func (r *pgTripRepo) AddBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	q := `
		INSERT INTO trip_bookings (trip_id, passenger_id, seats_booked, status, pickup_status, pickup_code)
		VALUES (@trip_id, @passenger_id, @seats_booked, 'confirmed', 'pending', @pickup_code)
		RETURNING ` + bookingColumns

	args := pgx.NamedArgs{
		"trip_id":      b.TripID,
		"passenger_id": b.PassengerID,
		"seats_booked": b.SeatsBooked,
		"pickup_code":  b.PickupCode,
	}
	result, err := scanBooking(r.db.QueryRow(ctx, q, args))
	if err != nil {
		if isUniqueViolation(err, constraintLiveBooking) {
			return domain.Booking{}, fmt.Errorf("repo.TripRepo.AddBooking: %w: passenger already booked on this trip", domain.ErrConflict)
		}
		return domain.Booking{}, fmt.Errorf("repo.TripRepo.AddBooking: %w", err)
	}
	return result, nil
}

// UpdateBookingStatus is a compare-and-set on a manifest entry's status.
func (r *pgTripRepo) UpdateBookingStatus(ctx context.Context, bookingID uuid.UUID, from, to domain.BookingStatus) (domain.Booking, error) {
	q := `
		UPDATE trip_bookings
		SET status = @to, updated_at = now()
		WHERE id = @id AND status = @from
		RETURNING ` + bookingColumns

	args := pgx.NamedArgs{"id": bookingID, "from": string(from), "to": string(to)}
	result, err := scanBooking(r.db.QueryRow(ctx, q, args))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Booking{}, fmt.Errorf("repo.TripRepo.UpdateBookingStatus: %w: booking is no longer %s", domain.ErrConflict, from)
		}
		return domain.Booking{}, fmt.Errorf("repo.TripRepo.UpdateBookingStatus: %w", err)
	}
	return result, nil
}

// UpdatePickupStatus is a compare-and-set on a live entry's pickup state.
func (r *pgTripRepo) UpdatePickupStatus(ctx context.Context, bookingID uuid.UUID, from, to domain.PickupStatus) (domain.Booking, error) {
	q := `
		UPDATE trip_bookings
		SET pickup_status = @to, updated_at = now()
		WHERE id = @id AND pickup_status = @from AND status = 'confirmed'
		RETURNING ` + bookingColumns

	args := pgx.NamedArgs{"id": bookingID, "from": string(from), "to": string(to)}
	result, err := scanBooking(r.db.QueryRow(ctx, q, args))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Booking{}, fmt.Errorf("repo.TripRepo.UpdatePickupStatus: %w: passenger is no longer %s", domain.ErrConflict, from)
		}
		return domain.Booking{}, fmt.Errorf("repo.TripRepo.UpdatePickupStatus: %w", err)
	}
	return result, nil
}

// CompleteBookings closes out the confirmed manifest.
func (r *pgTripRepo) CompleteBookings(ctx context.Context, tripID uuid.UUID) error {
	const q = `
		UPDATE trip_bookings
		SET status = 'completed', updated_at = now()
		WHERE trip_id = @trip_id AND status = 'confirmed'`

	if _, err := r.db.Exec(ctx, q, pgx.NamedArgs{"trip_id": tripID}); err != nil {
		return fmt.Errorf("repo.TripRepo.CompleteBookings: %w", err)
	}
	return nil
}

// UpdateStatus is a compare-and-set on the trip status.
func (r *pgTripRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.TripStatus) (domain.PublishedTrip, error) {
	q := `
		UPDATE published_trips
		SET status = @to, updated_at = now()
		WHERE id = @id AND status = @from
		RETURNING ` + tripColumns

	args := pgx.NamedArgs{"id": id, "from": string(from), "to": string(to)}
	trip, err := scanTrip(r.db.QueryRow(ctx, q, args))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PublishedTrip{}, fmt.Errorf("repo.TripRepo.UpdateStatus: %w: trip is no longer %s", domain.ErrConflict, from)
		}
		return domain.PublishedTrip{}, fmt.Errorf("repo.TripRepo.UpdateStatus: %w", err)
	}
	if err := r.loadManifests(ctx, []*domain.PublishedTrip{&trip}); err != nil {
		return domain.PublishedTrip{}, fmt.Errorf("repo.TripRepo.UpdateStatus: %w", err)
	}
	return trip, nil
}

func (r *pgTripRepo) queryTrips(ctx context.Context, q string, args pgx.NamedArgs) ([]domain.PublishedTrip, error) {
	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []domain.PublishedTrip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return trips, nil
}

func (r *pgTripRepo) listWithManifests(ctx context.Context, q string, args pgx.NamedArgs) ([]domain.PublishedTrip, error) {
	trips, err := r.queryTrips(ctx, q, args)
	if err != nil {
		return nil, err
	}
	ptrs := make([]*domain.PublishedTrip, len(trips))
	for i := range trips {
		ptrs[i] = &trips[i]
	}
	if err := r.loadManifests(ctx, ptrs); err != nil {
		return nil, err
	}
	return trips, nil
}

// loadManifests fills Manifest on each trip with one query, in booking order.
func (r *pgTripRepo) loadManifests(ctx context.Context, trips []*domain.PublishedTrip) error {
	if len(trips) == 0 {
		return nil
	}
	ids := make([]string, len(trips))
	byID := make(map[uuid.UUID]*domain.PublishedTrip, len(trips))
	for i, t := range trips {
		ids[i] = t.ID.String()
		byID[t.ID] = t
	}

	q := `SELECT ` + bookingColumns + ` FROM trip_bookings
		WHERE trip_id = ANY(@ids::uuid[])
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"ids": ids})
	if err != nil {
		return fmt.Errorf("load manifests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return fmt.Errorf("load manifests: scan: %w", err)
		}
		if t, ok := byID[b.TripID]; ok {
			t.Manifest = append(t.Manifest, b)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load manifests: rows: %w", err)
	}
	return nil
}

// scanTrip maps a published_trips row into a domain.PublishedTrip.
func scanTrip(s scanner) (domain.PublishedTrip, error) {
	var (
		t            domain.PublishedTrip
		id, hostID   pgtype.UUID
		kind, status string
	)

	err := s.Scan(
		&id, &hostID, &kind,
		&t.Origin.Address, &t.Origin.Coords.Lat, &t.Origin.Coords.Lng,
		&t.Destination.Address, &t.Destination.Coords.Lat, &t.Destination.Coords.Lng,
		&t.ScheduledTime, &t.Vehicle, &t.TotalSeats, &t.AvailableSeats, &t.PricePerSeat,
		&t.Preferences.Music, &t.Preferences.AC, &t.Preferences.Quiet, &t.Preferences.Pets,
		&status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PublishedTrip{}, domain.ErrNotFound
		}
		return domain.PublishedTrip{}, err
	}

	t.ID = uuid.UUID(id.Bytes)
	t.HostID = uuid.UUID(hostID.Bytes)
	t.Kind = domain.TripKind(kind)
	t.Status = domain.TripStatus(status)
	return t, nil
}

// scanBooking maps a trip_bookings row into a domain.Booking.
func scanBooking(s scanner) (domain.Booking, error) {
	var (
		b                          domain.Booking
		id, tripID, passengerID    pgtype.UUID
		status, pickupStatus, code string
	)

	err := s.Scan(&id, &tripID, &passengerID, &b.SeatsBooked, &status, &pickupStatus, &code, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Booking{}, domain.ErrNotFound
		}
		return domain.Booking{}, err
	}

	b.ID = uuid.UUID(id.Bytes)
	b.TripID = uuid.UUID(tripID.Bytes)
	b.PassengerID = uuid.UUID(passengerID.Bytes)
	b.Status = domain.BookingStatus(status)
	b.PickupStatus = domain.PickupStatus(pickupStatus)
	b.PickupCode = code
	return b, nil
}
