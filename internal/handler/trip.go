package handler

import (
	"net/http"
	"time"

	"github.com/ridepool/backend/internal/domain"
)

type publishTripRequest struct {
	Kind          string             `json:"kind"`
	Origin        domain.Place       `json:"origin"`
	Destination   domain.Place       `json:"destination"`
	ScheduledTime time.Time          `json:"scheduled_time"`
	Vehicle       string             `json:"vehicle"`
	TotalSeats    int                `json:"total_seats"`
	PricePerSeat  int64              `json:"price_per_seat"`
	Preferences   domain.Preferences `json:"preferences"`
}

type tripStatusRequest struct {
	Status string `json:"status"`
}

type claimSeatsRequest struct {
	Seats int `json:"seats"`
}

type verifyPickupRequest struct {
	Code string `json:"code"`
}

// PublishTrip handles POST /trips.
func (s *Server) PublishTrip(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	var body publishTripRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	trip, err := s.trips.Publish(r.Context(), who, domain.PublishedTrip{
		Kind:          domain.TripKind(body.Kind),
		Origin:        body.Origin,
		Destination:   body.Destination,
		ScheduledTime: body.ScheduledTime,
		Vehicle:       body.Vehicle,
		TotalSeats:    body.TotalSeats,
		PricePerSeat:  body.PricePerSeat,
		Preferences:   body.Preferences,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tripToResponse(trip))
}

// SearchTrips handles GET /trips/search.
// All filters are optional: ?kind=, ?from_lat=&from_lng=, ?to_lat=&to_lng=.
// A coordinate filter applies only when both halves are present.
func (s *Server) SearchTrips(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.identity(w, r); !ok {
		return
	}
	var (
		kind             *string
		fromLat, fromLng *float64
		toLat, toLng     *float64
	)
	if !queryParam(w, r, "kind", &kind) ||
		!queryParam(w, r, "from_lat", &fromLat) ||
		!queryParam(w, r, "from_lng", &fromLng) ||
		!queryParam(w, r, "to_lat", &toLat) ||
		!queryParam(w, r, "to_lng", &toLng) {
		return
	}

	var filter domain.TripSearch
	if kind != nil && *kind != "" {
		k := domain.TripKind(*kind)
		filter.Kind = &k
	}
	filter.From = coordsParam(fromLat, fromLng)
	filter.To = coordsParam(toLat, toLng)

	trips, err := s.trips.Search(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tripsToResponse(trips))
}

func coordsParam(lat, lng *float64) *domain.Coords {
	if lat == nil || lng == nil {
		return nil
	}
	return &domain.Coords{Lat: *lat, Lng: *lng}
}

// GetTrip handles GET /trips/{id}.
func (s *Server) GetTrip(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	trip, err := s.query.Trip(r.Context(), who, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tripToResponse(trip))
}

// ListHostedTrips handles GET /trips/hosted.
func (s *Server) ListHostedTrips(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	trips, err := s.query.HostedTrips(r.Context(), who)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tripsToResponse(trips))
}

// ListJoinedTrips handles GET /trips/joined.
func (s *Server) ListJoinedTrips(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	trips, err := s.query.JoinedTrips(r.Context(), who)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tripsToResponse(trips))
}

// UpdateTripStatus handles PUT /trips/{id}/status.
func (s *Server) UpdateTripStatus(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var body tripStatusRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Status == "" {
		writeJSON(w, http.StatusUnprocessableEntity, requestBody("status is required"))
		return
	}

	trip, err := s.trips.UpdateTripStatus(r.Context(), who, id, domain.TripStatus(body.Status))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tripToResponse(trip))
}

// ClaimSeats handles POST /trips/{id}/bookings.
func (s *Server) ClaimSeats(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var body claimSeatsRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	trip, booking, err := s.trips.ClaimSeats(r.Context(), who, id, body.Seats)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SeatClaim{
		Trip:    tripToResponse(trip),
		Booking: bookingToResponse(booking),
	})
}

// CancelBooking handles DELETE /trips/{id}/bookings/me.
func (s *Server) CancelBooking(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	trip, err := s.trips.CancelBooking(r.Context(), who, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tripToResponse(trip))
}

// VerifyPickup handles POST /trips/{id}/pickups/{passengerId}/verify.
func (s *Server) VerifyPickup(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	passengerID, ok := pathUUID(w, r, "passengerId")
	if !ok {
		return
	}
	var body verifyPickupRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	booking, err := s.trips.VerifyPickup(r.Context(), who, id, passengerID, body.Code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookingToResponse(booking))
}

// MarkDropoff handles POST /trips/{id}/pickups/{passengerId}/dropoff.
func (s *Server) MarkDropoff(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	passengerID, ok := pathUUID(w, r, "passengerId")
	if !ok {
		return
	}
	booking, err := s.trips.MarkDropoff(r.Context(), who, id, passengerID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookingToResponse(booking))
}
