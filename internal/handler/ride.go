package handler

import (
	"net/http"

	"github.com/ridepool/backend/internal/domain"
)

type submitRideRequest struct {
	Pickup        domain.Place `json:"pickup"`
	Dropoff       domain.Place `json:"dropoff"`
	Kind          string       `json:"kind"`
	VehicleClass  string       `json:"vehicle_class"`
	Seats         int          `json:"seats"`
	DistanceKm    float64      `json:"distance_km"`
	DurationMins  float64      `json:"duration_mins"`
	OfferedFare   *int64       `json:"offered_fare"`
	PaymentMethod string       `json:"payment_method"`
}

type transitionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type ratingRequest struct {
	Value   int    `json:"value"`
	Comment string `json:"comment"`
}

// SubmitRide handles POST /rides.
func (s *Server) SubmitRide(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	var body submitRideRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	ride, err := s.rides.Submit(r.Context(), who, domain.RideRequest{
		Pickup:        body.Pickup,
		Dropoff:       body.Dropoff,
		Kind:          domain.RideKind(body.Kind),
		VehicleClass:  domain.VehicleClass(body.VehicleClass),
		Seats:         body.Seats,
		DistanceKm:    body.DistanceKm,
		DurationMins:  body.DurationMins,
		OfferedFare:   body.OfferedFare,
		PaymentMethod: domain.PaymentMethod(body.PaymentMethod),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rideToResponse(ride))
}

// GetRide handles GET /rides/{id}.
func (s *Server) GetRide(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	ride, err := s.query.Ride(r.Context(), who, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rideToResponse(ride))
}

// GetActiveRide handles GET /rides/active.
func (s *Server) GetActiveRide(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	ride, err := s.query.ActiveRide(r.Context(), who)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rideToResponse(ride))
}

// ListRideHistory handles GET /rides/history.
// Supports ?page= and ?limit= query parameters (defaults: page=1, limit=10, max=100).
func (s *Server) ListRideHistory(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	var page, limit *int
	if !queryParam(w, r, "page", &page) || !queryParam(w, r, "limit", &limit) {
		return
	}

	params := domain.NewPaginationParams(page, limit)
	res, err := s.query.RideHistory(r.Context(), who, params)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RidePage{
		Data: ridesToResponse(res.Items),
		Pagination: Pagination{
			Page:  params.Page,
			Limit: params.Limit,
			Total: int(res.Total),
		},
	})
}

// ListPendingRides handles GET /rides/pending?vehicle_class=&limit=.
func (s *Server) ListPendingRides(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	var (
		class *string
		limit *int
	)
	if !queryParam(w, r, "vehicle_class", &class) || !queryParam(w, r, "limit", &limit) {
		return
	}

	var vc domain.VehicleClass
	if class != nil {
		vc = domain.VehicleClass(*class)
	}
	n := 0
	if limit != nil {
		n = *limit
	}
	rides, err := s.query.PendingRides(r.Context(), who, vc, n)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ridesToResponse(rides))
}

// ClaimRide handles POST /rides/{id}/claim.
func (s *Server) ClaimRide(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	ride, err := s.rides.Claim(r.Context(), who, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rideToResponse(ride))
}

// TransitionRide handles POST /rides/{id}/transitions.
func (s *Server) TransitionRide(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var body transitionRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Status == "" {
		writeJSON(w, http.StatusUnprocessableEntity, requestBody("status is required"))
		return
	}

	ride, err := s.rides.Transition(r.Context(), who, id, domain.RideStatus(body.Status), body.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rideToResponse(ride))
}

// RateRide handles POST /rides/{id}/rating.
func (s *Server) RateRide(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var body ratingRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	ride, err := s.rides.Rate(r.Context(), who, id, body.Value, body.Comment)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rideToResponse(ride))
}

// EstimateFare handles GET /fares/estimate?vehicle_class=&distance_km=&duration_mins=.
func (s *Server) EstimateFare(w http.ResponseWriter, r *http.Request) {
	var (
		class    *string
		km, mins *float64
	)
	if !queryParam(w, r, "vehicle_class", &class) ||
		!queryParam(w, r, "distance_km", &km) ||
		!queryParam(w, r, "duration_mins", &mins) {
		return
	}

	vc := domain.VehicleCar
	if class != nil && *class != "" {
		vc = domain.VehicleClass(*class)
	}
	var distance, duration float64
	if km != nil {
		distance = *km
	}
	if mins != nil {
		duration = *mins
	}

	estimate, err := s.rides.EstimateFare(vc, distance, duration)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FareEstimate{VehicleClass: string(vc), Estimate: estimate})
}
