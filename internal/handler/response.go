package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/ridepool/backend/internal/domain"
)

// Ride is the JSON shape of a ride. Fares are minor currency units.
type Ride struct {
	ID              uuid.UUID      `json:"id"`
	PassengerID     uuid.UUID      `json:"passenger_id"`
	DriverID        *uuid.UUID     `json:"driver_id"`
	Pickup          domain.Place   `json:"pickup"`
	Dropoff         domain.Place   `json:"dropoff"`
	Kind            string         `json:"kind"`
	VehicleClass    string         `json:"vehicle_class"`
	Seats           int            `json:"seats"`
	DistanceKm      float64        `json:"distance_km"`
	DurationMins    float64        `json:"duration_mins"`
	EstimatedFare   int64          `json:"estimated_fare"`
	OfferedFare     int64          `json:"offered_fare"`
	FinalFare       int64          `json:"final_fare"`
	PaymentMethod   string         `json:"payment_method"`
	PaymentSettled  bool           `json:"payment_settled"`
	Status          string         `json:"status"`
	CancelledBy     string         `json:"cancelled_by,omitempty"`
	CancelReason    string         `json:"cancel_reason,omitempty"`
	AcceptedAt      *time.Time     `json:"accepted_at,omitempty"`
	ArrivedAt       *time.Time     `json:"arrived_at,omitempty"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	CancelledAt     *time.Time     `json:"cancelled_at,omitempty"`
	PassengerRating *domain.Rating `json:"passenger_rating,omitempty"`
	DriverRating    *domain.Rating `json:"driver_rating,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func rideToResponse(r domain.Ride) Ride {
	return Ride{
		ID:              r.ID,
		PassengerID:     r.PassengerID,
		DriverID:        r.DriverID,
		Pickup:          r.Pickup,
		Dropoff:         r.Dropoff,
		Kind:            string(r.Kind),
		VehicleClass:    string(r.VehicleClass),
		Seats:           r.Seats,
		DistanceKm:      r.DistanceKm,
		DurationMins:    r.DurationMins,
		EstimatedFare:   r.EstimatedFare,
		OfferedFare:     r.OfferedFare,
		FinalFare:       r.FinalFare,
		PaymentMethod:   string(r.PaymentMethod),
		PaymentSettled:  r.PaymentSettled,
		Status:          string(r.Status),
		CancelledBy:     string(r.CancelledBy),
		CancelReason:    r.CancelReason,
		AcceptedAt:      r.AcceptedAt,
		ArrivedAt:       r.ArrivedAt,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
		CancelledAt:     r.CancelledAt,
		PassengerRating: r.PassengerRating,
		DriverRating:    r.DriverRating,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func ridesToResponse(rides []domain.Ride) []Ride {
	out := make([]Ride, len(rides))
	for i, r := range rides {
		out[i] = rideToResponse(r)
	}
	return out
}

// Pagination describes one page of a list response.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// RidePage is the body of GET /rides/history.
type RidePage struct {
	Data       []Ride     `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Booking is one manifest entry. PickupCode is only present on the
// caller's own entry.
type Booking struct {
	ID           uuid.UUID `json:"id"`
	PassengerID  uuid.UUID `json:"passenger_id"`
	SeatsBooked  int       `json:"seats_booked"`
	Status       string    `json:"status"`
	PickupStatus string    `json:"pickup_status"`
	PickupCode   string    `json:"pickup_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func bookingToResponse(b domain.Booking) Booking {
	return Booking{
		ID:           b.ID,
		PassengerID:  b.PassengerID,
		SeatsBooked:  b.SeatsBooked,
		Status:       string(b.Status),
		PickupStatus: string(b.PickupStatus),
		PickupCode:   b.PickupCode,
		CreatedAt:    b.CreatedAt,
	}
}

// Trip is the JSON shape of a published pool trip.
type Trip struct {
	ID             uuid.UUID          `json:"id"`
	HostID         uuid.UUID          `json:"host_id"`
	Kind           string             `json:"kind"`
	Origin         domain.Place       `json:"origin"`
	Destination    domain.Place       `json:"destination"`
	ScheduledTime  time.Time          `json:"scheduled_time"`
	Vehicle        string             `json:"vehicle"`
	TotalSeats     int                `json:"total_seats"`
	AvailableSeats int                `json:"available_seats"`
	PricePerSeat   int64              `json:"price_per_seat"`
	Preferences    domain.Preferences `json:"preferences"`
	Status         string             `json:"status"`
	Manifest       []Booking          `json:"manifest"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func tripToResponse(t domain.PublishedTrip) Trip {
	manifest := make([]Booking, len(t.Manifest))
	for i, b := range t.Manifest {
		manifest[i] = bookingToResponse(b)
	}
	return Trip{
		ID:             t.ID,
		HostID:         t.HostID,
		Kind:           string(t.Kind),
		Origin:         t.Origin,
		Destination:    t.Destination,
		ScheduledTime:  t.ScheduledTime,
		Vehicle:        t.Vehicle,
		TotalSeats:     t.TotalSeats,
		AvailableSeats: t.AvailableSeats,
		PricePerSeat:   t.PricePerSeat,
		Preferences:    t.Preferences,
		Status:         string(t.Status),
		Manifest:       manifest,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func tripsToResponse(trips []domain.PublishedTrip) []Trip {
	out := make([]Trip, len(trips))
	for i, t := range trips {
		out[i] = tripToResponse(t)
	}
	return out
}

// SeatClaim is the body returned by POST /trips/{id}/bookings.
type SeatClaim struct {
	Trip    Trip    `json:"trip"`
	Booking Booking `json:"booking"`
}

// Actor is the JSON shape of an actor. Rating is rounded to one decimal.
type Actor struct {
	ID            uuid.UUID         `json:"id"`
	Role          string            `json:"role"`
	WalletBalance int64             `json:"wallet_balance"`
	EarningsTotal int64             `json:"earnings_total"`
	Rating        float64           `json:"rating"`
	RatingCount   int               `json:"rating_count"`
	Documents     map[string]string `json:"documents"`
}

func actorToResponse(a domain.Actor) Actor {
	docs := make(map[string]string, len(a.Documents))
	for k, v := range a.Documents {
		docs[string(k)] = v
	}
	return Actor{
		ID:            a.ID,
		Role:          string(a.Role),
		WalletBalance: a.WalletBalance,
		EarningsTotal: a.EarningsTotal,
		Rating:        a.DisplayRating(),
		RatingCount:   a.RatingCount,
		Documents:     docs,
	}
}

// TopUp is the body returned by POST /wallet/topups.
type TopUp struct {
	Actor   Actor `json:"actor"`
	Amount  int64 `json:"amount"`
	Applied bool  `json:"applied"`
}

// FareEstimate is the body of GET /fares/estimate.
type FareEstimate struct {
	VehicleClass string `json:"vehicle_class"`
	Estimate     int64  `json:"estimate"`
}
