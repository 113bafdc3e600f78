package domain

import (
	"time"

	"github.com/google/uuid"
)

// RideStatus is a position in the on-demand ride lifecycle.
type RideStatus string

const (
	RidePending   RideStatus = "pending"
	RideAccepted  RideStatus = "accepted"
	RideArrived   RideStatus = "arrived"
	RideOngoing   RideStatus = "ongoing"
	RideCompleted RideStatus = "completed"
	RideCancelled RideStatus = "cancelled"
)

// Valid reports whether s is a known ride status.
func (s RideStatus) Valid() bool {
	switch s {
	case RidePending, RideAccepted, RideArrived, RideOngoing, RideCompleted, RideCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s RideStatus) Terminal() bool {
	return s == RideCompleted || s == RideCancelled
}

// ActiveRideStatuses are the non-terminal statuses. An actor may appear on at
// most one ride in any of these.
var ActiveRideStatuses = []RideStatus{RidePending, RideAccepted, RideArrived, RideOngoing}

// TerminalRideStatuses are the statuses listed in ride history.
var TerminalRideStatuses = []RideStatus{RideCompleted, RideCancelled}

// rideTransitions is keyed by acting role, then by current status.
var rideTransitions = map[Role]map[RideStatus][]RideStatus{
	RoleDriver: {
		RidePending:  {RideCancelled},
		RideAccepted: {RideArrived, RideCancelled},
		RideArrived:  {RideOngoing, RideCancelled},
		RideOngoing:  {RideCompleted, RideCancelled},
	},
	RolePassenger: {
		RidePending:  {RideCancelled},
		RideAccepted: {RideCancelled},
		RideArrived:  {RideCancelled},
		RideOngoing:  {RideCancelled},
	},
}

// CanTransition reports whether role may move a ride from one status to another.
func CanTransition(role Role, from, to RideStatus) bool {
	for _, s := range rideTransitions[role][from] {
		if s == to {
			return true
		}
	}
	return false
}

// VehicleClass selects the fare rate table.
type VehicleClass string

const (
	VehicleCar  VehicleClass = "CAR"
	VehicleAuto VehicleClass = "AUTO"
	VehicleBike VehicleClass = "BIKE"
)

// Valid reports whether v is a known vehicle class.
func (v VehicleClass) Valid() bool {
	return v == VehicleCar || v == VehicleAuto || v == VehicleBike
}

// RideKind distinguishes metered city rides from negotiated ones.
type RideKind string

const (
	RideKindCity       RideKind = "city"
	RideKindOutstation RideKind = "outstation"
	RideKindPool       RideKind = "pool"
	RideKindRental     RideKind = "rental"
)

// Valid reports whether k is a known ride kind.
func (k RideKind) Valid() bool {
	switch k {
	case RideKindCity, RideKindOutstation, RideKindPool, RideKindRental:
		return true
	}
	return false
}

// PaymentMethod is how the passenger pays at completion.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentWallet PaymentMethod = "wallet"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool { return m == PaymentCash || m == PaymentWallet }

// CancelledBy records which side ended a ride early.
type CancelledBy string

const (
	CancelledByPassenger CancelledBy = "passenger"
	CancelledByDriver    CancelledBy = "driver"
	CancelledBySystem    CancelledBy = "system"
)

// RatingSide says who is giving a rating.
type RatingSide string

const (
	// RatingByPassenger is the passenger rating the driver.
	RatingByPassenger RatingSide = "passenger"
	// RatingByDriver is the driver rating the passenger.
	RatingByDriver RatingSide = "driver"
)

// Rating is a single 1..5 score with an optional comment.
type Rating struct {
	Value   int       `json:"value"`
	Comment string    `json:"comment,omitempty"`
	GivenAt time.Time `json:"given_at"`
}

// Ride is an on-demand request from one passenger, claimed by at most one
// driver. Fares are minor currency units.
type Ride struct {
	ID             uuid.UUID
	PassengerID    uuid.UUID
	DriverID       *uuid.UUID // nil while pending
	Pickup         Place
	Dropoff        Place
	Kind           RideKind
	VehicleClass   VehicleClass
	Seats          int
	DistanceKm     float64
	DurationMins   float64
	EstimatedFare  int64
	OfferedFare    int64
	FinalFare      int64
	PaymentMethod  PaymentMethod
	PaymentSettled bool
	Status         RideStatus
	CancelledBy    CancelledBy
	CancelReason   string

	AcceptedAt  *time.Time
	ArrivedAt   *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	// PassengerRating is the passenger's rating of the driver.
	PassengerRating *Rating
	// DriverRating is the driver's rating of the passenger.
	DriverRating *Rating

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsDriver reports whether id is the ride's assigned driver.
func (r Ride) IsDriver(id uuid.UUID) bool {
	return r.DriverID != nil && *r.DriverID == id
}

// PartyRole resolves the role id plays on this ride. The driver binding is
// checked first. ok is false when id is not a party.
func (r Ride) PartyRole(id uuid.UUID) (role Role, ok bool) {
	switch {
	case r.IsDriver(id):
		return RoleDriver, true
	case r.PassengerID == id:
		return RolePassenger, true
	}
	return "", false
}

// DropoffVisible reports whether the real dropoff may be shown to a driver.
func (r Ride) DropoffVisible() bool {
	return r.Status == RideOngoing || r.Status == RideCompleted
}

// StampTransition records the timestamp matching the new status.
func (r *Ride) StampTransition(to RideStatus, at time.Time) {
	t := at
	switch to {
	case RideAccepted:
		r.AcceptedAt = &t
	case RideArrived:
		r.ArrivedAt = &t
	case RideOngoing:
		r.StartedAt = &t
	case RideCompleted:
		r.CompletedAt = &t
	case RideCancelled:
		r.CancelledAt = &t
	}
	r.Status = to
	r.UpdatedAt = at
}

// RideRequest is the passenger's submission.
type RideRequest struct {
	Pickup        Place
	Dropoff       Place
	Kind          RideKind
	VehicleClass  VehicleClass
	Seats         int
	DistanceKm    float64
	DurationMins  float64
	OfferedFare   *int64
	PaymentMethod PaymentMethod
}

// RideSettlement is the outcome of completing a ride.
type RideSettlement struct {
	RideID uuid.UUID      `json:"ride_id"`
	Fare   int64          `json:"fare"`
	Deltas []BalanceDelta `json:"deltas"`
}
