package domain

import (
	"time"

	"github.com/google/uuid"
)

// TripStatus is a position in the lifecycle of a published pool trip.
type TripStatus string

const (
	TripScheduled TripStatus = "scheduled"
	TripOngoing   TripStatus = "ongoing"
	TripCompleted TripStatus = "completed"
	TripCancelled TripStatus = "cancelled"
)

// Valid reports whether s is a known trip status.
func (s TripStatus) Valid() bool {
	switch s {
	case TripScheduled, TripOngoing, TripCompleted, TripCancelled:
		return true
	}
	return false
}

var tripTransitions = map[TripStatus][]TripStatus{
	TripScheduled: {TripOngoing, TripCancelled},
	TripOngoing:   {TripCompleted, TripCancelled},
}

// CanTransitionTrip reports whether a host may move a trip from one status
// to another.
func CanTransitionTrip(from, to TripStatus) bool {
	for _, s := range tripTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TripKind classifies a published trip by range.
type TripKind string

const (
	TripKindLocal      TripKind = "local"
	TripKindOutstation TripKind = "outstation"
	TripKindIntercity  TripKind = "intercity"
)

// Valid reports whether k is a known trip kind.
func (k TripKind) Valid() bool {
	return k == TripKindLocal || k == TripKindOutstation || k == TripKindIntercity
}

// Preferences are the host's ride etiquette flags.
type Preferences struct {
	Music bool `json:"music"`
	AC    bool `json:"ac"`
	Quiet bool `json:"quiet"`
	Pets  bool `json:"pets"`
}

// PublishedTrip is a scheduled journey a host driver offers seats on.
// AvailableSeats plus the seats of every non-cancelled manifest entry always
// equals TotalSeats.
type PublishedTrip struct {
	ID             uuid.UUID
	HostID         uuid.UUID
	Kind           TripKind
	Origin         Place
	Destination    Place
	ScheduledTime  time.Time
	Vehicle        string
	TotalSeats     int
	AvailableSeats int
	PricePerSeat   int64
	Preferences    Preferences
	Status         TripStatus
	Manifest       []Booking
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BookedSeats sums the seats held by non-cancelled manifest entries.
func (t PublishedTrip) BookedSeats() int {
	n := 0
	for _, b := range t.Manifest {
		if b.Status != BookingCancelled {
			n += b.SeatsBooked
		}
	}
	return n
}

// BookingFor returns the passenger's live manifest entry, if any.
func (t PublishedTrip) BookingFor(passengerID uuid.UUID) (Booking, bool) {
	for _, b := range t.Manifest {
		if b.PassengerID == passengerID && b.Status != BookingCancelled {
			return b, true
		}
	}
	return Booking{}, false
}

// BookingStatus is the state of one manifest entry.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// PickupStatus tracks whether the host has collected and delivered a passenger.
type PickupStatus string

const (
	PickupPending    PickupStatus = "pending"
	PickupPickedUp   PickupStatus = "picked_up"
	PickupDroppedOff PickupStatus = "dropped_off"
)

// Booking is one passenger's entry in a trip manifest.
type Booking struct {
	ID           uuid.UUID
	TripID       uuid.UUID
	PassengerID  uuid.UUID
	SeatsBooked  int
	Status       BookingStatus
	PickupStatus PickupStatus
	// PickupCode is the 4-digit code the passenger reads out at pickup.
	PickupCode string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TripSearch narrows the set of bookable trips.
type TripSearch struct {
	Kind *TripKind
	From *Coords
	To   *Coords
	// Now anchors the scheduled-time tolerance window.
	Now time.Time
}

// Search tolerances.
const (
	SearchOriginRadiusKm      = 10.0
	SearchDestinationRadiusKm = 20.0
	SearchScheduleTolerance   = 12 * time.Hour
	SearchLimit               = 50
)

// TripSettlement is the outcome of completing a pool trip.
type TripSettlement struct {
	TripID uuid.UUID      `json:"trip_id"`
	Seats  int            `json:"seats"`
	Deltas []BalanceDelta `json:"deltas"`
}
