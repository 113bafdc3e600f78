package domain

import "errors"

// ErrNotFound is returned by repo and service functions when the requested
// ride, trip, or actor does not exist.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails business
// rule validation (e.g. missing pickup address, seat count below one).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrForbidden is returned when the acting identity is not a party to the
// record or lacks the role the operation requires.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a state precondition does not hold: the ride
// was claimed by someone else, the actor already has an active ride, the
// passenger already holds a booking, or a concurrent writer won the race.
var ErrConflict = errors.New("conflict")

// ErrInvalidTransition is returned when the requested status is not
// reachable from the current status for the acting role.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrInsufficientSeats is returned when a seat claim asks for more seats than
// the trip has available.
var ErrInsufficientSeats = errors.New("insufficient seats")

// ErrSelfBooking is returned when a host driver tries to book seats on their
// own trip.
var ErrSelfBooking = errors.New("self booking")

// ErrSettlement is returned when the balance side of a completion could not
// be applied. The status change it accompanied is rolled back.
var ErrSettlement = errors.New("settlement failed")
