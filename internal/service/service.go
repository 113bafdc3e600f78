// Package service contains the business logic of the ride-sharing backend:
// the on-demand ride lifecycle, the pool-trip seat ledger, the role-scoped
// read layer, wallet top-ups and the actor registry.
// Services validate inputs, enforce business rules, and orchestrate repo calls.
// No SQL lives here. Services depend on repo interfaces, not implementations.
package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/ridepool/backend/internal/domain"
)

// clock returns the current time. Tests replace it to pin timestamps.
type clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

// validatePlace checks that a pickup, dropoff, origin or destination has an
// address and coordinates in range. field names the input in the message.
func validatePlace(field string, p domain.Place) error {
	if strings.TrimSpace(p.Address) == "" {
		return fmt.Errorf("%w: %s address is required", domain.ErrValidation, field)
	}
	if err := p.Coords.Validate(); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}
