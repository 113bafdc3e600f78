package domain

import "fmt"

// HiddenDropoffAddress is what a driver sees in place of the real dropoff
// before the passenger has been picked up.
const HiddenDropoffAddress = "Hidden until OTP"

// Coords is a WGS84 point.
type Coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks that the point lies within latitude/longitude bounds.
func (c Coords) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrValidation, c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrValidation, c.Lng)
	}
	return nil
}

// Place is a named point: a pickup, dropoff, origin or destination.
type Place struct {
	Address string `json:"address"`
	Coords  Coords `json:"coords"`
}

// HiddenPlace is the sentinel substituted for an obfuscated dropoff.
func HiddenPlace() Place {
	return Place{Address: HiddenDropoffAddress, Coords: Coords{}}
}
