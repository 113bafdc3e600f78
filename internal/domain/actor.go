// Package domain contains the core data types for the ride-sharing backend.
// This package has no infrastructure dependencies and is imported by every
// other internal package (repo, service, handler).
package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Role is the capacity an identity acts in.
type Role string

const (
	RolePassenger Role = "passenger"
	RoleDriver    Role = "driver"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePassenger, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// Identity is the already-verified caller supplied by the credential layer.
// The core trusts it and never parses credentials itself.
type Identity struct {
	ActorID uuid.UUID
	Role    Role
}

// Actor is a registered passenger or driver together with the balances and
// reputation the settlement module maintains. Amounts are minor currency units.
type Actor struct {
	ID            uuid.UUID
	Role          Role
	WalletBalance int64
	EarningsTotal int64
	// RatingAverage is the unrounded running mean of every rating received.
	RatingAverage float64
	RatingCount   int
	Documents     map[DocumentType]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DisplayRating rounds the running average to one decimal place.
func (a Actor) DisplayRating() float64 {
	return math.Round(a.RatingAverage*10) / 10
}

// BalanceDelta is one actor's balance movement produced by a settlement.
type BalanceDelta struct {
	ActorID       uuid.UUID `json:"actor_id"`
	WalletDelta   int64     `json:"wallet_delta"`
	EarningsDelta int64     `json:"earnings_delta"`
}

// DocumentType is one of the fixed verification document keys an actor may
// record a stored path against.
type DocumentType string

const (
	DocLicenseFront DocumentType = "licenseFront"
	DocLicenseBack  DocumentType = "licenseBack"
	DocRegistration DocumentType = "registration"
	DocInsurance    DocumentType = "insurance"
	DocAadharFront  DocumentType = "aadharFront"
	DocAadharBack   DocumentType = "aadharBack"
	DocPanCard      DocumentType = "panCard"
	DocPermit       DocumentType = "permit"
	DocFitness      DocumentType = "fitness"
	DocRC           DocumentType = "rc"
	DocProfileImage DocumentType = "profileImage"
)

var documentTypes = map[DocumentType]bool{
	DocLicenseFront: true, DocLicenseBack: true, DocRegistration: true,
	DocInsurance: true, DocAadharFront: true, DocAadharBack: true,
	DocPanCard: true, DocPermit: true, DocFitness: true, DocRC: true,
	DocProfileImage: true,
}

// Valid reports whether d is a known document key.
func (d DocumentType) Valid() bool { return documentTypes[d] }

// AllowedFor reports whether an actor with the given role may record d.
// Only drivers carry vehicle and licence paperwork.
func (d DocumentType) AllowedFor(role Role) bool {
	if !d.Valid() {
		return false
	}
	return role == RoleDriver || d == DocProfileImage
}
