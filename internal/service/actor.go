package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ridepool/backend/internal/domain"
	"github.com/ridepool/backend/internal/events"
	"github.com/ridepool/backend/internal/repo"
)

// ActorService mirrors identities from the credential layer and records
// document paths returned by the media store.
type ActorService struct {
	store  repo.Store
	events *events.Emitter
	log    *slog.Logger
}

// NewActorService constructs an ActorService.
func NewActorService(store repo.Store, emitter *events.Emitter, log *slog.Logger) *ActorService {
	return &ActorService{store: store, events: emitter, log: log}
}

// Sync registers an actor or updates its role. Admin only.
func (s *ActorService) Sync(ctx context.Context, who domain.Identity, id uuid.UUID, role domain.Role) (domain.Actor, error) {
	if who.Role != domain.RoleAdmin {
		return domain.Actor{}, fmt.Errorf("service.ActorService.Sync: %w: admin role required", domain.ErrForbidden)
	}
	if !role.Valid() {
		return domain.Actor{}, fmt.Errorf("service.ActorService.Sync: %w: unknown role %q", domain.ErrValidation, role)
	}
	a, err := s.store.Repos().Actors.Upsert(ctx, id, role)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("service.ActorService.Sync: %w", err)
	}
	s.log.InfoContext(ctx, "actor synced", "actor_id", id, "role", role)
	return a, nil
}

// Get returns an actor to itself or to an admin.
func (s *ActorService) Get(ctx context.Context, who domain.Identity, id uuid.UUID) (domain.Actor, error) {
	if who.ActorID != id && who.Role != domain.RoleAdmin {
		return domain.Actor{}, fmt.Errorf("service.ActorService.Get: %w: actors may only view themselves", domain.ErrForbidden)
	}
	a, err := s.store.Repos().Actors.GetByID(ctx, id)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("service.ActorService.Get: %w", err)
	}
	return a, nil
}

// RecordDocument stores the path of an uploaded document against the
// caller. Only drivers may record vehicle and licence paperwork.
func (s *ActorService) RecordDocument(ctx context.Context, who domain.Identity, docType domain.DocumentType, path string) (domain.Actor, error) {
	path = strings.TrimSpace(path)
	if !docType.Valid() {
		return domain.Actor{}, fmt.Errorf("service.ActorService.RecordDocument: %w: unknown document type %q", domain.ErrValidation, docType)
	}
	if path == "" {
		return domain.Actor{}, fmt.Errorf("service.ActorService.RecordDocument: %w: path is required", domain.ErrValidation)
	}

	actors := s.store.Repos().Actors
	a, err := actors.GetByID(ctx, who.ActorID)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("service.ActorService.RecordDocument: %w", err)
	}
	if !docType.AllowedFor(a.Role) {
		return domain.Actor{}, fmt.Errorf("service.ActorService.RecordDocument: %w: %s may not record %s", domain.ErrForbidden, a.Role, docType)
	}
	if err := actors.SetDocument(ctx, who.ActorID, docType, path); err != nil {
		return domain.Actor{}, fmt.Errorf("service.ActorService.RecordDocument: %w", err)
	}
	a, err = actors.GetByID(ctx, who.ActorID)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("service.ActorService.RecordDocument: %w", err)
	}

	s.log.InfoContext(ctx, "document recorded", "actor_id", who.ActorID, "type", docType)
	s.events.Emit(ctx, events.New(events.DocumentStored, who.ActorID, who.ActorID))
	return a, nil
}
