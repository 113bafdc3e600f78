package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ridepool/backend/internal/domain"
)

type syncActorRequest struct {
	Role string `json:"role"`
}

type documentRequest struct {
	Path string `json:"path"`
}

type topUpRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

// GetMe handles GET /actors/me.
func (s *Server) GetMe(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	actor, err := s.actors.Get(r.Context(), who, who.ActorID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actorToResponse(actor))
}

// GetActor handles GET /actors/{id}.
func (s *Server) GetActor(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	actor, err := s.actors.Get(r.Context(), who, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actorToResponse(actor))
}

// SyncActor handles PUT /actors/{id}. Admin only; creates or re-roles the actor.
func (s *Server) SyncActor(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var body syncActorRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	actor, err := s.actors.Sync(r.Context(), who, id, domain.Role(body.Role))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actorToResponse(actor))
}

// RecordDocument handles PUT /actors/me/documents/{docType}.
// The body carries the storage path of an already uploaded file.
func (s *Server) RecordDocument(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	var body documentRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	docType := domain.DocumentType(chi.URLParam(r, "docType"))
	actor, err := s.actors.RecordDocument(r.Context(), who, docType, body.Path)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actorToResponse(actor))
}

// TopUpWallet handles POST /wallet/topups.
// Replaying a payment intent returns 200 with applied=false; a new one 201.
func (s *Server) TopUpWallet(w http.ResponseWriter, r *http.Request) {
	who, ok := s.identity(w, r)
	if !ok {
		return
	}
	var body topUpRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	res, err := s.wallet.TopUp(r.Context(), who, body.PaymentIntentID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if !res.Applied {
		status = http.StatusOK
	}
	writeJSON(w, status, TopUp{
		Actor:   actorToResponse(res.Actor),
		Amount:  res.Amount,
		Applied: res.Applied,
	})
}
