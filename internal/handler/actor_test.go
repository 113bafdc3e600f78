package handler_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridepool/backend/internal/domain"
	"github.com/ridepool/backend/internal/handler"
	"github.com/ridepool/backend/internal/payments"
	"github.com/ridepool/backend/internal/service"
)

// ---- /actors ---------------------------------------------------------------

func TestGetMe_RoundsRating(t *testing.T) {
	actors := &mockActorServicer{
		get: func(_ context.Context, who domain.Identity, id uuid.UUID) (domain.Actor, error) {
			assert.Equal(t, who.ActorID, id)
			return domain.Actor{ID: id, Role: domain.RoleDriver, RatingAverage: 4.26, RatingCount: 5}, nil
		},
	}

	rec := serve(t, newHTTPHandler(handler.Services{Actors: actors}), driver, http.MethodGet, "/actors/me", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[handler.Actor](t, rec)
	assert.InDelta(t, 4.3, resp.Rating, 1e-9)
	assert.Equal(t, 5, resp.RatingCount)
}

func TestGetActor_403(t *testing.T) {
	actors := &mockActorServicer{
		get: func(context.Context, domain.Identity, uuid.UUID) (domain.Actor, error) {
			return domain.Actor{}, domain.ErrForbidden
		},
	}

	rec := serve(t, newHTTPHandler(handler.Services{Actors: actors}), passenger, http.MethodGet, "/actors/"+uuid.NewString(), nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSyncActor_200(t *testing.T) {
	target := uuid.New()
	actors := &mockActorServicer{
		sync: func(_ context.Context, who domain.Identity, id uuid.UUID, role domain.Role) (domain.Actor, error) {
			assert.Equal(t, admin, who)
			assert.Equal(t, target, id)
			assert.Equal(t, domain.RoleDriver, role)
			return domain.Actor{ID: id, Role: role}, nil
		},
	}

	rec := serve(t, newHTTPHandler(handler.Services{Actors: actors}), admin, http.MethodPut, "/actors/"+target.String(),
		map[string]any{"role": "driver"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "driver", decode[handler.Actor](t, rec).Role)
}

func TestRecordDocument_200(t *testing.T) {
	actors := &mockActorServicer{
		recordDocument: func(_ context.Context, _ domain.Identity, docType domain.DocumentType, path string) (domain.Actor, error) {
			assert.Equal(t, domain.DocLicenseFront, docType)
			return domain.Actor{
				ID:        driver.ActorID,
				Role:      domain.RoleDriver,
				Documents: map[domain.DocumentType]string{docType: path},
			}, nil
		},
	}

	rec := serve(t, newHTTPHandler(handler.Services{Actors: actors}), driver, http.MethodPut, "/actors/me/documents/licenseFront",
		map[string]any{"path": "drivers/abc/license-front.jpg"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "drivers/abc/license-front.jpg", decode[handler.Actor](t, rec).Documents["licenseFront"])
}

// ---- POST /wallet/topups ---------------------------------------------------

func TestTopUpWallet_StatusReflectsReplay(t *testing.T) {
	tests := []struct {
		name    string
		applied bool
		status  int
	}{
		{"first credit", true, http.StatusCreated},
		{"replayed reference", false, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wallet := &mockWalletServicer{
				topUp: func(_ context.Context, _ domain.Identity, ref string) (service.TopUpResult, error) {
					assert.Equal(t, "pi_123", ref)
					return service.TopUpResult{
						Actor:   domain.Actor{ID: passenger.ActorID, Role: domain.RolePassenger, WalletBalance: 500},
						Amount:  500,
						Applied: tc.applied,
					}, nil
				},
			}

			rec := serve(t, newHTTPHandler(handler.Services{Wallet: wallet}), passenger, http.MethodPost, "/wallet/topups",
				map[string]any{"payment_intent_id": "pi_123"})

			require.Equal(t, tc.status, rec.Code)
			resp := decode[handler.TopUp](t, rec)
			assert.Equal(t, tc.applied, resp.Applied)
			assert.Equal(t, int64(500), resp.Actor.WalletBalance)
		})
	}
}

func TestTopUpWallet_503_NotConfigured(t *testing.T) {
	wallet := &mockWalletServicer{
		topUp: func(context.Context, domain.Identity, string) (service.TopUpResult, error) {
			return service.TopUpResult{}, fmt.Errorf("service.WalletService.TopUp: %w", payments.ErrNotConfigured)
		},
	}

	rec := serve(t, newHTTPHandler(handler.Services{Wallet: wallet}), passenger, http.MethodPost, "/wallet/topups",
		map[string]any{"payment_intent_id": "pi_123"})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "payments_unavailable", errorCode(t, rec))
}
