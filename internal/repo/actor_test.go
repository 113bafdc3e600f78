package repo_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridepool/backend/internal/domain"
	"github.com/ridepool/backend/internal/repo"
	"github.com/ridepool/backend/testutil"
)

func TestActorRepo_UpsertAndAdjust(t *testing.T) {
	actors := newTestStore(t).Repos().Actors
	ctx := context.Background()
	id := uuid.New()

	a, err := actors.Upsert(ctx, id, domain.RoleDriver)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleDriver, a.Role)
	assert.Zero(t, a.EarningsTotal)

	a, err = actors.AdjustBalances(ctx, domain.BalanceDelta{ActorID: id, WalletDelta: -500, EarningsDelta: 25000})
	require.NoError(t, err)
	assert.Equal(t, int64(-500), a.WalletBalance)
	assert.Equal(t, int64(25000), a.EarningsTotal)
}

func TestActorRepo_AdjustBalances_MissingActor(t *testing.T) {
	actors := newTestStore(t).Repos().Actors

	_, err := actors.AdjustBalances(context.Background(), domain.BalanceDelta{ActorID: uuid.New(), WalletDelta: 1})

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestActorRepo_AddRating_RunningMean(t *testing.T) {
	store := newTestStore(t)
	actors := store.Repos().Actors
	ctx := context.Background()
	id := testutil.SeedActor(t, store, domain.RoleDriver).ID

	var (
		a   domain.Actor
		err error
	)
	for _, v := range []int{5, 4, 4} {
		a, err = actors.AddRating(ctx, id, v)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, a.RatingCount)
	assert.InDelta(t, 13.0/3.0, a.RatingAverage, 1e-9)
	assert.Equal(t, 4.3, a.DisplayRating())
}

func TestActorRepo_DocumentsAndTopUps(t *testing.T) {
	store := newTestStore(t)
	actors := store.Repos().Actors
	ctx := context.Background()
	id := testutil.SeedActor(t, store, domain.RoleDriver).ID

	require.NoError(t, actors.SetDocument(ctx, id, domain.DocLicenseFront, "docs/a.jpg"))
	require.NoError(t, actors.SetDocument(ctx, id, domain.DocLicenseFront, "docs/b.jpg"))

	a, err := actors.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "docs/b.jpg", a.Documents[domain.DocLicenseFront])

	first, err := actors.RecordTopUp(ctx, "pi_123", id, 1000)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := actors.RecordTopUp(ctx, "pi_123", id, 1000)
	require.NoError(t, err)
	assert.False(t, again)
}

func TestStore_WithinTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := testutil.SeedActor(t, store, domain.RolePassenger).ID

	err := store.WithinTx(ctx, func(r repo.Repos) error {
		if _, err := r.Actors.AdjustBalances(ctx, domain.BalanceDelta{ActorID: id, WalletDelta: 900}); err != nil {
			return err
		}
		return domain.ErrSettlement
	})
	assert.ErrorIs(t, err, domain.ErrSettlement)

	a, err := store.Repos().Actors.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, a.WalletBalance, "adjustment must be rolled back")
}
