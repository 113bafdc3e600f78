package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Repos bundles the repositories that share one connection or transaction.
type Repos struct {
	Rides  RideRepo
	Trips  TripRepo
	Actors ActorRepo
}

// Store hands out Repos outside a transaction and runs units of work that
// must commit or roll back together.
type Store interface {
	// Repos returns repositories bound to the store's base connection.
	Repos() Repos

	// WithinTx runs fn against repositories bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(Repos) error) error
}

// txBeginner is a db that can open a transaction. *pgxpool.Pool opens a real
// transaction; pgx.Tx opens a savepoint, which lets integration tests nest a
// store inside a per-test transaction.
type txBeginner interface {
	db
	Begin(ctx context.Context) (pgx.Tx, error)
}

// pgStore is the Postgres implementation of Store.
type pgStore struct {
	db txBeginner
}

// NewPostgresStore constructs a Store over a pool or an enclosing transaction.
func NewPostgresStore(db txBeginner) Store {
	return &pgStore{db: db}
}

func (s *pgStore) Repos() Repos {
	return reposOn(s.db)
}

// WithinTx delegates commit and rollback to pgx.BeginFunc.
func (s *pgStore) WithinTx(ctx context.Context, fn func(Repos) error) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(reposOn(tx))
	})
	if err != nil {
		return fmt.Errorf("repo.Store.WithinTx: %w", err)
	}
	return nil
}

func reposOn(d db) Repos {
	return Repos{
		Rides:  NewRideRepo(d),
		Trips:  NewTripRepo(d),
		Actors: NewActorRepo(d),
	}
}
