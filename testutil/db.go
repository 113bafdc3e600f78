// Package testutil provides shared helpers for integration tests.
// Helpers in this package skip automatically when TEST_DATABASE_URL is not
// set, so unit tests run without a database.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver for database/sql
	"github.com/pressly/goose/v3"

	"github.com/ridepool/backend/internal/domain"
	"github.com/ridepool/backend/internal/repo"
	"github.com/ridepool/backend/migrations"
)

const dsnEnv = "TEST_DATABASE_URL"

// NewPool opens a pool on the test database, closed when the test finishes.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	pool, err := pgxpool.New(context.Background(), requireDSN(t))
	if err != nil {
		t.Fatalf("testutil.NewPool: open pool: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		t.Fatalf("testutil.NewPool: ping: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

// NewTxStore returns a Store nested inside a transaction that is rolled back
// when the test finishes. WithinTx calls on it become savepoints, so seat and
// settlement tests see real constraint behaviour without leaving rows behind.
func NewTxStore(t *testing.T) repo.Store {
	t.Helper()

	tx, err := NewPool(t).Begin(context.Background())
	if err != nil {
		t.Fatalf("testutil.NewTxStore: begin: %v", err)
	}
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })

	return repo.NewPostgresStore(tx)
}

// SeedActor registers a fresh actor with the given role.
func SeedActor(t *testing.T, store repo.Store, role domain.Role) domain.Actor {
	t.Helper()

	a, err := store.Repos().Actors.Upsert(context.Background(), uuid.New(), role)
	if err != nil {
		t.Fatalf("testutil.SeedActor: %v", err)
	}
	return a
}

// NewSQLDB opens a database/sql handle on the test database. goose needs one.
func NewSQLDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := openSQLDB(requireDSN(t))
	if err != nil {
		t.Fatalf("testutil.NewSQLDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// NewMigrator returns a goose provider over the embedded migrations.
func NewMigrator(db *sql.DB) (*goose.Provider, error) {
	return goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
}

// MustMigrate applies every pending migration to the test database and
// reports whether one is configured. It panics on failure; TestMain has no
// *testing.T to fail.
func MustMigrate() bool {
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		return false
	}

	db, err := openSQLDB(dsn)
	if err != nil {
		panic("testutil.MustMigrate: " + err.Error())
	}
	defer db.Close()

	provider, err := NewMigrator(db)
	if err != nil {
		panic("testutil.MustMigrate: create provider: " + err.Error())
	}
	if _, err := provider.Up(context.Background()); err != nil {
		panic("testutil.MustMigrate: up: " + err.Error())
	}
	return true
}

func openSQLDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func requireDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skip(dsnEnv + " not set; skipping integration test")
	}
	return dsn
}
