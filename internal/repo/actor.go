package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ridepool/backend/internal/domain"
)

// ActorRepo defines the persistence operations for passengers and drivers.
// Balance and rating changes are single-statement updates so they compose
// with whatever status change shares their transaction.
type ActorRepo interface {
	// Upsert registers an actor or updates its role. Balances are untouched.
	Upsert(ctx context.Context, id uuid.UUID, role domain.Role) (domain.Actor, error)

	// GetByID retrieves an actor with its recorded documents.
	// Returns domain.ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Actor, error)

	// AdjustBalances adds the delta to the actor's wallet and earnings.
	// Returns domain.ErrNotFound if the actor does not exist.
	AdjustBalances(ctx context.Context, delta domain.BalanceDelta) (domain.Actor, error)

	// AddRating folds one rating into the actor's running average.
	AddRating(ctx context.Context, id uuid.UUID, value int) (domain.Actor, error)

	// SetDocument records or replaces the stored path for one document type.
	SetDocument(ctx context.Context, id uuid.UUID, docType domain.DocumentType, path string) error

	// RecordTopUp claims a gateway reference for the actor. It returns false
	// when the reference was already recorded.
	RecordTopUp(ctx context.Context, reference string, actorID uuid.UUID, amount int64) (bool, error)
}

const actorColumns = `id, role, wallet_balance, earnings_total, rating_average, rating_count, created_at, updated_at`

// pgActorRepo is the Postgres implementation of ActorRepo.
type pgActorRepo struct {
	db db
}

// NewActorRepo constructs an ActorRepo backed by the provided db connection.
func NewActorRepo(db db) ActorRepo {
	return &pgActorRepo{db: db}
}

// Upsert creates the actor or updates its role.
func (r *pgActorRepo) Upsert(ctx context.Context, id uuid.UUID, role domain.Role) (domain.Actor, error) {
	q := `
		INSERT INTO actors (id, role) VALUES (@id, @role)
		ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, updated_at = now()
		RETURNING ` + actorColumns

	a, err := scanActor(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id, "role": string(role)}))
	if err != nil {
		return domain.Actor{}, fmt.Errorf("repo.ActorRepo.Upsert: %w", err)
	}
	return a, nil
}

// GetByID retrieves an actor and its documents.
func (r *pgActorRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Actor, error) {
	q := `SELECT ` + actorColumns + ` FROM actors WHERE id = @id`

	a, err := scanActor(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Actor{}, fmt.Errorf("repo.ActorRepo.GetByID: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT doc_type, path FROM actor_documents WHERE actor_id = @id`, pgx.NamedArgs{"id": id})
	if err != nil {
		return domain.Actor{}, fmt.Errorf("repo.ActorRepo.GetByID: documents: %w", err)
	}
	defer rows.Close()

	a.Documents = map[domain.DocumentType]string{}
	for rows.Next() {
		var docType, path string
		if err := rows.Scan(&docType, &path); err != nil {
			return domain.Actor{}, fmt.Errorf("repo.ActorRepo.GetByID: documents: scan: %w", err)
		}
		a.Documents[domain.DocumentType(docType)] = path
	}
	if err := rows.Err(); err != nil {
		return domain.Actor{}, fmt.Errorf("repo.ActorRepo.GetByID: documents: rows: %w", err)
	}
	return a, nil
}

// AdjustBalances applies both deltas in one statement.
func (r *pgActorRepo) AdjustBalances(ctx context.Context, delta domain.BalanceDelta) (domain.Actor, error) {
	q := `
		UPDATE actors
		SET wallet_balance = wallet_balance + @wallet_delta,
		    earnings_total = earnings_total + @earnings_delta,
		    updated_at     = now()
		WHERE id = @id
		RETURNING ` + actorColumns

	args := pgx.NamedArgs{
		"id":             delta.ActorID,
		"wallet_delta":   delta.WalletDelta,
		"earnings_delta": delta.EarningsDelta,
	}
	a, err := scanActor(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Actor{}, fmt.Errorf("repo.ActorRepo.AdjustBalances: %w", err)
	}
	return a, nil
}

// AddRating recomputes the running mean from the stored average and count.
func (r *pgActorRepo) AddRating(ctx context.Context, id uuid.UUID, value int) (domain.Actor, error) {
	q := `
		UPDATE actors
		SET rating_average = (rating_average * rating_count + @value) / (rating_count + 1),
		    rating_count   = rating_count + 1,
		    updated_at     = now()
		WHERE id = @id
		RETURNING ` + actorColumns

	a, err := scanActor(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id, "value": float64(value)}))
	if err != nil {
		return domain.Actor{}, fmt.Errorf("repo.ActorRepo.AddRating: %w", err)
	}
	return a, nil
}

// SetDocument upserts one document path.
func (r *pgActorRepo) SetDocument(ctx context.Context, id uuid.UUID, docType domain.DocumentType, path string) error {
	const q = `
		INSERT INTO actor_documents (actor_id, doc_type, path)
		VALUES (@id, @doc_type, @path)
		ON CONFLICT (actor_id, doc_type) DO UPDATE SET path = EXCLUDED.path, updated_at = now()`

	_, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "doc_type": string(docType), "path": path})
	if err != nil {
		return fmt.Errorf("repo.ActorRepo.SetDocument: %w", err)
	}
	return nil
}

// RecordTopUp inserts the reference once.
func (r *pgActorRepo) RecordTopUp(ctx context.Context, reference string, actorID uuid.UUID, amount int64) (bool, error) {
	const q = `
		INSERT INTO wallet_topups (reference, actor_id, amount)
		VALUES (@reference, @actor_id, @amount)
		ON CONFLICT (reference) DO NOTHING`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"reference": reference, "actor_id": actorID, "amount": amount})
	if err != nil {
		return false, fmt.Errorf("repo.ActorRepo.RecordTopUp: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// scanActor maps an actors row into a domain.Actor.
func scanActor(s scanner) (domain.Actor, error) {
	var (
		a    domain.Actor
		id   pgtype.UUID
		role string
	)

	err := s.Scan(&id, &role, &a.WalletBalance, &a.EarningsTotal, &a.RatingAverage, &a.RatingCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Actor{}, domain.ErrNotFound
		}
		return domain.Actor{}, err
	}

	a.ID = uuid.UUID(id.Bytes)
	a.Role = domain.Role(role)
	return a, nil
}
