package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ridepool/backend/internal/domain"
	"github.com/ridepool/backend/internal/events"
	"github.com/ridepool/backend/internal/payments"
	"github.com/ridepool/backend/internal/repo"
	"github.com/ridepool/backend/internal/settlement"
)

// TopUpResult reports the wallet after a top-up. Applied is false when the
// gateway reference had already been credited.
type TopUpResult struct {
	Actor   domain.Actor
	Amount  int64
	Applied bool
}

// WalletService credits confirmed gateway payments to actor wallets.
type WalletService struct {
	store    repo.Store
	verifier payments.Verifier
	settler  *settlement.Settler
	events   *events.Emitter
	log      *slog.Logger
}

// NewWalletService constructs a WalletService.
func NewWalletService(store repo.Store, verifier payments.Verifier, settler *settlement.Settler, emitter *events.Emitter, log *slog.Logger) *WalletService {
	return &WalletService{store: store, verifier: verifier, settler: settler, events: emitter, log: log}
}

// TopUp looks up the gateway confirmation for reference and, when the funds
// are verified, credits the caller exactly once per reference.
func (s *WalletService) TopUp(ctx context.Context, who domain.Identity, reference string) (TopUpResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return TopUpResult{}, fmt.Errorf("service.WalletService.TopUp: %w: payment reference is required", domain.ErrValidation)
	}

	conf, err := s.verifier.Confirm(ctx, reference)
	if err != nil {
		return TopUpResult{}, fmt.Errorf("service.WalletService.TopUp: %w", err)
	}
	if !conf.Verified {
		return TopUpResult{}, fmt.Errorf("service.WalletService.TopUp: %w: payment %s is not confirmed", domain.ErrValidation, reference)
	}
	if conf.Amount <= 0 {
		return TopUpResult{}, fmt.Errorf("service.WalletService.TopUp: %w: payment %s has no amount", domain.ErrValidation, reference)
	}

	res := TopUpResult{Amount: conf.Amount}
	var delta domain.BalanceDelta
	err = s.store.WithinTx(ctx, func(tx repo.Repos) error {
		actor, err := tx.Actors.GetByID(ctx, who.ActorID)
		if err != nil {
			return err
		}
		fresh, err := tx.Actors.RecordTopUp(ctx, reference, who.ActorID, conf.Amount)
		if err != nil {
			return err
		}
		if !fresh {
			res.Actor = actor
			return nil
		}
		res.Actor, delta, err = s.settler.ApplyTopUp(ctx, tx.Actors, actor, conf.Amount)
		if err != nil {
			return err
		}
		res.Applied = true
		return nil
	})
	if err != nil {
		return TopUpResult{}, fmt.Errorf("service.WalletService.TopUp: %w", err)
	}

	if !res.Applied {
		s.log.InfoContext(ctx, "top-up already applied", "actor_id", who.ActorID, "reference", reference)
		return res, nil
	}
	s.log.InfoContext(ctx, "wallet topped up", "actor_id", who.ActorID, "reference", reference, "amount", conf.Amount)
	ev := events.New(events.WalletToppedUp, who.ActorID, who.ActorID)
	ev.Deltas = []domain.BalanceDelta{delta}
	s.events.Emit(ctx, ev)
	return res, nil
}
