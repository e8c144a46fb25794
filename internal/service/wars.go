package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"claims-engine/internal/model"
	"claims-engine/internal/notify"
	"claims-engine/internal/pkg/apperr"
	"claims-engine/internal/repository"
)

// DefaultNoticePeriod is the delay between a declaration and combat.
const DefaultNoticePeriod = 24 * time.Hour

// ActivationScheduler is told when a declared war becomes due.
type ActivationScheduler interface {
	ScheduleAt(warID string, at time.Time)
}

// Wars runs the war lifecycle: declaration, notice period, combat,
// tributes and shields.
//
//	DECLARED -> ACTIVE <-> CEASEFIRE
//	    |         |           |
//	    +---------+-----------+--> ENDED
type Wars struct {
	Deps
	ledger          *Ledger
	notice          time.Duration
	declarationCost model.Money
	scheduler       ActivationScheduler
}

// NewWars creates a new war engine. A zero notice uses DefaultNoticePeriod.
// A positive declarationCost is charged to the attacker treasury.
func NewWars(d Deps, ledger *Ledger, notice time.Duration, declarationCost model.Money) *Wars {
	if notice <= 0 {
		notice = DefaultNoticePeriod
	}
	return &Wars{Deps: d, ledger: ledger, notice: notice, declarationCost: declarationCost}
}

// SetScheduler registers the scheduler notified of new declarations.
func (w *Wars) SetScheduler(s ActivationScheduler) {
	w.scheduler = s
}

// NoticePeriod returns the configured notice period.
func (w *Wars) NoticePeriod() time.Duration {
	return w.notice
}

// GetWar loads a war.
func (w *Wars) GetWar(ctx context.Context, warID string) (*model.War, error) {
	return w.Repo.LoadWar(ctx, warID)
}

// WarsOf lists the open wars of a nation, oldest first.
func (w *Wars) WarsOf(ctx context.Context, nationID string) ([]*model.War, error) {
	return w.Repo.ListOpenWarsOf(ctx, nationID)
}

// Tributes lists the tributes of a war.
func (w *Wars) Tributes(ctx context.Context, warID string) ([]*model.WarTribute, error) {
	if _, err := w.Repo.LoadWar(ctx, warID); err != nil {
		return nil, err
	}
	return w.Repo.ListTributes(ctx, warID)
}

// DeclareWar starts a war in DECLARED state. It is declined with
// ALREADY_AT_WAR when the pair has an open war and with TARGET_SHIELDED
// when the defender holds an unexpired shield, in that order.
func (w *Wars) DeclareWar(ctx context.Context, attackerID, defenderID, reason string) (*model.War, error) {
	if attackerID == defenderID {
		return nil, apperr.Invalidf("a nation cannot declare war on itself")
	}
	attacker, err := w.Repo.LoadNation(ctx, attackerID)
	if err != nil {
		return nil, err
	}

	var war *model.War
	keys := []string{pairKey(attackerID, defenderID), nationKey(attackerID), nationKey(defenderID), accountKey(attacker.TreasuryAccountID)}
	err = w.Locks.WithLocks(ctx, keys, func() error {
		return w.Repo.WithTx(ctx, func(tx repository.Repository) error {
			attacker, err := tx.LoadNation(ctx, attackerID)
			if err != nil {
				return err
			}
			if _, err := tx.LoadNation(ctx, defenderID); err != nil {
				return err
			}

			open, err := hasOpenWar(ctx, tx, attackerID, defenderID)
			if err != nil {
				return err
			}
			if open {
				return apperr.Declined(apperr.ReasonAlreadyAtWar, "nations %s and %s are already at war", attackerID, defenderID)
			}
			shielded, err := shieldActive(ctx, tx, defenderID, w.now())
			if err != nil {
				return err
			}
			if shielded {
				return apperr.Declined(apperr.ReasonTargetShielded, "nation %s is shielded", defenderID)
			}

			if w.declarationCost > 0 {
				if _, err := w.ledger.postIn(ctx, tx, attacker.TreasuryAccountID, model.TxTax, -w.declarationCost, SystemActor, "war declaration"); err != nil {
					return err
				}
			}

			war = &model.War{
				ID:         newID(),
				AttackerID: attackerID,
				DefenderID: defenderID,
				DeclaredAt: w.now(),
				State:      model.WarDeclared,
				Reason:     optional(strings.TrimSpace(reason)),
			}
			return tx.SaveWar(ctx, war)
		})
	})
	if err != nil {
		return nil, err
	}

	due := war.DeclaredAt.Add(w.notice)
	if w.scheduler != nil {
		w.scheduler.ScheduleAt(war.ID, due)
	}

	log.Info().
		Str("war", war.ID).
		Str("attacker", attackerID).
		Str("defender", defenderID).
		Time("activates_at", due).
		Msg("War declared")
	var out outbox
	payload := notify.Payload{"war": war.ID, "attacker": attackerID, "defender": defenderID, "activates_at": due.UTC().Format(time.RFC3339)}
	out.add(attackerID, notify.KindWarDeclared, payload)
	out.add(defenderID, notify.KindWarDeclared, payload)
	w.flush(ctx, out)
	return war, nil
}

func shieldActive(ctx context.Context, r repository.Repository, nationID string, now time.Time) (bool, error) {
	s, err := r.LoadShield(ctx, nationID)
	switch {
	case err == nil:
		return s.Active(now), nil
	case errors.Is(err, apperr.ErrNotFound):
		return false, nil
	}
	return false, err
}

// TryActivate moves a due DECLARED war to ACTIVE. It reports whether this
// call committed the transition; wars that are not due or no longer
// DECLARED are left alone. Concurrent callers commit at most once.
func (w *Wars) TryActivate(ctx context.Context, warID string) (bool, error) {
	var activated *model.War
	err := w.Locks.WithLock(ctx, warKey(warID), func() error {
		return w.Repo.WithTx(ctx, func(tx repository.Repository) error {
			war, err := tx.LoadWar(ctx, warID)
			if err != nil {
				return err
			}
			if war.State != model.WarDeclared {
				return nil
			}
			now := w.now()
			if now.Before(war.DeclaredAt.Add(w.notice)) {
				return nil
			}
			war.State = model.WarActive
			war.ActivatedAt = &now
			ok, err := tx.TransitionWar(ctx, war, model.WarDeclared)
			if err != nil {
				return err
			}
			if ok {
				activated = war
			}
			return nil
		})
	})
	if err != nil || activated == nil {
		return false, err
	}

	log.Info().Str("war", warID).Msg("War activated")
	var out outbox
	out.add(activated.AttackerID, notify.KindWarActivated, notify.Payload{"war": warID})
	out.add(activated.DefenderID, notify.KindWarActivated, notify.Payload{"war": warID})
	w.flush(ctx, out)
	return true, nil
}

// ActivateDue activates every DECLARED war whose notice has elapsed and
// returns how many this call activated.
func (w *Wars) ActivateDue(ctx context.Context) (int, error) {
	declared, err := w.Repo.ListWarsByState(ctx, model.WarDeclared)
	if err != nil {
		return 0, err
	}
	now := w.now()
	var (
		n    int
		errs []error
	)
	for _, war := range declared {
		if now.Before(war.DeclaredAt.Add(w.notice)) {
			continue
		}
		ok, err := w.TryActivate(ctx, war.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			n++
		}
	}
	return n, errors.Join(errs...)
}

// PendingActivations returns the due time of every DECLARED war, for
// rebuilding a scheduler queue after restart.
func (w *Wars) PendingActivations(ctx context.Context) (map[string]time.Time, error) {
	declared, err := w.Repo.ListWarsByState(ctx, model.WarDeclared)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(declared))
	for _, war := range declared {
		out[war.ID] = war.DeclaredAt.Add(w.notice)
	}
	return out, nil
}

// ProposeTribute offers terms to the opponent. Allowed while the war is
// ACTIVE or in CEASEFIRE. A newer proposal supersedes the proposer's
// earlier PENDING one, which becomes EXPIRED.
func (w *Wars) ProposeTribute(ctx context.Context, warID, proposerID string, terms model.TributeTerms) (*model.WarTribute, error) {
	if terms.Amount < 0 {
		return nil, apperr.Invalidf("tribute amount must not be negative")
	}
	if terms.Amount == 0 && !terms.Surrender && !terms.Truce {
		return nil, apperr.Invalidf("tribute terms are empty")
	}

	var (
		t        *model.WarTribute
		opponent string
	)
	err := w.Locks.WithLock(ctx, warKey(warID), func() error {
		return w.Repo.WithTx(ctx, func(tx repository.Repository) error {
			war, err := tx.LoadWar(ctx, warID)
			if err != nil {
				return err
			}
			if !war.Involves(proposerID) {
				return apperr.IllegalStatef("nation %s is not a party to war %s", proposerID, warID)
			}
			if war.State != model.WarActive && war.State != model.WarCeasefire {
				return apperr.IllegalStatef("war %s is %s; tributes need ACTIVE or CEASEFIRE", warID, war.State)
			}
			opponent = war.Opponent(proposerID)

			now := w.now()
			existing, err := tx.ListTributes(ctx, warID)
			if err != nil {
				return err
			}
			for _, prev := range existing {
				if prev.ProposerID != proposerID || prev.Status != model.TributePending {
					continue
				}
				prev.Status = model.TributeExpired
				prev.RespondedAt = &now
				if err := tx.SaveTribute(ctx, prev); err != nil {
					return err
				}
			}

			t = &model.WarTribute{
				ID:         newID(),
				WarID:      warID,
				ProposerID: proposerID,
				Terms:      terms,
				Status:     model.TributePending,
				CreatedAt:  now,
			}
			return tx.SaveTribute(ctx, t)
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("war", warID).Str("tribute", t.ID).Str("proposer", proposerID).Msg("Tribute proposed")
	w.flush(ctx, outbox{{target: opponent, kind: notify.KindTributeProposed, payload: tributePayload(t)}})
	return t, nil
}

func tributePayload(t *model.WarTribute) notify.Payload {
	p := notify.Payload{"war": t.WarID, "tribute": t.ID, "proposer": t.ProposerID, "status": string(t.Status)}
	if t.Terms.Amount > 0 {
		p["amount"] = t.Terms.Amount.String()
	}
	if t.Terms.Surrender {
		p["surrender"] = "true"
	}
	if t.Terms.Truce {
		p["truce"] = "true"
	}
	return p
}

// RespondTribute answers a PENDING tribute. Rejection leaves the war as is.
// Acceptance pays Amount from the proposer's treasury to the opponent's as
// NATION_TAX, then ends the war when the terms surrender, or moves it to
// CEASEFIRE otherwise.
func (w *Wars) RespondTribute(ctx context.Context, tributeID string, accept bool) (*model.War, error) {
	t, err := w.Repo.LoadTribute(ctx, tributeID)
	if err != nil {
		return nil, err
	}
	war, err := w.Repo.LoadWar(ctx, t.WarID)
	if err != nil {
		return nil, err
	}
	keys := []string{warKey(war.ID)}
	for _, id := range []string{war.AttackerID, war.DefenderID} {
		n, err := w.Repo.LoadNation(ctx, id)
		if err != nil {
			return nil, err
		}
		keys = append(keys, accountKey(n.TreasuryAccountID))
	}

	err = w.Locks.WithLocks(ctx, keys, func() error {
		return w.Repo.WithTx(ctx, func(tx repository.Repository) error {
			t, err = tx.LoadTribute(ctx, tributeID)
			if err != nil {
				return err
			}
			if t.Status != model.TributePending {
				return apperr.IllegalStatef("tribute %s is %s", tributeID, t.Status)
			}
			war, err = tx.LoadWar(ctx, t.WarID)
			if err != nil {
				return err
			}

			now := w.now()
			t.RespondedAt = &now
			if !accept {
				t.Status = model.TributeRejected
				return tx.SaveTribute(ctx, t)
			}
			if war.State != model.WarActive && war.State != model.WarCeasefire {
				return apperr.IllegalStatef("war %s is %s; tributes need ACTIVE or CEASEFIRE", war.ID, war.State)
			}

			receiverID := war.Opponent(t.ProposerID)
			if t.Terms.Amount > 0 {
				payer, err := tx.LoadNation(ctx, t.ProposerID)
				if err != nil {
					return err
				}
				receiver, err := tx.LoadNation(ctx, receiverID)
				if err != nil {
					return err
				}
				if _, _, err := w.ledger.transferIn(ctx, tx, payer.TreasuryAccountID, receiver.TreasuryAccountID, t.Terms.Amount, model.TxNationTax, SystemActor, "war tribute"); err != nil {
					return err
				}
			}

			from := war.State
			if t.Terms.Surrender {
				war.State = model.WarEnded
				war.EndedAt = &now
				war.Outcome = &model.WarOutcome{Kind: model.OutcomeSurrender, WinnerID: receiverID, LoserID: t.ProposerID}
			} else {
				war.State = model.WarCeasefire
			}
			if war.State != from {
				ok, err := tx.TransitionWar(ctx, war, from)
				if err != nil {
					return err
				}
				if !ok {
					return apperr.IllegalStatef("war %s changed state concurrently", war.ID)
				}
			}

			t.Status = model.TributeAccepted
			if err := tx.SaveTribute(ctx, t); err != nil {
				return err
			}
			if war.State == model.WarEnded {
				return expireTributes(ctx, tx, war.ID, t.ID, now)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("war", war.ID).
		Str("tribute", tributeID).
		Str("status", string(t.Status)).
		Str("state", string(war.State)).
		Msg("Tribute answered")
	var out outbox
	out.add(t.ProposerID, notify.KindTributeAnswered, tributePayload(t))
	if t.Status == model.TributeAccepted {
		kind := notify.KindWarCeasefire
		if war.State == model.WarEnded {
			kind = notify.KindWarEnded
		}
		out.add(war.AttackerID, kind, notify.Payload{"war": war.ID})
		out.add(war.DefenderID, kind, notify.Payload{"war": war.ID})
	}
	w.flush(ctx, out)
	return war, nil
}

// ResumeWar breaks a ceasefire. Either party may resume.
func (w *Wars) ResumeWar(ctx context.Context, warID, nationID string) (*model.War, error) {
	var war *model.War
	err := w.Locks.WithLock(ctx, warKey(warID), func() error {
		return w.Repo.WithTx(ctx, func(tx repository.Repository) error {
			var err error
			war, err = tx.LoadWar(ctx, warID)
			if err != nil {
				return err
			}
			if !war.Involves(nationID) {
				return apperr.IllegalStatef("nation %s is not a party to war %s", nationID, warID)
			}
			if war.State != model.WarCeasefire {
				return apperr.IllegalStatef("war %s is %s, not in ceasefire", warID, war.State)
			}
			war.State = model.WarActive
			ok, err := tx.TransitionWar(ctx, war, model.WarCeasefire)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.IllegalStatef("war %s changed state concurrently", warID)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("war", warID).Str("by", nationID).Msg("War resumed")
	var out outbox
	out.add(war.AttackerID, notify.KindWarResumed, notify.Payload{"war": warID, "by": nationID})
	out.add(war.DefenderID, notify.KindWarResumed, notify.Payload{"war": warID, "by": nationID})
	w.flush(ctx, out)
	return war, nil
}

// Retract ends a war still in its notice period. The attacker retracting
// leaves no winner; the defender doing so surrenders to the attacker.
func (w *Wars) Retract(ctx context.Context, warID, nationID string) (*model.War, error) {
	var war *model.War
	err := w.Locks.WithLock(ctx, warKey(warID), func() error {
		return w.Repo.WithTx(ctx, func(tx repository.Repository) error {
			var err error
			war, err = tx.LoadWar(ctx, warID)
			if err != nil {
				return err
			}
			if !war.Involves(nationID) {
				return apperr.IllegalStatef("nation %s is not a party to war %s", nationID, warID)
			}
			if war.State != model.WarDeclared {
				return apperr.IllegalStatef("war %s is %s; only declared wars can be retracted", warID, war.State)
			}

			now := w.now()
			war.State = model.WarEnded
			war.EndedAt = &now
			if nationID == war.AttackerID {
				war.Outcome = &model.WarOutcome{Kind: model.OutcomeRetracted, LoserID: nationID}
			} else {
				war.Outcome = &model.WarOutcome{Kind: model.OutcomeSurrender, WinnerID: war.AttackerID, LoserID: nationID}
			}
			ok, err := tx.TransitionWar(ctx, war, model.WarDeclared)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.IllegalStatef("war %s changed state concurrently", warID)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("war", warID).Str("by", nationID).Str("outcome", string(war.Outcome.Kind)).Msg("War ended before activation")
	var out outbox
	payload := notify.Payload{"war": warID, "outcome": string(war.Outcome.Kind)}
	out.add(war.AttackerID, notify.KindWarEnded, payload)
	out.add(war.DefenderID, notify.KindWarEnded, payload)
	w.flush(ctx, out)
	return war, nil
}

// GrantShield protects a nation from new declarations. An unexpired shield
// is extended by duration; otherwise the shield runs from now.
func (w *Wars) GrantShield(ctx context.Context, nationID string, duration time.Duration, reason string) (*model.WarShield, error) {
	if duration <= 0 {
		return nil, apperr.Invalidf("shield duration must be positive")
	}

	var s *model.WarShield
	err := w.Locks.WithLock(ctx, nationKey(nationID), func() error {
		return w.Repo.WithTx(ctx, func(tx repository.Repository) error {
			if _, err := tx.LoadNation(ctx, nationID); err != nil {
				return err
			}
			now := w.now()
			s = &model.WarShield{NationID: nationID, ExpiresAt: now.Add(duration), Reason: reason}
			current, err := tx.LoadShield(ctx, nationID)
			switch {
			case err == nil:
				if current.Active(now) {
					s.ExpiresAt = current.ExpiresAt.Add(duration)
				}
			case !errors.Is(err, apperr.ErrNotFound):
				return err
			}
			return tx.SaveShield(ctx, s)
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("nation", nationID).Time("expires_at", s.ExpiresAt).Str("reason", reason).Msg("Shield granted")
	w.flush(ctx, outbox{{target: nationID, kind: notify.KindShieldGranted, payload: notify.Payload{
		"expires_at": s.ExpiresAt.UTC().Format(time.RFC3339),
		"reason":     reason,
	}}})
	return s, nil
}

// Shield returns the unexpired shield of a nation.
func (w *Wars) Shield(ctx context.Context, nationID string) (*model.WarShield, error) {
	s, err := w.Repo.LoadShield(ctx, nationID)
	if err != nil {
		return nil, err
	}
	if !s.Active(w.now()) {
		return nil, apperr.NotFoundf("nation %s has no active shield", nationID)
	}
	return s, nil
}
