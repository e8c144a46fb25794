// Package service implements the claims engine operations: permission
// resolution, groups, ledger, claims, nations, relations and wars.
// Every mutation takes the per-entity locks it touches, runs inside one
// repository transaction and notifies only after the transaction commits.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"claims-engine/internal/notify"
	"claims-engine/internal/pkg/apperr"
	"claims-engine/internal/pkg/clock"
	"claims-engine/internal/pkg/lock"
	"claims-engine/internal/repository"
)

// SystemActor is the actor id of engine-initiated ledger postings. It is
// recorded as a null actor and never authorizes a player operation.
const SystemActor = "system"

// Deps are the collaborators shared by every service.
type Deps struct {
	Repo   repository.Repository
	Locks  *lock.EntityLock
	Clock  clock.Clock
	Notify notify.Sink
}

func (d Deps) now() time.Time {
	return d.Clock.Now()
}

// pending is a notification held back until the transaction commits.
type pending struct {
	target  string
	kind    notify.Kind
	payload notify.Payload
}

// outbox collects notifications produced inside a transaction.
type outbox []pending

func (o *outbox) add(target string, kind notify.Kind, payload notify.Payload) {
	*o = append(*o, pending{target: target, kind: kind, payload: payload})
}

// flush delivers the collected notifications. Failures are logged only.
func (d Deps) flush(ctx context.Context, o outbox) {
	if d.Notify == nil {
		return
	}
	for _, p := range o {
		if err := d.Notify.Notify(ctx, p.target, p.kind, p.payload); err != nil {
			log.Warn().
				Err(err).
				Str("target", p.target).
				Str("kind", string(p.kind)).
				Msg("Failed to queue notification")
		}
	}
}

func newID() string {
	return uuid.NewString()
}

// checkActor rejects the unset actor id on player operations.
func checkActor(actorID string) error {
	if actorID == "" {
		return apperr.Invalidf("actor id is required")
	}
	return nil
}

// actorRef maps an actor id to the nullable ledger column.
func actorRef(actorID string) *string {
	if actorID == SystemActor {
		return nil
	}
	return optional(actorID)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Lock keys.
func claimKey(id string) string   { return lock.Key("claim", id) }
func accountKey(id string) string { return lock.Key("account", id) }
func nationKey(id string) string  { return lock.Key("nation", id) }
func warKey(id string) string     { return lock.Key("war", id) }

// pairKey serializes relation changes and war declarations between two nations.
func pairKey(a, b string) string { return lock.PairKey("pair", a, b) }
