// Package notify delivers domain events to players, claims and nations.
// Delivery is fire-and-forget: callers log failures and never let them
// affect the operation that produced the event.
package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Kind identifies an event.
type Kind string

const (
	KindMemberAdded     Kind = "claim.member_added"
	KindMemberMoved     Kind = "claim.member_moved"
	KindMemberRemoved   Kind = "claim.member_removed"
	KindGroupDeleted    Kind = "claim.group_deleted"
	KindClaimDeleted    Kind = "claim.deleted"
	KindClaimLevelUp    Kind = "claim.level_up"
	KindUpkeepCharged   Kind = "claim.upkeep_charged"
	KindNationFounded   Kind = "nation.founded"
	KindNationDisbanded Kind = "nation.disbanded"
	KindNationJoined    Kind = "nation.joined"
	KindNationLeft      Kind = "nation.left"
	KindRelationChanged Kind = "nation.relation_changed"
	KindWarDeclared     Kind = "war.declared"
	KindWarActivated    Kind = "war.activated"
	KindWarCeasefire    Kind = "war.ceasefire"
	KindWarResumed      Kind = "war.resumed"
	KindWarEnded        Kind = "war.ended"
	KindTributeProposed Kind = "war.tribute_proposed"
	KindTributeAnswered Kind = "war.tribute_answered"
	KindShieldGranted   Kind = "war.shield_granted"
)

// Public reports whether events of this kind are server-wide announcements.
func (k Kind) Public() bool {
	return strings.HasPrefix(string(k), "war.") || k == KindNationFounded || k == KindNationDisbanded
}

// Payload carries event details as flat string pairs.
type Payload map[string]string

// Sink receives notifications. target is a player, claim or nation id.
type Sink interface {
	Notify(ctx context.Context, target string, kind Kind, payload Payload) error
}

// Format renders an event as one line with keys in sorted order.
func Format(target string, kind Kind, payload Payload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", kind, target)
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, payload[k])
	}
	return b.String()
}

// LogSink writes every event to the global zerolog logger.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, target string, kind Kind, payload Payload) error {
	ev := log.Info().Str("target", target).Str("kind", string(kind))
	for k, v := range payload {
		ev = ev.Str(k, v)
	}
	ev.Msg("Notification")
	return nil
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, target string, kind Kind, payload Payload) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, target, kind, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Event is one recorded notification.
type Event struct {
	Target  string
	Kind    Kind
	Payload Payload
}

// Recorder keeps every event in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, target string, kind Kind, payload Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Target: target, Kind: kind, Payload: payload})
	return nil
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
