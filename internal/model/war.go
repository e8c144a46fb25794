package model

import "time"

// WarState is the lifecycle state of a war.
type WarState string

const (
	WarDeclared  WarState = "DECLARED"
	WarActive    WarState = "ACTIVE"
	WarCeasefire WarState = "CEASEFIRE"
	WarEnded     WarState = "ENDED"
)

// Open reports whether the war still counts for AT_WAR and pair exclusivity.
func (s WarState) Open() bool {
	return s != WarEnded
}

// OutcomeKind describes how a war ended.
type OutcomeKind string

const (
	OutcomeSurrender OutcomeKind = "SURRENDER"
	OutcomeRetracted OutcomeKind = "RETRACTED"
	OutcomeDisbanded OutcomeKind = "DISBANDED"
)

// WarOutcome is recorded when a war reaches ENDED.
type WarOutcome struct {
	Kind     OutcomeKind
	WinnerID string // empty when nobody won
	LoserID  string
}

// War is a time-gated conflict between two nations. Ended wars are kept for audit.
type War struct {
	ID          string
	AttackerID  string
	DefenderID  string
	DeclaredAt  time.Time
	ActivatedAt *time.Time
	EndedAt     *time.Time
	State       WarState
	Reason      *string
	Outcome     *WarOutcome
}

// Involves reports whether nationID is a party to the war.
func (w *War) Involves(nationID string) bool {
	return w.AttackerID == nationID || w.DefenderID == nationID
}

// Opponent returns the other party of the war.
func (w *War) Opponent(nationID string) string {
	if w.AttackerID == nationID {
		return w.DefenderID
	}
	return w.AttackerID
}

// Clone returns a deep copy of w.
func (w *War) Clone() *War {
	out := *w
	if w.ActivatedAt != nil {
		t := *w.ActivatedAt
		out.ActivatedAt = &t
	}
	if w.EndedAt != nil {
		t := *w.EndedAt
		out.EndedAt = &t
	}
	if w.Reason != nil {
		r := *w.Reason
		out.Reason = &r
	}
	if w.Outcome != nil {
		o := *w.Outcome
		out.Outcome = &o
	}
	return &out
}

// WarShield protects a nation from new war declarations until ExpiresAt.
type WarShield struct {
	NationID  string
	ExpiresAt time.Time
	Reason    string
}

// Active reports whether the shield is unexpired at now.
func (s *WarShield) Active(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}

// TributeStatus is the lifecycle of a tribute proposal.
type TributeStatus string

const (
	TributePending  TributeStatus = "PENDING"
	TributeAccepted TributeStatus = "ACCEPTED"
	TributeRejected TributeStatus = "REJECTED"
	TributeExpired  TributeStatus = "EXPIRED"
)

// TributeTerms is what the proposing nation offers.
type TributeTerms struct {
	Amount    Money // paid by the proposer to its opponent on acceptance
	Surrender bool
	Truce     bool
}

// WarTribute is a settlement proposal inside a war.
type WarTribute struct {
	ID          string
	WarID       string
	ProposerID  string
	Terms       TributeTerms
	Status      TributeStatus
	CreatedAt   time.Time
	RespondedAt *time.Time
}
