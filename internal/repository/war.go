package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"claims-engine/internal/model"
)

const warColumns = `id, attacker_id, defender_id, declared_at, activated_at, ended_at, state, reason, outcome_kind, winner_id, loser_id`

func scanWar(row pgx.Row) (*model.War, error) {
	var (
		w                 model.War
		outcomeKind       *string
		winnerID, loserID *string
	)
	err := row.Scan(
		&w.ID,
		&w.AttackerID,
		&w.DefenderID,
		&w.DeclaredAt,
		&w.ActivatedAt,
		&w.EndedAt,
		&w.State,
		&w.Reason,
		&outcomeKind,
		&winnerID,
		&loserID,
	)
	if err != nil {
		return nil, err
	}
	if outcomeKind != nil {
		w.Outcome = &model.WarOutcome{Kind: model.OutcomeKind(*outcomeKind)}
		if winnerID != nil {
			w.Outcome.WinnerID = *winnerID
		}
		if loserID != nil {
			w.Outcome.LoserID = *loserID
		}
	}
	return &w, nil
}

func warArgs(w *model.War) []any {
	var outcomeKind, winnerID, loserID *string
	if w.Outcome != nil {
		kind := string(w.Outcome.Kind)
		outcomeKind = &kind
		if w.Outcome.WinnerID != "" {
			winnerID = &w.Outcome.WinnerID
		}
		if w.Outcome.LoserID != "" {
			loserID = &w.Outcome.LoserID
		}
	}
	return []any{
		w.ID, w.AttackerID, w.DefenderID, w.DeclaredAt, w.ActivatedAt, w.EndedAt,
		w.State, w.Reason, outcomeKind, winnerID, loserID,
	}
}

func (r *Postgres) LoadWar(ctx context.Context, id string) (*model.War, error) {
	w, err := scanWar(r.q.QueryRow(ctx, `SELECT `+warColumns+` FROM wars WHERE id = $1`+r.forUpdate(), id))
	if err != nil {
		return nil, mapRowErr("load war", "war", id, err)
	}
	return w, nil
}

// SaveWar upserts a war. A second open war for the same pair violates
// wars_open_pair and surfaces as an illegal-state error.
func (r *Postgres) SaveWar(ctx context.Context, w *model.War) error {
	const query = `
		INSERT INTO wars (` + warColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			activated_at = EXCLUDED.activated_at,
			ended_at = EXCLUDED.ended_at,
			state = EXCLUDED.state,
			reason = EXCLUDED.reason,
			outcome_kind = EXCLUDED.outcome_kind,
			winner_id = EXCLUDED.winner_id,
			loser_id = EXCLUDED.loser_id`
	_, err := r.q.Exec(ctx, query, warArgs(w)...)
	return mapErr("save war", err)
}

// TransitionWar is a compare-and-set on the stored state.
func (r *Postgres) TransitionWar(ctx context.Context, w *model.War, from model.WarState) (bool, error) {
	const query = `
		UPDATE wars SET
			activated_at = $2,
			ended_at = $3,
			state = $4,
			reason = $5,
			outcome_kind = $6,
			winner_id = $7,
			loser_id = $8
		WHERE id = $1 AND state = $9`
	args := warArgs(w)
	args = append([]any{args[0]}, args[4:]...)
	args = append(args, from)
	tag, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return false, mapErr("transition war", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wars WHERE id = $1)`, w.ID).Scan(&exists); err != nil {
		return false, mapErr("transition war", err)
	}
	if !exists {
		return false, mapRowErr("transition war", "war", w.ID, pgx.ErrNoRows)
	}
	return false, nil
}

func (r *Postgres) FindOpenWar(ctx context.Context, a, b string) (*model.War, error) {
	const query = `SELECT ` + warColumns + `
		FROM wars
		WHERE state <> 'ENDED'
		  AND ((attacker_id = $1 AND defender_id = $2) OR (attacker_id = $2 AND defender_id = $1))`
	w, err := scanWar(r.q.QueryRow(ctx, query, a, b))
	if err != nil {
		return nil, mapRowErr("find open war", "open war between", a+" and "+b, err)
	}
	return w, nil
}

func (r *Postgres) ListWarsByState(ctx context.Context, state model.WarState) ([]*model.War, error) {
	rows, err := r.q.Query(ctx, `SELECT `+warColumns+` FROM wars WHERE state = $1 ORDER BY declared_at, id`, state)
	if err != nil {
		return nil, mapErr("list wars", err)
	}
	return collect(rows, "wars", func(row pgx.Rows) (*model.War, error) {
		return scanWar(row)
	})
}

func (r *Postgres) ListOpenWarsOf(ctx context.Context, nationID string) ([]*model.War, error) {
	const query = `SELECT ` + warColumns + `
		FROM wars
		WHERE state <> 'ENDED' AND (attacker_id = $1 OR defender_id = $1)
		ORDER BY declared_at, id`
	rows, err := r.q.Query(ctx, query, nationID)
	if err != nil {
		return nil, mapErr("list open wars", err)
	}
	return collect(rows, "wars", func(row pgx.Rows) (*model.War, error) {
		return scanWar(row)
	})
}

func (r *Postgres) LoadShield(ctx context.Context, nationID string) (*model.WarShield, error) {
	var s model.WarShield
	err := r.q.QueryRow(ctx, `SELECT nation_id, expires_at, reason FROM war_shields WHERE nation_id = $1`, nationID).
		Scan(&s.NationID, &s.ExpiresAt, &s.Reason)
	if err != nil {
		return nil, mapRowErr("load shield", "shield of nation", nationID, err)
	}
	return &s, nil
}

func (r *Postgres) SaveShield(ctx context.Context, s *model.WarShield) error {
	const query = `
		INSERT INTO war_shields (nation_id, expires_at, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (nation_id) DO UPDATE SET
			expires_at = EXCLUDED.expires_at,
			reason = EXCLUDED.reason`
	_, err := r.q.Exec(ctx, query, s.NationID, s.ExpiresAt, s.Reason)
	return mapErr("save shield", err)
}

func (r *Postgres) DeleteShield(ctx context.Context, nationID string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM war_shields WHERE nation_id = $1`, nationID)
	return mapErr("delete shield", err)
}

const tributeColumns = `id, war_id, proposer_id, amount, surrender, truce, status, created_at, responded_at`

func scanTribute(row pgx.Row) (*model.WarTribute, error) {
	var t model.WarTribute
	err := row.Scan(
		&t.ID,
		&t.WarID,
		&t.ProposerID,
		&t.Terms.Amount,
		&t.Terms.Surrender,
		&t.Terms.Truce,
		&t.Status,
		&t.CreatedAt,
		&t.RespondedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Postgres) LoadTribute(ctx context.Context, id string) (*model.WarTribute, error) {
	t, err := scanTribute(r.q.QueryRow(ctx, `SELECT `+tributeColumns+` FROM war_tributes WHERE id = $1`+r.forUpdate(), id))
	if err != nil {
		return nil, mapRowErr("load tribute", "tribute", id, err)
	}
	return t, nil
}

func (r *Postgres) SaveTribute(ctx context.Context, t *model.WarTribute) error {
	const query = `
		INSERT INTO war_tributes (` + tributeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			responded_at = EXCLUDED.responded_at`
	_, err := r.q.Exec(ctx, query,
		t.ID, t.WarID, t.ProposerID, t.Terms.Amount, t.Terms.Surrender, t.Terms.Truce,
		t.Status, t.CreatedAt, t.RespondedAt)
	return mapErr("save tribute", err)
}

func (r *Postgres) ListTributes(ctx context.Context, warID string) ([]*model.WarTribute, error) {
	rows, err := r.q.Query(ctx, `SELECT `+tributeColumns+` FROM war_tributes WHERE war_id = $1 ORDER BY created_at, id`, warID)
	if err != nil {
		return nil, mapErr("list tributes", err)
	}
	return collect(rows, "tributes", func(row pgx.Rows) (*model.WarTribute, error) {
		return scanTribute(row)
	})
}
