package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"claims-engine/internal/model"
)

func (r *Postgres) LoadNation(ctx context.Context, id string) (*model.Nation, error) {
	query := `
		SELECT id, name, leader_claim_id, founded_at, level, treasury_account_id
		FROM nations
		WHERE id = $1` + r.forUpdate()

	var n model.Nation
	err := r.q.QueryRow(ctx, query, id).Scan(
		&n.ID,
		&n.Name,
		&n.LeaderClaimID,
		&n.FoundedAt,
		&n.Level,
		&n.TreasuryAccountID,
	)
	if err != nil {
		return nil, mapRowErr("load nation", "nation", id, err)
	}
	if err := r.loadNationMembers(ctx, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *Postgres) loadNationMembers(ctx context.Context, n *model.Nation) error {
	rows, err := r.q.Query(ctx, `SELECT claim_id, role FROM nation_members WHERE nation_id = $1`, n.ID)
	if err != nil {
		return mapErr("load nation members", err)
	}
	type memberRow struct {
		claimID string
		role    model.NationRole
	}
	members, err := collect(rows, "nation members", func(row pgx.Rows) (memberRow, error) {
		var m memberRow
		err := row.Scan(&m.claimID, &m.role)
		return m, err
	})
	if err != nil {
		return err
	}
	n.Members = make(map[string]model.NationRole, len(members))
	for _, m := range members {
		n.Members[m.claimID] = m.role
	}
	return nil
}

// SaveNation upserts a nation and replaces its member roster.
func (r *Postgres) SaveNation(ctx context.Context, n *model.Nation) error {
	return r.atomic(ctx, func(tx *Postgres) error {
		const upsert = `
			INSERT INTO nations (id, name, leader_claim_id, founded_at, level, treasury_account_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				leader_claim_id = EXCLUDED.leader_claim_id,
				level = EXCLUDED.level`
		_, err := tx.q.Exec(ctx, upsert, n.ID, n.Name, n.LeaderClaimID, n.FoundedAt, n.Level, n.TreasuryAccountID)
		if err != nil {
			return mapErr("save nation", err)
		}

		if _, err := tx.q.Exec(ctx, `DELETE FROM nation_members WHERE nation_id = $1`, n.ID); err != nil {
			return mapErr("clear nation members", err)
		}
		for claimID, role := range n.Members {
			_, err := tx.q.Exec(ctx, `
				INSERT INTO nation_members (nation_id, claim_id, role)
				VALUES ($1, $2, $3)`,
				n.ID, claimID, role)
			if err != nil {
				return mapErr("save nation member", err)
			}
		}
		return nil
	})
}

func (r *Postgres) DeleteNation(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM nations WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete nation", err)
	}
	if tag.RowsAffected() == 0 {
		return mapRowErr("delete nation", "nation", id, pgx.ErrNoRows)
	}
	return nil
}

func (r *Postgres) FindNationByClaim(ctx context.Context, claimID string) (*model.Nation, error) {
	var nationID string
	err := r.q.QueryRow(ctx, `SELECT nation_id FROM nation_members WHERE claim_id = $1`, claimID).Scan(&nationID)
	if err != nil {
		return nil, mapRowErr("find nation by claim", "nation of claim", claimID, err)
	}
	return r.LoadNation(ctx, nationID)
}

func (r *Postgres) LoadRelation(ctx context.Context, a, b string) (model.RelationType, error) {
	x, y := model.OrderedPair(a, b)
	var t model.RelationType
	err := r.q.QueryRow(ctx, `SELECT type FROM nation_relations WHERE nation_a = $1 AND nation_b = $2`, x, y).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.RelationNeutral, nil
	}
	if err != nil {
		return "", mapErr("load relation", err)
	}
	return t, nil
}

func (r *Postgres) SaveRelation(ctx context.Context, rel *model.NationRelation) error {
	x, y := model.OrderedPair(rel.NationA, rel.NationB)
	const query = `
		INSERT INTO nation_relations (nation_a, nation_b, type, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (nation_a, nation_b) DO UPDATE SET
			type = EXCLUDED.type,
			updated_at = EXCLUDED.updated_at`
	_, err := r.q.Exec(ctx, query, x, y, rel.Type, rel.UpdatedAt)
	return mapErr("save relation", err)
}

func (r *Postgres) DeleteRelation(ctx context.Context, a, b string) error {
	x, y := model.OrderedPair(a, b)
	_, err := r.q.Exec(ctx, `DELETE FROM nation_relations WHERE nation_a = $1 AND nation_b = $2`, x, y)
	return mapErr("delete relation", err)
}

func (r *Postgres) ListRelations(ctx context.Context, nationID string) ([]*model.NationRelation, error) {
	const query = `
		SELECT nation_a, nation_b, type, updated_at
		FROM nation_relations
		WHERE nation_a = $1 OR nation_b = $1
		ORDER BY nation_a, nation_b`

	rows, err := r.q.Query(ctx, query, nationID)
	if err != nil {
		return nil, mapErr("list relations", err)
	}
	return collect(rows, "relations", func(row pgx.Rows) (*model.NationRelation, error) {
		var rel model.NationRelation
		err := row.Scan(&rel.NationA, &rel.NationB, &rel.Type, &rel.UpdatedAt)
		return &rel, err
	})
}

func (r *Postgres) DeleteRelationsOf(ctx context.Context, nationID string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM nation_relations WHERE nation_a = $1 OR nation_b = $1`, nationID)
	return mapErr("delete relations", err)
}
