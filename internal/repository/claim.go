package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"claims-engine/internal/model"
)

// LoadClaim loads a claim with its cells and members.
func (r *Postgres) LoadClaim(ctx context.Context, id string) (*model.Claim, error) {
	query := `
		SELECT id, owner_id, region, account_id, level, created_at, updated_at
		FROM claims
		WHERE id = $1` + r.forUpdate()

	var c model.Claim
	err := r.q.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.OwnerID,
		&c.Region,
		&c.AccountID,
		&c.Level,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, mapRowErr("load claim", "claim", id, err)
	}

	rows, err := r.q.Query(ctx, `SELECT x, z FROM claim_cells WHERE claim_id = $1 ORDER BY x, z`, id)
	if err != nil {
		return nil, mapErr("load claim cells", err)
	}
	c.Cells, err = collect(rows, "claim cells", func(row pgx.Rows) (model.Cell, error) {
		var cell model.Cell
		err := row.Scan(&cell.X, &cell.Z)
		return cell, err
	})
	if err != nil {
		return nil, err
	}

	rows, err = r.q.Query(ctx, `
		SELECT member_id, legacy_group, custom_group_id
		FROM claim_members
		WHERE claim_id = $1`, id)
	if err != nil {
		return nil, mapErr("load claim members", err)
	}
	type memberRow struct {
		id  string
		ref model.GroupRef
	}
	members, err := collect(rows, "claim members", func(row pgx.Rows) (memberRow, error) {
		var (
			m        memberRow
			legacy   *string
			customID *string
		)
		if err := row.Scan(&m.id, &legacy, &customID); err != nil {
			return m, err
		}
		m.ref = decodeGroupRef(legacy, customID)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	c.Members = make(map[string]model.GroupRef, len(members))
	for _, m := range members {
		c.Members[m.id] = m.ref
	}
	return &c, nil
}

// SaveClaim upserts a claim and replaces its cells and members.
func (r *Postgres) SaveClaim(ctx context.Context, c *model.Claim) error {
	return r.atomic(ctx, func(tx *Postgres) error {
		const upsert = `
			INSERT INTO claims (id, owner_id, region, account_id, level, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				owner_id = EXCLUDED.owner_id,
				region = EXCLUDED.region,
				account_id = EXCLUDED.account_id,
				level = EXCLUDED.level,
				updated_at = EXCLUDED.updated_at`
		_, err := tx.q.Exec(ctx, upsert, c.ID, c.OwnerID, c.Region, c.AccountID, c.Level, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return mapErr("save claim", err)
		}

		if _, err := tx.q.Exec(ctx, `DELETE FROM claim_cells WHERE claim_id = $1`, c.ID); err != nil {
			return mapErr("clear claim cells", err)
		}
		if len(c.Cells) > 0 {
			xs := make([]int32, len(c.Cells))
			zs := make([]int32, len(c.Cells))
			for i, cell := range c.Cells {
				xs[i], zs[i] = cell.X, cell.Z
			}
			_, err := tx.q.Exec(ctx, `
				INSERT INTO claim_cells (claim_id, region, x, z)
				SELECT $1, $2, cell.x, cell.z
				FROM unnest($3::int[], $4::int[]) AS cell(x, z)`,
				c.ID, c.Region, xs, zs)
			if err != nil {
				return mapErr("save claim cells", err)
			}
		}

		if _, err := tx.q.Exec(ctx, `DELETE FROM claim_members WHERE claim_id = $1`, c.ID); err != nil {
			return mapErr("clear claim members", err)
		}
		for memberID, ref := range c.Members {
			legacy, customID := encodeGroupRef(ref)
			_, err := tx.q.Exec(ctx, `
				INSERT INTO claim_members (claim_id, member_id, legacy_group, custom_group_id)
				VALUES ($1, $2, $3, $4)`,
				c.ID, memberID, legacy, customID)
			if err != nil {
				return mapErr("save claim member", err)
			}
		}
		return nil
	})
}

// DeleteClaim removes a claim; cells, members and groups cascade.
func (r *Postgres) DeleteClaim(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM claims WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete claim", err)
	}
	if tag.RowsAffected() == 0 {
		return mapRowErr("delete claim", "claim", id, pgx.ErrNoRows)
	}
	return nil
}

func encodeGroupRef(ref model.GroupRef) (legacy, customID *string) {
	if tag, ok := ref.Legacy(); ok {
		s := tag.String()
		return &s, nil
	}
	if id, ok := ref.Custom(); ok {
		return nil, &id
	}
	return nil, nil
}

func decodeGroupRef(legacy, customID *string) model.GroupRef {
	if customID != nil {
		return model.CustomRef(*customID)
	}
	if legacy != nil {
		if tag, ok := model.ParseLegacyGroup(*legacy); ok {
			return model.LegacyRef(tag)
		}
	}
	return model.GroupRef{}
}
