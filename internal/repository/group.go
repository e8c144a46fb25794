package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"claims-engine/internal/model"
)

const groupColumns = `id, claim_id, name, priority, permissions, icon, color, reserved, created_at, updated_at`

func scanGroup(row pgx.Row) (*model.CustomGroup, error) {
	var (
		g     model.CustomGroup
		perms int64
	)
	err := row.Scan(
		&g.ID,
		&g.ClaimID,
		&g.Name,
		&g.Priority,
		&perms,
		&g.Icon,
		&g.Color,
		&g.Reserved,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	g.Permissions = model.PermissionSet(perms)
	return &g, err
}

func (r *Postgres) LoadGroup(ctx context.Context, id string) (*model.CustomGroup, error) {
	g, err := scanGroup(r.q.QueryRow(ctx, `SELECT `+groupColumns+` FROM custom_groups WHERE id = $1`, id))
	if err != nil {
		return nil, mapRowErr("load group", "group", id, err)
	}
	return g, nil
}

func (r *Postgres) SaveGroup(ctx context.Context, g *model.CustomGroup) error {
	const query = `
		INSERT INTO custom_groups (` + groupColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			priority = EXCLUDED.priority,
			permissions = EXCLUDED.permissions,
			icon = EXCLUDED.icon,
			color = EXCLUDED.color,
			updated_at = EXCLUDED.updated_at`
	_, err := r.q.Exec(ctx, query,
		g.ID, g.ClaimID, g.Name, g.Priority, int64(g.Permissions),
		g.Icon, g.Color, g.Reserved, g.CreatedAt, g.UpdatedAt)
	return mapErr("save group", err)
}

func (r *Postgres) DeleteGroup(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM custom_groups WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete group", err)
	}
	if tag.RowsAffected() == 0 {
		return mapRowErr("delete group", "group", id, pgx.ErrNoRows)
	}
	return nil
}

func (r *Postgres) ListGroups(ctx context.Context, claimID string) ([]*model.CustomGroup, error) {
	rows, err := r.q.Query(ctx, `SELECT `+groupColumns+` FROM custom_groups WHERE claim_id = $1 ORDER BY id`, claimID)
	if err != nil {
		return nil, mapErr("list groups", err)
	}
	return collect(rows, "groups", func(row pgx.Rows) (*model.CustomGroup, error) {
		return scanGroup(row)
	})
}
