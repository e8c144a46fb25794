package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		owner_kind TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		closed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	// Ledger rows are never deleted, even when the account closes.
	`CREATE TABLE IF NOT EXISTS ledger_transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		seq BIGINT NOT NULL,
		type VARCHAR(32) NOT NULL,
		amount BIGINT NOT NULL,
		actor_id TEXT,
		description TEXT,
		balance_after BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (account_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		region TEXT NOT NULL,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		level INT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS claim_cells (
		claim_id TEXT NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
		region TEXT NOT NULL,
		x INT NOT NULL,
		z INT NOT NULL,
		PRIMARY KEY (region, x, z)
	)`,
	`CREATE INDEX IF NOT EXISTS claim_cells_claim ON claim_cells (claim_id)`,
	`CREATE TABLE IF NOT EXISTS custom_groups (
		id TEXT PRIMARY KEY,
		claim_id TEXT NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		priority INT NOT NULL,
		permissions BIGINT NOT NULL,
		icon TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		reserved BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS custom_groups_claim_name ON custom_groups (claim_id, lower(name))`,
	`CREATE TABLE IF NOT EXISTS claim_members (
		claim_id TEXT NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
		member_id TEXT NOT NULL,
		legacy_group VARCHAR(16),
		custom_group_id TEXT REFERENCES custom_groups(id) ON DELETE CASCADE,
		PRIMARY KEY (claim_id, member_id),
		CHECK ((legacy_group IS NULL) <> (custom_group_id IS NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS nations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		leader_claim_id TEXT NOT NULL,
		founded_at TIMESTAMPTZ NOT NULL,
		level INT NOT NULL DEFAULT 1,
		treasury_account_id TEXT NOT NULL REFERENCES accounts(id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS nations_name ON nations (lower(name))`,
	`CREATE TABLE IF NOT EXISTS nation_members (
		nation_id TEXT NOT NULL REFERENCES nations(id) ON DELETE CASCADE,
		claim_id TEXT NOT NULL UNIQUE,
		role VARCHAR(16) NOT NULL,
		PRIMARY KEY (nation_id, claim_id)
	)`,
	`CREATE TABLE IF NOT EXISTS nation_relations (
		nation_a TEXT NOT NULL,
		nation_b TEXT NOT NULL,
		type VARCHAR(16) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (nation_a, nation_b),
		CHECK (nation_a < nation_b)
	)`,
	`CREATE TABLE IF NOT EXISTS wars (
		id TEXT PRIMARY KEY,
		attacker_id TEXT NOT NULL,
		defender_id TEXT NOT NULL,
		declared_at TIMESTAMPTZ NOT NULL,
		activated_at TIMESTAMPTZ,
		ended_at TIMESTAMPTZ,
		state VARCHAR(16) NOT NULL,
		reason TEXT,
		outcome_kind VARCHAR(16),
		winner_id TEXT,
		loser_id TEXT
	)`,
	// At most one non-ENDED war per unordered pair.
	`CREATE UNIQUE INDEX IF NOT EXISTS wars_open_pair
		ON wars (LEAST(attacker_id, defender_id), GREATEST(attacker_id, defender_id))
		WHERE state <> 'ENDED'`,
	`CREATE INDEX IF NOT EXISTS wars_state ON wars (state, declared_at)`,
	`CREATE TABLE IF NOT EXISTS war_shields (
		nation_id TEXT PRIMARY KEY,
		expires_at TIMESTAMPTZ NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS war_tributes (
		id TEXT PRIMARY KEY,
		war_id TEXT NOT NULL REFERENCES wars(id),
		proposer_id TEXT NOT NULL,
		amount BIGINT NOT NULL DEFAULT 0,
		surrender BOOLEAN NOT NULL DEFAULT FALSE,
		truce BOOLEAN NOT NULL DEFAULT FALSE,
		status VARCHAR(16) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		responded_at TIMESTAMPTZ
	)`,
}

// Migrate applies the database schema. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	log.Info().Int("statements", len(schema)).Msg("Database schema up to date")
	return nil
}
