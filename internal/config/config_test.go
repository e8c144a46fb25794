package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, 20, cfg.Claims.MaxMembers)
	assert.Equal(t, 24*time.Hour, cfg.War.NoticePeriod)
	assert.Equal(t, time.Minute, cfg.Scheduler.PollInterval)
	assert.Equal(t, 20, cfg.Notify.Telegram.PerMinute)
	assert.Equal(t, 5*time.Second, cfg.Notify.DrainTimeout)
	assert.Equal(t, "postgres://claims:@localhost:5432/claims?sslmode=disable", cfg.Database.DSN())

	curve, err := cfg.BenefitCurve()
	require.NoError(t, err)
	assert.Equal(t, 20, curve.ForLevel(1).MaxMembers)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := `
storage:
  driver: memory
claims:
  max_members: 5
  tiers:
    - max_members: 5
      upkeep_discount_pct: 0
    - max_members: 8
      upkeep_discount_pct: 10
war:
  notice_period: 2h
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("WAR_DECLARATION_COST", "12.50")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, 2*time.Hour, cfg.War.NoticePeriod)
	assert.Equal(t, "12.50", cfg.War.DeclarationCost)

	curve, err := cfg.BenefitCurve()
	require.NoError(t, err)
	assert.Equal(t, 2, curve.MaxLevel())
	assert.Equal(t, 10, curve.ForLevel(5).UpkeepDiscountPct)
}

func TestLoadRejectsDecreasingTiers(t *testing.T) {
	dir := t.TempDir()
	yaml := `
claims:
  tiers:
    - max_members: 10
    - max_members: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidateStorageDriver(t *testing.T) {
	cfg := &Config{
		Storage:   StorageConfig{Driver: "sqlite"},
		Claims:    ClaimsConfig{MaxMembers: 20},
		Scheduler: SchedulerConfig{PollInterval: time.Second},
	}
	assert.Error(t, cfg.Validate())

	cfg.Storage.Driver = StorageMemory
	assert.NoError(t, cfg.Validate())
}

func TestValidateDeclarationCost(t *testing.T) {
	cfg := &Config{
		Storage:   StorageConfig{Driver: StorageMemory},
		Claims:    ClaimsConfig{MaxMembers: 20},
		Scheduler: SchedulerConfig{PollInterval: time.Second},
	}
	for _, bad := range []string{"-5.00", "abc", "100000000000000000"} {
		cfg.War.DeclarationCost = bad
		assert.Error(t, cfg.Validate(), bad)
	}

	cfg.War.DeclarationCost = "12.50"
	require.NoError(t, cfg.Validate())
	cost, err := cfg.War.Cost()
	require.NoError(t, err)
	assert.Equal(t, "12.50", cost.String())
}
