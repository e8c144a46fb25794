// Package benefit maps claim levels to the limits and discounts they unlock.
package benefit

import (
	"errors"
	"fmt"
)

// Benefits are the perks of one claim level.
type Benefits struct {
	MaxMembers        int `mapstructure:"max_members"`
	MaxWarps          int `mapstructure:"max_warps"`
	UpkeepDiscountPct int `mapstructure:"upkeep_discount_pct"`
	WelcomeLen        int `mapstructure:"welcome_len"`
	ParticleTier      int `mapstructure:"particle_tier"`
	BonusChunkSlots   int `mapstructure:"bonus_chunk_slots"`
}

// AtLeast reports whether every field of b is >= the same field of o.
func (b Benefits) AtLeast(o Benefits) bool {
	return b.MaxMembers >= o.MaxMembers &&
		b.MaxWarps >= o.MaxWarps &&
		b.UpkeepDiscountPct >= o.UpkeepDiscountPct &&
		b.WelcomeLen >= o.WelcomeLen &&
		b.ParticleTier >= o.ParticleTier &&
		b.BonusChunkSlots >= o.BonusChunkSlots
}

// Curve is an immutable level -> Benefits table for levels [1, MaxLevel].
type Curve struct {
	tiers []Benefits
}

// Errors returned by NewCurve.
var (
	ErrNoTiers       = errors.New("benefit curve needs at least one tier")
	ErrNotMonotonic  = errors.New("benefit curve is not monotonic")
	ErrDiscountRange = errors.New("upkeep discount must be within 0..100")
)

// NewCurve validates tiers (index 0 is level 1) and builds a Curve.
func NewCurve(tiers []Benefits) (*Curve, error) {
	if len(tiers) == 0 {
		return nil, ErrNoTiers
	}
	for i, t := range tiers {
		if t.UpkeepDiscountPct < 0 || t.UpkeepDiscountPct > 100 {
			return nil, fmt.Errorf("level %d: %w", i+1, ErrDiscountRange)
		}
		if t.MaxMembers < 0 || t.MaxWarps < 0 || t.WelcomeLen < 0 || t.ParticleTier < 0 || t.BonusChunkSlots < 0 {
			return nil, fmt.Errorf("level %d: negative benefit", i+1)
		}
		if i > 0 && !t.AtLeast(tiers[i-1]) {
			return nil, fmt.Errorf("level %d: %w", i+1, ErrNotMonotonic)
		}
	}
	return &Curve{tiers: append([]Benefits(nil), tiers...)}, nil
}

// MaxLevel is the highest defined level.
func (c *Curve) MaxLevel() int {
	return len(c.tiers)
}

// ForLevel returns the benefits of level. Levels above MaxLevel clamp to the
// top tier; levels below 1 clamp to level 1.
func (c *Curve) ForLevel(level int) Benefits {
	if level < 1 {
		level = 1
	}
	if level > len(c.tiers) {
		level = len(c.tiers)
	}
	return c.tiers[level-1]
}

// DefaultTiers is the stock ten-level table. baseMembers is the level-1
// member cap; every later level adds five member slots.
func DefaultTiers(baseMembers int) []Benefits {
	tiers := make([]Benefits, 10)
	for i := range tiers {
		tiers[i] = Benefits{
			MaxMembers:        baseMembers + 5*i,
			MaxWarps:          1 + i/2,
			UpkeepDiscountPct: 3 * i,
			WelcomeLen:        32 + 16*i,
			ParticleTier:      i / 3,
			BonusChunkSlots:   2 * i,
		}
	}
	return tiers
}

// Default builds the stock curve.
func Default(baseMembers int) *Curve {
	c, err := NewCurve(DefaultTiers(baseMembers))
	if err != nil {
		panic(err)
	}
	return c
}
