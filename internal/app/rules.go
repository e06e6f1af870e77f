package app

import "time"

// Fixed game constants. Rules fall back to these for any zero field.
const (
	DefaultTimeLimit          = 30
	DefaultBasePoints         = 10
	DefaultDoublePointsFactor = 2
	DefaultStreakThreshold    = 3
	DefaultStreakBonus        = 5
	DefaultExtraTimeBonus     = 10
	DefaultPowerUpUses        = 2
	DefaultRevealDelay        = time.Second
	DefaultTickInterval       = time.Second
)

// Rules parameterizes scoring and timing of a session.
type Rules struct {
	// TimeLimit is the countdown per question, in ticks.
	TimeLimit          int
	BasePoints         int
	DoublePointsFactor int
	// StreakThreshold is the streak held before an answer that earns StreakBonus.
	StreakThreshold int
	StreakBonus     int
	ExtraTimeBonus  int
	PowerUpUses     int
	RevealDelay     time.Duration
	TickInterval    time.Duration
}

// DefaultRules returns the standard game constants.
func DefaultRules() Rules {
	return Rules{}.WithDefaults()
}

// WithDefaults fills every unset field with its default constant.
func (r Rules) WithDefaults() Rules {
	if r.TimeLimit <= 0 {
		r.TimeLimit = DefaultTimeLimit
	}
	if r.BasePoints <= 0 {
		r.BasePoints = DefaultBasePoints
	}
	if r.DoublePointsFactor <= 0 {
		r.DoublePointsFactor = DefaultDoublePointsFactor
	}
	if r.StreakThreshold <= 0 {
		r.StreakThreshold = DefaultStreakThreshold
	}
	if r.StreakBonus <= 0 {
		r.StreakBonus = DefaultStreakBonus
	}
	if r.ExtraTimeBonus <= 0 {
		r.ExtraTimeBonus = DefaultExtraTimeBonus
	}
	if r.PowerUpUses <= 0 {
		r.PowerUpUses = DefaultPowerUpUses
	}
	if r.RevealDelay <= 0 {
		r.RevealDelay = DefaultRevealDelay
	}
	if r.TickInterval <= 0 {
		r.TickInterval = DefaultTickInterval
	}
	return r
}
