package narrator

import (
	"log/slog"
	"math/rand"
	"time"
)

// Config holds the commentary policy knobs.
type Config struct {
	// TipChance is the base probability of attaching a coaching tip to
	// a score update.
	TipChance float64

	// BehindTipChance applies when the player trails by MarginForBias
	// or more.
	BehindTipChance float64

	// AheadTipChance applies when the player leads by MarginForBias or
	// more.
	AheadTipChance float64

	// MarginForBias is the score difference that switches the tip
	// probability.
	MarginForBias int

	// RallyMilestone is the paddle-hit count at which a rally becomes
	// worth mentioning. Multiples count too.
	RallyMilestone int

	// RallyChance is the probability of mentioning a milestone rally.
	RallyChance float64

	// TimerThresholds are the seconds-remaining marks announced once
	// per game, highest first.
	TimerThresholds []int

	// MinGap is the minimum spacing between pushes. Game start and end
	// bypass it.
	MinGap time.Duration

	// Rand drives the probabilistic throttling. Tests inject a seeded
	// source.
	Rand *rand.Rand

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// DefaultConfig returns the tuned commentary policy.
func DefaultConfig() *Config {
	return &Config{
		TipChance:       0.3,
		BehindTipChance: 0.6,
		AheadTipChance:  0.1,
		MarginForBias:   3,
		RallyMilestone:  5,
		RallyChance:     0.5,
		TimerThresholds: []int{60, 30, 10},
		MinGap:          2 * time.Second,
		Rand:            rand.New(rand.NewSource(time.Now().UnixNano())),
		Logger:          slog.Default(),
	}
}

// Option mutates a Config.
type Option func(*Config)

// Apply applies the options in order.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// WithTipChances sets the base, behind and ahead tip probabilities.
func WithTipChances(base, behind, ahead float64) Option {
	return func(c *Config) {
		c.TipChance = base
		c.BehindTipChance = behind
		c.AheadTipChance = ahead
	}
}

// WithRallyPolicy sets the rally milestone and mention probability.
func WithRallyPolicy(milestone int, chance float64) Option {
	return func(c *Config) {
		c.RallyMilestone = milestone
		c.RallyChance = chance
	}
}

// WithTimerThresholds sets the announced clock marks, highest first.
func WithTimerThresholds(thresholds []int) Option {
	return func(c *Config) {
		c.TimerThresholds = thresholds
	}
}

// WithMinGap sets the minimum spacing between pushes.
func WithMinGap(d time.Duration) Option {
	return func(c *Config) {
		c.MinGap = d
	}
}

// WithRand sets the random source.
func WithRand(r *rand.Rand) Option {
	return func(c *Config) {
		c.Rand = r
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
