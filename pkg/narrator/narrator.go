// Package narrator turns game events into instruction text and short
// context pushes for the voice session. It is a string-building policy
// layer: it decides whether an event is worth a system message and
// composes the text, while the session's queue bounds the volume.
package narrator

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/paddleworks/go-courtside/pkg/game"
)

// Composer watches a game snapshot and pushes commentary context through
// the injected send func, usually Session.SendSystem.
type Composer struct {
	cfg    *Config
	logger *slog.Logger
	snap   *game.Snapshot
	send   func(text string) error

	mu        sync.Mutex
	rng       *rand.Rand
	lastPush  time.Time
	announced map[int]bool
}

// New creates a composer over snap. send delivers one context string;
// errors from it are logged and swallowed, commentary is best effort.
func New(snap *game.Snapshot, send func(string) error, opts ...Option) *Composer {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	return &Composer{
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "narrator"),
		snap:      snap,
		send:      send,
		rng:       cfg.Rand,
		announced: make(map[int]bool),
	}
}

// Instructions builds the per-session instruction text. Called once per
// session establishment.
func (c *Composer) Instructions() string {
	return "You are an energetic courtside announcer for a virtual reality " +
		"table tennis match between a human player and an AI opponent. " +
		"Keep remarks short, one or two sentences, and react to what just " +
		"happened rather than recapping the whole match. You know the " +
		"rules of table tennis and the game's power-up that briefly slows " +
		"the AI paddle. Be encouraging toward the player but fair to both " +
		"sides. Never break character."
}

// Greeting is the first line pushed after the session opens.
func (c *Composer) Greeting() string {
	return "Greet the crowd and welcome the player to the table in one short sentence."
}

// HandleEvent updates the snapshot and may push a context string. Safe
// for concurrent use.
func (c *Composer) HandleEvent(ev *game.Event) {
	c.snap.Apply(ev)

	switch ev.Type {
	case game.TypeGameStarted:
		c.mu.Lock()
		c.announced = make(map[int]bool)
		c.mu.Unlock()
		c.push("A new game has started. Score is reset to zero.", true)

	case game.TypeGameEnded:
		c.handleEnd(ev)

	case game.TypeScoreUpdate:
		c.handleScore(ev)

	case game.TypeCollision:
		c.handleCollision(ev)

	case game.TypeTimerUpdate:
		c.handleTimer(ev)

	case game.TypeSlowdownStart:
		c.push("The player activated the slow-motion power-up. The AI paddle is sluggish for a few seconds.", false)

	case game.TypeSlowdownEnd:
		c.push("The slow-motion power-up wore off. The AI paddle is back to full speed.", false)
	}
}

func (c *Composer) handleEnd(ev *game.Event) {
	end, err := ev.GetEndData()
	if err != nil {
		c.logger.Warn("malformed game-ended payload", "error", err)
		return
	}

	var text string
	switch end.Winner {
	case "player":
		text = fmt.Sprintf("The game is over and the player wins %d to %d. Congratulate them on the victory.",
			end.PlayerScore, end.AIScore)
	case "ai":
		text = fmt.Sprintf("The game is over and the AI wins %d to %d. Commiserate briefly and encourage a rematch.",
			end.AIScore, end.PlayerScore)
	default:
		text = fmt.Sprintf("The game ended in a %d to %d tie. Remark on how close it was.",
			end.PlayerScore, end.AIScore)
	}
	c.push(text, true)
}

func (c *Composer) handleScore(ev *game.Event) {
	score, err := ev.GetScoreData()
	if err != nil {
		c.logger.Warn("malformed score payload", "error", err)
		return
	}

	who := "The AI scored"
	if score.Scorer == "player" {
		who = "The player scored"
	}
	text := fmt.Sprintf("%s. The score is now player %d, AI %d.", who, score.Player, score.AI)

	if tip := c.maybeTip(score.Player, score.AI); tip != "" {
		text += " " + tip
	}
	c.push(text, false)
}

// maybeTip rolls for a coaching tip. The player being behind raises the
// chance, being comfortably ahead lowers it.
func (c *Composer) maybeTip(player, ai int) string {
	chance := c.cfg.TipChance
	diff := player - ai
	switch {
	case diff <= -c.cfg.MarginForBias:
		chance = c.cfg.BehindTipChance
	case diff >= c.cfg.MarginForBias:
		chance = c.cfg.AheadTipChance
	}

	c.mu.Lock()
	roll := c.rng.Float64()
	c.mu.Unlock()
	if roll >= chance {
		return ""
	}

	tips := []string{
		"Offer a quick tip about watching the ball's spin.",
		"Suggest the player vary their serve placement.",
		"Remind the player that the slow-motion power-up charges with long rallies.",
		"Suggest aiming for the corners of the table.",
	}
	c.mu.Lock()
	tip := tips[c.rng.Intn(len(tips))]
	c.mu.Unlock()
	return tip
}

func (c *Composer) handleCollision(ev *game.Event) {
	col, err := ev.GetCollisionData()
	if err != nil || col.Surface != "paddle" {
		return
	}

	hits := c.snap.RallyHits()
	if hits < c.cfg.RallyMilestone || hits%c.cfg.RallyMilestone != 0 {
		return
	}

	c.mu.Lock()
	roll := c.rng.Float64()
	c.mu.Unlock()
	if roll >= c.cfg.RallyChance {
		return
	}

	c.push(fmt.Sprintf("The current rally has reached %d hits. React to the long exchange.", hits), false)
}

func (c *Composer) handleTimer(ev *game.Event) {
	timer, err := ev.GetTimerData()
	if err != nil || !timer.Running {
		return
	}

	// Pick the tightest threshold the clock has crossed so that once
	// the 60s mark is announced the 30s and 10s crossings still fire.
	crossed := -1
	for _, threshold := range c.cfg.TimerThresholds {
		if timer.SecondsLeft <= threshold && (crossed < 0 || threshold < crossed) {
			crossed = threshold
		}
	}
	if crossed < 0 {
		return
	}

	c.mu.Lock()
	done := c.announced[crossed]
	if !done {
		c.announced[crossed] = true
	}
	c.mu.Unlock()
	if done {
		return
	}
	c.push(fmt.Sprintf("Only %d seconds remain on the match clock. Mention the time pressure.", timer.SecondsLeft), false)
}

// push sends one context string, subject to the minimum gap unless the
// event is unskippable (game start and end always go through).
func (c *Composer) push(text string, always bool) {
	now := time.Now()

	c.mu.Lock()
	if !always && now.Sub(c.lastPush) < c.cfg.MinGap {
		c.mu.Unlock()
		c.logger.Debug("narration suppressed by min gap")
		return
	}
	c.lastPush = now
	c.mu.Unlock()

	if err := c.send(text); err != nil {
		c.logger.Debug("narration not delivered", "error", err)
	}
}
