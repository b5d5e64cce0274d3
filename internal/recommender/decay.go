// Package recommender implements the personalized ranking engine: activity
// feature extraction, similarity computation, signal scoring, and feed
// assembly. Everything is computed on read with lightweight heuristics;
// there is no trained model and no offline pipeline.
package recommender

import (
	"math"
	"time"
)

// ln(2), fixed so the decay curve is bit-reproducible everywhere it is used.
const halfLifeLn2 = 0.693

// Engine holds the scoring configuration. All methods are pure functions of
// their inputs plus the configured weight tables, which makes the engine
// safe for concurrent use.
type Engine struct {
	cfg *Config
}

// NewEngine creates an engine with the given scoring configuration.
func NewEngine(cfg *Config) *Engine {
	return &Engine{cfg: cfg}
}

// DaysSince returns the fractional number of days between t and now.
// Future timestamps count as zero days.
func DaysSince(now, t time.Time) float64 {
	d := now.Sub(t)
	if d <= 0 {
		return 0
	}
	return d.Hours() / 24
}

// Decay is the shared temporal-decay primitive: an exponential curve with
// the configured half-life, floored so stale preferences never vanish
// entirely. Decay(0 days) == 1.
func (e *Engine) Decay(now, t time.Time) float64 {
	return e.decayDays(DaysSince(now, t))
}

func (e *Engine) decayDays(days float64) float64 {
	if days <= 0 {
		return 1
	}
	v := math.Exp(-halfLifeLn2 * days / e.cfg.DecayHalfLifeDays)
	if v < e.cfg.DecayFloor {
		return e.cfg.DecayFloor
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
