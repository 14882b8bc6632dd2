// Package clock derives remaining game time from real elapsed deltas.
// Nothing here ticks; callers reconcile at the instant an event arrives.
package clock

import (
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

// Clocks holds remaining seconds per side.
type Clocks struct {
	White float64 `json:"w"`
	Black float64 `json:"b"`
}

func Start(tc domain.TimeControl) Clocks {
	return Clocks{White: tc.BaseSeconds, Black: tc.BaseSeconds}
}

func (c Clocks) Get(col domain.Color) float64 {
	if col == domain.Black {
		return c.Black
	}
	return c.White
}

func (c *Clocks) Set(col domain.Color, v float64) {
	if v < 0 {
		v = 0
	}
	if col == domain.Black {
		c.Black = v
		return
	}
	c.White = v
}

// Reconcile charges the mover for time since last. A zero last means the
// clock has not started and nothing is charged. flagged reports that the
// mover's time is exhausted; the returned clocks are clamped at zero.
func Reconcile(c Clocks, mover domain.Color, last, now time.Time) (Clocks, bool) {
	elapsed := 0.0
	if !last.IsZero() && now.After(last) {
		elapsed = now.Sub(last).Seconds()
	}
	left := c.Get(mover) - elapsed
	out := c
	out.Set(mover, left)
	return out, left <= 0
}

// Increment credits the mover after a legal move.
func Increment(c Clocks, mover domain.Color, inc float64) Clocks {
	out := c
	out.Set(mover, c.Get(mover)+inc)
	return out
}

// Display is the read-only view for broadcasts: the side to move is shown
// with elapsed time already deducted.
func Display(c Clocks, turn domain.Color, last, now time.Time) Clocks {
	out, _ := Reconcile(c, turn, last, now)
	return out
}
