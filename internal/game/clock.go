package game

import (
	"math"
	"time"
)

// Remaining is the whole seconds left until deadline as seen from now,
// rounded to nearest and never negative. A zero deadline yields zero.
func Remaining(deadline, now time.Time) int {
	if deadline.IsZero() {
		return 0
	}
	secs := float64(deadline.Sub(now)) / float64(time.Second)
	if secs <= 0 {
		return 0
	}
	return int(math.Round(secs))
}

// Countdown is an observer's local view of the question clock. It only
// stores the published deadline and a skew learned from authoritative
// ticks; the displayed value is recomputed from (deadline, now) on demand.
type Countdown struct {
	deadline time.Time
	skew     time.Duration
	frozen   bool
	frozenAt int
}

// Start resets the countdown for a new question. A zero deadline means
// the question is untimed.
func (c *Countdown) Start(deadline time.Time) {
	*c = Countdown{deadline: deadline}
}

// Nudge applies an authoritative remaining value observed at now. The
// difference between the local and authoritative views becomes the skew
// applied to later recomputations. Ignored while frozen.
func (c *Countdown) Nudge(remaining int, now time.Time) {
	if c.frozen || c.deadline.IsZero() {
		return
	}
	authoritative := now.Add(time.Duration(remaining) * time.Second)
	c.skew = authoritative.Sub(c.deadline)
}

// Freeze pins the displayed value until the next Start.
func (c *Countdown) Freeze(at int) {
	if c.frozen {
		return
	}
	c.frozen = true
	c.frozenAt = max(0, at)
}

// FreezeNow pins the value currently displayed at now.
func (c *Countdown) FreezeNow(now time.Time) {
	v, _ := c.Value(now)
	c.Freeze(v)
}

// Frozen reports whether Freeze has been applied since Start.
func (c *Countdown) Frozen() bool { return c.frozen }

// Deadline is the published deadline, zero when untimed.
func (c *Countdown) Deadline() time.Time { return c.deadline }

// Value returns the seconds to display and whether the question is timed.
func (c *Countdown) Value(now time.Time) (int, bool) {
	if c.deadline.IsZero() {
		return 0, false
	}
	if c.frozen {
		return c.frozenAt, true
	}
	return Remaining(c.deadline.Add(c.skew), now), true
}
