package scheduler

import (
	"sync"
	"time"
)

// Groove computes per-tick wall-clock durations from a list of positive
// integer weights: each tick k within a repeating period of
// len(weights) ticks takes a duration proportional to weights[k mod n],
// normalized so the period's total duration exactly matches the
// non-grooved duration for that many ticks (absorbing float rounding on
// the period's last tick).
type Groove struct {
	mu           sync.RWMutex
	weights      []int
	ticksPerBeat int
}

// NewGroove returns a Groove for the given weights (defaulting to a flat
// {1} groove when empty) and ticksPerBeat.
func NewGroove(weights []int, ticksPerBeat int) *Groove {
	if len(weights) == 0 {
		weights = []int{1}
	}
	return &Groove{weights: weights, ticksPerBeat: ticksPerBeat}
}

// Duration returns the wall-clock duration of the k'th tick (0-based,
// globally increasing) at the given milliBPM.
func (g *Groove) Duration(k int, milliBPM int64) time.Duration {
	durations := g.periodDurations(milliBPM)
	return durations[((k%len(durations))+len(durations))%len(durations)]
}

// SetWeights replaces the groove's weight pattern in place, taking effect
// on the next Duration call. Safe to call while Play is running (the
// remote "groove" command).
func (g *Groove) SetWeights(weights []int) {
	if len(weights) == 0 {
		weights = []int{1}
	}
	g.mu.Lock()
	g.weights = weights
	g.mu.Unlock()
}

func (g *Groove) periodDurations(milliBPM int64) []time.Duration {
	g.mu.RLock()
	weights := g.weights
	g.mu.RUnlock()

	n := len(weights)
	sum := 0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		sum = n
	}
	flatTickNanos := 60e9 / (float64(g.ticksPerBeat) * float64(milliBPM) / 1000)
	periodNanos := flatTickNanos * float64(n)

	out := make([]time.Duration, n)
	var accumulated time.Duration
	for i := 0; i < n-1; i++ {
		d := time.Duration(periodNanos * float64(weights[i]) / float64(sum))
		out[i] = d
		accumulated += d
	}
	out[n-1] = time.Duration(periodNanos) - accumulated
	return out
}
