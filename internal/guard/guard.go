// Package guard implements the determinism guard from spec §4.P: host
// primitives that are non-deterministic across peers (wall-clock, the
// platform random source, floating-point sqrt) are wrapped so that any
// call made while the kernel is mid-tick is caught and redirected toward
// the simulation's own deterministic equivalents.
package guard

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"lockstep/internal/fixed"
)

// Guard tracks the kernel's is_simulating flag and intercepts
// non-deterministic calls made while it is set.
type Guard struct {
	mu           sync.Mutex
	isSimulating bool
	warned       map[string]bool
	strict       bool
	log          *logrus.Entry
}

// New creates an uninstalled guard. Install must be called once per
// process; subsequent calls are no-ops since wrapping is uninstallable
// (spec §4.P).
func New(log *logrus.Entry, strict bool) *Guard {
	return &Guard{warned: make(map[string]bool), strict: strict, log: log}
}

var installed *Guard
var installOnce sync.Once

// Install activates g as the process-wide guard. Only the first call has
// effect; the wrapping it installs cannot be removed afterward.
func Install(g *Guard) {
	installOnce.Do(func() { installed = g })
}

// Enable sets the is_simulating flag; call at the start of a tick.
func (g *Guard) Enable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.isSimulating = true
}

// Disable clears the is_simulating flag; call at the end of a tick.
func (g *Guard) Disable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.isSimulating = false
}

// IsSimulating reports whether a tick is currently executing.
func (g *Guard) IsSimulating() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isSimulating
}

func (g *Guard) warnOnce(primitive, replacement string) {
	g.mu.Lock()
	already := g.warned[primitive]
	g.warned[primitive] = true
	g.mu.Unlock()
	if already {
		return
	}
	if g.log != nil {
		g.log.WithFields(logrus.Fields{
			"primitive":   primitive,
			"replacement": replacement,
		}).Warn("non-deterministic host primitive invoked during simulation")
	}
}

// Random wraps math/rand.Float64. During a tick it warns (or, in strict
// mode, panics — the caller programming error is unrecoverable mid-tick)
// and redirects to fixed.RNG via rng.
func (g *Guard) Random(rng *fixed.RNG) float64 {
	if g.IsSimulating() {
		g.warnOnce("random", "dRandom")
		if g.strict {
			panic("guard: non-deterministic random call during simulation (strict mode)")
		}
		return fixed.NextUnit(rng).ToFloat()
	}
	return rand.Float64()
}

// Sqrt wraps math.Sqrt. During a tick it warns/panics and redirects to
// fixed.Sqrt.
func (g *Guard) Sqrt(v float64) float64 {
	if g.IsSimulating() {
		g.warnOnce("sqrt", "dSqrt")
		if g.strict {
			panic("guard: non-deterministic sqrt call during simulation (strict mode)")
		}
		return fixed.Sqrt(fixed.FromFloat(v)).ToFloat()
	}
	return math.Sqrt(v)
}

// Now wraps wall-clock time.Now. During a tick it warns/panics and
// redirects to the simulation's tick-derived time (tickTime).
func (g *Guard) Now(tickTime time.Time) time.Time {
	if g.IsSimulating() {
		g.warnOnce("time.Now", "tick-derived time")
		if g.strict {
			panic("guard: non-deterministic clock call during simulation (strict mode)")
		}
		return tickTime
	}
	return time.Now()
}

// Reset clears one-time warning state, used by tests that need to observe
// the warning fire more than once per process.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.warned = make(map[string]bool)
}
