// Package partition implements the deterministic sync-partition assigner
// from spec §4.K: entities are split into partitions, each owned by one
// client, so continuous-sync load spreads across the room instead of the
// authority alone serializing and sending every delta.
package partition

import (
	"math"
	"sort"

	"lockstep/internal/fixed"
)

// Tier is a degradation tier derived from aggregate reliability scores.
type Tier int

const (
	TierNormal Tier = iota
	TierStressed
	TierOverloaded
)

func (t Tier) String() string {
	switch t {
	case TierStressed:
		return "stressed"
	case TierOverloaded:
		return "overloaded"
	default:
		return "normal"
	}
}

// ReliabilityTable holds per-client reliability scores and a monotonic
// version that Set bumps on every call: assignments must be recomputed
// whenever the version advances. The table takes no version from outside,
// so there is no check that rejects a stale update.
type ReliabilityTable struct {
	scores  map[string]fixed.Scalar
	version uint64
}

// NewReliabilityTable creates an empty table at version 0.
func NewReliabilityTable() *ReliabilityTable {
	return &ReliabilityTable{scores: make(map[string]fixed.Scalar)}
}

// Set updates a client's score and bumps the version.
func (r *ReliabilityTable) Set(clientID string, score fixed.Scalar) {
	r.scores[clientID] = score
	r.version++
}

// Score returns a client's score, defaulting to 1.0 (fully reliable) for
// clients never scored.
func (r *ReliabilityTable) Score(clientID string) fixed.Scalar {
	if s, ok := r.scores[clientID]; ok {
		return s
	}
	return fixed.One
}

// Version is the monotonic guard every caller must pass through unchanged.
func (r *ReliabilityTable) Version() uint64 { return r.version }

// Tier derives the degradation tier from the mean score across clients.
func (r *ReliabilityTable) Tier(activeClients []string) Tier {
	if len(activeClients) == 0 {
		return TierNormal
	}
	var sum fixed.Scalar
	for _, c := range activeClients {
		sum += r.Score(c)
	}
	mean := fixed.Div(sum, fixed.FromInt(len(activeClients)))
	switch {
	case mean < fixed.FromFloat(0.5):
		return TierOverloaded
	case mean < fixed.FromFloat(0.8):
		return TierStressed
	default:
		return TierNormal
	}
}

// Count computes partition_count = max(1, ceil(entities / k)) (spec §4.K).
func Count(entities int, k int) int {
	if k <= 0 {
		k = 1
	}
	n := int(math.Ceil(float64(entities) / float64(k)))
	if n < 1 {
		n = 1
	}
	return n
}

// Assignment maps partition id -> owning client id.
type Assignment map[int]string

// Assign computes the deterministic partition->client assignment: for each
// partition p, seed a PRNG with (frame, p), then draw a client by
// reliability-weighted sampling from sorted active clients. Given
// identical (partitionCount, sorted activeClients, frame, reliability
// scores, reliability version), every peer computes identical assignments.
func Assign(partitionCount int, activeClients []string, frame uint32, reliability *ReliabilityTable) Assignment {
	sorted := append([]string(nil), activeClients...)
	sort.Strings(sorted)
	out := make(Assignment, partitionCount)
	if len(sorted) == 0 {
		return out
	}

	weights := make([]fixed.Scalar, len(sorted))
	var total fixed.Scalar
	for i, c := range sorted {
		w := reliability.Score(c)
		if w <= 0 {
			w = fixed.FromFloat(0.01) // never fully zero out a client's draw odds
		}
		weights[i] = w
		total += w
	}

	for p := 0; p < partitionCount; p++ {
		seed := seedFor(frame, uint32(p))
		rng := fixed.NewRNG(seed)
		out[p] = weightedPick(sorted, weights, total, rng)
	}
	return out
}

func seedFor(frame, p uint32) uint32 {
	// Simple, stable mix of the two inputs into a single RNG seed; any
	// stable combination works since determinism only requires every peer
	// use the same one.
	return frame*2654435761 + p + 1
}

func weightedPick(clients []string, weights []fixed.Scalar, total fixed.Scalar, rng *fixed.RNG) string {
	if total <= 0 {
		return clients[0]
	}
	roll := fixed.Mul(fixed.NextUnit(rng), total)
	var acc fixed.Scalar
	for i, w := range weights {
		acc += w
		if roll < acc {
			return clients[i]
		}
	}
	return clients[len(clients)-1]
}
