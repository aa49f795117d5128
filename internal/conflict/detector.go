// Package conflict classifies pairs of facts sharing a conflict key.
// Detection is a pure function over in-memory facts so it can be exercised
// against literal fixtures with no store behind it.
package conflict

import (
	"math"
	"time"

	"github.com/fredpottier/factgov/internal/types"
)

const (
	// DefaultTolerance is the numeric divergence below which two values
	// corroborate rather than contradict. Overridable via configuration.
	DefaultTolerance = 0.05

	// epsilon guards the divergence denominator against zero values.
	epsilon = 1e-9
)

// Detect compares candidate against existing facts and returns one
// ConflictCandidate per conflicting pair. Facts on a different conflict key
// or with disjoint valid-time windows are skipped. Classification is
// symmetric: Detect(a, [b]) and Detect(b, [a]) agree on conflict_type and
// value_diff_pct.
func Detect(candidate *types.Fact, existing []*types.Fact, tolerance float64) []types.ConflictCandidate {
	if candidate == nil {
		return nil
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	now := time.Now().UTC()

	var out []types.ConflictCandidate
	for _, other := range existing {
		if other == nil || other.UUID == candidate.UUID {
			continue
		}
		if !candidate.SameKey(other) {
			continue
		}
		if !candidate.OverlapsWindow(other) {
			continue
		}
		diff, conflicting := ValueDivergence(candidate, other, tolerance)
		if !conflicting {
			continue
		}
		out = append(out, types.ConflictCandidate{
			FactA:        candidate,
			FactB:        other,
			ConflictType: classify(candidate, other),
			ValueDiffPct: diff,
			DetectedAt:   now,
		})
	}
	return out
}

// ValueDivergence returns the relative difference between two fact values
// and whether that difference counts as a conflict. Numeric pairs use
// |v1-v2| / max(|v1|, |v2|, eps) against the tolerance, boundary inclusive.
// Non-numeric mismatches are hard contradictions reported as 1.0. Facts
// whose values fail to parse are treated as contradicting: a malformed
// stored value must reach a reviewer, not vanish from the queue.
func ValueDivergence(a, b *types.Fact, tolerance float64) (float64, bool) {
	va, errA := a.Value()
	vb, errB := b.Value()
	if errA != nil || errB != nil {
		return 1.0, true
	}
	if va.Kind == types.ValueNumeric && vb.Kind == types.ValueNumeric {
		denom := math.Max(math.Max(math.Abs(va.Number), math.Abs(vb.Number)), epsilon)
		diff := math.Abs(va.Number-vb.Number) / denom
		return diff, diff > tolerance
	}
	if va.Equal(vb) {
		return 0, false
	}
	return 1.0, true
}

// classify refines a contradicting pair. When an approved fact meets a
// proposed fact whose valid_from starts later, truncating the approved
// window at the new valid_from removes the overlap entirely, so the pair is
// a legitimate supersession (OVERRIDES). Two proposed facts with no
// approved arbiter are AMBIGUOUS and must go to a human. Everything else
// stays CONTRADICTS.
func classify(a, b *types.Fact) types.ConflictType {
	if a.Status == types.StatusProposed && b.Status == types.StatusProposed {
		return types.ConflictAmbiguous
	}
	approved, proposed := orient(a, b)
	if approved != nil && proposed != nil && proposed.ValidFrom.After(approved.ValidFrom) {
		return types.ConflictOverrides
	}
	return types.ConflictContradicts
}

func orient(a, b *types.Fact) (approved, proposed *types.Fact) {
	if a.Status == types.StatusApproved && b.Status == types.StatusProposed {
		return a, b
	}
	if b.Status == types.StatusApproved && a.Status == types.StatusProposed {
		return b, a
	}
	return nil, nil
}
