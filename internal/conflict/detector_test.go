package conflict

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fredpottier/factgov/internal/types"
)

func mkFact(status types.FactStatus, valueType types.ValueType, value string, from time.Time, until *time.Time) *types.Fact {
	return &types.Fact{
		UUID:        uuid.New(),
		TenantID:    "acme",
		Subject:     "product-x",
		Predicate:   "sla",
		ObjectValue: value,
		ValueType:   valueType,
		FactType:    types.FactServiceLevel,
		Confidence:  0.9,
		Status:      status,
		ValidFrom:   from,
		ValidUntil:  until,
	}
}

func ts(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

func until(value string) *time.Time {
	t := ts(value)
	return &t
}

func TestDetectNumericContradiction(t *testing.T) {
	approved := mkFact(types.StatusApproved, types.ValueNumeric, "99.7", ts("2024-01-01"), nil)
	proposed := mkFact(types.StatusProposed, types.ValueNumeric, "90", ts("2024-01-01"), nil)

	got := Detect(proposed, []*types.Fact{approved}, DefaultTolerance)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].ConflictType != types.ConflictContradicts {
		t.Fatalf("expected CONTRADICTS, got %s", got[0].ConflictType)
	}
	// |99.7-90| / 99.7 ~ 9.73%
	if got[0].ValueDiffPct < 0.09 || got[0].ValueDiffPct > 0.10 {
		t.Fatalf("unexpected diff %v", got[0].ValueDiffPct)
	}
}

func TestDetectToleranceBoundary(t *testing.T) {
	base := mkFact(types.StatusApproved, types.ValueNumeric, "100", ts("2024-01-01"), nil)

	// Exactly 5.00% diverged corroborates.
	atBoundary := mkFact(types.StatusProposed, types.ValueNumeric, "95", ts("2024-01-01"), nil)
	if got := Detect(atBoundary, []*types.Fact{base}, 0.05); len(got) != 0 {
		t.Fatalf("5.00%% should corroborate, got %d candidates", len(got))
	}

	// 5.01% is a conflict.
	pastBoundary := mkFact(types.StatusProposed, types.ValueNumeric, "94.99", ts("2024-01-01"), nil)
	if got := Detect(pastBoundary, []*types.Fact{base}, 0.05); len(got) != 1 {
		t.Fatalf("5.01%% should conflict, got %d candidates", len(got))
	}
}

func TestDetectSymmetry(t *testing.T) {
	a := mkFact(types.StatusApproved, types.ValueNumeric, "99.7", ts("2024-01-01"), nil)
	b := mkFact(types.StatusProposed, types.ValueNumeric, "90", ts("2024-02-01"), nil)

	ab := Detect(a, []*types.Fact{b}, DefaultTolerance)
	ba := Detect(b, []*types.Fact{a}, DefaultTolerance)
	if len(ab) != 1 || len(ba) != 1 {
		t.Fatalf("expected one candidate each way, got %d and %d", len(ab), len(ba))
	}
	if ab[0].ConflictType != ba[0].ConflictType {
		t.Fatalf("asymmetric classification: %s vs %s", ab[0].ConflictType, ba[0].ConflictType)
	}
	if ab[0].ValueDiffPct != ba[0].ValueDiffPct {
		t.Fatalf("asymmetric diff: %v vs %v", ab[0].ValueDiffPct, ba[0].ValueDiffPct)
	}
}

func TestDetectOverridesReclassification(t *testing.T) {
	approved := mkFact(types.StatusApproved, types.ValueNumeric, "99.7", ts("2024-01-01"), nil)
	newer := mkFact(types.StatusProposed, types.ValueNumeric, "99.9", ts("2024-06-01"), nil)
	// 0.2% diff corroborates, so force real divergence.
	newer.ObjectValue = "90"

	got := Detect(newer, []*types.Fact{approved}, DefaultTolerance)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].ConflictType != types.ConflictOverrides {
		t.Fatalf("later proposed against earlier approved should be OVERRIDES, got %s", got[0].ConflictType)
	}
}

func TestDetectAmbiguousWhenBothProposed(t *testing.T) {
	first := mkFact(types.StatusProposed, types.ValueNumeric, "99.7", ts("2024-01-01"), nil)
	second := mkFact(types.StatusProposed, types.ValueNumeric, "90", ts("2024-01-01"), nil)

	got := Detect(second, []*types.Fact{first}, DefaultTolerance)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].ConflictType != types.ConflictAmbiguous {
		t.Fatalf("proposed vs proposed should be AMBIGUOUS, got %s", got[0].ConflictType)
	}
}

func TestDetectTextMismatchIsHardContradiction(t *testing.T) {
	a := mkFact(types.StatusApproved, types.ValueText, "ISO 27001", ts("2024-01-01"), nil)
	b := mkFact(types.StatusProposed, types.ValueText, "SOC 2", ts("2024-01-01"), nil)
	b.ValidFrom = a.ValidFrom

	got := Detect(b, []*types.Fact{a}, DefaultTolerance)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].ValueDiffPct != 1.0 {
		t.Fatalf("non-numeric mismatch should report 1.0, got %v", got[0].ValueDiffPct)
	}

	same := mkFact(types.StatusProposed, types.ValueText, "ISO 27001", ts("2024-01-01"), nil)
	if got := Detect(same, []*types.Fact{a}, DefaultTolerance); len(got) != 0 {
		t.Fatalf("equal text should corroborate, got %d candidates", len(got))
	}
}

func TestDetectSkipsDisjointWindows(t *testing.T) {
	past := mkFact(types.StatusApproved, types.ValueNumeric, "99.7", ts("2023-01-01"), until("2023-12-31"))
	current := mkFact(types.StatusProposed, types.ValueNumeric, "90", ts("2024-01-01"), nil)

	if got := Detect(current, []*types.Fact{past}, DefaultTolerance); len(got) != 0 {
		t.Fatalf("disjoint windows should never conflict, got %d candidates", len(got))
	}

	// Touching at the boundary is not an overlap either.
	touching := mkFact(types.StatusApproved, types.ValueNumeric, "99.7", ts("2023-01-01"), until("2024-01-01"))
	if got := Detect(current, []*types.Fact{touching}, DefaultTolerance); got != nil {
		t.Fatalf("touching windows should never conflict, got %d candidates", len(got))
	}
}

func TestDetectIgnoresOtherKeysAndSelf(t *testing.T) {
	candidate := mkFact(types.StatusProposed, types.ValueNumeric, "90", ts("2024-01-01"), nil)

	otherPredicate := mkFact(types.StatusApproved, types.ValueNumeric, "99.7", ts("2024-01-01"), nil)
	otherPredicate.Predicate = "uptime"
	otherTenant := mkFact(types.StatusApproved, types.ValueNumeric, "99.7", ts("2024-01-01"), nil)
	otherTenant.TenantID = "globex"

	got := Detect(candidate, []*types.Fact{otherPredicate, otherTenant, candidate}, DefaultTolerance)
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %d", len(got))
	}
}

func TestDetectBooleanMismatch(t *testing.T) {
	a := mkFact(types.StatusApproved, types.ValueBoolean, "true", ts("2024-01-01"), nil)
	b := mkFact(types.StatusProposed, types.ValueBoolean, "false", ts("2024-03-01"), nil)

	got := Detect(b, []*types.Fact{a}, DefaultTolerance)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].ConflictType != types.ConflictOverrides {
		t.Fatalf("later proposed boolean against approved should be OVERRIDES, got %s", got[0].ConflictType)
	}
	if got[0].ValueDiffPct != 1.0 {
		t.Fatalf("boolean mismatch should report 1.0, got %v", got[0].ValueDiffPct)
	}
}

func TestValueDivergenceZeroDenominator(t *testing.T) {
	a := mkFact(types.StatusApproved, types.ValueNumeric, "0", ts("2024-01-01"), nil)
	b := mkFact(types.StatusProposed, types.ValueNumeric, "0", ts("2024-01-01"), nil)

	diff, conflicting := ValueDivergence(a, b, DefaultTolerance)
	if conflicting || diff != 0 {
		t.Fatalf("identical zeros should corroborate, diff=%v conflicting=%v", diff, conflicting)
	}
}
