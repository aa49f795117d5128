package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/fredpottier/factgov/internal/pkg/errors"
	"github.com/fredpottier/factgov/internal/types"
)

func newFact(tenant string, value string, from time.Time) *types.Fact {
	return &types.Fact{
		TenantID:    tenant,
		Subject:     "product-x",
		Predicate:   "sla",
		ObjectValue: value,
		ValueType:   types.ValueNumeric,
		FactType:    types.FactServiceLevel,
		Confidence:  0.9,
		ValidFrom:   from,
	}
}

func date(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("bad fixture date %q", value)
	}
	return parsed
}

func TestCreateFactAssignsIdentity(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	created, err := m.CreateFact(ctx, newFact("acme", "99.7", date(t, "2024-01-01")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.UUID == uuid.Nil {
		t.Fatalf("expected assigned uuid")
	}
	if created.Status != types.StatusProposed {
		t.Fatalf("expected proposed, got %s", created.Status)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatalf("expected transaction-time stamps")
	}
}

func TestCreateFactValidation(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	bad := newFact("acme", "99.7", date(t, "2024-01-01"))
	bad.Confidence = 1.5
	if _, err := m.CreateFact(ctx, bad); !pkgerrors.Is(err, pkgerrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	bad = newFact("acme", "not-a-number", date(t, "2024-01-01"))
	if _, err := m.CreateFact(ctx, bad); !pkgerrors.Is(err, pkgerrors.ErrValidation) {
		t.Fatalf("expected validation error for untyped value, got %v", err)
	}

	bad = newFact("acme", "99.7", date(t, "2024-06-01"))
	early := date(t, "2024-01-01")
	bad.ValidUntil = &early
	if _, err := m.CreateFact(ctx, bad); !pkgerrors.Is(err, pkgerrors.ErrValidation) {
		t.Fatalf("expected validation error for inverted window, got %v", err)
	}
}

func TestGetFactTenantIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	created, err := m.CreateFact(ctx, newFact("acme", "99.7", date(t, "2024-01-01")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.GetFact(ctx, "globex", created.UUID); !pkgerrors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("cross-tenant read must be not-found, got %v", err)
	}
	if _, err := m.GetFact(ctx, "acme", created.UUID); err != nil {
		t.Fatalf("same-tenant read failed: %v", err)
	}
}

func TestUpdateStatusOptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	created, err := m.CreateFact(ctx, newFact("acme", "99.7", date(t, "2024-01-01")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	approved, err := m.UpdateStatus(ctx, UpdateStatusParams{
		TenantID:          "acme",
		UUID:              created.UUID,
		ExpectedUpdatedAt: created.UpdatedAt,
		NewStatus:         types.StatusApproved,
		Actor:             "reviewer@acme",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if approved.ApprovedBy != "reviewer@acme" || approved.ApprovedAt == nil {
		t.Fatalf("approval metadata not recorded: %+v", approved)
	}

	// The second reviewer raced on a stale token.
	if _, err := m.UpdateStatus(ctx, UpdateStatusParams{
		TenantID:          "acme",
		UUID:              created.UUID,
		ExpectedUpdatedAt: created.UpdatedAt,
		NewStatus:         types.StatusRejected,
		Actor:             "other@acme",
	}); !pkgerrors.Is(err, pkgerrors.ErrConcurrentModification) {
		t.Fatalf("expected concurrent modification, got %v", err)
	}
}

func TestLinkConflictIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	a, _ := m.CreateFact(ctx, newFact("acme", "99.7", date(t, "2024-01-01")))
	b, _ := m.CreateFact(ctx, newFact("acme", "90", date(t, "2024-01-01")))

	now := time.Now().UTC()
	for i := 0; i < 2; i++ {
		if err := m.LinkConflict(ctx, "acme", a.UUID, b.UUID, types.ConflictContradicts, 0.097, now); err != nil {
			t.Fatalf("link %d failed: %v", i, err)
		}
	}

	conflicts, err := m.OpenConflicts(ctx, "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("re-linking must be a no-op, got %d edges", len(conflicts))
	}
}

func TestCurrentTruthExcludesOverridden(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	older, _ := m.CreateFact(ctx, newFact("acme", "99.7", date(t, "2024-01-01")))
	newer, _ := m.CreateFact(ctx, newFact("acme", "99.9", date(t, "2024-06-01")))
	for _, fact := range []*types.Fact{older, newer} {
		if _, err := m.UpdateStatus(ctx, UpdateStatusParams{
			TenantID:          "acme",
			UUID:              fact.UUID,
			ExpectedUpdatedAt: fact.UpdatedAt,
			NewStatus:         types.StatusApproved,
			Actor:             "reviewer@acme",
		}); err != nil {
			t.Fatalf("approve failed: %v", err)
		}
	}
	if err := m.LinkConflict(ctx, "acme", newer.UUID, older.UUID, types.ConflictOverrides, 0, time.Now().UTC()); err != nil {
		t.Fatalf("override link failed: %v", err)
	}

	current, err := m.CurrentTruth(ctx, "acme", "product-x", "sla", time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if current.UUID != newer.UUID {
		t.Fatalf("expected the overriding fact, got %s", current.UUID)
	}
}

func TestTimelineOrdering(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	second, _ := m.CreateFact(ctx, newFact("acme", "99.9", date(t, "2024-06-01")))
	first, _ := m.CreateFact(ctx, newFact("acme", "99.7", date(t, "2024-01-01")))

	timeline, err := m.Timeline(ctx, "acme", "product-x", "sla")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(timeline) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(timeline))
	}
	if timeline[0].UUID != first.UUID || timeline[1].UUID != second.UUID {
		t.Fatalf("timeline not ordered by valid_from")
	}
}
