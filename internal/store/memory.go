package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/fredpottier/factgov/internal/pkg/errors"
	"github.com/fredpottier/factgov/internal/types"
)

// MemoryStore is a mutex-guarded FactStore used in tests and when no graph
// database is configured. It mirrors the Neo4j backend's semantics,
// including the optimistic updated_at token and idempotent edges.
type MemoryStore struct {
	mu    sync.Mutex
	facts map[uuid.UUID]*types.Fact
	edges map[edgeKey]*edge
}

type edgeKey struct {
	from         uuid.UUID
	to           uuid.UUID
	conflictType types.ConflictType
}

type edge struct {
	valueDiffPct float64
	detectedAt   time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		facts: make(map[uuid.UUID]*types.Fact),
		edges: make(map[edgeKey]*edge),
	}
}

func (m *MemoryStore) EnsureSchema(ctx context.Context) error { return nil }

func (m *MemoryStore) CreateFact(ctx context.Context, fact *types.Fact) (*types.Fact, error) {
	if err := validateNewFact(fact); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	created := *fact
	created.UUID = uuid.New()
	created.Status = types.StatusProposed
	created.CreatedAt = now
	created.UpdatedAt = now
	created.ApprovedBy = ""
	created.ApprovedAt = nil
	created.RejectionReason = ""

	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts[created.UUID] = &created

	copied := created
	return &copied, nil
}

func (m *MemoryStore) GetFact(ctx context.Context, tenantID string, id uuid.UUID) (*types.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fact, ok := m.facts[id]
	if !ok || fact.TenantID != tenantID {
		return nil, pkgerrors.NotFoundf("fact %s", id)
	}
	copied := *fact
	return &copied, nil
}

func (m *MemoryStore) FindByKey(ctx context.Context, tenantID, subject, predicate string, statuses []types.FactStatus) ([]*types.Fact, error) {
	wanted := make(map[types.FactStatus]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.Fact
	for _, fact := range m.facts {
		if fact.TenantID != tenantID || fact.Subject != subject || fact.Predicate != predicate {
			continue
		}
		if len(wanted) > 0 && !wanted[fact.Status] {
			continue
		}
		copied := *fact
		out = append(out, &copied)
	}
	sortByValidFrom(out)
	return out, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, p UpdateStatusParams) (*types.Fact, error) {
	if !p.NewStatus.Valid() {
		return nil, pkgerrors.Validationf("unknown status %q", p.NewStatus)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	fact, ok := m.facts[p.UUID]
	if !ok || fact.TenantID != p.TenantID {
		return nil, pkgerrors.NotFoundf("fact %s", p.UUID)
	}
	if !fact.UpdatedAt.Equal(p.ExpectedUpdatedAt) {
		return nil, pkgerrors.ErrConcurrentModification
	}

	now := time.Now().UTC()
	fact.Status = p.NewStatus
	fact.UpdatedAt = now
	switch p.NewStatus {
	case types.StatusApproved:
		fact.ApprovedBy = p.Actor
		approvedAt := now
		fact.ApprovedAt = &approvedAt
	case types.StatusRejected:
		fact.RejectionReason = p.Reason
	}
	copied := *fact
	return &copied, nil
}

func (m *MemoryStore) CloseValidUntil(ctx context.Context, tenantID string, id uuid.UUID, expectedUpdatedAt, until time.Time) (*types.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fact, ok := m.facts[id]
	if !ok || fact.TenantID != tenantID {
		return nil, pkgerrors.NotFoundf("fact %s", id)
	}
	if !fact.UpdatedAt.Equal(expectedUpdatedAt) {
		return nil, pkgerrors.ErrConcurrentModification
	}
	u := until.UTC()
	fact.ValidUntil = &u
	fact.UpdatedAt = time.Now().UTC()
	copied := *fact
	return &copied, nil
}

func (m *MemoryStore) LinkConflict(ctx context.Context, tenantID string, a, b uuid.UUID, conflictType types.ConflictType, valueDiffPct float64, detectedAt time.Time) error {
	if !conflictType.Valid() {
		return pkgerrors.Validationf("unknown conflict_type %q", conflictType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	factA, okA := m.facts[a]
	factB, okB := m.facts[b]
	if !okA || factA.TenantID != tenantID {
		return pkgerrors.NotFoundf("fact %s", a)
	}
	if !okB || factB.TenantID != tenantID {
		return pkgerrors.NotFoundf("fact %s", b)
	}
	key := edgeKey{from: a, to: b, conflictType: conflictType}
	if _, exists := m.edges[key]; exists {
		return nil
	}
	m.edges[key] = &edge{valueDiffPct: valueDiffPct, detectedAt: detectedAt.UTC()}
	return nil
}

func (m *MemoryStore) CurrentTruth(ctx context.Context, tenantID, subject, predicate string, at time.Time) (*types.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	overridden := make(map[uuid.UUID]bool)
	for key := range m.edges {
		if key.conflictType == types.ConflictOverrides {
			overridden[key.to] = true
		}
	}

	var best *types.Fact
	for _, fact := range m.facts {
		if fact.TenantID != tenantID || fact.Subject != subject || fact.Predicate != predicate {
			continue
		}
		if fact.Status != types.StatusApproved || overridden[fact.UUID] {
			continue
		}
		if fact.ValidFrom.After(at) {
			continue
		}
		if fact.ValidUntil != nil && !fact.ValidUntil.After(at) {
			continue
		}
		if best == nil || fact.ValidFrom.After(best.ValidFrom) {
			best = fact
		}
	}
	if best == nil {
		return nil, pkgerrors.NotFoundf("no current truth for %s/%s", subject, predicate)
	}
	copied := *best
	return &copied, nil
}

func (m *MemoryStore) Timeline(ctx context.Context, tenantID, subject, predicate string) ([]*types.Fact, error) {
	return m.FindByKey(ctx, tenantID, subject, predicate, nil)
}

func (m *MemoryStore) OpenConflicts(ctx context.Context, tenantID string) ([]*types.ConflictCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*types.ConflictCandidate
	for key, e := range m.edges {
		if key.conflictType == types.ConflictOverrides {
			continue
		}
		factA, okA := m.facts[key.from]
		factB, okB := m.facts[key.to]
		if !okA || !okB || factA.TenantID != tenantID {
			continue
		}
		if factA.Status != types.StatusProposed && factA.Status != types.StatusConflicted {
			continue
		}
		if factB.Status == types.StatusRejected {
			continue
		}
		copiedA := *factA
		copiedB := *factB
		out = append(out, &types.ConflictCandidate{
			FactA:        &copiedA,
			FactB:        &copiedB,
			ConflictType: key.conflictType,
			ValueDiffPct: e.valueDiffPct,
			DetectedAt:   e.detectedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out, nil
}

func sortByValidFrom(facts []*types.Fact) {
	sort.Slice(facts, func(i, j int) bool {
		if facts[i].ValidFrom.Equal(facts[j].ValidFrom) {
			return facts[i].CreatedAt.Before(facts[j].CreatedAt)
		}
		return facts[i].ValidFrom.Before(facts[j].ValidFrom)
	})
}
