// Package store owns durable persistence of Fact nodes and their typed
// conflict edges, plus the indexed lookups the governance workflow and the
// read models are built on. The Neo4j backend is the production path; the
// memory backend serves tests and driverless local runs.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fredpottier/factgov/internal/types"
)

// UpdateStatusParams is an optimistic-concurrency status write. The write
// succeeds only when the stored updated_at still equals ExpectedUpdatedAt;
// otherwise ErrConcurrentModification is returned and the caller must
// re-fetch.
type UpdateStatusParams struct {
	TenantID          string
	UUID              uuid.UUID
	ExpectedUpdatedAt time.Time
	NewStatus         types.FactStatus
	Actor             string
	Reason            string
}

type FactStore interface {
	// EnsureSchema creates the uuid uniqueness constraint and the composite
	// (tenant_id, subject, predicate, status) index.
	EnsureSchema(ctx context.Context) error

	// CreateFact validates the fact, assigns uuid and transaction-time
	// stamps, and persists it with status=proposed.
	CreateFact(ctx context.Context, fact *types.Fact) (*types.Fact, error)

	GetFact(ctx context.Context, tenantID string, id uuid.UUID) (*types.Fact, error)

	// FindByKey is the conflict-detection hot path, backed by the composite
	// index. Results are ordered by valid_from.
	FindByKey(ctx context.Context, tenantID, subject, predicate string, statuses []types.FactStatus) ([]*types.Fact, error)

	UpdateStatus(ctx context.Context, p UpdateStatusParams) (*types.Fact, error)

	// CloseValidUntil truncates a fact's valid-time window, guarded by the
	// same optimistic token as UpdateStatus.
	CloseValidUntil(ctx context.Context, tenantID string, id uuid.UUID, expectedUpdatedAt, until time.Time) (*types.Fact, error)

	// LinkConflict creates the typed edge a->b. Re-linking the same pair
	// with the same type is a no-op.
	LinkConflict(ctx context.Context, tenantID string, a, b uuid.UUID, conflictType types.ConflictType, valueDiffPct float64, detectedAt time.Time) error

	// CurrentTruth returns the single approved, non-superseded fact whose
	// valid-time window contains at. ErrNotFound when there is none.
	CurrentTruth(ctx context.Context, tenantID, subject, predicate string, at time.Time) (*types.Fact, error)

	// Timeline returns every fact on the key, all statuses, ordered by
	// valid_from.
	Timeline(ctx context.Context, tenantID, subject, predicate string) ([]*types.Fact, error)

	// OpenConflicts returns unresolved conflict pairs for the review queue.
	OpenConflicts(ctx context.Context, tenantID string) ([]*types.ConflictCandidate, error)
}
