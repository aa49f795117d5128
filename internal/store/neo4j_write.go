package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	pkgerrors "github.com/fredpottier/factgov/internal/pkg/errors"
	"github.com/fredpottier/factgov/internal/platform/ctxutil"
	"github.com/fredpottier/factgov/internal/types"
)

func (s *neo4jStore) CreateFact(ctx context.Context, fact *types.Fact) (*types.Fact, error) {
	ctx = ctxutil.Default(ctx)
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

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `CREATE (f:Fact $props)`, map[string]any{
			"props": factToProps(&created),
		})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return nil, fmt.Errorf("create fact: %w", err)
	}

	s.log.Debug("fact created",
		"uuid", created.UUID.String(),
		"tenant_id", created.TenantID,
		"subject", created.Subject,
		"predicate", created.Predicate,
	)
	return &created, nil
}

func (s *neo4jStore) UpdateStatus(ctx context.Context, p UpdateStatusParams) (*types.Fact, error) {
	ctx = ctxutil.Default(ctx)
	if !p.NewStatus.Valid() {
		return nil, pkgerrors.Validationf("unknown status %q", p.NewStatus)
	}

	now := time.Now().UTC()
	set := `f.status = $status, f.updated_at = $now`
	params := map[string]any{
		"uuid":      p.UUID.String(),
		"tenant_id": p.TenantID,
		"expected":  p.ExpectedUpdatedAt.UTC(),
		"status":    string(p.NewStatus),
		"now":       now,
	}
	switch p.NewStatus {
	case types.StatusApproved:
		set += `, f.approved_by = $actor, f.approved_at = $now`
		params["actor"] = p.Actor
	case types.StatusRejected:
		set += `, f.rejection_reason = $reason`
		params["reason"] = p.Reason
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Existence first so a stale token and a missing fact are
		// distinguishable errors.
		res, err := tx.Run(ctx, `
MATCH (f:Fact {uuid: $uuid, tenant_id: $tenant_id})
RETURN f.uuid`, params)
		if err != nil {
			return nil, err
		}
		existing, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(existing) == 0 {
			return nil, pkgerrors.NotFoundf("fact %s", p.UUID)
		}

		res, err = tx.Run(ctx, fmt.Sprintf(`
MATCH (f:Fact {uuid: $uuid, tenant_id: $tenant_id})
WHERE f.updated_at = $expected
SET %s
RETURN f`, set), params)
		if err != nil {
			return nil, err
		}
		updated, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(updated) == 0 {
			return nil, fmt.Errorf("%w: fact %s changed since read", pkgerrors.ErrConcurrentModification, p.UUID)
		}
		return updated, nil
	})
	if err != nil {
		return nil, err
	}

	fact, err := singleFactFromResult(result.([]*neo4j.Record))
	if err != nil {
		return nil, err
	}
	s.log.Debug("fact status updated", "uuid", p.UUID.String(), "status", string(p.NewStatus), "actor", p.Actor)
	return fact, nil
}

func (s *neo4jStore) CloseValidUntil(ctx context.Context, tenantID string, id uuid.UUID, expectedUpdatedAt, until time.Time) (*types.Fact, error) {
	ctx = ctxutil.Default(ctx)
	now := time.Now().UTC()

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (f:Fact {uuid: $uuid, tenant_id: $tenant_id})
RETURN f.uuid`, map[string]any{"uuid": id.String(), "tenant_id": tenantID})
		if err != nil {
			return nil, err
		}
		existing, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(existing) == 0 {
			return nil, pkgerrors.NotFoundf("fact %s", id)
		}

		res, err = tx.Run(ctx, `
MATCH (f:Fact {uuid: $uuid, tenant_id: $tenant_id})
WHERE f.updated_at = $expected
SET f.valid_until = $until, f.updated_at = $now
RETURN f`, map[string]any{
			"uuid":      id.String(),
			"tenant_id": tenantID,
			"expected":  expectedUpdatedAt.UTC(),
			"until":     until.UTC(),
			"now":       now,
		})
		if err != nil {
			return nil, err
		}
		updated, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(updated) == 0 {
			return nil, fmt.Errorf("%w: fact %s changed since read", pkgerrors.ErrConcurrentModification, id)
		}
		return updated, nil
	})
	if err != nil {
		return nil, err
	}
	return singleFactFromResult(result.([]*neo4j.Record))
}

func (s *neo4jStore) LinkConflict(ctx context.Context, tenantID string, a, b uuid.UUID, conflictType types.ConflictType, valueDiffPct float64, detectedAt time.Time) error {
	ctx = ctxutil.Default(ctx)
	if !conflictType.Valid() {
		return pkgerrors.Validationf("unknown conflict_type %q", conflictType)
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	// The relationship type is the conflict type; Cypher cannot
	// parameterize labels, so it is interpolated from the validated enum.
	// MERGE plus ON CREATE keeps re-linking the same pair a no-op.
	query := fmt.Sprintf(`
MATCH (a:Fact {uuid: $a, tenant_id: $tenant_id})
MATCH (b:Fact {uuid: $b, tenant_id: $tenant_id})
MERGE (a)-[e:%s]->(b)
ON CREATE SET e.conflict_type = $conflict_type,
              e.value_diff_pct = $value_diff_pct,
              e.detected_at = $detected_at`, string(conflictType))

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"a":              a.String(),
			"b":              b.String(),
			"tenant_id":      tenantID,
			"conflict_type":  string(conflictType),
			"value_diff_pct": valueDiffPct,
			"detected_at":    detectedAt.UTC(),
		})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("link conflict %s -> %s: %w", a, b, err)
	}
	s.log.Debug("conflict linked", "a", a.String(), "b", b.String(), "conflict_type", string(conflictType))
	return nil
}
