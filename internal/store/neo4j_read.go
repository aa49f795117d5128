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

func (s *neo4jStore) GetFact(ctx context.Context, tenantID string, id uuid.UUID) (*types.Fact, error) {
	ctx = ctxutil.Default(ctx)
	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (f:Fact {uuid: $uuid, tenant_id: $tenant_id})
RETURN f`, map[string]any{"uuid": id.String(), "tenant_id": tenantID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("get fact: %w", err)
	}
	fact, err := singleFactFromResult(result.([]*neo4j.Record))
	if err != nil {
		return nil, err
	}
	if fact == nil {
		return nil, pkgerrors.NotFoundf("fact %s", id)
	}
	return fact, nil
}

func (s *neo4jStore) FindByKey(ctx context.Context, tenantID, subject, predicate string, statuses []types.FactStatus) ([]*types.Fact, error) {
	ctx = ctxutil.Default(ctx)
	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (f:Fact {tenant_id: $tenant_id, subject: $subject, predicate: $predicate})
WHERE f.status IN $statuses
RETURN f
ORDER BY f.valid_from ASC, f.created_at ASC`, map[string]any{
			"tenant_id": tenantID,
			"subject":   subject,
			"predicate": predicate,
			"statuses":  statusStrings(statuses),
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("find by key: %w", err)
	}
	return factsFromRecords(result.([]*neo4j.Record))
}

func (s *neo4jStore) CurrentTruth(ctx context.Context, tenantID, subject, predicate string, at time.Time) (*types.Fact, error) {
	ctx = ctxutil.Default(ctx)
	session := s.readSession(ctx)
	defer session.Close(ctx)

	// A fact awaiting valid_until truncation already carries an incoming
	// OVERRIDES edge, so it is excluded even before the window closes.
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (f:Fact {tenant_id: $tenant_id, subject: $subject, predicate: $predicate, status: $approved})
WHERE f.valid_from <= $at
  AND (f.valid_until IS NULL OR f.valid_until > $at)
  AND NOT (:Fact)-[:OVERRIDES]->(f)
RETURN f
ORDER BY f.valid_from DESC
LIMIT 1`, map[string]any{
			"tenant_id": tenantID,
			"subject":   subject,
			"predicate": predicate,
			"approved":  string(types.StatusApproved),
			"at":        at.UTC(),
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("current truth: %w", err)
	}
	fact, err := singleFactFromResult(result.([]*neo4j.Record))
	if err != nil {
		return nil, err
	}
	if fact == nil {
		return nil, pkgerrors.NotFoundf("no current truth for %s/%s", subject, predicate)
	}
	return fact, nil
}

func (s *neo4jStore) Timeline(ctx context.Context, tenantID, subject, predicate string) ([]*types.Fact, error) {
	ctx = ctxutil.Default(ctx)
	session := s.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (f:Fact {tenant_id: $tenant_id, subject: $subject, predicate: $predicate})
RETURN f
ORDER BY f.valid_from ASC, f.created_at ASC`, map[string]any{
			"tenant_id": tenantID,
			"subject":   subject,
			"predicate": predicate,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	return factsFromRecords(result.([]*neo4j.Record))
}

func (s *neo4jStore) OpenConflicts(ctx context.Context, tenantID string) ([]*types.ConflictCandidate, error) {
	ctx = ctxutil.Default(ctx)
	session := s.readSession(ctx)
	defer session.Close(ctx)

	// A conflict is open while its proposed side still awaits resolution
	// and the opposing side has not been rejected.
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (a:Fact {tenant_id: $tenant_id})-[e:CONTRADICTS|AMBIGUOUS]->(b:Fact {tenant_id: $tenant_id})
WHERE a.status IN [$proposed, $conflicted]
  AND b.status <> $rejected
RETURN a, b, e.conflict_type AS conflict_type, e.value_diff_pct AS value_diff_pct, e.detected_at AS detected_at
ORDER BY e.detected_at ASC`, map[string]any{
			"tenant_id":  tenantID,
			"proposed":   string(types.StatusProposed),
			"conflicted": string(types.StatusConflicted),
			"rejected":   string(types.StatusRejected),
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("open conflicts: %w", err)
	}

	records := result.([]*neo4j.Record)
	out := make([]*types.ConflictCandidate, 0, len(records))
	for _, rec := range records {
		nodeA, okA := rec.Values[0].(neo4j.Node)
		nodeB, okB := rec.Values[1].(neo4j.Node)
		if !okA || !okB {
			return nil, fmt.Errorf("unexpected conflict record shape")
		}
		factA, err := factFromNode(nodeA)
		if err != nil {
			return nil, err
		}
		factB, err := factFromNode(nodeB)
		if err != nil {
			return nil, err
		}
		detected := time.Time{}
		if t, ok := rec.Values[4].(time.Time); ok {
			detected = t.UTC()
		}
		conflictType := types.ConflictContradicts
		if ctStr, ok := rec.Values[2].(string); ok && types.ConflictType(ctStr).Valid() {
			conflictType = types.ConflictType(ctStr)
		}
		diff := 0.0
		if d, ok := rec.Values[3].(float64); ok {
			diff = d
		}
		out = append(out, &types.ConflictCandidate{
			FactA:        factA,
			FactB:        factB,
			ConflictType: conflictType,
			ValueDiffPct: diff,
			DetectedAt:   detected,
		})
	}
	return out, nil
}

func factsFromRecords(records []*neo4j.Record) ([]*types.Fact, error) {
	out := make([]*types.Fact, 0, len(records))
	for _, rec := range records {
		node, ok := rec.Values[0].(neo4j.Node)
		if !ok {
			return nil, fmt.Errorf("unexpected record shape: %T", rec.Values[0])
		}
		fact, err := factFromNode(node)
		if err != nil {
			return nil, err
		}
		out = append(out, fact)
	}
	return out, nil
}
