package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fredpottier/factgov/internal/platform/ctxutil"
	"github.com/fredpottier/factgov/internal/platform/logger"
	"github.com/fredpottier/factgov/internal/platform/neo4jdb"
	"github.com/fredpottier/factgov/internal/types"
)

type neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jStore(client *neo4jdb.Client, baseLog *logger.Logger) FactStore {
	return &neo4jStore{
		client: client,
		log:    baseLog.With("repo", "FactStore"),
	}
}

func (s *neo4jStore) writeSession(ctx context.Context) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
}

func (s *neo4jStore) readSession(ctx context.Context) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
}

func (s *neo4jStore) EnsureSchema(ctx context.Context) error {
	ctx = ctxutil.Default(ctx)
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT fact_uuid_unique IF NOT EXISTS FOR (f:Fact) REQUIRE f.uuid IS UNIQUE`,
		`CREATE INDEX fact_key_idx IF NOT EXISTS FOR (f:Fact) ON (f.tenant_id, f.subject, f.predicate, f.status)`,
	}
	// Best-effort for restricted users: log and continue, the way schema
	// helpers behave elsewhere in the stack.
	for _, stmt := range statements {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			s.log.Warn("schema init statement failed (continuing)", "error", err)
			continue
		}
		if _, err := res.Consume(ctx); err != nil {
			s.log.Warn("schema init consume failed (continuing)", "error", err)
		}
	}
	return nil
}

func factToProps(f *types.Fact) map[string]any {
	props := map[string]any{
		"uuid":              f.UUID.String(),
		"tenant_id":         f.TenantID,
		"subject":           f.Subject,
		"predicate":         f.Predicate,
		"object_value":      f.ObjectValue,
		"unit":              f.Unit,
		"value_type":        string(f.ValueType),
		"fact_type":         string(f.FactType),
		"confidence":        f.Confidence,
		"status":            string(f.Status),
		"valid_from":        f.ValidFrom.UTC(),
		"created_at":        f.CreatedAt.UTC(),
		"updated_at":        f.UpdatedAt.UTC(),
		"source_document":   f.SourceDocument,
		"source_chunk_id":   f.SourceChunkID,
		"extraction_method": f.ExtractionMethod,
		"extraction_model":  f.ExtractionModel,
	}
	if f.ValidUntil != nil {
		props["valid_until"] = f.ValidUntil.UTC()
	}
	if f.ApprovedBy != "" {
		props["approved_by"] = f.ApprovedBy
	}
	if f.ApprovedAt != nil {
		props["approved_at"] = f.ApprovedAt.UTC()
	}
	if f.RejectionReason != "" {
		props["rejection_reason"] = f.RejectionReason
	}
	return props
}

func factFromNode(node neo4j.Node) (*types.Fact, error) {
	props := node.Props

	id, err := uuid.Parse(propString(props, "uuid"))
	if err != nil {
		return nil, fmt.Errorf("fact node has malformed uuid: %w", err)
	}
	validFrom, err := propTime(props, "valid_from")
	if err != nil {
		return nil, err
	}
	createdAt, err := propTime(props, "created_at")
	if err != nil {
		return nil, err
	}
	updatedAt, err := propTime(props, "updated_at")
	if err != nil {
		return nil, err
	}

	fact := &types.Fact{
		UUID:             id,
		TenantID:         propString(props, "tenant_id"),
		Subject:          propString(props, "subject"),
		Predicate:        propString(props, "predicate"),
		ObjectValue:      propString(props, "object_value"),
		Unit:             propString(props, "unit"),
		ValueType:        types.ValueType(propString(props, "value_type")),
		FactType:         types.FactType(propString(props, "fact_type")),
		Confidence:       propFloat(props, "confidence"),
		Status:           types.FactStatus(propString(props, "status")),
		ValidFrom:        validFrom,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
		ApprovedBy:       propString(props, "approved_by"),
		RejectionReason:  propString(props, "rejection_reason"),
		SourceDocument:   propString(props, "source_document"),
		SourceChunkID:    propString(props, "source_chunk_id"),
		ExtractionMethod: propString(props, "extraction_method"),
		ExtractionModel:  propString(props, "extraction_model"),
	}
	fact.ValidUntil = propTimePtr(props, "valid_until")
	fact.ApprovedAt = propTimePtr(props, "approved_at")
	return fact, nil
}

func propString(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func propFloat(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func propTime(props map[string]any, key string) (time.Time, error) {
	switch v := props[key].(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("fact node %s: %w", key, err)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("fact node missing %s", key)
}

func propTimePtr(props map[string]any, key string) *time.Time {
	t, err := propTime(props, key)
	if err != nil {
		return nil
	}
	return &t
}

func statusStrings(statuses []types.FactStatus) []any {
	out := make([]any, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, string(st))
	}
	return out
}

func singleFactFromResult(records []*neo4j.Record) (*types.Fact, error) {
	if len(records) == 0 {
		return nil, nil
	}
	node, ok := records[0].Values[0].(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected record shape: %T", records[0].Values[0])
	}
	return factFromNode(node)
}
