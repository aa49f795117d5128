package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	pkgerrors "github.com/fredpottier/factgov/internal/pkg/errors"
	"github.com/fredpottier/factgov/internal/platform/logger"
	"github.com/fredpottier/factgov/internal/store"
	"github.com/fredpottier/factgov/internal/types"
)

// QueryService is the read surface: what do we believe now, what did we
// believe over time, and what is waiting on a reviewer.
type QueryService interface {
	GetFact(ctx context.Context, id uuid.UUID) (*types.Fact, error)
	CurrentTruth(ctx context.Context, subject, predicate string) (*types.Fact, error)
	Timeline(ctx context.Context, subject, predicate string) ([]*types.Fact, error)
	OpenConflicts(ctx context.Context) ([]*types.ConflictCandidate, error)
}

type queryService struct {
	log   *logger.Logger
	facts store.FactStore

	// conflictsGroup collapses concurrent review-queue loads per tenant;
	// the queue view is frequently polled by the reviewer UI.
	conflictsGroup singleflight.Group
}

func NewQueryService(baseLog *logger.Logger, facts store.FactStore) QueryService {
	return &queryService{
		log:   baseLog.With("service", "QueryService"),
		facts: facts,
	}
}

func (q *queryService) GetFact(ctx context.Context, id uuid.UUID) (*types.Fact, error) {
	rd, err := tenantContext(ctx)
	if err != nil {
		return nil, err
	}
	return q.facts.GetFact(ctx, rd.TenantID, id)
}

func (q *queryService) CurrentTruth(ctx context.Context, subject, predicate string) (*types.Fact, error) {
	rd, err := tenantContext(ctx)
	if err != nil {
		return nil, err
	}
	if subject == "" || predicate == "" {
		return nil, pkgerrors.Validationf("subject and predicate are required")
	}
	return q.facts.CurrentTruth(ctx, rd.TenantID, subject, predicate, time.Now().UTC())
}

func (q *queryService) Timeline(ctx context.Context, subject, predicate string) ([]*types.Fact, error) {
	rd, err := tenantContext(ctx)
	if err != nil {
		return nil, err
	}
	if subject == "" || predicate == "" {
		return nil, pkgerrors.Validationf("subject and predicate are required")
	}
	return q.facts.Timeline(ctx, rd.TenantID, subject, predicate)
}

func (q *queryService) OpenConflicts(ctx context.Context) ([]*types.ConflictCandidate, error) {
	rd, err := tenantContext(ctx)
	if err != nil {
		return nil, err
	}
	result, err, _ := q.conflictsGroup.Do(rd.TenantID, func() (interface{}, error) {
		return q.facts.OpenConflicts(ctx, rd.TenantID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*types.ConflictCandidate), nil
}
