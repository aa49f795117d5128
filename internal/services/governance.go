package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fredpottier/factgov/internal/conflict"
	pkgerrors "github.com/fredpottier/factgov/internal/pkg/errors"
	"github.com/fredpottier/factgov/internal/platform/logger"
	"github.com/fredpottier/factgov/internal/requestdata"
	"github.com/fredpottier/factgov/internal/store"
	"github.com/fredpottier/factgov/internal/types"
)

const (
	detectAttempts    = 3
	detectBackoffBase = 100 * time.Millisecond
)

// GovernanceService owns every mutation entry point: propose with
// synchronous conflict detection, and the approve/reject/override state
// machine. Tenant and actor come from the request context, never from the
// payload alone.
type GovernanceService interface {
	Propose(ctx context.Context, fact *types.Fact) (*types.Fact, []types.ConflictCandidate, error)
	Approve(ctx context.Context, id uuid.UUID, expectedUpdatedAt *time.Time) (*types.Fact, error)
	Reject(ctx context.Context, id uuid.UUID, reason string, expectedUpdatedAt *time.Time) (*types.Fact, error)
	Override(ctx context.Context, oldID, newID uuid.UUID) (*types.Fact, error)
}

type governanceService struct {
	log       *logger.Logger
	facts     store.FactStore
	keyLock   KeyLocker
	tolerance float64
}

func NewGovernanceService(baseLog *logger.Logger, facts store.FactStore, keyLock KeyLocker, tolerance float64) GovernanceService {
	if tolerance <= 0 {
		tolerance = conflict.DefaultTolerance
	}
	return &governanceService{
		log:       baseLog.With("service", "GovernanceService"),
		facts:     facts,
		keyLock:   keyLock,
		tolerance: tolerance,
	}
}

func (g *governanceService) Propose(ctx context.Context, fact *types.Fact) (*types.Fact, []types.ConflictCandidate, error) {
	rd, err := tenantContext(ctx)
	if err != nil {
		return nil, nil, err
	}
	if fact == nil {
		return nil, nil, pkgerrors.Validationf("fact is required")
	}
	if strings.TrimSpace(fact.TenantID) == "" {
		fact.TenantID = rd.TenantID
	} else if fact.TenantID != rd.TenantID {
		return nil, nil, pkgerrors.TenantMismatchf("fact tenant %q does not match caller tenant", fact.TenantID)
	}

	unlock, err := g.keyLock.Lock(ctx, fact.ConflictKey())
	if err != nil {
		return nil, nil, fmt.Errorf("acquire conflict-key lock: %w", err)
	}
	defer unlock()

	created, err := g.facts.CreateFact(ctx, fact)
	if err != nil {
		return nil, nil, err
	}

	// Detection failures never lose the fact: it stays proposed and the
	// caller is told the scan could not complete.
	candidates, detectErr := g.detectAndLink(ctx, created, rd.Actor)
	if detectErr != nil {
		g.log.Error("conflict detection failed after retries",
			"uuid", created.UUID.String(),
			"tenant_id", created.TenantID,
			"error", detectErr,
		)
		return created, nil, fmt.Errorf("%w: %v", pkgerrors.ErrDetectionUnavailable, detectErr)
	}
	return refreshed(ctx, g.facts, created), candidates, nil
}

// detectAndLink scans existing facts on the candidate's key, persists the
// typed edges, and flips the candidate to conflicted when it contradicts an
// approved fact. Transient store failures are retried with exponential
// backoff.
func (g *governanceService) detectAndLink(ctx context.Context, created *types.Fact, actor string) ([]types.ConflictCandidate, error) {
	var candidates []types.ConflictCandidate
	attempt := func() error {
		existing, err := g.facts.FindByKey(ctx, created.TenantID, created.Subject, created.Predicate,
			[]types.FactStatus{types.StatusApproved, types.StatusProposed})
		if err != nil {
			return err
		}
		candidates = conflict.Detect(created, existing, g.tolerance)

		contradictsApproved := false
		for _, cand := range candidates {
			// An OVERRIDES classification is only advisory here: the edge
			// suppresses the old fact in CurrentTruth, so it must not exist
			// until a reviewer actually supersedes via Override.
			if cand.ConflictType == types.ConflictOverrides {
				continue
			}
			if err := g.facts.LinkConflict(ctx, created.TenantID, cand.FactA.UUID, cand.FactB.UUID,
				cand.ConflictType, cand.ValueDiffPct, cand.DetectedAt); err != nil {
				return err
			}
			if cand.ConflictType == types.ConflictContradicts && cand.FactB.Status == types.StatusApproved {
				contradictsApproved = true
			}
		}
		if contradictsApproved {
			if _, err := g.facts.UpdateStatus(ctx, store.UpdateStatusParams{
				TenantID:          created.TenantID,
				UUID:              created.UUID,
				ExpectedUpdatedAt: created.UpdatedAt,
				NewStatus:         types.StatusConflicted,
				Actor:             actor,
			}); err != nil {
				return err
			}
		}
		return nil
	}

	var err error
	for i := 0; i < detectAttempts; i++ {
		if err = attempt(); err == nil {
			return candidates, nil
		}
		if i == detectAttempts-1 {
			break
		}
		wait := detectBackoffBase << uint(i)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, err
}

func (g *governanceService) Approve(ctx context.Context, id uuid.UUID, expectedUpdatedAt *time.Time) (*types.Fact, error) {
	rd, err := tenantContext(ctx)
	if err != nil {
		return nil, err
	}

	fact, err := g.facts.GetFact(ctx, rd.TenantID, id)
	if err != nil {
		return nil, err
	}
	if fact.Status != types.StatusProposed && fact.Status != types.StatusConflicted {
		return nil, pkgerrors.InvalidTransitionf("cannot approve fact in status %q", fact.Status)
	}

	// The overlap guard below is a read-then-write; serialize it per
	// conflict key so two reviewers cannot approve two overlapping facts
	// at the same time.
	unlock, err := g.keyLock.Lock(ctx, fact.ConflictKey())
	if err != nil {
		return nil, fmt.Errorf("acquire conflict-key lock: %w", err)
	}
	defer unlock()

	// Approving must not violate the single-current-truth invariant: any
	// approved fact still overlapping this one has to be rejected or have
	// its window closed via Override first.
	approved, err := g.facts.FindByKey(ctx, fact.TenantID, fact.Subject, fact.Predicate,
		[]types.FactStatus{types.StatusApproved})
	if err != nil {
		return nil, err
	}
	for _, other := range approved {
		if other.UUID != fact.UUID && fact.OverlapsWindow(other) {
			return nil, pkgerrors.InvalidTransitionf(
				"approved fact %s still overlaps; reject it or close its window via override first", other.UUID)
		}
	}

	expected := fact.UpdatedAt
	if expectedUpdatedAt != nil {
		expected = *expectedUpdatedAt
	}
	updated, err := g.facts.UpdateStatus(ctx, store.UpdateStatusParams{
		TenantID:          rd.TenantID,
		UUID:              id,
		ExpectedUpdatedAt: expected,
		NewStatus:         types.StatusApproved,
		Actor:             rd.Actor,
	})
	if err != nil {
		return nil, err
	}
	g.log.Info("fact approved", "uuid", id.String(), "tenant_id", rd.TenantID, "actor", rd.Actor)
	return updated, nil
}

func (g *governanceService) Reject(ctx context.Context, id uuid.UUID, reason string, expectedUpdatedAt *time.Time) (*types.Fact, error) {
	rd, err := tenantContext(ctx)
	if err != nil {
		return nil, err
	}

	fact, err := g.facts.GetFact(ctx, rd.TenantID, id)
	if err != nil {
		return nil, err
	}
	if fact.Status != types.StatusProposed && fact.Status != types.StatusConflicted {
		return nil, pkgerrors.InvalidTransitionf("cannot reject fact in status %q", fact.Status)
	}

	unlock, err := g.keyLock.Lock(ctx, fact.ConflictKey())
	if err != nil {
		return nil, fmt.Errorf("acquire conflict-key lock: %w", err)
	}
	defer unlock()

	expected := fact.UpdatedAt
	if expectedUpdatedAt != nil {
		expected = *expectedUpdatedAt
	}
	updated, err := g.facts.UpdateStatus(ctx, store.UpdateStatusParams{
		TenantID:          rd.TenantID,
		UUID:              id,
		ExpectedUpdatedAt: expected,
		NewStatus:         types.StatusRejected,
		Actor:             rd.Actor,
		Reason:            reason,
	})
	if err != nil {
		return nil, err
	}
	g.log.Info("fact rejected", "uuid", id.String(), "tenant_id", rd.TenantID, "actor", rd.Actor)
	return updated, nil
}

// Override closes the old fact's valid-time window at the new fact's
// valid_from and records the OVERRIDES edge new -> old. Both facts stay
// approved: the old one becomes history, the new one current.
func (g *governanceService) Override(ctx context.Context, oldID, newID uuid.UUID) (*types.Fact, error) {
	rd, err := tenantContext(ctx)
	if err != nil {
		return nil, err
	}
	if oldID == newID {
		return nil, pkgerrors.Validationf("a fact cannot override itself")
	}

	oldFact, err := g.facts.GetFact(ctx, rd.TenantID, oldID)
	if err != nil {
		return nil, err
	}
	newFact, err := g.facts.GetFact(ctx, rd.TenantID, newID)
	if err != nil {
		return nil, err
	}
	if !oldFact.SameKey(newFact) {
		return nil, pkgerrors.Validationf("facts %s and %s are on different conflict keys", oldID, newID)
	}
	if oldFact.Status != types.StatusApproved {
		return nil, pkgerrors.InvalidTransitionf("only an approved fact can be overridden, %s is %q", oldID, oldFact.Status)
	}
	// A rejected fact can never become current, so letting it supersede
	// would close the old window with nothing to replace it.
	if newFact.Status == types.StatusRejected {
		return nil, pkgerrors.InvalidTransitionf("rejected fact %s cannot supersede another fact", newID)
	}
	if !newFact.ValidFrom.After(oldFact.ValidFrom) {
		return nil, pkgerrors.Validationf("overriding fact must start after the overridden one")
	}

	unlock, err := g.keyLock.Lock(ctx, oldFact.ConflictKey())
	if err != nil {
		return nil, fmt.Errorf("acquire conflict-key lock: %w", err)
	}
	defer unlock()

	// Edge first: an OVERRIDES edge alone already excludes the old fact
	// from CurrentTruth, so a failure between the two writes cannot yield
	// two simultaneous truths.
	if err := g.facts.LinkConflict(ctx, rd.TenantID, newID, oldID, types.ConflictOverrides, 0, time.Now().UTC()); err != nil {
		return nil, err
	}
	closed, err := g.facts.CloseValidUntil(ctx, rd.TenantID, oldID, oldFact.UpdatedAt, newFact.ValidFrom)
	if err != nil {
		return nil, err
	}
	g.log.Info("fact overridden",
		"old_uuid", oldID.String(),
		"new_uuid", newID.String(),
		"tenant_id", rd.TenantID,
		"actor", rd.Actor,
		"valid_until", closed.ValidUntil,
	)
	return closed, nil
}

func tenantContext(ctx context.Context) (*requestdata.RequestData, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || strings.TrimSpace(rd.TenantID) == "" {
		return nil, pkgerrors.TenantMismatchf("no tenant in request context")
	}
	return rd, nil
}

// refreshed re-reads a fact after detection so the caller sees the
// post-scan status; the original is returned when the re-read fails.
func refreshed(ctx context.Context, facts store.FactStore, fact *types.Fact) *types.Fact {
	latest, err := facts.GetFact(ctx, fact.TenantID, fact.UUID)
	if err != nil {
		return fact
	}
	return latest
}
