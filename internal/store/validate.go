package store

import (
	"strings"

	pkgerrors "github.com/fredpottier/factgov/internal/pkg/errors"
	"github.com/fredpottier/factgov/internal/types"
)

// validateNewFact enforces the Fact Store boundary rules before anything is
// persisted: enum membership, typed object_value, confidence range, and a
// coherent valid-time window.
func validateNewFact(fact *types.Fact) error {
	if fact == nil {
		return pkgerrors.Validationf("fact is required")
	}
	if strings.TrimSpace(fact.TenantID) == "" {
		return pkgerrors.Validationf("tenant_id is required")
	}
	if strings.TrimSpace(fact.Subject) == "" {
		return pkgerrors.Validationf("subject is required")
	}
	if strings.TrimSpace(fact.Predicate) == "" {
		return pkgerrors.Validationf("predicate is required")
	}
	if !fact.ValueType.Valid() {
		return pkgerrors.Validationf("unknown value_type %q", fact.ValueType)
	}
	if !fact.FactType.Valid() {
		return pkgerrors.Validationf("unknown fact_type %q", fact.FactType)
	}
	if _, err := fact.Value(); err != nil {
		return pkgerrors.Validationf("%v", err)
	}
	if fact.Confidence < 0 || fact.Confidence > 1 {
		return pkgerrors.Validationf("confidence %v outside [0,1]", fact.Confidence)
	}
	if fact.ValidFrom.IsZero() {
		return pkgerrors.Validationf("valid_from is required")
	}
	if fact.ValidUntil != nil && !fact.ValidFrom.Before(*fact.ValidUntil) {
		return pkgerrors.Validationf("valid_from must precede valid_until")
	}
	return nil
}
