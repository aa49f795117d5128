package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type FactStatus string

const (
	StatusProposed   FactStatus = "proposed"
	StatusApproved   FactStatus = "approved"
	StatusRejected   FactStatus = "rejected"
	StatusConflicted FactStatus = "conflicted"
)

func (s FactStatus) Valid() bool {
	switch s {
	case StatusProposed, StatusApproved, StatusRejected, StatusConflicted:
		return true
	}
	return false
}

type FactType string

const (
	FactServiceLevel FactType = "SERVICE_LEVEL"
	FactCapacity     FactType = "CAPACITY"
	FactPricing      FactType = "PRICING"
	FactFeature      FactType = "FEATURE"
	FactCompliance   FactType = "COMPLIANCE"
	FactMethodology  FactType = "METHODOLOGY"
	FactGeneral      FactType = "GENERAL"
)

func (t FactType) Valid() bool {
	switch t {
	case FactServiceLevel, FactCapacity, FactPricing, FactFeature, FactCompliance, FactMethodology, FactGeneral:
		return true
	}
	return false
}

type ValueType string

const (
	ValueNumeric ValueType = "numeric"
	ValueText    ValueType = "text"
	ValueBoolean ValueType = "boolean"
	ValueDate    ValueType = "date"
)

func (v ValueType) Valid() bool {
	switch v {
	case ValueNumeric, ValueText, ValueBoolean, ValueDate:
		return true
	}
	return false
}

type ConflictType string

const (
	ConflictContradicts ConflictType = "CONTRADICTS"
	ConflictOverrides   ConflictType = "OVERRIDES"
	ConflictAmbiguous   ConflictType = "AMBIGUOUS"
)

func (c ConflictType) Valid() bool {
	switch c {
	case ConflictContradicts, ConflictOverrides, ConflictAmbiguous:
		return true
	}
	return false
}

// Fact is the central record. Valid-time (valid_from/valid_until) and
// transaction-time (created_at/updated_at) are independent axes; updated_at
// doubles as the optimistic-concurrency token.
type Fact struct {
	UUID      uuid.UUID `json:"uuid"`
	TenantID  string    `json:"tenant_id"`
	Subject   string    `json:"subject"`
	Predicate string    `json:"predicate"`

	ObjectValue string    `json:"object_value"`
	Unit        string    `json:"unit,omitempty"`
	ValueType   ValueType `json:"value_type"`
	FactType    FactType  `json:"fact_type"`
	Confidence  float64   `json:"confidence"`

	Status     FactStatus `json:"status"`
	ValidFrom  time.Time  `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ApprovedBy      string     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	// Provenance fields are opaque pass-through from the producer.
	SourceDocument   string `json:"source_document"`
	SourceChunkID    string `json:"source_chunk_id"`
	ExtractionMethod string `json:"extraction_method"`
	ExtractionModel  string `json:"extraction_model"`
}

// ConflictKey returns the tuple that groups facts able to contradict each
// other.
func (f *Fact) ConflictKey() string {
	return f.TenantID + "|" + f.Subject + "|" + f.Predicate
}

func (f *Fact) SameKey(other *Fact) bool {
	return f.TenantID == other.TenantID && f.Subject == other.Subject && f.Predicate == other.Predicate
}

// OverlapsWindow reports whether the valid-time windows intersect:
// max(start1, start2) < min(end1|+inf, end2|+inf).
func (f *Fact) OverlapsWindow(other *Fact) bool {
	start := f.ValidFrom
	if other.ValidFrom.After(start) {
		start = other.ValidFrom
	}
	if f.ValidUntil != nil && !f.ValidUntil.After(start) {
		return false
	}
	if other.ValidUntil != nil && !other.ValidUntil.After(start) {
		return false
	}
	return true
}

// FactValue is the typed form of object_value, keyed by value_type.
type FactValue struct {
	Kind    ValueType
	Number  float64
	Text    string
	Boolean bool
	Date    time.Time
}

// ParseValue validates object_value against value_type. Numeric values
// accept an optional trailing "%" since producers commonly emit "99.7%".
func ParseValue(kind ValueType, raw string) (FactValue, error) {
	switch kind {
	case ValueNumeric:
		trimmed := strings.TrimSuffix(strings.TrimSpace(raw), "%")
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return FactValue{}, fmt.Errorf("object_value %q is not numeric", raw)
		}
		return FactValue{Kind: kind, Number: n}, nil
	case ValueText:
		return FactValue{Kind: kind, Text: raw}, nil
	case ValueBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return FactValue{}, fmt.Errorf("object_value %q is not boolean", raw)
		}
		return FactValue{Kind: kind, Boolean: b}, nil
	case ValueDate:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if d, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
				return FactValue{Kind: kind, Date: d}, nil
			}
		}
		return FactValue{}, fmt.Errorf("object_value %q is not a date", raw)
	default:
		return FactValue{}, fmt.Errorf("unknown value_type %q", kind)
	}
}

// Value parses the fact's object_value into its typed form.
func (f *Fact) Value() (FactValue, error) {
	return ParseValue(f.ValueType, f.ObjectValue)
}

// Equal compares two typed values for exact agreement. Numeric closeness is
// the conflict detector's concern, not this method's.
func (v FactValue) Equal(other FactValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueNumeric:
		return v.Number == other.Number
	case ValueText:
		return v.Text == other.Text
	case ValueBoolean:
		return v.Boolean == other.Boolean
	case ValueDate:
		return v.Date.Equal(other.Date)
	}
	return false
}

// ConflictCandidate is one detected pairing between a candidate fact and an
// existing fact on the same conflict key.
type ConflictCandidate struct {
	FactA        *Fact        `json:"fact_proposed"`
	FactB        *Fact        `json:"fact_approved_or_proposed"`
	ConflictType ConflictType `json:"conflict_type"`
	ValueDiffPct float64      `json:"value_diff_pct"`
	DetectedAt   time.Time    `json:"detected_at"`
}
