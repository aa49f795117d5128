package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	pkgerrors "github.com/fredpottier/factgov/internal/pkg/errors"

	"github.com/fredpottier/factgov/internal/http/response"
	"github.com/fredpottier/factgov/internal/platform/logger"
	"github.com/fredpottier/factgov/internal/services"
	"github.com/fredpottier/factgov/internal/types"
)

type FactHandler struct {
	log        *logger.Logger
	governance services.GovernanceService
	queries    services.QueryService
}

func NewFactHandler(log *logger.Logger, governance services.GovernanceService, queries services.QueryService) *FactHandler {
	return &FactHandler{
		log:        log.With("handler", "FactHandler"),
		governance: governance,
		queries:    queries,
	}
}

type createFactRequest struct {
	Subject     string  `json:"subject"`
	Predicate   string  `json:"predicate"`
	ObjectValue string  `json:"object_value"`
	Unit        string  `json:"unit"`
	ValueType   string  `json:"value_type"`
	FactType    string  `json:"fact_type"`
	Confidence  float64 `json:"confidence"`
	ValidFrom   string  `json:"valid_from"`
	ValidUntil  string  `json:"valid_until"`

	SourceDocument   string `json:"source_document"`
	SourceChunkID    string `json:"source_chunk_id"`
	ExtractionMethod string `json:"extraction_method"`
	ExtractionModel  string `json:"extraction_model"`
}

func (h *FactHandler) CreateFact(c *gin.Context) {
	var req createFactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}

	validFrom, err := parseWindowTime(req.ValidFrom)
	if err != nil {
		response.RespondDomainError(c, pkgerrors.Validationf("valid_from: %v", err))
		return
	}
	var validUntil *time.Time
	if strings.TrimSpace(req.ValidUntil) != "" {
		t, err := parseWindowTime(req.ValidUntil)
		if err != nil {
			response.RespondDomainError(c, pkgerrors.Validationf("valid_until: %v", err))
			return
		}
		validUntil = &t
	}

	fact := &types.Fact{
		Subject:          req.Subject,
		Predicate:        req.Predicate,
		ObjectValue:      req.ObjectValue,
		Unit:             req.Unit,
		ValueType:        types.ValueType(req.ValueType),
		FactType:         types.FactType(req.FactType),
		Confidence:       req.Confidence,
		ValidFrom:        validFrom,
		ValidUntil:       validUntil,
		SourceDocument:   req.SourceDocument,
		SourceChunkID:    req.SourceChunkID,
		ExtractionMethod: req.ExtractionMethod,
		ExtractionModel:  req.ExtractionModel,
	}

	created, _, err := h.governance.Propose(c.Request.Context(), fact)
	if err != nil {
		// A detection outage still persists the fact as proposed; the
		// producer contract is to check the returned status either way.
		if pkgerrors.Is(err, pkgerrors.ErrDetectionUnavailable) && created != nil {
			response.RespondCreated(c, gin.H{
				"uuid":               created.UUID,
				"status":             created.Status,
				"detection_deferred": true,
			})
			return
		}
		h.log.Error("CreateFact failed", "error", err)
		response.RespondDomainError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"uuid": created.UUID, "status": created.Status})
}

type reviewRequest struct {
	Reason            string `json:"reason"`
	ExpectedUpdatedAt string `json:"expected_updated_at"`
}

func (h *FactHandler) Approve(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}
	req, ok := bindReview(c)
	if !ok {
		return
	}
	expected, err := parseExpected(req.ExpectedUpdatedAt)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}

	fact, err := h.governance.Approve(c.Request.Context(), id, expected)
	if err != nil {
		h.log.Warn("Approve failed", "uuid", id.String(), "error", err)
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, fact)
}

func (h *FactHandler) Reject(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}
	req, ok := bindReview(c)
	if !ok {
		return
	}
	expected, err := parseExpected(req.ExpectedUpdatedAt)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}

	fact, err := h.governance.Reject(c.Request.Context(), id, req.Reason, expected)
	if err != nil {
		h.log.Warn("Reject failed", "uuid", id.String(), "error", err)
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, fact)
}

func (h *FactHandler) Override(c *gin.Context) {
	newID, ok := pathUUID(c)
	if !ok {
		return
	}
	oldID, err := uuid.Parse(c.Query("target"))
	if err != nil {
		response.RespondDomainError(c, pkgerrors.Validationf("target must be the overridden fact's uuid"))
		return
	}

	closed, err := h.governance.Override(c.Request.Context(), oldID, newID)
	if err != nil {
		h.log.Warn("Override failed", "old_uuid", oldID.String(), "new_uuid", newID.String(), "error", err)
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"overridden": closed})
}

func (h *FactHandler) GetFact(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}
	fact, err := h.queries.GetFact(c.Request.Context(), id)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, fact)
}

func pathUUID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		response.RespondDomainError(c, pkgerrors.Validationf("malformed uuid %q", c.Param("uuid")))
		return uuid.Nil, false
	}
	return id, true
}

func bindReview(c *gin.Context) (reviewRequest, bool) {
	var req reviewRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "validation_error", err)
			return req, false
		}
	}
	return req, true
}

func parseExpected(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, pkgerrors.Validationf("expected_updated_at: %v", err)
	}
	return &t, nil
}

// parseWindowTime accepts RFC3339 timestamps and bare dates, the two forms
// producers emit for validity windows.
func parseWindowTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, pkgerrors.Validationf("%q is not a timestamp or date", raw)
}
