package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/fredpottier/factgov/internal/http/response"
	"github.com/fredpottier/factgov/internal/platform/logger"
	"github.com/fredpottier/factgov/internal/services"
	"github.com/fredpottier/factgov/internal/types"
)

type QueryHandler struct {
	log     *logger.Logger
	queries services.QueryService
}

func NewQueryHandler(log *logger.Logger, queries services.QueryService) *QueryHandler {
	return &QueryHandler{
		log:     log.With("handler", "QueryHandler"),
		queries: queries,
	}
}

func (h *QueryHandler) CurrentTruth(c *gin.Context) {
	fact, err := h.queries.CurrentTruth(c.Request.Context(), c.Query("subject"), c.Query("predicate"))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, fact)
}

func (h *QueryHandler) Timeline(c *gin.Context) {
	facts, err := h.queries.Timeline(c.Request.Context(), c.Query("subject"), c.Query("predicate"))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	if facts == nil {
		facts = []*types.Fact{}
	}
	response.RespondOK(c, gin.H{"timeline": facts})
}

func (h *QueryHandler) OpenConflicts(c *gin.Context) {
	conflicts, err := h.queries.OpenConflicts(c.Request.Context())
	if err != nil {
		h.log.Error("OpenConflicts failed", "error", err)
		response.RespondDomainError(c, err)
		return
	}
	if conflicts == nil {
		conflicts = []*types.ConflictCandidate{}
	}
	response.RespondOK(c, gin.H{"conflicts": conflicts})
}
