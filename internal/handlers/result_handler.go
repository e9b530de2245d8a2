package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eduhub-vn/exam-session-service/internal/services"
	"github.com/eduhub-vn/exam-session-service/internal/utils"
)

type ResultHandler struct {
	BaseHandler
	resultService services.ResultService
}

func NewResultHandler(resultService services.ResultService, logger utils.Logger) *ResultHandler {
	return &ResultHandler{
		BaseHandler:   NewBaseHandler(logger),
		resultService: resultService,
	}
}

// GetResultAnalysis retrieves the graded analysis of a submitted result
// @Summary Get result analysis
// @Description Retrieves per-answer verdicts and aggregate scores; owner or staff only
// @Tags results
// @Produce json
// @Param result_id path string true "Result ID"
// @Success 200 {object} services.ResultAnalysisResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /results/{result_id}/analysis [get]
func (h *ResultHandler) GetResultAnalysis(c *gin.Context) {
	id := h.parseSessionID(c, "result_id")
	if id == "" {
		return
	}

	h.LogRequest(c, "Getting result analysis", "result_id", id)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	analysis, err := h.resultService.GetAnalysis(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, analysis)
}
