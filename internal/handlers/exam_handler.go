package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eduhub-vn/exam-session-service/internal/services"
	"github.com/eduhub-vn/exam-session-service/internal/utils"
)

type ExamHandler struct {
	BaseHandler
	gateService   services.ScheduleGateService
	reportService services.ReportService
}

func NewExamHandler(
	gateService services.ScheduleGateService,
	reportService services.ReportService,
	logger utils.Logger,
) *ExamHandler {
	return &ExamHandler{
		BaseHandler:   NewBaseHandler(logger),
		gateService:   gateService,
		reportService: reportService,
	}
}

// GetGate classifies the current instant against an exam's schedule
// @Summary Schedule gate pre-check
// @Description Reports whether a session could start right now, without creating one
// @Tags exams
// @Produce json
// @Param id path uint true "Exam ID"
// @Success 200 {object} services.GateDecision
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /exams/{id}/gate [get]
func (h *ExamHandler) GetGate(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	decision, err := h.gateService.Evaluate(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

// ExportResults streams an xlsx workbook of an exam's results
// @Summary Export exam results
// @Description Renders all results of an exam as an xlsx download; teachers and admins only
// @Tags exams
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path uint true "Exam ID"
// @Success 200 {file} binary
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /exams/{id}/results/export [get]
func (h *ExamHandler) ExportResults(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Exporting exam results", "exam_id", id)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	data, filename, err := h.reportService.ExportExamResults(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
