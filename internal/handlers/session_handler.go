package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eduhub-vn/exam-session-service/internal/services"
	"github.com/eduhub-vn/exam-session-service/internal/utils"
	"github.com/eduhub-vn/exam-session-service/internal/validator"
)

type SessionHandler struct {
	BaseHandler
	sessionService services.SessionService
	validator      *validator.Validator
}

func NewSessionHandler(
	sessionService services.SessionService,
	validator *validator.Validator,
	logger utils.Logger,
) *SessionHandler {
	return &SessionHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
		validator:      validator,
	}
}

// StartSession starts a new exam session
// @Summary Start exam session
// @Description Checks the schedule gate and opens a timed session for an exam
// @Tags sessions
// @Accept json
// @Produce json
// @Param session body services.StartSessionRequest true "Start session data"
// @Success 201 {object} services.SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	h.LogRequest(c, "Starting exam session")

	var req services.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	session, err := h.sessionService.Start(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// GetSession retrieves the live session state
// @Summary Get session state
// @Description Retrieves the sanitized state of a live session
// @Tags sessions
// @Produce json
// @Param id path string true "Session (result) ID"
// @Success 200 {object} services.SessionResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	id := h.parseSessionID(c, "id")
	if id == "" {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	session, err := h.sessionService.Get(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// AbandonSession tears down a session without submitting
// @Summary Abandon session
// @Description Stops the clock and discards the session; nothing is persisted
// @Tags sessions
// @Produce json
// @Param id path string true "Session (result) ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id} [delete]
func (h *SessionHandler) AbandonSession(c *gin.Context) {
	id := h.parseSessionID(c, "id")
	if id == "" {
		return
	}

	h.LogRequest(c, "Abandoning exam session", "result_id", id)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	if err := h.sessionService.Abandon(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Session abandoned",
	})
}

// SetChoiceAnswer records a choice selection
// @Summary Answer a choice question
// @Description Records the selected choice for a single_choice or listening_choice question
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session (result) ID"
// @Param answer body services.SetChoiceRequest true "Choice selection"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/answers/choice [put]
func (h *SessionHandler) SetChoiceAnswer(c *gin.Context) {
	id := h.parseSessionID(c, "id")
	if id == "" {
		return
	}

	var req services.SetChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	if err := h.sessionService.SetChoice(c.Request.Context(), id, &req, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Answer recorded",
	})
}

// SetTextAnswer records a free-text answer
// @Summary Answer a free-text question
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session (result) ID"
// @Param answer body services.SetTextRequest true "Free text"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/answers/text [put]
func (h *SessionHandler) SetTextAnswer(c *gin.Context) {
	id := h.parseSessionID(c, "id")
	if id == "" {
		return
	}

	var req services.SetTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	if err := h.sessionService.SetText(c.Request.Context(), id, &req, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Answer recorded",
	})
}

// ReorderTokens moves a token one step in an ordered-tokens question
// @Summary Reorder tokens
// @Description Moves the token at from_index one step up or down
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session (result) ID"
// @Param answer body services.ReorderRequest true "Move"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/answers/order [put]
func (h *SessionHandler) ReorderTokens(c *gin.Context) {
	id := h.parseSessionID(c, "id")
	if id == "" {
		return
	}

	var req services.ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	if err := h.sessionService.Reorder(c.Request.Context(), id, &req, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Answer recorded",
	})
}

// ToggleMatchAnswer toggles a pair in a matched-pairs question
// @Summary Toggle a pair selection
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session (result) ID"
// @Param answer body services.ToggleMatchRequest true "Pair toggle"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/answers/match [put]
func (h *SessionHandler) ToggleMatchAnswer(c *gin.Context) {
	id := h.parseSessionID(c, "id")
	if id == "" {
		return
	}

	var req services.ToggleMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	if err := h.sessionService.ToggleMatch(c.Request.Context(), id, &req, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Answer recorded",
	})
}

// SetPosition moves the navigation index
// @Summary Set session position
// @Description Moves the current-question index; out-of-range values are clamped
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session (result) ID"
// @Param position body services.SetPositionRequest true "Position"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /sessions/{id}/position [put]
func (h *SessionHandler) SetPosition(c *gin.Context) {
	id := h.parseSessionID(c, "id")
	if id == "" {
		return
	}

	var req services.SetPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	if err := h.sessionService.SetPosition(c.Request.Context(), id, &req, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Position updated",
	})
}

// GetProgress returns the answered/total counters
// @Summary Get session progress
// @Tags sessions
// @Produce json
// @Param id path string true "Session (result) ID"
// @Success 200 {object} services.ProgressResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id}/progress [get]
func (h *SessionHandler) GetProgress(c *gin.Context) {
	id := h.parseSessionID(c, "id")
	if id == "" {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	progress, err := h.sessionService.Progress(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, progress)
}

// SubmitSession submits the session manually
// @Summary Submit exam session
// @Description Finalizes the session; answers are persisted and graded
// @Tags sessions
// @Produce json
// @Param id path string true "Session (result) ID"
// @Success 200 {object} services.SubmitResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{id}/submit [post]
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	id := h.parseSessionID(c, "id")
	if id == "" {
		return
	}

	h.LogRequest(c, "Submitting exam session", "result_id", id)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	result, err := h.sessionService.Submit(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
