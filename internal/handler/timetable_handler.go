package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uniplan/timetable-api/internal/dto"
	"github.com/uniplan/timetable-api/internal/models"
	appErrors "github.com/uniplan/timetable-api/pkg/errors"
	"github.com/uniplan/timetable-api/pkg/response"
)

type timetableService interface {
	AssignSession(ctx context.Context, actor *models.JWTClaims, req dto.AssignSessionRequest) (*dto.AssignSessionResult, error)
	MoveSession(ctx context.Context, actor *models.JWTClaims, req dto.MoveSessionRequest) (*dto.MoveSessionResult, error)
	RemoveSession(ctx context.Context, actor *models.JWTClaims, req dto.RemoveSessionRequest) error
	GetGrid(ctx context.Context, semesterID, classGroupID string) (*dto.GridResponse, error)
}

// TimetableHandler exposes REST endpoints for grid placements.
type TimetableHandler struct {
	service timetableService
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(service timetableService) *TimetableHandler {
	return &TimetableHandler{service: service}
}

// Assign godoc
// @Summary Place a class session on the grid
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.AssignSessionRequest true "Placement payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/assignments [post]
func (h *TimetableHandler) Assign(c *gin.Context) {
	var req dto.AssignSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid placement payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.AssignSession(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusCreated
	if result.RequiresApproval {
		status = http.StatusAccepted
	}
	response.JSONWithWarnings(c, status, result, result.Warnings)
}

// Move godoc
// @Summary Relocate a session to a different slot
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.MoveSessionRequest true "Move payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/assignments/move [post]
func (h *TimetableHandler) Move(c *gin.Context) {
	var req dto.MoveSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid move payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.MoveSession(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if result.RequiresApproval {
		status = http.StatusAccepted
	}
	response.JSONWithWarnings(c, status, result, result.Warnings)
}

// Remove godoc
// @Summary Clear a slot
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.RemoveSessionRequest true "Slot to clear"
// @Success 204
// @Router /timetable/assignments [delete]
func (h *TimetableHandler) Remove(c *gin.Context) {
	var req dto.RemoveSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid remove payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.RemoveSession(c.Request.Context(), claims, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Grid godoc
// @Summary Get a semester's timetable grid
// @Tags Timetable
// @Produce json
// @Param semester_id path string true "Semester ID"
// @Param class_group_id query string false "Filter by class group"
// @Success 200 {object} response.Envelope
// @Router /timetable/{semester_id} [get]
func (h *TimetableHandler) Grid(c *gin.Context) {
	grid, err := h.service.GetGrid(c.Request.Context(), c.Param("semester_id"), c.Query("class_group_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grid, nil)
}
