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

type approvalService interface {
	Approve(ctx context.Context, actor *models.JWTClaims, requestID string) (*dto.ReviewResult, error)
	Reject(ctx context.Context, actor *models.JWTClaims, requestID, message string) (*dto.ReviewResult, error)
	Cancel(ctx context.Context, actor *models.JWTClaims, requestID string) error
	List(ctx context.Context, actor *models.JWTClaims, query dto.ListRequestsQuery) ([]models.ResourceRequest, error)
	Get(ctx context.Context, actor *models.JWTClaims, requestID string) (*models.ResourceRequest, error)
}

type notificationReader interface {
	ListForDepartment(ctx context.Context, departmentID string, unreadOnly bool) ([]models.Notification, error)
	MarkRead(ctx context.Context, id string) error
}

// RequestHandler exposes the approval workflow endpoints.
type RequestHandler struct {
	service       approvalService
	notifications notificationReader
}

// NewRequestHandler constructs the handler.
func NewRequestHandler(service approvalService, notifications notificationReader) *RequestHandler {
	return &RequestHandler{service: service, notifications: notifications}
}

// List godoc
// @Summary List resource requests visible to the caller
// @Tags Requests
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	var query dto.ListRequestsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request query"))
		return
	}
	requests, err := h.service.List(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get one resource request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	request, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Approve godoc
// @Summary Approve a pending request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/approve [post]
func (h *RequestHandler) Approve(c *gin.Context) {
	result, err := h.service.Approve(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Reject godoc
// @Summary Reject a request with a mandatory message
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.RejectRequestPayload true "Rejection message"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/reject [post]
func (h *RequestHandler) Reject(c *gin.Context) {
	var payload dto.RejectRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "a rejection message is required"))
		return
	}
	result, err := h.service.Reject(c.Request.Context(), claimsFromContext(c), c.Param("id"), payload.Message)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Cancel godoc
// @Summary Cancel a pending request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /requests/{id} [delete]
func (h *RequestHandler) Cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Notifications godoc
// @Summary List the caller's department notifications
// @Tags Requests
// @Produce json
// @Param unread query bool false "Only unread"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *RequestHandler) Notifications(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.DepartmentID == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "caller has no department inbox"))
		return
	}
	unreadOnly := c.Query("unread") == "true"
	notifications, err := h.notifications.ListForDepartment(c.Request.Context(), *claims.DepartmentID, unreadOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notifications, nil)
}

// MarkNotificationRead godoc
// @Summary Mark a notification as read
// @Tags Requests
// @Produce json
// @Param id path string true "Notification ID"
// @Success 204
// @Router /notifications/{id}/read [post]
func (h *RequestHandler) MarkNotificationRead(c *gin.Context) {
	if err := h.notifications.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
