package dto

import "github.com/uniplan/timetable-api/internal/models"

// RejectRequestPayload carries the mandatory rejection message.
type RejectRequestPayload struct {
	Message string `json:"message" binding:"required"`
}

// ReviewResult reports the outcome of an approve or reject decision.
type ReviewResult struct {
	Request *models.ResourceRequest `json:"request"`
	Action  models.RejectAction     `json:"action,omitempty"`
}

// ListRequestsQuery filters the request inbox.
type ListRequestsQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit,default=50" binding:"min=0,max=200"`
	Offset int    `form:"offset,default=0" binding:"min=0"`
}
