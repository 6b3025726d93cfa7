package dto

import "github.com/uniplan/timetable-api/internal/models"

// AssignSessionRequest places a class session at a starting slot.
type AssignSessionRequest struct {
	ClassSessionID string `json:"class_session_id" binding:"required,uuid"`
	ClassGroupID   string `json:"class_group_id" binding:"required,uuid"`
	PeriodIndex    int    `json:"period_index" binding:"min=0"`
	SemesterID     string `json:"semester_id" binding:"required,uuid"`
}

// AssignSessionResult reports the outcome of a placement.
type AssignSessionResult struct {
	Assignment       *models.TimetableAssignment `json:"assignment"`
	RequiresApproval bool                        `json:"requires_approval"`
	RequestID        string                      `json:"request_id,omitempty"`
	Warnings         []string                    `json:"warnings,omitempty"`
}

// MoveSessionRequest relocates a session from one slot to another.
type MoveSessionRequest struct {
	ClassSessionID string `json:"class_session_id" binding:"required,uuid"`
	FromGroupID    string `json:"from_group_id" binding:"required,uuid"`
	FromPeriod     int    `json:"from_period" binding:"min=0"`
	ToGroupID      string `json:"to_group_id" binding:"required,uuid"`
	ToPeriod       int    `json:"to_period" binding:"min=0"`
	SemesterID     string `json:"semester_id" binding:"required,uuid"`
}

// MoveSessionResult reports the outcome of a relocation.
type MoveSessionResult struct {
	Assignment       *models.TimetableAssignment `json:"assignment"`
	RequiresApproval bool                        `json:"requires_approval"`
	RequestID        string                      `json:"request_id,omitempty"`
	Warnings         []string                    `json:"warnings,omitempty"`
}

// RemoveSessionRequest clears a slot.
type RemoveSessionRequest struct {
	ClassGroupID string `json:"class_group_id" binding:"required,uuid"`
	PeriodIndex  int    `json:"period_index" binding:"min=0"`
	SemesterID   string `json:"semester_id" binding:"required,uuid"`
}

// GridResponse is the hydrated weekly grid of a semester.
type GridResponse struct {
	SemesterID string             `json:"semester_id"`
	Entries    []models.GridEntry `json:"entries"`
}
