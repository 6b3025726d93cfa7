package models

import "time"

// AssignmentStatus is the lifecycle status of a timetable assignment.
type AssignmentStatus string

const (
	// AssignmentStatusPending marks a provisional placement awaiting
	// cross-department approval. It occupies its slots like a confirmed one.
	AssignmentStatusPending AssignmentStatus = "PENDING"
	// AssignmentStatusConfirmed marks an authorized placement.
	AssignmentStatusConfirmed AssignmentStatus = "CONFIRMED"
)

// Slot is a coordinate in the weekly scheduling grid.
type Slot struct {
	ClassGroupID string `db:"class_group_id" json:"class_group_id"`
	PeriodIndex  int    `db:"period_index" json:"period_index"`
	SemesterID   string `db:"semester_id" json:"semester_id"`
}

// TimetableAssignment binds one class session to one starting slot.
// A session with period_count > 1 occupies that many consecutive period
// indices; every one of them must satisfy slot exclusivity.
type TimetableAssignment struct {
	ID             string           `db:"id" json:"id"`
	ClassSessionID string           `db:"class_session_id" json:"class_session_id"`
	ClassGroupID   string           `db:"class_group_id" json:"class_group_id"`
	PeriodIndex    int              `db:"period_index" json:"period_index"`
	SemesterID     string           `db:"semester_id" json:"semester_id"`
	Status         AssignmentStatus `db:"status" json:"status"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// Slot returns the assignment's starting slot coordinate.
func (a *TimetableAssignment) Slot() Slot {
	return Slot{
		ClassGroupID: a.ClassGroupID,
		PeriodIndex:  a.PeriodIndex,
		SemesterID:   a.SemesterID,
	}
}

// GridEntry is an assignment hydrated with its session and resources,
// used for semester grid reads and conflict detection.
type GridEntry struct {
	Assignment TimetableAssignment `json:"assignment"`
	Session    HydratedSession     `json:"session"`
}
