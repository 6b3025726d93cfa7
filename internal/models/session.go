package models

import "time"

// ClassSession is a teaching unit: a course taught to a class group,
// optionally by an instructor in a classroom. Both resources may stay
// null until a program head attaches them.
type ClassSession struct {
	ID           string    `db:"id" json:"id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	ClassGroupID string    `db:"class_group_id" json:"class_group_id"`
	InstructorID *string   `db:"instructor_id" json:"instructor_id,omitempty"`
	ClassroomID  *string   `db:"classroom_id" json:"classroom_id,omitempty"`
	PeriodCount  int       `db:"period_count" json:"period_count"`
	ProgramID    string    `db:"program_id" json:"program_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// SessionFilter describes query params for listing class sessions.
type SessionFilter struct {
	ProgramID    string
	ClassGroupID string
	InstructorID string
	Page         int
	PageSize     int
}

// HydratedSession carries a session together with its resolved resources.
// The conflict detector works over these so it never touches the store.
type HydratedSession struct {
	Session    ClassSession `json:"session"`
	Course     *Course      `json:"course,omitempty"`
	Group      *ClassGroup  `json:"group,omitempty"`
	Instructor *Instructor  `json:"instructor,omitempty"`
	Classroom  *Classroom   `json:"classroom,omitempty"`
}
