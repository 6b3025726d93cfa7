package dto

// CreateSessionRequest registers a new class session.
type CreateSessionRequest struct {
	CourseID     string  `json:"course_id" binding:"required,uuid"`
	ClassGroupID string  `json:"class_group_id" binding:"required,uuid"`
	InstructorID *string `json:"instructor_id" binding:"omitempty,uuid"`
	ClassroomID  *string `json:"classroom_id" binding:"omitempty,uuid"`
	PeriodCount  int     `json:"period_count" binding:"required,min=1,max=12"`
}

// UpdateSessionRequest changes a session's resources or duration.
type UpdateSessionRequest struct {
	InstructorID *string `json:"instructor_id" binding:"omitempty,uuid"`
	ClassroomID  *string `json:"classroom_id" binding:"omitempty,uuid"`
	PeriodCount  *int    `json:"period_count" binding:"omitempty,min=1,max=12"`
}

// ListSessionsQuery filters session listings.
type ListSessionsQuery struct {
	ClassGroupID string `form:"class_group_id" binding:"omitempty,uuid"`
	InstructorID string `form:"instructor_id" binding:"omitempty,uuid"`
	Page         int    `form:"page,default=1" binding:"min=1"`
	PageSize     int    `form:"page_size,default=20" binding:"min=1,max=100"`
}
