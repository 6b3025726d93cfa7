package models

import "time"

// ResourceType identifies which shared resource a request covers.
type ResourceType string

const (
	ResourceTypeInstructor ResourceType = "INSTRUCTOR"
	ResourceTypeClassroom  ResourceType = "CLASSROOM"
)

// RequestStatus is a closed enumeration over the approval state machine.
// PENDING is the only non-terminal state.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusApproved  RequestStatus = "APPROVED"
	RequestStatusRejected  RequestStatus = "REJECTED"
	RequestStatusCancelled RequestStatus = "CANCELLED"
)

// Active reports whether the status still blocks a new request for the
// same class session.
func (s RequestStatus) Active() bool {
	return s == RequestStatusPending || s == RequestStatusApproved
}

// ResourceRequest is the approval ticket gating a cross-department
// placement. For moves it records the original slot so a rejection can
// restore it; fresh assigns leave the original slot nil and a rejection
// removes the placement instead.
type ResourceRequest struct {
	ID                  string        `db:"id" json:"id"`
	ResourceType        ResourceType  `db:"resource_type" json:"resource_type"`
	ResourceID          string        `db:"resource_id" json:"resource_id"`
	RequesterID         string        `db:"requester_id" json:"requester_id"`
	RequestingProgramID string        `db:"requesting_program_id" json:"requesting_program_id"`
	TargetDepartmentID  string        `db:"target_department_id" json:"target_department_id"`
	ClassSessionID      string        `db:"class_session_id" json:"class_session_id"`
	Status              RequestStatus `db:"status" json:"status"`
	Notes               *string       `db:"notes" json:"notes,omitempty"`
	OriginalGroupID     *string       `db:"original_group_id" json:"original_group_id,omitempty"`
	OriginalPeriodIndex *int          `db:"original_period_index" json:"original_period_index,omitempty"`
	RequestedAt         time.Time     `db:"requested_at" json:"requested_at"`
	ReviewedAt          *time.Time    `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy          *string       `db:"reviewed_by" json:"reviewed_by,omitempty"`
}

// OriginalSlot returns the recorded prior slot, if any.
func (r *ResourceRequest) OriginalSlot(semesterID string) *Slot {
	if r.OriginalGroupID == nil || r.OriginalPeriodIndex == nil {
		return nil
	}
	return &Slot{
		ClassGroupID: *r.OriginalGroupID,
		PeriodIndex:  *r.OriginalPeriodIndex,
		SemesterID:   semesterID,
	}
}

// RequestFilter describes listing filters for resource requests.
type RequestFilter struct {
	Status             []RequestStatus
	TargetDepartmentID string
	RequesterID        string
	ClassSessionID     string
	Limit              int
	Offset             int
}

// RejectAction is the outcome of rejecting a request.
type RejectAction string

const (
	RejectActionRestored RejectAction = "restored"
	RejectActionRemoved  RejectAction = "removed_from_timetable"
	RejectActionNoChange RejectAction = "no_change"
)

// Notification is the companion row emitted when a request is opened or
// cancelled. Delivery and rendering live outside this service.
type Notification struct {
	ID                 string     `db:"id" json:"id"`
	RequestID          string     `db:"request_id" json:"request_id"`
	TargetDepartmentID string     `db:"target_department_id" json:"target_department_id"`
	Message            string     `db:"message" json:"message"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	ReadAt             *time.Time `db:"read_at" json:"read_at,omitempty"`
}

// RequestEventType labels outbound approval-workflow events.
type RequestEventType string

const (
	RequestEventOpened    RequestEventType = "RequestOpened"
	RequestEventCancelled RequestEventType = "RequestCancelled"
)

// RequestEvent is published to the notification dispatcher whenever the
// approval workflow opens or cancels a request.
type RequestEvent struct {
	Type               RequestEventType `json:"type"`
	RequestID          string           `json:"request_id"`
	TargetDepartmentID string           `json:"target_department_id"`
	Message            string           `json:"message"`
	OccurredAt         time.Time        `json:"occurred_at"`
}
