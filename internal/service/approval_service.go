package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/uniplan/timetable-api/internal/dto"
	"github.com/uniplan/timetable-api/internal/models"
	"github.com/uniplan/timetable-api/internal/repository"
	appErrors "github.com/uniplan/timetable-api/pkg/errors"
)

type requestStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, request *models.ResourceRequest) error
	GetByID(ctx context.Context, id string) (*models.ResourceRequest, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.ResourceRequest, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, params repository.UpdateRequestParams) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type decisionMetrics interface {
	ObserveDecision(decision string)
}

type reviewAssignmentStore interface {
	FindBySession(ctx context.Context, sessionID, semesterID string) (*models.TimetableAssignment, error)
	InsertForMove(ctx context.Context, exec sqlx.ExtContext, assignment *models.TimetableAssignment, periodCount int, originID string) error
	DeleteByID(ctx context.Context, exec sqlx.ExtContext, id string) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.AssignmentStatus) error
}

// ApprovalService drives the request state machine. Every decision
// writes the request row and the assignment row in one transaction, so
// a crash can never leave an approved request with a pending placement.
type ApprovalService struct {
	requests    requestStore
	assignments reviewAssignmentStore
	sessions    sessionReader
	semesters   semesterReader
	cache       gridCache
	notifier    requestNotifier
	tx          txRunner
	audit       auditRecorder
	metrics     decisionMetrics
	logger      *zap.Logger
}

// NewApprovalService constructs the service.
func NewApprovalService(
	requests requestStore,
	assignments reviewAssignmentStore,
	sessions sessionReader,
	semesters semesterReader,
	cache gridCache,
	notifier requestNotifier,
	tx txRunner,
	audit auditRecorder,
	metrics decisionMetrics,
	logger *zap.Logger,
) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		requests:    requests,
		assignments: assignments,
		sessions:    sessions,
		semesters:   semesters,
		cache:       cache,
		notifier:    notifier,
		tx:          tx,
		audit:       audit,
		metrics:     metrics,
		logger:      logger,
	}
}

// Approve confirms a pending request and flips the session's placement
// to CONFIRMED. Only the target department's head (or an admin) may
// decide, and only while the request is still pending.
func (s *ApprovalService) Approve(ctx context.Context, actor *models.JWTClaims, requestID string) (*dto.ReviewResult, error) {
	request, err := s.loadForReview(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}

	semester, err := s.activeSemester(ctx)
	if err != nil {
		return nil, err
	}

	assignment, err := s.assignments.FindBySession(ctx, request.ClassSessionID, semester.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("load session assignment: %w", err)
	}

	now := time.Now().UTC()
	err = s.tx.RunInTx(ctx, func(tx sqlx.ExtContext) error {
		err := s.requests.UpdateStatus(ctx, tx, repository.UpdateRequestParams{
			ID:         request.ID,
			Status:     models.RequestStatusApproved,
			ReviewedBy: actor.UserID,
			ReviewedAt: now,
			Expected:   []models.RequestStatus{models.RequestStatusPending},
		})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrNotPending
			}
			return err
		}
		if err := s.assignments.UpdateStatus(ctx, tx, assignment.ID, models.AssignmentStatusConfirmed); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrAssignmentNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	request.Status = models.RequestStatusApproved
	request.ReviewedBy = &actor.UserID
	request.ReviewedAt = &now
	assignment.Status = models.AssignmentStatusConfirmed

	s.afterReview(ctx, actor, models.AuditActionApproveRequest, request, semester.ID)
	return &dto.ReviewResult{Request: request}, nil
}

// Reject denies a pending or approved request with a mandatory message.
// A rejected move restores the placement to its recorded original slot;
// a rejected fresh assignment is removed from the grid.
func (s *ApprovalService) Reject(ctx context.Context, actor *models.JWTClaims, requestID, message string) (*dto.ReviewResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a rejection message is required")
	}

	request, err := s.loadForReview(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}

	semester, err := s.activeSemester(ctx)
	if err != nil {
		return nil, err
	}

	assignment, err := s.assignments.FindBySession(ctx, request.ClassSessionID, semester.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load session assignment: %w", err)
	}

	session, err := s.sessions.FindByID(ctx, request.ClassSessionID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load class session: %w", err)
	}
	periodCount := 1
	if session != nil {
		periodCount = session.PeriodCount
	}

	action := models.RejectActionNoChange
	now := time.Now().UTC()
	err = s.tx.RunInTx(ctx, func(tx sqlx.ExtContext) error {
		err := s.requests.UpdateStatus(ctx, tx, repository.UpdateRequestParams{
			ID:         request.ID,
			Status:     models.RequestStatusRejected,
			ReviewedBy: actor.UserID,
			ReviewedAt: now,
			Notes:      &message,
			Expected:   []models.RequestStatus{models.RequestStatusPending, models.RequestStatusApproved},
		})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrNotPendingOrApproved
			}
			return err
		}

		if assignment == nil {
			return nil
		}

		if original := request.OriginalSlot(semester.ID); original != nil {
			restored := &models.TimetableAssignment{
				ClassSessionID: request.ClassSessionID,
				ClassGroupID:   original.ClassGroupID,
				PeriodIndex:    original.PeriodIndex,
				SemesterID:     original.SemesterID,
				Status:         models.AssignmentStatusConfirmed,
			}
			if err := s.assignments.InsertForMove(ctx, tx, restored, periodCount, assignment.ID); err != nil {
				return err
			}
			if err := s.assignments.DeleteByID(ctx, tx, assignment.ID); err != nil {
				return err
			}
			action = models.RejectActionRestored
			return nil
		}

		if err := s.assignments.DeleteByID(ctx, tx, assignment.ID); err != nil {
			return err
		}
		action = models.RejectActionRemoved
		return nil
	})
	if err != nil {
		return nil, err
	}

	request.Status = models.RequestStatusRejected
	request.ReviewedBy = &actor.UserID
	request.ReviewedAt = &now
	request.Notes = &message

	s.afterReview(ctx, actor, models.AuditActionRejectRequest, request, semester.ID)
	return &dto.ReviewResult{Request: request, Action: action}, nil
}

// Cancel withdraws a pending request. Only the requester (or an admin)
// may cancel, and only while the request is pending; the provisional
// assignment stays on the grid for the program head to move or remove.
func (s *ApprovalService) Cancel(ctx context.Context, actor *models.JWTClaims, requestID string) error {
	request, err := s.getRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.UserID != request.RequesterID {
		return appErrors.Clone(appErrors.ErrNotAuthorized, "only the requester may cancel a request")
	}
	if request.Status != models.RequestStatusPending {
		return appErrors.Clone(appErrors.ErrNotPending, "only pending requests can be cancelled")
	}

	err = s.tx.RunInTx(ctx, func(tx sqlx.ExtContext) error {
		return s.requests.Delete(ctx, tx, request.ID)
	})
	if err != nil {
		return err
	}

	if s.notifier != nil {
		s.notifier.RequestCancelled(request)
	}
	s.observeDecision(models.AuditActionCancelRequest)
	s.recordAudit(ctx, actor, models.AuditActionCancelRequest, request)
	return nil
}

// List returns the requests visible to the actor: department heads see
// their department's inbox, program heads their own submissions, admins
// everything.
func (s *ApprovalService) List(ctx context.Context, actor *models.JWTClaims, query dto.ListRequestsQuery) ([]models.ResourceRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	filter := models.RequestFilter{Limit: query.Limit, Offset: query.Offset}
	if query.Status != "" {
		for _, raw := range strings.Split(query.Status, ",") {
			status := models.RequestStatus(strings.ToUpper(strings.TrimSpace(raw)))
			switch status {
			case models.RequestStatusPending, models.RequestStatusApproved,
				models.RequestStatusRejected, models.RequestStatusCancelled:
				filter.Status = append(filter.Status, status)
			default:
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown request status %q", raw))
			}
		}
	}

	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleDepartmentHead:
		if actor.DepartmentID == nil {
			return nil, appErrors.Clone(appErrors.ErrNotAuthorized, "department head has no department")
		}
		filter.TargetDepartmentID = *actor.DepartmentID
	default:
		filter.RequesterID = actor.UserID
	}

	requests, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

// Get returns one request if the actor may see it.
func (s *ApprovalService) Get(ctx context.Context, actor *models.JWTClaims, requestID string) (*models.ResourceRequest, error) {
	request, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	switch {
	case actor.Role == models.RoleAdmin:
	case actor.UserID == request.RequesterID:
	case actor.DepartmentID != nil && *actor.DepartmentID == request.TargetDepartmentID:
	default:
		return nil, appErrors.Clone(appErrors.ErrNotAuthorized, "request belongs to another department")
	}
	return request, nil
}

func (s *ApprovalService) getRequest(ctx context.Context, requestID string) (*models.ResourceRequest, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrRequestNotFound
		}
		return nil, fmt.Errorf("load request: %w", err)
	}
	return request, nil
}

// loadForReview loads the request and checks the decider's authority.
func (s *ApprovalService) loadForReview(ctx context.Context, actor *models.JWTClaims, requestID string) (*models.ResourceRequest, error) {
	request, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleAdmin {
		return request, nil
	}
	if actor.Role == models.RoleDepartmentHead &&
		actor.DepartmentID != nil && *actor.DepartmentID == request.TargetDepartmentID {
		return request, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotAuthorized, "only the target department's head may decide this request")
}

func (s *ApprovalService) activeSemester(ctx context.Context) (*models.Semester, error) {
	semester, err := s.semesters.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNoActiveSemester
		}
		return nil, fmt.Errorf("load active semester: %w", err)
	}
	return semester, nil
}

func (s *ApprovalService) afterReview(ctx context.Context, actor *models.JWTClaims, action string, request *models.ResourceRequest, semesterID string) {
	s.cache.Delete(ctx, repository.GridKey(semesterID))
	s.observeDecision(action)
	s.recordAudit(ctx, actor, action, request)
}

func (s *ApprovalService) observeDecision(action string) {
	if s.metrics == nil {
		return
	}
	switch action {
	case models.AuditActionApproveRequest:
		s.metrics.ObserveDecision("approved")
	case models.AuditActionRejectRequest:
		s.metrics.ObserveDecision("rejected")
	case models.AuditActionCancelRequest:
		s.metrics.ObserveDecision("cancelled")
	}
}

func (s *ApprovalService) recordAudit(ctx context.Context, actor *models.JWTClaims, action string, request *models.ResourceRequest) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   "resource_request",
		ResourceID: &request.ID,
	}
	if actor != nil {
		log.UserID = &actor.UserID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
