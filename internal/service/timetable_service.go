package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/uniplan/timetable-api/internal/dto"
	"github.com/uniplan/timetable-api/internal/grid"
	"github.com/uniplan/timetable-api/internal/models"
	"github.com/uniplan/timetable-api/internal/repository"
	"github.com/uniplan/timetable-api/pkg/config"
	appErrors "github.com/uniplan/timetable-api/pkg/errors"
)

type assignmentStore interface {
	Insert(ctx context.Context, exec sqlx.ExtContext, assignment *models.TimetableAssignment, periodCount int) error
	InsertForMove(ctx context.Context, exec sqlx.ExtContext, assignment *models.TimetableAssignment, periodCount int, originID string) error
	Move(ctx context.Context, origin *models.TimetableAssignment, to models.Slot, periodCount int, status models.AssignmentStatus) (*models.TimetableAssignment, error)
	FindBySlot(ctx context.Context, slot models.Slot) (*models.TimetableAssignment, error)
	DeleteBySlot(ctx context.Context, exec sqlx.ExtContext, slot models.Slot) error
	DeleteByID(ctx context.Context, exec sqlx.ExtContext, id string) error
	ListBySemester(ctx context.Context, semesterID string) ([]models.GridEntry, error)
}

type requestCreator interface {
	Create(ctx context.Context, exec sqlx.ExtContext, request *models.ResourceRequest) error
}

type sessionReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassSession, error)
}

type semesterReader interface {
	FindByID(ctx context.Context, id string) (*models.Semester, error)
	FindActive(ctx context.Context) (*models.Semester, error)
}

type resourceDirectory interface {
	GetClassGroup(ctx context.Context, id string) (*models.ClassGroup, error)
	GetInstructor(ctx context.Context, id string) (*models.Instructor, error)
	GetClassroom(ctx context.Context, id string) (*models.Classroom, error)
}

type ownershipResolver interface {
	Resolve(ctx context.Context, programID string, instructorID, classroomID *string) (*OwnershipResult, error)
}

type conflictDetector interface {
	Detect(candidate Candidate, entries []models.GridEntry) ConflictReport
}

type gridCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string)
}

type requestNotifier interface {
	RequestOpened(request *models.ResourceRequest)
	RequestCancelled(request *models.ResourceRequest)
}

type txRunner interface {
	RunInTx(ctx context.Context, fn func(tx sqlx.ExtContext) error) error
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type placementMetrics interface {
	ObservePlacement(operation, outcome string)
	ObserveConflicts(severity string, count int)
}

// TimetableService orchestrates placements on the weekly grid: validate
// the slot, evaluate conflicts, resolve resource ownership, then either
// confirm the assignment locally or open a cross-department request.
type TimetableService struct {
	assignments assignmentStore
	requests    requestCreator
	sessions    sessionReader
	semesters   semesterReader
	directory   resourceDirectory
	ownership   ownershipResolver
	conflicts   conflictDetector
	cache       gridCache
	notifier    requestNotifier
	tx          txRunner
	audit       auditRecorder
	metrics     placementMetrics
	cfg         config.SchedulingConfig
	logger      *zap.Logger
}

// NewTimetableService constructs the service.
func NewTimetableService(
	assignments assignmentStore,
	requests requestCreator,
	sessions sessionReader,
	semesters semesterReader,
	directory resourceDirectory,
	ownership ownershipResolver,
	conflicts conflictDetector,
	cache gridCache,
	notifier requestNotifier,
	tx txRunner,
	audit auditRecorder,
	metrics placementMetrics,
	cfg config.SchedulingConfig,
	logger *zap.Logger,
) *TimetableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{
		assignments: assignments,
		requests:    requests,
		sessions:    sessions,
		semesters:   semesters,
		directory:   directory,
		ownership:   ownership,
		conflicts:   conflicts,
		cache:       cache,
		notifier:    notifier,
		tx:          tx,
		audit:       audit,
		metrics:     metrics,
		cfg:         cfg,
		logger:      logger,
	}
}

// placement bundles what assign and move share after validation: the
// session, the conflict report, and the ownership decision.
type placement struct {
	session   *models.ClassSession
	report    ConflictReport
	ownership *OwnershipResult
}

// AssignSession places a session at a starting slot. Local placements
// come back CONFIRMED; placements using another department's instructor
// or classroom come back PENDING together with the opened request.
func (s *TimetableService) AssignSession(ctx context.Context, actor *models.JWTClaims, req dto.AssignSessionRequest) (*dto.AssignSessionResult, error) {
	plan, err := s.prepare(ctx, actor, req.ClassSessionID, req.SemesterID, req.ClassGroupID, req.PeriodIndex)
	if err != nil {
		return nil, err
	}

	assignment := &models.TimetableAssignment{
		ClassSessionID: plan.session.ID,
		ClassGroupID:   req.ClassGroupID,
		PeriodIndex:    req.PeriodIndex,
		SemesterID:     req.SemesterID,
		Status:         models.AssignmentStatusConfirmed,
	}

	var request *models.ResourceRequest
	if plan.ownership.CrossDepartment {
		assignment.Status = models.AssignmentStatusPending
		request = s.buildRequest(actor, plan, nil)
	}

	err = s.tx.RunInTx(ctx, func(tx sqlx.ExtContext) error {
		if err := s.assignments.Insert(ctx, tx, assignment, plan.session.PeriodCount); err != nil {
			return err
		}
		if request != nil {
			return s.requests.Create(ctx, tx, request)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, actor, models.AuditActionAssignSession, assignment, request)

	result := &dto.AssignSessionResult{
		Assignment:       assignment,
		RequiresApproval: request != nil,
		Warnings:         plan.report.Warnings,
	}
	if request != nil {
		result.RequestID = request.ID
	}
	return result, nil
}

// MoveSession relocates a session's assignment to a new slot. The
// destination insert and the origin delete commit together, so a failed
// move leaves the origin untouched. A cross-department destination opens
// a request recording the origin slot for restoration on rejection.
func (s *TimetableService) MoveSession(ctx context.Context, actor *models.JWTClaims, req dto.MoveSessionRequest) (*dto.MoveSessionResult, error) {
	plan, err := s.prepare(ctx, actor, req.ClassSessionID, req.SemesterID, req.ToGroupID, req.ToPeriod)
	if err != nil {
		return nil, err
	}

	origin, err := s.assignments.FindBySlot(ctx, models.Slot{
		ClassGroupID: req.FromGroupID,
		PeriodIndex:  req.FromPeriod,
		SemesterID:   req.SemesterID,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("load origin assignment: %w", err)
	}
	if origin.ClassSessionID != req.ClassSessionID {
		return nil, appErrors.Clone(appErrors.ErrAssignmentNotFound, "session is not assigned at the origin slot")
	}

	to := models.Slot{
		ClassGroupID: req.ToGroupID,
		PeriodIndex:  req.ToPeriod,
		SemesterID:   req.SemesterID,
	}

	var (
		moved   *models.TimetableAssignment
		request *models.ResourceRequest
	)
	if plan.ownership.CrossDepartment {
		moved = &models.TimetableAssignment{
			ClassSessionID: origin.ClassSessionID,
			ClassGroupID:   to.ClassGroupID,
			PeriodIndex:    to.PeriodIndex,
			SemesterID:     to.SemesterID,
			Status:         models.AssignmentStatusPending,
		}
		request = s.buildRequest(actor, plan, origin)
		err = s.tx.RunInTx(ctx, func(tx sqlx.ExtContext) error {
			if err := s.assignments.InsertForMove(ctx, tx, moved, plan.session.PeriodCount, origin.ID); err != nil {
				return err
			}
			// Delete by id, not by slot coordinates: when the origin and
			// destination slots coincide the pending row already occupies
			// the same coordinates and must survive the delete.
			if err := s.assignments.DeleteByID(ctx, tx, origin.ID); err != nil {
				return err
			}
			return s.requests.Create(ctx, tx, request)
		})
	} else {
		moved, err = s.assignments.Move(ctx, origin, to, plan.session.PeriodCount, models.AssignmentStatusConfirmed)
	}
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, actor, models.AuditActionMoveSession, moved, request)

	result := &dto.MoveSessionResult{
		Assignment:       moved,
		RequiresApproval: request != nil,
		Warnings:         plan.report.Warnings,
	}
	if request != nil {
		result.RequestID = request.ID
	}
	return result, nil
}

// RemoveSession clears a slot. Removing a vacant slot succeeds quietly.
func (s *TimetableService) RemoveSession(ctx context.Context, actor *models.JWTClaims, req dto.RemoveSessionRequest) error {
	slot := models.Slot{
		ClassGroupID: req.ClassGroupID,
		PeriodIndex:  req.PeriodIndex,
		SemesterID:   req.SemesterID,
	}

	assignment, err := s.assignments.FindBySlot(ctx, slot)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("load assignment: %w", err)
	}

	session, err := s.sessions.FindByID(ctx, assignment.ClassSessionID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("load class session: %w", err)
	}
	if session != nil {
		if err := s.authorize(actor, session); err != nil {
			return err
		}
	}

	if err := s.assignments.DeleteBySlot(ctx, nil, slot); err != nil {
		return err
	}

	s.afterMutation(ctx, actor, models.AuditActionRemoveSession, assignment, nil)
	return nil
}

// GetGrid returns the semester's hydrated grid, served from cache when
// fresh. An optional group filter narrows the entries after the cache
// read so all filters share one cached payload.
func (s *TimetableService) GetGrid(ctx context.Context, semesterID, classGroupID string) (*dto.GridResponse, error) {
	if _, err := s.semesters.FindByID(ctx, semesterID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, fmt.Errorf("load semester: %w", err)
	}

	key := repository.GridKey(semesterID)
	var entries []models.GridEntry
	if err := s.cache.Get(ctx, key, &entries); err != nil {
		entries, err = s.assignments.ListBySemester(ctx, semesterID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, key, entries, s.cfg.GridCacheTTL); err != nil {
			s.logger.Warn("failed to cache semester grid", zap.String("semester_id", semesterID), zap.Error(err))
		}
	}

	if classGroupID != "" {
		filtered := entries[:0:0]
		for _, entry := range entries {
			if entry.Assignment.ClassGroupID == classGroupID {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	return &dto.GridResponse{SemesterID: semesterID, Entries: entries}, nil
}

// prepare runs the shared validation pipeline: load session and
// semester, authorize the actor, validate the period range, detect
// conflicts, and resolve ownership.
func (s *TimetableService) prepare(ctx context.Context, actor *models.JWTClaims, sessionID, semesterID, groupID string, periodIndex int) (*placement, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class session not found")
		}
		return nil, fmt.Errorf("load class session: %w", err)
	}
	if err := s.authorize(actor, session); err != nil {
		return nil, err
	}

	semester, err := s.semesters.FindByID(ctx, semesterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, fmt.Errorf("load semester: %w", err)
	}

	rng, err := grid.OccupiedRange(semester.Config(), periodIndex, session.PeriodCount)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	candidate := Candidate{SessionID: session.ID, Range: rng}
	candidate.Group, err = s.directory.GetClassGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class group not found")
		}
		return nil, fmt.Errorf("load class group: %w", err)
	}
	if session.InstructorID != nil {
		candidate.Instructor, err = s.directory.GetInstructor(ctx, *session.InstructorID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("load instructor: %w", err)
		}
	}
	if session.ClassroomID != nil {
		candidate.Classroom, err = s.directory.GetClassroom(ctx, *session.ClassroomID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("load classroom: %w", err)
		}
	}

	entries, err := s.assignments.ListBySemester(ctx, semesterID)
	if err != nil {
		return nil, err
	}

	report := s.conflicts.Detect(candidate, entries)
	if s.metrics != nil {
		s.metrics.ObserveConflicts("hard", len(report.Hard))
		s.metrics.ObserveConflicts("soft", len(report.Warnings))
	}
	if report.HasHard() && s.cfg.EnforceHardConflicts {
		return nil, appErrors.Clone(appErrors.ErrHardConflict, strings.Join(report.Hard, " "))
	}

	ownership, err := s.ownership.Resolve(ctx, session.ProgramID, session.InstructorID, session.ClassroomID)
	if err != nil {
		return nil, err
	}

	return &placement{
		session:   session,
		report:    report,
		ownership: ownership,
	}, nil
}

func (s *TimetableService) authorize(actor *models.JWTClaims, session *models.ClassSession) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleProgramHead:
		if actor.ProgramID != nil && *actor.ProgramID == session.ProgramID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrNotAuthorized, "only the session's program head may schedule it")
}

func (s *TimetableService) buildRequest(actor *models.JWTClaims, plan *placement, origin *models.TimetableAssignment) *models.ResourceRequest {
	request := &models.ResourceRequest{
		ResourceType:        plan.ownership.ResourceType,
		ResourceID:          plan.ownership.ResourceID,
		RequesterID:         actor.UserID,
		RequestingProgramID: plan.session.ProgramID,
		TargetDepartmentID:  plan.ownership.TargetDepartmentID,
		ClassSessionID:      plan.session.ID,
		Status:              models.RequestStatusPending,
	}
	if origin != nil {
		request.OriginalGroupID = &origin.ClassGroupID
		request.OriginalPeriodIndex = &origin.PeriodIndex
	}
	return request
}

// afterMutation invalidates the grid cache, records the audit trail, and
// notifies the target department, none of which may fail the mutation.
func (s *TimetableService) afterMutation(ctx context.Context, actor *models.JWTClaims, action string, assignment *models.TimetableAssignment, request *models.ResourceRequest) {
	s.cache.Delete(ctx, repository.GridKey(assignment.SemesterID))

	if s.metrics != nil {
		outcome := strings.ToLower(string(assignment.Status))
		if action == models.AuditActionRemoveSession {
			outcome = "removed"
		}
		s.metrics.ObservePlacement(strings.ToLower(action), outcome)
	}

	if request != nil && s.notifier != nil {
		s.notifier.RequestOpened(request)
	}

	if s.audit != nil {
		payload, _ := json.Marshal(assignment)
		log := &models.AuditLog{
			Action:     action,
			Resource:   "timetable_assignment",
			ResourceID: &assignment.ID,
			NewValues:  payload,
		}
		if actor != nil {
			log.UserID = &actor.UserID
		}
		if err := s.audit.CreateAuditLog(ctx, log); err != nil {
			s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		}
	}
}
