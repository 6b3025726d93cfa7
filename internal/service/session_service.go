package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/uniplan/timetable-api/internal/dto"
	"github.com/uniplan/timetable-api/internal/models"
	"github.com/uniplan/timetable-api/internal/repository"
	appErrors "github.com/uniplan/timetable-api/pkg/errors"
)

type sessionStore interface {
	FindByID(ctx context.Context, id string) (*models.ClassSession, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, int, error)
	Create(ctx context.Context, session *models.ClassSession) error
	Update(ctx context.Context, session *models.ClassSession) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type cascadeRequestStore interface {
	GetByID(ctx context.Context, id string) (*models.ResourceRequest, error)
	CancelOpenBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]string, error)
}

type cascadeAssignmentStore interface {
	DeleteBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) error
}

// SessionService manages class sessions. Deleting a session cascades:
// its assignments leave the grid and its open requests flip to
// CANCELLED in the same transaction, so reviewers never decide tickets
// for sessions that no longer exist.
type SessionService struct {
	sessions    sessionStore
	requests    cascadeRequestStore
	assignments cascadeAssignmentStore
	semesters   semesterReader
	directory   resourceDirectory
	cache       gridCache
	notifier    requestNotifier
	tx          txRunner
	logger      *zap.Logger
}

// NewSessionService constructs the service.
func NewSessionService(
	sessions sessionStore,
	requests cascadeRequestStore,
	assignments cascadeAssignmentStore,
	semesters semesterReader,
	directory resourceDirectory,
	cache gridCache,
	notifier requestNotifier,
	tx txRunner,
	logger *zap.Logger,
) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions:    sessions,
		requests:    requests,
		assignments: assignments,
		semesters:   semesters,
		directory:   directory,
		cache:       cache,
		notifier:    notifier,
		tx:          tx,
		logger:      logger,
	}
}

// Create registers a class session for the group's program.
func (s *SessionService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateSessionRequest) (*models.ClassSession, error) {
	group, err := s.directory.GetClassGroup(ctx, req.ClassGroupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class group not found")
		}
		return nil, fmt.Errorf("load class group: %w", err)
	}
	if err := s.authorize(actor, group.ProgramID); err != nil {
		return nil, err
	}

	session := &models.ClassSession{
		CourseID:     req.CourseID,
		ClassGroupID: req.ClassGroupID,
		InstructorID: req.InstructorID,
		ClassroomID:  req.ClassroomID,
		PeriodCount:  req.PeriodCount,
		ProgramID:    group.ProgramID,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Update changes a session's resources or duration. Changing resources
// does not touch existing placements; the next assign or move
// re-evaluates conflicts and ownership against the new resources.
func (s *SessionService) Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateSessionRequest) (*models.ClassSession, error) {
	session, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, session.ProgramID); err != nil {
		return nil, err
	}

	if req.InstructorID != nil {
		session.InstructorID = req.InstructorID
	}
	if req.ClassroomID != nil {
		session.ClassroomID = req.ClassroomID
	}
	if req.PeriodCount != nil {
		session.PeriodCount = *req.PeriodCount
	}

	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Delete removes a session together with its grid placements, flipping
// any open resource requests to CANCELLED first.
func (s *SessionService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	session, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(actor, session.ProgramID); err != nil {
		return err
	}

	var cancelled []string
	err = s.tx.RunInTx(ctx, func(tx sqlx.ExtContext) error {
		cancelled, err = s.requests.CancelOpenBySession(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		if err := s.assignments.DeleteBySession(ctx, tx, session.ID); err != nil {
			return err
		}
		return s.sessions.Delete(ctx, tx, session.ID)
	})
	if err != nil {
		return err
	}

	if semester, err := s.semesters.FindActive(ctx); err == nil {
		s.cache.Delete(ctx, repository.GridKey(semester.ID))
	}

	for _, requestID := range cancelled {
		request, err := s.requests.GetByID(ctx, requestID)
		if err != nil {
			s.logger.Warn("cancelled request vanished before notification",
				zap.String("request_id", requestID), zap.Error(err))
			continue
		}
		if s.notifier != nil {
			s.notifier.RequestCancelled(request)
		}
	}
	return nil
}

// Get loads one session.
func (s *SessionService) Get(ctx context.Context, id string) (*models.ClassSession, error) {
	return s.get(ctx, id)
}

// List pages through sessions matching the query. Program heads are
// scoped to their own program.
func (s *SessionService) List(ctx context.Context, actor *models.JWTClaims, query dto.ListSessionsQuery) ([]models.ClassSession, int, error) {
	filter := models.SessionFilter{
		ClassGroupID: query.ClassGroupID,
		InstructorID: query.InstructorID,
		Page:         query.Page,
		PageSize:     query.PageSize,
	}
	if actor != nil && actor.Role == models.RoleProgramHead && actor.ProgramID != nil {
		filter.ProgramID = *actor.ProgramID
	}
	return s.sessions.List(ctx, filter)
}

func (s *SessionService) get(ctx context.Context, id string) (*models.ClassSession, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class session not found")
		}
		return nil, fmt.Errorf("load class session: %w", err)
	}
	return session, nil
}

func (s *SessionService) authorize(actor *models.JWTClaims, programID string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleProgramHead:
		if actor.ProgramID != nil && *actor.ProgramID == programID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrNotAuthorized, "only the program's head may manage its sessions")
}
