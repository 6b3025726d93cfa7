package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/uniplan/timetable-api/internal/models"
	appErrors "github.com/uniplan/timetable-api/pkg/errors"
)

type semesterStore interface {
	FindByID(ctx context.Context, id string) (*models.Semester, error)
	FindActive(ctx context.Context) (*models.Semester, error)
	List(ctx context.Context) ([]models.Semester, error)
	SetActive(ctx context.Context, id string) error
}

// SemesterService manages academic terms and the single-active-semester
// invariant.
type SemesterService struct {
	repo   semesterStore
	logger *zap.Logger
}

// NewSemesterService constructs the service.
func NewSemesterService(repo semesterStore, logger *zap.Logger) *SemesterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SemesterService{repo: repo, logger: logger}
}

// List returns all semesters, newest first.
func (s *SemesterService) List(ctx context.Context) ([]models.Semester, error) {
	semesters, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list semesters: %w", err)
	}
	return semesters, nil
}

// Get loads one semester.
func (s *SemesterService) Get(ctx context.Context, id string) (*models.Semester, error) {
	semester, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, fmt.Errorf("load semester: %w", err)
	}
	return semester, nil
}

// GetActive returns the currently active semester.
func (s *SemesterService) GetActive(ctx context.Context) (*models.Semester, error) {
	semester, err := s.repo.FindActive(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNoActiveSemester
		}
		return nil, fmt.Errorf("load active semester: %w", err)
	}
	return semester, nil
}

// SetActive switches the active semester. Admin only; deactivation of
// the previous term and activation of the new one share a transaction
// inside the repository.
func (s *SemesterService) SetActive(ctx context.Context, actor *models.JWTClaims, id string) error {
	if actor == nil || actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrNotAuthorized, "only an admin may switch the active semester")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id); err != nil {
		return fmt.Errorf("set active semester: %w", err)
	}
	s.logger.Info("active semester switched", zap.String("semester_id", id))
	return nil
}
