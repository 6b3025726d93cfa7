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

type ownershipDirectory interface {
	GetProgram(ctx context.Context, id string) (*models.Program, error)
	GetInstructor(ctx context.Context, id string) (*models.Instructor, error)
	GetClassroom(ctx context.Context, id string) (*models.Classroom, error)
}

// OwnershipResult is the outcome of resolving a session's resources
// against its program's department. When CrossDepartment is true the
// first foreign resource (instructor before classroom) identifies the
// approving department.
type OwnershipResult struct {
	CrossDepartment    bool
	ResourceType       models.ResourceType
	ResourceID         string
	TargetDepartmentID string
}

// OwnershipService decides whether a placement needs cross-department
// approval. A program's department comes from its head's profile; a
// resource with no department, or a program with none, never triggers
// approval.
type OwnershipService struct {
	directory ownershipDirectory
	logger    *zap.Logger
}

// NewOwnershipService constructs the resolver.
func NewOwnershipService(directory ownershipDirectory, logger *zap.Logger) *OwnershipService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OwnershipService{directory: directory, logger: logger}
}

// Resolve compares the program's department against the departments of
// the session's instructor and classroom. Instructor mismatches win when
// both resources are foreign, so one request covers the placement.
func (s *OwnershipService) Resolve(ctx context.Context, programID string, instructorID, classroomID *string) (*OwnershipResult, error) {
	program, err := s.directory.GetProgram(ctx, programID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, fmt.Errorf("resolve program: %w", err)
	}
	if program.DepartmentID == nil {
		return &OwnershipResult{}, nil
	}
	homeDept := *program.DepartmentID

	if instructorID != nil {
		instructor, err := s.directory.GetInstructor(ctx, *instructorID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
			}
			return nil, fmt.Errorf("resolve instructor: %w", err)
		}
		if instructor.DepartmentID != nil && *instructor.DepartmentID != homeDept {
			return &OwnershipResult{
				CrossDepartment:    true,
				ResourceType:       models.ResourceTypeInstructor,
				ResourceID:         instructor.ID,
				TargetDepartmentID: *instructor.DepartmentID,
			}, nil
		}
	}

	if classroomID != nil {
		classroom, err := s.directory.GetClassroom(ctx, *classroomID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "classroom not found")
			}
			return nil, fmt.Errorf("resolve classroom: %w", err)
		}
		if classroom.PreferredDepartmentID != nil && *classroom.PreferredDepartmentID != homeDept {
			return &OwnershipResult{
				CrossDepartment:    true,
				ResourceType:       models.ResourceTypeClassroom,
				ResourceID:         classroom.ID,
				TargetDepartmentID: *classroom.PreferredDepartmentID,
			}, nil
		}
	}

	return &OwnershipResult{}, nil
}

// IsCrossDepartment is a convenience wrapper over Resolve.
func (s *OwnershipService) IsCrossDepartment(ctx context.Context, programID string, instructorID, classroomID *string) (bool, error) {
	result, err := s.Resolve(ctx, programID, instructorID, classroomID)
	if err != nil {
		return false, err
	}
	return result.CrossDepartment, nil
}
