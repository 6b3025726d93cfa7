package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uniplan/timetable-api/internal/models"
)

type directoryStub struct {
	programs    map[string]*models.Program
	instructors map[string]*models.Instructor
	classrooms  map[string]*models.Classroom
	groups      map[string]*models.ClassGroup
}

func newDirectoryStub() *directoryStub {
	return &directoryStub{
		programs:    make(map[string]*models.Program),
		instructors: make(map[string]*models.Instructor),
		classrooms:  make(map[string]*models.Classroom),
		groups:      make(map[string]*models.ClassGroup),
	}
}

func (d *directoryStub) GetProgram(ctx context.Context, id string) (*models.Program, error) {
	if p, ok := d.programs[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (d *directoryStub) GetInstructor(ctx context.Context, id string) (*models.Instructor, error) {
	if i, ok := d.instructors[id]; ok {
		return i, nil
	}
	return nil, sql.ErrNoRows
}

func (d *directoryStub) GetClassroom(ctx context.Context, id string) (*models.Classroom, error) {
	if c, ok := d.classrooms[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (d *directoryStub) GetClassGroup(ctx context.Context, id string) (*models.ClassGroup, error) {
	if g, ok := d.groups[id]; ok {
		return g, nil
	}
	return nil, sql.ErrNoRows
}

// Seeds a math program under the science department plus a business
// instructor under the business department.
func seedCrossDepartment(d *directoryStub) {
	d.programs["prog-math"] = &models.Program{ID: "prog-math", Name: "Mathematics", DepartmentID: strPtr("dept-science")}
	d.instructors["instr-sci"] = &models.Instructor{ID: "instr-sci", DepartmentID: strPtr("dept-science")}
	d.instructors["instr-biz"] = &models.Instructor{ID: "instr-biz", DepartmentID: strPtr("dept-business")}
	d.classrooms["room-sci"] = &models.Classroom{ID: "room-sci", PreferredDepartmentID: strPtr("dept-science")}
	d.classrooms["room-biz"] = &models.Classroom{ID: "room-biz", PreferredDepartmentID: strPtr("dept-business")}
	d.classrooms["room-open"] = &models.Classroom{ID: "room-open"}
}

func TestOwnershipLocalResources(t *testing.T) {
	directory := newDirectoryStub()
	seedCrossDepartment(directory)
	svc := NewOwnershipService(directory, nil)

	result, err := svc.Resolve(context.Background(), "prog-math", strPtr("instr-sci"), strPtr("room-sci"))
	require.NoError(t, err)
	require.False(t, result.CrossDepartment)
}

func TestOwnershipForeignInstructor(t *testing.T) {
	directory := newDirectoryStub()
	seedCrossDepartment(directory)
	svc := NewOwnershipService(directory, nil)

	result, err := svc.Resolve(context.Background(), "prog-math", strPtr("instr-biz"), strPtr("room-sci"))
	require.NoError(t, err)
	require.True(t, result.CrossDepartment)
	require.Equal(t, models.ResourceTypeInstructor, result.ResourceType)
	require.Equal(t, "instr-biz", result.ResourceID)
	require.Equal(t, "dept-business", result.TargetDepartmentID)
}

func TestOwnershipForeignClassroom(t *testing.T) {
	directory := newDirectoryStub()
	seedCrossDepartment(directory)
	svc := NewOwnershipService(directory, nil)

	result, err := svc.Resolve(context.Background(), "prog-math", strPtr("instr-sci"), strPtr("room-biz"))
	require.NoError(t, err)
	require.True(t, result.CrossDepartment)
	require.Equal(t, models.ResourceTypeClassroom, result.ResourceType)
	require.Equal(t, "dept-business", result.TargetDepartmentID)
}

func TestOwnershipInstructorTakesPrecedence(t *testing.T) {
	directory := newDirectoryStub()
	seedCrossDepartment(directory)
	svc := NewOwnershipService(directory, nil)

	// Both resources are foreign; a single request goes to the
	// instructor's department.
	result, err := svc.Resolve(context.Background(), "prog-math", strPtr("instr-biz"), strPtr("room-biz"))
	require.NoError(t, err)
	require.True(t, result.CrossDepartment)
	require.Equal(t, models.ResourceTypeInstructor, result.ResourceType)
}

func TestOwnershipUnownedResourcesNeverTrigger(t *testing.T) {
	directory := newDirectoryStub()
	seedCrossDepartment(directory)
	directory.instructors["instr-free"] = &models.Instructor{ID: "instr-free"}
	svc := NewOwnershipService(directory, nil)

	result, err := svc.Resolve(context.Background(), "prog-math", strPtr("instr-free"), strPtr("room-open"))
	require.NoError(t, err)
	require.False(t, result.CrossDepartment)
}

func TestOwnershipProgramWithoutDepartment(t *testing.T) {
	directory := newDirectoryStub()
	seedCrossDepartment(directory)
	directory.programs["prog-new"] = &models.Program{ID: "prog-new"}
	svc := NewOwnershipService(directory, nil)

	result, err := svc.Resolve(context.Background(), "prog-new", strPtr("instr-biz"), nil)
	require.NoError(t, err)
	require.False(t, result.CrossDepartment)
}

func TestOwnershipNilResources(t *testing.T) {
	directory := newDirectoryStub()
	seedCrossDepartment(directory)
	svc := NewOwnershipService(directory, nil)

	cross, err := svc.IsCrossDepartment(context.Background(), "prog-math", nil, nil)
	require.NoError(t, err)
	require.False(t, cross)
}
