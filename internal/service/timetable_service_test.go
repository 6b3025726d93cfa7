package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/uniplan/timetable-api/internal/dto"
	"github.com/uniplan/timetable-api/internal/models"
	"github.com/uniplan/timetable-api/internal/repository"
	"github.com/uniplan/timetable-api/pkg/config"
	appErrors "github.com/uniplan/timetable-api/pkg/errors"
)

type timetableFixture struct {
	assignments *assignmentStoreStub
	requests    *requestStoreStub
	sessions    *sessionStoreStub
	semesters   *semesterStoreStub
	directory   *directoryStub
	cache       *cacheStub
	notifier    *notifierStub
	audit       *auditStub
	metrics     *metricsStub
	svc         *TimetableService
}

func newTimetableFixture() *timetableFixture {
	f := &timetableFixture{
		assignments: newAssignmentStoreStub(),
		requests:    newRequestStoreStub(),
		sessions:    newSessionStoreStub(),
		semesters:   newSemesterStoreStub(),
		directory:   newDirectoryStub(),
		cache:       newCacheStub(),
		notifier:    &notifierStub{},
		audit:       &auditStub{},
		metrics:     &metricsStub{},
	}

	f.semesters.semesters["sem-1"] = &models.Semester{
		ID: "sem-1", Name: "Odd", AcademicYear: "2026/2027",
		PeriodsPerDay: 8, ClassDaysPerWeek: 5, IsActive: true,
	}
	f.semesters.activeID = "sem-1"

	seedCrossDepartment(f.directory)
	f.directory.groups["group-1"] = &models.ClassGroup{ID: "group-1", Name: "10A", StudentCount: 25, ProgramID: "prog-math"}
	f.directory.groups["group-2"] = &models.ClassGroup{ID: "group-2", Name: "10B", StudentCount: 28, ProgramID: "prog-math"}

	f.sessions.sessions["session-local"] = &models.ClassSession{
		ID: "session-local", CourseID: "course-1", ClassGroupID: "group-1",
		InstructorID: strPtr("instr-sci"), ClassroomID: strPtr("room-sci"),
		PeriodCount: 1, ProgramID: "prog-math",
	}
	f.sessions.sessions["session-cross"] = &models.ClassSession{
		ID: "session-cross", CourseID: "course-2", ClassGroupID: "group-1",
		InstructorID: strPtr("instr-biz"), ClassroomID: strPtr("room-sci"),
		PeriodCount: 2, ProgramID: "prog-math",
	}
	f.assignments.sessionInfo = f.sessions.sessions

	ownership := NewOwnershipService(f.directory, nil)
	conflicts := NewConflictService(nil)
	f.svc = NewTimetableService(
		f.assignments, f.requests, f.sessions, f.semesters, f.directory,
		ownership, conflicts, f.cache, f.notifier, txStub{}, f.audit, f.metrics,
		config.SchedulingConfig{EnforceHardConflicts: true, GridCacheTTL: time.Minute},
		nil,
	)
	return f
}

func programHead() *models.JWTClaims {
	return &models.JWTClaims{UserID: "head-1", Role: models.RoleProgramHead, ProgramID: strPtr("prog-math")}
}

func TestAssignSessionLocalIsConfirmed(t *testing.T) {
	f := newTimetableFixture()

	result, err := f.svc.AssignSession(context.Background(), programHead(), dto.AssignSessionRequest{
		ClassSessionID: "session-local", ClassGroupID: "group-1", PeriodIndex: 2, SemesterID: "sem-1",
	})
	require.NoError(t, err)
	require.Equal(t, models.AssignmentStatusConfirmed, result.Assignment.Status)
	require.False(t, result.RequiresApproval)
	require.Empty(t, result.RequestID)
	require.Empty(t, f.requests.requests)
	require.Contains(t, f.cache.deleted, repository.GridKey("sem-1"))
	require.Len(t, f.audit.logs, 1)
}

func TestAssignSessionCrossDepartmentOpensRequest(t *testing.T) {
	f := newTimetableFixture()

	result, err := f.svc.AssignSession(context.Background(), programHead(), dto.AssignSessionRequest{
		ClassSessionID: "session-cross", ClassGroupID: "group-1", PeriodIndex: 4, SemesterID: "sem-1",
	})
	require.NoError(t, err)
	require.Equal(t, models.AssignmentStatusPending, result.Assignment.Status)
	require.True(t, result.RequiresApproval)
	require.NotEmpty(t, result.RequestID)

	request, err := f.requests.GetByID(context.Background(), result.RequestID)
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusPending, request.Status)
	require.Equal(t, models.ResourceTypeInstructor, request.ResourceType)
	require.Equal(t, "dept-business", request.TargetDepartmentID)
	require.Nil(t, request.OriginalGroupID)

	require.Len(t, f.notifier.opened, 1)
}

func TestAssignSessionOccupiedSlot(t *testing.T) {
	f := newTimetableFixture()

	_, err := f.svc.AssignSession(context.Background(), programHead(), dto.AssignSessionRequest{
		ClassSessionID: "session-local", ClassGroupID: "group-1", PeriodIndex: 2, SemesterID: "sem-1",
	})
	require.NoError(t, err)

	// session-cross spans periods 1-2, overlapping the occupied period
	// 2, but the group double booking is reported first as a hard
	// conflict.
	_, err = f.svc.AssignSession(context.Background(), programHead(), dto.AssignSessionRequest{
		ClassSessionID: "session-cross", ClassGroupID: "group-1", PeriodIndex: 1, SemesterID: "sem-1",
	})
	require.Error(t, err)
	require.True(t, appErrors.HasCode(err, appErrors.ErrHardConflict))
}

func TestAssignSessionInstructorConflictBlocked(t *testing.T) {
	f := newTimetableFixture()

	// Same instructor, different groups, overlapping periods.
	f.sessions.sessions["session-other"] = &models.ClassSession{
		ID: "session-other", CourseID: "course-3", ClassGroupID: "group-2",
		InstructorID: strPtr("instr-sci"), PeriodCount: 1, ProgramID: "prog-math",
	}
	_, err := f.svc.AssignSession(context.Background(), programHead(), dto.AssignSessionRequest{
		ClassSessionID: "session-other", ClassGroupID: "group-2", PeriodIndex: 3, SemesterID: "sem-1",
	})
	require.NoError(t, err)

	_, err = f.svc.AssignSession(context.Background(), programHead(), dto.AssignSessionRequest{
		ClassSessionID: "session-local", ClassGroupID: "group-1", PeriodIndex: 3, SemesterID: "sem-1",
	})
	require.Error(t, err)
	require.True(t, appErrors.HasCode(err, appErrors.ErrHardConflict))
}

func TestAssignSessionPeriodOutOfDomain(t *testing.T) {
	f := newTimetableFixture()

	_, err := f.svc.AssignSession(context.Background(), programHead(), dto.AssignSessionRequest{
		ClassSessionID: "session-local", ClassGroupID: "group-1", PeriodIndex: 40, SemesterID: "sem-1",
	})
	require.Error(t, err)
	require.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestAssignSessionForeignProgramHeadDenied(t *testing.T) {
	f := newTimetableFixture()

	outsider := &models.JWTClaims{UserID: "head-2", Role: models.RoleProgramHead, ProgramID: strPtr("prog-other")}
	_, err := f.svc.AssignSession(context.Background(), outsider, dto.AssignSessionRequest{
		ClassSessionID: "session-local", ClassGroupID: "group-1", PeriodIndex: 2, SemesterID: "sem-1",
	})
	require.Error(t, err)
	require.True(t, appErrors.HasCode(err, appErrors.ErrNotAuthorized))
}

func TestMoveSessionLocal(t *testing.T) {
	f := newTimetableFixture()

	_, err := f.svc.AssignSession(context.Background(), programHead(), dto.AssignSessionRequest{
		ClassSessionID: "session-local", ClassGroupID: "group-1", PeriodIndex: 2, SemesterID: "sem-1",
	})
	require.NoError(t, err)

	result, err := f.svc.MoveSession(context.Background(), programHead(), dto.MoveSessionRequest{
		ClassSessionID: "session-local",
		FromGroupID:    "group-1", FromPeriod: 2,
		ToGroupID: "group-1", ToPeriod: 5,
		SemesterID: "sem-1",
	})
	require.NoError(t, err)
	require.False(t, result.RequiresApproval)
	require.Equal(t, models.AssignmentStatusConfirmed, result.Assignment.Status)
	require.Equal(t, 5, result.Assignment.PeriodIndex)

	_, err = f.assignments.FindBySlot(context.Background(), models.Slot{
		ClassGroupID: "group-1", PeriodIndex: 2, SemesterID: "sem-1",
	})
	require.Error(t, err)
}

func TestMoveSessionCrossDepartmentRecordsOriginalSlot(t *testing.T) {
	f := newTimetableFixture()

	// Seed a confirmed placement directly, as if approval was granted
	// before the session's instructor changed departments.
	assignment := &models.TimetableAssignment{
		ClassSessionID: "session-cross", ClassGroupID: "group-1",
		PeriodIndex: 0, SemesterID: "sem-1", Status: models.AssignmentStatusConfirmed,
	}
	require.NoError(t, f.assignments.Insert(context.Background(), nil, assignment, 2))

	result, err := f.svc.MoveSession(context.Background(), programHead(), dto.MoveSessionRequest{
		ClassSessionID: "session-cross",
		FromGroupID:    "group-1", FromPeriod: 0,
		ToGroupID: "group-1", ToPeriod: 4,
		SemesterID: "sem-1",
	})
	require.NoError(t, err)
	require.True(t, result.RequiresApproval)
	require.Equal(t, models.AssignmentStatusPending, result.Assignment.Status)

	request, err := f.requests.GetByID(context.Background(), result.RequestID)
	require.NoError(t, err)
	require.NotNil(t, request.OriginalGroupID)
	require.Equal(t, "group-1", *request.OriginalGroupID)
	require.NotNil(t, request.OriginalPeriodIndex)
	require.Equal(t, 0, *request.OriginalPeriodIndex)
}

func TestMoveSessionCrossDepartmentSameSlotKeepsPlacement(t *testing.T) {
	f := newTimetableFixture()

	// Dropping a session back onto its own slot still goes through the
	// move path. The pending destination row shares the origin's
	// coordinates, so the origin must be deleted by id rather than by
	// slot or the fresh row vanishes with it.
	assignment := &models.TimetableAssignment{
		ClassSessionID: "session-cross", ClassGroupID: "group-1",
		PeriodIndex: 4, SemesterID: "sem-1", Status: models.AssignmentStatusConfirmed,
	}
	require.NoError(t, f.assignments.Insert(context.Background(), nil, assignment, 2))

	result, err := f.svc.MoveSession(context.Background(), programHead(), dto.MoveSessionRequest{
		ClassSessionID: "session-cross",
		FromGroupID:    "group-1", FromPeriod: 4,
		ToGroupID: "group-1", ToPeriod: 4,
		SemesterID: "sem-1",
	})
	require.NoError(t, err)
	require.True(t, result.RequiresApproval)

	occupant, err := f.assignments.FindBySlot(context.Background(), models.Slot{
		ClassGroupID: "group-1", PeriodIndex: 4, SemesterID: "sem-1",
	})
	require.NoError(t, err)
	require.Equal(t, "session-cross", occupant.ClassSessionID)
	require.Equal(t, models.AssignmentStatusPending, occupant.Status)
	require.NotEqual(t, assignment.ID, occupant.ID)

	request, err := f.requests.GetByID(context.Background(), result.RequestID)
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusPending, request.Status)
}

func TestMoveSessionWrongOrigin(t *testing.T) {
	f := newTimetableFixture()

	_, err := f.svc.MoveSession(context.Background(), programHead(), dto.MoveSessionRequest{
		ClassSessionID: "session-local",
		FromGroupID:    "group-1", FromPeriod: 7,
		ToGroupID: "group-1", ToPeriod: 5,
		SemesterID: "sem-1",
	})
	require.Error(t, err)
	require.True(t, appErrors.HasCode(err, appErrors.ErrAssignmentNotFound))
}

func TestRemoveSessionIsIdempotent(t *testing.T) {
	f := newTimetableFixture()

	err := f.svc.RemoveSession(context.Background(), programHead(), dto.RemoveSessionRequest{
		ClassGroupID: "group-1", PeriodIndex: 6, SemesterID: "sem-1",
	})
	require.NoError(t, err)
}

func TestRemoveSessionClearsSlot(t *testing.T) {
	f := newTimetableFixture()

	_, err := f.svc.AssignSession(context.Background(), programHead(), dto.AssignSessionRequest{
		ClassSessionID: "session-local", ClassGroupID: "group-1", PeriodIndex: 2, SemesterID: "sem-1",
	})
	require.NoError(t, err)

	err = f.svc.RemoveSession(context.Background(), programHead(), dto.RemoveSessionRequest{
		ClassGroupID: "group-1", PeriodIndex: 2, SemesterID: "sem-1",
	})
	require.NoError(t, err)

	_, err = f.assignments.FindBySlot(context.Background(), models.Slot{
		ClassGroupID: "group-1", PeriodIndex: 2, SemesterID: "sem-1",
	})
	require.Error(t, err)
}

func TestSecondActiveRequestForSessionRejected(t *testing.T) {
	f := newTimetableFixture()

	result, err := f.svc.AssignSession(context.Background(), programHead(), dto.AssignSessionRequest{
		ClassSessionID: "session-cross", ClassGroupID: "group-1", PeriodIndex: 4, SemesterID: "sem-1",
	})
	require.NoError(t, err)
	require.True(t, result.RequiresApproval)

	_, err = f.svc.MoveSession(context.Background(), programHead(), dto.MoveSessionRequest{
		ClassSessionID: "session-cross",
		FromGroupID:    "group-1", FromPeriod: 4,
		ToGroupID: "group-2", ToPeriod: 0,
		SemesterID: "sem-1",
	})
	require.Error(t, err)
	require.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
}

func TestPlacementsAndConflictsAreCounted(t *testing.T) {
	f := newTimetableFixture()

	_, err := f.svc.AssignSession(context.Background(), programHead(), dto.AssignSessionRequest{
		ClassSessionID: "session-local", ClassGroupID: "group-1", PeriodIndex: 2, SemesterID: "sem-1",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"assign_session:confirmed"}, f.metrics.placements)

	// Overlapping the occupied period is blocked, and the block itself
	// counts as a hard conflict.
	_, err = f.svc.AssignSession(context.Background(), programHead(), dto.AssignSessionRequest{
		ClassSessionID: "session-cross", ClassGroupID: "group-1", PeriodIndex: 1, SemesterID: "sem-1",
	})
	require.Error(t, err)
	require.Positive(t, f.metrics.conflicts["hard"])
	require.Len(t, f.metrics.placements, 1)
}

func TestGetGridFiltersByGroup(t *testing.T) {
	f := newTimetableFixture()

	_, err := f.svc.AssignSession(context.Background(), programHead(), dto.AssignSessionRequest{
		ClassSessionID: "session-local", ClassGroupID: "group-1", PeriodIndex: 2, SemesterID: "sem-1",
	})
	require.NoError(t, err)

	grid, err := f.svc.GetGrid(context.Background(), "sem-1", "group-2")
	require.NoError(t, err)
	require.Empty(t, grid.Entries)

	grid, err = f.svc.GetGrid(context.Background(), "sem-1", "group-1")
	require.NoError(t, err)
	require.Len(t, grid.Entries, 1)
}
