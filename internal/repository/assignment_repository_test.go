package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/uniplan/timetable-api/internal/models"
	appErrors "github.com/uniplan/timetable-api/pkg/errors"
)

func newAssignmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAssignmentRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_assignments")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assignment := &models.TimetableAssignment{
		ClassSessionID: "session-1",
		ClassGroupID:   "group-1",
		PeriodIndex:    5,
		SemesterID:     "sem-1",
		Status:         models.AssignmentStatusConfirmed,
	}
	require.NoError(t, repo.Insert(context.Background(), nil, assignment, 1))
	require.NotEmpty(t, assignment.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryInsertOccupied(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	// conflict-checked insert matched zero rows: the slot is taken
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_assignments")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assignment := &models.TimetableAssignment{
		ClassSessionID: "session-2",
		ClassGroupID:   "group-1",
		PeriodIndex:    5,
		SemesterID:     "sem-1",
		Status:         models.AssignmentStatusConfirmed,
	}
	err := repo.Insert(context.Background(), nil, assignment, 1)
	require.Error(t, err)
	require.True(t, appErrors.HasCode(err, appErrors.ErrSlotOccupied))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryMoveRollsBackOnOccupiedDestination(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_assignments")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	origin := &models.TimetableAssignment{
		ID:             "assignment-1",
		ClassSessionID: "session-1",
		ClassGroupID:   "group-1",
		PeriodIndex:    2,
		SemesterID:     "sem-1",
		Status:         models.AssignmentStatusConfirmed,
	}
	to := models.Slot{ClassGroupID: "group-1", PeriodIndex: 7, SemesterID: "sem-1"}

	_, err := repo.Move(context.Background(), origin, to, 1, models.AssignmentStatusConfirmed)
	require.Error(t, err)
	require.True(t, appErrors.HasCode(err, appErrors.ErrSlotOccupied))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryMoveCommits(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_assignments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetable_assignments WHERE id")).
		WithArgs("assignment-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	origin := &models.TimetableAssignment{
		ID:             "assignment-1",
		ClassSessionID: "session-1",
		ClassGroupID:   "group-1",
		PeriodIndex:    2,
		SemesterID:     "sem-1",
		Status:         models.AssignmentStatusConfirmed,
	}
	to := models.Slot{ClassGroupID: "group-2", PeriodIndex: 7, SemesterID: "sem-1"}

	moved, err := repo.Move(context.Background(), origin, to, 2, models.AssignmentStatusPending)
	require.NoError(t, err)
	require.Equal(t, "group-2", moved.ClassGroupID)
	require.Equal(t, 7, moved.PeriodIndex)
	require.Equal(t, models.AssignmentStatusPending, moved.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryFindBySlot(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	rows := sqlmock.NewRows([]string{"id", "class_session_id", "class_group_id", "period_index", "semester_id", "status", "created_at"}).
		AddRow("assignment-1", "session-1", "group-1", 5, "sem-1", "CONFIRMED", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, class_session_id, class_group_id")).
		WithArgs("group-1", 5, "sem-1").
		WillReturnRows(rows)

	found, err := repo.FindBySlot(context.Background(), models.Slot{ClassGroupID: "group-1", PeriodIndex: 5, SemesterID: "sem-1"})
	require.NoError(t, err)
	require.Equal(t, "assignment-1", found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryDeleteBySlotIdempotent(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetable_assignments WHERE class_group_id")).
		WithArgs("group-1", 5, "sem-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteBySlot(context.Background(), nil, models.Slot{ClassGroupID: "group-1", PeriodIndex: 5, SemesterID: "sem-1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
