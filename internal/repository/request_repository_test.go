package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/uniplan/timetable-api/internal/models"
	appErrors "github.com/uniplan/timetable-api/pkg/errors"
)

func newRequestRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO resource_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	request := &models.ResourceRequest{
		ResourceType:        models.ResourceTypeInstructor,
		ResourceID:          "instructor-1",
		RequesterID:         "user-1",
		RequestingProgramID: "program-1",
		TargetDepartmentID:  "dept-2",
		ClassSessionID:      "session-1",
	}
	require.NoError(t, repo.Create(context.Background(), nil, request))
	require.NotEmpty(t, request.ID)
	require.Equal(t, models.RequestStatusPending, request.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryCreateRejectsSecondActiveRequest(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO resource_requests")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	request := &models.ResourceRequest{
		ResourceType:        models.ResourceTypeClassroom,
		ResourceID:          "room-1",
		RequesterID:         "user-1",
		RequestingProgramID: "program-1",
		TargetDepartmentID:  "dept-2",
		ClassSessionID:      "session-1",
	}
	err := repo.Create(context.Background(), nil, request)
	require.Error(t, err)
	require.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryUpdateStatusGuarded(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE resource_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err := repo.UpdateStatus(context.Background(), nil, UpdateRequestParams{
		ID:         "req-1",
		Status:     models.RequestStatusApproved,
		ReviewedBy: "head-1",
		ReviewedAt: now,
	})
	require.NoError(t, err)

	// a second reviewer racing the same transition hits zero rows
	mock.ExpectExec(regexp.QuoteMeta("UPDATE resource_requests")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.UpdateStatus(context.Background(), nil, UpdateRequestParams{
		ID:         "req-1",
		Status:     models.RequestStatusApproved,
		ReviewedBy: "head-2",
		ReviewedAt: now,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	rows := sqlmock.NewRows([]string{"id", "resource_type", "resource_id", "requester_id", "requesting_program_id",
		"target_department_id", "class_session_id", "status", "notes", "original_group_id", "original_period_index",
		"requested_at", "reviewed_at", "reviewed_by"}).
		AddRow("req-1", "INSTRUCTOR", "instructor-1", "user-1", "program-1", "dept-2", "session-1", "PENDING",
			nil, nil, nil, time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, resource_type, resource_id")).
		WithArgs("PENDING", "dept-2").
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), models.RequestFilter{
		Status:             []models.RequestStatus{models.RequestStatusPending},
		TargetDepartmentID: "dept-2",
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "req-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryCancelOpenBySession(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	rows := sqlmock.NewRows([]string{"id"}).AddRow("req-1").AddRow("req-2")
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE resource_requests SET status = 'CANCELLED'")).
		WillReturnRows(rows)

	ids, err := repo.CancelOpenBySession(context.Background(), nil, "session-1")
	require.NoError(t, err)
	require.Equal(t, []string{"req-1", "req-2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
