package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniplan/timetable-api/internal/models"
	appErrors "github.com/uniplan/timetable-api/pkg/errors"
	"github.com/uniplan/timetable-api/pkg/storage"
)

func exportFixtureSemester() *models.Semester {
	return &models.Semester{
		ID:               "sem-1",
		Name:             "Odd",
		AcademicYear:     "2026/2027",
		PeriodsPerDay:    2,
		ClassDaysPerWeek: 2,
		IsActive:         true,
	}
}

func newExportFixture(t *testing.T, withArchive bool) (*ExportService, *assignmentStoreStub) {
	t.Helper()
	assignments := newAssignmentStoreStub()
	semesters := newSemesterStoreStub()
	semesters.semesters["sem-1"] = exportFixtureSemester()
	semesters.activeID = "sem-1"

	var archive *storage.LocalStorage
	var signer *storage.DownloadSigner
	if withArchive {
		var err error
		archive, err = storage.NewLocalStorage(t.TempDir())
		require.NoError(t, err)
		signer = storage.NewDownloadSigner("test-secret", time.Hour)
	}
	return NewExportService(assignments, semesters, archive, signer, nil), assignments
}

func TestExportServiceCSVRepeatsMultiPeriodSessions(t *testing.T) {
	svc, assignments := newExportFixture(t, false)

	assignments.assignments["asg-1"] = &models.TimetableAssignment{
		ID:             "asg-1",
		ClassSessionID: "sess-1",
		ClassGroupID:   "group-a",
		PeriodIndex:    0,
		SemesterID:     "sem-1",
		Status:         models.AssignmentStatusConfirmed,
	}
	assignments.periodCounts["asg-1"] = 2
	assignments.sessionInfo["sess-1"] = &models.ClassSession{
		ID:           "sess-1",
		CourseID:     "course-math",
		ClassGroupID: "group-a",
		PeriodCount:  2,
	}

	payload, filename, err := svc.ExportCSV(context.Background(), "sem-1")
	require.NoError(t, err)
	assert.Equal(t, "timetable-odd-2026-2027.csv", filename)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	// Header plus one row per period of a 2x2 grid.
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "Period")
	assert.Contains(t, lines[1], "course-math")
	assert.Contains(t, lines[2], "course-math")
	assert.NotContains(t, lines[3], "course-math")
}

func TestExportServiceMarksPendingPlacements(t *testing.T) {
	svc, assignments := newExportFixture(t, false)

	assignments.assignments["asg-1"] = &models.TimetableAssignment{
		ID:             "asg-1",
		ClassSessionID: "sess-1",
		ClassGroupID:   "group-a",
		PeriodIndex:    1,
		SemesterID:     "sem-1",
		Status:         models.AssignmentStatusPending,
	}
	assignments.periodCounts["asg-1"] = 1

	payload, _, err := svc.ExportCSV(context.Background(), "sem-1")
	require.NoError(t, err)
	assert.Contains(t, string(payload), "(pending)")
}

func TestExportServiceUnknownSemester(t *testing.T) {
	svc, _ := newExportFixture(t, false)

	_, _, err := svc.ExportCSV(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestExportServiceDownloadLinkRoundTrip(t *testing.T) {
	svc, assignments := newExportFixture(t, true)

	assignments.assignments["asg-1"] = &models.TimetableAssignment{
		ID:             "asg-1",
		ClassSessionID: "sess-1",
		ClassGroupID:   "group-a",
		PeriodIndex:    0,
		SemesterID:     "sem-1",
		Status:         models.AssignmentStatusConfirmed,
	}
	assignments.periodCounts["asg-1"] = 1

	link, err := svc.CreateDownloadLink(context.Background(), "sem-1", "csv")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link.URL, "/exports/download?token="))
	assert.Equal(t, "timetable-odd-2026-2027.csv", link.Filename)
	assert.True(t, link.ExpiresAt.After(time.Now()))

	token := strings.TrimPrefix(link.URL, "/exports/download?token=")
	payload, filename, err := svc.ReadDownload(token)
	require.NoError(t, err)
	assert.Equal(t, link.Filename, filename)
	assert.Contains(t, string(payload), "Period")
}

func TestExportServiceDownloadRejectsBadToken(t *testing.T) {
	svc, _ := newExportFixture(t, true)

	_, _, err := svc.ReadDownload("not.a.valid.token")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestExportServiceLinkRequiresConfiguredArchive(t *testing.T) {
	svc, _ := newExportFixture(t, false)

	_, err := svc.CreateDownloadLink(context.Background(), "sem-1", "csv")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestExportServiceLinkRejectsUnknownFormat(t *testing.T) {
	svc, _ := newExportFixture(t, true)

	_, err := svc.CreateDownloadLink(context.Background(), "sem-1", "xlsx")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}
