package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/uniplan/timetable-api/internal/dto"
	"github.com/uniplan/timetable-api/internal/grid"
	"github.com/uniplan/timetable-api/internal/models"
	appErrors "github.com/uniplan/timetable-api/pkg/errors"
	"github.com/uniplan/timetable-api/pkg/export"
	"github.com/uniplan/timetable-api/pkg/storage"
)

type exportAssignmentStore interface {
	ListBySemester(ctx context.Context, semesterID string) ([]models.GridEntry, error)
}

// ExportService renders a semester's grid as a downloadable table. Each
// row is one period, each column one class group, and multi-period
// sessions repeat their label on every period they occupy.
type ExportService struct {
	assignments exportAssignmentStore
	semesters   semesterReader
	archive     *storage.LocalStorage
	signer      *storage.DownloadSigner
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	logger      *zap.Logger
}

// NewExportService constructs the service. Archive and signer may be
// nil, which disables the signed download-link flow.
func NewExportService(
	assignments exportAssignmentStore,
	semesters semesterReader,
	archive *storage.LocalStorage,
	signer *storage.DownloadSigner,
	logger *zap.Logger,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		assignments: assignments,
		semesters:   semesters,
		archive:     archive,
		signer:      signer,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
	}
}

// ExportCSV renders the semester grid as CSV.
func (s *ExportService) ExportCSV(ctx context.Context, semesterID string) ([]byte, string, error) {
	semester, dataset, err := s.buildDataset(ctx, semesterID)
	if err != nil {
		return nil, "", err
	}
	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, "", fmt.Errorf("render csv: %w", err)
	}
	return payload, exportFilename(semester, "csv"), nil
}

// ExportPDF renders the semester grid as a landscape PDF table.
func (s *ExportService) ExportPDF(ctx context.Context, semesterID string) ([]byte, string, error) {
	semester, dataset, err := s.buildDataset(ctx, semesterID)
	if err != nil {
		return nil, "", err
	}
	title := fmt.Sprintf("Timetable %s %s", semester.Name, semester.AcademicYear)
	payload, err := s.pdf.Render(dataset, title)
	if err != nil {
		return nil, "", fmt.Errorf("render pdf: %w", err)
	}
	return payload, exportFilename(semester, "pdf"), nil
}

// CreateDownloadLink renders the grid in the requested format, archives
// the file on disk, and returns a signed URL valid until the signer's
// TTL elapses. No session is needed to fetch it.
func (s *ExportService) CreateDownloadLink(ctx context.Context, semesterID, format string) (*dto.ExportLinkResult, error) {
	if s.archive == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "export downloads are not configured")
	}

	var payload []byte
	var filename string
	var err error
	switch format {
	case "csv":
		payload, filename, err = s.ExportCSV(ctx, semesterID)
	case "pdf":
		payload, filename, err = s.ExportPDF(ctx, semesterID)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if err != nil {
		return nil, err
	}

	relPath, err := s.archive.Save(fmt.Sprintf("%s/%s", semesterID, filename), payload)
	if err != nil {
		return nil, fmt.Errorf("archive export: %w", err)
	}
	token, expiresAt, err := s.signer.Sign(semesterID, relPath)
	if err != nil {
		return nil, fmt.Errorf("sign download token: %w", err)
	}

	return &dto.ExportLinkResult{
		URL:       "/exports/download?token=" + token,
		Filename:  filename,
		ExpiresAt: expiresAt,
	}, nil
}

// ReadDownload verifies a signed token and returns the archived file.
func (s *ExportService) ReadDownload(token string) ([]byte, string, error) {
	if s.archive == nil || s.signer == nil {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "export downloads are not configured")
	}
	_, relPath, _, err := s.signer.Verify(token)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	payload, err := s.archive.Read(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
	}
	return payload, path.Base(relPath), nil
}

// buildDataset pivots grid entries into a period-by-group table.
func (s *ExportService) buildDataset(ctx context.Context, semesterID string) (*models.Semester, export.Dataset, error) {
	semester, err := s.semesters.FindByID(ctx, semesterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, export.Dataset{}, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, export.Dataset{}, fmt.Errorf("load semester: %w", err)
	}

	entries, err := s.assignments.ListBySemester(ctx, semesterID)
	if err != nil {
		return nil, export.Dataset{}, err
	}

	groups := make(map[string]string)
	cells := make(map[string]map[int]string)
	for i := range entries {
		entry := &entries[i]
		groupID := entry.Assignment.ClassGroupID
		groupName := groupID
		if entry.Session.Group != nil && entry.Session.Group.Name != "" {
			groupName = entry.Session.Group.Name
		}
		groups[groupID] = groupName
		if cells[groupID] == nil {
			cells[groupID] = make(map[int]string)
		}

		count := entry.Session.Session.PeriodCount
		if count < 1 {
			count = 1
		}
		for p := entry.Assignment.PeriodIndex; p < entry.Assignment.PeriodIndex+count; p++ {
			cells[groupID][p] = cellLabel(entry)
		}
	}

	ordered := make([]string, 0, len(groups))
	for groupID := range groups {
		ordered = append(ordered, groupID)
	}
	sort.Slice(ordered, func(i, j int) bool { return groups[ordered[i]] < groups[ordered[j]] })

	cfg := semester.Config()
	headers := make([]string, 0, len(ordered)+1)
	headers = append(headers, "Period")
	for _, groupID := range ordered {
		headers = append(headers, groups[groupID])
	}

	rows := make([][]string, 0, grid.ValidPeriods(cfg))
	for period := 0; period < grid.ValidPeriods(cfg); period++ {
		row := make([]string, 0, len(ordered)+1)
		row = append(row, fmt.Sprintf("Day %d / Period %d", grid.Day(cfg, period)+1, period%cfg.PeriodsPerDay+1))
		for _, groupID := range ordered {
			row = append(row, cells[groupID][period])
		}
		rows = append(rows, row)
	}

	return semester, export.Dataset{Headers: headers, Rows: rows}, nil
}

func cellLabel(entry *models.GridEntry) string {
	parts := make([]string, 0, 3)
	if entry.Session.Course != nil {
		parts = append(parts, entry.Session.Course.Name)
	} else {
		parts = append(parts, entry.Session.Session.CourseID)
	}
	if entry.Session.Instructor != nil {
		parts = append(parts, entry.Session.Instructor.FullName)
	}
	if entry.Session.Classroom != nil {
		parts = append(parts, entry.Session.Classroom.Name)
	}
	label := strings.Join(parts, " / ")
	if entry.Assignment.Status == models.AssignmentStatusPending {
		label += " (pending)"
	}
	return label
}

func exportFilename(semester *models.Semester, ext string) string {
	name := strings.ReplaceAll(strings.ToLower(semester.Name), " ", "-")
	year := strings.ReplaceAll(semester.AcademicYear, "/", "-")
	return fmt.Sprintf("timetable-%s-%s.%s", name, year, ext)
}
