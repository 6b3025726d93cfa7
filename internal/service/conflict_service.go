package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/uniplan/timetable-api/internal/grid"
	"github.com/uniplan/timetable-api/internal/models"
)

// Candidate describes a placement the conflict detector evaluates: the
// session being placed, its resolved resources, and the period range it
// would occupy.
type Candidate struct {
	SessionID  string
	Group      *models.ClassGroup
	Instructor *models.Instructor
	Classroom  *models.Classroom
	Range      grid.Range
}

// ConflictReport separates blocking conflicts from advisory warnings.
// Hard conflicts veto the placement when enforcement is on; warnings
// always pass through to the caller.
type ConflictReport struct {
	Hard     []string
	Warnings []string
}

// HasHard reports whether any blocking conflict was found.
func (r ConflictReport) HasHard() bool {
	return len(r.Hard) > 0
}

// ConflictService evaluates a candidate placement against the current
// grid. It is pure: all state arrives as arguments, so the same inputs
// always produce the same report in the same order.
type ConflictService struct {
	logger *zap.Logger
}

// NewConflictService constructs the detector.
func NewConflictService(logger *zap.Logger) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{logger: logger}
}

// Detect scans the semester's grid entries for double bookings of the
// candidate's group, instructor, and classroom, then appends advisory
// warnings. Entries belonging to the candidate's own session are skipped
// so a move never collides with itself.
func (s *ConflictService) Detect(candidate Candidate, entries []models.GridEntry) ConflictReport {
	var report ConflictReport

	for i := range entries {
		entry := &entries[i]
		if entry.Assignment.ClassSessionID == candidate.SessionID {
			continue
		}
		occupied := grid.Range{
			Start: entry.Assignment.PeriodIndex,
			Count: entry.Session.Session.PeriodCount,
		}
		if occupied.Count < 1 {
			occupied.Count = 1
		}
		if !candidate.Range.Overlaps(occupied) {
			continue
		}

		if candidate.Group != nil && entry.Assignment.ClassGroupID == candidate.Group.ID {
			report.Hard = append(report.Hard, fmt.Sprintf(
				"Group conflict: %q already has a session in periods %d-%d.",
				groupLabel(candidate.Group, entry), occupied.Start, occupied.End()-1))
		}
		if candidate.Instructor != nil && entry.Session.Session.InstructorID != nil &&
			*entry.Session.Session.InstructorID == candidate.Instructor.ID {
			report.Hard = append(report.Hard, fmt.Sprintf(
				"Instructor conflict: %q is already teaching in periods %d-%d.",
				candidate.Instructor.FullName, occupied.Start, occupied.End()-1))
		}
		if candidate.Classroom != nil && entry.Session.Session.ClassroomID != nil &&
			*entry.Session.Session.ClassroomID == candidate.Classroom.ID {
			report.Hard = append(report.Hard, fmt.Sprintf(
				"Classroom conflict: %q is already booked in periods %d-%d.",
				candidate.Classroom.Name, occupied.Start, occupied.End()-1))
		}
	}

	report.Warnings = append(report.Warnings, advisories(candidate)...)

	if report.HasHard() {
		s.logger.Debug("hard conflicts detected",
			zap.String("session_id", candidate.SessionID),
			zap.Int("count", len(report.Hard)))
	}
	return report
}

// advisories returns the non-blocking findings for a candidate: seat
// shortages and unassigned resources.
func advisories(candidate Candidate) []string {
	var warnings []string
	if candidate.Group != nil && candidate.Classroom != nil &&
		candidate.Group.StudentCount > candidate.Classroom.Capacity {
		warnings = append(warnings, fmt.Sprintf(
			"Capacity conflict: The group %q (%d students) exceeds the capacity of %q (%d seats).",
			candidate.Group.Name, candidate.Group.StudentCount,
			candidate.Classroom.Name, candidate.Classroom.Capacity))
	}
	if candidate.Instructor == nil {
		warnings = append(warnings, "Missing resource: The session has no instructor assigned.")
	}
	if candidate.Classroom == nil {
		warnings = append(warnings, "Missing resource: The session has no classroom assigned.")
	}
	return warnings
}

func groupLabel(group *models.ClassGroup, entry *models.GridEntry) string {
	if entry.Session.Group != nil && entry.Session.Group.Name != "" {
		return entry.Session.Group.Name
	}
	if group.Name != "" {
		return group.Name
	}
	return group.ID
}
