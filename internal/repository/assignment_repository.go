package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/uniplan/timetable-api/internal/models"
	appErrors "github.com/uniplan/timetable-api/pkg/errors"
)

// AssignmentRepository is the authoritative store for timetable
// assignments. Slot exclusivity is enforced here, inside the mutating
// statements, backed by the unique index on
// (class_group_id, period_index, semester_id) so racing writers resolve
// deterministically.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository creates a new assignment repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertForMove stores the destination row of a relocation, ignoring the
// origin assignment when checking slot occupancy. Callers pair it with
// DeleteByID inside one transaction.
func (r *AssignmentRepository) InsertForMove(ctx context.Context, exec sqlx.ExtContext, assignment *models.TimetableAssignment, periodCount int, originID string) error {
	return r.insert(ctx, r.exec(exec), assignment, periodCount, originID)
}

// insertQuery writes the assignment only when no existing assignment for
// the same group and semester overlaps the candidate's occupied range.
// The occupied range of an existing row is derived from its session's
// period_count; excludeID lets a move ignore its own origin row.
const insertQuery = `
INSERT INTO timetable_assignments (id, class_session_id, class_group_id, period_index, semester_id, status, created_at)
SELECT $1, $2, $3, $4, $5, $6, $7
WHERE NOT EXISTS (
    SELECT 1
    FROM timetable_assignments a
    JOIN class_sessions s ON s.id = a.class_session_id
    WHERE a.class_group_id = $3
      AND a.semester_id = $5
      AND a.period_index < $4 + $8
      AND a.period_index + s.period_count > $4
      AND a.id <> $9
)`

// Insert stores a new assignment, failing with ErrSlotOccupied when any
// period in the occupied range is already taken.
func (r *AssignmentRepository) Insert(ctx context.Context, exec sqlx.ExtContext, assignment *models.TimetableAssignment, periodCount int) error {
	return r.insert(ctx, r.exec(exec), assignment, periodCount, "")
}

func (r *AssignmentRepository) insert(ctx context.Context, exec sqlx.ExtContext, assignment *models.TimetableAssignment, periodCount int, excludeID string) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	if periodCount < 1 {
		periodCount = 1
	}

	result, err := exec.ExecContext(ctx, insertQuery,
		assignment.ID,
		assignment.ClassSessionID,
		assignment.ClassGroupID,
		assignment.PeriodIndex,
		assignment.SemesterID,
		assignment.Status,
		assignment.CreatedAt,
		periodCount,
		excludeID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return appErrors.ErrSlotOccupied
		}
		return fmt.Errorf("insert assignment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check assignment insert rows: %w", err)
	}
	if rows == 0 {
		return appErrors.ErrSlotOccupied
	}
	return nil
}

// Move atomically relocates the session's assignment from one slot to
// another. The destination insert and the origin delete share one
// transaction; when the destination is occupied nothing changes.
func (r *AssignmentRepository) Move(ctx context.Context, origin *models.TimetableAssignment, to models.Slot, periodCount int, status models.AssignmentStatus) (*models.TimetableAssignment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin move assignment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	moved := &models.TimetableAssignment{
		ClassSessionID: origin.ClassSessionID,
		ClassGroupID:   to.ClassGroupID,
		PeriodIndex:    to.PeriodIndex,
		SemesterID:     to.SemesterID,
		Status:         status,
	}
	if err = r.insert(ctx, tx, moved, periodCount, origin.ID); err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM timetable_assignments WHERE id = $1`, origin.ID); err != nil {
		err = fmt.Errorf("delete origin assignment: %w", err)
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit move assignment: %w", err)
	}
	return moved, nil
}

// FindBySlot loads the assignment occupying the exact starting slot.
func (r *AssignmentRepository) FindBySlot(ctx context.Context, slot models.Slot) (*models.TimetableAssignment, error) {
	const query = `SELECT id, class_session_id, class_group_id, period_index, semester_id, status, created_at
FROM timetable_assignments WHERE class_group_id = $1 AND period_index = $2 AND semester_id = $3`
	var assignment models.TimetableAssignment
	if err := r.db.GetContext(ctx, &assignment, query, slot.ClassGroupID, slot.PeriodIndex, slot.SemesterID); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindByID loads an assignment by id.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.TimetableAssignment, error) {
	const query = `SELECT id, class_session_id, class_group_id, period_index, semester_id, status, created_at
FROM timetable_assignments WHERE id = $1`
	var assignment models.TimetableAssignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindBySession returns the session's assignment in a semester, if any.
func (r *AssignmentRepository) FindBySession(ctx context.Context, sessionID, semesterID string) (*models.TimetableAssignment, error) {
	const query = `SELECT id, class_session_id, class_group_id, period_index, semester_id, status, created_at
FROM timetable_assignments WHERE class_session_id = $1 AND semester_id = $2`
	var assignment models.TimetableAssignment
	if err := r.db.GetContext(ctx, &assignment, query, sessionID, semesterID); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// DeleteBySlot removes the assignment at the slot. Idempotent: deleting a
// vacant slot is not an error.
func (r *AssignmentRepository) DeleteBySlot(ctx context.Context, exec sqlx.ExtContext, slot models.Slot) error {
	const query = `DELETE FROM timetable_assignments WHERE class_group_id = $1 AND period_index = $2 AND semester_id = $3`
	if _, err := r.exec(exec).ExecContext(ctx, query, slot.ClassGroupID, slot.PeriodIndex, slot.SemesterID); err != nil {
		return fmt.Errorf("delete assignment by slot: %w", err)
	}
	return nil
}

// DeleteByID removes an assignment by id.
func (r *AssignmentRepository) DeleteByID(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM timetable_assignments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}

// DeleteBySession removes all assignments of a class session.
func (r *AssignmentRepository) DeleteBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM timetable_assignments WHERE class_session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete session assignments: %w", err)
	}
	return nil
}

// UpdateStatus transitions an assignment's status. sql.ErrNoRows signals
// the assignment disappeared between read and write.
func (r *AssignmentRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.AssignmentStatus) error {
	result, err := r.exec(exec).ExecContext(ctx, `UPDATE timetable_assignments SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update assignment status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check assignment status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type gridRow struct {
	models.TimetableAssignment

	SessionCourseID     string  `db:"session_course_id"`
	SessionGroupID      string  `db:"session_group_id"`
	SessionInstructorID *string `db:"session_instructor_id"`
	SessionClassroomID  *string `db:"session_classroom_id"`
	SessionPeriodCount  int     `db:"session_period_count"`
	SessionProgramID    string  `db:"session_program_id"`

	CourseName *string `db:"course_name"`
	CourseCode *string `db:"course_code"`

	GroupName         *string `db:"group_name"`
	GroupStudentCount *int    `db:"group_student_count"`

	InstructorName       *string `db:"instructor_name"`
	InstructorDepartment *string `db:"instructor_department_id"`

	ClassroomName       *string `db:"classroom_name"`
	ClassroomCapacity   *int    `db:"classroom_capacity"`
	ClassroomDepartment *string `db:"classroom_preferred_department_id"`
}

// ListBySemester returns every assignment in the semester hydrated with
// its session and resources, ordered by group then period so downstream
// conflict evaluation stays deterministic.
func (r *AssignmentRepository) ListBySemester(ctx context.Context, semesterID string) ([]models.GridEntry, error) {
	const query = `
SELECT a.id, a.class_session_id, a.class_group_id, a.period_index, a.semester_id, a.status, a.created_at,
       s.course_id AS session_course_id,
       s.class_group_id AS session_group_id,
       s.instructor_id AS session_instructor_id,
       s.classroom_id AS session_classroom_id,
       s.period_count AS session_period_count,
       s.program_id AS session_program_id,
       c.name AS course_name,
       c.code AS course_code,
       g.name AS group_name,
       g.student_count AS group_student_count,
       i.full_name AS instructor_name,
       i.department_id AS instructor_department_id,
       cr.name AS classroom_name,
       cr.capacity AS classroom_capacity,
       cr.preferred_department_id AS classroom_preferred_department_id
FROM timetable_assignments a
JOIN class_sessions s ON s.id = a.class_session_id
LEFT JOIN courses c ON c.id = s.course_id
LEFT JOIN class_groups g ON g.id = s.class_group_id
LEFT JOIN instructors i ON i.id = s.instructor_id
LEFT JOIN classrooms cr ON cr.id = s.classroom_id
WHERE a.semester_id = $1
ORDER BY a.class_group_id ASC, a.period_index ASC`

	var rows []gridRow
	if err := r.db.SelectContext(ctx, &rows, query, semesterID); err != nil {
		return nil, fmt.Errorf("list semester assignments: %w", err)
	}

	entries := make([]models.GridEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].toGridEntry())
	}
	return entries, nil
}

func (row *gridRow) toGridEntry() models.GridEntry {
	session := models.ClassSession{
		ID:           row.ClassSessionID,
		CourseID:     row.SessionCourseID,
		ClassGroupID: row.SessionGroupID,
		InstructorID: row.SessionInstructorID,
		ClassroomID:  row.SessionClassroomID,
		PeriodCount:  row.SessionPeriodCount,
		ProgramID:    row.SessionProgramID,
	}
	hydrated := models.HydratedSession{Session: session}
	if row.CourseName != nil {
		hydrated.Course = &models.Course{
			ID:        row.SessionCourseID,
			Name:      *row.CourseName,
			ProgramID: row.SessionProgramID,
		}
		if row.CourseCode != nil {
			hydrated.Course.Code = *row.CourseCode
		}
	}
	if row.GroupName != nil {
		hydrated.Group = &models.ClassGroup{
			ID:        row.SessionGroupID,
			Name:      *row.GroupName,
			ProgramID: row.SessionProgramID,
		}
		if row.GroupStudentCount != nil {
			hydrated.Group.StudentCount = *row.GroupStudentCount
		}
	}
	if row.SessionInstructorID != nil && row.InstructorName != nil {
		hydrated.Instructor = &models.Instructor{
			ID:           *row.SessionInstructorID,
			FullName:     *row.InstructorName,
			DepartmentID: row.InstructorDepartment,
		}
	}
	if row.SessionClassroomID != nil && row.ClassroomName != nil {
		hydrated.Classroom = &models.Classroom{
			ID:                    *row.SessionClassroomID,
			Name:                  *row.ClassroomName,
			PreferredDepartmentID: row.ClassroomDepartment,
		}
		if row.ClassroomCapacity != nil {
			hydrated.Classroom.Capacity = *row.ClassroomCapacity
		}
	}
	return models.GridEntry{Assignment: row.TimetableAssignment, Session: hydrated}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	type coder interface{ SQLState() string }
	var pqErr coder
	if errors.As(err, &pqErr) {
		return pqErr.SQLState() == "23505"
	}
	return false
}
