package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/uniplan/timetable-api/internal/models"
	appErrors "github.com/uniplan/timetable-api/pkg/errors"
)

// RequestRepository persists cross-department resource requests.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a request, enforcing at most one active (pending or
// approved) request per class session inside the same statement.
func (r *RequestRepository) Create(ctx context.Context, exec sqlx.ExtContext, request *models.ResourceRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	if request.RequestedAt.IsZero() {
		request.RequestedAt = time.Now().UTC()
	}

	const query = `
INSERT INTO resource_requests
    (id, resource_type, resource_id, requester_id, requesting_program_id, target_department_id,
     class_session_id, status, notes, original_group_id, original_period_index, requested_at)
SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
WHERE NOT EXISTS (
    SELECT 1 FROM resource_requests
    WHERE class_session_id = $7 AND status IN ('PENDING', 'APPROVED')
)`

	result, err := r.exec(exec).ExecContext(ctx, query,
		request.ID,
		request.ResourceType,
		request.ResourceID,
		request.RequesterID,
		request.RequestingProgramID,
		request.TargetDepartmentID,
		request.ClassSessionID,
		request.Status,
		request.Notes,
		request.OriginalGroupID,
		request.OriginalPeriodIndex,
		request.RequestedAt,
	)
	if err != nil {
		return fmt.Errorf("create resource request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check resource request insert rows: %w", err)
	}
	if rows == 0 {
		return appErrors.Clone(appErrors.ErrConflict, "class session already has an active resource request")
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.ResourceRequest, error) {
	const query = `SELECT id, resource_type, resource_id, requester_id, requesting_program_id, target_department_id,
       class_session_id, status, notes, original_group_id, original_period_index, requested_at, reviewed_at, reviewed_by
FROM resource_requests WHERE id = $1`
	var request models.ResourceRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns requests matching the filter, newest first.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.ResourceRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT id, resource_type, resource_id, requester_id, requesting_program_id, target_department_id,
       class_session_id, status, notes, original_group_id, original_period_index, requested_at, reviewed_at, reviewed_by
FROM resource_requests`)

	conditions := make([]string, 0, 4)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.TargetDepartmentID != "" {
		args = append(args, filter.TargetDepartmentID)
		conditions = append(conditions, fmt.Sprintf("target_department_id = $%d", len(args)))
	}
	if filter.RequesterID != "" {
		args = append(args, filter.RequesterID)
		conditions = append(conditions, fmt.Sprintf("requester_id = $%d", len(args)))
	}
	if filter.ClassSessionID != "" {
		args = append(args, filter.ClassSessionID)
		conditions = append(conditions, fmt.Sprintf("class_session_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY requested_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.ResourceRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list resource requests: %w", err)
	}
	return requests, nil
}

// FindActiveBySession returns the session's active request, if any.
func (r *RequestRepository) FindActiveBySession(ctx context.Context, sessionID string) (*models.ResourceRequest, error) {
	const query = `SELECT id, resource_type, resource_id, requester_id, requesting_program_id, target_department_id,
       class_session_id, status, notes, original_group_id, original_period_index, requested_at, reviewed_at, reviewed_by
FROM resource_requests WHERE class_session_id = $1 AND status IN ('PENDING', 'APPROVED')`
	var request models.ResourceRequest
	if err := r.db.GetContext(ctx, &request, query, sessionID); err != nil {
		return nil, err
	}
	return &request, nil
}

// UpdateRequestParams groups mutable columns for review transitions.
type UpdateRequestParams struct {
	ID         string
	Status     models.RequestStatus
	ReviewedBy string
	ReviewedAt time.Time
	Notes      *string
	// Expected guards the transition: the update applies only while the
	// row is still in one of these states. Zero rows means somebody else
	// resolved the request first.
	Expected []models.RequestStatus
}

// UpdateStatus persists a guarded state transition. sql.ErrNoRows signals
// the request left the expected state before the update landed.
func (r *RequestRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, params UpdateRequestParams) error {
	expected := params.Expected
	if len(expected) == 0 {
		expected = []models.RequestStatus{models.RequestStatusPending}
	}

	args := []interface{}{params.Status, params.ReviewedBy, params.ReviewedAt, params.Notes, params.ID}
	placeholders := make([]string, len(expected))
	for i, status := range expected {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}

	query := fmt.Sprintf(`UPDATE resource_requests
SET status = $1, reviewed_by = $2, reviewed_at = $3, notes = COALESCE($4, notes)
WHERE id = $5 AND status IN (%s)`, strings.Join(placeholders, ","))

	result, err := r.exec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update resource request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check resource request update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a request row. Used by cancellation, which erases the
// ticket rather than parking it in a terminal state.
func (r *RequestRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM resource_requests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete resource request: %w", err)
	}
	return nil
}

// CancelOpenBySession flips every pending request of a session to
// cancelled. Returns the ids that were cancelled so callers can emit
// events for each.
func (r *RequestRepository) CancelOpenBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]string, error) {
	const query = `UPDATE resource_requests SET status = 'CANCELLED', reviewed_at = $1
WHERE class_session_id = $2 AND status = 'PENDING' RETURNING id`

	rows, err := r.exec(exec).QueryxContext(ctx, query, time.Now().UTC(), sessionID)
	if err != nil {
		return nil, fmt.Errorf("cancel open requests for session: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cancelled request id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cancelled requests: %w", err)
	}
	return ids, nil
}
