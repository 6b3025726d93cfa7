package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/uniplan/timetable-api/internal/models"
	"github.com/uniplan/timetable-api/internal/repository"
	appErrors "github.com/uniplan/timetable-api/pkg/errors"
)

// assignmentStoreStub mimics the conflict-checked SQL store in memory:
// inserts fail with ErrSlotOccupied when the occupied ranges of the same
// group and semester overlap.
type assignmentStoreStub struct {
	assignments  map[string]*models.TimetableAssignment
	periodCounts map[string]int
	// sessionInfo hydrates ListBySemester entries so the conflict
	// detector sees instructor and classroom bindings.
	sessionInfo map[string]*models.ClassSession
	insertErr   error
}

func newAssignmentStoreStub() *assignmentStoreStub {
	return &assignmentStoreStub{
		assignments:  make(map[string]*models.TimetableAssignment),
		periodCounts: make(map[string]int),
		sessionInfo:  make(map[string]*models.ClassSession),
	}
}

func (s *assignmentStoreStub) occupied(candidate *models.TimetableAssignment, periodCount int, excludeID string) bool {
	for id, existing := range s.assignments {
		if id == excludeID {
			continue
		}
		if existing.ClassGroupID != candidate.ClassGroupID || existing.SemesterID != candidate.SemesterID {
			continue
		}
		existingCount := s.periodCounts[id]
		if existingCount < 1 {
			existingCount = 1
		}
		if existing.PeriodIndex < candidate.PeriodIndex+periodCount &&
			existing.PeriodIndex+existingCount > candidate.PeriodIndex {
			return true
		}
	}
	return false
}

func (s *assignmentStoreStub) insert(assignment *models.TimetableAssignment, periodCount int, excludeID string) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	if s.occupied(assignment, periodCount, excludeID) {
		return appErrors.ErrSlotOccupied
	}
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	copied := *assignment
	s.assignments[assignment.ID] = &copied
	s.periodCounts[assignment.ID] = periodCount
	return nil
}

func (s *assignmentStoreStub) Insert(ctx context.Context, exec sqlx.ExtContext, assignment *models.TimetableAssignment, periodCount int) error {
	return s.insert(assignment, periodCount, "")
}

func (s *assignmentStoreStub) InsertForMove(ctx context.Context, exec sqlx.ExtContext, assignment *models.TimetableAssignment, periodCount int, originID string) error {
	return s.insert(assignment, periodCount, originID)
}

func (s *assignmentStoreStub) Move(ctx context.Context, origin *models.TimetableAssignment, to models.Slot, periodCount int, status models.AssignmentStatus) (*models.TimetableAssignment, error) {
	moved := &models.TimetableAssignment{
		ClassSessionID: origin.ClassSessionID,
		ClassGroupID:   to.ClassGroupID,
		PeriodIndex:    to.PeriodIndex,
		SemesterID:     to.SemesterID,
		Status:         status,
	}
	if err := s.insert(moved, periodCount, origin.ID); err != nil {
		return nil, err
	}
	delete(s.assignments, origin.ID)
	delete(s.periodCounts, origin.ID)
	return moved, nil
}

func (s *assignmentStoreStub) FindBySlot(ctx context.Context, slot models.Slot) (*models.TimetableAssignment, error) {
	for _, assignment := range s.assignments {
		if assignment.ClassGroupID == slot.ClassGroupID &&
			assignment.PeriodIndex == slot.PeriodIndex &&
			assignment.SemesterID == slot.SemesterID {
			copied := *assignment
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *assignmentStoreStub) FindBySession(ctx context.Context, sessionID, semesterID string) (*models.TimetableAssignment, error) {
	for _, assignment := range s.assignments {
		if assignment.ClassSessionID == sessionID && assignment.SemesterID == semesterID {
			copied := *assignment
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *assignmentStoreStub) DeleteBySlot(ctx context.Context, exec sqlx.ExtContext, slot models.Slot) error {
	for id, assignment := range s.assignments {
		if assignment.ClassGroupID == slot.ClassGroupID &&
			assignment.PeriodIndex == slot.PeriodIndex &&
			assignment.SemesterID == slot.SemesterID {
			delete(s.assignments, id)
			delete(s.periodCounts, id)
		}
	}
	return nil
}

func (s *assignmentStoreStub) DeleteByID(ctx context.Context, exec sqlx.ExtContext, id string) error {
	delete(s.assignments, id)
	delete(s.periodCounts, id)
	return nil
}

func (s *assignmentStoreStub) DeleteBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) error {
	for id, assignment := range s.assignments {
		if assignment.ClassSessionID == sessionID {
			delete(s.assignments, id)
			delete(s.periodCounts, id)
		}
	}
	return nil
}

func (s *assignmentStoreStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.AssignmentStatus) error {
	assignment, ok := s.assignments[id]
	if !ok {
		return sql.ErrNoRows
	}
	assignment.Status = status
	return nil
}

func (s *assignmentStoreStub) ListBySemester(ctx context.Context, semesterID string) ([]models.GridEntry, error) {
	var entries []models.GridEntry
	for id, assignment := range s.assignments {
		if assignment.SemesterID != semesterID {
			continue
		}
		session := models.ClassSession{
			ID:           assignment.ClassSessionID,
			ClassGroupID: assignment.ClassGroupID,
			PeriodCount:  s.periodCounts[id],
		}
		if info, ok := s.sessionInfo[assignment.ClassSessionID]; ok {
			session = *info
		}
		entries = append(entries, models.GridEntry{
			Assignment: *assignment,
			Session:    models.HydratedSession{Session: session},
		})
	}
	return entries, nil
}

// requestStoreStub enforces the single-active-request rule in memory.
type requestStoreStub struct {
	requests map[string]*models.ResourceRequest
	filter   models.RequestFilter
}

func newRequestStoreStub() *requestStoreStub {
	return &requestStoreStub{requests: make(map[string]*models.ResourceRequest)}
}

func (s *requestStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, request *models.ResourceRequest) error {
	for _, existing := range s.requests {
		if existing.ClassSessionID == request.ClassSessionID && existing.Status.Active() {
			return appErrors.Clone(appErrors.ErrConflict, "class session already has an active resource request")
		}
	}
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	copied := *request
	s.requests[request.ID] = &copied
	return nil
}

func (s *requestStoreStub) GetByID(ctx context.Context, id string) (*models.ResourceRequest, error) {
	if request, ok := s.requests[id]; ok {
		copied := *request
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *requestStoreStub) List(ctx context.Context, filter models.RequestFilter) ([]models.ResourceRequest, error) {
	s.filter = filter
	var result []models.ResourceRequest
	for _, request := range s.requests {
		if filter.TargetDepartmentID != "" && request.TargetDepartmentID != filter.TargetDepartmentID {
			continue
		}
		if filter.RequesterID != "" && request.RequesterID != filter.RequesterID {
			continue
		}
		result = append(result, *request)
	}
	return result, nil
}

func (s *requestStoreStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, params repository.UpdateRequestParams) error {
	request, ok := s.requests[params.ID]
	if !ok {
		return sql.ErrNoRows
	}
	expected := params.Expected
	if len(expected) == 0 {
		expected = []models.RequestStatus{models.RequestStatusPending}
	}
	allowed := false
	for _, status := range expected {
		if request.Status == status {
			allowed = true
		}
	}
	if !allowed {
		return sql.ErrNoRows
	}
	request.Status = params.Status
	request.ReviewedBy = &params.ReviewedBy
	request.ReviewedAt = &params.ReviewedAt
	if params.Notes != nil {
		request.Notes = params.Notes
	}
	return nil
}

func (s *requestStoreStub) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	delete(s.requests, id)
	return nil
}

func (s *requestStoreStub) CancelOpenBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]string, error) {
	var cancelled []string
	for id, request := range s.requests {
		if request.ClassSessionID == sessionID && request.Status == models.RequestStatusPending {
			request.Status = models.RequestStatusCancelled
			cancelled = append(cancelled, id)
		}
	}
	return cancelled, nil
}

type sessionStoreStub struct {
	sessions map[string]*models.ClassSession
}

func newSessionStoreStub() *sessionStoreStub {
	return &sessionStoreStub{sessions: make(map[string]*models.ClassSession)}
}

func (s *sessionStoreStub) FindByID(ctx context.Context, id string) (*models.ClassSession, error) {
	if session, ok := s.sessions[id]; ok {
		copied := *session
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *sessionStoreStub) List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, int, error) {
	var result []models.ClassSession
	for _, session := range s.sessions {
		if filter.ProgramID != "" && session.ProgramID != filter.ProgramID {
			continue
		}
		result = append(result, *session)
	}
	return result, len(result), nil
}

func (s *sessionStoreStub) Create(ctx context.Context, session *models.ClassSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *sessionStoreStub) Update(ctx context.Context, session *models.ClassSession) error {
	if _, ok := s.sessions[session.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *sessionStoreStub) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	delete(s.sessions, id)
	return nil
}

type semesterStoreStub struct {
	semesters map[string]*models.Semester
	activeID  string
}

func newSemesterStoreStub() *semesterStoreStub {
	return &semesterStoreStub{semesters: make(map[string]*models.Semester)}
}

func (s *semesterStoreStub) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	if semester, ok := s.semesters[id]; ok {
		copied := *semester
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *semesterStoreStub) FindActive(ctx context.Context) (*models.Semester, error) {
	if semester, ok := s.semesters[s.activeID]; ok {
		copied := *semester
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *semesterStoreStub) List(ctx context.Context) ([]models.Semester, error) {
	var result []models.Semester
	for _, semester := range s.semesters {
		result = append(result, *semester)
	}
	return result, nil
}

func (s *semesterStoreStub) SetActive(ctx context.Context, id string) error {
	if _, ok := s.semesters[id]; !ok {
		return sql.ErrNoRows
	}
	s.activeID = id
	return nil
}

type cacheStub struct {
	values  map[string][]byte
	deleted []string
}

func newCacheStub() *cacheStub {
	return &cacheStub{values: make(map[string][]byte)}
}

func (c *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (c *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.values[key] = []byte("set")
	return nil
}

func (c *cacheStub) Delete(ctx context.Context, key string) {
	c.deleted = append(c.deleted, key)
}

type notifierStub struct {
	opened    []*models.ResourceRequest
	cancelled []*models.ResourceRequest
}

func (n *notifierStub) RequestOpened(request *models.ResourceRequest) {
	n.opened = append(n.opened, request)
}

func (n *notifierStub) RequestCancelled(request *models.ResourceRequest) {
	n.cancelled = append(n.cancelled, request)
}

// txStub runs the function outside any transaction, which is what the
// in-memory stores expect.
type txStub struct{}

func (txStub) RunInTx(ctx context.Context, fn func(tx sqlx.ExtContext) error) error {
	return fn(nil)
}

// metricsStub captures counter calls so tests can assert instrumentation
// without a Prometheus registry.
type metricsStub struct {
	placements []string
	decisions  []string
	conflicts  map[string]int
}

func (m *metricsStub) ObservePlacement(operation, outcome string) {
	m.placements = append(m.placements, operation+":"+outcome)
}

func (m *metricsStub) ObserveDecision(decision string) {
	m.decisions = append(m.decisions, decision)
}

func (m *metricsStub) ObserveConflicts(severity string, count int) {
	if m.conflicts == nil {
		m.conflicts = make(map[string]int)
	}
	m.conflicts[severity] += count
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}
