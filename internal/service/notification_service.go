package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uniplan/timetable-api/internal/models"
	"github.com/uniplan/timetable-api/pkg/config"
	appErrors "github.com/uniplan/timetable-api/pkg/errors"
	"github.com/uniplan/timetable-api/pkg/jobs"
)

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByDepartment(ctx context.Context, departmentID string, unreadOnly bool) ([]models.Notification, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
}

type eventPublisher interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
}

// NotificationService turns approval-workflow events into persisted
// notification rows and fan-out messages on a pub/sub channel. Dispatch
// happens off the request path through a worker queue, so a slow broker
// never delays a placement.
type NotificationService struct {
	repo      notificationStore
	publisher eventPublisher
	queue     *jobs.Queue
	channel   string
	enabled   bool
	logger    *zap.Logger
}

// NewNotificationService constructs the dispatcher and its queue. Call
// Start before enqueueing events and Stop on shutdown.
func NewNotificationService(repo notificationStore, publisher eventPublisher, cfg config.NotificationsConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{
		repo:      repo,
		publisher: publisher,
		channel:   cfg.Channel,
		enabled:   cfg.Enabled,
		logger:    logger,
	}
	svc.queue = jobs.NewQueue("notifications", svc.dispatch, jobs.QueueConfig{
		Workers:    cfg.WorkerCount,
		BufferSize: cfg.QueueSize,
		MaxRetries: cfg.DispatchRetries,
		Logger:     logger,
	})
	return svc
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// RequestOpened enqueues the event emitted when a cross-department
// request is created.
func (s *NotificationService) RequestOpened(request *models.ResourceRequest) {
	s.emit(models.RequestEvent{
		Type:               models.RequestEventOpened,
		RequestID:          request.ID,
		TargetDepartmentID: request.TargetDepartmentID,
		Message: fmt.Sprintf("A program requests use of %s %s and is awaiting your review.",
			resourceLabel(request.ResourceType), request.ResourceID),
		OccurredAt: time.Now().UTC(),
	})
}

// RequestCancelled enqueues the event emitted when a pending request is
// withdrawn by its requester or by a session deletion.
func (s *NotificationService) RequestCancelled(request *models.ResourceRequest) {
	s.emit(models.RequestEvent{
		Type:               models.RequestEventCancelled,
		RequestID:          request.ID,
		TargetDepartmentID: request.TargetDepartmentID,
		Message: fmt.Sprintf("The request for %s %s was withdrawn and no longer needs review.",
			resourceLabel(request.ResourceType), request.ResourceID),
		OccurredAt: time.Now().UTC(),
	})
}

func (s *NotificationService) emit(event models.RequestEvent) {
	if !s.enabled {
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      event.RequestID,
		Type:    string(event.Type),
		Payload: event,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue request event",
			zap.String("request_id", event.RequestID),
			zap.Error(err))
	}
}

// dispatch persists the notification row, then publishes the event.
// Publish failures are retried by the queue; the row insert is
// idempotent enough to tolerate a retry because duplicates only cost an
// extra inbox line.
func (s *NotificationService) dispatch(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.RequestEvent)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}

	notification := &models.Notification{
		RequestID:          event.RequestID,
		TargetDepartmentID: event.TargetDepartmentID,
		Message:            event.Message,
		CreatedAt:          event.OccurredAt,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, s.channel, event); err != nil {
			return fmt.Errorf("publish request event: %w", err)
		}
	}
	return nil
}

// ListForDepartment returns a department's notification inbox.
func (s *NotificationService) ListForDepartment(ctx context.Context, departmentID string, unreadOnly bool) ([]models.Notification, error) {
	notifications, err := s.repo.ListByDepartment(ctx, departmentID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead stamps a notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	if err := s.repo.MarkRead(ctx, id, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func resourceLabel(t models.ResourceType) string {
	switch t {
	case models.ResourceTypeInstructor:
		return "instructor"
	case models.ResourceTypeClassroom:
		return "classroom"
	default:
		return "resource"
	}
}
