package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verdatum/lca-review-api/internal/models"
	"github.com/verdatum/lca-review-api/pkg/config"
	"github.com/verdatum/lca-review-api/pkg/jobs"
)

// Review event types published on the notification channel.
const (
	EventReviewPublished = "review.published"
	EventReviewRejected  = "review.rejected"
)

// ReviewEvent is the payload fanned out to edge functions after a terminal
// transition.
type ReviewEvent struct {
	Type       string         `json:"type"`
	TaskID     string         `json:"task_id"`
	DatasetID  string         `json:"dataset_id"`
	Version    models.Version `json:"version"`
	Reasons    []string       `json:"reasons,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type eventPublisher interface {
	Publish(ctx context.Context, channel string, value interface{}) error
}

// NotificationService bridges terminal review transitions to interested
// parties over Redis pub/sub. Delivery is fire-and-forget with bounded
// retries handled by the jobs queue; a failing bridge never affects the
// state transition that triggered it.
type NotificationService struct {
	queue   *jobs.Queue
	channel string
	enabled bool
	logger  *zap.Logger
}

// NewNotificationService constructs the bridge and its worker queue.
func NewNotificationService(publisher eventPublisher, cfg config.NotificationsConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{
		channel: cfg.Channel,
		enabled: cfg.Enabled && publisher != nil,
		logger:  logger,
	}
	svc.queue = jobs.NewQueue("review-notifications", func(ctx context.Context, job jobs.Job) error {
		event, ok := job.Payload.(ReviewEvent)
		if !ok {
			logger.Error("notification job carries unexpected payload", zap.String("job_id", job.ID))
			return nil
		}
		return publisher.Publish(ctx, svc.channel, event)
	}, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the queue workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s.enabled {
		s.queue.Start(ctx)
	}
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	if s.enabled {
		s.queue.Stop()
	}
}

// NotifyTerminal enqueues a terminal-transition event. Errors are logged and
// retried by the queue, never propagated to the transition that emitted the
// event.
func (s *NotificationService) NotifyTerminal(event ReviewEvent) {
	if !s.enabled {
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    event.Type,
		Payload: event,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue review notification",
			zap.String("task_id", event.TaskID), zap.Error(err))
	}
}
