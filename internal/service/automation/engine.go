// Package automation converts "message sent" webhook events into completed
// task records, exactly once per event.
package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flowdesk/internal/apierror"
	"flowdesk/internal/model"
	"flowdesk/internal/ratelimit"
	"flowdesk/pkg/logger"
	"flowdesk/pkg/metrics"
	"flowdesk/pkg/mq"
)

// SentEvent is one "message sent" webhook payload.
type SentEvent struct {
	UserID     int       `json:"user_id"`
	Provider   string    `json:"provider"`
	MessageID  string    `json:"message_id"`
	Subject    string    `json:"subject"`
	To         []string  `json:"to"`
	OccurredAt time.Time `json:"occurred_at"`
	Snippet    string    `json:"snippet"`
	WebLink    string    `json:"web_link"`
}

// Result is what the webhook endpoint returns.
type Result struct {
	TaskID  string `json:"task_id,omitempty"`
	Deduped bool   `json:"deduped,omitempty"`
	Skipped string `json:"skipped,omitempty"`
}

// Deduper persists at-most-once markers. AcquireOnce must be called before
// any side effect it guards.
type Deduper interface {
	AcquireOnce(ctx context.Context, provider string, userID int, messageID string, ttl time.Duration) bool
}

// Settings reads the user's automation preferences.
type Settings interface {
	Get(ctx context.Context, userID int) (model.EmailSettings, error)
}

// Tasks creates the synthesized task record.
type Tasks interface {
	Create(ctx context.Context, userID int, input model.TaskInput, createdBy string) (*model.Task, error)
}

// MessageCache folds the sent message into the user's cache so manual
// fetches stay consistent with what automation already knows.
type MessageCache interface {
	PruneAndSave(ctx context.Context, userID int, provider string, incoming []model.MessageMetadata, retentionDays int) ([]model.MessageMetadata, error)
}

// EventLog records audit entries.
type EventLog interface {
	Insert(ctx context.Context, e *model.IntegrationEvent) error
}

// Publisher emits events for downstream consumers.
type Publisher interface {
	Publish(routingKey string, payload any) error
}

type Engine struct {
	limiter  ratelimit.Limiter
	deduper  Deduper
	settings Settings
	tasks    Tasks
	cache    MessageCache
	events   EventLog
	producer Publisher
	log      *zap.Logger
}

func NewEngine(
	limiter ratelimit.Limiter,
	deduper Deduper,
	settings Settings,
	tasks Tasks,
	cache MessageCache,
	events EventLog,
	producer Publisher,
	log *zap.Logger,
) *Engine {
	return &Engine{
		limiter:  limiter,
		deduper:  deduper,
		settings: settings,
		tasks:    tasks,
		cache:    cache,
		events:   events,
		producer: producer,
		log:      log,
	}
}

// Process handles one sent-message event. Delivery is at-least-once, so the
// dedupe marker is the sole correctness mechanism: it is written before the
// task side effect, which means a crash mid-request drops the event rather
// than duplicating the task.
func (e *Engine) Process(ctx context.Context, ev SentEvent, clientIP string) (*Result, error) {
	if !model.IsValidProvider(ev.Provider) {
		return nil, apierror.Validation("unknown provider: " + ev.Provider)
	}
	if ev.UserID <= 0 {
		return nil, apierror.Validation("user_id is required")
	}
	if ev.MessageID == "" {
		return nil, apierror.Validation("message_id is required")
	}

	allowed, err := e.limiter.Allow(ctx, fmt.Sprintf("%d:%s", ev.UserID, clientIP))
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		metrics.RateLimitRejectedCount.Inc()
		metrics.IncrementTaskAutomation("rejected")
		return nil, apierror.RateLimited()
	}

	settings, err := e.settings.Get(ctx, ev.UserID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	markerTTL := time.Duration(settings.RetentionDays) * 24 * time.Hour
	if !e.deduper.AcquireOnce(ctx, ev.Provider, ev.UserID, ev.MessageID, markerTTL) {
		metrics.IncrementTaskAutomation("deduped")
		return &Result{Deduped: true}, nil
	}

	log := logger.WithTrace(ctx, e.log)

	// The marker is set even when the gate is off, so later retries of the
	// same event don't reprocess it after the user flips the setting.
	if !settings.AutoCompleteSentEmails {
		metrics.IncrementTaskAutomation("skipped")
		return &Result{Skipped: "auto-complete disabled"}, nil
	}

	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	created, err := e.tasks.Create(ctx, ev.UserID, taskInputFor(ev), "automation")
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	event := &model.IntegrationEvent{
		ID:        uuid.NewString(),
		UserID:    ev.UserID,
		Provider:  ev.Provider,
		EventType: model.EventTaskAutoCreated,
		Detail:    fmt.Sprintf("message=%s task=%s", ev.MessageID, created.ID),
		CreatedAt: time.Now(),
	}
	if err := e.events.Insert(ctx, event); err != nil {
		log.Warn("failed to record automation event", zap.Error(err))
	}

	meta := model.MessageMetadata{
		ID:       ev.MessageID,
		Provider: ev.Provider,
		Folder:   model.FolderSent,
		Subject:  ev.Subject,
		To:       ev.To,
		Snippet:  ev.Snippet,
		Date:     ev.OccurredAt,
		WebLink:  ev.WebLink,
	}
	if _, err := e.cache.PruneAndSave(ctx, ev.UserID, ev.Provider, []model.MessageMetadata{meta}, settings.RetentionDays); err != nil {
		log.Warn("failed to fold sent message into cache", zap.Error(err))
	}

	if e.producer != nil {
		payload := mq.TaskAutoCompletedPayload{
			TaskID:    created.ID,
			UserID:    ev.UserID,
			Provider:  ev.Provider,
			MessageID: ev.MessageID,
			Subject:   ev.Subject,
			CreatedAt: created.CreatedAt,
		}
		if err := e.producer.Publish("task.autocompleted", payload); err != nil {
			log.Warn("failed to publish automation event", zap.Error(err))
		}
	}

	metrics.IncrementTaskAutomation("created")
	log.Info("sent message converted to completed task",
		zap.String("provider", ev.Provider),
		zap.Int("user_id", ev.UserID),
		zap.String("message_id", ev.MessageID),
		zap.String("task_id", created.ID),
	)
	return &Result{TaskID: created.ID}, nil
}

func taskInputFor(ev SentEvent) model.TaskInput {
	title := ev.Subject
	if title == "" {
		title = "(no subject)"
	}

	description := ""
	if len(ev.To) > 0 {
		description = "Sent to " + strings.Join(ev.To, ", ")
	}
	if ev.Snippet != "" {
		if description != "" {
			description += "\n\n"
		}
		description += ev.Snippet
	}

	completed := true
	source := "email"
	estimated := 5
	energy := model.TaskEnergyLow

	return model.TaskInput{
		Title:         &title,
		Description:   &description,
		Completed:     &completed,
		Source:        &source,
		EstimatedTime: &estimated,
		EnergyLevel:   &energy,
		Tags: []string{
			"email",
			"auto-complete",
			"provider:" + ev.Provider,
		},
	}
}
