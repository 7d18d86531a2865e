// Package mailbox orchestrates message fetching across providers and keeps
// the per-provider caches current.
package mailbox

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flowdesk/internal/model"
	"flowdesk/internal/service/credential"
	"flowdesk/internal/service/provider"
	"flowdesk/internal/service/synccache"
	"flowdesk/pkg/logger"
	"flowdesk/pkg/metrics"
	"flowdesk/pkg/mq"
)

// ProviderAll fans a fetch out across every connected provider.
const ProviderAll = "all"

// Settings is the slice of the settings store the service reads.
type Settings interface {
	Get(ctx context.Context, userID int) (model.EmailSettings, error)
}

// EventLog records sync audit entries.
type EventLog interface {
	Insert(ctx context.Context, e *model.IntegrationEvent) error
}

// Publisher emits integration events for downstream consumers.
type Publisher interface {
	Publish(routingKey string, payload any) error
}

type Service struct {
	registry *provider.Registry
	creds    *credential.Store
	cache    *synccache.Cache
	settings Settings
	events   EventLog
	producer Publisher
	log      *zap.Logger

	pageLimit int
}

func NewService(
	registry *provider.Registry,
	creds *credential.Store,
	cache *synccache.Cache,
	settings Settings,
	events EventLog,
	producer Publisher,
	pageLimit int,
	log *zap.Logger,
) *Service {
	if pageLimit <= 0 {
		pageLimit = 50
	}
	return &Service{
		registry:  registry,
		creds:     creds,
		cache:     cache,
		settings:  settings,
		events:    events,
		producer:  producer,
		pageLimit: pageLimit,
		log:       log,
	}
}

// FetchResult is the /email/messages response body.
type FetchResult struct {
	Messages      []model.MessageMetadata `json:"messages"`
	NextCursor    string                  `json:"next_cursor,omitempty"`
	Provider      string                  `json:"provider"`
	Folder        string                  `json:"folder"`
	Count         int                     `json:"count"`
	RetentionDays int                     `json:"retention_days"`
	// Errors carries per-provider failures from an "all" fan-out; a failed
	// provider never blocks the others.
	Errors map[string]string `json:"errors,omitempty"`
}

// FetchMessages fetches one page from a provider (or all of them), folds the
// batch into the cache and returns the fetched page.
func (s *Service) FetchMessages(ctx context.Context, userID int, providerName, folder string, limit int, cursor, query string) (*FetchResult, error) {
	settings, err := s.settings.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if providerName == ProviderAll {
		return s.fetchAll(ctx, userID, folder, limit, query, settings.RetentionDays)
	}

	adapter, err := s.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	page, err := adapter.FetchMessages(ctx, userID, folder, limit, cursor, query)
	if err != nil {
		return nil, err
	}

	if _, err := s.cache.PruneAndSave(ctx, userID, providerName, page.Messages, settings.RetentionDays); err != nil {
		// the fetch succeeded; a cache failure degrades, not fails
		logger.WithTrace(ctx, s.log).Warn("cache update failed after fetch",
			zap.String("provider", providerName),
			zap.Error(err),
		)
	}
	metrics.IncrementSyncMessages(providerName, folder, len(page.Messages))

	return &FetchResult{
		Messages:      page.Messages,
		NextCursor:    page.NextCursor,
		Provider:      providerName,
		Folder:        folder,
		Count:         len(page.Messages),
		RetentionDays: settings.RetentionDays,
	}, nil
}

// fetchAll queries every connected provider concurrently. Failures are
// isolated per provider; each provider's cache is updated regardless of what
// is returned to the caller. Cursors don't compose across providers, so an
// "all" fetch always starts from the first page.
func (s *Service) fetchAll(ctx context.Context, userID int, folder string, limit int, query string, retentionDays int) (*FetchResult, error) {
	connected, err := s.creds.ConnectedProviders(ctx, userID)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		provider string
		messages []model.MessageMetadata
		err      error
	}

	results := make([]outcome, len(connected))
	var wg sync.WaitGroup

	for i, name := range connected {
		adapter, err := s.registry.Get(name)
		if err != nil {
			results[i] = outcome{provider: name, err: err}
			continue
		}

		wg.Add(1)
		go func(i int, name string, adapter provider.Adapter) {
			defer wg.Done()

			page, err := adapter.FetchMessages(ctx, userID, folder, limit, "", query)
			if err != nil {
				results[i] = outcome{provider: name, err: err}
				return
			}

			if _, err := s.cache.PruneAndSave(ctx, userID, name, page.Messages, retentionDays); err != nil {
				logger.WithTrace(ctx, s.log).Warn("cache update failed after fetch",
					zap.String("provider", name),
					zap.Error(err),
				)
			}
			metrics.IncrementSyncMessages(name, folder, len(page.Messages))
			results[i] = outcome{provider: name, messages: page.Messages}
		}(i, name, adapter)
	}
	wg.Wait()

	merged := []model.MessageMetadata{}
	errs := map[string]string{}
	for _, r := range results {
		if r.err != nil {
			errs[r.provider] = r.err.Error()
			continue
		}
		merged = append(merged, r.messages...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date.After(merged[j].Date)
	})

	res := &FetchResult{
		Messages:      merged,
		Provider:      ProviderAll,
		Folder:        folder,
		Count:         len(merged),
		RetentionDays: retentionDays,
	}
	if len(errs) > 0 {
		res.Errors = errs
	}
	return res, nil
}

// Sync pulls the first page of both folders for one provider, refreshes the
// cache and the per-provider bookkeeping, and reports how many messages were
// fetched.
func (s *Service) Sync(ctx context.Context, userID int, providerName string) (int, error) {
	adapter, err := s.registry.Get(providerName)
	if err != nil {
		return 0, err
	}

	settings, err := s.settings.Get(ctx, userID)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, folder := range []string{model.FolderInbox, model.FolderSent} {
		page, err := adapter.FetchMessages(ctx, userID, folder, s.pageLimit, "", "")
		if err != nil {
			return 0, err
		}
		if _, err := s.cache.PruneAndSave(ctx, userID, providerName, page.Messages, settings.RetentionDays); err != nil {
			return 0, err
		}
		metrics.IncrementSyncMessages(providerName, folder, len(page.Messages))
		total += len(page.Messages)
	}

	now := time.Now()
	if err := s.cache.SetLastSync(ctx, userID, providerName, now); err != nil {
		logger.WithTrace(ctx, s.log).Warn("failed to record last sync", zap.Error(err))
	}
	if err := s.cache.AddDataPoints(ctx, userID, providerName, total); err != nil {
		logger.WithTrace(ctx, s.log).Warn("failed to bump data points", zap.Error(err))
	}

	event := &model.IntegrationEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Provider:  providerName,
		EventType: model.EventSyncCompleted,
		Detail:    "messages=" + strconv.Itoa(total),
		CreatedAt: now,
	}
	if err := s.events.Insert(ctx, event); err != nil {
		logger.WithTrace(ctx, s.log).Warn("failed to record sync event", zap.Error(err))
	}

	if s.producer != nil {
		payload := mq.IntegrationSyncedPayload{
			UserID:   userID,
			Provider: providerName,
			Count:    total,
			SyncedAt: now,
		}
		if err := s.producer.Publish("integration.synced", payload); err != nil {
			logger.WithTrace(ctx, s.log).Warn("failed to publish sync event", zap.Error(err))
		}
	}

	return total, nil
}
