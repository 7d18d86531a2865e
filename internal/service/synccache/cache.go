// Package synccache keeps a bounded per-(user, provider) cache of message
// metadata in redis, merged and pruned on every save.
package synccache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"flowdesk/internal/model"
)

// MaxEntries caps one (user, provider) cache list.
const MaxEntries = 5000

type Cache struct {
	store  Store
	logger *zap.Logger
}

func NewCache(store Store, logger *zap.Logger) *Cache {
	return &Cache{store: store, logger: logger}
}

func cacheKey(userID int, provider string) string {
	return fmt.Sprintf("emailcache:%d:%s", userID, provider)
}

func lastSyncKey(userID int, provider string) string {
	return fmt.Sprintf("lastsync:%d:%s", userID, provider)
}

func dataPointsKey(userID int, provider string) string {
	return fmt.Sprintf("datapoints:%d:%s", userID, provider)
}

// Load returns the cached list for (user, provider); empty when absent.
func (c *Cache) Load(ctx context.Context, userID int, provider string) ([]model.MessageMetadata, error) {
	raw, err := c.store.Get(ctx, cacheKey(userID, provider))
	if err != nil {
		return nil, fmt.Errorf("load message cache: %w", err)
	}
	if raw == nil {
		return []model.MessageMetadata{}, nil
	}

	var entries []model.MessageMetadata
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode message cache: %w", err)
	}
	return entries, nil
}

// PruneAndSave merges incoming into the existing cache, deduplicates by
// message id (incoming wins), drops entries older than the retention window,
// caps the list at MaxEntries and persists. A persist failure is retried once
// before giving up, so a fetched page isn't silently lost.
func (c *Cache) PruneAndSave(ctx context.Context, userID int, provider string, incoming []model.MessageMetadata, retentionDays int) ([]model.MessageMetadata, error) {
	existing, err := c.Load(ctx, userID, provider)
	if err != nil {
		c.logger.Warn("message cache unreadable, rebuilding from incoming batch",
			zap.Int("user_id", userID),
			zap.String("provider", provider),
			zap.Error(err),
		)
		existing = nil
	}

	now := time.Now()
	cutoff := now.AddDate(0, 0, -retentionDays)

	seen := make(map[string]struct{}, len(incoming)+len(existing))
	merged := make([]model.MessageMetadata, 0, len(incoming)+len(existing))

	stamp := func(m model.MessageMetadata) model.MessageMetadata {
		if m.CachedAt.IsZero() {
			m.CachedAt = now
		}
		return m
	}

	for _, m := range incoming {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		if m.Date.Before(cutoff) {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, stamp(m))
	}
	for _, m := range existing {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		if m.Date.Before(cutoff) {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, stamp(m))
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date.After(merged[j].Date)
	})

	if len(merged) > MaxEntries {
		merged = merged[:MaxEntries]
	}

	if err := c.save(ctx, userID, provider, merged, retentionDays); err != nil {
		return nil, err
	}
	return merged, nil
}

func (c *Cache) save(ctx context.Context, userID int, provider string, entries []model.MessageMetadata, retentionDays int) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode message cache: %w", err)
	}

	ttl := time.Duration(retentionDays) * 24 * time.Hour
	key := cacheKey(userID, provider)

	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.logger.Warn("message cache persist failed, retrying once",
			zap.Int("user_id", userID),
			zap.String("provider", provider),
			zap.Error(err),
		)
		if err := c.store.Set(ctx, key, raw, ttl); err != nil {
			return fmt.Errorf("persist message cache: %w", err)
		}
	}
	return nil
}

// SetLastSync records the most recent successful sync time.
func (c *Cache) SetLastSync(ctx context.Context, userID int, provider string, t time.Time) error {
	return c.store.Set(ctx, lastSyncKey(userID, provider), []byte(t.UTC().Format(time.RFC3339)), 0)
}

// LastSync returns the recorded sync time, or the zero time when none.
func (c *Cache) LastSync(ctx context.Context, userID int, provider string) (time.Time, error) {
	raw, err := c.store.Get(ctx, lastSyncKey(userID, provider))
	if err != nil || raw == nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, string(raw))
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// AddDataPoints bumps the per-provider counter of fetched messages.
func (c *Cache) AddDataPoints(ctx context.Context, userID int, provider string, n int) error {
	total, _ := c.DataPoints(ctx, userID, provider)
	return c.store.Set(ctx, dataPointsKey(userID, provider), []byte(strconv.Itoa(total+n)), 0)
}

// DataPoints returns the counter value.
func (c *Cache) DataPoints(ctx context.Context, userID int, provider string) (int, error) {
	raw, err := c.store.Get(ctx, dataPointsKey(userID, provider))
	if err != nil || raw == nil {
		return 0, err
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// Purge removes every cache key for (user, provider); called on disconnect.
func (c *Cache) Purge(ctx context.Context, userID int, provider string) error {
	return c.store.Delete(ctx,
		cacheKey(userID, provider),
		lastSyncKey(userID, provider),
		dataPointsKey(userID, provider),
	)
}
