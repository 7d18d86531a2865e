package synccache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flowdesk/internal/model"
)

// memoryStore is an in-memory Store; failSets makes the next N Set calls fail.
type memoryStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	failSets int
	setCalls int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string][]byte{}}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++
	if s.failSets > 0 {
		s.failSets--
		return errors.New("store unavailable")
	}
	s.data[key] = value
	return nil
}

func (s *memoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func msg(id string, age time.Duration) model.MessageMetadata {
	return model.MessageMetadata{
		ID:       id,
		Provider: model.ProviderGmail,
		Folder:   model.FolderInbox,
		Subject:  "subject " + id,
		Date:     time.Now().Add(-age),
	}
}

func TestPruneAndSaveMergesAndSorts(t *testing.T) {
	cache := NewCache(newMemoryStore(), zap.NewNop())
	ctx := context.Background()

	_, err := cache.PruneAndSave(ctx, 1, model.ProviderGmail, []model.MessageMetadata{
		msg("old", 48*time.Hour),
	}, 30)
	require.NoError(t, err)

	merged, err := cache.PruneAndSave(ctx, 1, model.ProviderGmail, []model.MessageMetadata{
		msg("new", time.Hour),
	}, 30)
	require.NoError(t, err)

	require.Len(t, merged, 2)
	assert.Equal(t, "new", merged[0].ID, "newest message sorts first")
	assert.Equal(t, "old", merged[1].ID)

	loaded, err := cache.Load(ctx, 1, model.ProviderGmail)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestPruneAndSaveIsIdempotent(t *testing.T) {
	cache := NewCache(newMemoryStore(), zap.NewNop())
	ctx := context.Background()
	batch := []model.MessageMetadata{msg("a", time.Hour), msg("b", 2*time.Hour)}

	first, err := cache.PruneAndSave(ctx, 1, model.ProviderGmail, batch, 30)
	require.NoError(t, err)
	second, err := cache.PruneAndSave(ctx, 1, model.ProviderGmail, batch, 30)
	require.NoError(t, err)

	assert.Len(t, first, 2)
	assert.Len(t, second, 2, "re-saving the same batch must not duplicate entries")
}

func TestPruneAndSaveIncomingWinsOnDuplicateID(t *testing.T) {
	cache := NewCache(newMemoryStore(), zap.NewNop())
	ctx := context.Background()

	stale := msg("m1", time.Hour)
	stale.Subject = "stale subject"
	_, err := cache.PruneAndSave(ctx, 1, model.ProviderGmail, []model.MessageMetadata{stale}, 30)
	require.NoError(t, err)

	fresh := msg("m1", time.Hour)
	fresh.Subject = "fresh subject"
	merged, err := cache.PruneAndSave(ctx, 1, model.ProviderGmail, []model.MessageMetadata{fresh}, 30)
	require.NoError(t, err)

	require.Len(t, merged, 1)
	assert.Equal(t, "fresh subject", merged[0].Subject)
}

func TestPruneAndSaveDropsExpiredEntries(t *testing.T) {
	cache := NewCache(newMemoryStore(), zap.NewNop())
	ctx := context.Background()

	merged, err := cache.PruneAndSave(ctx, 1, model.ProviderGmail, []model.MessageMetadata{
		msg("fresh", 24*time.Hour),
		msg("ancient", 40*24*time.Hour),
	}, 30)
	require.NoError(t, err)

	require.Len(t, merged, 1)
	assert.Equal(t, "fresh", merged[0].ID)
}

func TestPruneAndSaveCapsEntries(t *testing.T) {
	cache := NewCache(newMemoryStore(), zap.NewNop())
	ctx := context.Background()

	batch := make([]model.MessageMetadata, MaxEntries+50)
	for i := range batch {
		batch[i] = msg(fmt.Sprintf("m%d", i), time.Duration(i)*time.Second)
	}

	merged, err := cache.PruneAndSave(ctx, 1, model.ProviderGmail, batch, 365)
	require.NoError(t, err)
	assert.Len(t, merged, MaxEntries)
	// the newest entries survive the cap
	assert.Equal(t, "m0", merged[0].ID)
}

func TestPruneAndSaveRetriesFailedPersist(t *testing.T) {
	store := newMemoryStore()
	store.failSets = 1
	cache := NewCache(store, zap.NewNop())
	ctx := context.Background()

	merged, err := cache.PruneAndSave(ctx, 1, model.ProviderGmail, []model.MessageMetadata{msg("a", time.Hour)}, 30)
	require.NoError(t, err)
	assert.Len(t, merged, 1)
	assert.Equal(t, 2, store.setCalls)

	loaded, err := cache.Load(ctx, 1, model.ProviderGmail)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestPruneAndSaveGivesUpAfterRetry(t *testing.T) {
	store := newMemoryStore()
	store.failSets = 2
	cache := NewCache(store, zap.NewNop())

	_, err := cache.PruneAndSave(context.Background(), 1, model.ProviderGmail, []model.MessageMetadata{msg("a", time.Hour)}, 30)
	assert.Error(t, err)
}

func TestCachesAreNamespacedPerUserAndProvider(t *testing.T) {
	cache := NewCache(newMemoryStore(), zap.NewNop())
	ctx := context.Background()

	_, err := cache.PruneAndSave(ctx, 1, model.ProviderGmail, []model.MessageMetadata{msg("a", time.Hour)}, 30)
	require.NoError(t, err)

	other, err := cache.Load(ctx, 2, model.ProviderGmail)
	require.NoError(t, err)
	assert.Empty(t, other)

	otherProvider, err := cache.Load(ctx, 1, model.ProviderOutlook)
	require.NoError(t, err)
	assert.Empty(t, otherProvider)
}

func TestLastSyncRoundTrip(t *testing.T) {
	cache := NewCache(newMemoryStore(), zap.NewNop())
	ctx := context.Background()

	got, err := cache.LastSync(ctx, 1, model.ProviderGmail)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	at := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, cache.SetLastSync(ctx, 1, model.ProviderGmail, at))

	got, err = cache.LastSync(ctx, 1, model.ProviderGmail)
	require.NoError(t, err)
	assert.True(t, got.Equal(at))
}

func TestDataPointsAccumulate(t *testing.T) {
	cache := NewCache(newMemoryStore(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, cache.AddDataPoints(ctx, 1, model.ProviderOutlook, 10))
	require.NoError(t, cache.AddDataPoints(ctx, 1, model.ProviderOutlook, 5))

	n, err := cache.DataPoints(ctx, 1, model.ProviderOutlook)
	require.NoError(t, err)
	assert.Equal(t, 15, n)
}

func TestPurgeClearsEverything(t *testing.T) {
	cache := NewCache(newMemoryStore(), zap.NewNop())
	ctx := context.Background()

	_, err := cache.PruneAndSave(ctx, 1, model.ProviderGmail, []model.MessageMetadata{msg("a", time.Hour)}, 30)
	require.NoError(t, err)
	require.NoError(t, cache.SetLastSync(ctx, 1, model.ProviderGmail, time.Now()))
	require.NoError(t, cache.AddDataPoints(ctx, 1, model.ProviderGmail, 3))

	require.NoError(t, cache.Purge(ctx, 1, model.ProviderGmail))

	loaded, err := cache.Load(ctx, 1, model.ProviderGmail)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	last, err := cache.LastSync(ctx, 1, model.ProviderGmail)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	n, err := cache.DataPoints(ctx, 1, model.ProviderGmail)
	require.NoError(t, err)
	assert.Zero(t, n)
}
