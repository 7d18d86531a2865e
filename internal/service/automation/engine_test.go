package automation

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flowdesk/internal/apierror"
	"flowdesk/internal/model"
	"flowdesk/internal/ratelimit"
	"flowdesk/internal/service/task"
)

type fakeDeduper struct {
	mu      sync.Mutex
	markers map[string]bool
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{markers: map[string]bool{}}
}

func (d *fakeDeduper) AcquireOnce(_ context.Context, provider string, userID int, messageID string, _ time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := provider + messageID
	if d.markers[key] {
		return false
	}
	d.markers[key] = true
	return true
}

type fakeSettings struct {
	settings model.EmailSettings
	err      error
}

func (s *fakeSettings) Get(_ context.Context, userID int) (model.EmailSettings, error) {
	if s.err != nil {
		return model.EmailSettings{}, s.err
	}
	out := s.settings
	out.UserID = userID
	return out, nil
}

type fakeTasks struct {
	created []model.TaskInput
	err     error
}

func (f *fakeTasks) Create(_ context.Context, userID int, input model.TaskInput, createdBy string) (*model.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, input)
	t, err := task.Normalize(userID, input, createdBy)
	if err != nil {
		return nil, err
	}
	return t, nil
}

type fakeCache struct {
	saved []model.MessageMetadata
}

func (f *fakeCache) PruneAndSave(_ context.Context, _ int, _ string, incoming []model.MessageMetadata, _ int) ([]model.MessageMetadata, error) {
	f.saved = append(f.saved, incoming...)
	return incoming, nil
}

type fakeEventLog struct {
	events []model.IntegrationEvent
}

func (f *fakeEventLog) Insert(_ context.Context, e *model.IntegrationEvent) error {
	f.events = append(f.events, *e)
	return nil
}

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(routingKey string, _ any) error {
	f.published = append(f.published, routingKey)
	return nil
}

type engineFixture struct {
	engine   *Engine
	deduper  *fakeDeduper
	settings *fakeSettings
	tasks    *fakeTasks
	cache    *fakeCache
	events   *fakeEventLog
	producer *fakePublisher
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		deduper:  newFakeDeduper(),
		settings: &fakeSettings{settings: model.EmailSettings{AutoCompleteSentEmails: true, RetentionDays: 30}},
		tasks:    &fakeTasks{},
		cache:    &fakeCache{},
		events:   &fakeEventLog{},
		producer: &fakePublisher{},
	}
	f.engine = NewEngine(
		ratelimit.NewMemoryLimiter(time.Minute, 60),
		f.deduper,
		f.settings,
		f.tasks,
		f.cache,
		f.events,
		f.producer,
		zap.NewNop(),
	)
	return f
}

func sentEvent() SentEvent {
	return SentEvent{
		UserID:     1,
		Provider:   model.ProviderGmail,
		MessageID:  "msg-1",
		Subject:    "Quarterly numbers",
		To:         []string{"boss@example.com"},
		OccurredAt: time.Now(),
		Snippet:    "Here are the numbers you asked for.",
	}
}

func TestProcessCreatesCompletedTask(t *testing.T) {
	f := newEngineFixture()

	res, err := f.engine.Process(context.Background(), sentEvent(), "127.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, res.TaskID)
	assert.False(t, res.Deduped)

	require.Len(t, f.tasks.created, 1)
	input := f.tasks.created[0]
	assert.Equal(t, "Quarterly numbers", *input.Title)
	assert.True(t, *input.Completed)
	assert.Equal(t, "email", *input.Source)
	assert.Contains(t, input.Tags, "auto-complete")
	assert.Contains(t, input.Tags, "provider:gmail")
	assert.Contains(t, *input.Description, "boss@example.com")

	require.Len(t, f.events.events, 1)
	assert.Equal(t, model.EventTaskAutoCreated, f.events.events[0].EventType)

	require.Len(t, f.cache.saved, 1)
	assert.Equal(t, model.FolderSent, f.cache.saved[0].Folder)

	assert.Equal(t, []string{"task.autocompleted"}, f.producer.published)
}

func TestProcessDeduplicatesRedeliveries(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	first, err := f.engine.Process(ctx, sentEvent(), "127.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, first.TaskID)

	second, err := f.engine.Process(ctx, sentEvent(), "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, second.Deduped)
	assert.Empty(t, second.TaskID)

	assert.Len(t, f.tasks.created, 1, "a redelivered event must not create a second task")
}

func TestProcessDistinctMessagesBothCreateTasks(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	ev1 := sentEvent()
	ev2 := sentEvent()
	ev2.MessageID = "msg-2"

	_, err := f.engine.Process(ctx, ev1, "127.0.0.1")
	require.NoError(t, err)
	_, err = f.engine.Process(ctx, ev2, "127.0.0.1")
	require.NoError(t, err)

	assert.Len(t, f.tasks.created, 2)
}

func TestProcessSkipsWhenAutoCompleteDisabled(t *testing.T) {
	f := newEngineFixture()
	f.settings.settings.AutoCompleteSentEmails = false

	res, err := f.engine.Process(context.Background(), sentEvent(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "auto-complete disabled", res.Skipped)
	assert.Empty(t, f.tasks.created)

	// the marker was still written, so the event stays consumed even after
	// the user turns the setting back on
	f.settings.settings.AutoCompleteSentEmails = true
	res, err = f.engine.Process(context.Background(), sentEvent(), "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Deduped)
	assert.Empty(t, f.tasks.created)
}

func TestProcessValidatesEvent(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*SentEvent)
	}{
		{"unknown provider", func(ev *SentEvent) { ev.Provider = "fastmail" }},
		{"missing user", func(ev *SentEvent) { ev.UserID = 0 }},
		{"missing message id", func(ev *SentEvent) { ev.MessageID = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := sentEvent()
			tc.mutate(&ev)

			_, err := f.engine.Process(ctx, ev, "127.0.0.1")
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, apierror.Status(err))
		})
	}
	assert.Empty(t, f.tasks.created)
}

func TestProcessRateLimits(t *testing.T) {
	f := newEngineFixture()
	f.engine.limiter = ratelimit.NewMemoryLimiter(time.Minute, 1)
	ctx := context.Background()

	ev := sentEvent()
	_, err := f.engine.Process(ctx, ev, "127.0.0.1")
	require.NoError(t, err)

	ev.MessageID = "msg-2"
	_, err = f.engine.Process(ctx, ev, "127.0.0.1")
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, apierror.Status(err))

	// a different source IP gets its own window
	_, err = f.engine.Process(ctx, ev, "10.0.0.9")
	assert.NoError(t, err)
}

func TestProcessTaskFailureSurfaces(t *testing.T) {
	f := newEngineFixture()
	f.tasks.err = errors.New("db down")

	_, err := f.engine.Process(context.Background(), sentEvent(), "127.0.0.1")
	require.Error(t, err)
	assert.Empty(t, f.events.events)
	assert.Empty(t, f.producer.published)
}
