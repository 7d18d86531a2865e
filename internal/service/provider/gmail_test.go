package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flowdesk/internal/apierror"
	"flowdesk/internal/model"
)

// fakeGmail emulates the two Gmail endpoints the adapter touches: the
// message list and the per-message metadata get.
func fakeGmail(t *testing.T, wantLabel string) *httptest.Server {
	t.Helper()

	messages := map[string]any{
		"m1": map[string]any{
			"id":           "m1",
			"threadId":     "t1",
			"snippet":      "see attached",
			"internalDate": "1748774400000", // 2025-06-01T10:40:00Z in epoch ms
			"payload": map[string]any{
				"headers": []map[string]string{
					{"name": "Subject", "value": "Invoice"},
					{"name": "From", "value": "billing@example.com"},
					{"name": "To", "value": "me@example.com, you@example.com"},
				},
			},
		},
		"m2": map[string]any{
			"id":           "m2",
			"threadId":     "t2",
			"snippet":      "ping",
			"internalDate": "1748688000000",
			"payload": map[string]any{
				"headers": []map[string]string{
					{"name": "Subject", "value": "Re: standup"},
				},
			},
		},
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if strings.HasSuffix(r.URL.Path, "/messages") {
			assert.Equal(t, wantLabel, r.URL.Query().Get("labelIds"))
			json.NewEncoder(w).Encode(map[string]any{
				"messages":      []map[string]string{{"id": "m1"}, {"id": "m2"}},
				"nextPageToken": "page-2",
			})
			return
		}

		parts := strings.Split(r.URL.Path, "/")
		id := parts[len(parts)-1]
		msg, ok := messages[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(msg)
	}))
}

func newGmailFixture(t *testing.T, srv *httptest.Server) *GmailAdapter {
	t.Helper()
	repo := newFakeCredRepo()
	repo.seed(model.ProviderGmail, 1, "valid-token")

	a := NewGmailAdapter(newTestCredStore(repo), zap.NewNop())
	a.endpoint = srv.URL + "/"
	return a
}

func TestGmailFetchMessagesNormalizes(t *testing.T) {
	srv := fakeGmail(t, "INBOX")
	defer srv.Close()
	a := newGmailFixture(t, srv)

	page, err := a.FetchMessages(context.Background(), 1, model.FolderInbox, 20, "", "")
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "page-2", page.NextCursor)

	first := page.Messages[0]
	assert.Equal(t, "m1", first.ID)
	assert.Equal(t, model.ProviderGmail, first.Provider)
	assert.Equal(t, "t1", first.ThreadID)
	assert.Equal(t, model.FolderInbox, first.Folder)
	assert.Equal(t, "Invoice", first.Subject)
	assert.Equal(t, "billing@example.com", first.From)
	assert.Equal(t, []string{"me@example.com", "you@example.com"}, first.To)
	assert.Equal(t, "see attached", first.Snippet)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 40, 0, 0, time.UTC), first.Date)
	assert.Equal(t, "https://mail.google.com/mail/u/0/#all/m1", first.WebLink)

	// a message without To still round-trips with an empty slice
	second := page.Messages[1]
	assert.Equal(t, "Re: standup", second.Subject)
	assert.Equal(t, []string{}, second.To)
}

func TestGmailSentFolderUsesSentLabel(t *testing.T) {
	srv := fakeGmail(t, "SENT")
	defer srv.Close()
	a := newGmailFixture(t, srv)

	page, err := a.FetchMessages(context.Background(), 1, model.FolderSent, 2, "", "")
	require.NoError(t, err)
	for _, m := range page.Messages {
		assert.Equal(t, model.FolderSent, m.Folder)
	}
}

func TestGmailRejectsUnknownFolder(t *testing.T) {
	srv := fakeGmail(t, "INBOX")
	defer srv.Close()
	a := newGmailFixture(t, srv)

	_, err := a.FetchMessages(context.Background(), 1, "archive", 20, "", "")
	require.Error(t, err)
	assert.Equal(t, "validation_error", apierror.From(err).Code)
}

func TestGmailNotConnected(t *testing.T) {
	srv := fakeGmail(t, "INBOX")
	defer srv.Close()

	a := NewGmailAdapter(newTestCredStore(newFakeCredRepo()), zap.NewNop())
	a.endpoint = srv.URL + "/"

	_, err := a.FetchMessages(context.Background(), 42, model.FolderInbox, 20, "", "")
	require.Error(t, err)
	assert.Equal(t, "integration_not_connected", apierror.From(err).Code)
}

func TestGmailExpiredWithoutRefreshToken(t *testing.T) {
	srv := fakeGmail(t, "INBOX")
	defer srv.Close()

	repo := newFakeCredRepo()
	repo.creds[credKey(model.ProviderGmail, 1)] = &model.OAuthCredential{
		Provider:    model.ProviderGmail,
		UserID:      1,
		AccessToken: "stale",
		ExpiresAt:   time.Now().Add(-time.Hour),
	}
	store := newTestCredStoreWithConfig(repo)

	a := NewGmailAdapter(store, zap.NewNop())
	a.endpoint = srv.URL + "/"

	_, err := a.FetchMessages(context.Background(), 1, model.FolderInbox, 20, "", "")
	require.Error(t, err)
	assert.Equal(t, "token_expired", apierror.From(err).Code)
}
