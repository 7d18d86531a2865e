package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"flowdesk/internal/apierror"
	"flowdesk/internal/model"
	"flowdesk/internal/service/credential"
	"flowdesk/pkg/metrics"
)

// Per-message metadata GETs fan out with this much parallelism. Gmail
// tolerates small bursts; more invites 429s.
const gmailFetchConcurrency = 5

var gmailFolderLabels = map[string]string{
	model.FolderInbox: "INBOX",
	model.FolderSent:  "SENT",
}

type GmailAdapter struct {
	creds  *credential.Store
	log    *zap.Logger
	client *http.Client

	// endpoint overrides the Gmail API base URL in tests
	endpoint string
}

func NewGmailAdapter(creds *credential.Store, log *zap.Logger) *GmailAdapter {
	return &GmailAdapter{
		creds:  creds,
		log:    log,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *GmailAdapter) Name() string { return model.ProviderGmail }

func (a *GmailAdapter) service(ctx context.Context, token string) (*gmail.Service, error) {
	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})),
	}
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("build gmail client: %w", err)
	}
	return svc, nil
}

// FetchMessages lists message IDs for the folder, then fetches per-message
// metadata (headers only) with bounded parallelism. Two phases because the
// list call returns IDs only and full message GETs would waste bandwidth.
func (a *GmailAdapter) FetchMessages(ctx context.Context, userID int, folder string, limit int, cursor, query string) (*model.MessagePage, error) {
	label, ok := gmailFolderLabels[folder]
	if !ok {
		return nil, apierror.Validation("unknown folder: " + folder)
	}
	limit = clampLimit(limit)

	token, err := a.creds.GetValidToken(ctx, model.ProviderGmail, userID)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, apierror.TokenExpired(model.ProviderGmail)
	}

	svc, err := a.service(ctx, token)
	if err != nil {
		return nil, err
	}

	listCall := svc.Users.Messages.List("me").
		LabelIds(label).
		MaxResults(int64(limit))
	if cursor != "" {
		listCall = listCall.PageToken(cursor)
	}
	if query != "" {
		listCall = listCall.Q(query)
	}

	start := time.Now()
	listRes, err := listCall.Context(ctx).Do()
	metrics.RecordProviderCall(model.ProviderGmail, "messages.list", callStatus(err), time.Since(start))
	if err != nil {
		return nil, a.wrapErr("messages.list", err)
	}

	ids := make([]string, 0, len(listRes.Messages))
	for _, m := range listRes.Messages {
		ids = append(ids, m.Id)
	}

	messages, err := a.fetchMetadata(ctx, svc, ids, folder)
	if err != nil {
		return nil, err
	}

	return &model.MessagePage{
		Messages:   messages,
		NextCursor: listRes.NextPageToken,
	}, nil
}

func (a *GmailAdapter) fetchMetadata(ctx context.Context, svc *gmail.Service, ids []string, folder string) ([]model.MessageMetadata, error) {
	results := make([]model.MessageMetadata, len(ids))
	errs := make([]error, len(ids))

	sem := make(chan struct{}, gmailFetchConcurrency)
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			msg, err := svc.Users.Messages.Get("me", id).
				Format("metadata").
				MetadataHeaders("Subject", "From", "To", "Date").
				Context(ctx).
				Do()
			metrics.RecordProviderCall(model.ProviderGmail, "messages.get", callStatus(err), time.Since(start))
			if err != nil {
				errs[i] = a.wrapErr("messages.get "+id, err)
				return
			}
			results[i] = normalizeGmailMessage(msg, folder)
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// FetchProfile returns the connected account's address; callers treat a
// failure here as non-fatal.
func (a *GmailAdapter) FetchProfile(ctx context.Context, userID int) (*model.AccountInfo, error) {
	token, err := a.creds.GetValidToken(ctx, model.ProviderGmail, userID)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, apierror.TokenExpired(model.ProviderGmail)
	}

	svc, err := a.service(ctx, token)
	if err != nil {
		return nil, err
	}

	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, a.wrapErr("getProfile", err)
	}
	return &model.AccountInfo{Email: profile.EmailAddress}, nil
}

func (a *GmailAdapter) wrapErr(call string, err error) error {
	if gerr, ok := err.(*googleapi.Error); ok {
		if gerr.Code == http.StatusUnauthorized {
			return apierror.TokenExpired(model.ProviderGmail)
		}
		return apierror.ProviderAPI(model.ProviderGmail, gerr.Code, gerr.Message)
	}
	return fmt.Errorf("gmail %s: %w", call, err)
}

func normalizeGmailMessage(msg *gmail.Message, folder string) model.MessageMetadata {
	meta := model.MessageMetadata{
		ID:       msg.Id,
		Provider: model.ProviderGmail,
		ThreadID: msg.ThreadId,
		Folder:   folder,
		Snippet:  msg.Snippet,
		// internalDate is epoch milliseconds
		Date:    time.UnixMilli(msg.InternalDate).UTC(),
		WebLink: fmt.Sprintf("https://mail.google.com/mail/u/0/#all/%s", msg.Id),
	}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "Subject":
				meta.Subject = h.Value
			case "From":
				meta.From = h.Value
			case "To":
				meta.To = splitAddressList(h.Value)
			}
		}
	}
	if meta.To == nil {
		meta.To = []string{}
	}
	return meta
}

func splitAddressList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func callStatus(err error) string {
	if err == nil {
		return "ok"
	}
	if gerr, ok := err.(*googleapi.Error); ok {
		return fmt.Sprintf("%d", gerr.Code)
	}
	return "error"
}
