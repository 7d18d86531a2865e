package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"flowdesk/internal/apierror"
	"flowdesk/internal/model"
	"flowdesk/internal/service/credential"
	"flowdesk/pkg/circuitbreaker"
	"flowdesk/pkg/metrics"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

const graphSelectFields = "id,conversationId,subject,from,toRecipients,receivedDateTime,bodyPreview,webLink"

// Graph wants its own folder names.
var outlookFolders = map[string]string{
	model.FolderInbox: "inbox",
	model.FolderSent:  "sentitems",
}

type OutlookAdapter struct {
	creds   *credential.Store
	log     *zap.Logger
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker

	baseURL string
}

func NewOutlookAdapter(creds *credential.Store, log *zap.Logger) *OutlookAdapter {
	return &OutlookAdapter{
		creds:   creds,
		log:     log,
		client:  &http.Client{Timeout: 15 * time.Second},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
		baseURL: graphBaseURL,
	}
}

func (a *OutlookAdapter) Name() string { return model.ProviderOutlook }

// FetchMessages queries the Graph messages endpoint in a single call. The
// continuation cursor is Graph's @odata.nextLink, base64-encoded so it
// survives transport as an opaque query parameter.
func (a *OutlookAdapter) FetchMessages(ctx context.Context, userID int, folder string, limit int, cursor, query string) (*model.MessagePage, error) {
	graphFolder, ok := outlookFolders[folder]
	if !ok {
		return nil, apierror.Validation("unknown folder: " + folder)
	}
	limit = clampLimit(limit)

	token, err := a.creds.GetValidToken(ctx, model.ProviderOutlook, userID)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, apierror.TokenExpired(model.ProviderOutlook)
	}

	reqURL := ""
	if cursor != "" {
		decoded, err := base64.StdEncoding.DecodeString(cursor)
		if err != nil {
			return nil, apierror.Validation("invalid cursor")
		}
		reqURL = string(decoded)
	} else {
		params := url.Values{}
		params.Set("$select", graphSelectFields)
		params.Set("$top", fmt.Sprintf("%d", limit))
		if query != "" {
			params.Set("$search", fmt.Sprintf("%q", query))
		}
		reqURL = fmt.Sprintf("%s/me/mailFolders/%s/messages?%s", a.baseURL, graphFolder, params.Encode())
	}

	body, err := a.get(ctx, reqURL, token, "messages.list")
	if err != nil {
		return nil, err
	}

	var res struct {
		Value    []graphMessage `json:"value"`
		NextLink string         `json:"@odata.nextLink"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode graph response: %w", err)
	}

	messages := make([]model.MessageMetadata, 0, len(res.Value))
	for _, m := range res.Value {
		messages = append(messages, normalizeGraphMessage(m, folder))
	}

	nextCursor := ""
	if res.NextLink != "" {
		nextCursor = base64.StdEncoding.EncodeToString([]byte(res.NextLink))
	}

	return &model.MessagePage{Messages: messages, NextCursor: nextCursor}, nil
}

// FetchProfile returns the signed-in account's address and display name.
func (a *OutlookAdapter) FetchProfile(ctx context.Context, userID int) (*model.AccountInfo, error) {
	token, err := a.creds.GetValidToken(ctx, model.ProviderOutlook, userID)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, apierror.TokenExpired(model.ProviderOutlook)
	}

	body, err := a.get(ctx, a.baseURL+"/me", token, "me")
	if err != nil {
		return nil, err
	}

	var me struct {
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		return nil, fmt.Errorf("decode graph profile: %w", err)
	}

	email := me.Mail
	if email == "" {
		email = me.UserPrincipalName
	}
	return &model.AccountInfo{Email: email, Name: me.DisplayName}, nil
}

// get performs an authenticated Graph GET under circuit-breaker protection,
// retrying once on transient statuses.
func (a *OutlookAdapter) get(ctx context.Context, reqURL, token, call string) ([]byte, error) {
	var body []byte

	err := a.breaker.Execute(func() error {
		var err error
		body, err = a.getOnce(ctx, reqURL, token, call)
		if err != nil && isTransient(err) {
			time.Sleep(500 * time.Millisecond)
			body, err = a.getOnce(ctx, reqURL, token, call)
		}
		return err
	})
	if err == circuitbreaker.ErrCircuitBreakerOpen {
		return nil, apierror.ProviderAPI(model.ProviderOutlook, http.StatusServiceUnavailable, "circuit breaker open")
	}
	return body, err
}

func (a *OutlookAdapter) getOnce(ctx context.Context, reqURL, token, call string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build graph request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		metrics.RecordProviderCall(model.ProviderOutlook, call, "error", time.Since(start))
		return nil, fmt.Errorf("outlook %s: %w", call, err)
	}
	defer resp.Body.Close()

	metrics.RecordProviderCall(model.ProviderOutlook, call, fmt.Sprintf("%d", resp.StatusCode), time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read graph response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, apierror.TokenExpired(model.ProviderOutlook)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apierror.ProviderAPI(model.ProviderOutlook, resp.StatusCode, string(body))
	}
	return body, nil
}

func isTransient(err error) bool {
	apiErr := apierror.From(err)
	if apiErr == nil || apiErr.Code != "provider_api_error" {
		return false
	}
	switch apiErr.Status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusInternalServerError:
		return true
	}
	return false
}

type graphMessage struct {
	ID               string           `json:"id"`
	ConversationID   string           `json:"conversationId"`
	Subject          string           `json:"subject"`
	BodyPreview      string           `json:"bodyPreview"`
	WebLink          string           `json:"webLink"`
	ReceivedDateTime time.Time        `json:"receivedDateTime"`
	From             graphRecipient   `json:"from"`
	ToRecipients     []graphRecipient `json:"toRecipients"`
}

type graphRecipient struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

func normalizeGraphMessage(m graphMessage, folder string) model.MessageMetadata {
	to := make([]string, 0, len(m.ToRecipients))
	for _, r := range m.ToRecipients {
		to = append(to, formatRecipient(r))
	}

	return model.MessageMetadata{
		ID:       m.ID,
		Provider: model.ProviderOutlook,
		ThreadID: m.ConversationID,
		Folder:   folder,
		Subject:  m.Subject,
		From:     formatRecipient(m.From),
		To:       to,
		Snippet:  m.BodyPreview,
		Date:     m.ReceivedDateTime.UTC(),
		WebLink:  m.WebLink,
	}
}

func formatRecipient(r graphRecipient) string {
	addr := r.EmailAddress.Address
	name := strings.TrimSpace(r.EmailAddress.Name)
	if name != "" && name != addr {
		return fmt.Sprintf("%s <%s>", name, addr)
	}
	return addr
}
