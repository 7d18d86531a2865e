// Package authflow runs the OAuth2 authorization-code exchange for the mail
// providers, including CSRF state handling and disconnect cleanup.
package authflow

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"flowdesk/internal/apierror"
	"flowdesk/internal/model"
	"flowdesk/internal/service/credential"
	"flowdesk/internal/service/provider"
	"flowdesk/internal/service/synccache"
	"flowdesk/pkg/logger"
)

// EventLog is the audit-log surface the flow writes to.
type EventLog interface {
	Insert(ctx context.Context, e *model.IntegrationEvent) error
	DeleteByProvider(ctx context.Context, userID int, provider string) error
}

type Service struct {
	configs  credential.Configs
	creds    *credential.Store
	states   StateStore
	cache    *synccache.Cache
	events   EventLog
	registry *provider.Registry
	log      *zap.Logger
}

func NewService(
	configs credential.Configs,
	creds *credential.Store,
	states StateStore,
	cache *synccache.Cache,
	events EventLog,
	registry *provider.Registry,
	log *zap.Logger,
) *Service {
	return &Service{
		configs:  configs,
		creds:    creds,
		states:   states,
		cache:    cache,
		events:   events,
		registry: registry,
		log:      log,
	}
}

// Status is what the UI renders on the integrations screen.
type Status struct {
	Provider    string             `json:"provider"`
	Connected   bool               `json:"connected"`
	AccountInfo *model.AccountInfo `json:"account_info,omitempty"`
	LastSyncAt  *time.Time         `json:"last_sync_at,omitempty"`
	DataPoints  int                `json:"data_points"`
}

// Authorize generates a CSRF state, records it against the request details
// and returns the provider's authorization URL. access_type=offline with a
// forced consent prompt makes Google re-issue the refresh token on
// reconnects.
func (s *Service) Authorize(ctx context.Context, providerName string, userID int, scopes []string, redirectURI string) (authURL, state string, err error) {
	conf, ok := s.configs[providerName]
	if !ok {
		return "", "", apierror.Validation("unknown provider: " + providerName)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate state: %w", err)
	}
	state = providerName + ":" + hex.EncodeToString(buf)

	authConf := *conf
	if redirectURI != "" {
		authConf.RedirectURL = redirectURI
	}
	if len(scopes) > 0 {
		authConf.Scopes = scopes
	}

	st := AuthState{
		UserID:      userID,
		Provider:    providerName,
		RedirectURI: authConf.RedirectURL,
		CreatedAt:   time.Now(),
	}
	if err := s.states.Put(ctx, state, st); err != nil {
		return "", "", fmt.Errorf("store auth state: %w", err)
	}

	authURL = authConf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
	return authURL, state, nil
}

// Callback verifies and consumes the CSRF state, exchanges the code for
// tokens using the exact redirect URI recorded at authorize time (the token
// endpoint requires a bit-exact match), and persists the credential. Account
// profile enrichment is best-effort.
func (s *Service) Callback(ctx context.Context, providerName, code, state string) (*model.AccountInfo, error) {
	log := logger.WithTrace(ctx, s.log)

	st, err := s.states.Take(ctx, state)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, apierror.AuthorizationState("unknown or expired state")
	}
	if st.Provider != providerName {
		return nil, apierror.AuthorizationState("state does not match provider")
	}

	conf, ok := s.configs[providerName]
	if !ok {
		return nil, apierror.Validation("unknown provider: " + providerName)
	}
	exchangeConf := *conf
	exchangeConf.RedirectURL = st.RedirectURI

	tok, err := exchangeConf.Exchange(ctx, code)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return nil, apierror.ProviderAPI(providerName, rerr.Response.StatusCode, string(rerr.Body))
		}
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	cred := &model.OAuthCredential{
		Provider:     providerName,
		UserID:       st.UserID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		cred.Scope = scope
	}

	if err := s.creds.Save(ctx, cred); err != nil {
		return nil, fmt.Errorf("persist credential: %w", err)
	}

	info := s.enrichAccountInfo(ctx, cred)

	event := &model.IntegrationEvent{
		ID:        uuid.NewString(),
		UserID:    st.UserID,
		Provider:  providerName,
		EventType: model.EventAccountConnected,
		Detail:    info.Email,
		CreatedAt: time.Now(),
	}
	if err := s.events.Insert(ctx, event); err != nil {
		log.Warn("failed to record connect event", zap.Error(err))
	}

	log.Info("integration connected",
		zap.String("provider", providerName),
		zap.Int("user_id", st.UserID),
	)
	return info, nil
}

// enrichAccountInfo fetches the account profile and stores it on the
// credential. Failures degrade to an empty profile; a connect must not fail
// because a profile endpoint hiccupped.
func (s *Service) enrichAccountInfo(ctx context.Context, cred *model.OAuthCredential) *model.AccountInfo {
	adapter, err := s.registry.Get(cred.Provider)
	if err != nil {
		return &model.AccountInfo{}
	}

	info, err := adapter.FetchProfile(ctx, cred.UserID)
	if err != nil {
		logger.WithTrace(ctx, s.log).Warn("account profile fetch failed",
			zap.String("provider", cred.Provider),
			zap.Int("user_id", cred.UserID),
			zap.Error(err),
		)
		return &model.AccountInfo{}
	}

	cred.AccountEmail = info.Email
	cred.AccountName = info.Name
	if err := s.creds.Save(ctx, cred); err != nil {
		logger.WithTrace(ctx, s.log).Warn("failed to store account info", zap.Error(err))
	}
	return info
}

// Disconnect deletes the credential and every cache key namespaced to
// (provider, user).
func (s *Service) Disconnect(ctx context.Context, providerName string, userID int) error {
	if !model.IsValidProvider(providerName) {
		return apierror.Validation("unknown provider: " + providerName)
	}

	if err := s.creds.Delete(ctx, providerName, userID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if err := s.cache.Purge(ctx, userID, providerName); err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	if err := s.events.DeleteByProvider(ctx, userID, providerName); err != nil {
		return fmt.Errorf("clear event log: %w", err)
	}

	logger.WithTrace(ctx, s.log).Info("integration disconnected",
		zap.String("provider", providerName),
		zap.Int("user_id", userID),
	)
	return nil
}

// Status reports connection state for one provider.
func (s *Service) Status(ctx context.Context, providerName string, userID int) (*Status, error) {
	if !model.IsValidProvider(providerName) {
		return nil, apierror.Validation("unknown provider: " + providerName)
	}

	cred, err := s.creds.Get(ctx, providerName, userID)
	if err != nil {
		if apiErr := apierror.From(err); apiErr != nil && apiErr.Code == "integration_not_connected" {
			return &Status{Provider: providerName, Connected: false}, nil
		}
		return nil, err
	}

	status := &Status{
		Provider:  providerName,
		Connected: true,
		AccountInfo: &model.AccountInfo{
			Email: cred.AccountEmail,
			Name:  cred.AccountName,
		},
	}

	if last, err := s.cache.LastSync(ctx, userID, providerName); err == nil && !last.IsZero() {
		status.LastSyncAt = &last
	}
	if points, err := s.cache.DataPoints(ctx, userID, providerName); err == nil {
		status.DataPoints = points
	}
	return status, nil
}
