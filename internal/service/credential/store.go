// Package credential persists OAuth credentials and hands out access tokens,
// refreshing them lazily when expired.
package credential

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"flowdesk/internal/apierror"
	"flowdesk/internal/model"
	"flowdesk/internal/repository"
	"flowdesk/pkg/logger"
	"flowdesk/pkg/metrics"
)

// Repo is the persistence surface the store needs.
type Repo interface {
	Find(ctx context.Context, provider string, userID int) (*model.OAuthCredential, error)
	Upsert(ctx context.Context, c *model.OAuthCredential) error
	UpdateTokens(ctx context.Context, c *model.OAuthCredential) error
	Delete(ctx context.Context, provider string, userID int) error
	ListProviders(ctx context.Context, userID int) ([]string, error)
}

var nowFn = time.Now

type Store struct {
	repo    Repo
	configs Configs
	log     *zap.Logger

	// one mutex per (provider, user) so concurrent callers coalesce on a
	// single refresh instead of racing and invalidating each other's
	// refresh token
	refreshMu sync.Mutex
	refreshes map[string]*sync.Mutex
}

func NewStore(repo Repo, configs Configs, log *zap.Logger) *Store {
	return &Store{
		repo:      repo,
		configs:   configs,
		log:       log,
		refreshes: make(map[string]*sync.Mutex),
	}
}

// Save persists a freshly-exchanged credential.
func (s *Store) Save(ctx context.Context, c *model.OAuthCredential) error {
	return s.repo.Upsert(ctx, c)
}

// Get returns the stored credential without touching tokens.
func (s *Store) Get(ctx context.Context, provider string, userID int) (*model.OAuthCredential, error) {
	c, err := s.repo.Find(ctx, provider, userID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apierror.NotConnected(provider)
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return c, nil
}

// Delete removes the credential for (provider, user).
func (s *Store) Delete(ctx context.Context, provider string, userID int) error {
	return s.repo.Delete(ctx, provider, userID)
}

// ConnectedProviders lists providers the user has credentials for.
func (s *Store) ConnectedProviders(ctx context.Context, userID int) ([]string, error) {
	return s.repo.ListProviders(ctx, userID)
}

// GetValidToken returns a usable access token for (provider, user). An
// expired token triggers exactly one refresh attempt; when the refresh grant
// fails the returned token is empty with a nil error, which callers treat as
// "needs reconnect".
func (s *Store) GetValidToken(ctx context.Context, provider string, userID int) (string, error) {
	cred, err := s.Get(ctx, provider, userID)
	if err != nil {
		return "", err
	}

	if !cred.Expired(nowFn()) {
		return cred.AccessToken, nil
	}

	mu := s.lockFor(provider, userID)
	mu.Lock()
	defer mu.Unlock()

	// another caller may have finished the refresh while we waited
	cred, err = s.Get(ctx, provider, userID)
	if err != nil {
		return "", err
	}
	if !cred.Expired(nowFn()) {
		return cred.AccessToken, nil
	}

	return s.refresh(ctx, cred)
}

func (s *Store) refresh(ctx context.Context, cred *model.OAuthCredential) (string, error) {
	conf, ok := s.configs[cred.Provider]
	if !ok {
		return "", apierror.Validation("unknown provider: " + cred.Provider)
	}
	if cred.RefreshToken == "" {
		metrics.IncrementTokenRefresh(cred.Provider, "failed")
		return "", nil
	}

	log := logger.WithTrace(ctx, s.log)

	ts := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	tok, err := ts.Token()
	if err != nil {
		metrics.IncrementTokenRefresh(cred.Provider, "failed")
		log.Warn("token refresh failed, reconnect required",
			zap.String("provider", cred.Provider),
			zap.Int("user_id", cred.UserID),
			zap.Error(err),
		)
		return "", nil
	}

	cred.AccessToken = tok.AccessToken
	cred.ExpiresAt = tok.Expiry
	if tok.RefreshToken != "" {
		// provider rotated the refresh token
		cred.RefreshToken = tok.RefreshToken
	}

	if err := s.repo.UpdateTokens(ctx, cred); err != nil {
		metrics.IncrementTokenRefresh(cred.Provider, "failed")
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}

	metrics.IncrementTokenRefresh(cred.Provider, "success")
	log.Info("access token refreshed",
		zap.String("provider", cred.Provider),
		zap.Int("user_id", cred.UserID),
	)
	return cred.AccessToken, nil
}

func (s *Store) lockFor(provider string, userID int) *sync.Mutex {
	key := fmt.Sprintf("%s:%d", provider, userID)

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	mu, ok := s.refreshes[key]
	if !ok {
		mu = &sync.Mutex{}
		s.refreshes[key] = mu
	}
	return mu
}
