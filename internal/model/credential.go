package model

import "time"

const (
	ProviderGmail   = "gmail"
	ProviderOutlook = "outlook"
)

// Providers lists every supported mail provider.
var Providers = []string{ProviderGmail, ProviderOutlook}

func IsValidProvider(p string) bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// OAuthCredential is one user's token set for one provider.
type OAuthCredential struct {
	Provider     string    `json:"provider"`
	UserID       int       `json:"user_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope"`
	AccountEmail string    `json:"account_email"`
	AccountName  string    `json:"account_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Expired reports whether the access token is unusable without a refresh.
// A small skew keeps us from handing out tokens that die mid-request.
func (c *OAuthCredential) Expired(now time.Time) bool {
	return !now.Add(30 * time.Second).Before(c.ExpiresAt)
}

// AccountInfo is the profile snippet fetched best-effort at connect time.
type AccountInfo struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}
