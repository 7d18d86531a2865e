package credential

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"flowdesk/config"
	"flowdesk/internal/model"
)

// Configs holds one oauth2 client config per provider name.
type Configs map[string]*oauth2.Config

// NewConfigs builds the per-provider oauth2 configs from app config.
// Outlook scopes must include offline_access or Microsoft withholds the
// refresh token.
func NewConfigs(cfg config.OAuthConfig) Configs {
	return Configs{
		model.ProviderGmail: {
			ClientID:     cfg.Gmail.ClientID,
			ClientSecret: cfg.Gmail.ClientSecret,
			RedirectURL:  cfg.Gmail.RedirectURI,
			Scopes:       cfg.Gmail.Scopes,
			Endpoint:     google.Endpoint,
		},
		model.ProviderOutlook: {
			ClientID:     cfg.Outlook.ClientID,
			ClientSecret: cfg.Outlook.ClientSecret,
			RedirectURL:  cfg.Outlook.RedirectURI,
			Scopes:       cfg.Outlook.Scopes,
			Endpoint:     microsoft.AzureADEndpoint("common"),
		},
	}
}
