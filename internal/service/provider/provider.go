// Package provider implements the mail provider adapters. Each provider
// normalizes its own wire shapes into model.MessageMetadata so everything
// above the adapters is provider-agnostic; adding a provider means adding an
// implementation, not new branches at call sites.
package provider

import (
	"context"

	"flowdesk/internal/apierror"
	"flowdesk/internal/model"
)

// Adapter is the common contract both providers implement.
type Adapter interface {
	Name() string
	// FetchMessages returns one page of normalized message metadata.
	// cursor and query may be empty; limit is clamped by the adapter.
	FetchMessages(ctx context.Context, userID int, folder string, limit int, cursor, query string) (*model.MessagePage, error)
	// FetchProfile returns account info for the connected mailbox.
	FetchProfile(ctx context.Context, userID int) (*model.AccountInfo, error)
}

// Registry selects adapters by provider name.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, apierror.Validation("unknown provider: " + name)
	}
	return a, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
