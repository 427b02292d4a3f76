// Package auth provides AgentDeck's authentication: an ordered chain
// of providers for incoming requests, JWT session tokens for the
// dashboard, HMAC service tokens for the agent runtime, and the
// bcrypt/OTP helpers behind the account endpoints.
package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Identity is an authenticated caller.
type Identity struct {
	UserID    string
	Email     string
	Provider  string
	ExpiresAt time.Time
}

// Provider authenticates one kind of credential.
//
// Contract:
//   - (*Identity, nil) → authenticated
//   - (nil, nil) → the request carries nothing this provider handles
//   - (nil, error) → auth was attempted but failed
type Provider interface {
	Name() string
	Enabled() bool
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)
}

// ProviderChain walks registered providers in order until one returns
// an Identity. Thread-safe; providers can be registered after the
// server is built.
type ProviderChain struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewProviderChain creates an empty chain.
func NewProviderChain() *ProviderChain {
	return &ProviderChain{providers: make([]Provider, 0)}
}

// Register adds a provider to the end of the chain.
func (c *ProviderChain) Register(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers = append(c.providers, p)
	log.Info().Str("provider", p.Name()).Bool("enabled", p.Enabled()).Msg("auth provider registered")
}

// Authenticate tries each enabled provider in registration order. A
// provider error rejects the request immediately; (nil, nil) means no
// provider recognized the request.
func (c *ProviderChain) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	c.mu.RLock()
	providers := make([]Provider, len(c.providers))
	copy(providers, c.providers)
	c.mu.RUnlock()

	for _, p := range providers {
		if !p.Enabled() {
			continue
		}
		identity, err := p.Authenticate(ctx, r)
		if err != nil {
			log.Debug().Str("provider", p.Name()).Err(err).Msg("auth provider rejected request")
			return nil, err
		}
		if identity != nil {
			return identity, nil
		}
	}
	return nil, nil
}
