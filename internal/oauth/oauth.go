// Package oauth supplies OAuth client-credentials bearer headers for
// rendering sessions.
package oauth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2/clientcredentials"
)

// Config holds client-credentials settings.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// Enabled reports whether all three settings are present.
func (c Config) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.TokenURL != ""
}

// BearerSource fetches a token and renders it as an Authorization header.
type BearerSource struct {
	cfg clientcredentials.Config
}

// NewBearerSource returns nil when cfg is incomplete, so callers can pass the
// result straight through as an optional crawler.HeaderSource.
func NewBearerSource(cfg Config) *BearerSource {
	if !cfg.Enabled() {
		return nil
	}
	return &BearerSource{cfg: clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}}
}

// Headers fetches a fresh token and returns it as a bearer Authorization header.
func (b *BearerSource) Headers(ctx context.Context) (http.Header, error) {
	token, err := b.cfg.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch oauth token: %w", err)
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token.AccessToken)
	return h, nil
}
