// Package credential supplies the access key for the remote cache.
// The key either comes straight from configuration or is fetched from
// the cloud management plane with a managed-identity token, the way
// the deployment environment provisions it.
package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Provider yields the cache access key. Implementations are injected
// into client construction at startup; nothing here is a process-wide
// singleton.
type Provider interface {
	AccessKey(ctx context.Context) (string, error)
}

// StaticProvider returns a key fixed at construction, typically read
// from the environment. Used for local development and tests.
type StaticProvider struct {
	key string
}

func NewStaticProvider(key string) *StaticProvider {
	return &StaticProvider{key: key}
}

func (p *StaticProvider) AccessKey(ctx context.Context) (string, error) {
	if p.key == "" {
		return "", fmt.Errorf("no static access key configured")
	}
	return p.key, nil
}

// TokenSource supplies a bearer token for the management plane. The
// managed-identity sidecar of the hosting platform implements this.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token, for environments where the
// platform injects one directly.
type StaticTokenSource string

func (s StaticTokenSource) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("no management token configured")
	}
	return string(s), nil
}

// ManagedProvider fetches the cache's primary access key from the
// management API using a managed-identity token.
type ManagedProvider struct {
	listKeysURL string
	tokens      TokenSource
	client      *http.Client
}

// NewManagedProvider builds a provider against the management plane's
// listKeys endpoint for the target cache resource.
func NewManagedProvider(listKeysURL string, tokens TokenSource) *ManagedProvider {
	return &ManagedProvider{
		listKeysURL: listKeysURL,
		tokens:      tokens,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

type listKeysResponse struct {
	PrimaryKey   string `json:"primaryKey"`
	SecondaryKey string `json:"secondaryKey"`
}

func (p *ManagedProvider) AccessKey(ctx context.Context) (string, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("acquiring management token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.listKeysURL, nil)
	if err != nil {
		return "", fmt.Errorf("building listKeys request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling listKeys: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("listKeys returned status %d", resp.StatusCode)
	}

	var keys listKeysResponse
	if err := json.NewDecoder(resp.Body).Decode(&keys); err != nil {
		return "", fmt.Errorf("decoding listKeys response: %w", err)
	}
	if keys.PrimaryKey == "" {
		return "", fmt.Errorf("listKeys returned no primary key")
	}
	return keys.PrimaryKey, nil
}
