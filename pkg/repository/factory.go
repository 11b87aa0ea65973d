package repository

import (
	"context"
	"fmt"
	"strings"
)

// ProviderType represents the type of repository provider
type ProviderType string

const (
	// ProviderGitHub represents GitHub as the repository provider
	ProviderGitHub ProviderType = "github"
	// ProviderGitLab represents GitLab as the repository provider
	ProviderGitLab ProviderType = "gitlab"
)

// FactoryConfig holds provider endpoints shared by every client the factory
// creates. Tokens are per call.
type FactoryConfig struct {
	GitHubBaseURL string
	GitLabBaseURL string
	GitLabHosts   []string
}

// Factory creates repository clients based on the provider type
type Factory struct {
	config FactoryConfig

	// newClient is replaced in tests.
	newClient func(provider ProviderType, config Config) (Client, error)
}

// NewFactory creates a new factory instance with the provided configuration
func NewFactory(config FactoryConfig) *Factory {
	return &Factory{
		config:    config,
		newClient: newProviderClient,
	}
}

func newProviderClient(provider ProviderType, config Config) (Client, error) {
	switch provider {
	case ProviderGitHub:
		return NewGitHubClient(config)
	case ProviderGitLab:
		return NewGitLabClient(config)
	default:
		return nil, fmt.Errorf("unsupported provider: %s (supported: %s)", provider, strings.Join(SupportedProviders(), ", "))
	}
}

// CreateClient creates a new repository client based on the provider name
// The provider parameter is case-insensitive ("github" or "gitlab")
func (f *Factory) CreateClient(provider string, config Config) (Client, error) {
	normalizedProvider := ProviderType(strings.ToLower(strings.TrimSpace(provider)))
	return f.newClient(normalizedProvider, config)
}

// Lookup parses rawURL, picks the provider client and fetches the
// repository's metadata with token. The returned Ref is valid whenever
// parsing succeeded, even if the API call failed.
func (f *Factory) Lookup(ctx context.Context, rawURL, token string) (Ref, *Info, error) {
	ref, err := ParseURL(rawURL, f.config.GitLabHosts)
	if err != nil {
		return Ref{}, nil, err
	}

	client, err := f.CreateClient(string(ref.Provider), Config{Token: token, BaseURL: f.baseURL(ref)})
	if err != nil {
		return ref, nil, err
	}

	info, err := client.GetRepositoryInfo(ctx, ref.Owner, ref.Name)
	if err != nil {
		return ref, nil, err
	}
	return ref, info, nil
}

// baseURL picks the API endpoint for ref. Configured URLs win; otherwise
// public hosts use the SDK default and self-hosted ones the conventional
// API path on the same host.
func (f *Factory) baseURL(ref Ref) string {
	switch ref.Provider {
	case ProviderGitHub:
		if f.config.GitHubBaseURL != "" || ref.Host == "github.com" {
			return f.config.GitHubBaseURL
		}
		return "https://" + ref.Host + "/api/v3/"
	case ProviderGitLab:
		if f.config.GitLabBaseURL != "" || ref.Host == "gitlab.com" {
			return f.config.GitLabBaseURL
		}
		return "https://" + ref.Host + "/api/v4"
	}
	return ""
}

// SupportedProviders returns a list of all supported provider types
func SupportedProviders() []string {
	return []string{
		string(ProviderGitHub),
		string(ProviderGitLab),
	}
}
