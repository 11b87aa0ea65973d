package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// GitHubClient implements the Client interface for GitHub repositories
type GitHubClient struct {
	api GitHubAPI
}

// NewGitHubClient creates a new GitHub client with the provided configuration
// If no token is provided, the client will only have access to public repositories
// If a custom BaseURL is provided, it will be used for GitHub Enterprise instances
func NewGitHubClient(config Config) (*GitHubClient, error) {
	var client *github.Client

	if config.Token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: config.Token},
		)
		client = github.NewClient(oauth2.NewClient(context.Background(), ts))
	} else {
		client = github.NewClient(nil)
	}

	if config.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(config.BaseURL, config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to set GitHub Enterprise URL: %w", err)
		}
	}

	return &GitHubClient{
		api: wrapGitHubClient(client),
	}, nil
}

// GetRepositoryInfo retrieves metadata about a GitHub repository
func (g *GitHubClient) GetRepositoryInfo(ctx context.Context, owner, repo string) (*Info, error) {
	if strings.Contains(owner, "/") {
		return nil, fmt.Errorf("invalid GitHub owner %q: nested namespaces are not supported", owner)
	}
	ghRepo, _, err := g.api.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository info from GitHub: %w", err)
	}

	return &Info{
		ID:            fmt.Sprintf("%d", ghRepo.GetID()),
		Name:          ghRepo.GetName(),
		FullName:      ghRepo.GetFullName(),
		Description:   ghRepo.GetDescription(),
		DefaultBranch: ghRepo.GetDefaultBranch(),
		URL:           ghRepo.GetHTMLURL(),
		Private:       ghRepo.GetPrivate(),
	}, nil
}
