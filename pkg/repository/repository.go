// Package repository looks up repository metadata on source code hosting
// providers (GitHub, GitLab). The portal uses it to check, before a clone
// request is sent, that a CSV row's URL resolves and its token can read it.
package repository

import (
	"context"
)

// Info contains metadata about a repository.
type Info struct {
	ID            string // Repository ID
	Name          string // Repository name
	FullName      string // Full name (owner/repo)
	Description   string // Repository description
	DefaultBranch string // Default branch name
	URL           string // Web URL to the repository
	Private       bool
}

// Client defines the interface for interacting with git repository providers
type Client interface {
	// GetRepositoryInfo retrieves metadata about a repository
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - owner: Repository owner (user, organization or GitLab group path)
	//   - repo: Repository name
	GetRepositoryInfo(ctx context.Context, owner, repo string) (*Info, error)
}

// Config holds common configuration for repository clients
type Config struct {
	// Token is the access token from the CSV row. Empty means anonymous.
	Token string

	// BaseURL is the base URL for the API endpoint
	// For GitHub Enterprise or GitLab self-hosted instances
	// Leave empty for public GitHub (github.com) or GitLab (gitlab.com)
	BaseURL string
}
