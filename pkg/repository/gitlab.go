package repository

import (
	"context"
	"fmt"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// GitLabClient implements the Client interface for GitLab repositories
type GitLabClient struct {
	api GitLabAPI
}

// NewGitLabClient creates a new GitLab client with the provided configuration
// If no token is provided, the client will only have access to public repositories
// If a custom BaseURL is provided, it will be used for self-hosted GitLab instances
func NewGitLabClient(config Config) (*GitLabClient, error) {
	opts := []gitlab.ClientOptionFunc{}
	if config.BaseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(config.BaseURL))
	}

	client, err := gitlab.NewClient(config.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}

	return &GitLabClient{
		api: wrapGitLabClient(client),
	}, nil
}

// GetRepositoryInfo retrieves metadata about a GitLab project. owner may be a
// nested group path.
func (g *GitLabClient) GetRepositoryInfo(ctx context.Context, owner, repo string) (*Info, error) {
	projectID := fmt.Sprintf("%s/%s", owner, repo)

	project, _, err := g.api.Projects.GetProject(projectID, &gitlab.GetProjectOptions{}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get repository info from GitLab: %w", err)
	}

	return &Info{
		ID:            fmt.Sprintf("%d", project.ID),
		Name:          project.Name,
		FullName:      project.PathWithNamespace,
		Description:   project.Description,
		DefaultBranch: project.DefaultBranch,
		URL:           project.WebURL,
		Private:       project.Visibility == gitlab.PrivateVisibility,
	}, nil
}
