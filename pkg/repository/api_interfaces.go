package repository

// Narrow views of the GitHub and GitLab SDK clients. Only the calls the
// repository clients make are exposed, so tests can inject fakes without
// HTTP.

import (
	"context"

	"github.com/google/go-github/v57/github"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// GitHubRepositoriesService abstracts the repository metadata call.
type GitHubRepositoriesService interface {
	Get(ctx context.Context, owner, repo string) (*github.Repository, *github.Response, error)
}

type githubRepositoriesWrapper struct {
	client *github.Client
}

func (w *githubRepositoriesWrapper) Get(ctx context.Context, owner, repo string) (*github.Repository, *github.Response, error) {
	return w.client.Repositories.Get(ctx, owner, repo)
}

// GitHubAPI groups the narrowed GitHub service interfaces.
type GitHubAPI struct {
	Repositories GitHubRepositoriesService
}

func wrapGitHubClient(c *github.Client) GitHubAPI {
	return GitHubAPI{
		Repositories: &githubRepositoriesWrapper{client: c},
	}
}

// GitLabProjectsService abstracts project metadata retrieval.
type GitLabProjectsService interface {
	GetProject(projectID string, opts *gitlab.GetProjectOptions, options ...gitlab.RequestOptionFunc) (*gitlab.Project, *gitlab.Response, error)
}

type gitlabProjectsWrapper struct {
	client *gitlab.Client
}

func (w *gitlabProjectsWrapper) GetProject(projectID string, opts *gitlab.GetProjectOptions, options ...gitlab.RequestOptionFunc) (*gitlab.Project, *gitlab.Response, error) {
	return w.client.Projects.GetProject(projectID, opts, options...)
}

// GitLabAPI groups the narrowed GitLab service interfaces.
type GitLabAPI struct {
	Projects GitLabProjectsService
}

func wrapGitLabClient(c *gitlab.Client) GitLabAPI {
	return GitLabAPI{
		Projects: &gitlabProjectsWrapper{client: c},
	}
}
