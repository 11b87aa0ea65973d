package repository

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

var (
	// ErrInvalidURL is returned for strings that are not repository URLs.
	ErrInvalidURL = errors.New("repository: invalid repository URL")
	// ErrUnknownProvider is returned when the host is neither GitHub nor GitLab.
	ErrUnknownProvider = errors.New("repository: unknown provider")
)

// Ref identifies a repository on a provider.
type Ref struct {
	Provider ProviderType
	Host     string
	Owner    string // user, organization or nested group path
	Name     string
}

// FullName returns owner/name.
func (r Ref) FullName() string {
	return r.Owner + "/" + r.Name
}

// ParseURL splits an https, ssh or scp-style (git@host:owner/repo.git) clone
// URL. github.com and github.* hosts are GitHub; hosts containing "gitlab" or
// listed in gitlabHosts are GitLab.
func ParseURL(raw string, gitlabHosts []string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Ref{}, fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	var host, path string
	if rest, ok := strings.CutPrefix(raw, "git@"); ok && !strings.Contains(raw, "://") {
		h, p, found := strings.Cut(rest, ":")
		if !found {
			return Ref{}, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
		}
		host, path = h, p
	} else {
		u, err := url.Parse(raw)
		if err != nil {
			return Ref{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
		switch u.Scheme {
		case "http", "https", "ssh", "git":
		default:
			return Ref{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
		}
		host, path = u.Hostname(), u.Path
	}

	host = strings.ToLower(host)
	if host == "" {
		return Ref{}, fmt.Errorf("%w: missing host in %s", ErrInvalidURL, raw)
	}

	provider, err := classify(host, gitlabHosts)
	if err != nil {
		return Ref{}, err
	}

	// GitLab web URLs put sub-pages after "/-/".
	path, _, _ = strings.Cut(path, "/-/")
	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	segments := strings.Split(path, "/")
	if len(segments) < 2 || slices.Contains(segments, "") {
		return Ref{}, fmt.Errorf("%w: expected owner/repository in %s", ErrInvalidURL, raw)
	}

	ref := Ref{Provider: provider, Host: host}
	if provider == ProviderGitHub {
		ref.Owner, ref.Name = segments[0], segments[1]
	} else {
		last := len(segments) - 1
		ref.Owner, ref.Name = strings.Join(segments[:last], "/"), segments[last]
	}
	return ref, nil
}

func classify(host string, gitlabHosts []string) (ProviderType, error) {
	switch {
	case host == "github.com" || strings.HasPrefix(host, "github."):
		return ProviderGitHub, nil
	case strings.Contains(host, "gitlab"):
		return ProviderGitLab, nil
	}
	for _, h := range gitlabHosts {
		if strings.EqualFold(strings.TrimSpace(h), host) {
			return ProviderGitLab, nil
		}
	}
	return "", fmt.Errorf("%w: %s (supported: %s)", ErrUnknownProvider, host, strings.Join(SupportedProviders(), ", "))
}
