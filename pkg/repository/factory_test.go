package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubClient struct {
	info     *Info
	err      error
	gotOwner string
	gotRepo  string
}

func (s *stubClient) GetRepositoryInfo(_ context.Context, owner, repo string) (*Info, error) {
	s.gotOwner, s.gotRepo = owner, repo
	return s.info, s.err
}

// recordingFactory returns a factory whose clients are stub and which
// remembers the last provider/config it was asked for.
func recordingFactory(cfg FactoryConfig, stub *stubClient) (*Factory, *ProviderType, *Config) {
	f := NewFactory(cfg)
	var gotProvider ProviderType
	var gotConfig Config
	f.newClient = func(p ProviderType, c Config) (Client, error) {
		gotProvider, gotConfig = p, c
		return stub, nil
	}
	return f, &gotProvider, &gotConfig
}

func TestCreateClient(t *testing.T) {
	f := NewFactory(FactoryConfig{})

	client, err := f.CreateClient("GitHub", Config{Token: "t"})
	if err != nil {
		t.Fatalf("Failed to create GitHub client: %v", err)
	}
	if _, ok := client.(*GitHubClient); !ok {
		t.Errorf("Expected *GitHubClient, got %T", client)
	}

	client, err = f.CreateClient(" gitlab ", Config{Token: "t"})
	if err != nil {
		t.Fatalf("Failed to create GitLab client: %v", err)
	}
	if _, ok := client.(*GitLabClient); !ok {
		t.Errorf("Expected *GitLabClient, got %T", client)
	}

	_, err = f.CreateClient("bitbucket", Config{})
	if err == nil {
		t.Fatal("Expected error for unsupported provider")
	}
	if !strings.Contains(err.Error(), "supported: github, gitlab") {
		t.Errorf("Expected supported providers in error, got %v", err)
	}
}

func TestLookup(t *testing.T) {
	stub := &stubClient{info: &Info{FullName: "org/shop", DefaultBranch: "main"}}
	f, provider, config := recordingFactory(FactoryConfig{}, stub)

	ref, info, err := f.Lookup(context.Background(), "https://github.com/org/shop", "tok")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if *provider != ProviderGitHub {
		t.Errorf("Expected github provider, got %s", *provider)
	}
	if config.Token != "tok" || config.BaseURL != "" {
		t.Errorf("Unexpected client config %+v", *config)
	}
	if stub.gotOwner != "org" || stub.gotRepo != "shop" {
		t.Errorf("Expected org/shop, got %s/%s", stub.gotOwner, stub.gotRepo)
	}
	if ref.FullName() != "org/shop" || info.DefaultBranch != "main" {
		t.Errorf("Unexpected result %+v %+v", ref, info)
	}
}

func TestLookup_BaseURLs(t *testing.T) {
	tests := []struct {
		name    string
		cfg     FactoryConfig
		raw     string
		wantURL string
	}{
		{"public gitlab", FactoryConfig{}, "https://gitlab.com/g/p", ""},
		{"self-hosted gitlab", FactoryConfig{}, "https://gitlab.corp.io/g/p", "https://gitlab.corp.io/api/v4"},
		{"configured gitlab", FactoryConfig{GitLabBaseURL: "https://gl.internal/api/v4"}, "https://gitlab.corp.io/g/p", "https://gl.internal/api/v4"},
		{"enterprise github", FactoryConfig{}, "https://github.acme.com/o/r", "https://github.acme.com/api/v3/"},
		{"configured github", FactoryConfig{GitHubBaseURL: "https://ghe/api/v3/"}, "https://github.com/o/r", "https://ghe/api/v3/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _, config := recordingFactory(tt.cfg, &stubClient{info: &Info{}})
			if _, _, err := f.Lookup(context.Background(), tt.raw, ""); err != nil {
				t.Fatalf("Lookup failed: %v", err)
			}
			if config.BaseURL != tt.wantURL {
				t.Errorf("Expected base URL %q, got %q", tt.wantURL, config.BaseURL)
			}
		})
	}
}

func TestLookup_Errors(t *testing.T) {
	stub := &stubClient{err: errors.New("404 Not Found")}
	f, _, _ := recordingFactory(FactoryConfig{}, stub)

	ref, _, err := f.Lookup(context.Background(), "https://gitlab.com/g/p", "tok")
	if err == nil {
		t.Fatal("Expected API error")
	}
	if ref.Provider != ProviderGitLab {
		t.Errorf("Expected parsed ref on API failure, got %+v", ref)
	}

	_, _, err = f.Lookup(context.Background(), "not a url", "tok")
	if !errors.Is(err, ErrInvalidURL) {
		t.Errorf("Expected ErrInvalidURL, got %v", err)
	}
}

func TestSupportedProviders(t *testing.T) {
	providers := SupportedProviders()
	if len(providers) != 2 || providers[0] != "github" || providers[1] != "gitlab" {
		t.Errorf("Unexpected providers %v", providers)
	}
}
