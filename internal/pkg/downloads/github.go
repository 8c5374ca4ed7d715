package downloads

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/mindsetalert/backoffice/internal/pkg/env"
)

type GitHubConfig struct {
	Token string
	// Repository is owner/name.
	Repository string
	// Tag selects the release; empty means the latest published release.
	Tag string
	// EnterpriseURL points at a GitHub Enterprise server; empty means github.com.
	EnterpriseURL string
	HTTPClient    *http.Client
}

// GitHubReleaseResolver redirects to an asset of a release in a private repository.
type GitHubReleaseResolver struct {
	owner  string
	repo   string
	tag    string
	client *github.Client
}

func GitHubConfigFromEnv() GitHubConfig {
	return GitHubConfig{
		Token:         strings.TrimSpace(env.GetEnv("GITHUB_TOKEN", "")),
		Repository:    strings.TrimSpace(env.GetEnv("DOWNLOAD_GITHUB_REPO", "")),
		Tag:           strings.TrimSpace(env.GetEnv("DOWNLOAD_GITHUB_TAG", "")),
		EnterpriseURL: strings.TrimSpace(env.GetEnv("GITHUB_ENTERPRISE_URL", "")),
	}
}

func NewGitHubReleaseResolver(cfg GitHubConfig) (*GitHubReleaseResolver, error) {
	owner, repo, ok := strings.Cut(cfg.Repository, "/")
	if cfg.Token == "" || !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("%w: GITHUB_TOKEN and DOWNLOAD_GITHUB_REPO (owner/name) are required", ErrNotConfigured)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	client := github.NewClient(httpClient).WithAuthToken(cfg.Token)
	if cfg.EnterpriseURL != "" {
		var err error
		if client, err = client.WithEnterpriseURLs(cfg.EnterpriseURL, cfg.EnterpriseURL); err != nil {
			return nil, fmt.Errorf("github enterprise url: %w", err)
		}
	}
	client.UserAgent = "mindset-backoffice"
	return &GitHubReleaseResolver{owner: owner, repo: repo, tag: cfg.Tag, client: client}, nil
}

func NewGitHubReleaseResolverFromEnv() (*GitHubReleaseResolver, error) {
	return NewGitHubReleaseResolver(GitHubConfigFromEnv())
}

func (r *GitHubReleaseResolver) Resolve(ctx context.Context, fileKey string) (*Delivery, error) {
	key, err := cleanKey(fileKey)
	if err != nil {
		return nil, err
	}

	var release *github.RepositoryRelease
	if r.tag == "" {
		release, _, err = r.client.Repositories.GetLatestRelease(ctx, r.owner, r.repo)
	} else {
		release, _, err = r.client.Repositories.GetReleaseByTag(ctx, r.owner, r.repo, r.tag)
	}
	if err != nil {
		return nil, fmt.Errorf("github release lookup: %w", err)
	}

	for _, asset := range release.Assets {
		if asset.GetName() != key {
			continue
		}
		if asset.GetBrowserDownloadURL() == "" {
			return nil, errors.New("github asset has no download url")
		}
		return &Delivery{RedirectURL: asset.GetBrowserDownloadURL(), FileName: asset.GetName()}, nil
	}
	return nil, ErrFileNotFound
}
