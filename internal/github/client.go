// Package github fetches public profile and repository activity from the
// GitHub REST API. No authentication: public data only.
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultBaseURL is the public GitHub API endpoint.
const DefaultBaseURL = "https://api.github.com"

// DefaultTimeout bounds each API request.
const DefaultTimeout = 10 * time.Second

// Profile holds the profile fields relevant to portfolio generation.
type Profile struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	PublicRepos int64  `json:"public_repos"`
	Followers   int64  `json:"followers"`
	Bio         string `json:"bio"`
	ProfileURL  string `json:"profile_url"`
}

// Commit is one recent commit on a repository.
type Commit struct {
	Message string `json:"message"`
	Date    string `json:"date"`
}

// Repo summarizes one repository's recent activity.
type Repo struct {
	Name        string   `json:"repo_name"`
	Description string   `json:"description"`
	Commits     []Commit `json:"commits"`
}

// Activity is the repository-activity summary for a user.
type Activity struct {
	Repos []Repo `json:"repos"`
}

// maxCommitsPerRepo bounds commit history per repository.
const maxCommitsPerRepo = 3

// Client talks to the GitHub API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client against the public API with the default timeout.
func New() *Client {
	return NewWithBaseURL(DefaultBaseURL, DefaultTimeout)
}

// NewWithBaseURL creates a client against a custom endpoint, for self-hosted
// instances and tests.
func NewWithBaseURL(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Profile fetches public profile data for a username.
func (c *Client) Profile(ctx context.Context, username string) (*Profile, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/users/%s", c.baseURL, username))
	if err != nil {
		return nil, fmt.Errorf("github: user %q: %w", username, err)
	}

	return &Profile{
		Login:       gjson.GetBytes(body, "login").String(),
		Name:        gjson.GetBytes(body, "name").String(),
		PublicRepos: gjson.GetBytes(body, "public_repos").Int(),
		Followers:   gjson.GetBytes(body, "followers").Int(),
		Bio:         gjson.GetBytes(body, "bio").String(),
		ProfileURL:  gjson.GetBytes(body, "html_url").String(),
	}, nil
}

// RepoActivity fetches the topN most recently updated public repositories
// with up to three recent commits each. A failed commit fetch leaves that
// repo's commit list empty rather than failing the whole call.
func (c *Client) RepoActivity(ctx context.Context, username string, topN int) (*Activity, error) {
	if topN <= 0 {
		topN = 3
	}

	url := fmt.Sprintf("%s/users/%s/repos?sort=updated&type=public", c.baseURL, username)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("github: repos for %q: %w", username, err)
	}

	activity := &Activity{}
	repos := gjson.ParseBytes(body).Array()
	if len(repos) > topN {
		repos = repos[:topN]
	}

	for _, repo := range repos {
		name := repo.Get("name").String()
		summary := Repo{
			Name:        name,
			Description: repo.Get("description").String(),
		}

		commitsURL := fmt.Sprintf("%s/repos/%s/%s/commits", c.baseURL, username, name)
		if commitsBody, err := c.get(ctx, commitsURL); err == nil {
			commits := gjson.ParseBytes(commitsBody).Array()
			if len(commits) > maxCommitsPerRepo {
				commits = commits[:maxCommitsPerRepo]
			}
			for _, commit := range commits {
				summary.Commits = append(summary.Commits, Commit{
					Message: commit.Get("commit.message").String(),
					Date:    commit.Get("commit.committer.date").String(),
				})
			}
		}

		activity.Repos = append(activity.Repos, summary)
	}

	return activity, nil
}

// get performs one GET and returns the body, mapping non-200 statuses to
// errors.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
