package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const profileJSON = `{
	"login": "octocat",
	"name": "The Octocat",
	"public_repos": 8,
	"followers": 4000,
	"bio": "Building things",
	"html_url": "https://github.com/octocat"
}`

const reposJSON = `[
	{"name": "hello-world", "description": "My first repo"},
	{"name": "spoon-knife", "description": null},
	{"name": "older", "description": "stale"},
	{"name": "oldest", "description": "very stale"}
]`

const commitsJSON = `[
	{"commit": {"message": "fix bug", "committer": {"date": "2026-08-01T10:00:00Z"}}},
	{"commit": {"message": "add feature", "committer": {"date": "2026-07-30T09:00:00Z"}}},
	{"commit": {"message": "initial", "committer": {"date": "2026-07-01T08:00:00Z"}}},
	{"commit": {"message": "too old", "committer": {"date": "2026-06-01T08:00:00Z"}}}
]`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/users/octocat", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(profileJSON))
	})
	mux.HandleFunc("/users/octocat/repos", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sort") != "updated" {
			t.Errorf("repos request missing sort=updated")
		}
		w.Write([]byte(reposJSON))
	})
	mux.HandleFunc("/repos/octocat/hello-world/commits", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(commitsJSON))
	})
	mux.HandleFunc("/repos/octocat/spoon-knife/commits", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProfile(t *testing.T) {
	srv := newServer(t)
	c := NewWithBaseURL(srv.URL, time.Second)

	p, err := c.Profile(context.Background(), "octocat")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.Login != "octocat" {
		t.Errorf("Login = %q, want octocat", p.Login)
	}
	if p.Name != "The Octocat" {
		t.Errorf("Name = %q, want The Octocat", p.Name)
	}
	if p.PublicRepos != 8 {
		t.Errorf("PublicRepos = %d, want 8", p.PublicRepos)
	}
	if p.Followers != 4000 {
		t.Errorf("Followers = %d, want 4000", p.Followers)
	}
	if p.ProfileURL != "https://github.com/octocat" {
		t.Errorf("ProfileURL = %q", p.ProfileURL)
	}
}

func TestProfileNotFound(t *testing.T) {
	srv := newServer(t)
	c := NewWithBaseURL(srv.URL, time.Second)

	_, err := c.Profile(context.Background(), "ghost")
	if err == nil {
		t.Fatalf("expected error for unknown user")
	}
	if !strings.Contains(err.Error(), "status 404") {
		t.Errorf("err = %v, want status 404", err)
	}
}

func TestRepoActivity(t *testing.T) {
	srv := newServer(t)
	c := NewWithBaseURL(srv.URL, time.Second)

	act, err := c.RepoActivity(context.Background(), "octocat", 2)
	if err != nil {
		t.Fatalf("RepoActivity: %v", err)
	}
	if len(act.Repos) != 2 {
		t.Fatalf("repos = %d, want topN=2", len(act.Repos))
	}

	first := act.Repos[0]
	if first.Name != "hello-world" {
		t.Errorf("repo name = %q, want hello-world", first.Name)
	}
	if len(first.Commits) != 3 {
		t.Fatalf("commits = %d, want capped at 3", len(first.Commits))
	}
	if first.Commits[0].Message != "fix bug" {
		t.Errorf("commit message = %q, want fix bug", first.Commits[0].Message)
	}
	if first.Commits[0].Date != "2026-08-01T10:00:00Z" {
		t.Errorf("commit date = %q", first.Commits[0].Date)
	}

	// Null description decodes to empty; failed commit fetch leaves commits empty.
	second := act.Repos[1]
	if second.Name != "spoon-knife" {
		t.Errorf("repo name = %q, want spoon-knife", second.Name)
	}
	if second.Description != "" {
		t.Errorf("description = %q, want empty for null", second.Description)
	}
	if len(second.Commits) != 0 {
		t.Errorf("commits = %d, want 0 after commit fetch failure", len(second.Commits))
	}
}

func TestRepoActivityFetchFailure(t *testing.T) {
	srv := newServer(t)
	c := NewWithBaseURL(srv.URL, time.Second)

	_, err := c.RepoActivity(context.Background(), "ghost", 3)
	if err == nil {
		t.Fatalf("expected error when repo list fetch fails")
	}
}
