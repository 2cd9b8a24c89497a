package condense

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestHeuristicDigest(t *testing.T) {
	c := New(nil)

	entries := []string{
		"Shipped a new CLI tool for log analysis. It parses millions of lines per second.",
		"Exploring vector databases this month! Lots of interesting tradeoffs.",
	}
	digest := c.Digest(context.Background(), "octocat", entries)

	if !strings.Contains(digest, "Shipped a new CLI tool for log analysis.") {
		t.Fatalf("digest missing first lead sentence:\n%s", digest)
	}
	if !strings.Contains(digest, "Exploring vector databases this month!") {
		t.Fatalf("digest missing second lead sentence:\n%s", digest)
	}
	if strings.Contains(digest, "parses millions") {
		t.Fatalf("digest should keep only lead sentences:\n%s", digest)
	}
}

func TestDigestEmptyEntries(t *testing.T) {
	c := New(nil)
	if got := c.Digest(context.Background(), "octocat", nil); got != "" {
		t.Fatalf("Digest(no entries) = %q, want empty", got)
	}
}

func TestFirstSentenceCap(t *testing.T) {
	long := strings.Repeat("x", 300)
	got := firstSentence(long)
	if len(got) > 120 {
		t.Fatalf("firstSentence length = %d, want <= 120", len(got))
	}
}

func TestFirstSentenceCapMultibyte(t *testing.T) {
	long := strings.Repeat("é", 300)
	got := firstSentence(long)
	if !utf8.ValidString(got) {
		t.Fatalf("firstSentence produced invalid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 120 {
		t.Fatalf("firstSentence rune count = %d, want 120", n)
	}
}

func TestFirstSentenceStopsAtNewline(t *testing.T) {
	got := firstSentence("First line\nsecond line")
	if got != "First line" {
		t.Fatalf("firstSentence = %q, want %q", got, "First line")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("rate_limit_error: too many requests"), true},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("503 Service Unavailable"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("invalid_request_error: bad model"), false},
		{errors.New("401 unauthorized"), false},
		{nil, false},
	}

	for _, tc := range cases {
		if got := retryable(tc.err); got != tc.want {
			t.Errorf("retryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestNewClientWithoutAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewClient(DefaultConfig()); err == nil {
		t.Fatal("NewClient() error = nil, want missing key error")
	}
}
