package session

import (
	"strings"
	"testing"
	"time"
)

func TestCreateAndGet(t *testing.T) {
	m := NewManager(0)

	id := m.Create("alice")
	if !strings.HasPrefix(id, "ses-") || len(id) != 12 {
		t.Fatalf("session ID = %q, want ses- prefix with 8 hex chars", id)
	}

	s := m.Get(id)
	if s == nil {
		t.Fatal("Get() = nil for fresh session")
	}
	if s.UserID != "alice" {
		t.Fatalf("UserID = %q, want alice", s.UserID)
	}
}

func TestGetUnknown(t *testing.T) {
	m := NewManager(0)
	if s := m.Get("ses-deadbeef"); s != nil {
		t.Fatalf("Get(unknown) = %+v, want nil", s)
	}
}

func TestExpiry(t *testing.T) {
	m := NewManager(time.Hour)
	clock := time.Now()
	m.now = func() time.Time { return clock }

	id := m.Create("alice")
	clock = clock.Add(2 * time.Hour)

	if s := m.Get(id); s != nil {
		t.Fatal("Get() returned expired session")
	}
	if m.Len() != 0 {
		t.Fatalf("Len() = %d after expiry eviction, want 0", m.Len())
	}
}

func TestExpiryFromCreationNotAccess(t *testing.T) {
	m := NewManager(time.Hour)
	clock := time.Now()
	m.now = func() time.Time { return clock }

	id := m.Create("alice")

	// Access near the end of the TTL does not extend it.
	clock = clock.Add(59 * time.Minute)
	if m.Get(id) == nil {
		t.Fatal("session expired early")
	}
	clock = clock.Add(2 * time.Minute)
	if m.Get(id) != nil {
		t.Fatal("access should not extend the TTL")
	}
}

func TestStateRoundTrip(t *testing.T) {
	m := NewManager(0)
	id := m.Create("alice")

	if !m.SetState(id, "username", "octocat") {
		t.Fatal("SetState() = false for live session")
	}
	v, ok := m.State(id, "username")
	if !ok || v != "octocat" {
		t.Fatalf("State() = %q, %v; want octocat, true", v, ok)
	}
	if _, ok := m.State(id, "missing"); ok {
		t.Fatal("State(missing key) ok = true")
	}
	if m.SetState("ses-unknown1", "k", "v") {
		t.Fatal("SetState(unknown) = true")
	}
}

func TestHistory(t *testing.T) {
	m := NewManager(0)
	id := m.Create("alice")

	m.AddHistory(id, "user", "generate a post")
	m.AddHistory(id, "assistant", "here is a post")

	hist := m.History(id)
	if len(hist) != 2 {
		t.Fatalf("History() = %d entries, want 2", len(hist))
	}
	if hist[0].Role != "user" || hist[1].Role != "assistant" {
		t.Fatalf("history roles = %s, %s", hist[0].Role, hist[1].Role)
	}

	// Mutating the copy must not affect the stored history.
	hist[0].Content = "mutated"
	if m.History(id)[0].Content != "generate a post" {
		t.Fatal("History() returned shared backing storage")
	}
}

func TestDelete(t *testing.T) {
	m := NewManager(0)
	id := m.Create("alice")

	if !m.Delete(id) {
		t.Fatal("Delete() = false for live session")
	}
	if m.Delete(id) {
		t.Fatal("Delete() = true for already deleted session")
	}
	if m.Get(id) != nil {
		t.Fatal("Get() returned deleted session")
	}
}

func TestCleanup(t *testing.T) {
	m := NewManager(time.Hour)
	clock := time.Now()
	m.now = func() time.Time { return clock }

	m.Create("alice")
	m.Create("bob")
	clock = clock.Add(2 * time.Hour)
	fresh := m.Create("carol")

	if removed := m.Cleanup(); removed != 2 {
		t.Fatalf("Cleanup() = %d, want 2", removed)
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d after cleanup, want 1", m.Len())
	}
	if m.Get(fresh) == nil {
		t.Fatal("fresh session removed by cleanup")
	}
}
