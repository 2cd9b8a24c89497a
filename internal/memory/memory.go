// Package memory is the agent's long-term store: an append-only JSON file
// of published portfolio entries, queryable by username.
package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	logpkg "github.com/norm/folio-agent/internal/log"
)

// Record is one saved portfolio update.
type Record struct {
	ID        string            `json:"id"`
	Username  string            `json:"username"`
	Post      string            `json:"post"`
	Meta      map[string]string `json:"meta"`
	Timestamp time.Time         `json:"timestamp"`
}

// Store persists records to a single JSON array file. All methods are safe
// for concurrent use.
type Store struct {
	path string

	mu     sync.Mutex
	raw    []byte
	events *logpkg.EventLog
}

// Open loads the store at path. A missing file starts empty. A corrupt file
// also starts empty, but the corruption is reported so callers can log it;
// the next save overwrites the bad data.
func Open(path string) (*Store, error) {
	s := &Store{path: path, raw: []byte("[]")}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("memory: read %s: %w", path, err)
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsArray() {
		return s, fmt.Errorf("memory: %s is corrupt, starting empty", path)
	}
	s.raw = data
	return s, nil
}

// SetLogger attaches an event log.
func (s *Store) SetLogger(events *logpkg.EventLog) {
	s.events = events
}

// Save appends a record and persists immediately. The stored record, with
// its generated ID and timestamp, is returned.
func (s *Store) Save(username, post string, meta map[string]string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &Record{
		ID:        logpkg.GenerateEventID(),
		Username:  username,
		Post:      post,
		Meta:      meta,
		Timestamp: time.Now().UTC(),
	}
	if rec.Meta == nil {
		rec.Meta = map[string]string{}
	}

	updated, err := sjson.SetBytesOptions(s.raw, "-1", rec, &sjson.Options{Optimistic: true})
	if err != nil {
		return nil, fmt.Errorf("memory: append record: %w", err)
	}
	s.raw = updated

	if err := s.persist(); err != nil {
		// Persistence failure is logged but not fatal: the record stays
		// in memory and the next save retries the write.
		s.logEvent(logpkg.NewEvent("memory_persist_error", username).WithError(err.Error()))
	} else {
		s.logEvent(logpkg.NewEvent(logpkg.EventTypeMemorySaved, username).WithMsgID(rec.ID))
	}

	return rec, nil
}

// History returns records for username, oldest first. An empty username
// returns all records.
func (s *Store) History(username string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	gjson.ParseBytes(s.raw).ForEach(func(_, value gjson.Result) bool {
		if username != "" && value.Get("username").Str != username {
			return true
		}
		out = append(out, recordFromJSON(value))
		return true
	})
	return out
}

// Posts returns just the post bodies for username, oldest first.
func (s *Store) Posts(username string) []string {
	var out []string
	for _, rec := range s.History(username) {
		out = append(out, rec.Post)
	}
	return out
}

// Len returns the total record count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(gjson.GetBytes(s.raw, "#").Int())
}

// Usernames returns the distinct usernames present, in first-seen order.
func (s *Store) Usernames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]struct{}{}
	var out []string
	gjson.GetBytes(s.raw, "#.username").ForEach(func(_, value gjson.Result) bool {
		if _, ok := seen[value.Str]; !ok {
			seen[value.Str] = struct{}{}
			out = append(out, value.Str)
		}
		return true
	})
	return out
}

func recordFromJSON(value gjson.Result) Record {
	rec := Record{
		ID:       value.Get("id").Str,
		Username: value.Get("username").Str,
		Post:     value.Get("post").Str,
		Meta:     map[string]string{},
	}
	if ts := value.Get("timestamp").Str; ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.Timestamp = parsed
		}
	}
	value.Get("meta").ForEach(func(key, v gjson.Result) bool {
		rec.Meta[key.Str] = v.Str
		return true
	})
	return rec
}

// persist writes the full array atomically. Caller holds s.mu.
func (s *Store) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, s.raw, "", "  "); err != nil {
		return err
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, pretty.Bytes(), 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

func (s *Store) logEvent(evt logpkg.Event) {
	if s.events == nil {
		return
	}
	_ = s.events.Log(evt)
}
