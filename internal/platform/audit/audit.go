package audit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Source names where an entry was produced.
const (
	SourceConsole = "console"
	SourceCLI     = "cli"
)

// Entry is one mutating call made against the backend on behalf of a user.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	Time       time.Time `json:"time"`
	UserID     string    `json:"user_id,omitempty"`
	Role       string    `json:"role,omitempty"`
	Source     string    `json:"source"`
	Method     string    `json:"method"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resource_id,omitempty"`
	Action     string    `json:"action,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	UserID   string
	Resource string
	Outcome  Outcome
	Since    time.Time
	Limit    int
}

const (
	defaultLimit = 100
	maxLimit     = 1000
)

func (f *Filter) normalize() {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
}

func (f Filter) match(e Entry) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Resource != "" && !strings.EqualFold(e.Resource, f.Resource) {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	return true
}

// Store persists entries. List returns newest first.
type Store interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, f Filter) ([]Entry, error)
}

// Stamp fills in the id and time of an entry that has none.
func Stamp(e *Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeSuccess
		if e.Error != "" {
			e.Outcome = OutcomeFailure
		}
	}
}

// MemoryStore keeps the most recent entries in process memory. It is the
// default when no database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryStore{capacity: capacity}
}

func (s *MemoryStore) Record(_ context.Context, e Entry) error {
	Stamp(&e)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if over := len(s.entries) - s.capacity; over > 0 {
		s.entries = append([]Entry(nil), s.entries[over:]...)
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Entry, error) {
	f.normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, min(f.Limit, len(s.entries)))
	for i := len(s.entries) - 1; i >= 0 && len(out) < f.Limit; i-- {
		if f.match(s.entries[i]) {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}
