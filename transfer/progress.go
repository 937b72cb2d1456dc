package transfer

import (
	"sync"
	"time"
)

// State is the phase of a tracked transfer.
type State string

const (
	StateInitializing State = "initializing"
	StateUploading    State = "uploading"
	StateVerifying    State = "verifying"
	StateDownloading  State = "downloading"
	StateCompleted    State = "completed"
	StateError        State = "error"
)

// Terminal reports whether no further updates follow s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// Status is a snapshot of one transfer.
type Status struct {
	State        State
	Progress     int // percent, 0-100
	CurrentChunk int // 1-based; zero before the first chunk
	TotalChunks  int
	Attempt      int
	Message      string
	MetadataPath string // set on a completed upload
	Err          error  // set in StateError
	StartedAt    time.Time
	Elapsed      time.Duration
	Remaining    time.Duration // linear estimate from the average chunk time
}

// Registry tracks transfer status by id. A terminal entry is dropped the
// first time it is observed. The lock is never held across store calls.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Status
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Status), now: time.Now}
}

// Update replaces the status of id. StartedAt is kept from the first
// update; Elapsed and Remaining are derived from it.
func (r *Registry) Update(id string, s Status) {
	if r == nil || id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if prev, ok := r.entries[id]; ok && !prev.StartedAt.IsZero() {
		s.StartedAt = prev.StartedAt
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	s.Elapsed = now.Sub(s.StartedAt)
	s.Remaining = 0
	if s.CurrentChunk > 0 && s.TotalChunks > s.CurrentChunk && !s.State.Terminal() {
		perChunk := s.Elapsed / time.Duration(s.CurrentChunk)
		s.Remaining = perChunk * time.Duration(s.TotalChunks-s.CurrentChunk)
	}
	r.entries[id] = s
}

// Peek returns the status of id without consuming a terminal entry.
func (r *Registry) Peek(id string) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.entries[id]
	return s, ok
}

// Observe returns the status of id. A terminal entry is removed, so a
// second Observe reports ErrUnknownTransfer.
func (r *Registry) Observe(id string) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.entries[id]
	if !ok {
		return Status{}, ErrUnknownTransfer
	}
	if s.State.Terminal() {
		delete(r.entries, id)
	}
	return s, nil
}

// Len returns the number of tracked transfers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return done * 100 / total
}
