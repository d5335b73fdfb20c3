// Package jobs tracks results of queries delegated to other frames.
package jobs

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var (
	ErrUnknownJob      = errors.New("unknown job")
	ErrAlreadyResolved = errors.New("job already resolved")
)

type State int

const (
	Unknown State = iota
	Pending
	Resolved
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	}
	return "unknown"
}

type Job struct {
	ID         int
	State      State
	Result     json.RawMessage
	Created    time.Time
	ResolvedAt time.Time
}

// Store hands out job indices and holds their results. Index 0 is never
// allocated, so a zero index always reads as Unknown.
type Store struct {
	mu   sync.Mutex
	jobs []Job
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{jobs: make([]Job, 1), now: time.Now}
}

// Allocate reserves the next index in the Pending state.
func (s *Store) Allocate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := len(s.jobs)
	s.jobs = append(s.jobs, Job{ID: id, State: Pending, Created: s.now()})
	return id
}

// Resolve records the result of a pending job. A job resolves once.
func (s *Store) Resolve(id int, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id <= 0 || id >= len(s.jobs) {
		return ErrUnknownJob
	}
	j := &s.jobs[id]
	if j.State == Resolved {
		return ErrAlreadyResolved
	}
	j.State = Resolved
	j.Result = append(json.RawMessage(nil), result...)
	j.ResolvedAt = s.now()
	return nil
}

// Lookup returns a copy of the job. Indices never allocated report Unknown.
func (s *Store) Lookup(id int) Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id <= 0 || id >= len(s.jobs) {
		return Job{ID: id, State: Unknown}
	}
	j := s.jobs[id]
	j.Result = append(json.RawMessage(nil), j.Result...)
	return j
}

// Len reports how many jobs were allocated.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs) - 1
}
