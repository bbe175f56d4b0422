package timers

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// compactEvery bounds how much completed-work bookkeeping the scheduler
// accumulates before sweeping it.
const compactEvery = 16

// Scheduler runs fire-and-forget delayed one-shots. CancelAll drops all
// pending work; completed entries are swept periodically.
type Scheduler struct {
	clk clockwork.Clock
	log zerolog.Logger

	mu      sync.Mutex
	seq     uint64
	entries map[uint64]*schedEntry
}

type schedEntry struct {
	cancel context.CancelFunc
	done   bool
}

func NewScheduler(clk clockwork.Clock, log zerolog.Logger) *Scheduler {
	return &Scheduler{clk: clk, log: log, entries: make(map[uint64]*schedEntry)}
}

// Schedule runs fn once after delay unless cancelled first.
func (s *Scheduler) Schedule(ctx context.Context, delay time.Duration, fn func()) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.seq++
	id := s.seq
	entry := &schedEntry{cancel: cancel}
	s.entries[id] = entry
	if s.seq%compactEvery == 0 {
		s.compactLocked()
	}
	s.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Interface("panic", r).Msg("scheduled command panicked")
			}
			s.mu.Lock()
			entry.done = true
			s.mu.Unlock()
			cancel()
		}()
		select {
		case <-ctx.Done():
		case <-s.clk.After(delay):
			if ctx.Err() == nil {
				fn()
			}
		}
	}()
}

// CancelAll cancels every pending one-shot.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		e.cancel()
		delete(s.entries, id)
	}
}

// Pending returns the count of not-yet-completed entries.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if !e.done {
			n++
		}
	}
	return n
}

func (s *Scheduler) compactLocked() {
	for id, e := range s.entries {
		if e.done {
			delete(s.entries, id)
		}
	}
}
