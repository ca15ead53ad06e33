package gobayeux

import (
	"sync"
	"time"
)

// scheduledHandle is returned by Scheduler.Schedule and may be used to
// cancel the pending action before it fires.
type scheduledHandle struct {
	timer *time.Timer
}

// Cancel prevents a pending action from firing. It is safe to call more
// than once and safe to call after the action has already fired.
func (h *scheduledHandle) Cancel() {
	if h == nil || h.timer == nil {
		return
	}
	h.timer.Stop()
}

// Scheduler arms single-shot deferred actions. The session engine uses it
// to arm the next handshake or connect attempt after interval+backoff
// milliseconds have elapsed; per spec.md §4.4, at most one such action is
// ever pending at a time - Schedule cancels whatever it previously armed
// before arming the new one.
type Scheduler struct {
	mu      sync.Mutex
	pending *scheduledHandle
	owned   bool
}

// NewScheduler creates a Scheduler. owned should be true when the caller
// (the session engine) created the scheduler itself rather than receiving
// one via WithScheduler - an owned scheduler is shut down automatically
// when the session reaches TERMINATING cleanup.
func NewScheduler(owned bool) *Scheduler {
	return &Scheduler{owned: owned}
}

// Owned reports whether the session engine created this scheduler itself
// and is therefore responsible for shutting it down.
func (s *Scheduler) Owned() bool {
	return s.owned
}

// Schedule cancels any action previously armed by this Scheduler and arms
// action to run after delay elapses, on its own goroutine.
func (s *Scheduler) Schedule(delay time.Duration, action func()) *scheduledHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		s.pending.Cancel()
	}

	handle := &scheduledHandle{}
	handle.timer = time.AfterFunc(delay, action)
	s.pending = handle
	return handle
}

// Shutdown cancels any pending action. After Shutdown, the Scheduler may
// still be used to arm further actions; callers that want a hard stop
// should simply drop their reference.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.pending.Cancel()
		s.pending = nil
	}
}
