package gobayeux

import "time"

// defaultBackoffIncrement and defaultMaxBackoff are the spec.md §4.2
// defaults, used whenever the engine isn't configured with overrides.
const (
	defaultBackoffIncrement = 1000 * time.Millisecond
	defaultMaxBackoff       = 30000 * time.Millisecond
)

// reconnectController computes backoff and houses the pure advice-to-state
// decisions the session engine's meta-reply handlers apply atomically
// inside a single StateMachine.Update closure (spec.md §4.5: "Encapsulated
// in the state-transition closures of §4.2 so that update is atomic with
// classification").
type reconnectController struct {
	backoffIncrement time.Duration
	maxBackoff       time.Duration
}

func newReconnectController(backoffIncrement, maxBackoff time.Duration) *reconnectController {
	if backoffIncrement <= 0 {
		backoffIncrement = defaultBackoffIncrement
	}
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &reconnectController{backoffIncrement: backoffIncrement, maxBackoff: maxBackoff}
}

// nextBackoff implements spec.md §4.2's backoff rule:
// nextBackoff = min(current + increment, maxBackoff).
func (r *reconnectController) nextBackoff(current time.Duration) time.Duration {
	next := current + r.backoffIncrement
	if next > r.maxBackoff {
		return r.maxBackoff
	}
	return next
}

// shouldEscalateToHandshake implements spec.md §4.2's "Unconnected-to-
// rehandshake escalation": while UNCONNECTED, if the time elapsed since the
// connection was lost plus the current backoff exceeds the advice-derived
// budget (timeout+interval+maxInterval) and the server gave a nonzero
// maxInterval, the controller should schedule a handshake instead of
// another connect attempt.
func (r *reconnectController) shouldEscalateToHandshake(unconnectSince time.Time, backoff time.Duration, advice *Advice, now time.Time) bool {
	if advice == nil || advice.MaxInterval <= 0 {
		return false
	}
	elapsed := now.Sub(unconnectSince)
	budget := advice.TimeoutAsDuration() + advice.IntervalAsDuration() + advice.MaxIntervalAsDuration()
	return elapsed+backoff > budget
}
