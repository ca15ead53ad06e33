package gobayeux

import (
	"sync"
	"sync/atomic"
	"time"
)

// stateTag identifies one of the eight legal session states.
//
// See also: https://docs.cometd.org/current/reference/#_client_state_table
type stateTag int

const (
	stateDisconnected stateTag = iota
	stateHandshaking
	stateRehandshaking
	stateConnecting
	stateConnected
	stateUnconnected
	stateDisconnecting
	stateTerminating
)

var stateTagNames = map[stateTag]string{
	stateDisconnected:  "DISCONNECTED",
	stateHandshaking:   "HANDSHAKING",
	stateRehandshaking: "REHANDSHAKING",
	stateConnecting:    "CONNECTING",
	stateConnected:     "CONNECTED",
	stateUnconnected:   "UNCONNECTED",
	stateDisconnecting: "DISCONNECTING",
	stateTerminating:   "TERMINATING",
}

func (t stateTag) String() string {
	if name, ok := stateTagNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// legalTransitions enumerates, for every state, the set of states it may
// transition to. This is the graph from spec.md §4.1.
var legalTransitions = map[stateTag]map[stateTag]bool{
	stateDisconnected: set(stateHandshaking),
	stateHandshaking:  set(stateConnecting, stateRehandshaking, stateTerminating),
	stateRehandshaking: set(stateConnecting, stateRehandshaking, stateTerminating),
	stateConnecting: set(stateConnected, stateUnconnected, stateRehandshaking, stateDisconnecting, stateTerminating),
	stateConnected: set(stateConnected, stateUnconnected, stateRehandshaking, stateDisconnecting, stateTerminating),
	stateUnconnected:   set(stateConnected, stateUnconnected, stateRehandshaking, stateTerminating),
	stateDisconnecting: set(stateTerminating),
	stateTerminating:   set(stateDisconnected),
}

func set(tags ...stateTag) map[stateTag]bool {
	m := make(map[stateTag]bool, len(tags))
	for _, t := range tags {
		m[t] = true
	}
	return m
}

// canTransitionTo reports whether from -> to is a legal transition.
func (t stateTag) canTransitionTo(to stateTag) bool {
	return legalTransitions[t][to]
}

// impliedBy enumerates, for each tag, the additional tags a waitFor caller
// should consider matched when the state machine holds that tag. See
// spec.md §4.1 "Implied-state relation".
var impliedBy = map[stateTag][]stateTag{
	stateConnecting:    {stateHandshaking},
	stateConnected:      {stateHandshaking, stateConnecting},
	stateTerminating:    {stateDisconnecting},
	stateDisconnected:   {stateDisconnecting, stateTerminating},
}

// implies reports whether this tag satisfies a waitFor target of want,
// either because it equals want or because it's defined to imply it.
func (t stateTag) implies(want stateTag) bool {
	if t == want {
		return true
	}
	for _, implied := range impliedBy[t] {
		if implied == want {
			return true
		}
	}
	return false
}

// sessionState is the context carried by the state machine's current tag:
// the active transport, clientId (once handshaken), most recent advice,
// computed backoff, any preserved handshake template/callback, and (only
// meaningful while UNCONNECTED) the time the connection was lost.
//
// Per spec.md's Design Notes, this is a tagged union realized in Go as a
// single struct whose fields are meaningful only for certain tags, rather
// than a family of types - onEnter/onRun carry the per-transition behavior
// that a sum type would otherwise dispatch via virtual calls.
type sessionState struct {
	tag       stateTag
	transport Transport

	clientID string
	advice   *Advice
	backoff  time.Duration

	handshakeFields   map[string]interface{}
	handshakeCallback MessageListener

	unconnectSince time.Time

	abort bool

	// onEnter runs once, after a successful transition that changed the
	// tag, with the previous tag. It never runs for a same-tag transition
	// (e.g. CONNECTED -> CONNECTED with refreshed advice).
	onEnter func(prev stateTag)
	// onRun runs once after every successful transition, whether or not
	// the tag changed.
	onRun func()
}

// hasClientID reports whether this state's tag is one of the four states in
// which a clientId must be present (spec.md §8 invariant 3).
func (s *sessionState) hasClientID() bool {
	switch s.tag {
	case stateConnecting, stateConnected, stateUnconnected, stateDisconnecting:
		return true
	default:
		return false
	}
}

// StateMachine executes atomic transitions over the fixed graph of session
// states. Updates are applied via compare-and-swap and retried on
// concurrent contention; waiters block on waitFor until the tag implies one
// of their targets, observed only when no update is in flight.
type StateMachine struct {
	current          atomic.Pointer[sessionState]
	updatersInFlight int32

	mu   sync.Mutex
	cond *sync.Cond
}

// NewStateMachine creates a StateMachine starting in the given state, which
// is typically the DISCONNECTED state with no transport attached yet.
func NewStateMachine(initial *sessionState) *StateMachine {
	sm := &StateMachine{}
	sm.cond = sync.NewCond(&sm.mu)
	sm.current.Store(initial)
	return sm
}

// Current returns the current state. Callers must not mutate it.
func (sm *StateMachine) Current() *sessionState {
	return sm.current.Load()
}

// Update applies fn to the current state in a compare-and-swap loop. fn
// returns the proposed next state, or nil to signal "no change" (in which
// case Update is a no-op and returns nil). If the proposed transition is
// illegal, Update returns a BadStateError without retrying. On concurrent
// contention (another goroutine swapped the state first), fn is invoked
// again against the freshly observed state.
func (sm *StateMachine) Update(fn func(old *sessionState) *sessionState) error {
	atomic.AddInt32(&sm.updatersInFlight, 1)
	defer func() {
		atomic.AddInt32(&sm.updatersInFlight, -1)
		sm.mu.Lock()
		sm.cond.Broadcast()
		sm.mu.Unlock()
	}()

	for {
		old := sm.current.Load()
		candidate := fn(old)
		if candidate == nil {
			return nil
		}
		if !old.tag.canTransitionTo(candidate.tag) {
			return BadStateError{From: old.tag, To: candidate.tag}
		}
		if sm.current.CompareAndSwap(old, candidate) {
			if candidate.tag != old.tag && candidate.onEnter != nil {
				candidate.onEnter(old.tag)
			}
			if candidate.onRun != nil {
				candidate.onRun()
			}
			return nil
		}
		// Lost the race to another updater; recompute against the new
		// current state.
	}
}

// WaitFor blocks until the state machine's tag equals or implies one of
// targets, or deadline elapses, whichever comes first. It returns true in
// the former case, false in the latter.
func (sm *StateMachine) WaitFor(deadline time.Duration, targets ...stateTag) bool {
	deadlineAt := time.Now().Add(deadline)

	sm.mu.Lock()
	defer sm.mu.Unlock()

	for {
		if atomic.LoadInt32(&sm.updatersInFlight) == 0 {
			tag := sm.current.Load().tag
			for _, want := range targets {
				if tag.implies(want) {
					return true
				}
			}
		}

		remaining := time.Until(deadlineAt)
		if remaining <= 0 {
			return false
		}

		timer := time.AfterFunc(remaining, func() {
			sm.mu.Lock()
			sm.cond.Broadcast()
			sm.mu.Unlock()
		})
		sm.cond.Wait()
		timer.Stop()
	}
}
