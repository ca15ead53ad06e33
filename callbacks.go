package gobayeux

import "sync"

// callbackTable maps an outbound message's id to the one-shot callback that
// should run when its reply is correlated. A callback is removed before it
// is invoked, so a callback that re-enters the engine (e.g. by publishing)
// never observes its own registration.
type callbackTable struct {
	mu    sync.Mutex
	byID  map[string]MessageListener
}

func newCallbackTable() *callbackTable {
	return &callbackTable{byID: make(map[string]MessageListener)}
}

// Register associates id with cb. A nil cb is a no-op convenience for
// callers that didn't supply a callback.
func (t *callbackTable) Register(id string, cb MessageListener) {
	if cb == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[id] = cb
}

// PopAndInvoke removes the callback registered for message.ID, if any, and
// invokes it with message and err. It reports whether a callback was found.
func (t *callbackTable) PopAndInvoke(message Message, err error) bool {
	t.mu.Lock()
	cb, ok := t.byID[message.ID]
	if ok {
		delete(t.byID, message.ID)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	cb(message, err)
	return true
}

// Len reports how many callbacks are currently outstanding.
func (t *callbackTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
