package gobayeux

import "context"

// TransportListener receives the outcome of a batch a Transport was asked
// to send: either the reply messages (in wire order) or a failure covering
// the whole batch.
type TransportListener interface {
	// OnMessages is called with every reply message delivered for a batch,
	// in the order the wire delivered them.
	OnMessages(messages []Message)
	// OnFailure is called when the transport could not complete the send
	// or could not obtain a reply at all; messages is the batch that
	// failed.
	OnFailure(err error, messages []Message)
}

// MessageListener is a one-shot callback correlated with a single
// request's reply, as opposed to TransportListener's whole-batch view.
type MessageListener func(message Message, err error)

// Transport is the capability a SessionEngine dispatches batches through.
// Transports are not inherited from - they are interchanged under the
// state machine's transport slot, per spec.md's "Transport as capability"
// design note.
type Transport interface {
	// Name returns this transport's connection-type name, e.g.
	// "long-polling" or "websocket".
	Name() string
	// Accept reports whether this transport is usable for the given
	// protocol version and server URL - a WebSocket transport might
	// decline a "http://" URL lacking upgrade support, for instance.
	Accept(version, url string) bool
	// Init prepares the transport for use (e.g. dialing a WebSocket).
	Init(ctx context.Context) error
	// Terminate cleanly shuts the transport down.
	Terminate(ctx context.Context) error
	// Abort shuts the transport down without attempting a clean handshake
	// with the server - used when the session is aborted rather than
	// disconnected.
	Abort()
	// Send dispatches a batch of messages and delivers the outcome to
	// listener, synchronously or asynchronously depending on the
	// transport.
	Send(ctx context.Context, listener TransportListener, messages []Message)
}

// TransportRegistry registers named transports and negotiates which one to
// use given a client preference order and a server-advertised list.
type TransportRegistry struct {
	byName map[string]Transport
	order  []string
}

// NewTransportRegistry creates an empty TransportRegistry.
func NewTransportRegistry() *TransportRegistry {
	return &TransportRegistry{byName: make(map[string]Transport)}
}

// Register adds t to the registry. Registration order is preserved and
// reported by KnownNames; Negotiate does not use it and follows only the
// clientOrder it is given.
func (r *TransportRegistry) Register(t Transport) {
	name := t.Name()
	if _, exists := r.byName[name]; !exists {
		r.order = append(r.order, name)
	}
	r.byName[name] = t
}

// Get returns the registered transport named name, if any.
func (r *TransportRegistry) Get(name string) (Transport, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// KnownNames returns every registered transport's name, in registration
// order.
func (r *TransportRegistry) KnownNames() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Negotiate returns, in clientOrder's order, every transport whose name
// both appears in serverSupported and whose Accept(version, url) predicate
// passes. An empty serverSupported applies no server filter, so only
// registration and Accept decide. The head of the returned slice is the
// transport the session engine should use.
func (r *TransportRegistry) Negotiate(clientOrder []string, serverSupported []string, version, url string) []Transport {
	supported := make(map[string]bool, len(serverSupported))
	for _, name := range serverSupported {
		supported[name] = true
	}

	negotiated := make([]Transport, 0, len(clientOrder))
	for _, name := range clientOrder {
		t, ok := r.byName[name]
		if !ok {
			continue
		}
		if !t.Accept(version, url) {
			continue
		}
		if len(serverSupported) > 0 && !supported[name] {
			continue
		}
		negotiated = append(negotiated, t)
	}
	return negotiated
}
