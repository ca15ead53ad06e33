package gobayeux

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// SessionEngine orchestrates a single Bayeux client session: the state
// machine, the negotiated transport, the outbound queue, the channel bus,
// the callback table and the registered extensions. Every exported method
// is safe to call concurrently; see spec.md §5's concurrency model.
type SessionEngine struct {
	url         string
	clientTypes []string

	registry *TransportRegistry
	sm       *StateMachine
	reconnect *reconnectController
	scheduler *Scheduler
	bus       *ChannelBus
	queue     *MessageQueue
	callbacks *callbackTable

	opts *Options
	log  Logger

	idCounter uint64

	extMu sync.Mutex
	exts  []namedExtension

	batchMu    sync.Mutex
	batchDepth int
}

type namedExtension struct {
	name string
	ext  MessageExtender
}

// NewSessionEngine creates a SessionEngine that will negotiate among the
// transports already registered on registry, in clientTypes preference
// order, against url. The engine starts DISCONNECTED; call Handshake to
// begin the session.
func NewSessionEngine(url string, clientTypes []string, registry *TransportRegistry, opts ...Option) *SessionEngine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	scheduler := o.Scheduler
	if scheduler == nil {
		scheduler = NewScheduler(true)
	}

	e := &SessionEngine{
		url:         url,
		clientTypes: clientTypes,
		registry:    registry,
		reconnect:   newReconnectController(o.BackoffIncrement, o.MaxBackoff),
		scheduler:   scheduler,
		queue:       NewMessageQueue(),
		callbacks:   newCallbackTable(),
		opts:        o,
		log:         o.Logger,
	}
	e.bus = NewChannelBus(func(channel Channel, recovered interface{}) {
		e.log.WithField("channel", channel).Error("channel listener panicked", "recovered", recovered)
	})
	e.sm = NewStateMachine(&sessionState{tag: stateDisconnected})
	return e
}

func (e *SessionEngine) nextID() string {
	return fmt.Sprintf("%d", atomic.AddUint64(&e.idCounter, 1))
}

// Current returns the session's current state (its tag and context), mostly
// useful for tests and diagnostics.
func (e *SessionEngine) Current() *sessionState {
	return e.sm.Current()
}

// WaitFor blocks the calling goroutine until the session's state tag
// equals or implies one of targets, or deadline elapses.
func (e *SessionEngine) WaitFor(deadline time.Duration, targets ...stateTag) bool {
	return e.sm.WaitFor(deadline, targets...)
}

// Handshake begins (or restarts, from DISCONNECTED) a Bayeux session.
// template fields are merged over any configured WithHandshakeTemplate,
// subject to the reserved-field protection in buildHandshakeMessage.
// callback, if non-nil, is invoked with the /meta/handshake reply.
func (e *SessionEngine) Handshake(template map[string]interface{}, callback MessageListener) error {
	merged := mergeExtFields(e.opts.HandshakeTemplate, template)

	var negotiationErr error
	err := e.sm.Update(func(old *sessionState) *sessionState {
		candidates := e.registry.Negotiate(e.clientTypes, nil, e.opts.ClientVersion, e.url)
		if len(candidates) == 0 {
			negotiationErr = ErrNoTransportRegistered
			return nil
		}
		transport := candidates[0]
		return &sessionState{
			tag:               stateHandshaking,
			transport:         transport,
			handshakeFields:   merged,
			handshakeCallback: callback,
			onEnter: func(prev stateTag) {
				e.bus.ClearSubscriptions()
			},
			onRun: func() {
				e.armHandshake(transport, merged, callback, 0)
			},
		}
	})
	if negotiationErr != nil {
		return negotiationErr
	}
	return err
}

// armHandshake sends (or, after delay, schedules sending) a /meta/handshake
// through transport. delay is nonzero only for a rehandshake attempt that
// is backing off.
func (e *SessionEngine) armHandshake(transport Transport, fields map[string]interface{}, callback MessageListener, delay time.Duration) {
	send := func() {
		msg, err := buildHandshakeMessage(e.opts.ClientVersion, e.opts.MinimumVersion, e.clientTypes, fields)
		if err != nil {
			e.log.WithError(err).Error("failed to build handshake message")
			return
		}
		msg.ID = e.nextID()
		e.callbacks.Register(msg.ID, callback)
		e.sendOne(transport, msg)
	}
	// Always hand off through the scheduler, even for delay==0: calling
	// send directly here would run synchronously inside whatever
	// StateMachine.Update's onRun is currently unwinding, and since a
	// successful handshake's onRun arms the next action the same way,
	// a zero backoff would recurse rather than iterate.
	e.scheduler.Schedule(delay, send)
}

// Disconnect requests a clean session end. If the session is currently
// CONNECTING or CONNECTED, it moves to DISCONNECTING and a /meta/disconnect
// is sent; the reply drives the final TERMINATING transition. A call while
// already DISCONNECTING, TERMINATING or DISCONNECTED changes nothing and
// sends nothing; from any other state the session terminates immediately.
func (e *SessionEngine) Disconnect(callback MessageListener) error {
	return e.sm.Update(func(old *sessionState) *sessionState {
		switch old.tag {
		case stateDisconnecting, stateTerminating, stateDisconnected:
			// Already disconnecting, tearing down, or fully torn down; a
			// repeated call is a no-op rather than an illegal self- or
			// backward transition (DISCONNECTING -> DISCONNECTING,
			// TERMINATING -> TERMINATING, DISCONNECTED -> TERMINATING are
			// all absent from legalTransitions).
			return nil
		case stateConnecting, stateConnected:
			transport := old.transport
			clientID := old.clientID
			return &sessionState{
				tag:             stateDisconnecting,
				transport:       transport,
				clientID:        clientID,
				handshakeFields: old.handshakeFields,
				onRun: func() {
					msg, err := buildDisconnectMessage(clientID)
					if err != nil {
						e.log.WithError(err).Error("failed to build disconnect message")
						return
					}
					msg.ID = e.nextID()
					e.callbacks.Register(msg.ID, callback)
					e.sendOne(transport, msg)
				},
			}
		default:
			return e.terminatingState(old, false)
		}
	})
}

// Abort immediately transitions to TERMINATING without attempting a clean
// /meta/disconnect; the transport is torn down via Abort rather than
// Terminate.
func (e *SessionEngine) Abort() {
	_ = e.sm.Update(func(old *sessionState) *sessionState {
		return e.terminatingState(old, true)
	})
}

func (e *SessionEngine) terminatingState(old *sessionState, abort bool) *sessionState {
	transport := old.transport
	return &sessionState{
		tag:       stateTerminating,
		transport: transport,
		clientID:  old.clientID,
		abort:     abort,
		onRun: func() {
			if e.scheduler.Owned() {
				e.scheduler.Shutdown()
			}
			ctx := context.Background()
			if transport != nil {
				if abort {
					transport.Abort()
				} else {
					_ = transport.Terminate(ctx)
				}
			}
			_ = e.sm.Update(func(cur *sessionState) *sessionState {
				if cur.tag != stateTerminating {
					return nil
				}
				return &sessionState{tag: stateDisconnected}
			})
		},
	}
}

// Publish sends data on channel. Meta channels are rejected. While the
// session isn't ready to send (not yet handshaken, or inside a batch),
// the message is enqueued and sent with the next flush.
func (e *SessionEngine) Publish(channel Channel, data []byte, callback MessageListener) error {
	state := e.sm.Current()
	msg, err := buildPublishMessage(state.clientID, channel, data)
	if err != nil {
		return err
	}
	msg.ID = e.nextID()
	e.callbacks.Register(msg.ID, callback)
	e.enqueueOrSend(state, msg)
	return nil
}

func (e *SessionEngine) enqueueOrSend(state *sessionState, msg Message) {
	e.batchMu.Lock()
	batching := e.batchDepth > 0
	e.batchMu.Unlock()

	if batching || state.transport == nil || !state.hasClientID() {
		e.queue.Enqueue(msg)
		return
	}
	e.sendOne(state.transport, msg)
}

// Subscribe registers callback against channel, sending a /meta/subscribe
// only if this is the channel's first local subscriber.
func (e *SessionEngine) Subscribe(channel Channel, callback ChannelListener) error {
	return e.subscribe(channel, callback, false)
}

// AddListener registers a permanent listener against channel. Unlike
// Subscribe, listeners survive ChannelBus.ClearSubscriptions on (re)handshake
// and are never removed by Unsubscribe.
func (e *SessionEngine) AddListener(channel Channel, callback ChannelListener) {
	_ = e.subscribe(channel, callback, true)
}

func (e *SessionEngine) subscribe(channel Channel, callback ChannelListener, isListener bool) error {
	count := e.bus.Subscribe(channel, callback, isListener)
	if count != 1 {
		return nil
	}
	state := e.sm.Current()
	msg, err := buildSubscribeMessage(state.clientID, channel)
	if err != nil {
		return SubscriptionFailedError{Channels: []Channel{channel}, Err: err}
	}
	msg.ID = e.nextID()
	e.enqueueOrSend(state, msg)
	return nil
}

// Unsubscribe removes one application subscription from channel, sending a
// /meta/unsubscribe only when the channel's last local subscriber is removed.
func (e *SessionEngine) Unsubscribe(channel Channel) error {
	count := e.bus.Unsubscribe(channel)
	if count != 0 {
		return nil
	}
	state := e.sm.Current()
	msg, err := buildUnsubscribeMessage(state.clientID, channel)
	if err != nil {
		return UnsubscribeFailedError{Channels: []Channel{channel}, Err: err}
	}
	msg.ID = e.nextID()
	e.enqueueOrSend(state, msg)
	return nil
}

// RemoteCall sends data to /service/<target> and arms a timeout that, if it
// fires before a reply is correlated, synthesizes a failure reply with
// error "406::timeout" and invokes callback itself.
func (e *SessionEngine) RemoteCall(target string, data []byte, timeout time.Duration, callback MessageListener) error {
	state := e.sm.Current()
	channel := Channel("/service/" + target)
	msg, err := buildPublishMessage(state.clientID, channel, data)
	if err != nil {
		return err
	}
	msg.ID = e.nextID()

	id := msg.ID
	e.callbacks.Register(id, callback)
	if timeout > 0 {
		// A dedicated timer, not e.scheduler: that scheduler holds at most
		// one pending action for the main handshake/connect loop, and a
		// concurrent RemoteCall timeout sharing it would get silently
		// cancelled the moment the loop re-arms its next connect.
		time.AfterFunc(timeout, func() {
			timeoutMsg := Message{ID: id, Channel: channel, Successful: false, Error: RemoteCallTimeoutError{}.Error()}
			e.callbacks.PopAndInvoke(timeoutMsg, RemoteCallTimeoutError{})
		})
	}
	e.enqueueOrSend(state, msg)
	return nil
}

// StartBatch begins (or nests into) a batch. No message enqueued via
// Publish/Subscribe/Unsubscribe is sent to the transport until the matching
// EndBatch at depth 0.
func (e *SessionEngine) StartBatch() {
	e.batchMu.Lock()
	e.batchDepth++
	e.batchMu.Unlock()
}

// EndBatch closes one level of batching. At depth 0 it flushes every queued
// message to the transport in one send. Returns ErrUnbalancedEndBatch if
// called without a matching StartBatch.
func (e *SessionEngine) EndBatch() error {
	e.batchMu.Lock()
	if e.batchDepth == 0 {
		e.batchMu.Unlock()
		return ErrUnbalancedEndBatch
	}
	e.batchDepth--
	flush := e.batchDepth == 0
	e.batchMu.Unlock()

	if flush {
		e.flushQueue()
	}
	return nil
}

func (e *SessionEngine) flushQueue() {
	messages := e.queue.Drain()
	if len(messages) == 0 {
		return
	}
	state := e.sm.Current()
	if state.transport == nil {
		for _, m := range messages {
			e.queue.Enqueue(m)
		}
		return
	}
	e.send(state.transport, messages)
}

// RegisterExtension adds ext, named name, to the end of the engine's
// extension chain and calls its Registered hook.
func (e *SessionEngine) RegisterExtension(name string, ext MessageExtender) error {
	e.extMu.Lock()
	for _, existing := range e.exts {
		if existing.name == name {
			e.extMu.Unlock()
			return AlreadyRegisteredError{MessageExtender: ext}
		}
	}
	e.exts = append(e.exts, namedExtension{name: name, ext: ext})
	e.extMu.Unlock()
	ext.Registered(name, e)
	return nil
}

// UnregisterExtension removes the extension previously registered as name.
func (e *SessionEngine) UnregisterExtension(name string) {
	e.extMu.Lock()
	var removed MessageExtender
	kept := e.exts[:0]
	for _, existing := range e.exts {
		if existing.name == name {
			removed = existing.ext
			continue
		}
		kept = append(kept, existing)
	}
	e.exts = kept
	e.extMu.Unlock()
	if removed != nil {
		removed.Unregistered()
	}
}

func (e *SessionEngine) runOutgoing(msg *Message) {
	id := msg.ID
	e.extMu.Lock()
	exts := make([]namedExtension, len(e.exts))
	copy(exts, e.exts)
	e.extMu.Unlock()
	for _, ne := range exts {
		ne.ext.Outgoing(msg)
	}
	msg.ID = id
}

func (e *SessionEngine) runIncoming(msg *Message) {
	id := msg.ID
	e.extMu.Lock()
	exts := make([]namedExtension, len(e.exts))
	copy(exts, e.exts)
	e.extMu.Unlock()
	for _, ne := range exts {
		ne.ext.Incoming(msg)
	}
	msg.ID = id
}

func (e *SessionEngine) sendOne(transport Transport, msg Message) {
	e.send(transport, []Message{msg})
}

func (e *SessionEngine) send(transport Transport, messages []Message) {
	for i := range messages {
		e.runOutgoing(&messages[i])
	}
	transport.Send(context.Background(), e, messages)
}

// OnMessages implements TransportListener. It is invoked by a transport
// with every reply message delivered for a batch, in wire order.
func (e *SessionEngine) OnMessages(messages []Message) {
	for i := range messages {
		e.runIncoming(&messages[i])
		e.classify(messages[i])
	}
}

// OnFailure implements TransportListener. It synthesizes an unsuccessful
// reply for every message in the failed batch and classifies each as if
// the server itself had replied unsuccessfully, per spec.md §7's "Transport
// I/O failure".
func (e *SessionEngine) OnFailure(err error, messages []Message) {
	state := e.sm.Current()
	transportName := ""
	if state.transport != nil {
		transportName = state.transport.Name()
	}
	for _, m := range messages {
		reply := Message{
			ID:         m.ID,
			Channel:    m.Channel,
			ClientID:   m.ClientID,
			Successful: false,
			Failure:    &TransportFailure{Exception: err, ConnectionType: transportName},
			Advice:     &Advice{Reconnect: ReconnectRetry},
		}
		e.classify(reply)
	}
}

// classify dispatches a single reply message according to its channel, per
// spec.md §4.2's "Meta-reply handling".
func (e *SessionEngine) classify(msg Message) {
	switch msg.Channel {
	case MetaHandshake:
		e.handleHandshakeReply(msg)
	case MetaConnect:
		e.handleConnectReply(msg)
	case MetaDisconnect:
		e.handleDisconnectReply(msg)
	case MetaSubscribe, MetaUnsubscribe:
		e.callbacks.PopAndInvoke(msg, failureErr(msg))
	default:
		e.callbacks.PopAndInvoke(msg, failureErr(msg))
		e.bus.Dispatch(msg)
	}
}

// failureErr extracts the transport-reported error from msg, if any.
func failureErr(msg Message) error {
	if msg.Failure == nil {
		return nil
	}
	return msg.Failure.Exception
}

func (e *SessionEngine) handleHandshakeReply(msg Message) {
	deliverMsg := msg
	deliverErr := failureErr(msg)
	defer func() {
		e.callbacks.PopAndInvoke(deliverMsg, deliverErr)
	}()

	if !msg.Successful {
		_ = e.sm.Update(func(old *sessionState) *sessionState {
			backoff := e.reconnect.nextBackoff(old.backoff)
			next := &sessionState{
				tag:               stateRehandshaking,
				transport:         old.transport,
				clientID:          old.clientID,
				backoff:           backoff,
				handshakeFields:   old.handshakeFields,
				handshakeCallback: old.handshakeCallback,
			}
			transport, fields, callback := next.transport, next.handshakeFields, next.handshakeCallback
			prevTag := old.tag
			next.onEnter = func(prev stateTag) {
				if prevTag != stateHandshaking {
					e.bus.ClearSubscriptions()
				}
			}
			next.onRun = func() {
				e.armHandshake(transport, fields, callback, backoff)
			}
			if msg.Advice.MustNotRetryOrHandshake() {
				return e.terminatingState(old, false)
			}
			return next
		})
		return
	}

	serverTypes := msg.SupportedConnectionTypes
	candidates := e.registry.Negotiate(e.clientTypes, serverTypes, e.opts.ClientVersion, e.url)
	if len(candidates) == 0 {
		negotiationErr := NegotiationFailedError{ClientTypes: e.clientTypes, ServerTypes: serverTypes}
		deliverMsg.Successful = false
		deliverMsg.Error = negotiationErr.Error()
		deliverErr = negotiationErr
		_ = e.sm.Update(func(old *sessionState) *sessionState {
			return e.terminatingState(old, false)
		})
		return
	}
	transport := candidates[0]
	clientID := msg.ClientID

	_ = e.sm.Update(func(old *sessionState) *sessionState {
		if msg.Advice.MustNotRetryOrHandshake() {
			return e.terminatingState(old, false)
		}

		previousTransport := old.transport
		next := &sessionState{
			tag:             stateConnecting,
			transport:       transport,
			clientID:        clientID,
			handshakeFields: old.handshakeFields,
			advice:          msg.Advice,
		}
		next.onEnter = func(prev stateTag) {
			if previousTransport != nil && previousTransport != transport {
				_ = previousTransport.Terminate(context.Background())
			}
			if previousTransport != transport {
				_ = transport.Init(context.Background())
			}
		}
		next.onRun = func() {
			e.flushQueue()
			e.armConnect(next, 0)
		}
		return next
	})
}

func (e *SessionEngine) handleConnectReply(msg Message) {
	defer e.callbacks.PopAndInvoke(msg, failureErr(msg))

	if msg.Successful {
		_ = e.sm.Update(func(old *sessionState) *sessionState {
			if msg.Advice.MustNotRetryOrHandshake() {
				return &sessionState{
					tag:       stateDisconnecting,
					transport: old.transport,
					clientID:  old.clientID,
					onRun: func() {
						// The server already asked us to stop; a clean
						// disconnect reply may or may not still arrive.
						_ = old.transport.Terminate(context.Background())
					},
				}
			}
			next := &sessionState{
				tag:       stateConnected,
				transport: old.transport,
				clientID:  old.clientID,
				advice:    msg.Advice,
				backoff:   0,
			}
			next.onRun = func() {
				e.armConnect(next, next.advice.IntervalAsDuration())
			}
			return next
		})
		return
	}

	_ = e.sm.Update(func(old *sessionState) *sessionState {
		switch {
		case msg.Advice.ShouldHandshake():
			next := &sessionState{
				tag:               stateRehandshaking,
				transport:         old.transport,
				clientID:          old.clientID,
				handshakeFields:   old.handshakeFields,
				handshakeCallback: old.handshakeCallback,
			}
			transport, fields, callback := next.transport, next.handshakeFields, next.handshakeCallback
			prevTag := old.tag
			next.onEnter = func(prev stateTag) {
				if prevTag != stateHandshaking {
					e.bus.ClearSubscriptions()
				}
			}
			next.onRun = func() {
				e.armHandshake(transport, fields, callback, 0)
			}
			return next
		case msg.Advice.MustNotRetryOrHandshake():
			return e.terminatingState(old, false)
		default:
			next := &sessionState{
				tag:            stateUnconnected,
				transport:      old.transport,
				clientID:       old.clientID,
				advice:         msg.Advice,
				backoff:        e.reconnect.nextBackoff(old.backoff),
				unconnectSince: time.Now(),
			}
			if old.tag == stateUnconnected {
				next.unconnectSince = old.unconnectSince
			}
			next.onRun = func() {
				e.armUnconnectedRetry(next)
			}
			return next
		}
	})
}

func (e *SessionEngine) handleDisconnectReply(msg Message) {
	_ = e.sm.Update(func(old *sessionState) *sessionState {
		return e.terminatingState(old, false)
	})
	e.callbacks.PopAndInvoke(msg, failureErr(msg))
}

// armConnect sends (after delay, if any) the connect request appropriate
// for state.tag: immediate (advice.timeout=0) for CONNECTING and
// UNCONNECTED, normal (long-polling) otherwise.
func (e *SessionEngine) armConnect(state *sessionState, delay time.Duration) {
	immediate := state.tag == stateConnecting || state.tag == stateUnconnected
	send := func() {
		msg, err := buildConnectMessage(state.clientID, state.transport.Name(), immediate)
		if err != nil {
			e.log.WithError(err).Error("failed to build connect message")
			return
		}
		msg.ID = e.nextID()
		e.sendOne(state.transport, msg)
	}
	// Always hand off through the scheduler (see armHandshake): a CONNECTED
	// session with advice.interval==0 re-arms itself from inside the very
	// onRun a send's reply triggers, so a synchronous call here would
	// recurse for as long as the session stays connected instead of
	// looping via independent timer firings.
	e.scheduler.Schedule(delay, send)
}

// armUnconnectedRetry implements spec.md §4.2's unconnected-to-rehandshake
// escalation check, then schedules either a connect retry or a rehandshake.
func (e *SessionEngine) armUnconnectedRetry(state *sessionState) {
	if e.reconnect.shouldEscalateToHandshake(state.unconnectSince, state.backoff, state.advice, time.Now()) {
		e.scheduler.Schedule(state.backoff, func() {
			_ = e.sm.Update(func(old *sessionState) *sessionState {
				if old.tag != stateUnconnected {
					return nil
				}
				next := &sessionState{
					tag:               stateRehandshaking,
					transport:         old.transport,
					clientID:          old.clientID,
					handshakeFields:   old.handshakeFields,
					handshakeCallback: old.handshakeCallback,
				}
				transport, fields, callback := next.transport, next.handshakeFields, next.handshakeCallback
				prevTag := old.tag
				next.onEnter = func(prev stateTag) {
					if prevTag != stateHandshaking {
						e.bus.ClearSubscriptions()
					}
				}
				next.onRun = func() {
					e.armHandshake(transport, fields, callback, 0)
				}
				return next
			})
		})
		return
	}
	e.armConnect(state, state.backoff)
}

// mergeExtFields merges override over base, favoring override's values on
// key collision. Either argument may be nil.
func mergeExtFields(base, override map[string]interface{}) map[string]interface{} {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	merged := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
