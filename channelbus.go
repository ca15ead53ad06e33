package gobayeux

import "sync"

// ChannelListener is invoked when a message is dispatched on a channel (or
// glob pattern) it is registered against.
type ChannelListener func(message Message)

// subscription is one (channel, callback) registration. isListener
// distinguishes a permanent listener, which survives a handshake reset,
// from an application subscription, which is cleared whenever the engine
// clears subscriptions on (re)handshake.
type subscription struct {
	channel    Channel
	callback   ChannelListener
	isListener bool
}

// ChannelBus maps channel ids - including glob patterns - to ordered lists
// of subscriptions, and dispatches incoming messages to every matching
// entry in a deterministic order: exact matches, then the single-level
// wildcard at the immediate parent, then every ancestor's recursive
// wildcard, per spec.md §4.3.
type ChannelBus struct {
	mu            sync.RWMutex
	subsByChannel map[Channel][]*subscription
	onPanic       func(channel Channel, recovered interface{})
}

// NewChannelBus creates an empty ChannelBus. onPanic, if non-nil, is
// invoked whenever a listener panics during dispatch; dispatch continues
// with the remaining listeners regardless (spec.md §7 "A listener throwing
// does not abort iteration over remaining listeners").
func NewChannelBus(onPanic func(channel Channel, recovered interface{})) *ChannelBus {
	return &ChannelBus{
		subsByChannel: make(map[Channel][]*subscription),
		onPanic:       onPanic,
	}
}

// Subscribe registers callback against channel. isListener marks a
// permanent listener (see ClearSubscriptions). LocalCount, returned after
// registration, lets callers detect the 0->1 subscriber transition that
// must trigger a /meta/subscribe per spec.md §4.2.
func (b *ChannelBus) Subscribe(channel Channel, callback ChannelListener, isListener bool) (localCount int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subsByChannel[channel] = append(b.subsByChannel[channel], &subscription{
		channel:    channel,
		callback:   callback,
		isListener: isListener,
	})
	return len(b.subsByChannel[channel])
}

// Unsubscribe removes one non-listener subscription registered for
// channel. A ChannelListener's identity is not comparable in Go, so the bus
// removes by position: it drops the earliest-added non-listener entry and
// leaves every other entry in place. It returns the number of entries left
// for channel.
func (b *ChannelBus) Unsubscribe(channel Channel) (localCount int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subsByChannel[channel]
	for i, s := range subs {
		if !s.isListener {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subsByChannel, channel)
		return 0
	}
	b.subsByChannel[channel] = subs
	return len(subs)
}

// ClearSubscriptions removes every non-listener subscription across all
// channels, leaving permanent listeners untouched. Called on a requested
// handshake, per spec.md §3's Lifecycle invariant.
func (b *ChannelBus) ClearSubscriptions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for channel, subs := range b.subsByChannel {
		kept := subs[:0]
		for _, s := range subs {
			if s.isListener {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(b.subsByChannel, channel)
		} else {
			b.subsByChannel[channel] = kept
		}
	}
}

// LocalSubscriberCount reports how many subscriptions (listeners and
// application subscriptions alike) are registered for channel.
func (b *ChannelBus) LocalSubscriberCount(channel Channel) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subsByChannel[channel])
}

// Dispatch delivers message to every matching subscription, in the order
// spec.md §4.3 prescribes: exact listeners first, then the single-level
// glob at the immediate parent, then each ancestor's recursive glob.
// Listener panics are recovered and reported to onPanic; dispatch always
// continues to the remaining listeners.
func (b *ChannelBus) Dispatch(message Message) {
	patterns := append([]Channel{message.Channel}, message.Channel.dispatchPatterns()...)

	b.mu.RLock()
	var matched []*subscription
	for _, pattern := range patterns {
		matched = append(matched, b.subsByChannel[pattern]...)
	}
	b.mu.RUnlock()

	for _, s := range matched {
		b.invoke(s, message)
	}
}

// DispatchBatch delivers every message in messages, in order, preserving
// per-message listener isolation (spec.md §5's batch ordering guarantee:
// replies within a single transport batch are processed in wire order).
func (b *ChannelBus) DispatchBatch(messages []Message) {
	for _, m := range messages {
		b.Dispatch(m)
	}
}

func (b *ChannelBus) invoke(s *subscription, message Message) {
	defer func() {
		if r := recover(); r != nil && b.onPanic != nil {
			b.onPanic(s.channel, r)
		}
	}()
	s.callback(message)
}
