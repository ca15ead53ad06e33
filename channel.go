package gobayeux

import "strings"

// Channel represents a Bayeux channel, a string that looks like a URL path
// such as "/foo/bar", "/meta/connect", or "/service/chat".
//
// See also: https://docs.cometd.org/current/reference/#_concepts_channels
type Channel string

const (
	// MetaHandshake is the channel for the first message a client sends.
	MetaHandshake Channel = "/meta/handshake"
	// MetaConnect is used for connect messages after a successful handshake.
	MetaConnect Channel = "/meta/connect"
	// MetaDisconnect is used for disconnect messages.
	MetaDisconnect Channel = "/meta/disconnect"
	// MetaSubscribe is used by a client to subscribe to channels.
	MetaSubscribe Channel = "/meta/subscribe"
	// MetaUnsubscribe is used by a client to unsubscribe from channels.
	MetaUnsubscribe Channel = "/meta/unsubscribe"

	emptyChannel Channel = ""
)

// ChannelType distinguishes the three classes of channel.
type ChannelType string

const (
	// MetaChannel represents channels under /meta/.
	MetaChannel ChannelType = "meta"
	// ServiceChannel represents channels under /service/.
	ServiceChannel ChannelType = "service"
	// BroadcastChannel represents all other (application) channels.
	BroadcastChannel ChannelType = "broadcast"
)

const (
	metaPrefix    string = "/meta/"
	servicePrefix string = "/service/"
)

// Type classifies this channel.
func (c Channel) Type() ChannelType {
	s := string(c)
	switch {
	case strings.HasPrefix(s, metaPrefix):
		return MetaChannel
	case strings.HasPrefix(s, servicePrefix):
		return ServiceChannel
	default:
		return BroadcastChannel
	}
}

// HasWildcard indicates whether the channel ends with * or **.
//
// See also: https://docs.cometd.org/current/reference/#_concepts_channels_wild
func (c Channel) HasWildcard() bool {
	return strings.HasSuffix(string(c), "*")
}

// IsValid does its best to check the validity of a channel name: it must
// start with "/" and any "*" must only appear as a trailing wildcard
// segment.
func (c Channel) IsValid() bool {
	s := string(c)
	if !strings.HasPrefix(s, "/") {
		return false
	}
	if strings.Contains(s, "*") && !c.HasWildcard() {
		return false
	}
	return true
}

// segments splits a channel into its path segments, dropping the leading
// empty element produced by the leading "/".
func (c Channel) segments() []string {
	s := string(c)
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		return nil
	}
	return strings.Split(s, "/")
}

// Match checks if this channel (potentially a glob pattern) matches other.
//
// See also: https://docs.cometd.org/current/reference/#_concepts_channels_wild
func (c Channel) Match(other Channel) bool {
	return c.MatchString(string(other))
}

// MatchString checks if this channel (potentially a glob pattern) matches
// the literal channel string other.
func (c Channel) MatchString(other string) bool {
	if c.HasWildcard() {
		return c.matchAgainstWildcards(other)
	}
	return string(c) == other
}

func (c Channel) matchAgainstWildcards(other string) bool {
	self := string(c)
	index := strings.LastIndexByte(self, '/')
	if index == -1 {
		return false
	}
	prefix := self[:index]
	if !strings.HasPrefix(other, prefix) {
		return false
	}

	wildcard := self[index+1:]
	rest := other[index+1:]

	switch wildcard {
	case "*":
		return len(rest) > 0 && strings.Count(rest, "/") == 0
	case "**":
		return len(rest) > 0
	default:
		return false
	}
}

// dispatchPatterns returns, in the order ChannelBus must notify them, every
// glob pattern that could have a listener interested in a message delivered
// on this (concrete, non-glob) channel.
//
// Per spec: for a path with segments [s1, ..., sn], for each i from n down
// to 1: at i == n, the single-level pattern prefix(i-1)+"/*" is included
// (single-level glob matches only at the immediate parent); for every i, the
// recursive pattern prefix(i-1)+"/**" is included.
func (c Channel) dispatchPatterns() []Channel {
	segs := c.segments()
	n := len(segs)
	if n == 0 {
		return nil
	}

	patterns := make([]Channel, 0, 2*n)
	for i := n; i >= 1; i-- {
		prefix := "/" + strings.Join(segs[:i-1], "/")
		if i == n {
			patterns = append(patterns, Channel(prefix+"/*"))
		}
		patterns = append(patterns, Channel(prefix+"/**"))
	}
	return patterns
}
