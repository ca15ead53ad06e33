package gobayeux

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	timestampFmt = "2006-01-02T15:04:05.00"
)

// Message represents a single Bayeux message, either outbound to a server
// or inbound from one.
//
// See also: https://docs.cometd.org/current/reference/#_bayeux_message_fields
type Message struct {
	// ID is the client-assigned identifier of this message. It is
	// monotonically assigned by the session engine and must be unique
	// within a session; extensions may rewrite every other field but the
	// engine restores ID after running extensions.
	ID string `json:"id,omitempty"`
	// Channel is the channel this message was sent on or is destined for.
	//
	// See also: https://docs.cometd.org/current/reference/#_channel
	Channel Channel `json:"channel"`
	// ClientID identifies a particular session via a session id token.
	// It is attached only after a successful handshake.
	//
	// See also: https://docs.cometd.org/current/reference/#_bayeux_clientid
	ClientID string `json:"clientId,omitempty"`
	// Data contains opaque event data.
	Data json.RawMessage `json:"data,omitempty"`
	// Version indicates the protocol version. Required on /meta/handshake.
	Version string `json:"version,omitempty"`
	// MinimumVersion indicates the oldest protocol version the sender can
	// handle. Optional, only meaningful on /meta/handshake.
	MinimumVersion string `json:"minimumVersion,omitempty"`
	// SupportedConnectionTypes lists transport names, in preference order,
	// on /meta/handshake requests and responses.
	SupportedConnectionTypes []string `json:"supportedConnectionTypes,omitempty"`
	// ConnectionType names the transport in use. Required on /meta/connect
	// requests.
	ConnectionType string `json:"connectionType,omitempty"`
	// Timestamp is an optional ISO-8601-ish timestamp.
	Timestamp string `json:"timestamp,omitempty"`
	// Successful indicates whether a request succeeded. Required on replies
	// to /meta/handshake, /meta/connect, /meta/subscribe, /meta/unsubscribe,
	// /meta/disconnect, and publishes.
	Successful bool `json:"successful,omitempty"`
	// AuthSuccessful is occasionally included on handshake responses.
	AuthSuccessful bool `json:"authSuccessful,omitempty"`
	// Subscription names the channel(s) a /meta/subscribe or
	// /meta/unsubscribe request/response concerns.
	Subscription Channel `json:"subscription,omitempty"`
	// Advice carries server guidance about reconnection behavior.
	//
	// See also: https://docs.cometd.org/current/reference/#_bayeux_advice
	Advice *Advice `json:"advice,omitempty"`
	// Error is an optional diagnostic string of the form
	// "code:args:message" present on unsuccessful replies.
	Error string `json:"error,omitempty"`
	// Failure is populated by a transport (not the server) when it could
	// not deliver or could not obtain a reply for this message. It never
	// appears on the wire.
	Failure *TransportFailure `json:"-"`
	// Ext carries extension-negotiated metadata.
	//
	// See also: https://docs.cometd.org/current/reference/#_bayeux_ext
	Ext map[string]interface{} `json:"ext,omitempty"`
}

// TransportFailure describes a transport-level (as opposed to protocol-level)
// delivery failure, synthesized by a Transport when it cannot complete a
// send or cannot obtain a reply for an in-flight message.
type TransportFailure struct {
	Exception      error
	ConnectionType string
}

// TimestampAsTime returns the Timestamp field parsed as a time.Time.
func (m *Message) TimestampAsTime() (time.Time, error) {
	return time.Parse(timestampFmt, m.Timestamp)
}

// ParseError returns the parsed form of the Error field.
//
// See also: https://docs.cometd.org/current/reference/#_error
func (m *Message) ParseError() (MessageError, error) {
	pieces := strings.SplitN(m.Error, ":", 3)
	if len(pieces) != 3 {
		return MessageError{}, ErrMessageUnparsable(m.Error)
	}
	errorCode, err := strconv.Atoi(pieces[0])
	if err != nil {
		return MessageError{}, err
	}
	return MessageError{
		errorCode,
		strings.Split(pieces[1], ","),
		pieces[2],
	}, nil
}

// GetExt retrieves the Ext map, instantiating it first if create is true and
// it is currently nil.
func (m *Message) GetExt(create bool) map[string]interface{} {
	if m.Ext == nil && create {
		m.Ext = make(map[string]interface{})
	}
	return m.Ext
}

// Advice represents server-supplied guidance steering client reconnection
// behavior.
//
// See also: https://docs.cometd.org/current/reference/#_bayeux_advice
type Advice struct {
	// Reconnect is one of "retry", "handshake", or "none".
	Reconnect string `json:"reconnect,omitempty"`
	// Timeout is how long, in ms, the server will hold a /meta/connect
	// request open. It is always encoded, so an advice object carrying
	// timeout 0 keeps that field on the wire.
	Timeout int `json:"timeout"`
	// Interval is how long, in ms, the client should wait before its next
	// /meta/connect.
	Interval int `json:"interval,omitempty"`
	// MaxInterval bounds how long a client may go without a successful
	// connect before it must re-handshake rather than keep retrying.
	MaxInterval int `json:"maxInterval,omitempty"`
	// MultipleClients indicates the server detected more than one client
	// instance sharing this session.
	MultipleClients bool `json:"multiple-clients,omitempty"`
	// Hosts lists alternate servers to try on a handshake-advice.
	Hosts []string `json:"hosts,omitempty"`
}

// MustNotRetryOrHandshake indicates the server forbids further reconnection
// attempts of any kind.
func (a *Advice) MustNotRetryOrHandshake() bool {
	return a != nil && a.Reconnect == ReconnectNone
}

// ShouldRetry indicates the advice asks for a plain retry.
func (a *Advice) ShouldRetry() bool {
	return a != nil && a.Reconnect == ReconnectRetry
}

// ShouldHandshake indicates the advice asks for a fresh handshake.
func (a *Advice) ShouldHandshake() bool {
	return a != nil && a.Reconnect == ReconnectHandshake
}

// TimeoutAsDuration returns Timeout as a time.Duration.
func (a *Advice) TimeoutAsDuration() time.Duration {
	if a == nil {
		return 0
	}
	return time.Duration(a.Timeout) * time.Millisecond
}

// IntervalAsDuration returns Interval as a time.Duration.
func (a *Advice) IntervalAsDuration() time.Duration {
	if a == nil {
		return 0
	}
	return time.Duration(a.Interval) * time.Millisecond
}

// MaxIntervalAsDuration returns MaxInterval as a time.Duration.
func (a *Advice) MaxIntervalAsDuration() time.Duration {
	if a == nil {
		return 0
	}
	return time.Duration(a.MaxInterval) * time.Millisecond
}

const (
	// ReconnectRetry asks the client to retry a /meta/connect.
	ReconnectRetry string = "retry"
	// ReconnectHandshake asks the client to re-handshake.
	ReconnectHandshake string = "handshake"
	// ReconnectNone forbids any further reconnection attempt.
	ReconnectNone string = "none"
)

// MessageError is the parsed form of a Message's Error field.
//
// See also: https://docs.cometd.org/current/reference/#_error
type MessageError struct {
	ErrorCode    int
	ErrorArgs    []string
	ErrorMessage string
}

func (e MessageError) String() string {
	return fmt.Sprintf("%d:%s:%s", e.ErrorCode, strings.Join(e.ErrorArgs, ","), e.ErrorMessage)
}

const (
	// ConnectionTypeLongPolling is the name of the HTTP long-polling transport.
	ConnectionTypeLongPolling string = "long-polling"
	// ConnectionTypeCallbackPolling is the name of the callback-polling transport.
	ConnectionTypeCallbackPolling = "callback-polling"
	// ConnectionTypeIFrame is the name of the iframe transport.
	ConnectionTypeIFrame = "iframe"
	// ConnectionTypeWebsocket is the name of the WebSocket transport.
	ConnectionTypeWebsocket = "websocket"
)

// reservedHandshakeFields are the Message fields a caller-supplied handshake
// template must never overwrite; see SessionEngine.Handshake.
var reservedHandshakeFields = map[string]struct{}{
	"id":                       {},
	"channel":                  {},
	"supportedConnectionTypes": {},
	"version":                  {},
	"minimumVersion":           {},
}
