package gobayeux

import (
	"fmt"
)

type sentinel string

func (s sentinel) Error() string {
	return string(s)
}

const (
	// ErrClientNotConnected describes an operation that needs a live
	// clientId when none is available. No function in this package returns
	// it.
	ErrClientNotConnected = sentinel("client not connected to server")

	// ErrTooManyMessages describes a handshake response that contains more
	// than one /meta/handshake message. No function in this package returns
	// it.
	ErrTooManyMessages = sentinel("more messages than expected in handshake response")

	// ErrBadChannel describes a handshake response that never arrives on
	// /meta/handshake. No function in this package returns it.
	ErrBadChannel = sentinel("handshake responses must come back via the /meta/handshake channel")

	// ErrNoSupportedConnectionTypes is returned when building a handshake
	// request without any candidate transports.
	ErrNoSupportedConnectionTypes = sentinel("no supported connection types provided")

	// ErrNoVersion is returned when building a handshake request without a
	// protocol version.
	ErrNoVersion = sentinel("no version specified")

	// ErrMissingClientID is returned when building a request that requires
	// a clientId and none was provided.
	ErrMissingClientID = sentinel("missing clientID value")

	// ErrMissingConnectionType is returned when building a /meta/connect
	// request without a connection type.
	ErrMissingConnectionType = sentinel("missing connectionType value")

	// ErrPublishOnMetaChannel is returned by Publish when asked to publish
	// on a /meta/ channel; this is a programmer error and fails fast.
	ErrPublishOnMetaChannel = sentinel("cannot publish on a meta channel")

	// ErrUnbalancedEndBatch is returned by EndBatch when called without a
	// matching StartBatch; this is a programmer error and fails fast.
	ErrUnbalancedEndBatch = sentinel("endBatch called without a matching startBatch")

	// ErrEngineTerminated describes an operation attempted after the session
	// has reached DISCONNECTED via TERMINATING cleanup. No function in this
	// package returns it.
	ErrEngineTerminated = sentinel("session engine has terminated")

	// ErrNoTransportRegistered is returned by SessionEngine.Handshake when
	// negotiation yields no usable transport.
	ErrNoTransportRegistered = sentinel("no transport registered")

	// ErrUnsupportedURLScheme is returned when a server URL's scheme is
	// neither http(s) nor ws(s).
	ErrUnsupportedURLScheme = sentinel("unsupported URL scheme")
)

// HandshakeFailedError wraps the cause of a failed handshake. The session
// engine does not produce it: a handshake callback receives the transport's
// own error, or a NegotiationFailedError in the reply's Error field.
type HandshakeFailedError struct {
	Err error
}

func (e HandshakeFailedError) Error() string {
	return fmt.Sprintf("handshake was not successful: %s", e.Err)
}

func (e HandshakeFailedError) Unwrap() error {
	return e.Err
}

// ConnectionFailedError wraps a failed /meta/connect attempt.
type ConnectionFailedError struct {
	Err error
}

func (e ConnectionFailedError) Error() string {
	return fmt.Sprintf("connect request was not successful (%s)", e.Err)
}

func (e ConnectionFailedError) Unwrap() error {
	return e.Err
}

// SubscriptionFailedError is returned for any errors while subscribing.
type SubscriptionFailedError struct {
	Channels []Channel
	Err      error
}

func (e SubscriptionFailedError) Error() string {
	return fmt.Sprintf("unable to subscribe to channels %v: %s", e.Channels, e.Err)
}

func (e SubscriptionFailedError) Unwrap() error {
	return e.Err
}

// UnsubscribeFailedError is returned for any errors while unsubscribing.
type UnsubscribeFailedError struct {
	Channels []Channel
	Err      error
}

func (e UnsubscribeFailedError) Error() string {
	return fmt.Sprintf("unable to unsubscribe from channels %v: %s", e.Channels, e.Err)
}

func (e UnsubscribeFailedError) Unwrap() error {
	return e.Err
}

// DisconnectFailedError wraps the cause of a failed disconnect request. The
// session engine does not produce it.
type DisconnectFailedError struct {
	Err error
}

func (e DisconnectFailedError) Error() string {
	msg := "unable to disconnect from Bayeux server"
	if e.Err == nil {
		return msg
	}
	return fmt.Sprintf("%s (%s)", msg, e.Err)
}

func (e DisconnectFailedError) Unwrap() error {
	return e.Err
}

// AlreadyRegisteredError signifies that a MessageExtender is already
// registered with the engine.
type AlreadyRegisteredError struct {
	MessageExtender
}

func (e AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("extension already registered: %v", e.MessageExtender)
}

// BadResponseError is returned when an HTTP transport gets an unexpected
// status code from the server.
type BadResponseError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e BadResponseError) Error() string {
	return fmt.Sprintf(
		"expected 200 response from bayeux server, got %d with status %q and body %q",
		e.StatusCode, e.Status, e.Body,
	)
}

// BadConnectionTypeError is returned when a connection type isn't recognized.
type BadConnectionTypeError struct {
	ConnectionType string
}

func (e BadConnectionTypeError) Error() string {
	return fmt.Sprintf("%q is not a valid connection type", e.ConnectionType)
}

// BadConnectionVersionError is returned when a version string is invalid.
type BadConnectionVersionError struct {
	Version string
}

func (e BadConnectionVersionError) Error() string {
	return fmt.Sprintf("version %q is invalid for Bayeux protocol", e.Version)
}

// InvalidChannelError is the result of a failed channel-name validation.
type InvalidChannelError struct {
	Channel
}

func (e InvalidChannelError) Error() string {
	return fmt.Sprintf("channel %q appears to not be a valid channel", e.Channel)
}

// ErrEmptySlice is returned when an empty slice is unexpected.
type ErrEmptySlice string

func (e ErrEmptySlice) Error() string {
	return fmt.Sprintf("no %s provided", string(e))
}

// ErrMessageUnparsable is returned when a Message.Error string can't be
// split into its three colon-delimited parts.
type ErrMessageUnparsable string

func (e ErrMessageUnparsable) Error() string {
	return fmt.Sprintf("error message not parseable: %s", string(e))
}

// BadStateError is returned when a requested state transition is not legal.
type BadStateError struct {
	From stateTag
	To   stateTag
}

func (e BadStateError) Error() string {
	return fmt.Sprintf("illegal state transition %s -> %s", e.From, e.To)
}

// NegotiationFailedError is returned (as a synthesized /meta/handshake
// reply's Error field, per spec ErrorHandlingDesign) when no transport is
// common to the client's and server's supported lists.
type NegotiationFailedError struct {
	ClientTypes []string
	ServerTypes []string
}

func (e NegotiationFailedError) Error() string {
	return fmt.Sprintf("405:c%v,s%v:no transport", e.ClientTypes, e.ServerTypes)
}

// RemoteCallTimeoutError is synthesized when a RemoteCall's deadline elapses
// before a reply arrives.
type RemoteCallTimeoutError struct{}

func (e RemoteCallTimeoutError) Error() string {
	return "406::timeout"
}
