package gobayeux

import (
	"strconv"
	"strings"
)

// buildHandshakeMessage composes the /meta/handshake request body. template
// fields are merged in, except that any key in reservedHandshakeFields is
// silently dropped - the caller-supplied template must not be able to
// override id, channel, supportedConnectionTypes, version, or
// minimumVersion.
func buildHandshakeMessage(version, minimumVersion string, supported []string, template map[string]interface{}) (Message, error) {
	if len(supported) < 1 {
		return Message{}, ErrNoSupportedConnectionTypes
	}
	if len(version) == 0 {
		return Message{}, ErrNoVersion
	}
	if err := validateVersion(version); err != nil {
		return Message{}, err
	}

	m := Message{
		Channel:                  MetaHandshake,
		Version:                  version,
		SupportedConnectionTypes: supported,
	}
	if len(minimumVersion) > 0 {
		if err := validateVersion(minimumVersion); err != nil {
			return Message{}, err
		}
		m.MinimumVersion = minimumVersion
	}

	for k, v := range template {
		if _, reserved := reservedHandshakeFields[k]; reserved {
			continue
		}
		ext := m.GetExt(true)
		ext[k] = v
	}
	return m, nil
}

func validateVersion(version string) error {
	if len(version) < 1 {
		return BadConnectionVersionError{version}
	}
	pieces := strings.SplitN(version, ".", 2)
	if _, err := strconv.Atoi(pieces[0]); err != nil {
		return BadConnectionVersionError{version}
	}
	return nil
}

// validConnectionType reports whether connectionType names a connection
// type this module recognizes.
func validConnectionType(connectionType string) bool {
	switch connectionType {
	case ConnectionTypeCallbackPolling, ConnectionTypeLongPolling, ConnectionTypeIFrame, ConnectionTypeWebsocket:
		return true
	default:
		return false
	}
}

// buildConnectMessage composes a /meta/connect request. When immediateReply
// is true (the first connect after a handshake, or a connect retried while
// UNCONNECTED), advice.timeout is forced to 0 so the server answers
// immediately instead of holding the long-poll open.
func buildConnectMessage(clientID, connectionType string, immediateReply bool) (Message, error) {
	if clientID == "" {
		return Message{}, ErrMissingClientID
	}
	if connectionType == "" {
		return Message{}, ErrMissingConnectionType
	}
	if !validConnectionType(connectionType) {
		return Message{}, BadConnectionTypeError{connectionType}
	}

	m := Message{
		Channel:        MetaConnect,
		ClientID:       clientID,
		ConnectionType: connectionType,
	}
	if immediateReply {
		m.Advice = &Advice{Timeout: 0}
	}
	return m, nil
}

// buildDisconnectMessage composes a /meta/disconnect request.
func buildDisconnectMessage(clientID string) (Message, error) {
	if clientID == "" {
		return Message{}, ErrMissingClientID
	}
	return Message{Channel: MetaDisconnect, ClientID: clientID}, nil
}

// buildSubscribeMessage composes a /meta/subscribe request for a single
// channel.
func buildSubscribeMessage(clientID string, channel Channel) (Message, error) {
	if clientID == "" {
		return Message{}, ErrMissingClientID
	}
	if !channel.IsValid() {
		return Message{}, InvalidChannelError{channel}
	}
	return Message{
		Channel:      MetaSubscribe,
		ClientID:     clientID,
		Subscription: channel,
	}, nil
}

// buildUnsubscribeMessage composes a /meta/unsubscribe request for a single
// channel.
func buildUnsubscribeMessage(clientID string, channel Channel) (Message, error) {
	if clientID == "" {
		return Message{}, ErrMissingClientID
	}
	if !channel.IsValid() {
		return Message{}, InvalidChannelError{channel}
	}
	return Message{
		Channel:      MetaUnsubscribe,
		ClientID:     clientID,
		Subscription: channel,
	}, nil
}

// buildPublishMessage composes an application publish message.
func buildPublishMessage(clientID string, channel Channel, data []byte) (Message, error) {
	if channel.Type() == MetaChannel {
		return Message{}, ErrPublishOnMetaChannel
	}
	return Message{
		Channel:  channel,
		ClientID: clientID,
		Data:     data,
	}, nil
}
