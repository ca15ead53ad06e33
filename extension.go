package gobayeux

// MessageExtender defines the interface that extensions are expected to
// implement. The session engine runs every registered extension's Outgoing
// hook over each message just before sending and its Incoming hook just
// after receiving, in registration order, restoring Message.ID afterward
// since extensions may rewrite every other field.
type MessageExtender interface {
	Outgoing(*Message)
	Incoming(*Message)
	Registered(extensionName string, engine *SessionEngine)
	Unregistered()
}
