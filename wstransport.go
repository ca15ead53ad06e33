package gobayeux

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSTransport is the reference WebSocket Transport. Unlike HTTPTransport it
// holds one long-lived connection: Init dials it and starts a read loop,
// Send writes one JSON-encoded batch per frame, and every inbound frame -
// itself a JSON array of messages - is delivered to whichever listener the
// most recent Send call supplied, per spec.md §4.7.
type WSTransport struct {
	rawURL string
	dialer *websocket.Dialer
	log    Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	listenerMu sync.Mutex
	listener   TransportListener
}

// NewWSTransport builds a WSTransport against serverAddress, which may be
// given as an http(s):// or ws(s):// URL; Accept and Init both resolve it
// to its ws(s):// form.
func NewWSTransport(serverAddress string, log Logger) *WSTransport {
	if log == nil {
		log = newNullLogger()
	}
	return &WSTransport{
		rawURL: serverAddress,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log,
	}
}

// Name returns "websocket".
func (t *WSTransport) Name() string {
	return ConnectionTypeWebsocket
}

// Accept reports whether url can be resolved to a ws(s):// scheme.
func (t *WSTransport) Accept(version, rawURL string) bool {
	_, err := wsURL(rawURL)
	return err == nil
}

// Init dials the WebSocket connection and starts the read loop that
// delivers inbound frames to whichever listener the most recent Send call
// supplied.
func (t *WSTransport) Init(ctx context.Context) error {
	target, err := wsURL(t.rawURL)
	if err != nil {
		return err
	}
	conn, _, err := t.dialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return err
	}
	t.conn = conn
	go t.readLoop(conn)
	return nil
}

// Terminate closes the connection with a normal-closure handshake frame.
func (t *WSTransport) Terminate(ctx context.Context) error {
	if t.conn == nil {
		return nil
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return t.conn.Close()
}

// Abort closes the underlying connection without a close handshake.
func (t *WSTransport) Abort() {
	if t.conn != nil {
		_ = t.conn.Close()
	}
}

// Send writes messages as a single JSON array frame. listener becomes the
// target of subsequent inbound frames as well as of this call's own
// failure, if the write itself fails.
func (t *WSTransport) Send(ctx context.Context, listener TransportListener, messages []Message) {
	t.listenerMu.Lock()
	t.listener = listener
	t.listenerMu.Unlock()

	payload, err := json.Marshal(messages)
	if err != nil {
		listener.OnFailure(err, messages)
		return
	}

	t.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	}
	err = t.conn.WriteMessage(websocket.TextMessage, payload)
	t.writeMu.Unlock()

	if err != nil {
		listener.OnFailure(err, messages)
	}
}

func (t *WSTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.deliverFailure(err)
			return
		}
		var messages []Message
		if err := json.Unmarshal(data, &messages); err != nil {
			t.log.WithError(err).Warn("received malformed websocket frame")
			continue
		}
		t.deliverMessages(messages)
	}
}

func (t *WSTransport) deliverMessages(messages []Message) {
	t.listenerMu.Lock()
	listener := t.listener
	t.listenerMu.Unlock()
	if listener != nil {
		listener.OnMessages(messages)
	}
}

func (t *WSTransport) deliverFailure(err error) {
	t.listenerMu.Lock()
	listener := t.listener
	t.listenerMu.Unlock()
	if listener != nil {
		listener.OnFailure(err, nil)
	}
}
