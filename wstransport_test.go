package gobayeux

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWSTransport_Name(t *testing.T) {
	tr := NewWSTransport("ws://example.com", nil)
	if got := tr.Name(); got != ConnectionTypeWebsocket {
		t.Errorf("Name() = %q, want %q", got, ConnectionTypeWebsocket)
	}
}

func TestWSTransport_Accept(t *testing.T) {
	tr := NewWSTransport("https://example.com", nil)
	if !tr.Accept("1.0", "https://example.com") {
		t.Error("expected Accept to resolve an https URL to wss")
	}
	if tr.Accept("1.0", "ftp://example.com") {
		t.Error("expected Accept to reject an unsupported scheme")
	}
}

func TestWSTransport_SendAndReceive(t *testing.T) {
	upgrader := websocket.Upgrader{}
	echoed := make(chan []Message, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("server failed to upgrade: %q", err)
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msgs []Message
		_ = json.Unmarshal(data, &msgs)
		echoed <- msgs

		reply, _ := json.Marshal([]Message{{Channel: MetaConnect, Successful: true, ClientID: "abc123"}})
		_ = conn.WriteMessage(websocket.TextMessage, reply)
	}))
	defer server.Close()

	wsAddr := "ws" + strings.TrimPrefix(server.URL, "http")
	tr := NewWSTransport(wsAddr, nil)
	if err := tr.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error initializing transport: %q", err)
	}
	defer tr.Abort()

	done := make(chan struct{})
	listener := &recordingListener{}
	wrapped := &onMessagesListener{recordingListener: listener, done: done}

	tr.Send(context.Background(), wrapped, []Message{{Channel: MetaConnect, ClientID: "abc123"}})

	select {
	case msgs := <-echoed:
		if len(msgs) != 1 || msgs[0].Channel != MetaConnect {
			t.Fatalf("unexpected echoed request: %+v", msgs)
		}
	case <-time.After(time.Second):
		t.Fatal("server never received the outbound frame")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener never received the inbound frame")
	}

	if len(listener.messages) != 1 || listener.messages[0].ClientID != "abc123" {
		t.Fatalf("unexpected reply delivered to listener: %+v", listener.messages)
	}
}

// onMessagesListener wraps recordingListener and closes done as soon as
// OnMessages fires, since the read loop delivers asynchronously.
type onMessagesListener struct {
	*recordingListener
	done chan struct{}
}

func (l *onMessagesListener) OnMessages(messages []Message) {
	l.recordingListener.OnMessages(messages)
	close(l.done)
}
