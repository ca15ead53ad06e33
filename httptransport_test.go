package gobayeux

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type recordingListener struct {
	messages []Message
	err      error
	failed   []Message
}

func (l *recordingListener) OnMessages(messages []Message) { l.messages = messages }
func (l *recordingListener) OnFailure(err error, messages []Message) {
	l.err = err
	l.failed = messages
}

func TestHTTPTransport_Name(t *testing.T) {
	tr, err := NewHTTPTransport("http://example.com", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %q", err)
	}
	if got := tr.Name(); got != ConnectionTypeLongPolling {
		t.Errorf("Name() = %q, want %q", got, ConnectionTypeLongPolling)
	}
}

func TestHTTPTransport_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msgs []Message
		if err := json.NewDecoder(r.Body).Decode(&msgs); err != nil {
			t.Fatalf("server failed to decode request: %q", err)
		}
		if len(msgs) != 1 || msgs[0].Channel != MetaHandshake {
			t.Fatalf("unexpected request body: %+v", msgs)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]Message{
			{Channel: MetaHandshake, Successful: true, ClientID: "abc123"},
		})
	}))
	defer server.Close()

	tr, err := NewHTTPTransport(server.URL, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %q", err)
	}

	listener := &recordingListener{}
	tr.Send(context.Background(), listener, []Message{{Channel: MetaHandshake}})

	if listener.err != nil {
		t.Fatalf("unexpected failure: %q", listener.err)
	}
	if len(listener.messages) != 1 || listener.messages[0].ClientID != "abc123" {
		t.Fatalf("unexpected reply: %+v", listener.messages)
	}
}

func TestHTTPTransport_SendNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	tr, err := NewHTTPTransport(server.URL, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %q", err)
	}

	listener := &recordingListener{}
	tr.Send(context.Background(), listener, []Message{{Channel: MetaHandshake}})

	if listener.err == nil {
		t.Fatal("expected a failure for a non-200 response")
	}
	badResp, ok := listener.err.(BadResponseError)
	if !ok {
		t.Fatalf("expected a BadResponseError, got %T", listener.err)
	}
	if badResp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", badResp.StatusCode)
	}
}

func TestWsURL(t *testing.T) {
	testCases := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"http rewrites to ws", "http://example.com/cometd", "ws://example.com/cometd", false},
		{"https rewrites to wss", "https://example.com/cometd", "wss://example.com/cometd", false},
		{"ws passes through", "ws://example.com/cometd", "ws://example.com/cometd", false},
		{"unsupported scheme errors", "ftp://example.com/cometd", "", true},
	}
	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			got, err := wsURL(tc.raw)
			if tc.wantErr {
				if err != ErrUnsupportedURLScheme {
					t.Fatalf("expected ErrUnsupportedURLScheme, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %q", err)
			}
			if got.String() != tc.want {
				t.Errorf("wsURL(%q) = %q, want %q", tc.raw, got.String(), tc.want)
			}
		})
	}
}
