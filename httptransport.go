package gobayeux

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// HTTPTransport is the reference long-polling Transport: every batch is one
// JSON POST to the server's URL, replies are decoded back into []Message in
// wire order, and cookies are carried across requests in a jar keyed by
// origin per spec.md §6 "Persisted state".
type HTTPTransport struct {
	serverAddress *url.URL
	client        *http.Client
	log           Logger
}

// NewHTTPTransport builds an HTTPTransport against serverAddress. If client
// is nil, a default *http.Client with conservative dial/handshake timeouts
// is constructed; if client.Jar is nil, a fresh cookiejar.Jar is attached so
// session cookies survive across requests.
func NewHTTPTransport(serverAddress string, client *http.Client, log Logger) (*HTTPTransport, error) {
	parsed, err := url.Parse(serverAddress)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = newNullLogger()
	}

	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
				TLSHandshakeTimeout:   5 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		}
	}
	if client.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, err
		}
		client.Jar = jar
	}

	return &HTTPTransport{serverAddress: parsed, client: client, log: log}, nil
}

// Name returns "long-polling".
func (t *HTTPTransport) Name() string {
	return ConnectionTypeLongPolling
}

// Accept always returns true: HTTP long-polling has no URL-scheme
// restriction, unlike WebSocket.
func (t *HTTPTransport) Accept(version, url string) bool {
	return true
}

// Init is a no-op; HTTP connections are established per-request.
func (t *HTTPTransport) Init(ctx context.Context) error {
	return nil
}

// Terminate is a no-op; there is no persistent connection to tear down.
func (t *HTTPTransport) Terminate(ctx context.Context) error {
	return nil
}

// Abort is a no-op for the same reason Terminate is.
func (t *HTTPTransport) Abort() {}

// Send POSTs messages as one JSON array and delivers the decoded reply
// array to listener, or reports a failure covering the whole batch if the
// round trip or decode fails.
func (t *HTTPTransport) Send(ctx context.Context, listener TransportListener, messages []Message) {
	replies, err := t.request(ctx, messages)
	if err != nil {
		t.log.WithError(err).Warn("long-polling request failed", "count", len(messages))
		listener.OnFailure(err, messages)
		return
	}
	listener.OnMessages(replies)
}

func (t *HTTPTransport) request(ctx context.Context, messages []Message) ([]Message, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(messages); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serverAddress.String(), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, BadResponseError{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}
	}

	var replies []Message
	if err := json.NewDecoder(resp.Body).Decode(&replies); err != nil {
		return nil, err
	}
	return replies, nil
}

// wsURL rewrites an http(s):// URL to its ws(s):// equivalent, used by
// WSTransport.Accept to decide whether a server URL is websocket-capable.
func wsURL(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.EqualFold(parsed.Scheme, "http"):
		parsed.Scheme = "ws"
	case strings.EqualFold(parsed.Scheme, "https"):
		parsed.Scheme = "wss"
	case strings.EqualFold(parsed.Scheme, "ws"), strings.EqualFold(parsed.Scheme, "wss"):
	default:
		return nil, ErrUnsupportedURLScheme
	}
	return parsed, nil
}
