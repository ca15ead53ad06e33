package gobayeux

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

var (
	fakeServerChars    = []rune("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmonpqrstuvwxyz0123456789")
	fakeServerNumChars = len(fakeServerChars)

	fakeServerDefaultAdvice = &Advice{
		Reconnect: ReconnectRetry,
		Timeout:   int(30 * time.Second / time.Millisecond),
		Interval:  0,
	}
)

// fakeServerLogger is the subset of testing.TB this file needs.
type fakeServerLogger interface {
	Log(args ...any)
	Logf(format string, args ...any)
}

// fakeServer is a fake Bayeux server: an http.RoundTripper that understands
// /meta/handshake, /meta/connect, /meta/subscribe, /meta/unsubscribe, and
// /meta/disconnect well enough to drive a SessionEngine through a full
// lifecycle in tests.
//
// This is an in-package copy of internal/bayeuxtest.Server: that package
// imports this one (to build Message/Channel/Advice values), so session_test.go
// cannot import it without creating an import cycle in the internal test
// binary. Keep the two in sync if either changes.
type fakeServer struct {
	log fakeServerLogger

	mu      sync.Mutex
	running bool
	subs    map[string][]Channel

	handshakeError           bool
	advice                   *Advice
	supportedConnectionTypes []string
}

// newFakeServer creates a fakeServer. It must be started with Start before
// its RoundTrip method will answer requests.
func newFakeServer(logger fakeServerLogger, opts ...fakeServerOpt) *fakeServer {
	s := &fakeServer{
		log:    logger,
		subs:   make(map[string][]Channel),
		advice: fakeServerDefaultAdvice,
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// fakeServerOpt configures a fakeServer at construction time.
type fakeServerOpt interface {
	apply(s *fakeServer)
}

type fakeServerOptFn func(s *fakeServer)

func (f fakeServerOptFn) apply(s *fakeServer) { f(s) }

// withFakeHandshakeError makes every /meta/handshake request fail with a 400.
func withFakeHandshakeError(handshakeError bool) fakeServerOpt {
	return fakeServerOptFn(func(s *fakeServer) {
		s.handshakeError = handshakeError
	})
}

// withFakeAdvice overrides the advice attached to every successful
// handshake/connect reply.
func withFakeAdvice(advice *Advice) fakeServerOpt {
	return fakeServerOptFn(func(s *fakeServer) {
		s.advice = advice
	})
}

// withFakeSupportedConnectionTypes makes the handshake reply advertise types
// instead of echoing back the client's own list, so a test can force a
// negotiation failure (an empty client/server transport intersection).
func withFakeSupportedConnectionTypes(types []string) fakeServerOpt {
	return fakeServerOptFn(func(s *fakeServer) {
		s.supportedConnectionTypes = types
	})
}

// Start makes the server begin answering RoundTrip calls.
func (s *fakeServer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
}

// Stop makes RoundTrip fail every call, simulating the server going away.
func (s *fakeServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// RoundTrip implements http.RoundTripper.
func (s *fakeServer) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, errors.New("fakeserver: server not running")
	}

	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("issue reading body: %w", err)
	}

	var msgs []Message
	if err := json.Unmarshal(body, &msgs); err != nil {
		return &http.Response{
			StatusCode: http.StatusUnprocessableEntity,
			Status:     http.StatusText(http.StatusUnprocessableEntity),
			Body:       io.NopCloser(bytes.NewReader(nil)),
		}, nil
	}

	var replies []Message
	statusCode := http.StatusOK

	for _, msg := range msgs {
		switch msg.Channel {
		case MetaHandshake:
			if s.handshakeError {
				return &http.Response{
					StatusCode: http.StatusBadRequest,
					Status:     http.StatusText(http.StatusBadRequest),
					Body:       io.NopCloser(bytes.NewReader([]byte(`{"error":"Invalid request"}`))),
				}, nil
			}
			serverTypes := msg.SupportedConnectionTypes
			if s.supportedConnectionTypes != nil {
				serverTypes = s.supportedConnectionTypes
			}
			replies = append(replies, Message{
				Channel:                  MetaHandshake,
				Version:                  msg.Version,
				SupportedConnectionTypes: serverTypes,
				ClientID:                 fakeServerGenerateID(10),
				Successful:               true,
				AuthSuccessful:           true,
				Advice:                   s.advice,
				ID:                       msg.ID,
			})
		case MetaConnect:
			for _, ch := range s.subs[msg.ClientID] {
				replies = append(replies, Message{
					Channel:    ch,
					ID:         fakeServerGenerateID(5),
					ClientID:   msg.ClientID,
					Data:       json.RawMessage(`{}`),
					Successful: true,
				})
			}
			replies = append(replies, Message{
				Channel:    MetaConnect,
				Successful: true,
				ClientID:   msg.ClientID,
				Advice:     s.advice,
				ID:         msg.ID,
			})
		case MetaSubscribe:
			if _, ok := s.subs[msg.ClientID]; !ok {
				s.subs[msg.ClientID] = nil
			}
			reply := Message{
				Channel:      MetaSubscribe,
				ID:           msg.ID,
				ClientID:     msg.ClientID,
				Successful:   true,
				Subscription: msg.Subscription,
			}
			for _, ch := range s.subs[msg.ClientID] {
				if ch == msg.Subscription {
					statusCode = http.StatusBadRequest
					reply.Successful = false
					reply.Error = "403::already subscribed"
				}
			}
			s.subs[msg.ClientID] = append(s.subs[msg.ClientID], msg.Subscription)
			replies = append(replies, reply)
		case MetaUnsubscribe:
			reply := Message{
				Channel:      MetaUnsubscribe,
				ID:           msg.ID,
				ClientID:     msg.ClientID,
				Successful:   true,
				Subscription: msg.Subscription,
			}
			found := false
			var kept []Channel
			for _, ch := range s.subs[msg.ClientID] {
				if ch == msg.Subscription {
					found = true
					continue
				}
				kept = append(kept, ch)
			}
			s.subs[msg.ClientID] = kept
			if !found {
				statusCode = http.StatusBadRequest
				reply.Successful = false
				reply.Error = "403::not subscribed"
			}
			replies = append(replies, reply)
		case MetaDisconnect:
			delete(s.subs, msg.ClientID)
			replies = append(replies, Message{
				Channel:    MetaDisconnect,
				ID:         msg.ID,
				ClientID:   msg.ClientID,
				Successful: true,
			})
		default:
			if s.log != nil {
				s.log.Logf("fakeserver: unhandled message on %s", msg.Channel)
			}
		}
	}

	reply, err := json.Marshal(replies)
	if err != nil {
		return nil, fmt.Errorf("issue marshaling body: %w", err)
	}

	return &http.Response{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Body:       io.NopCloser(bytes.NewReader(reply)),
		Header:     make(http.Header),
	}, nil
}

func fakeServerGenerateID(length int) string {
	ret := make([]rune, length)
	for i := range ret {
		ret[i] = fakeServerChars[rand.Intn(fakeServerNumChars)]
	}
	return string(ret)
}
