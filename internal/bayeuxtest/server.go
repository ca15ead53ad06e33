// Package bayeuxtest provides a fake Bayeux server usable as an
// http.RoundTripper, so session engine tests can drive a full
// handshake/connect/subscribe/disconnect sequence without a network.
package bayeuxtest

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

	bayeux "github.com/cometdgo/bayeux"
)

var (
	chars    = []rune("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmonpqrstuvwxyz0123456789")
	numChars = len(chars)

	defaultAdvice = &bayeux.Advice{
		Reconnect: bayeux.ReconnectRetry,
		Timeout:   int(30 * time.Second / time.Millisecond),
		Interval:  0,
	}
)

// Logger is the subset of testing.TB this package needs.
type Logger interface {
	Log(args ...any)
	Logf(format string, args ...any)
}

// Server is a fake Bayeux server: an http.RoundTripper that understands
// /meta/handshake, /meta/connect, /meta/subscribe, /meta/unsubscribe, and
// /meta/disconnect well enough to drive a SessionEngine through a full
// lifecycle in tests.
type Server struct {
	log Logger

	mu      sync.Mutex
	running bool
	subs    map[string][]bayeux.Channel

	handshakeError           bool
	advice                   *bayeux.Advice
	supportedConnectionTypes []string
}

// NewServer creates a Server. It must be started with Start before its
// RoundTrip method will answer requests.
func NewServer(logger Logger, opts ...ServerOpt) *Server {
	s := &Server{
		log:    logger,
		subs:   make(map[string][]bayeux.Channel),
		advice: defaultAdvice,
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// ServerOpt configures a Server at construction time.
type ServerOpt interface {
	apply(s *Server)
}

type serverOptFn func(s *Server)

func (f serverOptFn) apply(s *Server) { f(s) }

// WithHandshakeError makes every /meta/handshake request fail with a 400.
func WithHandshakeError(handshakeError bool) ServerOpt {
	return serverOptFn(func(s *Server) {
		s.handshakeError = handshakeError
	})
}

// WithAdvice overrides the advice attached to every successful
// handshake/connect reply.
func WithAdvice(advice *bayeux.Advice) ServerOpt {
	return serverOptFn(func(s *Server) {
		s.advice = advice
	})
}

// WithSupportedConnectionTypes makes the handshake reply advertise types
// instead of echoing back the client's own list, so a test can force a
// negotiation failure (an empty client/server transport intersection).
func WithSupportedConnectionTypes(types []string) ServerOpt {
	return serverOptFn(func(s *Server) {
		s.supportedConnectionTypes = types
	})
}

// Start makes the server begin answering RoundTrip calls.
func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
}

// Stop makes RoundTrip fail every call, simulating the server going away.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// RoundTrip implements http.RoundTripper.
func (s *Server) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, errors.New("bayeuxtest: server not running")
	}

	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("issue reading body: %w", err)
	}

	var msgs []bayeux.Message
	if err := json.Unmarshal(body, &msgs); err != nil {
		return &http.Response{
			StatusCode: http.StatusUnprocessableEntity,
			Status:     http.StatusText(http.StatusUnprocessableEntity),
			Body:       io.NopCloser(bytes.NewReader(nil)),
		}, nil
	}

	var replies []bayeux.Message
	statusCode := http.StatusOK

	for _, msg := range msgs {
		switch msg.Channel {
		case bayeux.MetaHandshake:
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
			replies = append(replies, bayeux.Message{
				Channel:                  bayeux.MetaHandshake,
				Version:                  msg.Version,
				SupportedConnectionTypes: serverTypes,
				ClientID:                 generateID(10),
				Successful:               true,
				AuthSuccessful:           true,
				Advice:                   s.advice,
				ID:                       msg.ID,
			})
		case bayeux.MetaConnect:
			for _, ch := range s.subs[msg.ClientID] {
				replies = append(replies, bayeux.Message{
					Channel:    ch,
					ID:         generateID(5),
					ClientID:   msg.ClientID,
					Data:       json.RawMessage(`{}`),
					Successful: true,
				})
			}
			replies = append(replies, bayeux.Message{
				Channel:    bayeux.MetaConnect,
				Successful: true,
				ClientID:   msg.ClientID,
				Advice:     s.advice,
				ID:         msg.ID,
			})
		case bayeux.MetaSubscribe:
			if _, ok := s.subs[msg.ClientID]; !ok {
				s.subs[msg.ClientID] = nil
			}
			reply := bayeux.Message{
				Channel:      bayeux.MetaSubscribe,
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
		case bayeux.MetaUnsubscribe:
			reply := bayeux.Message{
				Channel:      bayeux.MetaUnsubscribe,
				ID:           msg.ID,
				ClientID:     msg.ClientID,
				Successful:   true,
				Subscription: msg.Subscription,
			}
			found := false
			var kept []bayeux.Channel
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
		case bayeux.MetaDisconnect:
			delete(s.subs, msg.ClientID)
			replies = append(replies, bayeux.Message{
				Channel:    bayeux.MetaDisconnect,
				ID:         msg.ID,
				ClientID:   msg.ClientID,
				Successful: true,
			})
		default:
			if s.log != nil {
				s.log.Logf("bayeuxtest: unhandled message on %s", msg.Channel)
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

func generateID(length int) string {
	ret := make([]rune, length)
	for i := range ret {
		ret[i] = chars[rand.Intn(numChars)]
	}
	return string(ret)
}
