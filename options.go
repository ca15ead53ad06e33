package gobayeux

import (
	"net/http"
	"time"
)

// Options holds the configuration assembled from a NewSessionEngine call's
// Option arguments.
type Options struct {
	Logger Logger

	HTTPClient *http.Client

	BackoffIncrement time.Duration
	MaxBackoff       time.Duration

	HandshakeTimeout time.Duration

	Scheduler *Scheduler

	ClientVersion  string
	MinimumVersion string

	HandshakeTemplate map[string]interface{}
}

func defaultOptions() *Options {
	return &Options{
		Logger:           newNullLogger(),
		BackoffIncrement: defaultBackoffIncrement,
		MaxBackoff:       defaultMaxBackoff,
		HandshakeTimeout: 10 * time.Second,
		ClientVersion:    "1.0",
		MinimumVersion:   "1.0",
	}
}

// Option configures a SessionEngine at construction time.
type Option func(*Options)

// WithLogger configures the Logger used for every log line the engine and
// its transports emit.
func WithLogger(logger Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithHTTPClient sets Options.HTTPClient. The session engine does not read
// that field; the HTTP long-polling transport uses the client passed to
// NewHTTPTransport.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = client
	}
}

// WithBackoffIncrement overrides the default 1000ms backoff increment.
func WithBackoffIncrement(d time.Duration) Option {
	return func(o *Options) {
		o.BackoffIncrement = d
	}
}

// WithMaxBackoff overrides the default 30000ms backoff ceiling.
func WithMaxBackoff(d time.Duration) Option {
	return func(o *Options) {
		o.MaxBackoff = d
	}
}

// WithHandshakeTimeout sets Options.HandshakeTimeout. The session engine
// does not read that field: handshake and connect sends carry no deadline
// of their own.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.HandshakeTimeout = d
	}
}

// WithScheduler injects a scheduler shared across many sessions. When
// omitted, the engine constructs and owns one, shutting it down on
// terminate; see spec.md's "Scheduler ownership" design note.
func WithScheduler(s *Scheduler) Option {
	return func(o *Options) {
		o.Scheduler = s
	}
}

// WithHandshakeTemplate supplies default fields merged into every
// /meta/handshake request's Ext, subject to the reserved-field protection
// described in spec.md §4.2.
func WithHandshakeTemplate(template map[string]interface{}) Option {
	return func(o *Options) {
		o.HandshakeTemplate = template
	}
}
