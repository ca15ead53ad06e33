package gobayeux

import "log/slog"

type wrappedSlog struct {
	*slog.Logger
}

func (w *wrappedSlog) WithError(err error) Logger {
	return w.WithField("error", err)
}

func (w *wrappedSlog) WithField(key string, value any) Logger {
	return &wrappedSlog{w.With(slog.Any(key, value))}
}

// WithSlogLogger configures the engine to log through logger instead of the
// default Logger, which discards everything.
func WithSlogLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = &wrappedSlog{logger}
	}
}
