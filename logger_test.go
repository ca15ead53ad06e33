package gobayeux

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNullLogger_NeverPanics(t *testing.T) {
	l := newNullLogger()
	l.Debug("msg")
	l.Info("msg")
	l.Warn("msg")
	l.Error("msg")
	if l.WithError(errors.New("boom")) != l {
		t.Error("expected WithError on nullLogger to return itself")
	}
	if l.WithField("k", "v") != l {
		t.Error("expected WithField on nullLogger to return itself")
	}
}

func TestNewLogrusLogger(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.JSONFormatter{})

	logger := NewLogrusLogger(base)
	logger.WithField("channel", "/foo/bar").Info("message received")

	if !strings.Contains(buf.String(), "message received") {
		t.Errorf("expected log output to contain the message, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "/foo/bar") {
		t.Errorf("expected log output to contain the field, got %q", buf.String())
	}
}

func TestNewLogrusLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)

	logger := NewLogrusLogger(base)
	logger.WithError(errors.New("boom")).Error("failed")

	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("expected log output to contain the error, got %q", buf.String())
	}
}

func TestWithSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	base := slog.New(handler)

	o := defaultOptions()
	WithSlogLogger(base)(o)

	o.Logger.WithField("channel", "/foo/bar").Info("message received")

	if !strings.Contains(buf.String(), "message received") {
		t.Errorf("expected log output to contain the message, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "/foo/bar") {
		t.Errorf("expected log output to contain the field, got %q", buf.String())
	}
}
