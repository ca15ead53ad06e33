package main

import (
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	bayeux "github.com/cometdgo/bayeux"
	"github.com/cometdgo/bayeux/extensions/salesforce"
)

type config struct {
	Hostname  string
	Port      uint
	Protocol  string
	Path      string
	LogLevel  string
	AuthToken string
}

func main() {
	var level logrus.Level
	var cfg config
	flags := flag.NewFlagSet("bayeuxcat", flag.ExitOnError)
	flags.StringVar(&cfg.Protocol, "protocol", "https", "the protocol to use (http or https)")
	flags.UintVar(&cfg.Port, "port", 443, "the port used to connect to the Bayeux server")
	flags.StringVar(&cfg.Hostname, "hostname", "", "the hostname to connect to")
	flags.StringVar(&cfg.Path, "path", "/cometd", "the path used to connect to bayeux")
	flags.StringVar(&cfg.LogLevel, "loglevel", "error", "the level to log at")
	flags.StringVar(&cfg.AuthToken, "token", "", "bearer token to attach to requests against a salesforce.com Bayeux server")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Printf("error parsing flags: %q\n", err)
		os.Exit(1)
	}
	channelNames := flags.Args()
	if len(channelNames) == 0 {
		fmt.Println("usage: bayeuxcat [flags] channel [channel...]")
		os.Exit(1)
	}

	switch cfg.LogLevel {
	case "debug":
		level = logrus.DebugLevel
	case "info":
		level = logrus.InfoLevel
	case "warn":
		level = logrus.WarnLevel
	case "error":
		level = logrus.ErrorLevel
	case "fatal":
		level = logrus.FatalLevel
	default:
		level = logrus.PanicLevel
	}
	logrusLogger := logrus.New()
	logrusLogger.SetLevel(level)
	logger := bayeux.NewLogrusLogger(logrusLogger)

	u := url.URL{Scheme: cfg.Protocol, Host: fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port), Path: cfg.Path}

	var httpClient *http.Client
	if cfg.AuthToken != "" {
		httpClient = &http.Client{
			Transport: &salesforce.StaticTokenAuthenticator{
				Token:     cfg.AuthToken,
				Transport: http.DefaultTransport,
			},
		}
	}

	registry := bayeux.NewTransportRegistry()
	httpTransport, err := bayeux.NewHTTPTransport(u.String(), httpClient, logger)
	if err != nil {
		fmt.Printf("error initializing HTTP transport: %q\n", err)
		os.Exit(1)
	}
	registry.Register(httpTransport)
	registry.Register(bayeux.NewWSTransport(u.String(), logger))

	engine := bayeux.NewSessionEngine(u.String(), []string{bayeux.ConnectionTypeLongPolling, bayeux.ConnectionTypeWebsocket}, registry, bayeux.WithLogger(logger))

	if err := engine.Handshake(nil, func(m bayeux.Message, err error) {
		if err != nil || !m.Successful {
			logrusLogger.WithError(err).Error("handshake failed")
			return
		}
		for _, name := range channelNames {
			channel := bayeux.Channel(name)
			err := engine.Subscribe(channel, func(m bayeux.Message) {
				logrusLogger.WithFields(logrus.Fields{
					"channel": m.Channel,
					"data":    string(m.Data),
				}).Info("message received")
			})
			if err != nil {
				fmt.Printf("error subscribing to %s: %q\n", name, err)
				os.Exit(1)
			}
		}
	}); err != nil {
		fmt.Printf("error starting handshake: %q\n", err)
		os.Exit(1)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	<-sigc

	done := make(chan struct{})
	_ = engine.Disconnect(func(m bayeux.Message, err error) {
		close(done)
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}
