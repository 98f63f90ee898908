package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/paddleworks/go-courtside/internal/config"
	"github.com/paddleworks/go-courtside/internal/log"
	"github.com/paddleworks/go-courtside/pkg/audioio"
	"github.com/paddleworks/go-courtside/pkg/bridge"
	"github.com/paddleworks/go-courtside/pkg/game"
	"github.com/paddleworks/go-courtside/pkg/narrator"
	"github.com/paddleworks/go-courtside/pkg/session"
)

func main() {
	addr := flag.String("addr", config.BridgeAddr(), "Bridge listen address")
	model := flag.String("model", "", "Realtime model (default per session config)")
	voice := flag.String("voice", "alloy", "Assistant voice")
	transport := flag.String("transport", "webrtc", "Transport: webrtc or websocket")
	autoConnect := flag.Bool("connect", false, "Connect the voice session at startup")
	logLevel := flag.String("log-level", config.LogLevel(), "Log level (debug, info, warn, error)")
	flag.Parse()

	log.Init(*logLevel)
	logger := log.L()

	credential := config.CredentialRequired()

	fmt.Println("🏓 Courtside voice sidecar")
	fmt.Printf("   Bridge:    %s\n", *addr)
	fmt.Printf("   Transport: %s\n", *transport)
	fmt.Println()

	// Audio travels between the browser and the session through the
	// feed backend.
	audioCfg := audioio.DefaultConfig()
	capture := audioio.NewFeedSource(audioCfg, logger)
	playback := audioio.NewFeedSink(audioCfg, logger)
	defer capture.Close()
	defer playback.Close()

	hub := bridge.NewHub(logger)
	sink := bridge.NewSink(hub)

	factory, err := transportFactory(*transport, credential, *model, capture, playback, logger)
	if err != nil {
		logger.Error("bad transport flag", "error", err)
		os.Exit(1)
	}

	opts := []session.Option{
		session.WithCredential(credential),
		session.WithVoice(*voice),
		session.WithSink(sink),
		session.WithLogger(logger),
	}
	if *model != "" {
		opts = append(opts, session.WithModel(*model))
	}

	snap := game.NewSnapshot()

	// The narrator needs the session's send func and the session needs
	// the narrator's instruction text, so the composer is built first
	// against a forward reference.
	var sess *session.Session
	composer := narrator.New(snap, func(text string) error {
		return sess.SendSystem(text)
	}, narrator.WithLogger(logger))

	opts = append(opts,
		session.WithInstructions(composer.Instructions),
		session.WithGreeting(composer.Greeting),
	)
	sess = session.New(factory, opts...)
	defer sess.Close()

	sink.BindController(sess)

	hub.OnEvent(func(clientID string, ev *game.Event) {
		composer.HandleEvent(ev)
	})
	hub.OnAudio(func(clientID string, pcm []byte) {
		if err := capture.Push(pcm); err != nil {
			logger.Debug("mic frame dropped", "error", err)
		}
	})
	playback.OnChunk(func(chunk audioio.AudioChunk) {
		hub.BroadcastAudio(chunk.Bytes())
	})

	if *autoConnect {
		if err := sess.Connect(context.Background()); err != nil {
			logger.Error("initial connect failed", "error", err)
		}
	}

	srv := bridge.NewServer(hub, sess, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n👋 Shutting down...")
		_ = srv.Shutdown()
	}()

	if err := srv.Listen(*addr); err != nil {
		logger.Error("bridge server ended", "error", err)
	}

	fmt.Println("👋 Goodbye!")
}

// transportFactory builds a fresh transport per connection attempt.
func transportFactory(kind, credential, model string, capture audioio.Source,
	playback audioio.Sink, logger *slog.Logger) (session.TransportFactory, error) {
	switch kind {
	case "webrtc":
		return func() (session.Transport, error) {
			return session.NewWebRTCTransport(session.WebRTCConfig{
				Credential: credential,
				Model:      model,
				Capture:    capture,
				Playback:   playback,
				Logger:     logger,
			}), nil
		}, nil
	case "websocket":
		return func() (session.Transport, error) {
			return session.NewWSTransport(session.WSConfig{
				Credential: credential,
				Model:      model,
				Logger:     logger,
			}), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}
