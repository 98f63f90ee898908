// voice-probe is a one-shot connectivity check: it opens a realtime
// session with a synthetic tone as the microphone, sends one message,
// prints transcript lines for a while and disconnects.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/paddleworks/go-courtside/internal/config"
	"github.com/paddleworks/go-courtside/internal/log"
	"github.com/paddleworks/go-courtside/pkg/audioio"
	"github.com/paddleworks/go-courtside/pkg/session"
)

type printSink struct{}

func (printSink) Status(status string) {
	fmt.Printf("status: %s\n", status)
}

func (printSink) Transcript(full, delta string) {
	if delta != "" {
		fmt.Print(delta)
	}
}

func (printSink) Message(role, text string) {
	fmt.Printf("\n[%s] %s\n", role, text)
}

func main() {
	transport := flag.String("transport", "webrtc", "Transport: webrtc or websocket")
	message := flag.String("message", "Say hello in one short sentence.", "Probe message to send")
	duration := flag.Duration("duration", 20*time.Second, "How long to listen before disconnecting")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	log.Init(*logLevel)
	logger := log.L()
	credential := config.CredentialRequired()

	audioCfg := audioio.DefaultConfig()
	audioCfg.Backend = audioio.BackendMock
	capture := audioio.NewMockSource(audioCfg, logger, audioio.WithTone(440, 0.2))
	defer capture.Close()

	var factory session.TransportFactory
	switch *transport {
	case "webrtc":
		factory = func() (session.Transport, error) {
			return session.NewWebRTCTransport(session.WebRTCConfig{
				Credential: credential,
				Capture:    capture,
				Logger:     logger,
			}), nil
		}
	case "websocket":
		factory = func() (session.Transport, error) {
			return session.NewWSTransport(session.WSConfig{
				Credential: credential,
				Logger:     logger,
			}), nil
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown transport %q\n", *transport)
		os.Exit(1)
	}

	sess := session.New(factory,
		session.WithCredential(credential),
		session.WithSink(printSink{}),
		session.WithLogger(logger),
		session.WithGreeting(func() string { return "" }),
	)
	defer sess.Close()

	fmt.Printf("🔌 Probing over %s...\n", *transport)
	if err := sess.Connect(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "connect failed: %v\n", err)
		os.Exit(1)
	}

	// Give the instruction push a moment before the probe message.
	time.Sleep(2 * time.Second)
	if err := sess.SendUser(*message); err != nil {
		fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
	}

	time.Sleep(*duration)
	fmt.Println("\n✅ Probe complete")
}
