package session

import (
	"log/slog"
	"time"
)

const (
	defaultEndpoint = "https://api.openai.com/v1/realtime"
	defaultModel    = "gpt-4o-realtime-preview-2024-12-17"
)

// Config holds session tuning. All retry, spacing and delay constants that
// were hard-coded in earlier connection-manager variants live here.
type Config struct {
	// Credential is the bearer key for the realtime endpoint.
	Credential string

	// Endpoint is the realtime API base URL.
	Endpoint string

	// Model is the realtime model to request.
	Model string

	// Voice is the TTS voice for the assistant.
	Voice string

	// Temperature controls response randomness.
	Temperature float64

	// NegotiationTimeout bounds the description exchange plus transport
	// establishment.
	NegotiationTimeout time.Duration

	// InstructionsDelay is how long after Open the session instructions
	// are pushed. Staggered so the remote side has stabilized.
	InstructionsDelay time.Duration

	// GreetingDelay is how long after Open the greeting is sent.
	GreetingDelay time.Duration

	// BackoffBase is the first reconnect delay.
	BackoffBase time.Duration

	// BackoffCap bounds the exponential reconnect delay.
	BackoffCap time.Duration

	// MaxReconnectAttempts is how many reconnects are tried before the
	// session gives up and requires a manual reconnect.
	MaxReconnectAttempts int

	// ErrorCooldown suppresses duplicate reconnect triggers caused by
	// cascading error callbacks from the same root cause.
	ErrorCooldown time.Duration

	// ExtendedCooldown is applied when channel errors exceed
	// ErrorThreshold within the decay window.
	ExtendedCooldown time.Duration

	// ErrorThreshold is the decayed channel-error score that triggers the
	// extended cooldown.
	ErrorThreshold float64

	// ErrorDecay is how much the channel-error score decays per second.
	ErrorDecay float64

	// QueueCap is the outbound queue soft cap.
	QueueCap int

	// MessageSpacing is the minimum gap between transmitted messages.
	MessageSpacing time.Duration

	// Instructions returns the session instruction text. Called once per
	// establishment.
	Instructions func() string

	// Greeting returns the greeting text sent shortly after Open.
	Greeting func() string

	// Logger is the structured logger to use.
	Logger *slog.Logger

	// Sink receives status and transcript updates.
	Sink Sink
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:             defaultEndpoint,
		Model:                defaultModel,
		Voice:                "alloy",
		Temperature:          0.8,
		NegotiationTimeout:   15 * time.Second,
		InstructionsDelay:    time.Second,
		GreetingDelay:        3 * time.Second,
		BackoffBase:          3 * time.Second,
		BackoffCap:           30 * time.Second,
		MaxReconnectAttempts: 5,
		ErrorCooldown:        5 * time.Second,
		ExtendedCooldown:     30 * time.Second,
		ErrorThreshold:       5,
		ErrorDecay:           0.5,
		QueueCap:             10,
		MessageSpacing:       300 * time.Millisecond,
		Instructions:         func() string { return "" },
		Greeting:             func() string { return "" },
		Logger:               slog.Default(),
		Sink:                 NopSink{},
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Option is a functional option for configuring a session.
type Option func(*Config)

// WithCredential sets the bearer key.
func WithCredential(key string) Option {
	return func(c *Config) {
		c.Credential = key
	}
}

// WithEndpoint sets the realtime API base URL.
func WithEndpoint(url string) Option {
	return func(c *Config) {
		c.Endpoint = url
	}
}

// WithModel sets the realtime model.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithVoice sets the TTS voice.
func WithVoice(voice string) Option {
	return func(c *Config) {
		c.Voice = voice
	}
}

// WithTemperature sets the response temperature.
func WithTemperature(temp float64) Option {
	return func(c *Config) {
		c.Temperature = temp
	}
}

// WithNegotiationTimeout bounds the connection handshake.
func WithNegotiationTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.NegotiationTimeout = d
	}
}

// WithBackoff configures reconnect backoff bounds.
func WithBackoff(base, cap time.Duration) Option {
	return func(c *Config) {
		c.BackoffBase = base
		c.BackoffCap = cap
	}
}

// WithMaxReconnectAttempts sets the reconnect attempt limit.
func WithMaxReconnectAttempts(n int) Option {
	return func(c *Config) {
		c.MaxReconnectAttempts = n
	}
}

// WithErrorCooldown sets the duplicate-trigger suppression window.
func WithErrorCooldown(d time.Duration) Option {
	return func(c *Config) {
		c.ErrorCooldown = d
	}
}

// WithQueueCap sets the outbound queue soft cap.
func WithQueueCap(n int) Option {
	return func(c *Config) {
		c.QueueCap = n
	}
}

// WithMessageSpacing sets the minimum gap between transmitted messages.
func WithMessageSpacing(d time.Duration) Option {
	return func(c *Config) {
		c.MessageSpacing = d
	}
}

// WithDelays sets the post-Open instruction and greeting delays.
func WithDelays(instructions, greeting time.Duration) Option {
	return func(c *Config) {
		c.InstructionsDelay = instructions
		c.GreetingDelay = greeting
	}
}

// WithInstructions sets the instruction text source.
func WithInstructions(fn func() string) Option {
	return func(c *Config) {
		c.Instructions = fn
	}
}

// WithGreeting sets the greeting text source.
func WithGreeting(fn func() string) Option {
	return func(c *Config) {
		c.Greeting = fn
	}
}

// WithSink sets the status/transcript sink.
func WithSink(sink Sink) Option {
	return func(c *Config) {
		c.Sink = sink
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
