// Package audioio provides the audio plumbing between the game client
// and the realtime voice session.
//
// Two backends exist:
//   - Feed - PCM pushed in from the bridge (browser microphone frames)
//   - Mock - synthetic audio for tests and the voice probe
//
// There is no direct hardware backend. The sidecar never opens a
// device itself; capture happens in the browser and arrives over the
// bridge as little-endian PCM16 frames.
package audioio

import (
	"fmt"
	"time"
)

// Backend selects the audio implementation.
type Backend string

const (
	// BackendAuto picks Feed, the normal production path.
	BackendAuto Backend = "auto"
	// BackendFeed accepts PCM pushed from the bridge.
	BackendFeed Backend = "feed"
	// BackendMock generates synthetic audio.
	BackendMock Backend = "mock"
)

// Config holds the audio format shared by sources and sinks.
type Config struct {
	// Backend selects the implementation. Default: auto.
	Backend Backend `json:"backend"`

	// SampleRate in Hz. Default 24000, the realtime API format.
	SampleRate int `json:"sample_rate"`

	// Channels is the channel count. Default 1.
	Channels int `json:"channels"`

	// FrameDuration is the nominal chunk length. Default 20ms.
	FrameDuration time.Duration `json:"frame_duration"`
}

// DefaultConfig returns the realtime API audio format.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendAuto,
		SampleRate:    24000,
		Channels:      1,
		FrameDuration: 20 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("frame_duration must be positive, got %v", c.FrameDuration)
	}
	return nil
}

// FrameSamples returns the number of samples per frame per channel.
func (c *Config) FrameSamples() int {
	return int(float64(c.SampleRate) * c.FrameDuration.Seconds())
}

// FrameBytes returns the byte size of one PCM16 frame.
func (c *Config) FrameBytes() int {
	return c.FrameSamples() * c.Channels * 2
}
