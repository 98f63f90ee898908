package audioio

import (
	"context"
	"io"
)

// AudioChunk is one frame of PCM16 audio.
type AudioChunk struct {
	// Samples holds interleaved little-endian PCM16 samples.
	Samples []int16

	// SampleRate of this chunk in Hz.
	SampleRate int

	// Channels in this chunk.
	Channels int
}

// Bytes serializes the chunk to little-endian PCM16.
func (c *AudioChunk) Bytes() []byte {
	buf := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// FromBytes populates the chunk from little-endian PCM16 bytes.
func (c *AudioChunk) FromBytes(data []byte, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = make([]int16, len(data)/2)
	for i := range c.Samples {
		c.Samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
}

// Duration returns the chunk length in seconds.
func (c *AudioChunk) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate*c.Channels)
}

// Source supplies microphone audio to the voice session.
type Source interface {
	// Start begins delivery. Chunks become available on Stream.
	Start(ctx context.Context) error

	// Stop halts delivery and closes the stream channel. Safe to
	// call more than once.
	Stop() error

	// Stream returns the chunk channel. Closed when the source stops.
	Stream() <-chan AudioChunk

	// Config returns the audio format.
	Config() Config

	// Name returns the backend name ("feed", "mock").
	Name() string

	// Close releases the source. It cannot be restarted afterwards.
	io.Closer
}

// SourceStats reports source activity for the status endpoint.
type SourceStats struct {
	Chunks   int64  `json:"chunks"`
	Samples  int64  `json:"samples"`
	Overruns int64  `json:"overruns"`
	Running  bool   `json:"running"`
	Backend  string `json:"backend"`
}

// SourceWithStats is a Source that reports activity.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
