package audioio

import (
	"context"
	"io"
)

// Sink receives assistant audio from the voice session.
type Sink interface {
	// Start begins accepting audio.
	Start(ctx context.Context) error

	// Stop halts acceptance. Safe to call more than once.
	Stop() error

	// Write delivers one chunk of assistant audio.
	Write(ctx context.Context, chunk AudioChunk) error

	// Clear discards buffered audio, used when the session restarts.
	Clear() error

	// Config returns the audio format.
	Config() Config

	// Name returns the backend name ("feed", "mock").
	Name() string

	// Close releases the sink. It cannot be restarted afterwards.
	io.Closer
}

// SinkStats reports sink activity for the status endpoint.
type SinkStats struct {
	Chunks  int64  `json:"chunks"`
	Samples int64  `json:"samples"`
	Running bool   `json:"running"`
	Backend string `json:"backend"`
}

// SinkWithStats is a Sink that reports activity.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}
