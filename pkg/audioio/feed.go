package audioio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// FeedSource is the production microphone path. The bridge pushes raw
// PCM16 frames received from the game client; the session drains them
// via Stream.
type FeedSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan AudioChunk

	chunks   atomic.Int64
	samples  atomic.Int64
	overruns atomic.Int64
}

// NewFeedSource creates a push-based source.
func NewFeedSource(cfg Config, logger *slog.Logger) *FeedSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedSource{
		cfg:    cfg,
		logger: logger.With("component", "audioio.feed"),
	}
}

// Start makes the source accept pushed frames.
func (f *FeedSource) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return io.ErrClosedPipe
	}
	if f.running {
		return nil
	}
	f.running = true
	f.streamCh = make(chan AudioChunk, 16)
	f.logger.Info("feed source started", "sample_rate", f.cfg.SampleRate)
	return nil
}

// Push accepts one raw PCM16 frame from the bridge. Frames pushed
// while the stream buffer is full are dropped and counted as overruns
// so a stalled session never blocks the bridge.
func (f *FeedSource) Push(data []byte) error {
	f.mu.Lock()
	running := f.running
	ch := f.streamCh
	f.mu.Unlock()

	if !running {
		return io.ErrClosedPipe
	}

	var chunk AudioChunk
	chunk.FromBytes(data, f.cfg.SampleRate, f.cfg.Channels)

	select {
	case ch <- chunk:
		f.chunks.Add(1)
		f.samples.Add(int64(len(chunk.Samples)))
	default:
		f.overruns.Add(1)
	}
	return nil
}

// Stop halts the source and closes the stream channel.
func (f *FeedSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return nil
	}
	f.running = false
	close(f.streamCh)
	f.logger.Info("feed source stopped")
	return nil
}

// Stream returns the chunk channel.
func (f *FeedSource) Stream() <-chan AudioChunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamCh
}

// Config returns the audio format.
func (f *FeedSource) Config() Config { return f.cfg }

// Name returns "feed".
func (f *FeedSource) Name() string { return "feed" }

// Close releases the source.
func (f *FeedSource) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	return f.Stop()
}

// Stats returns source activity counters.
func (f *FeedSource) Stats() SourceStats {
	f.mu.Lock()
	running := f.running
	f.mu.Unlock()

	return SourceStats{
		Chunks:   f.chunks.Load(),
		Samples:  f.samples.Load(),
		Overruns: f.overruns.Load(),
		Running:  running,
		Backend:  "feed",
	}
}

var _ SourceWithStats = (*FeedSource)(nil)

// FeedSink is the production playback path. Assistant audio written by
// the session is handed to a callback, which the bridge uses to fan
// frames out to connected game clients.
type FeedSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	onChunk func(AudioChunk)

	chunks  atomic.Int64
	samples atomic.Int64
}

// NewFeedSink creates a callback-based sink.
func NewFeedSink(cfg Config, logger *slog.Logger) *FeedSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedSink{
		cfg:    cfg,
		logger: logger.With("component", "audioio.feed"),
	}
}

// OnChunk sets the delivery callback. Chunks written while no callback
// is set are counted and discarded.
func (f *FeedSink) OnChunk(fn func(AudioChunk)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChunk = fn
}

// Start begins accepting audio.
func (f *FeedSink) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return io.ErrClosedPipe
	}
	f.running = true
	return nil
}

// Stop halts acceptance.
func (f *FeedSink) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	return nil
}

// Write hands one chunk to the delivery callback.
func (f *FeedSink) Write(ctx context.Context, chunk AudioChunk) error {
	f.mu.Lock()
	running := f.running
	fn := f.onChunk
	f.mu.Unlock()

	if !running {
		return io.ErrClosedPipe
	}

	f.chunks.Add(1)
	f.samples.Add(int64(len(chunk.Samples)))
	if fn != nil {
		fn(chunk)
	}
	return nil
}

// Clear is a no-op; the sink holds no buffer.
func (f *FeedSink) Clear() error { return nil }

// Config returns the audio format.
func (f *FeedSink) Config() Config { return f.cfg }

// Name returns "feed".
func (f *FeedSink) Name() string { return "feed" }

// Close releases the sink.
func (f *FeedSink) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.running = false
	f.mu.Unlock()
	return nil
}

// Stats returns sink activity counters.
func (f *FeedSink) Stats() SinkStats {
	f.mu.Lock()
	running := f.running
	f.mu.Unlock()

	return SinkStats{
		Chunks:  f.chunks.Load(),
		Samples: f.samples.Load(),
		Running: running,
		Backend: "feed",
	}
}

var _ SinkWithStats = (*FeedSink)(nil)
