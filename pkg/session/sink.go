package session

import "log/slog"

// Sink receives status and transcript updates from a session. The bridge
// implements this to push updates to the game UI; tests use NopSink.
type Sink interface {
	// Status reports the current connection phase as a display string.
	Status(status string)

	// Transcript reports the running assistant transcript. full is the
	// complete buffer, delta the newly appended fragment.
	Transcript(full, delta string)

	// Message reports a completed message log entry.
	Message(role, text string)
}

// NopSink discards all updates.
type NopSink struct{}

func (NopSink) Status(string)             {}
func (NopSink) Transcript(string, string) {}
func (NopSink) Message(string, string)    {}

// LogSink writes updates to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *LogSink) Status(status string) {
	s.logger().Info("status", "status", status)
}

func (s *LogSink) Transcript(full, delta string) {
	s.logger().Debug("transcript", "delta", delta, "len", len(full))
}

func (s *LogSink) Message(role, text string) {
	s.logger().Info("message", "role", role, "text", text)
}
