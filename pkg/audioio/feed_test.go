package audioio

import (
	"context"
	"io"
	"testing"
	"time"
)

func TestFeedSourcePush(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendFeed

	src := NewFeedSource(cfg, nil)
	defer src.Close()

	if err := src.Push([]byte{0x01, 0x00}); err != io.ErrClosedPipe {
		t.Errorf("Push before Start = %v, want ErrClosedPipe", err)
	}

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// 0x0102 then 0xFFFF, little-endian.
	if err := src.Push([]byte{0x02, 0x01, 0xFF, 0xFF}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	select {
	case chunk := <-src.Stream():
		if len(chunk.Samples) != 2 {
			t.Fatalf("chunk has %d samples, want 2", len(chunk.Samples))
		}
		if chunk.Samples[0] != 0x0102 || chunk.Samples[1] != -1 {
			t.Errorf("samples decoded as %v, want [258 -1]", chunk.Samples)
		}
		if chunk.SampleRate != cfg.SampleRate {
			t.Errorf("chunk sample rate %d, want %d", chunk.SampleRate, cfg.SampleRate)
		}
	case <-time.After(time.Second):
		t.Fatal("pushed frame never arrived on the stream")
	}
}

func TestFeedSourceOverrun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendFeed

	src := NewFeedSource(cfg, nil)
	defer src.Close()

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Nothing drains the stream, so pushes beyond the buffer are shed.
	frame := []byte{0x00, 0x00}
	for i := 0; i < 64; i++ {
		if err := src.Push(frame); err != nil {
			t.Fatalf("Push %d failed: %v", i, err)
		}
	}

	stats := src.Stats()
	if stats.Overruns == 0 {
		t.Error("expected overruns when the stream is not drained")
	}
	if stats.Chunks+stats.Overruns != 64 {
		t.Errorf("chunks %d + overruns %d != 64 pushes", stats.Chunks, stats.Overruns)
	}
}

func TestFeedSourceStopClosesStream(t *testing.T) {
	src := NewFeedSource(DefaultConfig(), nil)
	defer src.Close()

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	stream := src.Stream()

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case _, ok := <-stream:
		if ok {
			t.Error("expected closed stream after Stop")
		}
	case <-time.After(time.Second):
		t.Fatal("stream not closed after Stop")
	}

	if err := src.Push([]byte{0x00, 0x00}); err != io.ErrClosedPipe {
		t.Errorf("Push after Stop = %v, want ErrClosedPipe", err)
	}
}

func TestFeedSinkCallback(t *testing.T) {
	sink := NewFeedSink(DefaultConfig(), nil)
	defer sink.Close()

	var delivered []AudioChunk
	sink.OnChunk(func(c AudioChunk) {
		delivered = append(delivered, c)
	})

	ctx := context.Background()
	if err := sink.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk := AudioChunk{Samples: []int16{1, 2, 3}, SampleRate: 24000, Channels: 1}
	if err := sink.Write(ctx, chunk); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if len(delivered) != 1 {
		t.Fatalf("callback received %d chunks, want 1", len(delivered))
	}
	if stats := sink.Stats(); stats.Samples != 3 {
		t.Errorf("stats.Samples = %d, want 3", stats.Samples)
	}
}

func TestFactoryBackends(t *testing.T) {
	tests := []struct {
		name    string
		backend Backend
		want    string
		wantErr bool
	}{
		{"auto resolves to feed", BackendAuto, "feed", false},
		{"feed", BackendFeed, "feed", false},
		{"mock", BackendMock, "mock", false},
		{"unknown", Backend("alsa"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Backend = tt.backend

			src, err := NewSource(cfg, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSource failed: %v", err)
			}
			defer src.Close()
			if src.Name() != tt.want {
				t.Errorf("source backend %q, want %q", src.Name(), tt.want)
			}

			snk, err := NewSink(cfg, nil)
			if err != nil {
				t.Fatalf("NewSink failed: %v", err)
			}
			defer snk.Close()
			if snk.Name() != tt.want {
				t.Errorf("sink backend %q, want %q", snk.Name(), tt.want)
			}
		})
	}
}
