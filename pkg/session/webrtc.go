package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/paddleworks/go-courtside/internal/httpc"
	"github.com/paddleworks/go-courtside/pkg/audioio"
)

const dataChannelLabel = "oai-events"

// WebRTCConfig configures the canonical WebRTC transport.
type WebRTCConfig struct {
	// Credential is the bearer key for the description exchange.
	Credential string

	// Endpoint is the realtime API base URL.
	Endpoint string

	// Model is appended to the exchange URL.
	Model string

	// Capture is the microphone source. Required; acquired before any
	// network activity so permission problems surface as MediaError.
	Capture audioio.Source

	// Playback receives decoded assistant audio. Optional; when nil
	// the remote track is drained and only counted.
	Playback audioio.Sink

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// WebRTCTransport carries envelopes over a WebRTC data channel alongside
// bidirectional audio. The session description is exchanged with the
// remote endpoint over an authenticated HTTPS POST.
type WebRTCTransport struct {
	cfg    WebRTCConfig
	logger *slog.Logger

	mu      sync.Mutex
	state   TransportState
	pc      *webrtc.PeerConnection
	dc      *webrtc.DataChannel
	capture audioio.Source
	closed  bool

	onMessage func([]byte)
	onState   func(TransportState)

	feedStop chan struct{}

	// Remote audio accounting; the track itself is drained so the
	// assistant's voice keeps flowing.
	audioPackets atomic.Int64
	audioBytes   atomic.Int64
}

// NewWebRTCTransport creates the transport. Connect does all the work.
func NewWebRTCTransport(cfg WebRTCConfig) *WebRTCTransport {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WebRTCTransport{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "session.webrtc"),
		state:    TransportIdle,
		feedStop: make(chan struct{}),
	}
}

// Connect acquires capture, builds the peer connection and data channel,
// exchanges descriptions and waits for the channel to open.
func (t *WebRTCTransport) Connect(ctx context.Context) error {
	if t.cfg.Credential == "" {
		return &SetupError{Message: "missing credential", Cause: ErrMissingCredential}
	}
	if t.cfg.Capture == nil {
		return &MediaError{Cause: fmt.Errorf("no capture source configured")}
	}

	t.setState(TransportConnecting)

	// Capture first: permission problems should surface before any
	// network activity.
	if err := t.cfg.Capture.Start(ctx); err != nil {
		t.setState(TransportFailed)
		return &MediaError{Cause: err}
	}
	t.mu.Lock()
	t.capture = t.cfg.Capture
	t.mu.Unlock()

	if t.cfg.Playback != nil {
		if err := t.cfg.Playback.Start(ctx); err != nil {
			t.teardown()
			t.setState(TransportFailed)
			return &MediaError{Cause: err}
		}
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.teardown()
		t.setState(TransportFailed)
		return NewChannelError("create peer connection", err, false)
	}
	t.mu.Lock()
	t.pc = pc
	t.mu.Unlock()

	dcOpen := make(chan struct{})

	dc, err := pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		t.teardown()
		t.setState(TransportFailed)
		return NewChannelError("create data channel", err, false)
	}
	dc.OnOpen(func() {
		close(dcOpen)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.emitMessage(msg.Data)
	})
	dc.OnClose(func() {
		t.setState(TransportClosed)
	})
	dc.OnError(func(err error) {
		t.logger.Warn("data channel error", "error", err)
	})
	t.mu.Lock()
	t.dc = dc
	t.mu.Unlock()

	capCfg := t.cfg.Capture.Config()
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: uint32(capCfg.SampleRate),
		Channels:  uint16(capCfg.Channels),
	}, "mic", "courtside")
	if err != nil {
		t.teardown()
		t.setState(TransportFailed)
		return NewChannelError("create audio track", err, false)
	}

	sender, err := pc.AddTrack(track)
	if err != nil {
		t.teardown()
		t.setState(TransportFailed)
		return NewChannelError("add audio track", err, false)
	}
	go drainRTCP(sender)

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		t.teardown()
		t.setState(TransportFailed)
		return NewChannelError("add audio transceiver", err, false)
	}

	pc.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if remote.Kind() == webrtc.RTPCodecTypeAudio {
			go t.drainRemoteAudio(remote)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.logger.Debug("peer connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
			t.setState(TransportFailed)
		case webrtc.PeerConnectionStateClosed:
			t.setState(TransportClosed)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		t.teardown()
		t.setState(TransportFailed)
		return NewChannelError("create offer", err, false)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		t.teardown()
		t.setState(TransportFailed)
		return NewChannelError("set local description", err, false)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		t.teardown()
		t.setState(TransportFailed)
		return ctx.Err()
	}

	answer, err := t.exchangeDescription(ctx, pc.LocalDescription().SDP)
	if err != nil {
		t.teardown()
		t.setState(TransportFailed)
		return err
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		t.teardown()
		t.setState(TransportFailed)
		return NewChannelError("set remote description", err, false)
	}

	select {
	case <-dcOpen:
	case <-ctx.Done():
		t.teardown()
		t.setState(TransportFailed)
		return ctx.Err()
	}

	go t.feedAudio(track)

	t.setState(TransportOpen)
	t.logger.Info("webrtc transport open")
	return nil
}

// exchangeDescription POSTs the local SDP and returns the remote SDP.
func (t *WebRTCTransport) exchangeDescription(ctx context.Context, localSDP string) (string, error) {
	url := fmt.Sprintf("%s?model=%s", t.cfg.Endpoint, t.cfg.Model)

	resp, err := httpc.Post(ctx, url, "application/sdp", t.cfg.Credential, []byte(localSDP))
	if err != nil {
		return "", NewChannelError("description exchange", err, true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewChannelError("read remote description", err, true)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &SetupError{StatusCode: resp.StatusCode, Message: "credential rejected"}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", &SetupError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	return string(body), nil
}

// feedAudio opus-encodes capture chunks onto the outbound track.
func (t *WebRTCTransport) feedAudio(track *webrtc.TrackLocalStaticSample) {
	capCfg := t.cfg.Capture.Config()

	enc, err := opus.NewEncoder(capCfg.SampleRate, capCfg.Channels, opus.AppVoIP)
	if err != nil {
		t.logger.Error("opus encoder init failed", "error", err)
		return
	}

	buf := make([]byte, 1400)
	for {
		select {
		case <-t.feedStop:
			return
		case chunk, ok := <-t.cfg.Capture.Stream():
			if !ok {
				return
			}
			n, err := enc.Encode(chunk.Samples, buf)
			if err != nil {
				t.logger.Warn("opus encode failed", "error", err)
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			if err := track.WriteSample(media.Sample{
				Data:     data,
				Duration: time.Duration(chunk.Duration() * float64(time.Second)),
			}); err != nil {
				t.logger.Warn("write sample failed", "error", err)
				return
			}
		}
	}
}

// drainRemoteAudio decodes the assistant's audio onto the playback
// sink, or just counts it when no sink is configured. The track is
// always drained so the flow never stalls.
func (t *WebRTCTransport) drainRemoteAudio(remote *webrtc.TrackRemote) {
	t.logger.Debug("remote audio track", "codec", remote.Codec().MimeType)

	var dec *opus.Decoder
	var pcm []int16
	playback := t.cfg.Playback
	if playback != nil {
		pbCfg := playback.Config()
		d, err := opus.NewDecoder(pbCfg.SampleRate, pbCfg.Channels)
		if err != nil {
			t.logger.Warn("opus decoder init failed, draining only", "error", err)
			playback = nil
		} else {
			dec = d
			// 120ms is the longest opus frame.
			pcm = make([]int16, pbCfg.SampleRate*pbCfg.Channels*120/1000)
		}
	}

	for {
		var pkt *rtp.Packet
		var err error
		pkt, _, err = remote.ReadRTP()
		if err != nil {
			return
		}
		t.audioPackets.Add(1)
		t.audioBytes.Add(int64(len(pkt.Payload)))

		if playback == nil || len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.Decode(pkt.Payload, pcm)
		if err != nil {
			continue
		}
		pbCfg := playback.Config()
		samples := make([]int16, n*pbCfg.Channels)
		copy(samples, pcm[:n*pbCfg.Channels])
		_ = playback.Write(context.Background(), audioio.AudioChunk{
			Samples:    samples,
			SampleRate: pbCfg.SampleRate,
			Channels:   pbCfg.Channels,
		})
	}
}

// drainRTCP reads and discards RTCP so interceptors keep running.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// Send transmits one encoded envelope over the data channel.
func (t *WebRTCTransport) Send(data []byte) error {
	t.mu.Lock()
	dc := t.dc
	state := t.state
	t.mu.Unlock()

	if state != TransportOpen || dc == nil {
		return NewChannelError("data channel not open", nil, true)
	}
	if err := dc.Send(data); err != nil {
		return NewChannelError("data channel send", err, true)
	}
	return nil
}

// State returns the current channel state.
func (t *WebRTCTransport) State() TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// OnMessage sets the inbound message callback.
func (t *WebRTCTransport) OnMessage(fn func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = fn
}

// OnStateChange sets the state transition callback.
func (t *WebRTCTransport) OnStateChange(fn func(TransportState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onState = fn
}

// AudioStats returns inbound audio packet and byte counts.
func (t *WebRTCTransport) AudioStats() (packets, bytes int64) {
	return t.audioPackets.Load(), t.audioBytes.Load()
}

// Close tears down capture, channel and peer connection, in that order.
// Errors are logged, not returned; every handle is nulled regardless.
func (t *WebRTCTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	capture := t.capture
	dc := t.dc
	pc := t.pc
	t.capture = nil
	t.dc = nil
	t.pc = nil
	t.state = TransportClosed
	t.mu.Unlock()

	close(t.feedStop)

	if capture != nil {
		if err := capture.Stop(); err != nil {
			t.logger.Warn("capture stop error", "error", err)
		}
	}
	if t.cfg.Playback != nil {
		if err := t.cfg.Playback.Stop(); err != nil {
			t.logger.Warn("playback stop error", "error", err)
		}
	}
	if dc != nil {
		if err := dc.Close(); err != nil {
			t.logger.Warn("data channel close error", "error", err)
		}
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			t.logger.Warn("peer connection close error", "error", err)
		}
	}
	return nil
}

// teardown is the mid-connect cleanup path.
func (t *WebRTCTransport) teardown() {
	_ = t.Close()
}

func (t *WebRTCTransport) setState(s TransportState) {
	t.mu.Lock()
	if t.closed && s != TransportClosed {
		t.mu.Unlock()
		return
	}
	if t.state == s {
		t.mu.Unlock()
		return
	}
	t.state = s
	fn := t.onState
	t.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (t *WebRTCTransport) emitMessage(data []byte) {
	t.mu.Lock()
	fn := t.onMessage
	t.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

// Ensure WebRTCTransport implements Transport.
var _ Transport = (*WebRTCTransport)(nil)
