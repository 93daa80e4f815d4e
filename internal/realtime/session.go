package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/domain"
	"github.com/MareskoY/tutor-ai/internal/metrics"
)

// DataChannelLabel is the label the realtime endpoint expects for protocol events
const DataChannelLabel = "oai-events"

const maxAnswerSize = 64 * 1024

// Options configures how sessions reach the realtime voice endpoint
type Options struct {
	// BaseURL receives the SDP offer, e.g. https://api.openai.com/v1/realtime
	BaseURL string
	Model   string

	ICEServers []string
	HTTPClient *http.Client

	// InitialInstruction, when set, is sent as a user message right after session.update
	InitialInstruction string
}

// OpenParams carries the per-call inputs and callbacks of Open
type OpenParams struct {
	Voice string
	Tools []ToolDefinition

	// OnMessage receives every data channel message. It runs on a pion
	// goroutine and must not block.
	OnMessage func(data []byte)
	// OnOpen fires after the session has been configured over the data channel
	OnOpen func()
	// OnVolume receives the remote audio level every VolumeSampleInterval
	OnVolume func(level float64)
	// OnConnectionState reports peer connection state changes
	OnConnectionState func(state webrtc.PeerConnectionState)
}

// Manager opens realtime voice sessions over WebRTC
type Manager struct {
	api     *webrtc.API
	mic     Microphone
	speaker Speaker
	opts    Options
	logger  *zap.Logger
}

// NewManager creates a session manager. speaker may be nil to discard remote audio.
func NewManager(mic Microphone, speaker Speaker, opts Options, logger *zap.Logger) (*Manager, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}
	if err := m.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{URI: sdp.AudioLevelURI}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("failed to register audio level extension: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Manager{
		api:     webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(registry)),
		mic:     mic,
		speaker: speaker,
		opts:    opts,
		logger:  logger,
	}, nil
}

// Open establishes a session authorised by credential. On any failure every
// resource acquired so far is released before the error is returned.
func (m *Manager) Open(ctx context.Context, credential string, params OpenParams) (*Session, error) {
	s := &Session{
		meter:    &VolumeMeter{},
		done:     make(chan struct{}),
		onVolume: params.OnVolume,
		speaker:  m.speaker,
		logger:   m.logger,
	}

	if err := m.open(ctx, s, credential, params); err != nil {
		s.Close()
		if ctx.Err() != nil && !errors.Is(err, domain.ErrCallCancelled) {
			return nil, fmt.Errorf("%w: %v", domain.ErrCallCancelled, err)
		}
		return nil, err
	}
	return s, nil
}

func (m *Manager) open(ctx context.Context, s *Session, credential string, params OpenParams) error {
	local, err := m.mic.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMediaAccess, err)
	}
	s.local = local

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCallCancelled, err)
	}

	cfg := webrtc.Configuration{}
	if len(m.opts.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: m.opts.ICEServers}}
	}
	pc, err := m.api.NewPeerConnection(cfg)
	if err != nil {
		return fmt.Errorf("%w: failed to create peer connection: %v", domain.ErrSignaling, err)
	}
	s.pc = pc

	dc, err := pc.CreateDataChannel(DataChannelLabel, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create data channel: %v", domain.ErrSignaling, err)
	}
	s.setDataChannel(dc)

	dc.OnOpen(func() {
		m.configure(s, params.Tools)
		if params.OnOpen != nil {
			params.OnOpen()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if params.OnMessage != nil {
			params.OnMessage(msg.Data)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.logger.Info("Peer connection state changed", zap.String("state", state.String()))
		if params.OnConnectionState != nil {
			params.OnConnectionState(state)
		}
	})
	pc.OnTrack(s.handleTrack)

	sender, err := pc.AddTrack(local.Track())
	if err != nil {
		return fmt.Errorf("%w: failed to add local audio track: %v", domain.ErrSignaling, err)
	}
	go drainRTCP(sender)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create offer: %v", domain.ErrSignaling, err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("%w: failed to set local description: %v", domain.ErrSignaling, err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrCallCancelled, ctx.Err())
	}

	answer, err := m.exchangeSDP(ctx, credential, params.Voice, pc.LocalDescription().SDP)
	if err != nil {
		return err
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		return fmt.Errorf("%w: failed to set remote description: %v", domain.ErrSignaling, err)
	}
	return nil
}

// exchangeSDP posts the local offer and returns the endpoint's SDP answer
func (m *Manager) exchangeSDP(ctx context.Context, credential, voice, offer string) (string, error) {
	endpoint, err := url.Parse(m.opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid realtime url: %v", domain.ErrSignaling, err)
	}
	query := endpoint.Query()
	if m.opts.Model != "" {
		query.Set("model", m.opts.Model)
	}
	if voice != "" {
		query.Set("voice", voice)
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewBufferString(offer))
	if err != nil {
		return "", fmt.Errorf("%w: failed to build SDP request: %v", domain.ErrSignaling, err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := m.opts.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrCallCancelled, ctx.Err())
		}
		return "", fmt.Errorf("%w: SDP exchange failed: %v", domain.ErrSignaling, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerSize))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read SDP answer: %v", domain.ErrSignaling, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: SDP exchange returned status %d", domain.ErrSignaling, resp.StatusCode)
	}

	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal(body); err != nil {
		return "", fmt.Errorf("%w: malformed SDP answer: %v", domain.ErrSignaling, err)
	}
	return string(body), nil
}

// configure sends session.update and the optional opening instruction
func (m *Manager) configure(s *Session, tools []ToolDefinition) {
	if err := s.Send(NewSessionUpdate(tools)); err != nil {
		m.logger.Error("Failed to send session update", zap.Error(err))
		return
	}
	if m.opts.InitialInstruction != "" {
		if err := s.Send(NewUserTextMessage(m.opts.InitialInstruction)); err != nil {
			m.logger.Error("Failed to send initial instruction", zap.Error(err))
		}
	}
	m.logger.Info("Realtime session configured", zap.Int("tools", len(tools)))
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// Session owns the media and connection handles of one call
type Session struct {
	mu      sync.Mutex
	closed  bool
	dc      *webrtc.DataChannel
	dropped int

	pc      *webrtc.PeerConnection
	local   LocalAudio
	speaker Speaker
	meter   *VolumeMeter

	onVolume   func(level float64)
	volumeOnce sync.Once
	done       chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once

	logger *zap.Logger
}

func (s *Session) setDataChannel(dc *webrtc.DataChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dc = dc
}

// Send serializes payload to JSON and sends it over the data channel. The
// channel is best-effort: when it is not open the message is logged and
// dropped, and Send still returns nil. Errors are returned only for payloads
// that cannot be encoded or a transport failure on an open channel.
func (s *Session) Send(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode control message: %w", err)
	}
	if s == nil {
		metrics.ControlMessagesDropped.Inc()
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.readyLocked() {
		s.dropped++
		metrics.ControlMessagesDropped.Inc()
		if s.logger != nil {
			s.logger.Warn("Dropping control message",
				zap.Error(domain.ErrChannelUnavailable),
				zap.Int("size", len(data)))
		}
		return nil
	}
	if err := s.dc.SendText(string(data)); err != nil {
		return fmt.Errorf("failed to send control message: %w", err)
	}
	return nil
}

// Ready reports whether the data channel is open
func (s *Session) Ready() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyLocked()
}

func (s *Session) readyLocked() bool {
	return !s.closed && s.dc != nil && s.dc.ReadyState() == webrtc.DataChannelStateOpen
}

// Dropped returns how many control messages were discarded because the
// data channel was not open
func (s *Session) Dropped() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Volume returns the last sampled remote audio level
func (s *Session) Volume() float64 {
	if s == nil || s.meter == nil {
		return 0
	}
	return s.meter.Level()
}

func (s *Session) handleTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	for _, ext := range receiver.GetParameters().HeaderExtensions {
		if ext.URI == sdp.AudioLevelURI {
			s.meter.SetAudioLevelExtension(uint8(ext.ID))
		}
	}

	s.volumeOnce.Do(func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.sampleVolume()
	})

	go s.play(track)
}

func (s *Session) play(track *webrtc.TrackRemote) {
	defer s.wg.Done()

	var playback Playback
	if s.speaker != nil {
		p, err := s.speaker.Start(track.Codec())
		if err != nil {
			s.logger.Error("Failed to start playback", zap.Error(err))
		} else {
			playback = p
		}
	}
	defer func() {
		if playback != nil {
			if err := playback.Close(); err != nil {
				s.logger.Warn("Failed to close playback", zap.Error(err))
			}
		}
	}()

	s.logger.Info("Remote audio track started",
		zap.String("codec", track.Codec().MimeType),
		zap.Uint32("ssrc", uint32(track.SSRC())))

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		s.meter.Observe(pkt)
		if playback != nil {
			if err := playback.Write(pkt); err != nil {
				s.logger.Warn("Failed to play remote audio", zap.Error(err))
			}
		}
	}
}

func (s *Session) sampleVolume() {
	defer s.wg.Done()

	ticker := time.NewTicker(VolumeSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			level := s.meter.Sample()
			if s.onVolume != nil {
				s.onVolume(level)
			}
		}
	}
}

// Close releases every handle held by the session. It is safe on a partially
// opened session and on repeated calls.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}

	var errs []error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		dc := s.dc
		s.dc = nil
		s.mu.Unlock()

		if s.done != nil {
			close(s.done)
		}
		if dc != nil {
			if err := dc.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close data channel: %w", err))
			}
		}
		if s.pc != nil {
			if err := s.pc.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close peer connection: %w", err))
			}
		}
		if s.local != nil {
			s.local.Stop()
		}

		s.wg.Wait()

		if s.meter != nil {
			s.meter.Reset()
		}
		if s.onVolume != nil {
			s.onVolume(0)
		}
	})
	return errors.Join(errs...)
}
