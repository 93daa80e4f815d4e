package audio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/internal/realtime"
)

// OggSpeaker records the remote Opus audio of each call to an Ogg file.
// With an empty path the audio is discarded.
type OggSpeaker struct {
	path   string
	logger *zap.Logger
}

// NewOggSpeaker creates a speaker writing to path
func NewOggSpeaker(path string, logger *zap.Logger) *OggSpeaker {
	return &OggSpeaker{path: path, logger: logger}
}

var _ realtime.Speaker = (*OggSpeaker)(nil)

// Start implements realtime.Speaker
func (s *OggSpeaker) Start(codec webrtc.RTPCodecParameters) (realtime.Playback, error) {
	if s.path == "" {
		return discard{}, nil
	}
	if !strings.EqualFold(codec.MimeType, webrtc.MimeTypeOpus) {
		s.logger.Warn("Unsupported remote codec, discarding audio", zap.String("mimeType", codec.MimeType))
		return discard{}, nil
	}

	channels := codec.Channels
	if channels == 0 {
		channels = 2
	}
	writer, err := oggwriter.New(s.path, codec.ClockRate, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create playback file: %w", err)
	}

	s.logger.Info("Recording remote audio", zap.String("path", s.path))
	return &oggPlayback{writer: writer}, nil
}

type oggPlayback struct {
	mu     sync.Mutex
	writer *oggwriter.OggWriter
	closed bool
}

func (p *oggPlayback) Write(pkt *rtp.Packet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	return p.writer.WriteRTP(pkt)
}

func (p *oggPlayback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

type discard struct{}

func (discard) Write(*rtp.Packet) error { return nil }
func (discard) Close() error { return nil }
