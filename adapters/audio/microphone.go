package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/internal/realtime"
)

const (
	opusSampleRate = 48000
	frameDuration  = 20 * time.Millisecond
)

// opusSilence is a single 20ms Opus frame of silence
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// OggMicrophone captures audio from an Ogg/Opus file, or sends silence when
// no file is configured. Each Acquire yields an independent source.
type OggMicrophone struct {
	path   string
	loop   bool
	logger *zap.Logger
}

// NewOggMicrophone creates a microphone reading path. An empty path captures silence.
func NewOggMicrophone(path string, loop bool, logger *zap.Logger) *OggMicrophone {
	return &OggMicrophone{path: path, loop: loop, logger: logger}
}

var _ realtime.Microphone = (*OggMicrophone)(nil)

// Acquire implements realtime.Microphone
func (m *OggMicrophone) Acquire(ctx context.Context) (realtime.LocalAudio, error) {
	var file *os.File
	if m.path != "" {
		f, err := os.Open(m.path)
		if err != nil {
			return nil, fmt.Errorf("failed to open capture file: %w", err)
		}
		file = f
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusSampleRate, Channels: 2},
		"audio", "mic-"+uuid.New().String(),
	)
	if err != nil {
		if file != nil {
			file.Close()
		}
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}

	src := &oggSource{
		track:  track,
		file:   file,
		loop:   m.loop,
		done:   make(chan struct{}),
		logger: m.logger,
	}
	src.wg.Add(1)
	go src.run()
	return src, nil
}

type oggSource struct {
	track  *webrtc.TrackLocalStaticSample
	file   *os.File
	loop   bool
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	logger *zap.Logger
}

func (s *oggSource) Track() webrtc.TrackLocal { return s.track }

// Stop ends capture and closes the file
func (s *oggSource) Stop() {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		if s.file != nil {
			s.file.Close()
		}
	})
}

func (s *oggSource) run() {
	defer s.wg.Done()

	if s.file == nil {
		s.silence()
		return
	}

	for {
		err := s.playFile()
		switch {
		case errors.Is(err, errStopped):
			return
		case errors.Is(err, io.EOF) && s.loop:
			if _, err := s.file.Seek(0, io.SeekStart); err != nil {
				s.logger.Error("Failed to rewind capture file", zap.Error(err))
				break
			}
			continue
		case !errors.Is(err, io.EOF):
			s.logger.Warn("Capture file ended with error", zap.Error(err))
		}
		s.silence()
		return
	}
}

var errStopped = errors.New("capture stopped")

// playFile streams the Ogg pages at their natural pace. It returns io.EOF
// when the file is exhausted.
func (s *oggSource) playFile() error {
	reader, _, err := oggreader.NewWith(s.file)
	if err != nil {
		return fmt.Errorf("failed to read ogg header: %w", err)
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-s.done:
			return errStopped
		case <-ticker.C:
		}

		page, header, err := reader.ParseNextPage()
		if err != nil {
			return err
		}

		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(float64(samples)/opusSampleRate*1000) * time.Millisecond

		if err := s.track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			return fmt.Errorf("failed to write sample: %w", err)
		}
	}
}

func (s *oggSource) silence() {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.track.WriteSample(media.Sample{Data: opusSilence, Duration: frameDuration}); err != nil {
				s.logger.Debug("Failed to write silence", zap.Error(err))
			}
		}
	}
}
