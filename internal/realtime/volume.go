package realtime

import (
	"math"
	"sync"
	"time"

	"github.com/pion/rtp"
)

// VolumeSampleInterval is how often the remote audio level is published
const VolumeSampleInterval = 100 * time.Millisecond

// silentPayloadSize is the size of an Opus DTX/comfort-noise frame
const silentPayloadSize = 3

// VolumeMeter estimates the loudness of the remote audio from RTP packets.
// It prefers the ssrc-audio-level header extension and falls back to the
// payload size when the extension was not negotiated.
type VolumeMeter struct {
	mu      sync.Mutex
	extID   uint8
	peak    float64
	current float64
}

// SetAudioLevelExtension sets the negotiated header extension id; 0 disables it
func (m *VolumeMeter) SetAudioLevelExtension(id uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extID = id
}

// Observe folds one packet into the current sampling window
func (m *VolumeMeter) Observe(pkt *rtp.Packet) {
	if pkt == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	level, ok := m.levelFromExtension(pkt)
	if !ok {
		level = levelFromPayload(len(pkt.Payload))
	}
	if level > m.peak {
		m.peak = level
	}
}

func (m *VolumeMeter) levelFromExtension(pkt *rtp.Packet) (float64, bool) {
	if m.extID == 0 {
		return 0, false
	}
	raw := pkt.GetExtension(m.extID)
	if raw == nil {
		return 0, false
	}
	var ext rtp.AudioLevelExtension
	if err := ext.Unmarshal(raw); err != nil {
		return 0, false
	}
	// level is expressed in -dBov, 0 being the loudest
	return math.Pow(10, -float64(ext.Level)/20), true
}

func levelFromPayload(size int) float64 {
	if size <= silentPayloadSize {
		return 0
	}
	return math.Min(1, float64(size-silentPayloadSize)/200)
}

// Sample closes the current window and returns its peak level in [0, 1]
func (m *VolumeMeter) Sample() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.peak
	m.peak = 0
	return m.current
}

// Level returns the last sampled level
func (m *VolumeMeter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Reset clears the indicator state
func (m *VolumeMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peak = 0
	m.current = 0
}
