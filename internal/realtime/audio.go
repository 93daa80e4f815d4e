package realtime

import (
	"context"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// LocalAudio is a captured audio source attached to the outgoing connection
type LocalAudio interface {
	Track() webrtc.TrackLocal
	// Stop releases the capture device. It must be safe to call more than once.
	Stop()
}

// Microphone acquires the local audio source for a call
type Microphone interface {
	Acquire(ctx context.Context) (LocalAudio, error)
}

// Playback receives the remote audio of one call
type Playback interface {
	Write(pkt *rtp.Packet) error
	Close() error
}

// Speaker opens playback for the remote audio track
type Speaker interface {
	Start(codec webrtc.RTPCodecParameters) (Playback, error)
}
