package playback

import (
	"context"

	"github.com/cadencevoice/duplex-go/pkg/rtc"
)

// Device is the audio output boundary. Play blocks until the frame channel
// closes or the context is canceled; the queue runs it on its own goroutine
// and guarantees at most one Play is active at a time. SetVolume is driven
// every tick by the ducking controller and must apply without clicks.
type Device interface {
	Play(ctx context.Context, frames <-chan rtc.AudioFrame) error
	Pause() error
	Resume() error
	Stop()
	SetVolume(v float64) error
}
