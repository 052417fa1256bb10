// Package fake provides an in-memory playback device for tests.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/cadencevoice/duplex-go/pkg/rtc"
)

// FakeDevice records everything played through it and detects overlapping
// playback, which the queue must never allow.
type FakeDevice struct {
	mu         sync.Mutex
	playing    bool
	overlapped bool
	paused     bool
	stops      int
	volume     float64
	volumes    []float64
	frames     []rtc.AudioFrame
	playStarts int
}

// NewFakeDevice creates a device at full volume.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{volume: 1.0}
}

// Play consumes frames until the channel closes or the context is canceled.
func (d *FakeDevice) Play(ctx context.Context, frames <-chan rtc.AudioFrame) error {
	d.mu.Lock()
	if d.playing {
		d.overlapped = true
	}
	d.playing = true
	d.playStarts++
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.playing = false
		d.mu.Unlock()
	}()

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			d.mu.Lock()
			d.frames = append(d.frames, f)
			d.mu.Unlock()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pause marks output held.
func (d *FakeDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
	return nil
}

// Resume releases a hold.
func (d *FakeDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = false
	return nil
}

// Stop counts stop requests.
func (d *FakeDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
}

// SetVolume applies and records a volume change.
func (d *FakeDevice) SetVolume(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("volume %v out of range", v)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.volume = v
	d.volumes = append(d.volumes, v)
	return nil
}

// Volume returns the current volume.
func (d *FakeDevice) Volume() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.volume
}

// Volumes returns every volume the device was set to, in order.
func (d *FakeDevice) Volumes() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]float64, len(d.volumes))
	copy(out, d.volumes)
	return out
}

// FrameCount returns how many frames have been played.
func (d *FakeDevice) FrameCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

// PlayStarts returns how many Play calls were made.
func (d *FakeDevice) PlayStarts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playStarts
}

// Stops returns how many Stop calls were made.
func (d *FakeDevice) Stops() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}

// Overlapped reports whether two Play calls ever ran concurrently.
func (d *FakeDevice) Overlapped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.overlapped
}

// Playing reports whether a Play call is active right now.
func (d *FakeDevice) Playing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}
