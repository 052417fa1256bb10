// Package rtc defines the PCM audio frame type exchanged between the capture
// device, the feature extractor, and the playback path.
package rtc

import (
	"fmt"
	"time"
)

// AudioFrame is a contiguous buffer of 16-bit little-endian PCM samples.
// A frame typically covers one analysis tick (50-100ms) on the capture side
// or 10ms on the playback side; the duration is derived from the sample count.
// Fields are immutable after creation.
type AudioFrame struct {
	Data              []byte // 16-bit PCM, little-endian
	SampleRate        int    // e.g. 48000 or 16000
	SamplesPerChannel int
	NumChannels       int           // 1 or 2
	Timestamp         time.Duration // optional; zero means "live"
}

// NewAudioFrame validates that the data length matches the declared geometry.
func NewAudioFrame(data []byte, sampleRate, samplesPerChannel, numChannels int, timestamp time.Duration) (*AudioFrame, error) {
	expected := samplesPerChannel * numChannels * 2
	if len(data) != expected {
		return nil, fmt.Errorf("AudioFrame data length mismatch: got %d bytes, expected %d for %d samples x %d channels",
			len(data), expected, samplesPerChannel, numChannels)
	}
	return &AudioFrame{
		Data:              data,
		SampleRate:        sampleRate,
		SamplesPerChannel: samplesPerChannel,
		NumChannels:       numChannels,
		Timestamp:         timestamp,
	}, nil
}

// Clone creates a deep copy of the frame.
func (f *AudioFrame) Clone() *AudioFrame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return &AudioFrame{
		Data:              data,
		SampleRate:        f.SampleRate,
		SamplesPerChannel: f.SamplesPerChannel,
		NumChannels:       f.NumChannels,
		Timestamp:         f.Timestamp,
	}
}

// Duration returns the wall-clock time the frame covers.
func (f *AudioFrame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(f.SamplesPerChannel) * time.Second / time.Duration(f.SampleRate)
}

// Samples decodes the PCM data into int16 samples (interleaved if stereo).
func (f *AudioFrame) Samples() []int16 {
	n := len(f.Data) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(f.Data[2*i]) | int16(f.Data[2*i+1])<<8
	}
	return samples
}

// FrameFromSamples encodes int16 samples into a frame, the inverse of Samples.
func FrameFromSamples(samples []int16, sampleRate, numChannels int, timestamp time.Duration) *AudioFrame {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[2*i] = byte(s)
		data[2*i+1] = byte(s >> 8)
	}
	return &AudioFrame{
		Data:              data,
		SampleRate:        sampleRate,
		SamplesPerChannel: len(samples) / numChannels,
		NumChannels:       numChannels,
		Timestamp:         timestamp,
	}
}
