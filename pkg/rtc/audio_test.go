package rtc

import (
	"testing"
	"time"
)

func TestNewAudioFrame_Validation(t *testing.T) {
	tests := []struct {
		name              string
		dataLen           int
		samplesPerChannel int
		numChannels       int
		expectError       bool
	}{
		{"valid mono tick", 4800 * 2, 4800, 1, false},
		{"valid stereo", 480 * 2 * 2, 480, 2, false},
		{"short buffer", 100, 4800, 1, true},
		{"long buffer", 4800*2 + 2, 4800, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAudioFrame(make([]byte, tt.dataLen), 48000, tt.samplesPerChannel, tt.numChannels, 0)
			if (err != nil) != tt.expectError {
				t.Errorf("NewAudioFrame() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}

func TestAudioFrame_Duration(t *testing.T) {
	frame := FrameFromSamples(make([]int16, 2400), 48000, 1, 0)
	if got := frame.Duration(); got != 50*time.Millisecond {
		t.Errorf("Duration() = %v, want 50ms", got)
	}
}

func TestAudioFrame_SamplesRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234, -4321}
	frame := FrameFromSamples(samples, 16000, 1, 0)

	got := frame.Samples()
	if len(got) != len(samples) {
		t.Fatalf("Samples() len = %d, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestAudioFrame_CloneIsDeep(t *testing.T) {
	frame := FrameFromSamples([]int16{100, 200, 300}, 16000, 1, 0)
	clone := frame.Clone()

	clone.Data[0] = 0xFF
	if frame.Data[0] == 0xFF {
		t.Error("Clone() shares underlying data with original")
	}
}
