package backchannel

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cadencevoice/duplex-go/pkg/audio/wav"
	"github.com/cadencevoice/duplex-go/pkg/interrupt"
	"github.com/cadencevoice/duplex-go/pkg/rtc"
	"github.com/matryer/is"
)

func testClip() []rtc.AudioFrame {
	samples := make([]int16, 160)
	f := rtc.FrameFromSamples(samples, 16000, 1, 0)
	return []rtc.AudioFrame{*f}
}

func newTestScheduler() (*Scheduler, *interrupt.ConversationContext) {
	convo := interrupt.NewConversationContext()
	s := NewScheduler(Config{}, convo, [][]rtc.AudioFrame{testClip(), testClip()})
	return s, convo
}

func speaking(dur time.Duration) Input {
	return Input{SpeechDuration: dur}
}

func TestShouldPlay_AllConditionsHold(t *testing.T) {
	s, _ := newTestScheduler()
	if !s.ShouldPlay(speaking(2*time.Second), time.Now()) {
		t.Fatal("expected trigger with all conditions satisfied")
	}
}

func TestShouldPlay_EachConditionBlocks(t *testing.T) {
	s, convo := newTestScheduler()
	now := time.Now()

	tests := []struct {
		name string
		in   Input
	}{
		{"speech too short", Input{SpeechDuration: time.Second}},
		{"assistant playing", Input{SpeechDuration: 2 * time.Second, AssistantPlaying: true}},
		{"utterance boundary", Input{SpeechDuration: 2 * time.Second, Silence: 100 * time.Millisecond}},
		{"transcription finalizing", Input{SpeechDuration: 2 * time.Second, Finalizing: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s.ShouldPlay(tt.in, now) {
				t.Errorf("trigger fired despite %s", tt.name)
			}
		})
	}

	// Rate limit: a recent acknowledgment blocks the next one.
	convo.RecordBackchannelPlayed(now.Add(-3 * time.Second))
	if s.ShouldPlay(speaking(2*time.Second), now) {
		t.Error("trigger fired inside the minimum interval")
	}
	convo.RecordBackchannelPlayed(now.Add(-9 * time.Second))
	if !s.ShouldPlay(speaking(2*time.Second), now) {
		t.Error("trigger blocked after the interval elapsed")
	}
}

func TestShouldPlay_NoClips(t *testing.T) {
	convo := interrupt.NewConversationContext()
	s := NewScheduler(Config{}, convo, nil)
	if s.ShouldPlay(speaking(5*time.Second), time.Now()) {
		t.Fatal("trigger fired with no clips loaded")
	}
}

func TestPlay_RecordsTimeAndRotates(t *testing.T) {
	is := is.New(t)
	s, convo := newTestScheduler()
	now := time.Now()

	clip, inhibitUntil := s.Play(now)
	is.True(len(clip) > 0)
	is.Equal(convo.LastBackchannelPlayed(), now)
	is.Equal(inhibitUntil, now.Add(500*time.Millisecond))

	// The very next tick is inside the rate limit.
	is.True(!s.ShouldPlay(speaking(2*time.Second), now.Add(20*time.Millisecond)))
}

func TestLoadClips(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()

	for _, name := range []string{"mmhmm.wav", "uhhuh.wav"} {
		w, err := wav.NewWriter(filepath.Join(dir, name), 16000, 1)
		is.NoErr(err)
		is.NoErr(w.WriteTone(300, 120, 0.2))
		is.NoErr(w.Close())
	}

	clips, err := LoadClips(dir)
	is.NoErr(err)
	is.Equal(len(clips), 2)
	is.Equal(len(clips[0]), 12) // 120ms of 10ms frames
}
