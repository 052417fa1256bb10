package voice

import (
	"testing"
	"time"

	"github.com/cadencevoice/duplex-go/pkg/fusion"
	"github.com/cadencevoice/duplex-go/pkg/playback"
)

func TestConfig_Defaults(t *testing.T) {
	c := Config{}.WithDefaults()

	if c.TickInterval != 20*time.Millisecond {
		t.Errorf("TickInterval = %v", c.TickInterval)
	}
	if c.Features.TickInterval != c.TickInterval {
		t.Errorf("feature tick %v != engine tick %v", c.Features.TickInterval, c.TickInterval)
	}
	if c.MinUtterance != 900*time.Millisecond {
		t.Errorf("MinUtterance = %v", c.MinUtterance)
	}
	if c.ResumeMinUtterance != 300*time.Millisecond {
		t.Errorf("ResumeMinUtterance = %v", c.ResumeMinUtterance)
	}
	if c.PausedExpiry != 30*time.Second {
		t.Errorf("PausedExpiry = %v", c.PausedExpiry)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"zero config", Config{}, false},
		{"defaults", Config{}.WithDefaults(), false},
		{"text weight too high", Config{Fusion: fusion.Config{TextWeight: 1.5}}, true},
		{"negative threshold", Config{Fusion: fusion.Config{DecisionThreshold: -0.1}}, true},
		{"resume exceeds normal minimum", Config{
			MinUtterance:       500 * time.Millisecond,
			ResumeMinUtterance: 900 * time.Millisecond,
		}, true},
		{"chunk bounds inverted", Config{
			Playback: playback.QueueConfig{
				Chunker: playback.ChunkerConfig{MinChunkLen: 300, MaxChunkLen: 100},
			},
		}, true},
		{"sane explicit values", Config{
			TickInterval:       20 * time.Millisecond,
			Fusion:             fusion.Config{TextWeight: 0.6, DecisionThreshold: 0.7},
			MinUtterance:       900 * time.Millisecond,
			ResumeMinUtterance: 300 * time.Millisecond,
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
