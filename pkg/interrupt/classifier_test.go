package interrupt

import (
	"testing"
	"time"

	"github.com/matryer/is"
)

func newTestClassifier() (*Classifier, *ConversationContext) {
	convo := NewConversationContext()
	return NewClassifier(Config{}, convo), convo
}

func TestClassify_ControlPhrasesBeatAcoustics(t *testing.T) {
	c, _ := newTestClassifier()
	now := time.Now()

	tests := []struct {
		name       string
		transcript string
		want       Kind
	}{
		{"pause request", "wait", Pause},
		{"pause mid-sentence", "hang on a second", Pause},
		{"correction", "no, I meant the other one", Correction},
		{"correction restated", "I said tomorrow, not today", Correction},
		{"topic shift", "actually, what about the weather", TopicShift},
		{"topic shift aside", "by the way, did you see that", TopicShift},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Acoustically a backchannel: short and quiet. The phrase wins.
			ev, ok := c.Classify(Burst{
				Duration:   400 * time.Millisecond,
				Intensity:  0.02,
				Transcript: tt.transcript,
			}, 2, now)
			if !ok {
				t.Fatal("expected a classification")
			}
			if ev.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", ev.Kind, tt.want)
			}
			if ev.ChunkIndex != 2 {
				t.Errorf("ChunkIndex = %d, want 2", ev.ChunkIndex)
			}
		})
	}
}

func TestClassify_Backchannel(t *testing.T) {
	is := is.New(t)
	c, convo := newTestClassifier()
	now := time.Now()

	for _, transcript := range []string{"mm-hmm", "yeah", "okay", "uh-huh", ""} {
		ev, ok := c.Classify(Burst{
			Duration:   500 * time.Millisecond,
			Intensity:  0.03,
			Transcript: transcript,
		}, 0, now)
		is.True(ok)
		is.Equal(ev.Kind, Backchannel)
	}

	// Backchannels never count as interruptions.
	is.True(convo.LastInterruption().IsZero())
}

func TestClassify_BackchannelBoundaries(t *testing.T) {
	c, _ := newTestClassifier()
	now := time.Now()

	// Too long for a backchannel even with acknowledgment wording, and loud
	// enough to count as an interruption.
	ev, ok := c.Classify(Burst{
		Duration:   1500 * time.Millisecond,
		Intensity:  0.05,
		Transcript: "yeah",
	}, 0, now)
	if !ok || ev.Kind != Interruption {
		t.Errorf("long loud 'yeah' = (%v, %v), want Interruption", ev.Kind, ok)
	}

	// Quiet but wordy: not in the acknowledgment lexicon, too quiet to be an
	// interruption. No classification yet.
	_, ok = c.Classify(Burst{
		Duration:   500 * time.Millisecond,
		Intensity:  0.02,
		Transcript: "I think we should",
	}, 0, now)
	if ok {
		t.Error("quiet non-acknowledgment should stay unclassified")
	}
}

func TestClassify_QuietBandEscalates(t *testing.T) {
	is := is.New(t)
	c, _ := newTestClassifier()
	now := time.Now()

	// A wordless burst in the 0.03-0.04 intensity band sits in both the
	// backchannel and interruption envelopes. Short, it reads as a
	// backchannel; past the backchannel ceiling it becomes an interruption.
	quiet := Burst{Duration: 500 * time.Millisecond, Intensity: 0.035}
	ev, ok := c.Classify(quiet, 0, now)
	is.True(ok)
	is.Equal(ev.Kind, Backchannel)

	quiet.Duration = 1200 * time.Millisecond
	ev, ok = c.Classify(quiet, 0, now)
	is.True(ok)
	is.Equal(ev.Kind, Interruption)

	// And a pause phrase arriving later in the same band wins immediately.
	quiet.Duration = 500 * time.Millisecond
	quiet.Transcript = "wait, hold on"
	ev, ok = c.Classify(quiet, 0, now)
	is.True(ok)
	is.Equal(ev.Kind, Pause)
}

func TestClassify_Interruption(t *testing.T) {
	is := is.New(t)
	c, convo := newTestClassifier()
	now := time.Now()

	ev, ok := c.Classify(Burst{
		Duration:   600 * time.Millisecond,
		Intensity:  0.06,
		Transcript: "let me stop you there",
	}, 1, now)
	is.True(ok)
	is.Equal(ev.Kind, Interruption)
	is.Equal(convo.ConsecutiveInterruptions(), 1)
	is.Equal(convo.LastInterruption(), now)
}

func TestClassify_TooShortAndQuiet(t *testing.T) {
	c, _ := newTestClassifier()

	_, ok := c.Classify(Burst{
		Duration:  100 * time.Millisecond,
		Intensity: 0.01,
	}, 0, time.Now())
	if !ok {
		// An empty quiet short burst is still a plausible backchannel.
		t.Fatal("short quiet empty burst should classify as backchannel")
	}
}

func TestClassify_BetweenChunks(t *testing.T) {
	c, _ := newTestClassifier()

	ev, ok := c.Classify(Burst{
		Duration:   400 * time.Millisecond,
		Intensity:  0.05,
		Transcript: "hold on",
	}, -1, time.Now())
	if !ok || ev.ChunkIndex != -1 {
		t.Errorf("between-chunk event = (%+v, %v), want ChunkIndex -1", ev, ok)
	}
}

func TestImpatient(t *testing.T) {
	is := is.New(t)
	c, convo := newTestClassifier()
	base := time.Now()

	is.True(!c.Impatient(base))

	convo.RecordInterruption(base)
	convo.RecordInterruption(base.Add(5 * time.Second))
	is.True(!c.Impatient(base.Add(6 * time.Second)))

	convo.RecordInterruption(base.Add(10 * time.Second))
	is.True(c.Impatient(base.Add(11 * time.Second)))

	// The window slides: old interruptions age out.
	is.True(!c.Impatient(base.Add(45 * time.Second)))
}

func TestMatchesResume(t *testing.T) {
	c, _ := newTestClassifier()

	for _, yes := range []string{"continue", "okay, go on", "please keep going", "Go ahead."} {
		if !c.MatchesResume(yes) {
			t.Errorf("MatchesResume(%q) = false, want true", yes)
		}
	}
	for _, no := range []string{"", "stop", "what was that"} {
		if c.MatchesResume(no) {
			t.Errorf("MatchesResume(%q) = true, want false", no)
		}
	}
}

func TestConversationContext_Counters(t *testing.T) {
	is := is.New(t)
	convo := NewConversationContext()
	base := time.Now()

	convo.RecordInterruption(base)
	convo.RecordInterruption(base.Add(time.Second))
	is.Equal(convo.ConsecutiveInterruptions(), 2)
	is.Equal(convo.InterruptionsWithin(30*time.Second, base.Add(2*time.Second)), 2)

	convo.ResetInterruptions()
	is.Equal(convo.ConsecutiveInterruptions(), 0)
	// Windowed history survives a streak reset.
	is.Equal(convo.InterruptionsWithin(30*time.Second, base.Add(2*time.Second)), 2)

	convo.RecordBackchannelPlayed(base.Add(3 * time.Second))
	is.Equal(convo.LastBackchannelPlayed(), base.Add(3*time.Second))
}
