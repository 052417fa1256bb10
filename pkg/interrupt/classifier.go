package interrupt

import (
	"strings"
	"time"
)

// Config tunes classification. The duration and intensity cutoffs were
// hand-tuned empirically; treat them as parameters, not constants. Zero
// values select defaults.
type Config struct {
	// BackchannelMaxDuration is the longest burst still considered a
	// backchannel. Default 1000ms.
	BackchannelMaxDuration time.Duration

	// BackchannelMaxIntensity is the loudest RMS still considered a
	// backchannel. Default 0.04.
	BackchannelMaxIntensity float64

	// BargeInThreshold is the sustained speech duration that turns
	// unclassified speech into an interruption. Default 300ms.
	BargeInThreshold time.Duration

	// ModerateIntensity is the minimum RMS for an interruption. Default 0.03.
	ModerateIntensity float64

	// ImpatienceCount interruptions within ImpatienceWindow raise the
	// advisory impatience signal. Defaults 3 and 30s.
	ImpatienceCount  int
	ImpatienceWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.BackchannelMaxDuration <= 0 {
		c.BackchannelMaxDuration = time.Second
	}
	if c.BackchannelMaxIntensity <= 0 {
		c.BackchannelMaxIntensity = 0.04
	}
	if c.BargeInThreshold <= 0 {
		c.BargeInThreshold = 300 * time.Millisecond
	}
	if c.ModerateIntensity <= 0 {
		c.ModerateIntensity = 0.03
	}
	if c.ImpatienceCount <= 0 {
		c.ImpatienceCount = 3
	}
	if c.ImpatienceWindow <= 0 {
		c.ImpatienceWindow = 30 * time.Second
	}
	return c
}

// Control phrase lexicons. Matched against the lowercased partial transcript.
var (
	pausePhrases = []string{
		"wait", "hold on", "one second", "one sec", "hang on", "pause",
		"give me a moment",
	}

	correctionPhrases = []string{
		"no, i meant", "no i meant", "that's not", "that is not",
		"i said", "not that", "that's wrong", "no, not",
	}

	topicShiftPhrases = []string{
		"actually", "what about", "speaking of", "by the way",
		"on another note", "different question",
	}

	resumePhrases = []string{
		"continue", "resume", "go on", "keep going", "go ahead", "carry on",
	}

	// acknowledgmentLexicon covers the plausible backchannel vocabulary.
	acknowledgmentLexicon = []string{
		"mm-hmm", "mmhmm", "mhm", "uh-huh", "uh huh", "yeah", "yes", "yep",
		"right", "okay", "ok", "sure", "i see", "got it", "hmm", "mm",
	}
)

// Classifier labels speech bursts while the assistant is speaking and
// records interruptions on the conversation context. Runs on the tick loop;
// not safe for concurrent use.
type Classifier struct {
	cfg   Config
	convo *ConversationContext
}

// NewClassifier creates a classifier over the shared conversation context.
func NewClassifier(cfg Config, convo *ConversationContext) *Classifier {
	return &Classifier{cfg: cfg.withDefaults(), convo: convo}
}

// Classify labels one burst. ok is false when the burst is too short and
// quiet to mean anything yet; the caller keeps accumulating. Evaluated only
// while assistant audio is active.
func (c *Classifier) Classify(b Burst, chunkIndex int, now time.Time) (Event, bool) {
	transcript := strings.ToLower(strings.TrimSpace(b.Transcript))

	if matchesAny(transcript, pausePhrases) {
		return Event{Kind: Pause, Confidence: 0.9, ChunkIndex: chunkIndex, At: now}, true
	}
	if matchesAny(transcript, correctionPhrases) {
		return Event{Kind: Correction, Confidence: 0.85, ChunkIndex: chunkIndex, At: now}, true
	}
	if matchesAny(transcript, topicShiftPhrases) {
		return Event{Kind: TopicShift, Confidence: 0.8, ChunkIndex: chunkIndex, At: now}, true
	}

	if b.Duration < c.cfg.BackchannelMaxDuration &&
		b.Intensity <= c.cfg.BackchannelMaxIntensity &&
		plausibleAcknowledgment(transcript) {
		c.convo.RecordBackchannelHeard(now)
		return Event{Kind: Backchannel, Confidence: 0.7, ChunkIndex: chunkIndex, At: now}, true
	}

	if b.Duration >= c.cfg.BargeInThreshold && b.Intensity >= c.cfg.ModerateIntensity {
		c.convo.RecordInterruption(now)
		return Event{Kind: Interruption, Confidence: 0.75, ChunkIndex: chunkIndex, At: now}, true
	}

	return Event{}, false
}

// Impatient reports whether enough interruptions landed inside the rolling
// window. Advisory only; it never changes playback state.
func (c *Classifier) Impatient(now time.Time) bool {
	return c.convo.InterruptionsWithin(c.cfg.ImpatienceWindow, now) >= c.cfg.ImpatienceCount
}

// MatchesResume reports whether the burst is a resume command for a paused
// session. The caller applies the shortened minimum-utterance duration so
// brief control words are not discarded as noise.
func (c *Classifier) MatchesResume(transcript string) bool {
	return matchesAny(strings.ToLower(strings.TrimSpace(transcript)), resumePhrases)
}

// plausibleAcknowledgment accepts a known acknowledgment or an empty
// transcript: a short quiet burst with no words yet is still a plausible
// "mm-hmm" by its phonetic envelope alone.
func plausibleAcknowledgment(transcript string) bool {
	if transcript == "" {
		return true
	}
	cleaned := strings.Trim(transcript, ".,!? ")
	for _, ack := range acknowledgmentLexicon {
		if cleaned == ack {
			return true
		}
	}
	return false
}

func matchesAny(transcript string, phrases []string) bool {
	if transcript == "" {
		return false
	}
	for _, p := range phrases {
		if strings.Contains(transcript, p) {
			return true
		}
	}
	return false
}
