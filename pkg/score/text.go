package score

import "strings"

// Sub-score weights. They sum to 1.0, so the weighted sum needs no
// renormalization.
const (
	weightSyntactic = 0.4
	weightPragmatic = 0.3
	weightLength    = 0.2
	weightQuestion  = 0.1
)

var whWords = map[string]bool{
	"what": true, "where": true, "when": true, "who": true, "whom": true,
	"whose": true, "why": true, "which": true, "how": true,
}

var auxStems = map[string]bool{
	"is": true, "are": true, "am": true, "was": true, "were": true,
	"do": true, "does": true, "did": true,
	"can": true, "could": true, "will": true, "would": true,
	"should": true, "shall": true, "may": true, "might": true,
	"have": true, "has": true, "had": true,
}

// danglingConnectives are words an utterance does not naturally end on;
// trailing one of these strongly suggests the speaker is mid-thought.
var danglingConnectives = map[string]bool{
	"and": true, "but": true, "or": true, "so": true, "because": true,
	"if": true, "that": true, "then": true, "which": true, "while": true,
	"with": true, "to": true, "of": true, "for": true, "in": true,
	"on": true, "at": true, "by": true, "from": true, "about": true,
	"the": true, "a": true, "an": true,
}

// acknowledgments are phrases that close a turn pragmatically.
var acknowledgments = []string{
	"sounds good", "got it", "that works", "thank you", "thanks",
	"no problem", "that's all", "okay thanks", "perfect",
}

var directiveStarts = []string{
	"please", "tell me", "show me", "give me", "let's",
}

var tagQuestions = []string{
	"right?", "okay?", "isn't it?", "don't you?", "aren't you?",
	"won't you?", "correct?", "yeah?",
}

// Heuristic is the lexicon-based completion scorer: a weighted combination
// of syntactic completeness, pragmatic completeness, utterance length, and
// question-pattern detection.
type Heuristic struct{}

// NewHeuristic creates the default heuristic completion scorer.
func NewHeuristic() *Heuristic { return &Heuristic{} }

// ScoreCompletion returns the probability the transcript is a complete
// thought. An empty transcript scores a neutral 0.5.
func (h *Heuristic) ScoreCompletion(transcript string) float64 {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return 0.5
	}

	lower := strings.ToLower(text)
	words := tokenize(lower)

	return weightSyntactic*syntacticScore(lower, words) +
		weightPragmatic*pragmaticScore(lower, words) +
		weightLength*lengthScore(len(words)) +
		weightQuestion*questionScore(lower, words)
}

// syntacticScore looks at how the utterance ends: terminal punctuation is a
// strong completion cue, a trailing ellipsis or dangling connective the
// opposite.
func syntacticScore(lower string, words []string) float64 {
	if strings.HasSuffix(lower, "...") || strings.HasSuffix(lower, "…") {
		return 0.25
	}
	if len(words) > 0 && danglingConnectives[words[len(words)-1]] {
		return 0.2
	}
	if strings.HasSuffix(lower, ".") || strings.HasSuffix(lower, "?") || strings.HasSuffix(lower, "!") {
		return 1.0
	}
	return 0.4
}

// pragmaticScore rewards explicit discourse signals: question stems,
// directives, and closing acknowledgments score high; a question word buried
// mid-utterance scores moderate.
func pragmaticScore(lower string, words []string) float64 {
	if len(words) == 0 {
		return 0.5
	}
	first := words[0]
	if whWords[first] || auxStems[first] {
		return 0.8
	}
	for _, d := range directiveStarts {
		if strings.HasPrefix(lower, d) {
			return 0.8
		}
	}
	if len(words) > 1 {
		for _, ack := range acknowledgments {
			if strings.Contains(lower, ack) {
				return 0.8
			}
		}
	}
	for _, w := range words {
		if whWords[w] {
			return 0.6
		}
	}
	return 0.5
}

// lengthScore buckets word count: very short utterances are usually
// backchannels or fragments, mid-length ones typical complete turns.
func lengthScore(wordCount int) float64 {
	switch {
	case wordCount <= 2:
		return 0.4
	case wordCount <= 10:
		return 0.8
	case wordCount <= 25:
		return 0.75
	default:
		return 0.6
	}
}

// questionScore detects well-formed question shapes.
func questionScore(lower string, words []string) float64 {
	for _, tag := range tagQuestions {
		if len(words) > 1 && strings.HasSuffix(lower, tag) {
			return 0.9
		}
	}
	if strings.HasSuffix(lower, "?") && len(words) > 0 {
		if whWords[words[0]] {
			return 0.95
		}
		if auxStems[words[0]] {
			return 0.9
		}
	}
	return 0.5
}

// tokenize splits on whitespace and strips punctuation from word edges.
func tokenize(lower string) []string {
	fields := strings.Fields(lower)
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.Trim(f, ".,!?;:\"'()[]")
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}
