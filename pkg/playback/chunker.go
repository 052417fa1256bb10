// Package playback segments streamed reply text into speakable chunks and
// plays them strictly in order through a session state machine that supports
// pause, resume, and abort without audible repetition or gaps.
package playback

import (
	"strings"
	"time"
	"unicode"
)

// Chunk is one speakable segment of a reply. Indices are assigned in
// ascending order per session and never reused.
type Chunk struct {
	Index int
	Text  string
}

// ChunkerConfig bounds segmentation. Zero values select defaults.
type ChunkerConfig struct {
	// MinChunkLen is the buffered length required before a strong sentence
	// boundary emits a chunk. Default 60.
	MinChunkLen int

	// MaxChunkLen forces a split even without a strong boundary. Default 220.
	MaxChunkLen int

	// MaxLatency forces a split once text has been buffered this long,
	// bounding time-to-first-audio. Default 1800ms.
	MaxLatency time.Duration
}

func (c ChunkerConfig) withDefaults() ChunkerConfig {
	if c.MinChunkLen <= 0 {
		c.MinChunkLen = 60
	}
	if c.MaxChunkLen <= 0 {
		c.MaxChunkLen = 220
	}
	if c.MaxLatency <= 0 {
		c.MaxLatency = 1800 * time.Millisecond
	}
	return c
}

// abbreviations whose trailing period is not a sentence boundary.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"approx": true, "dept": true, "inc": true, "no": true,
}

// Chunker accumulates streamed text and emits chunks at sentence-like
// boundaries. Not safe for concurrent use; the tick loop owns it.
type Chunker struct {
	cfg        ChunkerConfig
	buf        []rune
	bufferedAt time.Time
	next       int
}

// NewChunker creates a chunker.
func NewChunker(cfg ChunkerConfig) *Chunker {
	return &Chunker{cfg: cfg.withDefaults()}
}

// Push appends streamed text and returns any chunks it completed.
func (c *Chunker) Push(text string, now time.Time) []Chunk {
	if text == "" {
		return c.drain(now)
	}
	if len(c.buf) == 0 {
		c.bufferedAt = now
	}
	c.buf = append(c.buf, []rune(text)...)
	return c.drain(now)
}

// Tick re-evaluates the latency ceiling without new text.
func (c *Chunker) Tick(now time.Time) []Chunk {
	return c.drain(now)
}

// Flush emits whatever remains. Called when the reply stream ends.
func (c *Chunker) Flush() []Chunk {
	text := strings.TrimSpace(string(c.buf))
	c.buf = nil
	if text == "" {
		return nil
	}
	return []Chunk{c.emit(text)}
}

// Pending returns the currently buffered, not-yet-emitted text.
func (c *Chunker) Pending() string {
	return strings.TrimSpace(string(c.buf))
}

// Reset discards buffered text and restarts chunk numbering for a new
// session.
func (c *Chunker) Reset() {
	c.buf = nil
	c.next = 0
}

func (c *Chunker) drain(now time.Time) []Chunk {
	var out []Chunk
	for {
		chunk, ok := c.cut(now)
		if !ok {
			return out
		}
		out = append(out, chunk)
	}
}

// cut tries to carve one chunk off the front of the buffer.
func (c *Chunker) cut(now time.Time) (Chunk, bool) {
	if len(c.buf) == 0 {
		return Chunk{}, false
	}

	// Preferred split: first strong boundary once enough text is buffered.
	if i := c.strongBoundary(); i >= 0 && i+1 >= c.cfg.MinChunkLen {
		return c.take(i+1, now), true
	}

	overLength := len(c.buf) >= c.cfg.MaxChunkLen
	overDue := now.Sub(c.bufferedAt) >= c.cfg.MaxLatency
	if !overLength && !overDue {
		return Chunk{}, false
	}

	// Forced split: best available boundary, shortest chunk wins the race
	// against the ceiling. A strong boundary below the minimum length is
	// still better than a mid-clause cut.
	if i := c.strongBoundary(); i >= 0 && i < c.cfg.MaxChunkLen {
		return c.take(i+1, now), true
	}
	if i := c.weakBoundary(); i >= 0 {
		return c.take(i+1, now), true
	}
	if overLength {
		if i := c.lastSpaceBefore(c.cfg.MaxChunkLen); i > 0 {
			return c.take(i, now), true
		}
		return c.take(c.cfg.MaxChunkLen, now), true
	}
	// Overdue with no boundary at all: speak everything buffered.
	return c.take(len(c.buf), now), true
}

func (c *Chunker) take(n int, now time.Time) Chunk {
	text := strings.TrimSpace(string(c.buf[:n]))
	c.buf = c.buf[n:]
	c.bufferedAt = now
	return c.emit(text)
}

func (c *Chunker) emit(text string) Chunk {
	chunk := Chunk{Index: c.next, Text: text}
	c.next++
	return chunk
}

// strongBoundary returns the index of the first sentence-ending rune that is
// followed by whitespace, or -1. Periods inside decimals never qualify (no
// whitespace follows them) and abbreviation and initial periods are skipped.
func (c *Chunker) strongBoundary() int {
	for i := 0; i < len(c.buf)-1; i++ {
		r := c.buf[i]
		if r != '.' && r != '?' && r != '!' {
			continue
		}
		if !unicode.IsSpace(c.buf[i+1]) {
			continue
		}
		if r == '.' && c.periodIsNotTerminal(i) {
			continue
		}
		return i
	}
	return -1
}

// periodIsNotTerminal reports whether the period at i ends an abbreviation
// or a single-letter initial rather than a sentence.
func (c *Chunker) periodIsNotTerminal(i int) bool {
	j := i
	for j > 0 && unicode.IsLetter(c.buf[j-1]) {
		j--
	}
	word := strings.ToLower(string(c.buf[j:i]))
	if len(word) == 1 {
		return true
	}
	return abbreviations[word]
}

// weakBoundary returns the index of the last clause separator followed by
// whitespace within the max-length window, or -1.
func (c *Chunker) weakBoundary() int {
	limit := len(c.buf)
	if limit > c.cfg.MaxChunkLen {
		limit = c.cfg.MaxChunkLen
	}
	for i := limit - 1; i > 0; i-- {
		r := c.buf[i]
		if (r == ',' || r == ';' || r == ':') &&
			i+1 < len(c.buf) && unicode.IsSpace(c.buf[i+1]) {
			return i
		}
	}
	return -1
}

func (c *Chunker) lastSpaceBefore(limit int) int {
	if limit > len(c.buf) {
		limit = len(c.buf)
	}
	for i := limit - 1; i > 0; i-- {
		if unicode.IsSpace(c.buf[i]) {
			return i
		}
	}
	return -1
}
