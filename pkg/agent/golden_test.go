package agent

import (
	"expvar"
	"fmt"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/cadencevoice/duplex-go/pkg/ai/llm"
)

// TestEngine_ConversationFlow walks a scripted multi-turn conversation: the
// user asks, cuts the answer off three times in a row, and the fourth reply
// request carries the concise hint. The last reply plays to completion and
// the hint clears with the interruption streak.
func TestEngine_ConversationFlow(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, harnessOpts{
		reply:      "Here is the first part of the answer. Here comes the second part of it. And this final part wraps everything up.",
		frameDelay: 2 * time.Millisecond,
		playDelay:  5 * time.Millisecond,
	})

	questions := []string{
		"What time is it?",
		"Where is the meeting room?",
		"Who approved the budget?",
		"When does the flight leave?",
	}

	for i, q := range questions {
		starts := h.device.PlayStarts()
		h.say(q, time.Second)
		h.waitFor(fmt.Sprintf("reply %d requested", i+1), func() bool {
			return len(h.chat.Requests()) == i+1
		})
		h.waitFor(fmt.Sprintf("reply %d playing", i+1), func() bool {
			return h.device.PlayStarts() > starts
		})

		if i == len(questions)-1 {
			break
		}

		// Cut the answer off. The barge-in speech doubles as the lead-in
		// for the next question.
		h.stream().EmitPartial("please stop talking now")
		time.Sleep(30 * time.Millisecond)
		h.speak(time.Second)
		h.waitFor(fmt.Sprintf("reply %d aborted", i+1), func() bool {
			return h.engine.Metrics().RepliesAborted.Value() == int64(i+1)
		})
	}

	h.waitFor("final reply completion", func() bool {
		return h.engine.Metrics().RepliesCompleted.Value() == 1
	})

	reqs := h.chat.Requests()
	is.Equal(len(reqs), 4)

	// The first three requests ride the default register; the fourth lands
	// after three interruptions inside the rolling window.
	is.Equal(reqs[0].Hint, llm.HintNone)
	is.Equal(reqs[1].Hint, llm.HintNone)
	is.Equal(reqs[2].Hint, llm.HintNone)
	is.Equal(reqs[3].Hint, llm.HintConcise)
	is.Equal(h.engine.Metrics().ConciseHints.Value(), int64(1))

	// History accumulates across aborted turns too: the reply text was fully
	// generated even when its playback was cut short.
	is.Equal(len(reqs[3].Messages), 7)
	for i, want := range questions {
		is.Equal(reqs[i].Messages[2*i].Role, llm.RoleUser)
		is.Equal(reqs[i].Messages[2*i].Content, want)
	}

	is.Equal(h.engine.State(), StateListening)
	is.Equal(h.engine.Metrics().TurnsTaken.Value(), int64(4))
	is.Equal(h.engine.Metrics().RepliesAborted.Value(), int64(3))
	interruptions := h.engine.Metrics().Interruptions.Get("interruption").(*expvar.Int)
	is.Equal(interruptions.Value(), int64(3))
	is.True(!h.device.Overlapped())
}
