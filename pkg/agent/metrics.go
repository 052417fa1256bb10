package agent

import (
	"expvar"
	"fmt"
)

// Metrics holds the engine's counters. They are expvar values created
// unregistered so multiple engines can coexist in one process; Publish
// exposes one engine's set globally.
type Metrics struct {
	TurnsTaken          *expvar.Int
	RepliesCompleted    *expvar.Int
	RepliesAborted      *expvar.Int
	Backchannels        *expvar.Int
	ConciseHints        *expvar.Int
	DiscardedResults    *expvar.Int
	TranscriptionErrors *expvar.Int
	Interruptions       *expvar.Map
	StateTransitions    *expvar.Map
}

func newMetrics() *Metrics {
	interruptions := &expvar.Map{}
	interruptions.Init()
	transitions := &expvar.Map{}
	transitions.Init()

	return &Metrics{
		TurnsTaken:          &expvar.Int{},
		RepliesCompleted:    &expvar.Int{},
		RepliesAborted:      &expvar.Int{},
		Backchannels:        &expvar.Int{},
		ConciseHints:        &expvar.Int{},
		DiscardedResults:    &expvar.Int{},
		TranscriptionErrors: &expvar.Int{},
		Interruptions:       interruptions,
		StateTransitions:    transitions,
	}
}

func (m *Metrics) recordTransition(from, to State) {
	key := fmt.Sprintf("%s_to_%s", from.String(), to.String())
	m.StateTransitions.Add(key, 1)
}

// Publish registers the metrics under the given prefix in the process-wide
// expvar namespace.
func (m *Metrics) Publish(prefix string) {
	expvar.Publish(prefix+".turns_taken", m.TurnsTaken)
	expvar.Publish(prefix+".replies_completed", m.RepliesCompleted)
	expvar.Publish(prefix+".replies_aborted", m.RepliesAborted)
	expvar.Publish(prefix+".backchannels", m.Backchannels)
	expvar.Publish(prefix+".concise_hints", m.ConciseHints)
	expvar.Publish(prefix+".discarded_results", m.DiscardedResults)
	expvar.Publish(prefix+".transcription_errors", m.TranscriptionErrors)
	expvar.Publish(prefix+".interruptions", m.Interruptions)
	expvar.Publish(prefix+".state_transitions", m.StateTransitions)
}
