package voiceloop

import (
	"strings"

	"github.com/murmurlab/voiceloop/providers"
)

// turnState is the aggregator's position in the current utterance.
type turnState int

const (
	stateIdle turnState = iota
	stateAccumulating
	stateFinalized
)

func (s turnState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateAccumulating:
		return "accumulating"
	case stateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// AggregatorAction tells the caller what to do with an observed result.
type AggregatorAction int

const (
	// ActionDrop means the result was a duplicate or empty and must be ignored.
	ActionDrop AggregatorAction = iota
	// ActionRelayPartial means the text should be relayed to the client as a
	// live partial transcript.
	ActionRelayPartial
	// ActionCompleteTurn means the text is a finalized user turn and exactly
	// one completion pipeline run must be started for it.
	ActionCompleteTurn
)

// TurnAggregator converts a stream of partial/final transcription results
// into discrete conversational turns. It suppresses consecutive duplicate
// partials and duplicate finals, and resolves empty finals against the last
// partial so the user always sees some content echoed.
//
// The aggregator holds no locks and performs no I/O; it must only be driven
// from a single goroutine.
type TurnAggregator struct {
	state       turnState
	lastPartial string
	lastFinal   string
}

// NewTurnAggregator returns an aggregator in the idle state.
func NewTurnAggregator() *TurnAggregator {
	return &TurnAggregator{state: stateIdle}
}

// Observe feeds one transcription result through the state machine and
// returns the action to take plus the text that action applies to.
func (a *TurnAggregator) Observe(result providers.TranscriptionResult) (AggregatorAction, string) {
	text := strings.TrimSpace(result.Text)

	if !result.IsFinal {
		return a.observePartial(text)
	}
	return a.observeFinal(text)
}

func (a *TurnAggregator) observePartial(text string) (AggregatorAction, string) {
	if text == "" || text == a.lastPartial {
		return ActionDrop, ""
	}
	a.lastPartial = text
	a.state = stateAccumulating
	return ActionRelayPartial, text
}

func (a *TurnAggregator) observeFinal(text string) (AggregatorAction, string) {
	// Backends occasionally re-emit the final for an utterance; only the
	// first may trigger a pipeline run.
	if text != "" && text == a.lastFinal {
		return ActionDrop, ""
	}

	resolved := text
	if resolved == "" {
		resolved = a.lastPartial
	}
	if resolved == "" {
		resolved = a.lastFinal
	}
	if resolved == "" {
		// Nothing to echo at all; the turn never happened.
		return ActionDrop, ""
	}

	a.lastFinal = resolved
	// Finalized is transient: the next partial moves back to accumulating.
	a.lastPartial = ""
	a.state = stateFinalized
	return ActionCompleteTurn, resolved
}

// State exposes the current state name for logging.
func (a *TurnAggregator) State() string {
	return a.state.String()
}
