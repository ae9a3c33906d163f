// Package turn drives a story turn through its full pipeline: input intake,
// warm analysis, deep retrieval, payload assembly, generation, player
// review, and narrative integration. Exactly one turn is in flight at a
// time.
package turn

import (
	"errors"
	"time"
)

// State is a stop in the turn pipeline.
type State string

const (
	StateIdle                 State = "idle"
	StateUserInput            State = "user_input"
	StateWarmAnalysis         State = "warm_analysis"
	StateWorldStateReport     State = "world_state_report"
	StateDeepQueries          State = "deep_queries"
	StateColdDistillation     State = "cold_distillation"
	StatePayloadAssembly      State = "payload_assembly"
	StateGenerationCall       State = "generation_call"
	StateOfflineMode          State = "offline_mode"
	StateQualityCheckpoint    State = "quality_checkpoint"
	StateNarrativeIntegration State = "narrative_integration"
)

// ErrInvalidTurnTransition is returned for a pipeline move the state
// machine does not allow.
var ErrInvalidTurnTransition = errors.New("invalid turn state transition")

// transitions is the authoritative edge set of the turn state machine.
var transitions = map[State][]State{
	StateIdle:             {StateUserInput},
	StateUserInput:        {StateWarmAnalysis, StateIdle},
	StateWarmAnalysis:     {StateWorldStateReport, StateIdle},
	StateWorldStateReport: {StateDeepQueries, StateIdle},
	StateDeepQueries:      {StateColdDistillation, StateIdle},
	StateColdDistillation: {StatePayloadAssembly, StateIdle},
	StatePayloadAssembly:  {StateGenerationCall, StateIdle},

	// Generation can fall into offline mode and climb back out; a hard
	// failure abandons the turn.
	StateGenerationCall: {StateQualityCheckpoint, StateOfflineMode, StateIdle},
	StateOfflineMode:    {StateGenerationCall, StateIdle},

	// Rejection re-enters the pipeline: regeneration replays the
	// generation call on the identical payload, editing the previous
	// input restarts warm analysis. An abort abandons the pending draft
	// and returns the pipeline to idle.
	StateQualityCheckpoint:    {StateNarrativeIntegration, StateGenerationCall, StateWarmAnalysis, StateIdle},
	StateNarrativeIntegration: {StateIdle},
}

// CanTransition reports whether the state machine allows moving from one
// state to another.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StepRecord is one executed transition with its side-effect description,
// kept for the persisted turn trace.
type StepRecord struct {
	State State     `json:"state"`
	Note  string    `json:"note"`
	At    time.Time `json:"at"`
}
