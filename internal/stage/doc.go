// Package stage implements the four scoring agents that run, in fixed order,
// over every fetched item: ambiguity detection, pattern mining, risk
// analysis, and the override gate.
//
// Each agent is a pure function of (item, prior-stage output, configuration).
// No agent calls another, touches the clock, or draws randomness: identical
// inputs always produce bit-identical scores, which is what makes a run
// replayable from the persisted records. state.go holds the per-item state
// machine the orchestrator drives.
package stage
