// Package pipeline is the orchestrator: it drives one run from ranking
// fetch through the four scoring stages and the override gate, persisting
// every stage's record through the store before the next stage reads it.
//
// Per-item failures are isolated: a failed fetch or stage write marks that
// item failed in the run summary and excludes it from later stages without
// aborting the run. Dry-run mode executes every stage but suppresses all
// store writes.
package pipeline
