// Package catalog loads the read-only pattern template catalog consumed by
// the pattern mining stage. Each template pairs trigger predicates (keyword
// containment, numeric minimums) with confidence-contribution weights.
// The catalog is loaded once per run and treated as immutable configuration.
package catalog
