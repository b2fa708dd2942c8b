// Package report exports run counters for external consumers. The only
// output today is a Prometheus text-exposition file for a textfile
// collector; brief rendering lives outside this repository and consumes the
// store's week-query surface directly.
package report
