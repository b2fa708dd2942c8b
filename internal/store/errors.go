package store

import (
	"fmt"
	"strings"
)

// StoreError reports a failed store operation. The enclosing transaction has
// been rolled back; no partial write remains.
type StoreError struct {
	Op  string // mutation or query that failed
	Err error  // underlying cause, may be nil for contract violations
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store: %s", e.Op)
}

func (e *StoreError) Unwrap() error { return e.Err }

// SchemaError reports that the database file is missing expected tables.
// Schema creation is the init command's job; Open never creates tables.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("store: schema missing tables: %s (run init first)",
		strings.Join(e.Missing, ", "))
}
