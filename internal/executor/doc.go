// Package executor talks to the external execution subsystem that performs a
// phase's actual work. The coordinator treats payloads and job semantics as
// opaque: it only dispatches work and polls the job ledger for terminal
// states.
package executor
