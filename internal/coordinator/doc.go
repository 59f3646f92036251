// Package coordinator drives sequential phase execution. A single background
// loop polls the executor's job ledger for terminal states, applies results
// through the phase service, and dispatches newly eligible phases unless the
// queue is paused. Ticks are not re-entrant; the next tick waits for the
// previous one to finish.
package coordinator
