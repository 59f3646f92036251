// Package phase implements the queue state machine: batch submission,
// validated status transitions, successor promotion, failure propagation to
// dependents, cancellation, and manual retry. Every performed mutation emits
// a broadcast event and an optional tracker notification.
package phase
