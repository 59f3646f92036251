// Package notifications posts human-readable phase updates to an issue
// tracker webhook. Calls are fire and forget: failures are logged by callers
// and never propagated into the state machine.
package notifications
