// Package queue persists phase records and the queue configuration in
// SQLite. It provides conditional status updates so concurrent coordinator
// ticks cannot double-apply a transition; business rules live in the phase
// service, not here.
package queue
