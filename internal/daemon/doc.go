// Package daemon ties the queue store, phase service, coordinator, and HTTP
// control plane together behind a single-instance file lock.
package daemon
