// Package api defines the DTOs and read-side services backing the control
// plane HTTP surface and the CLI.
package api
