// Package logging centralizes slog logger construction and the attribute
// helpers shared across conveyor components.
package logging
