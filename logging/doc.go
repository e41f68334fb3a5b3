// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. Domain helpers cover the two hot paths of the agent
// loop: model calls and tool executions.
package logging
