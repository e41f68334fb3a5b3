// Package agent implements the query orchestrator: given a natural-language
// question it alternates model rounds and tool executions over an
// initialized session until the model produces a final answer or the round
// limit is hit. Each Execute call owns a private transcript; the only shared
// state is the immutable session, so concurrent queries are safe.
package agent
