// Package session owns the long-lived resources shared by all queries: the
// model handle, the MCP transport and the cached tool registry. A session is
// initialized at most once (even under racing first callers), is read-only
// afterwards, and must be explicitly closed.
package session
