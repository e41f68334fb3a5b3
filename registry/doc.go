// Package registry loads and caches the tool list advertised by a remote MCP
// server and classifies each tool into a fixed category derived from its
// name. The list is fetched once during session initialization and is
// read-only afterwards, so all accessors are safe for concurrent use.
package registry
