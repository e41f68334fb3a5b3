// Package mcp implements a client for Model Context Protocol tool servers:
// JSON-RPC 2.0 framing with the initialize handshake, capability listing
// (tools/list) and invocation (tools/call). Two transports are provided,
// matching how tool servers are commonly deployed: a spawned subprocess
// speaking newline-delimited JSON over stdio, and a persistent HTTP SSE
// stream paired with a per-message POST endpoint.
package mcp
