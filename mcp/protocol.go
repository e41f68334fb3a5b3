package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	protocolVersion = "2024-11-05"
	clientName      = "searchagent"
	clientVersion   = "0.1.0"
)

// rpcRequest is a JSON-RPC 2.0 request or, when ID is nil, a notification.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      interface{} `json:"id,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      interface{}     `json:"id"`
}

// RPCError is a JSON-RPC error object reported by the tool server.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("mcp error (%d): %s", e.Code, e.Message)
}

// ToolInfo describes one remote tool as advertised by the server.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolResult is the normalized outcome of a tools/call invocation. Content
// concatenates the textual content blocks; IsError marks a backend-reported
// failure that arrived as a well-formed result rather than an RPC error.
type ToolResult struct {
	Content string
	IsError bool
}

func newRequest(id interface{}, method string, params interface{}) rpcRequest {
	return rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id}
}

func initializeParams() map[string]interface{} {
	return map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    clientName,
			"version": clientVersion,
		},
	}
}

// parseToolList decodes a tools/list result payload.
func parseToolList(result json.RawMessage) ([]ToolInfo, error) {
	var listResult struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(result, &listResult); err != nil {
		return nil, fmt.Errorf("decode tools/list result: %w", err)
	}
	return listResult.Tools, nil
}

// parseToolResult decodes a tools/call result payload into the normalized form.
func parseToolResult(result json.RawMessage) (*ToolResult, error) {
	var callResult struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("decode tools/call result: %w", err)
	}

	var sb strings.Builder
	for _, block := range callResult.Content {
		if block.Type != "text" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(block.Text)
	}
	return &ToolResult{Content: sb.String(), IsError: callResult.IsError}, nil
}
