package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseServer emulates an SSE tool server: the GET stream announces the message
// endpoint and carries every response; requests arrive as POSTs.
type sseServer struct {
	*httptest.Server
	outbound chan string
}

func newSSEServer(t *testing.T) *sseServer {
	t.Helper()
	srv := &sseServer{outbound: make(chan string, 16)}

	mux := http.NewServeMux()
	mux.HandleFunc("/sse", srv.stream)
	mux.HandleFunc("/messages", srv.message)
	srv.Server = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func (s *sseServer) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: endpoint\ndata: /messages\n\n")
	flusher.Flush()

	for {
		select {
		case data := <-s.outbound:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *sseServer) message(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		Method string                 `json:"method"`
		Params map[string]interface{} `json:"params"`
		ID     interface{}            `json:"id"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)

	if req.ID == nil {
		return // notification
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "initialize":
		resp.Result = json.RawMessage(`{"protocolVersion":"2024-11-05","serverInfo":{"name":"fake-sse-server"}}`)
	case "tools/list":
		resp.Result = json.RawMessage(`{"tools":[{"name":"get_cluster_state","description":"Cluster state","inputSchema":{"type":"object"}}]}`)
	case "tools/call":
		name, _ := req.Params["name"].(string)
		payload, _ := json.Marshal(map[string]interface{}{
			"content": []map[string]interface{}{{"type": "text", "text": "sse result of " + name}},
		})
		resp.Result = payload
	default:
		resp.Error = &RPCError{Code: -32601, Message: "method not found"}
	}

	data, _ := json.Marshal(resp)
	s.outbound <- string(data)
}

func newTestSSEClient(t *testing.T, srv *sseServer) *SSEClient {
	t.Helper()
	client := NewSSEClient(srv.URL+"/sse", func(o *SSEClientOptions) {
		o.Timeout = 2 * time.Second
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSSEInitialize(t *testing.T) {
	srv := newSSEServer(t)
	client := newTestSSEClient(t, srv)

	require.NoError(t, client.Initialize(context.Background()))

	// The announced relative endpoint is resolved against the stream URL.
	client.mu.Lock()
	endpoint := client.endpoint
	client.mu.Unlock()
	assert.Equal(t, srv.URL+"/messages", endpoint)
}

func TestSSEListTools(t *testing.T) {
	srv := newSSEServer(t)
	client := newTestSSEClient(t, srv)
	require.NoError(t, client.Initialize(context.Background()))

	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "get_cluster_state", tools[0].Name)
}

func TestSSECallTool(t *testing.T) {
	srv := newSSEServer(t)
	client := newTestSSEClient(t, srv)
	require.NoError(t, client.Initialize(context.Background()))

	result, err := client.CallTool(context.Background(), "get_cluster_state", map[string]interface{}{"metric": "health"})
	require.NoError(t, err)
	assert.Equal(t, "sse result of get_cluster_state", result.Content)
}

func TestSSERPCError(t *testing.T) {
	srv := newSSEServer(t)
	client := newTestSSEClient(t, srv)
	require.NoError(t, client.Initialize(context.Background()))

	_, err := client.call(context.Background(), "no_such_method", nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
}

func TestSSEInitializeNoEndpoint(t *testing.T) {
	// A stream that never announces an endpoint must fail the handshake.
	silent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}))
	defer silent.Close()

	client := NewSSEClient(silent.URL, func(o *SSEClientOptions) {
		o.Timeout = 100 * time.Millisecond
	})
	defer client.Close()

	err := client.Initialize(context.Background())
	assert.ErrorContains(t, err, "no message endpoint")
}

func TestSSEInitializeBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewSSEClient(srv.URL)
	err := client.Initialize(context.Background())
	assert.ErrorContains(t, err, "unexpected status 404")
}

func TestSSECloseFailsFast(t *testing.T) {
	srv := newSSEServer(t)
	client := newTestSSEClient(t, srv)
	require.NoError(t, client.Initialize(context.Background()))

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err := client.ListTools(context.Background())
	assert.ErrorIs(t, err, ErrClientClosed)
}
