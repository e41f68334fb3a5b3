package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/searchagent/logging"
)

// SSEClientOptions configure the SSE transport.
type SSEClientOptions struct {
	// Timeout bounds each individual request including the handshake.
	Timeout time.Duration
	// HTTPClient used for the event stream and message posts.
	HTTPClient *http.Client
	// Logger receives transport-level diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// SSEClient talks to a tool server over Server-Sent Events: a persistent GET
// stream delivers the message endpoint and all responses, while requests are
// POSTed to the announced endpoint.
type SSEClient struct {
	streamURL  string
	timeout    time.Duration
	httpClient *http.Client
	logger     logging.Logger

	mu            sync.Mutex
	endpoint      string
	endpointReady chan struct{}
	cancelStream  context.CancelFunc
	pending       *pending
	started       bool
	closed        bool
}

// NewSSEClient creates a client for the given event-stream URL
// (e.g. http://localhost:9900/sse).
func NewSSEClient(streamURL string, optFns ...func(o *SSEClientOptions)) *SSEClient {
	opts := SSEClientOptions{
		Timeout:    30 * time.Second,
		HTTPClient: http.DefaultClient,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &SSEClient{
		streamURL:     streamURL,
		timeout:       opts.Timeout,
		httpClient:    opts.HTTPClient,
		logger:        opts.Logger,
		endpointReady: make(chan struct{}),
		pending:       newPending(),
	}
}

// Initialize opens the event stream, waits for the server to announce its
// message endpoint, then performs the protocol handshake.
func (c *SSEClient) Initialize(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	select {
	case <-c.endpointReady:
	case <-waitCtx.Done():
		return fmt.Errorf("mcp: server announced no message endpoint: %w", waitCtx.Err())
	}

	if _, err := c.call(ctx, "initialize", initializeParams()); err != nil {
		return fmt.Errorf("mcp initialize handshake: %w", err)
	}
	return c.notify(ctx, "notifications/initialized", nil)
}

func (c *SSEClient) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if c.started {
		return nil
	}

	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.streamURL, nil)
	if err != nil {
		cancel()
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("open event stream %s: %w", c.streamURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("open event stream %s: unexpected status %d", c.streamURL, resp.StatusCode)
	}

	c.cancelStream = cancel
	c.started = true

	go c.listen(resp.Body)

	return nil
}

// listen parses the SSE stream, routing endpoint announcements and JSON-RPC
// responses until the stream ends.
func (c *SSEClient) listen(body io.ReadCloser) {
	defer body.Close()
	defer c.pending.close()

	reader := bufio.NewReader(body)
	var event, data string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data != "" {
				data += "\n"
			}
			data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "":
			if data != "" {
				c.dispatch(event, data)
			}
			event, data = "", ""
		}
	}
}

func (c *SSEClient) dispatch(event, data string) {
	switch event {
	case "endpoint":
		endpoint, err := c.resolveEndpoint(data)
		if err != nil {
			c.logger.Warn("mcp: invalid endpoint announcement", "data", data, "error", err.Error())
			return
		}
		c.mu.Lock()
		first := c.endpoint == ""
		c.endpoint = endpoint
		c.mu.Unlock()
		if first {
			close(c.endpointReady)
		}
	case "message", "":
		var resp rpcResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			c.logger.Warn("mcp: dropping unparseable server event", "error", err.Error())
			return
		}
		if resp.ID == nil {
			return // server notification
		}
		c.pending.resolve(&resp)
	}
}

// resolveEndpoint interprets the announced message path relative to the stream URL.
func (c *SSEClient) resolveEndpoint(raw string) (string, error) {
	base, err := url.Parse(c.streamURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *SSEClient) post(ctx context.Context, req rpcRequest) error {
	c.mu.Lock()
	endpoint := c.endpoint
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClientClosed
	}
	if endpoint == "" {
		return fmt.Errorf("mcp: message endpoint not announced yet")
	}

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("mcp: message post rejected with status %d", resp.StatusCode)
	}
	return nil
}

func (c *SSEClient) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	id, ch, err := c.pending.next()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.post(ctx, newRequest(id, method, params)); err != nil {
		c.pending.drop(id)
		return nil, err
	}

	resp, err := await(ctx, ch)
	if err != nil {
		c.pending.drop(id)
		return nil, err
	}
	return resp, nil
}

func (c *SSEClient) notify(ctx context.Context, method string, params interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.post(ctx, rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

// ListTools fetches the server's capability list.
func (c *SSEClient) ListTools(ctx context.Context) ([]ToolInfo, error) {
	resp, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	return parseToolList(resp.Result)
}

// CallTool invokes one named tool with the given arguments.
func (c *SSEClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*ToolResult, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	resp, err := c.call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	return parseToolResult(resp.Result)
}

// Close tears down the event stream and wakes any in-flight waiters.
func (c *SSEClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancelStream
	c.mu.Unlock()

	c.pending.close()
	if cancel != nil {
		cancel()
	}
	return nil
}
