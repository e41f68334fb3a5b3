package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/hupe1980/searchagent/logging"
)

// StdioClientOptions configure the stdio transport.
type StdioClientOptions struct {
	// Timeout bounds each individual request including the handshake.
	Timeout time.Duration
	// Logger receives transport-level diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// StdioClient talks to a tool server spawned as a subprocess, exchanging
// newline-delimited JSON-RPC messages over its stdin/stdout.
type StdioClient struct {
	command string
	args    []string
	timeout time.Duration
	logger  logging.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	pending *pending
	started bool
	closed  bool
}

// NewStdioClient creates a client that will spawn the given command on
// Initialize. The process is terminated by Close.
func NewStdioClient(command string, args []string, optFns ...func(o *StdioClientOptions)) *StdioClient {
	opts := StdioClientOptions{
		Timeout: 30 * time.Second,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &StdioClient{
		command: command,
		args:    args,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		pending: newPending(),
	}
}

// Initialize spawns the server process and performs the protocol handshake.
func (c *StdioClient) Initialize(ctx context.Context) error {
	if err := c.start(ctx); err != nil {
		return err
	}
	if _, err := c.call(ctx, "initialize", initializeParams()); err != nil {
		return fmt.Errorf("mcp initialize handshake: %w", err)
	}
	return c.notify("notifications/initialized", nil)
}

// start spawns the subprocess and wires its pipes into the framing loop.
func (c *StdioClient) start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if c.started {
		return nil
	}

	cmd := exec.CommandContext(ctx, c.command, c.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start tool server %q: %w", c.command, err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.started = true

	go c.listen(stdout)

	return nil
}

// startIO wires pre-connected pipes instead of spawning a process. Used by
// in-process servers and tests.
func (c *StdioClient) startIO(stdin io.WriteCloser, stdout io.Reader) {
	c.mu.Lock()
	c.stdin = stdin
	c.started = true
	c.mu.Unlock()
	go c.listen(stdout)
}

// listen routes responses to their waiters until the stream ends.
func (c *StdioClient) listen(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			c.logger.Warn("mcp: dropping unparseable server line", "error", err.Error())
			continue
		}
		if resp.ID == nil {
			continue // server notification, nothing pending on it
		}
		c.pending.resolve(&resp)
	}
	c.pending.close()
}

func (c *StdioClient) write(req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.stdin == nil {
		return ErrClientClosed
	}
	_, err = c.stdin.Write(append(data, '\n'))
	return err
}

func (c *StdioClient) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	id, ch, err := c.pending.next()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.write(newRequest(id, method, params)); err != nil {
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

func (c *StdioClient) notify(method string, params interface{}) error {
	return c.write(rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

// ListTools fetches the server's capability list.
func (c *StdioClient) ListTools(ctx context.Context) ([]ToolInfo, error) {
	resp, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	return parseToolList(resp.Result)
}

// CallTool invokes one named tool with the given arguments.
func (c *StdioClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*ToolResult, error) {
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

// Close terminates the server process and wakes any in-flight waiters.
func (c *StdioClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	stdin := c.stdin
	cmd := c.cmd
	c.mu.Unlock()

	c.pending.close()
	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		return cmd.Process.Kill()
	}
	return nil
}
