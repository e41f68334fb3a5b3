package mcp

import (
	"context"
	"errors"
	"sync"
)

// ErrClientClosed is returned for calls made after Close.
var ErrClientClosed = errors.New("mcp: client closed")

// Client is the transport-agnostic view of a tool server connection used by
// the registry and the executor.
type Client interface {
	// Initialize performs the protocol handshake. Must be called before
	// ListTools or CallTool; calling it more than once is an error handled
	// by the owning session, not here.
	Initialize(ctx context.Context) error

	// ListTools fetches the capability list in server-declared order.
	ListTools(ctx context.Context) ([]ToolInfo, error)

	// CallTool invokes one named tool. Server-side failures surface either
	// as *RPCError or as a ToolResult with IsError set.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*ToolResult, error)

	// Close releases the transport. Idempotent.
	Close() error
}

// pending correlates in-flight request ids to response channels. Shared by
// both transports; the listen side calls resolve, the request side waits on
// the returned channel.
type pending struct {
	mu      sync.Mutex
	seq     int64
	waiters map[int64]chan *rpcResponse
	closed  bool
}

func newPending() *pending {
	return &pending{waiters: make(map[int64]chan *rpcResponse)}
}

// next allocates a request id and its response channel.
func (p *pending) next() (int64, chan *rpcResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, nil, ErrClientClosed
	}
	p.seq++
	ch := make(chan *rpcResponse, 1)
	p.waiters[p.seq] = ch
	return p.seq, ch, nil
}

// resolve routes a response to its waiter, dropping unknown ids.
func (p *pending) resolve(resp *rpcResponse) {
	id, ok := resp.ID.(float64)
	if !ok {
		return
	}
	p.mu.Lock()
	ch, exists := p.waiters[int64(id)]
	if exists {
		delete(p.waiters, int64(id))
	}
	p.mu.Unlock()
	if exists {
		ch <- resp
	}
}

// drop abandons a waiter after timeout or cancellation.
func (p *pending) drop(id int64) {
	p.mu.Lock()
	delete(p.waiters, id)
	p.mu.Unlock()
}

// close marks the map closed and wakes all waiters with no response.
func (p *pending) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.waiters {
		close(ch)
		delete(p.waiters, id)
	}
}

// await blocks until a response, context cancellation, or client shutdown.
func await(ctx context.Context, ch chan *rpcResponse) (*rpcResponse, error) {
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClientClosed
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
