package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/searchagent/executor"
	"github.com/hupe1980/searchagent/logging"
	"github.com/hupe1980/searchagent/mcp"
	"github.com/hupe1980/searchagent/model"
	"github.com/hupe1980/searchagent/registry"
)

var (
	// ErrNotInitialized is returned when a query is attempted before Initialize.
	ErrNotInitialized = errors.New("session: not initialized")
	// ErrSessionClosed is returned when a query is attempted after Close.
	ErrSessionClosed = errors.New("session: closed")
)

// InitializationError marks a failed session setup: transport connect, the
// protocol handshake or the tool-list fetch. A session that failed to
// initialize is never partially usable.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("session initialization failed: %v", e.Err)
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *InitializationError) Unwrap() error { return e.Err }

// Options configure the session.
type Options struct {
	// ToolTimeout bounds each individual tool call.
	ToolTimeout time.Duration
	// MaxParallelTools limits concurrent tool dispatch within one round.
	MaxParallelTools int
	// ValidateArguments enables JSON Schema validation of tool arguments.
	ValidateArguments bool
	// Logger used by the session and its executor. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Session aggregates the model handle, the MCP client and the cached tool
// registry. Construct with New, call Initialize exactly once, share
// read-only across concurrent queries, Close at shutdown.
type Session struct {
	llm    model.Model
	client mcp.Client
	logger logging.Logger
	opts   Options

	initOnce    sync.Once
	initErr     error
	initialized atomic.Bool
	closed      atomic.Bool

	registry *registry.Registry
	executor *executor.Executor
}

// New creates an uninitialized session around the given model and transport.
func New(llm model.Model, client mcp.Client, optFns ...func(o *Options)) *Session {
	opts := Options{
		ToolTimeout:       30 * time.Second,
		MaxParallelTools:  4,
		ValidateArguments: true,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Session{
		llm:    llm,
		client: client,
		logger: opts.Logger,
		opts:   opts,
	}
}

// Initialize connects the transport and loads the tool registry. It runs at
// most once even under concurrent first callers; every caller observes the
// same outcome. Any failure is reported as *InitializationError and leaves
// the session unusable.
func (s *Session) Initialize(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	s.initOnce.Do(func() {
		if err := s.client.Initialize(ctx); err != nil {
			s.initErr = &InitializationError{Err: err}
			return
		}

		reg, err := registry.Load(ctx, s.client)
		if err != nil {
			s.initErr = &InitializationError{Err: err}
			return
		}

		s.registry = reg
		s.executor = executor.New(s.client, func(o *executor.Options) {
			o.Timeout = s.opts.ToolTimeout
			o.MaxParallel = s.opts.MaxParallelTools
			o.ValidateArguments = s.opts.ValidateArguments
			o.Logger = s.logger
		})
		s.initialized.Store(true)

		s.logger.Info("session initialized",
			"model", s.llm.Info().Name,
			"provider", s.llm.Info().Provider,
			"tools", reg.Len(),
		)
	})

	return s.initErr
}

// Ready reports whether queries may run, failing fast with a typed error.
func (s *Session) Ready() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if !s.initialized.Load() {
		return ErrNotInitialized
	}
	return nil
}

// Model returns the model handle.
func (s *Session) Model() model.Model { return s.llm }

// Registry returns the cached tool registry, or nil before initialization.
func (s *Session) Registry() *registry.Registry { return s.registry }

// Executor returns the tool executor, or nil before initialization.
func (s *Session) Executor() *executor.Executor { return s.executor }

// Close releases the transport. Idempotent; queries attempted afterwards
// fail fast with ErrSessionClosed.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}
