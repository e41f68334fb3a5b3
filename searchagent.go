// Package searchagent provides a high-level façade over the session, tool
// registry and query orchestrator, enabling natural-language querying of an
// MCP-exposed search backend. Most applications interact with this package by:
//  1. Creating an Agent via New() with a model and an MCP client
//  2. Calling Initialize() once at startup
//  3. Issuing queries with ExecuteQuery and introspecting tools with
//     ListTools / ToolsByCategory
//  4. Calling Close() at shutdown
//
// The façade delegates the loop to agent.Orchestrator while keeping setup
// and usage ergonomics concise. Defaults are safe for local development;
// production deployments typically supply a structured logger.
package searchagent

import (
	"context"
	"time"

	"github.com/hupe1980/searchagent/agent"
	"github.com/hupe1980/searchagent/core"
	"github.com/hupe1980/searchagent/logging"
	"github.com/hupe1980/searchagent/mcp"
	"github.com/hupe1980/searchagent/model"
	"github.com/hupe1980/searchagent/registry"
	"github.com/hupe1980/searchagent/session"
)

// Options configure the Agent instance.
type Options struct {
	// MaxIterations bounds the number of model rounds per query.
	MaxIterations int

	// SystemPrompt seeds every query transcript.
	SystemPrompt string

	// ToolTimeout bounds each individual tool call.
	ToolTimeout time.Duration

	// MaxParallelTools limits concurrent tool dispatch within one round.
	MaxParallelTools int

	// ValidateArguments enables JSON Schema validation of model-emitted
	// tool arguments before dispatch.
	ValidateArguments bool

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Agent is the high-level façade aggregating the session and the orchestrator.
type Agent struct {
	session      *session.Session
	orchestrator *agent.Orchestrator
}

// New creates a new Agent around the given model and MCP transport. The
// returned agent is not yet connected; call Initialize before querying.
func New(llm model.Model, client mcp.Client, optFns ...func(o *Options)) *Agent {
	opts := Options{
		MaxIterations:     10,
		ToolTimeout:       30 * time.Second,
		MaxParallelTools:  4,
		ValidateArguments: true,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	sess := session.New(llm, client, func(o *session.Options) {
		o.ToolTimeout = opts.ToolTimeout
		o.MaxParallelTools = opts.MaxParallelTools
		o.ValidateArguments = opts.ValidateArguments
		o.Logger = opts.Logger
	})

	orch := agent.New(sess, func(o *agent.Options) {
		o.MaxIterations = opts.MaxIterations
		if opts.SystemPrompt != "" {
			o.SystemPrompt = opts.SystemPrompt
		}
		o.Logger = opts.Logger
	})

	return &Agent{session: sess, orchestrator: orch}
}

// Initialize connects the transport and loads the tool registry. Safe to
// call from racing first callers; runs at most once.
func (a *Agent) Initialize(ctx context.Context) error {
	return a.session.Initialize(ctx)
}

// ExecuteQuery answers one natural-language question. The result carries
// the answer or a typed failure plus per-query metadata (executed tool
// calls, rounds consumed).
func (a *Agent) ExecuteQuery(ctx context.Context, question string, verbose bool) core.QueryResult {
	return a.orchestrator.Execute(ctx, question, func(o *agent.ExecuteOptions) {
		o.Verbose = verbose
	})
}

// ListTools returns name, description and category for every cached tool in
// server-declared order. Returns nil before initialization.
func (a *Agent) ListTools() []registry.ToolSummary {
	if a.session.Ready() != nil {
		return nil
	}
	return a.session.Registry().DescribeAll()
}

// ToolsByCategory organizes the cached tools by their derived category.
// Returns nil before initialization.
func (a *Agent) ToolsByCategory() map[registry.Category][]registry.ToolSummary {
	if a.session.Ready() != nil {
		return nil
	}
	return a.session.Registry().GroupByCategory()
}

// Close releases the transport. Queries attempted afterwards fail fast.
func (a *Agent) Close() error {
	return a.session.Close()
}
