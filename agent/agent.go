package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/searchagent/core"
	"github.com/hupe1980/searchagent/logging"
	"github.com/hupe1980/searchagent/model"
	"github.com/hupe1980/searchagent/session"
)

// defaultSystemPrompt states the assistant's role and constraints. Kept close
// to the backend domain so the model reaches for tools instead of guessing.
const defaultSystemPrompt = "You are a helpful AI assistant with access to OpenSearch tools. " +
	"Use the available tools to answer questions about indices, documents, " +
	"search queries and cluster management. When you need to use a tool, make " +
	"the function call and the results will be provided to you."

// metadataResultLimit truncates tool results recorded in QueryResult
// metadata. The transcript always carries the full payload.
const metadataResultLimit = 200

// Options configure the orchestrator.
type Options struct {
	// MaxIterations bounds the number of model rounds per query.
	MaxIterations int
	// SystemPrompt seeds every query transcript.
	SystemPrompt string
	// Logger receives the query trace. Defaults to NoOpLogger.
	Logger logging.Logger
}

// ExecuteOptions configure a single query.
type ExecuteOptions struct {
	// Verbose promotes the round-by-round trace from debug to info level.
	Verbose bool
}

// Orchestrator drives the agent loop over a shared, initialized session.
// Stateless between queries; safe for concurrent use.
type Orchestrator struct {
	session       *session.Session
	maxIterations int
	systemPrompt  string
	logger        logging.Logger
}

// New creates an orchestrator bound to the given session.
func New(sess *session.Session, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		MaxIterations: 10,
		SystemPrompt:  defaultSystemPrompt,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{
		session:       sess,
		maxIterations: opts.MaxIterations,
		systemPrompt:  opts.SystemPrompt,
		logger:        opts.Logger,
	}
}

// Execute answers one natural-language question. It never returns an
// unhandled error: every outcome, including session misuse, model faults and
// the round limit, arrives as a QueryResult with a typed Err on failure.
//
// Within one query, rounds are strictly sequential: the next model call only
// starts after every tool result of the current round has been folded into
// the transcript, in the order the model requested the calls.
func (o *Orchestrator) Execute(ctx context.Context, question string, optFns ...func(o *ExecuteOptions)) core.QueryResult {
	var execOpts ExecuteOptions
	for _, fn := range optFns {
		fn(&execOpts)
	}
	trace := o.trace(execOpts.Verbose)

	result := core.QueryResult{
		Metadata: core.QueryMetadata{
			QueryID:   core.NewID(),
			ToolCalls: []core.ToolCallRecord{},
		},
	}

	if err := o.session.Ready(); err != nil {
		return failure(result, err)
	}

	reg := o.session.Registry()
	defs := reg.Definitions()
	llm := o.session.Model()

	history := []core.Content{
		core.NewSystemContent(o.systemPrompt),
		core.NewUserContent(question),
	}

	trace("query started", "query_id", result.Metadata.QueryID, "tools", reg.Len())

	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		result.Metadata.Iterations = iteration

		start := time.Now()
		resp, err := llm.Generate(ctx, model.Request{Contents: history, Tools: defs})
		logging.LogLLMCall(o.logger, llm.Info().Name, time.Since(start), err)
		if err != nil {
			return failure(result, &LLMInvocationError{Model: llm.Info().Name, Err: err})
		}

		calls := resp.Content.FunctionCalls()
		if len(calls) == 0 {
			result.Success = true
			result.Answer = resp.Content.Text()
			trace("query completed", "query_id", result.Metadata.QueryID, "iterations", iteration)
			return result
		}

		trace("round requested tools", "query_id", result.Metadata.QueryID, "iteration", iteration, "calls", len(calls))

		// Dispatch may be concurrent; responses come back in emission order.
		responses := o.session.Executor().ExecuteBatch(ctx, reg, calls)

		for i, call := range calls {
			fr := responses[i]
			trace("tool executed",
				"query_id", result.Metadata.QueryID,
				"tool", call.Name,
				"call_id", call.ID,
				"error", fr.IsError(),
			)
			history = append(history,
				core.NewFunctionCallContent(call),
				core.NewFunctionResponseContent(fr),
			)
			result.Metadata.ToolCalls = append(result.Metadata.ToolCalls, record(call, fr))
		}
	}

	return failure(result, &IterationLimitError{Limit: o.maxIterations})
}

// trace returns the round-trace sink for this query: info when verbose,
// debug otherwise.
func (o *Orchestrator) trace(verbose bool) func(msg string, args ...any) {
	if verbose {
		return o.logger.Info
	}
	return o.logger.Debug
}

func failure(result core.QueryResult, err error) core.QueryResult {
	result.Success = false
	result.Err = err
	result.Error = err.Error()
	return result
}

// record flattens one executed call into the metadata shape, truncating long
// results.
func record(call core.FunctionCall, fr core.FunctionResponse) core.ToolCallRecord {
	var args map[string]any
	if call.Arguments != "" {
		_ = json.Unmarshal([]byte(call.Arguments), &args)
	}

	rendered := fr.Error
	if !fr.IsError() {
		if s, ok := fr.Response.(string); ok {
			rendered = s
		} else {
			rendered = fmt.Sprintf("%v", fr.Response)
		}
	}
	if len(rendered) > metadataResultLimit {
		rendered = rendered[:metadataResultLimit]
	}

	return core.ToolCallRecord{Tool: call.Name, Args: args, Result: rendered}
}
