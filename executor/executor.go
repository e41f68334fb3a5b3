package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/searchagent/core"
	"github.com/hupe1980/searchagent/logging"
	"github.com/hupe1980/searchagent/mcp"
	"github.com/hupe1980/searchagent/registry"
	"github.com/xeipuuv/gojsonschema"
)

// Error codes attached to normalized tool failures.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeExecutionError  = "EXECUTION_ERROR"
	CodeTimeout         = "TIMEOUT"
	CodeNotFound        = "NOT_FOUND"
)

// ExecError describes a failed tool invocation with a stable code. Its
// rendered form is what the model sees in the transcript.
type ExecError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
}

// NewExecError creates a new ExecError with the specified details.
func NewExecError(tool, message, code string) *ExecError {
	return &ExecError{Tool: tool, Message: message, Code: code}
}

// Invoker is the slice of the MCP client the executor needs.
type Invoker interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.ToolResult, error)
}

// Options configure the executor.
type Options struct {
	// Timeout bounds each individual tool call.
	Timeout time.Duration
	// MaxParallel limits concurrent dispatch within one round.
	// 0 or less means no explicit limit.
	MaxParallel int
	// ValidateArguments enables JSON Schema validation of model-emitted
	// arguments before dispatch.
	ValidateArguments bool
	// Logger receives per-call diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Executor performs remote tool calls over a shared transport.
type Executor struct {
	invoker     Invoker
	timeout     time.Duration
	maxParallel int
	validate    bool
	logger      logging.Logger
}

// New creates an executor bound to the given transport.
func New(invoker Invoker, optFns ...func(o *Options)) *Executor {
	opts := Options{
		Timeout:           30 * time.Second,
		MaxParallel:       4,
		ValidateArguments: true,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{
		invoker:     invoker,
		timeout:     opts.Timeout,
		maxParallel: opts.MaxParallel,
		validate:    opts.ValidateArguments,
		logger:      opts.Logger,
	}
}

// Invoke executes one tool call and always returns a tagged response carrying
// the originating call id.
func (e *Executor) Invoke(ctx context.Context, desc registry.ToolDescriptor, call core.FunctionCall) core.FunctionResponse {
	start := time.Now()
	resp := e.invoke(ctx, desc, call)
	dur := time.Since(start)

	var err error
	if resp.IsError() {
		err = errors.New(resp.Error)
	}
	logging.LogToolCall(e.logger, call.Name, dur, err)

	return resp
}

func (e *Executor) invoke(ctx context.Context, desc registry.ToolDescriptor, call core.FunctionCall) (resp core.FunctionResponse) {
	resp = core.FunctionResponse{ID: call.ID, Name: call.Name}

	defer func() {
		if r := recover(); r != nil {
			resp.Response = nil
			resp.Error = NewExecError(call.Name, fmt.Sprintf("panic during execution: %v", r), CodeExecutionError).Error()
		}
	}()

	args, err := decodeArguments(call.Arguments)
	if err != nil {
		resp.Error = NewExecError(call.Name, fmt.Sprintf("malformed arguments: %v", err), CodeValidationError).Error()
		return resp
	}

	if e.validate {
		if err := validateArguments(desc, args); err != nil {
			resp.Error = NewExecError(call.Name, err.Error(), CodeValidationError).Error()
			return resp
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result, err := e.invoker.CallTool(callCtx, call.Name, args)
	if err != nil {
		code := CodeExecutionError
		if errors.Is(err, context.DeadlineExceeded) {
			code = CodeTimeout
		}
		resp.Error = NewExecError(call.Name, err.Error(), code).Error()
		return resp
	}
	if result.IsError {
		resp.Error = NewExecError(call.Name, result.Content, CodeExecutionError).Error()
		return resp
	}

	resp.Response = result.Content
	return resp
}

// ExecuteBatch executes one round's calls. Calls are independent and may be
// dispatched concurrently, but the returned slice (and therefore the
// transcript fold) always follows request-emission order. A name that does
// not resolve in the registry yields a NOT_FOUND response instead of
// aborting the batch.
func (e *Executor) ExecuteBatch(ctx context.Context, reg *registry.Registry, calls []core.FunctionCall) []core.FunctionResponse {
	n := len(calls)
	if n == 0 {
		return nil
	}

	results := make([]core.FunctionResponse, n)

	// Fast path: single call, execute inline.
	if n == 1 {
		results[0] = e.executeOne(ctx, reg, calls[0])
		return results
	}

	maxPar := e.maxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	for i := range calls {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, call core.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = e.executeOne(ctx, reg, call)
		}(i, calls[i])
	}

	wg.Wait()

	// Cancellation may have left trailing slots untouched; tag them so the
	// invariant of one response per request still holds.
	for i := range results {
		if results[i].Name == "" {
			results[i] = core.FunctionResponse{
				ID:    calls[i].ID,
				Name:  calls[i].Name,
				Error: NewExecError(calls[i].Name, "cancelled before dispatch", CodeExecutionError).Error(),
			}
		}
	}

	return results
}

func (e *Executor) executeOne(ctx context.Context, reg *registry.Registry, call core.FunctionCall) core.FunctionResponse {
	desc, ok := reg.Get(call.Name)
	if !ok {
		e.logger.Warn("unknown tool requested", "tool_name", call.Name)
		return core.FunctionResponse{
			ID:    call.ID,
			Name:  call.Name,
			Error: NewExecError(call.Name, fmt.Sprintf("no such tool %q", call.Name), CodeNotFound).Error(),
		}
	}
	return e.Invoke(ctx, desc, call)
}

// decodeArguments parses the serialized argument payload emitted by the model.
func decodeArguments(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

// validateArguments checks args against the tool's declared JSON Schema.
// A schema that fails to compile is skipped: the schema came from the
// server, and its defects should not block an otherwise valid call.
func validateArguments(desc registry.ToolDescriptor, args map[string]interface{}) error {
	if len(desc.InputSchema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(desc.InputSchema),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return nil
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		msgs = append(msgs, verr.String())
	}
	return fmt.Errorf("argument validation failed: %s", strings.Join(msgs, "; "))
}
