package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/hupe1980/searchagent/core"
	"github.com/hupe1980/searchagent/mcp"
	"github.com/hupe1980/searchagent/model"
	"github.com/hupe1980/searchagent/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	tools   []mcp.ToolInfo
	callFn  func(ctx context.Context, name string, args map[string]interface{}) (*mcp.ToolResult, error)
	mu      sync.Mutex
	invoked []string
}

func (c *scriptedClient) Initialize(context.Context) error { return nil }

func (c *scriptedClient) ListTools(context.Context) ([]mcp.ToolInfo, error) {
	return c.tools, nil
}

func (c *scriptedClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.ToolResult, error) {
	c.mu.Lock()
	c.invoked = append(c.invoked, name)
	c.mu.Unlock()
	if c.callFn != nil {
		return c.callFn(ctx, name, args)
	}
	return &mcp.ToolResult{Content: "ok"}, nil
}

func (c *scriptedClient) Close() error { return nil }

func searchTools() []mcp.ToolInfo {
	return []mcp.ToolInfo{
		{Name: "list_indices", Description: "List all indices", InputSchema: json.RawMessage(`{"type":"object","properties":{}}`)},
		{Name: "msearch", Description: "Run a multi search", InputSchema: json.RawMessage(`{"type":"object","properties":{"index":{"type":"string"}}}`)},
	}
}

func initializedSession(t *testing.T, llm model.Model, client mcp.Client) *session.Session {
	t.Helper()
	sess := session.New(llm, client)
	require.NoError(t, sess.Initialize(context.Background()))
	return sess
}

func TestExecuteDirectAnswer(t *testing.T) {
	llm := model.NewMockModel("test-model", "mock")
	llm.AddTextTurn("OpenSearch is a search and analytics suite.")
	sess := initializedSession(t, llm, &scriptedClient{tools: searchTools()})

	result := New(sess).Execute(context.Background(), "What is OpenSearch?")

	assert.True(t, result.Success)
	assert.Equal(t, "OpenSearch is a search and analytics suite.", result.Answer)
	assert.Empty(t, result.Error)
	assert.NoError(t, result.Err)
	assert.Equal(t, 1, result.Metadata.Iterations)
	assert.Empty(t, result.Metadata.ToolCalls)
	assert.NotEmpty(t, result.Metadata.QueryID)
}

func TestExecuteSingleToolRound(t *testing.T) {
	client := &scriptedClient{
		tools: searchTools(),
		callFn: func(_ context.Context, name string, _ map[string]interface{}) (*mcp.ToolResult, error) {
			return &mcp.ToolResult{Content: `["idx_a","idx_b"]`}, nil
		},
	}
	llm := model.NewMockModel("test-model", "mock")
	llm.AddToolCallTurn(core.FunctionCall{ID: "call-1", Name: "list_indices"})
	llm.AddTextTurn("The cluster has two indices: idx_a and idx_b.")
	sess := initializedSession(t, llm, client)

	result := New(sess).Execute(context.Background(), "What indices exist?")

	assert.True(t, result.Success)
	assert.Contains(t, result.Answer, "idx_a")
	assert.Contains(t, result.Answer, "idx_b")
	assert.Equal(t, 2, result.Metadata.Iterations)
	require.Len(t, result.Metadata.ToolCalls, 1)
	assert.Equal(t, "list_indices", result.Metadata.ToolCalls[0].Tool)
	assert.Contains(t, result.Metadata.ToolCalls[0].Result, "idx_a")
	assert.Equal(t, []string{"list_indices"}, client.invoked)
}

func TestExecuteFoldsResultsInRequestOrder(t *testing.T) {
	client := &scriptedClient{
		tools: searchTools(),
		callFn: func(_ context.Context, _ string, args map[string]interface{}) (*mcp.ToolResult, error) {
			return &mcp.ToolResult{Content: fmt.Sprintf("hits for %v", args["index"])}, nil
		},
	}
	llm := model.NewMockModel("test-model", "mock")
	llm.AddToolCallTurn(
		core.FunctionCall{ID: "call-a", Name: "msearch", Arguments: `{"index":"alpha"}`},
		core.FunctionCall{ID: "call-b", Name: "msearch", Arguments: `{"index":"beta"}`},
		core.FunctionCall{ID: "call-c", Name: "msearch", Arguments: `{"index":"gamma"}`},
	)
	llm.AddTextTurn("done")

	// The probe captures the transcript of the final round.
	var secondRound model.Request
	probe := &probeModel{inner: llm, capture: &secondRound}
	sess := initializedSession(t, probe, client)

	result := New(sess).Execute(context.Background(), "search everything")
	assert.True(t, result.Success)
	require.Len(t, result.Metadata.ToolCalls, 3)

	// Transcript after round one: system, user, then (call, response) pairs
	// in emission order.
	contents := secondRound.Contents
	require.Len(t, contents, 2+3*2)
	wantIDs := []string{"call-a", "call-b", "call-c"}
	wantIndices := []string{"alpha", "beta", "gamma"}
	for i, id := range wantIDs {
		callMsg := contents[2+i*2]
		respMsg := contents[2+i*2+1]

		calls := callMsg.FunctionCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, id, calls[0].ID)

		resps := respMsg.FunctionResponses()
		require.Len(t, resps, 1)
		assert.Equal(t, id, resps[0].ID)
		assert.Equal(t, "hits for "+wantIndices[i], resps[0].Response)
	}
}

// probeModel forwards to an inner model and captures the request of the
// final round.
type probeModel struct {
	inner   *model.MockModel
	mu      sync.Mutex
	capture *model.Request
}

func (p *probeModel) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	p.mu.Lock()
	*p.capture = req
	p.mu.Unlock()
	return p.inner.Generate(ctx, req)
}

func (p *probeModel) Info() model.Info { return p.inner.Info() }

func TestExecuteIterationLimit(t *testing.T) {
	client := &scriptedClient{tools: searchTools()}
	rounds := 0
	llm := model.NewMockModel("test-model", "mock")
	llm.GenerateFunc = func(_ context.Context, _ model.Request) (*model.Response, error) {
		rounds++
		return &model.Response{
			ID: core.NewID(),
			Content: core.Content{Role: core.RoleAssistant, Parts: []core.Part{
				core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: core.NewID(), Name: "list_indices", Arguments: "{}"}},
			}},
			FinishReason: "tool_calls",
		}, nil
	}
	sess := initializedSession(t, llm, client)

	orch := New(sess, func(o *Options) { o.MaxIterations = 3 })
	result := orch.Execute(context.Background(), "loop forever")

	assert.False(t, result.Success)
	assert.Empty(t, result.Answer)
	assert.Equal(t, 3, rounds)
	assert.Equal(t, 3, result.Metadata.Iterations)
	assert.Len(t, result.Metadata.ToolCalls, 3)

	var limitErr *IterationLimitError
	require.ErrorAs(t, result.Err, &limitErr)
	assert.Equal(t, 3, limitErr.Limit)
	assert.Contains(t, result.Error, "iteration limit")
}

func TestExecuteModelFault(t *testing.T) {
	llm := model.NewMockModel("test-model", "mock")
	llm.AddErrorTurn(errors.New("rate limited"))
	sess := initializedSession(t, llm, &scriptedClient{tools: searchTools()})

	result := New(sess).Execute(context.Background(), "anything")

	assert.False(t, result.Success)
	var invErr *LLMInvocationError
	require.ErrorAs(t, result.Err, &invErr)
	assert.Equal(t, "test-model", invErr.Model)
	assert.ErrorContains(t, result.Err, "rate limited")
	assert.Equal(t, 1, result.Metadata.Iterations)
}

func TestExecuteFailedToolDoesNotStopLoop(t *testing.T) {
	client := &scriptedClient{
		tools: searchTools(),
		callFn: func(_ context.Context, _ string, args map[string]interface{}) (*mcp.ToolResult, error) {
			if args["index"] == "broken" {
				return &mcp.ToolResult{Content: "shard failure", IsError: true}, nil
			}
			return &mcp.ToolResult{Content: "fine"}, nil
		},
	}
	llm := model.NewMockModel("test-model", "mock")
	llm.AddToolCallTurn(
		core.FunctionCall{ID: "call-bad", Name: "msearch", Arguments: `{"index":"broken"}`},
		core.FunctionCall{ID: "call-good", Name: "msearch", Arguments: `{"index":"healthy"}`},
	)
	llm.AddTextTurn("partial results available")
	sess := initializedSession(t, llm, client)

	result := New(sess).Execute(context.Background(), "query both")

	assert.True(t, result.Success)
	require.Len(t, result.Metadata.ToolCalls, 2)
	assert.Contains(t, result.Metadata.ToolCalls[0].Result, "shard failure")
	assert.Equal(t, "fine", result.Metadata.ToolCalls[1].Result)
}

func TestExecuteUninitializedSession(t *testing.T) {
	sess := session.New(model.NewMockModel("test-model", "mock"), &scriptedClient{tools: searchTools()})

	result := New(sess).Execute(context.Background(), "too eager")

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, session.ErrNotInitialized)
	assert.Equal(t, 0, result.Metadata.Iterations)
}

func TestExecuteConcurrentQueriesAreIsolated(t *testing.T) {
	llm := model.NewMockModel("test-model", "mock")
	llm.GenerateFunc = func(_ context.Context, req model.Request) (*model.Response, error) {
		var question string
		for _, c := range req.Contents {
			if c.Role == core.RoleUser {
				question = c.Text()
			}
		}
		return &model.Response{
			ID:           core.NewID(),
			Content:      core.NewAssistantContent("answer to " + question),
			FinishReason: "stop",
		}, nil
	}
	sess := initializedSession(t, llm, &scriptedClient{tools: searchTools()})
	orch := New(sess)

	var wg sync.WaitGroup
	results := make([]core.QueryResult, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = orch.Execute(context.Background(), fmt.Sprintf("question-%d", i))
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i, r := range results {
		assert.True(t, r.Success)
		assert.Equal(t, fmt.Sprintf("answer to question-%d", i), r.Answer)
		assert.False(t, seen[r.Metadata.QueryID], "query ids must be unique")
		seen[r.Metadata.QueryID] = true
	}
}

func TestRecordTruncatesLongResults(t *testing.T) {
	long := strings.Repeat("x", metadataResultLimit+50)
	rec := record(
		core.FunctionCall{Name: "msearch", Arguments: `{"index":"big"}`},
		core.FunctionResponse{ID: "call-1", Name: "msearch", Response: long},
	)

	assert.Equal(t, "msearch", rec.Tool)
	assert.Equal(t, "big", rec.Args["index"])
	assert.Len(t, rec.Result, metadataResultLimit)
}
