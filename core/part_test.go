package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentText(t *testing.T) {
	content := Content{Role: RoleAssistant, Parts: []Part{
		TextPart{Text: "hello"},
		FunctionCallPart{FunctionCall: FunctionCall{Name: "msearch"}},
		TextPart{Text: " world"},
	}}
	assert.Equal(t, "hello world", content.Text())
}

func TestContentFunctionCallsPreserveOrder(t *testing.T) {
	content := Content{Role: RoleAssistant, Parts: []Part{
		FunctionCallPart{FunctionCall: FunctionCall{ID: "a", Name: "first"}},
		TextPart{Text: "thinking"},
		FunctionCallPart{FunctionCall: FunctionCall{ID: "b", Name: "second"}},
	}}

	calls := content.FunctionCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].ID)
	assert.Equal(t, "b", calls[1].ID)
}

func TestContentFunctionResponses(t *testing.T) {
	content := NewFunctionResponseContent(FunctionResponse{ID: "a", Name: "msearch", Response: "hits"})

	assert.Equal(t, RoleTool, content.Role)
	resps := content.FunctionResponses()
	require.Len(t, resps, 1)
	assert.Equal(t, "hits", resps[0].Response)
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, RoleSystem, NewSystemContent("s").Role)
	assert.Equal(t, RoleUser, NewUserContent("u").Role)
	assert.Equal(t, RoleAssistant, NewAssistantContent("a").Role)

	call := NewFunctionCallContent(FunctionCall{ID: "x", Name: "list_indices"})
	assert.Equal(t, RoleAssistant, call.Role)
	require.Len(t, call.FunctionCalls(), 1)
}

func TestFunctionResponseIsError(t *testing.T) {
	assert.False(t, FunctionResponse{Response: "fine"}.IsError())
	assert.True(t, FunctionResponse{Error: "boom"}.IsError())
}

func TestNewIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		require.NotEmpty(t, id)
		require.False(t, seen[id])
		seen[id] = true
	}
}
