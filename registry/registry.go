package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/searchagent/mcp"
	"github.com/hupe1980/searchagent/model"
)

// Category is one bucket of the closed tool classification set.
type Category string

const (
	// CategoryIndexManagement covers index lifecycle tools (create, delete, settings).
	CategoryIndexManagement Category = "Index Management"
	// CategoryDocumentOps covers document CRUD and query DSL tools.
	CategoryDocumentOps Category = "Document Operations"
	// CategorySearchQuery covers search tools.
	CategorySearchQuery Category = "Search & Query"
	// CategoryClusterOps covers cluster state and health tools.
	CategoryClusterOps Category = "Cluster Management"
	// CategoryAliasOps covers alias tools.
	CategoryAliasOps Category = "Alias Management"
	// CategoryDataStreams covers data stream tools.
	CategoryDataStreams Category = "Data Streams"
	// CategoryAdvanced is the default bucket for anything unmatched.
	CategoryAdvanced Category = "Advanced"
)

// AllCategories returns the closed category set in display order.
func AllCategories() []Category {
	return []Category{
		CategoryIndexManagement,
		CategoryDocumentOps,
		CategorySearchQuery,
		CategoryClusterOps,
		CategoryAliasOps,
		CategoryDataStreams,
		CategoryAdvanced,
	}
}

// Categorize maps a tool name to exactly one Category. It is pure and total:
// the same name always yields the same category and unmatched names fall
// into CategoryAdvanced. The substring rules are ordered; the first match wins.
func Categorize(name string) Category {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "index") && !strings.Contains(n, "document"):
		return CategoryIndexManagement
	case strings.Contains(n, "document") || strings.Contains(n, "query"):
		return CategoryDocumentOps
	case strings.Contains(n, "search"):
		return CategorySearchQuery
	case strings.Contains(n, "cluster") || strings.Contains(n, "health"):
		return CategoryClusterOps
	case strings.Contains(n, "alias"):
		return CategoryAliasOps
	case strings.Contains(n, "stream"):
		return CategoryDataStreams
	default:
		return CategoryAdvanced
	}
}

// ToolDescriptor is the cached, read-only description of one remote tool.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	Category    Category       `json:"category"`
}

// ToolSummary is the introspection view exposed to callers and UIs.
type ToolSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
}

// Registry holds the ordered tool list fetched from the server. Construct
// via Load; immutable afterwards.
type Registry struct {
	descriptors []ToolDescriptor
	byName      map[string]ToolDescriptor
}

// Load requests the remote capability list and builds the registry,
// preserving server-declared order. Failure here is fatal to session
// initialization.
func Load(ctx context.Context, client mcp.Client) (*Registry, error) {
	infos, err := client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tool list: %w", err)
	}

	descriptors := make([]ToolDescriptor, 0, len(infos))
	byName := make(map[string]ToolDescriptor, len(infos))
	for _, info := range infos {
		if info.Name == "" {
			continue
		}
		schema := map[string]any{}
		if len(info.InputSchema) > 0 {
			if err := json.Unmarshal(info.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("tool %s: decode input schema: %w", info.Name, err)
			}
		}
		desc := ToolDescriptor{
			Name:        info.Name,
			Description: info.Description,
			InputSchema: schema,
			Category:    Categorize(info.Name),
		}
		descriptors = append(descriptors, desc)
		byName[desc.Name] = desc
	}

	return &Registry{descriptors: descriptors, byName: byName}, nil
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (ToolDescriptor, bool) {
	desc, ok := r.byName[name]
	return desc, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.descriptors) }

// DescribeAll returns the summary of every tool in server-declared order.
func (r *Registry) DescribeAll() []ToolSummary {
	summaries := make([]ToolSummary, 0, len(r.descriptors))
	for _, desc := range r.descriptors {
		summaries = append(summaries, ToolSummary{
			Name:        desc.Name,
			Description: desc.Description,
			Category:    desc.Category,
		})
	}
	return summaries
}

// GroupByCategory organizes the summaries by their category. Within a
// category the server-declared order is preserved.
func (r *Registry) GroupByCategory() map[Category][]ToolSummary {
	grouped := make(map[Category][]ToolSummary)
	for _, s := range r.DescribeAll() {
		grouped[s.Category] = append(grouped[s.Category], s)
	}
	return grouped
}

// Definitions renders the cached tools as model tool definitions so they can
// be bound to every LLM invocation.
func (r *Registry) Definitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(r.descriptors))
	for _, desc := range r.descriptors {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        desc.Name,
				Description: desc.Description,
				Parameters:  desc.InputSchema,
			},
		})
	}
	return defs
}
