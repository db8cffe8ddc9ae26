package tools

import (
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Registry maps tool names to implementations and produces the declarations
// the provider needs. Registration order is preserved so declarations are
// stable across runs.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous tool with the same name.
func (r *Registry) Register(tool Tool) {
	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool, nil
}

// List returns all registered tools in registration order.
func (r *Registry) List() []Tool {
	ts := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		ts = append(ts, r.tools[name])
	}
	return ts
}

// Declarations returns the OpenAI function declarations for every tool.
func (r *Registry) Declarations() []openai.Tool {
	decls := make([]openai.Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		decls = append(decls, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return decls
}
