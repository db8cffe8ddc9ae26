package tools

import (
	"context"
	"encoding/json"
)

// Tool is a named callable operation the model may invoke mid-turn.
type Tool interface {
	Name() string
	// Description is the natural-language routing hint sent to the model.
	Description() string
	// Parameters is the JSON schema of the arguments object.
	Parameters() json.RawMessage
	// Run executes the tool with the raw JSON arguments produced by the
	// model and returns a natural-language result.
	Run(ctx context.Context, args string) (string, error)
}
