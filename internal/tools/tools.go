// Package tools provides the string-in/string-out tools the specialized
// responders expose to their reasoning loops.
package tools

import (
	"context"
)

// Tool adapts a named closure to the langchaingo tools.Tool contract.
type Tool struct {
	name        string
	description string
	call        func(ctx context.Context, input string) (string, error)
}

// New creates a tool from a name, a model-facing description, and a handler.
func New(name, description string, call func(ctx context.Context, input string) (string, error)) *Tool {
	return &Tool{name: name, description: description, call: call}
}

func (t *Tool) Name() string {
	return t.name
}

func (t *Tool) Description() string {
	return t.description
}

func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	return t.call(ctx, input)
}
