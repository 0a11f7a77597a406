// Package policy evaluates the timeline visibility policy with OPA.
package policy

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA policy engine. Decisions are cached per tool name since
// the policy only sees the name.
type Engine struct {
	query     rego.PreparedEvalQuery
	decisions sync.Map // tool name -> bool
	onError   func(toolName string, err error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithErrorHandler sets the function told about failed evaluations. Failed
// decisions are not cached.
func WithErrorHandler(fn func(toolName string, err error)) Option {
	return func(e *Engine) {
		e.onError = fn
	}
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string, opts ...Option) (*Engine, error) {
	r := rego.New(
		rego.Query("data.timeline_visibility.hidden"),
		rego.Module("timeline_visibility.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	e := &Engine{query: query}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// LoadEngine builds an engine from a policy file, or from DefaultPolicy when
// path is empty.
func LoadEngine(ctx context.Context, path string, opts ...Option) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy, opts...)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
	}
	return NewEngine(ctx, string(content), opts...)
}

// Evaluate reports whether the policy hides the given input.
// Input should be a map with keys: tool_name, plus anything the policy needs.
func (e *Engine) Evaluate(ctx context.Context, input any) (bool, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}

	hidden, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}
	return hidden, nil
}

// Hidden implements toolname.Visibility. Evaluation errors keep the tool visible.
func (e *Engine) Hidden(toolName string) bool {
	if v, ok := e.decisions.Load(toolName); ok {
		return v.(bool)
	}
	hidden, err := e.Evaluate(context.Background(), map[string]any{"tool_name": toolName})
	if err != nil {
		if e.onError != nil {
			e.onError(toolName, err)
		}
		return false
	}
	e.decisions.Store(toolName, hidden)
	return hidden
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package timeline_visibility

default hidden = false

# Internal graph nodes are never user-facing.
hidden {
	startswith(input.tool_name, "__")
}

hidden {
	input.tool_name == "supervisor"
}
`
