package cel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

// MessageVars is the activation a filter sees. Field names match the
// snake_case keys available under `message` in expressions.
type MessageVars struct {
	ID             string
	Subject        string
	BodyPreview    string
	From           string
	FromName       string
	To             []string
	Cc             []string
	HasAttachments bool
	SentAt         time.Time
	Resource       string
	ChangeType     string
}

func (v MessageVars) activation() map[string]interface{} {
	return map[string]interface{}{
		"message": map[string]interface{}{
			"id":              v.ID,
			"subject":         v.Subject,
			"body_preview":    v.BodyPreview,
			"from":            v.From,
			"from_name":       v.FromName,
			"to":              nonNil(v.To),
			"cc":              nonNil(v.Cc),
			"has_attachments": v.HasAttachments,
		},
		"sent_at":     v.SentAt,
		"resource":    v.Resource,
		"change_type": v.ChangeType,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("message", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("sent_at", cel.TimestampType),
		cel.Variable("resource", cel.StringType),
		cel.Variable("change_type", cel.StringType),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	_, err := e.compile(expression)
	return err
}

func (e *Evaluator) compile(expression string) (*cel.Ast, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	// Fields of message are dyn; their bool-ness is checked at evaluation.
	if out := ast.OutputType(); out != cel.BoolType && out != cel.DynType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", out)
	}
	return ast, nil
}

// Filter is a compiled boolean expression, safe for concurrent use.
type Filter struct {
	expression string
	program    cel.Program
}

func (e *Evaluator) CompileFilter(expression string) (*Filter, error) {
	ast, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Filter{expression: expression, program: program}, nil
}

func (f *Filter) Expression() string {
	return f.expression
}

func (f *Filter) Matches(ctx context.Context, vars MessageVars) (bool, error) {
	result, _, err := f.program.ContextEval(ctx, vars.activation())
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}
