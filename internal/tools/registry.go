package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/nimbuslabs/nimbus/internal/log"
)

// Descriptor is the model-facing description of a registered tool.
type Descriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema,omitempty"`
}

// Handler executes a tool call with already-decoded arguments.
type Handler func(ctx context.Context, args map[string]any) Result

type registered struct {
	descriptor Descriptor
	handler    Handler
}

// Registry holds the available tools. Registration happens once at
// startup; afterwards the registry is read-only and safe for
// concurrent Call and List.
type Registry struct {
	tools  map[string]*registered
	order  []string
	logger log.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Registry{
		tools:  make(map[string]*registered),
		logger: logger,
	}
}

// Register adds a typed tool. The input schema is derived from In's
// struct tags. Duplicate names are a programming error.
func Register[In any](r *Registry, name, description string, fn func(ctx context.Context, in In) Result) error {
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}

	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return fmt.Errorf("failed to derive schema for %s: %w", name, err)
	}

	r.tools[name] = &registered{
		descriptor: Descriptor{
			Name:        name,
			Description: description,
			InputSchema: schema,
		},
		handler: func(ctx context.Context, args map[string]any) Result {
			in, err := decodeArgs[In](args)
			if err != nil {
				return Errorf(ErrCodeValidation, "invalid arguments for %s: %v", name, err)
			}
			return fn(ctx, in)
		},
	}
	r.order = append(r.order, name)
	return nil
}

// decodeArgs converts loosely-typed model arguments into In via a JSON
// roundtrip. nil args decode as an empty object.
func decodeArgs[In any](args map[string]any) (In, error) {
	var in In
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return in, err
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, err
	}
	return in, nil
}

// Call executes a tool by name. Unknown tools and tool failures come
// back as error results, never as Go errors: the model is the consumer
// and must be able to read the failure. Context errors are the one
// exception.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	reg, ok := r.tools[name]
	if !ok {
		r.logger.Warn("unknown tool requested", "tool", name)
		return Errorf(ErrCodeNotFound, "unknown tool: %s", name), nil
	}

	result := reg.handler(ctx, args)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if result.Status == StatusError && result.Error != nil {
		r.logger.Debug("tool call failed",
			"tool", name,
			"code", result.Error.Code,
			"error", result.Error.Message)
	}
	return result, nil
}

// List returns descriptors in registration order. The order is stable
// so prompts and API responses stay deterministic.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].descriptor)
	}
	return out
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}
