package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type echoInput struct {
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
}

func newEchoRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(nil)
	err := Register(r, "echo", "Echoes its input.", func(_ context.Context, in echoInput) Result {
		if in.Name == "" {
			return Errorf(ErrCodeValidation, "name is required")
		}
		return Success("echoed", map[string]any{"name": in.Name, "count": in.Count})
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return r
}

func TestRegistryCall(t *testing.T) {
	t.Parallel()
	r := newEchoRegistry(t)

	result, err := r.Call(context.Background(), "echo", map[string]any{"name": "nimbus", "count": 3})
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if result.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Data["name"] != "nimbus" {
		t.Errorf("unexpected data: %v", result.Data)
	}
}

func TestRegistryCallUnknownTool(t *testing.T) {
	t.Parallel()
	r := newEchoRegistry(t)

	result, err := r.Call(context.Background(), "does_not_exist", nil)
	if err != nil {
		t.Fatalf("unknown tool must not return a Go error, got %v", err)
	}
	if result.Status != StatusError || result.Error == nil {
		t.Fatalf("expected error result, got %+v", result)
	}
	if result.Error.Code != ErrCodeNotFound {
		t.Errorf("expected %s, got %s", ErrCodeNotFound, result.Error.Code)
	}
}

func TestRegistryCallNilArgs(t *testing.T) {
	t.Parallel()
	r := newEchoRegistry(t)

	// nil args decode as an empty object; the tool's own validation fires.
	result, err := r.Call(context.Background(), "echo", nil)
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if result.Status != StatusError || result.Error.Code != ErrCodeValidation {
		t.Fatalf("expected validation error, got %+v", result)
	}
}

func TestRegistryCallBadArgTypes(t *testing.T) {
	t.Parallel()
	r := newEchoRegistry(t)

	result, err := r.Call(context.Background(), "echo", map[string]any{"name": "x", "count": "three"})
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if result.Status != StatusError || result.Error.Code != ErrCodeValidation {
		t.Fatalf("expected validation error for bad types, got %+v", result)
	}
	if !strings.Contains(result.Error.Message, "echo") {
		t.Errorf("error should name the tool: %s", result.Error.Message)
	}
}

func TestRegistryCallCanceledContext(t *testing.T) {
	t.Parallel()
	r := newEchoRegistry(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Call(ctx, "echo", map[string]any{"name": "x"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	t.Parallel()
	r := newEchoRegistry(t)

	err := Register(r, "echo", "dup", func(_ context.Context, in echoInput) Result {
		return Success("", nil)
	})
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRegistryListOrder(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil)
	names := []string{"alpha", "beta", "gamma"}
	for _, name := range names {
		err := Register(r, name, name, func(_ context.Context, in echoInput) Result {
			return Success("", nil)
		})
		if err != nil {
			t.Fatalf("Register %s failed: %v", name, err)
		}
	}

	descriptors := r.List()
	if len(descriptors) != len(names) {
		t.Fatalf("expected %d descriptors, got %d", len(names), len(descriptors))
	}
	for i, d := range descriptors {
		if d.Name != names[i] {
			t.Errorf("descriptor %d = %s, want %s", i, d.Name, names[i])
		}
		if d.InputSchema == nil {
			t.Errorf("descriptor %s missing input schema", d.Name)
		}
	}
}
