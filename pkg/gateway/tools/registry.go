// Package tools declares the callable tool set and dispatches tool calls
// requested by the completion provider.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/foundry-kitchen/concierge/pkg/core/types"
)

// Executor backs one named tool with a concrete operation. Execute returns a
// JSON-serialized result payload and must never panic past its boundary; any
// internal failure is reported as an {"error": ...} payload so the tool turn
// can always be appended.
type Executor interface {
	Name() string
	Spec() types.ToolSpec
	Execute(ctx context.Context, identity string, args json.RawMessage) string
}

// ErrorPayload serializes a tool failure message the way executors report
// errors to the model.
func ErrorPayload(message string) string {
	out, _ := json.Marshal(map[string]string{"error": message})
	return string(out)
}

// Registry holds the immutable tool set declared at startup.
type Registry struct {
	byName map[string]Executor
	logger *slog.Logger
}

// NewRegistry creates a registry over the given executors.
func NewRegistry(logger *slog.Logger, executors ...Executor) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{byName: make(map[string]Executor, len(executors)), logger: logger}
	for _, ex := range executors {
		if ex == nil {
			continue
		}
		r.byName[ex.Name()] = ex
	}
	return r
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byName[name]
	return ok
}

// Specs returns the tool declarations sent to the completion provider, in
// name order.
func (r *Registry) Specs() []types.ToolSpec {
	names := r.Names()
	out := make([]types.ToolSpec, 0, len(names))
	for _, name := range names {
		out = append(out, r.byName[name].Spec())
	}
	return out
}

// Execute dispatches one tool call and always returns a JSON payload. Unknown
// tools and executor panics both come back as error payloads, never as a
// fault the orchestrator has to unwind.
func (r *Registry) Execute(ctx context.Context, identity, name string, args json.RawMessage) (payload string) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", v)
			payload = ErrorPayload(fmt.Sprintf("tool %s failed", name))
		}
	}()

	if r == nil {
		return ErrorPayload("no tools configured")
	}
	ex, ok := r.byName[name]
	if !ok {
		r.logger.Warn("unknown tool requested", "tool", name)
		return ErrorPayload(fmt.Sprintf("unknown tool: %s", name))
	}
	return ex.Execute(ctx, identity, args)
}
