// Package tools defines the agent-facing tool registry: named operations
// with JSON schemas and handlers, shared by the stdio and HTTP transports.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medlens/medlens/internal/app"
	"github.com/medlens/medlens/internal/logging"
	"github.com/medlens/medlens/internal/table"
)

// Handler executes one tool call. Args is the raw JSON arguments object.
// Returned values must be JSON-serializable; domain failures are reported as
// structured payloads, errors are reserved for malformed requests.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Definition is the wire-visible description of a tool.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Tool pairs a definition with its handler.
type Tool struct {
	Definition
	Handler Handler
}

// UnknownToolError reports a call to a tool that is not registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// Registry holds the registered tools in registration order.
type Registry struct {
	app    *app.App
	logger logging.Logger

	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry with all builtin tools registered.
func NewRegistry(a *app.App, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	r := &Registry{
		app:    a,
		logger: logger,
		tools:  make(map[string]Tool),
	}
	r.registerBuiltins()
	return r
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
	r.logger.Debug("tool registered", "tool", t.Name)
}

// Definitions lists tool definitions in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Call dispatches a tool invocation. Every call gets a request ID for log
// correlation.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}

	requestID := uuid.NewString()
	start := time.Now()
	r.logger.Info("tool call", "tool", name, "request_id", requestID)

	result, err := t.Handler(ctx, args)
	if err != nil {
		r.logger.Warn("tool call failed", "tool", name, "request_id", requestID, "error", err)
		return nil, err
	}
	r.logger.Info("tool call done", "tool", name, "request_id", requestID, "duration", time.Since(start))
	return result, nil
}

// TableResult is the serialized form of a tabular tool result. Large tables
// are truncated for display; TotalRows always reflects the full result.
type TableResult struct {
	TotalRows     int              `json:"total_rows"`
	DisplayedRows int              `json:"displayed_rows"`
	Truncated     bool             `json:"truncated"`
	Columns       []string         `json:"columns"`
	Data          []map[string]any `json:"data"`
}

func tableResult(t *table.Table, maxRows int) TableResult {
	if maxRows <= 0 {
		maxRows = 100
	}
	display := t.Head(maxRows)
	return TableResult{
		TotalRows:     t.RowCount(),
		DisplayedRows: display.RowCount(),
		Truncated:     t.RowCount() > maxRows,
		Columns:       t.ColumnNames(),
		Data:          display.Records(),
	}
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// errorPayload is the structured shape for domain failures, optionally with
// advisory fields.
func errorPayload(message string, extra map[string]any) map[string]any {
	payload := map[string]any{"error": message}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}
