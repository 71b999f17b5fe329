// Package tools implements the Tool Registry & Executor (component L):
// name -> handler dispatch with schema validation, uniform response
// shaping and post-call hooks into the authoring session and lifecycle
// monitor, grounded on the teacher's mcp/server.go AddTool dispatch
// generalised away from any one transport.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/automobile-core/server/internal/coreerrors"
)

// ParamType names the accepted JSON value shapes for a single parameter.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeNumber ParamType = "number"
	TypeBool   ParamType = "boolean"
	TypeObject ParamType = "object"
	TypeArray  ParamType = "array"
)

// ParamSpec describes one named tool parameter.
type ParamSpec struct {
	Name     string
	Type     ParamType
	Required bool
}

// Handler executes a tool call against already-validated params.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// Recorder captures a successful or failed call into the active
// authoring session; satisfied by *authoring.Manager.
type Recorder interface {
	Record(tool string, params map[string]any, response Response)
}

// ChangeChecker is invoked after every call with the device id the call
// targeted (if any), to opportunistically diff lifecycle state.
type ChangeChecker interface {
	CheckForChanges(ctx context.Context, deviceID string)
}

// Response is the uniform shape every call returns (§4.12 step 5).
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type registration struct {
	schema  []ParamSpec
	handler Handler
}

// Registry dispatches named tool calls to registered handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]registration

	recorder Recorder
	lifecycle ChangeChecker
}

// New constructs an empty Registry. recorder and lifecycle may be nil;
// Registry.SetRecorder/SetLifecycle can attach them later once the
// authoring/lifecycle components exist (they in turn depend on tools
// being registered first in some wiring orders).
func New() *Registry {
	return &Registry{handlers: make(map[string]registration)}
}

// SetRecorder attaches the authoring-session recorder.
func (r *Registry) SetRecorder(rec Recorder) { r.recorder = rec }

// SetLifecycle attaches the lifecycle change-checker.
func (r *Registry) SetLifecycle(c ChangeChecker) { r.lifecycle = c }

// Register adds a named tool, its parameter schema and its handler
// (§4.12's `register(name, paramSchema, handler)`).
func (r *Registry) Register(name string, schema []ParamSpec, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = registration{schema: schema, handler: handler}
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	return out
}

// Schema returns the parameter schema a name was registered with, so a
// transport layer (MCP, HTTP, CLI) can describe the tool to its callers
// without duplicating the schema at the call site.
func (r *Registry) Schema(name string) ([]ParamSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.handlers[name]
	if !ok {
		return nil, false
	}
	return reg.schema, true
}

// Call implements §4.12's four-step dispatch: lookup, validate, invoke,
// record+checkForChanges, always returning a Response rather than a raw
// error.
func (r *Registry) Call(ctx context.Context, name string, params map[string]any) Response {
	r.mu.RLock()
	reg, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return errorResponse(&coreerrors.UnknownTool{Tool: name})
	}

	if reasons := validate(reg.schema, params); len(reasons) > 0 {
		return errorResponse(&coreerrors.BadRequest{Tool: name, Reasons: reasons})
	}

	data, err := r.invoke(ctx, name, reg.handler, params)
	var resp Response
	if err != nil {
		resp = errorResponse(&coreerrors.ToolFailure{Tool: name, Cause: err})
	} else {
		resp = Response{Success: true, Data: data}
	}

	if r.recorder != nil {
		r.recorder.Record(name, params, resp)
	}
	if r.lifecycle != nil {
		if deviceID, ok := params["deviceId"].(string); ok && deviceID != "" {
			r.lifecycle.CheckForChanges(ctx, deviceID)
		}
	}
	return resp
}

// invoke recovers a handler panic into a ToolFailure-worthy error
// instead of crashing the registry's caller.
func (r *Registry) invoke(ctx context.Context, name string, h Handler, params map[string]any) (data any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in tool %s: %v", name, rec)
		}
	}()
	return h(ctx, params)
}

func errorResponse(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

// validate checks params against schema, collecting every field failure
// rather than stopping at the first (§4.12 step 2).
func validate(schema []ParamSpec, params map[string]any) []coreerrors.FieldReason {
	var reasons []coreerrors.FieldReason
	for _, spec := range schema {
		v, present := params[spec.Name]
		if !present {
			if spec.Required {
				reasons = append(reasons, coreerrors.FieldReason{Field: spec.Name, Reason: "required"})
			}
			continue
		}
		if !typeMatches(spec.Type, v) {
			reasons = append(reasons, coreerrors.FieldReason{Field: spec.Name, Reason: fmt.Sprintf("expected %s", spec.Type)})
		}
	}
	return reasons
}

func typeMatches(t ParamType, v any) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeNumber:
		switch v.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}
