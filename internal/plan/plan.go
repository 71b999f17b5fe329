// Package plan implements the Plan Parser/Executor (component N): YAML
// plan decoding with alternate-key normalisation and step-by-step
// execution against the Tool Registry, grounded on the teacher's
// session_export.go plan-writing shape read in reverse.
package plan

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/automobile-core/server/internal/coreerrors"
	"github.com/automobile-core/server/internal/tools"
)

// Step is one executable plan step: a tool name plus its parameters.
type Step struct {
	Tool   string
	Params map[string]any
}

// Plan is a parsed test plan (§6 YAML format).
type Plan struct {
	Name        string
	Description string
	Generated   string
	AppID       string
	Metadata    map[string]any
	Steps       []Step
}

// reservedStepKeys are step-level keys with dedicated Step fields (or,
// for "label", explicitly ignored); everything else becomes a param.
var reservedStepKeys = map[string]bool{
	"tool": true, "command": true, "label": true,
}

// Parse decodes YAML plan bytes, normalising `planName` -> `name` and
// `command` -> `tool` (§6).
func Parse(data []byte) (*Plan, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}

	p := &Plan{Metadata: make(map[string]any)}

	if v, ok := raw["name"].(string); ok {
		p.Name = v
	} else if v, ok := raw["planName"].(string); ok {
		p.Name = v
	}
	if v, ok := raw["description"].(string); ok {
		p.Description = v
	}
	if v, ok := raw["generated"].(string); ok {
		p.Generated = v
	}
	if v, ok := raw["appId"].(string); ok {
		p.AppID = v
	}
	if v, ok := raw["metadata"].(map[string]any); ok {
		p.Metadata = v
	}

	rawSteps, _ := raw["steps"].([]any)
	for _, rs := range rawSteps {
		stepMap, ok := rs.(map[string]any)
		if !ok {
			continue
		}
		p.Steps = append(p.Steps, parseStep(stepMap))
	}

	return p, nil
}

func parseStep(raw map[string]any) Step {
	step := Step{Params: make(map[string]any)}
	if v, ok := raw["tool"].(string); ok {
		step.Tool = v
	} else if v, ok := raw["command"].(string); ok {
		step.Tool = v
	}
	for k, v := range raw {
		if reservedStepKeys[k] {
			continue
		}
		step.Params[k] = v
	}
	return step
}

// Result is the outcome of an Execute call (§4.14).
type Result struct {
	Success       bool
	ExecutedSteps int
	TotalSteps    int
	FailedStep    *FailedStep
}

// FailedStep records the step index, tool and error of the step that
// stopped execution.
type FailedStep struct {
	StepIndex int
	Tool      string
	Error     string
}

// Executor runs Plan steps against a Tool Registry.
type Executor struct {
	registry *tools.Registry
}

// New constructs an Executor.
func New(registry *tools.Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute dispatches steps [startStep, len(plan.Steps)) through the
// registry in order, stopping at the first failure (§4.14).
func (e *Executor) Execute(ctx context.Context, p *Plan, startStep int) (Result, error) {
	total := len(p.Steps)
	if startStep < 0 || startStep > total {
		return Result{}, &coreerrors.OutOfBounds{Index: startStep, Len: total}
	}
	if total == 0 {
		return Result{Success: true, ExecutedSteps: 0, TotalSteps: 0}, nil
	}

	executed := 0
	for i := startStep; i < total; i++ {
		step := p.Steps[i]
		resp := e.registry.Call(ctx, step.Tool, step.Params)
		if !resp.Success {
			return Result{
				Success:       false,
				ExecutedSteps: executed,
				TotalSteps:    total,
				FailedStep:    &FailedStep{StepIndex: i, Tool: step.Tool, Error: resp.Error},
			}, nil
		}
		executed++
	}
	return Result{Success: true, ExecutedSteps: executed, TotalSteps: total}, nil
}
