package plan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/automobile-core/server/internal/tools"
)

func TestParse_AlternateKeys(t *testing.T) {
	yamlDoc := []byte(`
planName: "My Plan"
steps:
  - command: tap
    deviceId: emulator-5554
    x: 10
    y: 20
    label: ignored-step-label
`)
	p, err := Parse(yamlDoc)
	require.NoError(t, err)
	require.Equal(t, "My Plan", p.Name)
	require.Len(t, p.Steps, 1)
	require.Equal(t, "tap", p.Steps[0].Tool)
	require.Equal(t, "emulator-5554", p.Steps[0].Params["deviceId"])
	_, hasLabel := p.Steps[0].Params["label"]
	require.False(t, hasLabel)
}

func TestParse_CanonicalKeys(t *testing.T) {
	yamlDoc := []byte(`
name: "Canonical"
description: "desc"
steps:
  - tool: observe
`)
	p, err := Parse(yamlDoc)
	require.NoError(t, err)
	require.Equal(t, "Canonical", p.Name)
	require.Equal(t, "desc", p.Description)
	require.Equal(t, "observe", p.Steps[0].Tool)
}

func TestExecute_ZeroStepsSucceedsVacuously(t *testing.T) {
	e := New(tools.New())
	res, err := e.Execute(context.Background(), &Plan{}, 0)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 0, res.TotalSteps)
}

func TestExecute_OutOfBoundsStartStep(t *testing.T) {
	e := New(tools.New())
	p := &Plan{Steps: []Step{{Tool: "tap"}}}
	_, err := e.Execute(context.Background(), p, 5)
	require.Error(t, err)
}

func TestExecute_StopsAtFirstFailure(t *testing.T) {
	reg := tools.New()
	reg.Register("ok", nil, func(ctx context.Context, params map[string]any) (any, error) {
		return "done", nil
	})
	reg.Register("fail", nil, func(ctx context.Context, params map[string]any) (any, error) {
		return nil, assertErr{}
	})
	e := New(reg)
	p := &Plan{Steps: []Step{{Tool: "ok"}, {Tool: "fail"}, {Tool: "ok"}}}

	res, err := e.Execute(context.Background(), p, 0)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, 1, res.ExecutedSteps)
	require.NotNil(t, res.FailedStep)
	require.Equal(t, 1, res.FailedStep.StepIndex)
	require.Equal(t, "fail", res.FailedStep.Tool)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
